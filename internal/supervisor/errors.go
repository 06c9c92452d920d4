package supervisor

import "errors"

// ErrStartupUnreachable is returned by Start when the configured server
// cannot be reached at bootstrap, per spec.md §4.7 step 1 ("hard failure
// if unreachable at start").
var ErrStartupUnreachable = errors.New("supervisor: server unreachable at startup")

// ErrAuthFailed is returned by Start when the configured credentials are
// rejected by the server at bootstrap. Per spec.md §4.7 step 1, an
// AuthError at startup is fatal: the daemon must exit rather than retry,
// since retrying with the same bad token will never succeed.
var ErrAuthFailed = errors.New("supervisor: authentication rejected by server, check configured token")

// ErrBusy is returned by MutateCollections when a reload, reconciliation,
// or another mutation already holds the busy guard.
var ErrBusy = errors.New("supervisor: busy, try again shortly")

// ErrInvalidAction is returned by MutateCollections for an action other
// than "add" or "remove".
var ErrInvalidAction = errors.New("supervisor: invalid collection action")
