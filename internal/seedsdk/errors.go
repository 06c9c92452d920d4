package seedsdk

import (
	"errors"
	"fmt"
)

var (
	// ErrNoServerURL is returned by New when the configured server URL is empty.
	ErrNoServerURL = errors.New("seedsdk: server url missing")
	// ErrNoToken is returned by New when the configured auth token is empty.
	ErrNoToken = errors.New("seedsdk: auth token missing")
	// ErrUnreachable is returned by every Client method when the request
	// cannot reach the server at all.
	ErrUnreachable = errors.New("seedsdk: server unreachable")
	// ErrAuth is not returned by any Client method: a 401/403 response
	// surfaces as an *ApiError whose IsAuth reports true.
	ErrAuth = errors.New("seedsdk: authentication failed")
)

// ApiError is a typed error carrying the HTTP status of a non-2xx response,
// the split the retry queue depends on: 4xx is semantic (drop), 5xx is
// transport-like (retry).
type ApiError struct {
	Status  int
	Message string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("seedsdk: server responded %d: %s", e.Status, e.Message)
}

// IsSemantic reports whether this error represents a 4xx response: the
// server is reachable but rejected the request.
func (e *ApiError) IsSemantic() bool {
	return e.Status >= 400 && e.Status < 500
}

// IsAuth reports whether this error represents a 401/403 response.
func (e *ApiError) IsAuth() bool {
	return e.Status == 401 || e.Status == 403
}

// AsApiError unwraps err looking for an *ApiError.
func AsApiError(err error) (*ApiError, bool) {
	var apiErr *ApiError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
