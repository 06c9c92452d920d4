// Package seedsdk is a typed HTTP facade over the remote sync server (spec
// component C2): file PUT/DELETE/LIST, health checks, contributor
// management, and the server-sent-events stream of remote file changes.
package seedsdk

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// Config is the set of fields needed to build a Client.
type Config struct {
	ServerURL string
	AuthToken string
}

func (c Config) validate() error {
	if c.ServerURL == "" {
		return ErrNoServerURL
	}
	if c.AuthToken == "" {
		return ErrNoToken
	}
	return nil
}

// Client is the typed REST facade used by the syncer and the local API's
// reverse proxy.
type Client struct {
	baseURL string
	token   string
	http    *req.Client
}

// New builds a Client against cfg. The returned client retries idempotent
// requests against transient connection failures itself; 4xx/5xx
// classification for the retry queue is still the caller's job.
func New(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	httpClient := req.C().
		SetBaseURL(cfg.ServerURL).
		SetTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}).
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(500 * time.Millisecond).
		SetUserAgent(UserAgent).
		SetCommonBearerAuthToken(cfg.AuthToken).
		SetTimeout(30 * time.Second)

	return &Client{
		baseURL: cfg.ServerURL,
		token:   cfg.AuthToken,
		http:    httpClient,
	}, nil
}

// encodePath percent-encodes each "/"-separated segment of p individually,
// preserving the separating slashes, per spec.md §4.2.
func encodePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// apiError inspects a failed *req.Response and builds an *ApiError, falling
// back to the HTTP status text when the body isn't the expected
// {"error": "..."} shape.
func apiError(resp *req.Response) error {
	status := resp.StatusCode
	var body errorBody
	if err := resp.Unmarshal(&body); err == nil && body.Error != "" {
		return &ApiError{Status: status, Message: body.Error}
	}
	return &ApiError{Status: status, Message: resp.Status}
}

// Health reports whether the server is reachable and responding.
func (c *Client) Health(ctx context.Context) (bool, error) {
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	return resp.IsSuccessState(), nil
}

// Me returns the authenticated contributor's identity.
func (c *Client) Me(ctx context.Context) (*Contributor, error) {
	var out Contributor
	resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).Get("/v1/me")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return nil, apiError(resp)
	}
	return &out, nil
}

// ListContributors lists every contributor known to the server.
func (c *Client) ListContributors(ctx context.Context) ([]Contributor, error) {
	var out []Contributor
	resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).Get("/v1/contributors")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return nil, apiError(resp)
	}
	return out, nil
}

// DeleteContributor removes a contributor from the server's roster.
func (c *Client) DeleteContributor(ctx context.Context, name string) error {
	resp, err := c.http.R().SetContext(ctx).Delete("/v1/contributors/" + url.PathEscape(name))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return apiError(resp)
	}
	return nil
}

// CreateInvite requests a fresh signup invite code.
func (c *Client) CreateInvite(ctx context.Context) (string, error) {
	var out struct {
		Invite string `json:"invite"`
	}
	resp, err := c.http.R().SetContext(ctx).SetSuccessResult(&out).Post("/v1/invites")
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return "", apiError(resp)
	}
	return out.Invite, nil
}

// PutFile uploads content to <username>/<path>, attaching origin
// timestamps as headers when provided. When either timestamp is given, a
// missing, zero or Unix-epoch ctime is sent as the mtime, or as the
// current time when no mtime is given.
func (c *Client) PutFile(ctx context.Context, username, path string, content []byte, opts PutFileOptions) error {
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/markdown").
		SetBody(content)

	if opts.OriginCtime != nil || opts.OriginMtime != nil {
		ctime := opts.OriginCtime
		if ctime == nil || ctime.IsZero() || ctime.Unix() == 0 {
			ctime = opts.OriginMtime
		}
		if ctime == nil {
			now := time.Now()
			ctime = &now
		}
		r.SetHeader(headerOriginCtime, ctime.UTC().Format(time.RFC3339))
	}
	if opts.OriginMtime != nil {
		r.SetHeader(headerOriginMtime, opts.OriginMtime.UTC().Format(time.RFC3339))
	}

	resp, err := r.Put(fmt.Sprintf("/v1/files/%s/%s", url.PathEscape(username), encodePath(path)))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return apiError(resp)
	}
	return nil
}

// DeleteFile removes <username>/<path> from the server.
func (c *Client) DeleteFile(ctx context.Context, username, path string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/v1/files/%s/%s", url.PathEscape(username), encodePath(path)))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return apiError(resp)
	}
	return nil
}

// GetFile downloads the body of <username>/<path> as text.
func (c *Client) GetFile(ctx context.Context, username, path string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/v1/files/%s/%s", url.PathEscape(username), encodePath(path)))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return "", apiError(resp)
	}
	return resp.String(), nil
}

// ListFiles lists every file under prefix (e.g. "<collection>/").
func (c *Client) ListFiles(ctx context.Context, prefix string) ([]RemoteFile, error) {
	var out []RemoteFile
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("prefix", prefix).
		SetSuccessResult(&out).
		Get("/v1/files")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, err)
	}
	if resp.IsErrorState() {
		return nil, apiError(resp)
	}
	return out, nil
}
