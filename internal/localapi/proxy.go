package localapi

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/collaborator-ai/seedvault-sub000/internal/supervisor"
)

// proxiedPrefixes lists the path space forwarded to the remote server, per
// spec.md §4.8's "/v1/*, /health -> reverse-proxy" contract.
var proxiedPrefixes = []string{"/v1/"}

func isProxiedPath(path string) bool {
	if path == "/health" {
		return true
	}
	for _, prefix := range proxiedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// newReverseProxy builds the handler that forwards /v1/* and /health to
// the configured remote server, injecting the stored auth token. Neither
// the teacher nor any library in the example pack provides a reverse
// proxy, so this is the one place the local API reaches for the standard
// library (recorded in DESIGN.md).
func newReverseProxy(sup *supervisor.Supervisor) http.Handler {
	director := func(req *http.Request) {
		cfg := sup.Config()
		target, err := url.Parse(cfg.ServerURL)
		if err != nil {
			slog.Error("localapi: proxy target invalid", "error", err)
			return
		}

		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.Host = target.Host

		if cfg.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
		}

		// Drop the client's Accept-Encoding: an outbound request without
		// one lets http.Transport request gzip and transparently
		// decompress the response itself.
		req.Header.Del("Accept-Encoding")
	}

	proxy := &httputil.ReverseProxy{
		Director: director,
		// The body reaching the client is already decoded, so upstream
		// encoding headers are stripped.
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Content-Encoding")
			resp.Header.Del("Transfer-Encoding")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Warn("localapi: proxy request failed", "path", r.URL.Path, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream unreachable"}`))
		},
	}

	return proxy
}
