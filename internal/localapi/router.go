// Package localapi implements the daemon's loopback HTTP API (spec
// component C8): status/config endpoints, an SSE stream of local file
// events, and a reverse proxy to the remote server. Router setup and
// middleware order are grounded on the teacher's
// internal/client/controlplane_routes.go.
package localapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collaborator-ai/seedvault-sub000/internal/supervisor"
	"github.com/collaborator-ai/seedvault-sub000/internal/version"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// API holds everything the router's handlers need.
type API struct {
	sup   *supervisor.Supervisor
	proxy http.Handler
}

// NewRouter builds the gin engine serving the local API.
func NewRouter(sup *supervisor.Supervisor) http.Handler {
	api := &API{
		sup:   sup,
		proxy: newReverseProxy(sup),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(gzipMiddleware())
	r.Use(loggerMiddleware())

	r.GET("/status", api.handleStatus)
	r.GET("/config", api.handleGetConfig)
	r.PUT("/config/collections", api.handleMutateCollections)
	r.GET("/events/local", api.handleLocalEvents)
	r.GET("/version", api.handleVersion)

	r.NoRoute(func(c *gin.Context) {
		if isProxiedPath(c.Request.URL.Path) {
			api.proxy.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	return r
}

func (a *API) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    version.Version,
		"revision":   version.Revision,
		"build_date": version.BuildDate,
	})
}
