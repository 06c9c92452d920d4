package localapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/collaborator-ai/seedvault-sub000/internal/config"
	"github.com/collaborator-ai/seedvault-sub000/internal/supervisor"
)

// statusResponse wraps SyncStatus with the fields spec.md §4.8 adds on
// top of the raw snapshot.
type statusResponse struct {
	supervisor.SyncStatus
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
}

func (a *API) handleStatus(c *gin.Context) {
	status := a.sup.Status()
	c.PureJSON(http.StatusOK, statusResponse{
		SyncStatus: status,
		ServerURL:  status.ServerURL,
		Username:   status.Username,
	})
}

// configResponse is {server, username, collections[]} with the token
// redacted, per spec.md §4.8.
type configResponse struct {
	Server      string              `json:"server"`
	Username    string              `json:"username"`
	Collections []config.Collection `json:"collections"`
}

func (a *API) handleGetConfig(c *gin.Context) {
	cfg := a.sup.Config()
	c.PureJSON(http.StatusOK, configResponse{
		Server:      cfg.ServerURL,
		Username:    cfg.Username,
		Collections: cfg.Collections,
	})
}

type mutateCollectionsRequest struct {
	Action string `json:"action" binding:"required,oneof=add remove"`
	Name   string `json:"name" binding:"required"`
	Path   string `json:"path"`
}

func (a *API) handleMutateCollections(c *gin.Context) {
	var req mutateCollectionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := a.sup.MutateCollections(c.Request.Context(), req.Action, req.Name, req.Path); err != nil {
		switch {
		case errors.Is(err, supervisor.ErrBusy):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case errors.Is(err, config.ErrAlreadyConfigured),
			errors.Is(err, config.ErrOverlapChild),
			errors.Is(err, config.ErrDuplicateName),
			errors.Is(err, config.ErrInvalidName),
			errors.Is(err, config.ErrInvalidPath),
			errors.Is(err, config.ErrNotFound),
			errors.Is(err, supervisor.ErrInvalidAction):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
		}
		return
	}

	c.Status(http.StatusNoContent)
}
