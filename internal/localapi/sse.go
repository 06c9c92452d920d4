package localapi

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/collaborator-ai/seedvault-sub000/internal/fswatch"
)

// sseKeepalive is how often a comment ping is sent to keep idle
// connections (and any intermediate proxy) from timing out.
const sseKeepalive = 15 * time.Second

// handleLocalEvents streams the daemon's FileEvent bus as server-sent
// events, per spec.md §4.8 ("GET /events/local ... SSE stream of local
// file events"). Grounded on the teacher's SSE handlers in
// internal/client/handlers, which write directly against gin's
// ResponseWriter rather than pulling in a dedicated SSE library.
func (a *API) handleLocalEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events := make(chan fswatch.FileEvent, 32)
	id := a.sup.Bus().Subscribe(func(e fswatch.FileEvent) {
		select {
		case events <- e:
		default:
		}
	})
	defer a.sup.Bus().Unsubscribe(id)

	fmt.Fprint(c.Writer, ": connected\n\n")
	c.Writer.Flush()

	ticker := time.NewTicker(sseKeepalive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		case e := <-events:
			fmt.Fprintf(c.Writer, "event: file_changed\ndata: {\"kind\":%q,\"server_path\":%q}\n\n",
				e.Kind.String(), string(e.ServerPath))
			c.Writer.Flush()
		}
	}
}
