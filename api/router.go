// Package api exposes the pipeline's HTTP surface: the manual run trigger,
// the status snapshot, and the live status stream over SSE.
package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"marketradar/status"
)

// TriggerFunc starts a run in the background, reporting whether the
// trigger was accepted. Rejections mean a run is already active.
type TriggerFunc func() bool

// NewRouter builds the API router.
func NewRouter(trigger TriggerFunc, bcast *status.Broadcaster) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "marketradar"})
	})

	scraper := router.Group("/api/scraper")
	{
		scraper.POST("/trigger", func(c *gin.Context) {
			accepted := trigger()
			code := http.StatusAccepted
			if !accepted {
				code = http.StatusConflict
			}
			c.JSON(code, gin.H{"accepted": accepted})
		})

		scraper.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, bcast.Snapshot())
		})

		scraper.GET("/status/stream", func(c *gin.Context) {
			streamStatus(c, bcast)
		})
	}

	return router
}

// streamStatus pushes every status update to the client as an SSE event.
// The current snapshot arrives first, then updates until the client leaves.
func streamStatus(c *gin.Context, bcast *status.Broadcaster) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	updates, cancel := bcast.Subscribe()
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case update, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("status", update)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
