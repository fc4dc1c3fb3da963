package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a readiness dependency (credential store, Redis).
type Pinger func(ctx context.Context) error

// RegisterHealth adds /health (liveness) and /ready, which answers 200 only
// when every named dependency pings.
func RegisterHealth(r *gin.Engine, startTime time.Time, deps map[string]Pinger) {
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		ready := true
		status := map[string]bool{}
		for name, ping := range deps {
			ok := ping != nil && ping(ctx) == nil
			status[name] = ok
			ready = ready && ok
		}
		body := gin.H{"deps": status, "uptime": time.Since(startTime).String()}
		if !ready {
			body["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
	})
}
