package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"todo-api/pkg/logger"
)

const (
	apiVersion         = "1.0.0"
	readinessTimeout   = 2 * time.Second
	isoMillisUTCLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Pinger is a dependency the readiness probe checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

type probe struct {
	name string
	p    Pinger
}

// AddProbe registers a dependency for GET /api/ready.
func (h *Handler) AddProbe(name string, p Pinger) {
	h.probes = append(h.probes, probe{name: name, p: p})
}

// Health returns 200 while the process is alive.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"message":   "Todo API Server is running",
		"timestamp": time.Now().UTC().Format(isoMillisUTCLayout),
	})
}

// Ready returns 200 if every registered dependency answers a ping.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()
	for _, pr := range h.probes {
		if err := pr.p.Ping(ctx); err != nil {
			logger.Warn(ctx, "Readiness check failed", "dependency", pr.name, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": pr.name + " unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// Index describes the API.
func Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to Todo API",
		"version": apiVersion,
		"endpoints": gin.H{
			"health": "/api/health",
			"ready":  "/api/ready",
			"todos": gin.H{
				"getAll":  "GET /api/todos",
				"getById": "GET /api/todos/:id",
				"create":  "POST /api/todos",
				"update":  "PUT /api/todos/:id",
				"delete":  "DELETE /api/todos/:id",
			},
		},
	})
}

// NotFound is the fallback for unmatched routes.
func NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "Not Found",
		"message": "Route " + c.Request.URL.RequestURI() + " not found",
	})
}
