package handlers

import (
	"net/http"
	"time"

	"bridge-backend/internal/clients"

	"github.com/gin-gonic/gin"
)

// PingHandler GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().Unix(),
	})
}

// ConnectionChecker reports whether an optional dependency is reachable
type ConnectionChecker interface {
	IsConnected() bool
}

// HealthHandler GET /health
type HealthHandler struct {
	registry *clients.ChainRegistry
	nats     ConnectionChecker
	started  time.Time
}

// NewHealthHandler nats may be nil when event publishing is disabled
func NewHealthHandler(registry *clients.ChainRegistry, nats ConnectionChecker) *HealthHandler {
	return &HealthHandler{registry: registry, nats: nats, started: time.Now()}
}

// Health reports per-chain availability. Any unavailable chain makes the
// service "degraded"; it still answers 200 since other chains keep serving.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	chains := gin.H{}
	for _, d := range h.registry.Descriptors() {
		available := h.registry.Available(d.ChainID)
		if !available {
			status = "degraded"
		}
		chains[d.Name] = gin.H{"chain_id": d.ChainID, "available": available}
	}

	events := "disabled"
	if h.nats != nil {
		events = "connected"
		if !h.nats.IsConnected() {
			events = "disconnected"
			status = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  status,
		"service": "bridge-backend",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"chains":  chains,
		"events":  events,
	})
}
