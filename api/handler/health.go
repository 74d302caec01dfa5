package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-targeting/profiler"
	"github.com/nvr-ai/go-targeting/service"
)

// HealthHandler serves /health and /metrics.
type HealthHandler struct {
	svc      *service.DetectionService
	profiler *profiler.RuntimeProfiler
	hub      *Hub
}

// NewHealthHandler returns a HealthHandler. hub may be nil.
func NewHealthHandler(svc *service.DetectionService, rp *profiler.RuntimeProfiler, hub *Hub) *HealthHandler {
	return &HealthHandler{svc: svc, profiler: rp, hub: hub}
}

// Health serves GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":       "running",
		"model_loaded": h.svc.Available(),
	}
	if err := h.svc.Reason(); err != nil {
		body["reason"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// Metrics serves GET /metrics.
func (h *HealthHandler) Metrics(c *gin.Context) {
	body := gin.H{"profile": h.profiler.Snapshot()}
	if h.hub != nil {
		body["websocket_clients"] = h.hub.Clients()
	}
	c.JSON(http.StatusOK, body)
}
