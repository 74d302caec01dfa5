package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-targeting/actuator"
	"github.com/nvr-ai/go-targeting/service"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TargetHandler serves the coordinate export and dispatch endpoints.
type TargetHandler struct {
	svc *service.TargetService
	log logrus.FieldLogger
}

// NewTargetHandler returns a TargetHandler.
func NewTargetHandler(svc *service.TargetService, log logrus.FieldLogger) *TargetHandler {
	return &TargetHandler{svc: svc, log: log}
}

func bindTargets(c *gin.Context) ([]shaper.TargetInput, bool) {
	var req shaper.TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body: " + err.Error()})
		return nil, false
	}
	return req.Detections, true
}

func validationFailed(c *gin.Context, err error) bool {
	var verr *shaper.ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error": verr.Error(),
		"index": verr.Index,
		"field": verr.Field,
	})
	return true
}

// DownloadCoordinates serves POST /download_coordinates.
func (h *TargetHandler) DownloadCoordinates(c *gin.Context) {
	in, ok := bindTargets(c)
	if !ok {
		return
	}

	file, err := h.svc.Format(in)
	if err != nil {
		if !validationFailed(c, err) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, file)
}

// DispatchTargets serves POST /dispatch_targets.
func (h *TargetHandler) DispatchTargets(c *gin.Context) {
	in, ok := bindTargets(c)
	if !ok {
		return
	}

	d, err := h.svc.Dispatch(c.Request.Context(), in)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":       true,
			"request_id":    d.RequestID,
			"total_targets": d.TotalTargets,
		})
	case validationFailed(c, err):
	case errors.Is(err, actuator.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Target dispatch is not configured"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Dispatch failed: " + err.Error()})
	}
}
