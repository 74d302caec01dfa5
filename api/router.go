// Package api - HTTP routes of the targeting service.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/nvr-ai/go-targeting/api/handler"
	"github.com/nvr-ai/go-targeting/api/middleware"
	"github.com/nvr-ai/go-targeting/profiler"
	"github.com/nvr-ai/go-targeting/service"
	"github.com/sirupsen/logrus"
)

// Dependencies are the services the router exposes.
type Dependencies struct {
	Detection *service.DetectionService
	Targets   *service.TargetService
	Profiler  *profiler.RuntimeProfiler
	Hub       *handler.Hub
	Options   handler.DetectionOptions
	Log       logrus.FieldLogger
}

// SetupRouter builds the gin engine with every route registered.
func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Log))
	r.Use(middleware.CORS())
	if deps.Options.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = deps.Options.MaxUploadBytes
	}

	detection := handler.NewDetectionHandler(deps.Detection, deps.Hub, deps.Options, deps.Log)
	targets := handler.NewTargetHandler(deps.Targets, deps.Log)
	health := handler.NewHealthHandler(deps.Detection, deps.Profiler, deps.Hub)

	r.GET("/", detection.Index)
	if deps.Options.StaticDir != "" {
		r.Static("/static", deps.Options.StaticDir)
	}
	r.POST("/upload", detection.Upload)

	r.POST("/download_coordinates", targets.DownloadCoordinates)
	r.POST("/dispatch_targets", targets.DispatchTargets)

	r.GET("/health", health.Health)
	r.GET("/metrics", health.Metrics)

	if deps.Hub != nil {
		r.GET("/ws", handler.NewWebSocketHandler(deps.Hub).HandleWebSocket)
	}
	return r
}
