package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/go-targeting/actuator"
	"github.com/nvr-ai/go-targeting/api"
	"github.com/nvr-ai/go-targeting/api/handler"
	"github.com/nvr-ai/go-targeting/config"
	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/inference/detectors"
	"github.com/nvr-ai/go-targeting/logging"
	"github.com/nvr-ai/go-targeting/profiler"
	"github.com/nvr-ai/go-targeting/service"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	log, logFile, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize logging")
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	capability := loadDetector(cfg, log)
	defer capability.Close()

	transform, err := shaper.NewTransform(cfg.Transform)
	if err != nil {
		log.WithError(err).Fatal("invalid coordinate transform")
	}

	store, err := service.NewResultStore(cfg.Server.UploadDir, cfg.Server.ResultsDir)
	if err != nil {
		log.WithError(err).Fatal("failed to prepare storage")
	}

	publisher, err := actuator.New(ctx, cfg.IoT, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize target dispatch")
	}

	rp := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})
	rp.Start(log)
	defer rp.Stop()

	hub := handler.NewHub(log)
	go hub.Run(ctx)

	router := api.SetupRouter(api.Dependencies{
		Detection: service.NewDetectionService(capability, shaper.New(shaper.WithTransform(transform)), store, rp, log),
		Targets:   service.NewTargetService(publisher, log),
		Profiler:  rp,
		Hub:       hub,
		Options: handler.DetectionOptions{
			StaticDir:      cfg.Server.StaticDir,
			MaxUploadBytes: cfg.MaxUploadBytes(),
			Confidence:     cfg.Model.Confidence,
		},
		Log: log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":         srv.Addr,
			"model_loaded": capability.Available(),
		}).Info("weed detection & laser targeting server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
}

// loadDetector never fails: any problem leaves the server running without detection.
func loadDetector(cfg *config.Config, log logrus.FieldLogger) *inference.Capability {
	dc, err := cfg.Detector()
	if err != nil {
		log.WithError(err).Warn("detector configuration rejected, running without detection")
		return inference.Unavailable(err)
	}
	return detectors.Load(dc, log)
}
