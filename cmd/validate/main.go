// Command validate measures the exported model on a labelled YOLO dataset split.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/nvr-ai/go-targeting/config"
	"github.com/nvr-ai/go-targeting/evaluation"
	"github.com/nvr-ai/go-targeting/inference/detectors"
	"github.com/nvr-ai/go-targeting/logging"
	"github.com/nvr-ai/go-targeting/models"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath string
		dataYAML   string
		split      string
		modelPath  string
		confidence float64
		jsonOut    bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&dataYAML, "data", "data.yaml", "Dataset description")
	flag.StringVar(&split, "split", "val", "Split to evaluate: train, val or test")
	flag.StringVar(&modelPath, "model", "", "Path to ONNX model (default from config)")
	flag.Float64Var(&confidence, "conf", 0.001, "Confidence threshold for validation")
	flag.BoolVar(&jsonOut, "json", false, "Print metrics as JSON")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	cfg.Model.DataYAML = dataYAML
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}

	log, logFile, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize logging")
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	metrics, err := run(ctx, cfg, split, float32(confidence), log)
	if err != nil {
		log.WithError(err).Fatal("validation failed")
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(metrics); err != nil {
			log.WithError(err).Fatal("encode metrics")
		}
		return
	}
	printMetrics(metrics)
}

func run(ctx context.Context, cfg *config.Config, split string, confidence float32, log logrus.FieldLogger) (evaluation.Metrics, error) {
	ds, err := models.LoadDataset(cfg.Model.DataYAML)
	if err != nil {
		return evaluation.Metrics{}, err
	}
	dir, err := ds.Split(split)
	if err != nil {
		return evaluation.Metrics{}, err
	}

	dc, err := cfg.Detector()
	if err != nil {
		return evaluation.Metrics{}, err
	}
	detector, err := detectors.New(dc, log)
	if err != nil {
		return evaluation.Metrics{}, err
	}
	defer detector.Close()

	log.WithFields(logrus.Fields{
		"split":   split,
		"images":  dir,
		"classes": ds.NC,
	}).Info("validating")
	return evaluation.Run(ctx, detector, dir, confidence, ds.Classes(), log)
}

func printMetrics(m evaluation.Metrics) {
	rule := strings.Repeat("=", 50)
	fmt.Printf("%s\nValidation Results:\n%s\n", rule, rule)
	fmt.Printf("Images: %d  Instances: %d\n", m.Images, m.Instances)
	fmt.Printf("mAP50: %.4f\n", m.MAP50)
	fmt.Printf("mAP50-95: %.4f\n", m.MAP50To95)
	fmt.Printf("Precision: %.4f\n", m.Precision)
	fmt.Printf("Recall: %.4f\n", m.Recall)

	if len(m.Classes) > 1 {
		fmt.Printf("\n%-20s %10s %8s %8s\n", "class", "instances", "AP50", "AP50-95")
		for _, c := range m.Classes {
			fmt.Printf("%-20s %10d %8.4f %8.4f\n", c.Name, c.Instances, c.AP50, c.AP50To95)
		}
	}
}
