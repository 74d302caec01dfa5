// Command checkmodel reports whether the exported model is in place and loads.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-targeting/config"
	"github.com/nvr-ai/go-targeting/inference/detectors"
	"github.com/nvr-ai/go-targeting/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath string
		runDir     string
		copyModel  bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&runDir, "run", "runs/train/weed_detection", "Training run directory holding weights/")
	flag.BoolVar(&copyModel, "copy", true, "Copy the run's best.onnx into place when the model is missing")
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

	rule := strings.Repeat("=", 50)
	fmt.Printf("Checking model status...\n%s\n", rule)
	modelFound := inspectModelDir(cfg.Model.Path)
	if modelFound {
		tryLoad(cfg, log)
	}

	fmt.Printf("\n%s\nChecking training results...\n", rule)
	weights := filepath.Join(runDir, "weights")
	entries, err := os.ReadDir(weights)
	if err != nil {
		fmt.Printf("✗ No training weights found at: %s\n", weights)
		return
	}
	fmt.Printf("✓ Training weights found at: %s\n", weights)
	fmt.Printf("Available weights: %v\n", names(entries))

	if modelFound || !copyModel {
		return
	}
	best := filepath.Join(weights, "best.onnx")
	fmt.Printf("\nCopying %s to %s...\n", best, cfg.Model.Path)
	if err := copyFile(best, cfg.Model.Path); err != nil {
		fmt.Printf("✗ Copy failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("✓ Model copied successfully!")
	tryLoad(cfg, log)
}

func inspectModelDir(modelPath string) bool {
	dir := filepath.Dir(modelPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Printf("✗ %s/ directory doesn't exist\n", dir)
		return false
	}
	fmt.Printf("✓ %s/ directory exists\n", dir)
	if len(entries) == 0 {
		fmt.Printf("✗ %s/ directory is empty\n", dir)
		return false
	}
	fmt.Printf("✓ Files in %s/: %v\n", dir, names(entries))

	info, err := os.Stat(modelPath)
	if err != nil {
		fmt.Printf("✗ %s not found\n", modelPath)
		return false
	}
	fmt.Printf("✓ %s exists (%.2f MB)\n", filepath.Base(modelPath), float64(info.Size())/(1024*1024))
	return true
}

func tryLoad(cfg *config.Config, log logrus.FieldLogger) {
	dc, err := cfg.Detector()
	if err != nil {
		fmt.Printf("✗ Invalid detector configuration: %v\n", err)
		return
	}
	detector, err := detectors.New(dc, log)
	if err != nil {
		fmt.Printf("✗ Error loading model: %v\n", err)
		return
	}
	defer detector.Close()
	fmt.Println("✓ Model loads successfully!")
	fmt.Printf("✓ Model classes: %v\n", detector.Labels())
}

func names(entries []os.DirEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open weights")
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "create model directory")
	}
	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "create model file")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrap(err, "copy weights")
	}
	return out.Close()
}
