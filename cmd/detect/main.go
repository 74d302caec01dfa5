// Command detect runs the weed detector on one image and prints laser targets.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/nvr-ai/go-targeting/config"
	"github.com/nvr-ai/go-targeting/images"
	"github.com/nvr-ai/go-targeting/inference/detectors"
	"github.com/nvr-ai/go-targeting/logging"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/nvr-ai/go-targeting/util"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath string
		imagePath  string
		modelPath  string
		backend    string
		dataYAML   string
		confidence float64
		outputPath string
		jsonPath   string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&imagePath, "image", "", "Path to input image (required)")
	flag.StringVar(&modelPath, "model", "", "Path to ONNX model (default from config)")
	flag.StringVar(&backend, "backend", "", "Inference backend: onnxruntime or opencv")
	flag.StringVar(&dataYAML, "data", "", "Dataset data.yaml with the class names")
	flag.Float64Var(&confidence, "conf", 0, "Confidence threshold (default from config)")
	flag.StringVar(&outputPath, "output", "output.jpg", "Annotated image path")
	flag.StringVar(&jsonPath, "json", "", "Also write the detections as JSON to this path")
	flag.Parse()

	if imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if backend != "" {
		cfg.Model.Backend = backend
	}
	if dataYAML != "" {
		cfg.Model.DataYAML = dataYAML
	}
	if confidence > 0 {
		cfg.Model.Confidence = confidence
	}

	log, logFile, err := logging.New(cfg.Log)
	if err != nil {
		logrus.WithError(err).Fatal("failed to initialize logging")
	}
	defer logFile.Close()

	if err := run(cfg, imagePath, outputPath, jsonPath, log); err != nil {
		log.WithError(err).Fatal("detection failed")
	}
}

func run(cfg *config.Config, imagePath, outputPath, jsonPath string, log logrus.FieldLogger) error {
	dc, err := cfg.Detector()
	if err != nil {
		return err
	}
	detector, err := detectors.New(dc, log)
	if err != nil {
		return err
	}
	defer detector.Close()
	fmt.Printf("Model loaded from: %s\n", dc.ModelPath)

	file, err := util.LoadImageFile(imagePath)
	if err != nil {
		return err
	}
	img, err := images.Decode(imagePath, file.Data)
	if err != nil {
		return err
	}
	defer img.Close()

	transform, err := shaper.NewTransform(cfg.Transform)
	if err != nil {
		return err
	}

	fmt.Printf("Processing image: %s\n", imagePath)
	boxes, err := detector.Detect(context.Background(), img, float32(cfg.Model.Confidence))
	if err != nil {
		return err
	}

	set, annotated, err := shaper.New(shaper.WithTransform(transform)).ShapeImage(img, boxes)
	if err != nil {
		return err
	}
	defer annotated.Close()

	format, ok := images.FormatFromFilename(outputPath)
	if !ok {
		format = images.FormatJPEG
	}
	encoded, err := images.Encode(format, annotated)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, encoded, 0o644); err != nil {
		return err
	}

	printSet(set)
	fmt.Printf("\nAnnotated image saved to: %s\n", outputPath)

	if jsonPath != "" {
		raw, err := json.MarshalIndent(set, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
			return err
		}
		fmt.Printf("Detections written to: %s\n", jsonPath)
	}
	return nil
}

func printSet(set shaper.DetectionSet) {
	rule := strings.Repeat("=", 50)
	fmt.Printf("\n%s\nDetection Results:\n%s\n", rule, rule)
	fmt.Printf("Total weeds detected: %d\n", set.TotalCount)
	fmt.Printf("\nDetailed detections:\n")
	for i, d := range set.Detections {
		fmt.Printf("\nWeed #%d:\n", i+1)
		fmt.Printf("  Class: %s\n", d.Class)
		fmt.Printf("  Confidence: %.2f%%\n", d.Confidence*100)
		fmt.Printf("  Pixel Center: (%d, %d)\n", d.Center.X, d.Center.Y)
		fmt.Printf("  Laser Coords: (%d, %d) %s\n", d.TargetCoordinates.X, d.TargetCoordinates.Y, d.TargetCoordinates.Unit)
	}
}
