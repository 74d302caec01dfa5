// Package detectors - YOLOv8 detector backends on ONNX Runtime and OpenCV DNN.
package detectors

import (
	"image"

	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/inference/providers"
	"github.com/nvr-ai/go-targeting/models"
	"github.com/nvr-ai/go-targeting/models/postprocess"
	"github.com/nvr-ai/go-targeting/models/yolov8"
)

// Config represents the configuration of a detector backend.
type Config struct {
	// Backend selects the runtime that executes the model.
	Backend inference.Backend `json:"backend" yaml:"backend"`

	// ModelPath is the exported ONNX model file.
	ModelPath string `json:"model_path" yaml:"model_path"`

	// LibraryPath is the onnxruntime shared library. Empty selects the platform default.
	LibraryPath string `json:"library_path" yaml:"library_path"`

	// Classes names the model's class ids.
	Classes *models.OutputClassSet `json:"-" yaml:"-"`

	// InputShape is the model input size (width, height) used when the model does not fix it.
	InputShape image.Point `json:"input_shape" yaml:"input_shape"`

	// NMS controls Non-Maximum Suppression.
	NMS postprocess.NMSConfig `json:"nms" yaml:"nms"`

	// MaxDetections caps detections per image.
	MaxDetections int `json:"max_detections" yaml:"max_detections"`

	// Optimization holds the onnxruntime session settings.
	Optimization providers.OptimizationConfig `json:"optimization" yaml:"optimization"`
}

// DefaultConfig returns a configuration for a 640x640 single-class weed model.
//
// @example
// config := DefaultConfig()
// config.ModelPath = "models/best.onnx"
// detector, err := New(config, log)
func DefaultConfig() Config {
	return Config{
		Backend:       inference.BackendONNXRuntime,
		ModelPath:     "models/best.onnx",
		Classes:       models.NewOutputClassSet(models.ModelFamilyWeed, []string{"weed"}),
		InputShape:    image.Point{X: 640, Y: 640},
		NMS:           postprocess.DefaultNMSConfig(),
		MaxDetections: yolov8.DefaultMaxDetections,
		Optimization:  providers.DefaultOptimizationConfig(),
	}
}

func (c Config) classes() *models.OutputClassSet {
	if c.Classes == nil {
		return models.NewOutputClassSet(models.ModelFamilyWeed, []string{"weed"})
	}
	return c.Classes
}

func (c Config) inputShape() image.Point {
	if c.InputShape.X <= 0 || c.InputShape.Y <= 0 {
		return image.Point{X: 640, Y: 640}
	}
	return c.InputShape
}
