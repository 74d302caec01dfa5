// Package providers - ONNX Runtime execution providers and session options.
package providers

import (
	"strings"

	"github.com/pkg/errors"
)

// Provider represents different ONNX Runtime execution providers
type Provider string

const (
	// CPUExecutionProvider uses CPU for inference
	CPUExecutionProvider Provider = "cpu"

	// CUDAExecutionProvider uses NVIDIA CUDA for GPU acceleration
	CUDAExecutionProvider Provider = "cuda"

	// TensorRTExecutionProvider uses NVIDIA TensorRT for optimized inference
	TensorRTExecutionProvider Provider = "tensorrt"

	// DNNLExecutionProvider uses Intel DNNL (oneDNN) for CPU optimization
	DNNLExecutionProvider Provider = "dnnl"

	// CoreMLExecutionProvider uses Apple CoreML for macOS/iOS acceleration
	CoreMLExecutionProvider Provider = "coreml"

	// OpenVINOExecutionProvider uses Intel OpenVINO for inference optimization
	OpenVINOExecutionProvider Provider = "openvino"
)

// Providers lists every execution provider that can be named in configuration.
var Providers = []Provider{
	CPUExecutionProvider,
	CUDAExecutionProvider,
	TensorRTExecutionProvider,
	DNNLExecutionProvider,
	CoreMLExecutionProvider,
	OpenVINOExecutionProvider,
}

// ParseProvider resolves a provider name from configuration.
//
// Arguments:
//   - name: The provider name, case-insensitive.
//
// Returns:
//   - Provider: The matching provider.
//   - error: An error if the name is unknown.
func ParseProvider(name string) (Provider, error) {
	candidate := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, p := range Providers {
		if p == candidate {
			return p, nil
		}
	}
	return "", errors.Errorf("unknown execution provider %q", name)
}

// ExecutionProviderConfig contains configuration for specific execution providers
type ExecutionProviderConfig struct {
	// Provider specifies which execution provider to use
	Provider Provider `json:"provider" yaml:"provider"`

	// Options contains provider-specific configuration options
	Options map[string]string `json:"options" yaml:"options"`

	// Priority determines the order in which providers are tried (higher = first)
	Priority int `json:"priority" yaml:"priority"`

	// Enabled toggles whether this provider should be used
	Enabled bool `json:"enabled" yaml:"enabled"`
}
