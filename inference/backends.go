package inference

import (
	"strings"

	"github.com/pkg/errors"
)

// Backend is the runtime used to execute the detection model.
type Backend string

const (
	// BackendONNXRuntime runs the model through the onnxruntime library.
	BackendONNXRuntime Backend = "onnxruntime"
	// BackendOpenCV runs the model through the OpenCV DNN module.
	BackendOpenCV Backend = "opencv"
)

// Backends is a list of all supported backends.
var Backends = []Backend{BackendONNXRuntime, BackendOpenCV}

// ParseBackend resolves a backend name from configuration. The empty string selects onnxruntime.
func ParseBackend(name string) (Backend, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return BackendONNXRuntime, nil
	}
	for _, b := range Backends {
		if string(b) == name {
			return b, nil
		}
	}
	return "", errors.Errorf("unknown backend %q", name)
}
