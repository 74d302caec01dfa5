package detectors

import (
	"os"

	"github.com/nvr-ai/go-targeting/inference"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New loads the model with the configured backend.
//
// Arguments:
//   - config: The detector configuration.
//   - log: The logger for load progress and provider warnings.
//
// Returns:
//   - inference.Detector: The loaded detector.
//   - error: An error wrapping inference.ErrModelUnavailable when the model or runtime cannot be loaded.
func New(config Config, log logrus.FieldLogger) (inference.Detector, error) {
	if config.ModelPath == "" {
		return nil, errors.Wrap(inference.ErrModelUnavailable, "model path is empty")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrapf(inference.ErrModelUnavailable, "model not found at %s", config.ModelPath)
	}

	log = log.WithFields(logrus.Fields{
		"backend": config.Backend,
		"model":   config.ModelPath,
	})

	switch config.Backend {
	case inference.BackendONNXRuntime, "":
		return NewONNXDetector(config, log)
	case inference.BackendOpenCV:
		return NewOpenCVDetector(config, log)
	default:
		return nil, errors.Errorf("unsupported backend %q", config.Backend)
	}
}

// Load is New with degraded-mode handling: a load failure is logged and
// reported through an unavailable capability instead of an error.
func Load(config Config, log logrus.FieldLogger) *inference.Capability {
	detector, err := New(config, log)
	if err != nil {
		log.WithError(err).Warn("detection model unavailable, running without detection")
		return inference.Unavailable(err)
	}
	log.WithField("classes", detector.Labels()).Info("detection model loaded")
	return inference.NewCapability(detector)
}
