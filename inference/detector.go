// Package inference - Detector contract, model capability and ONNX Runtime sessions.
package inference

import (
	"context"

	"github.com/nvr-ai/go-targeting/common"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrModelUnavailable is returned when no detection model could be loaded.
var ErrModelUnavailable = errors.New("model not loaded")

// Detector runs object detection on a single decoded image.
type Detector interface {
	// Detect returns raw detections with pixel coordinates in the space of img,
	// keeping only those with confidence >= confidence.
	Detect(ctx context.Context, img gocv.Mat, confidence float32) ([]common.BoundingBox, error)
	// Labels returns the class names indexed by class id.
	Labels() []string
	// Close releases the model.
	Close() error
}

// Capability is the optional detection capability of a running process.
//
// It is built once at startup and read-only afterwards, so it is safe to share
// between request handlers.
type Capability struct {
	detector Detector
	reason   error
}

// NewCapability wraps a loaded detector.
func NewCapability(detector Detector) *Capability {
	if detector == nil {
		return Unavailable(nil)
	}
	return &Capability{detector: detector}
}

// Unavailable records that no detector could be loaded and why.
//
// Arguments:
//   - reason: The load failure. Wrapped with ErrModelUnavailable when it does not already match it.
//
// Returns:
//   - *Capability: A capability whose Get always reports false.
func Unavailable(reason error) *Capability {
	switch {
	case reason == nil:
		reason = ErrModelUnavailable
	case !errors.Is(reason, ErrModelUnavailable):
		reason = errors.Wrap(ErrModelUnavailable, reason.Error())
	}
	return &Capability{reason: reason}
}

// Get returns the detector and whether one is loaded.
func (c *Capability) Get() (Detector, bool) {
	if c == nil || c.detector == nil {
		return nil, false
	}
	return c.detector, true
}

// Available reports whether a detector is loaded.
func (c *Capability) Available() bool {
	_, ok := c.Get()
	return ok
}

// Reason returns why the capability is unavailable, or nil when a detector is loaded.
func (c *Capability) Reason() error {
	if c == nil {
		return ErrModelUnavailable
	}
	return c.reason
}

// Close releases the detector if one is loaded.
func (c *Capability) Close() error {
	if d, ok := c.Get(); ok {
		return d.Close()
	}
	return nil
}
