// Package service - Upload-to-response orchestration behind the HTTP handlers.
package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-targeting/images"
	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/profiler"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedFormat is returned for file names outside the image whitelist.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// DetectionError wraps failures of the detector itself.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return "detection failed: " + e.Err.Error()
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// DetectRequest is one uploaded image.
type DetectRequest struct {
	Filename   string
	Data       []byte
	Confidence float32
}

// DetectResult is everything the transport layer needs to respond.
type DetectResult struct {
	RequestID string
	// StoredName is the upload's file name on disk, empty without a store.
	StoredName string
	// AnnotatedName is the annotated image's file name in the results directory.
	AnnotatedName string
	Set           shaper.DetectionSet
	Original      *images.Image
	Annotated     *images.Image
}

// DetectionService runs decode, detect, shape and encode for an upload.
type DetectionService struct {
	capability *inference.Capability
	shaper     *shaper.Shaper
	store      *ResultStore
	profiler   *profiler.RuntimeProfiler
	log        logrus.FieldLogger
}

// NewDetectionService wires the pipeline. store may be nil to skip persistence.
func NewDetectionService(
	capability *inference.Capability,
	s *shaper.Shaper,
	store *ResultStore,
	rp *profiler.RuntimeProfiler,
	log logrus.FieldLogger,
) *DetectionService {
	if rp == nil {
		rp = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})
	}
	return &DetectionService{
		capability: capability,
		shaper:     s,
		store:      store,
		profiler:   rp,
		log:        log,
	}
}

// Available reports whether a detector is loaded.
func (s *DetectionService) Available() bool {
	return s.capability.Available()
}

// Reason returns why detection is unavailable, or nil.
func (s *DetectionService) Reason() error {
	return s.capability.Reason()
}

// Detect runs the full pipeline for one upload.
//
// Arguments:
//   - ctx: The request context.
//   - req: The upload.
//
// Returns:
//   - *DetectResult: The shaped detections and the encoded images.
//   - error: inference.ErrModelUnavailable without a detector, ErrUnsupportedFormat
//     for a rejected extension, a *images.DecodeError for unreadable bytes and
//     a *DetectionError for detector failures.
func (s *DetectionService) Detect(ctx context.Context, req DetectRequest) (*DetectResult, error) {
	detector, ok := s.capability.Get()
	if !ok {
		return nil, s.capability.Reason()
	}

	format, ok := images.FormatFromFilename(req.Filename)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", req.Filename)
	}

	result := &DetectResult{RequestID: uuid.NewString()}
	log := s.log.WithFields(logrus.Fields{
		"request_id": result.RequestID,
		"file":       req.Filename,
	})

	if s.store != nil {
		name, err := s.store.SaveUpload(result.RequestID, req.Filename, req.Data)
		if err != nil {
			return nil, err
		}
		result.StoredName = name
	}

	done := s.profiler.StartOperation("decode")
	img, err := images.Decode(req.Filename, req.Data)
	done()
	if err != nil {
		return nil, err
	}
	defer img.Close()

	result.Original = &images.Image{
		Format: format,
		Data:   req.Data,
		Width:  img.Cols(),
		Height: img.Rows(),
	}

	done = s.profiler.StartOperation("inference")
	boxes, err := detector.Detect(ctx, img, req.Confidence)
	done()
	if err != nil {
		return nil, &DetectionError{Err: err}
	}
	for i := range boxes {
		log.WithField("box", boxes[i].String()).Debug("raw detection")
	}

	done = s.profiler.StartOperation("shape")
	set, annotated, err := s.shaper.ShapeImage(img, boxes)
	done()
	if err != nil {
		annotated.Close()
		return nil, err
	}
	defer annotated.Close()
	result.Set = set

	done = s.profiler.StartOperation("encode")
	result.Annotated, err = images.ToImage(format, annotated)
	done()
	if err != nil {
		return nil, err
	}

	if s.store != nil && result.StoredName != "" {
		if result.AnnotatedName, err = s.store.SaveAnnotated(result.StoredName, result.Annotated.Data); err != nil {
			return nil, err
		}
	}

	s.profiler.RecordMetric("detections", float64(set.TotalCount))
	log.WithFields(logrus.Fields{
		"detections": set.TotalCount,
		"confidence": req.Confidence,
	}).Info("image processed")
	return result, nil
}
