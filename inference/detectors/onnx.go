package detectors

import (
	"context"
	"image"
	"sync"

	"github.com/nvr-ai/go-targeting/common"
	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/models/yolov8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// ONNXDetector runs a YOLOv8 model through onnxruntime.
type ONNXDetector struct {
	config     Config
	session    *inference.Session
	inputShape image.Point
	log        logrus.FieldLogger
	mu         sync.Mutex
}

// NewONNXDetector creates a new ONNX Runtime detector.
//
// Arguments:
//   - config: The configuration for the detector.
//   - log: The logger.
//
// Returns:
//   - *ONNXDetector: The detector.
//   - error: An error wrapping inference.ErrModelUnavailable if the session creation fails.
func NewONNXDetector(config Config, log logrus.FieldLogger) (*ONNXDetector, error) {
	requested := config.inputShape()

	session, err := inference.NewSession(inference.SessionArgs{
		ModelPath:    config.ModelPath,
		LibraryPath:  config.LibraryPath,
		InputWidth:   int64(requested.X),
		InputHeight:  int64(requested.Y),
		Optimization: config.Optimization,
	}, log)
	if err != nil {
		return nil, err
	}

	if len(session.InputShape) != 4 || session.InputShape[1] != 3 {
		session.Close()
		return nil, errors.Wrapf(inference.ErrModelUnavailable, "expected NCHW RGB input, got %v", session.InputShape)
	}
	attrs, _, err := yolov8.Layout(session.OutputShape)
	if err != nil {
		session.Close()
		return nil, errors.Wrap(inference.ErrModelUnavailable, err.Error())
	}
	if classes := attrs - 4; classes != config.classes().Len() {
		log.WithFields(logrus.Fields{
			"model_classes": classes,
			"labels":        config.classes().Len(),
		}).Warn("label count does not match model output, unknown ids get generated labels")
	}

	d := &ONNXDetector{
		config:  config,
		session: session,
		inputShape: image.Point{
			X: int(session.InputShape[3]),
			Y: int(session.InputShape[2]),
		},
		log: log,
	}
	log.WithFields(logrus.Fields{
		"input":  session.InputShape,
		"output": session.OutputShape,
	}).Debug("onnxruntime session ready")
	return d, nil
}

// Detect runs inference on the input image.
//
// Arguments:
//   - ctx: Checked before the model runs.
//   - img: A BGR image.
//   - confidence: The minimum confidence to keep.
//
// Returns:
//   - []common.BoundingBox: Detections in img pixels, highest confidence first.
//   - error: An error if the detection fails.
func (d *ONNXDetector) Detect(ctx context.Context, img gocv.Mat, confidence float32) ([]common.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("detector closed")
	}

	if err := inference.PrepareMat(img, d.inputShape, d.session.Input.GetData()); err != nil {
		return nil, errors.Wrap(err, "failed to prepare input")
	}

	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	return yolov8.Decode(d.session.Output.GetData(), d.session.OutputShape, yolov8.Params{
		InputWidth:    d.inputShape.X,
		InputHeight:   d.inputShape.Y,
		ImageWidth:    img.Cols(),
		ImageHeight:   img.Rows(),
		Confidence:    confidence,
		Classes:       d.config.classes(),
		MaxDetections: d.config.MaxDetections,
	}, d.config.NMS)
}

// Labels returns the class names indexed by class id.
func (d *ONNXDetector) Labels() []string {
	return d.config.classes().Names()
}

// Close releases resources
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil
	}
	err := d.session.Close()
	d.session = nil
	d.log.Debug("onnx detector closed")
	return err
}
