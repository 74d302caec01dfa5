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

// OpenCVDetector runs a YOLOv8 model through the OpenCV DNN module.
type OpenCVDetector struct {
	config     Config
	net        gocv.Net
	inputShape image.Point
	log        logrus.FieldLogger
	mu         sync.Mutex
	closed     bool
}

// NewOpenCVDetector loads the model with gocv.ReadNetFromONNX.
//
// Arguments:
//   - config: The configuration for the detector.
//   - log: The logger.
//
// Returns:
//   - *OpenCVDetector: The detector.
//   - error: An error wrapping inference.ErrModelUnavailable if OpenCV cannot read the model.
func NewOpenCVDetector(config Config, log logrus.FieldLogger) (*OpenCVDetector, error) {
	net := gocv.ReadNetFromONNX(config.ModelPath)
	if net.Empty() {
		net.Close()
		return nil, errors.Wrapf(inference.ErrModelUnavailable, "opencv could not read %s", config.ModelPath)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendOpenCV); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set preferable backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "set preferable target")
	}

	return &OpenCVDetector{
		config:     config,
		net:        net,
		inputShape: config.inputShape(),
		log:        log,
	}, nil
}

// Detect runs inference on the input image.
//
// Candidates are suppressed with gocv.NMSBoxes, which is class-agnostic.
func (d *OpenCVDetector) Detect(ctx context.Context, img gocv.Mat, confidence float32) ([]common.BoundingBox, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector closed")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputShape, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	if output.Empty() {
		return nil, errors.New("model produced no output")
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read model output")
	}

	dims := output.Size()
	shape := make([]int64, len(dims))
	for i, v := range dims {
		shape[i] = int64(v)
	}

	candidates, err := yolov8.Candidates(data, shape, yolov8.Params{
		InputWidth:  d.inputShape.X,
		InputHeight: d.inputShape.Y,
		ImageWidth:  img.Cols(),
		ImageHeight: img.Rows(),
		Confidence:  confidence,
		Classes:     d.config.classes(),
	})
	if err != nil {
		return nil, err
	}

	return yolov8.Limit(suppress(candidates, confidence, d.config.NMS.IoUThreshold), d.config.MaxDetections), nil
}

// suppress applies OpenCV NMS and returns the kept boxes in the order NMSBoxes reports them.
func suppress(candidates []common.BoundingBox, confidence, iou float32) []common.BoundingBox {
	kept := make([]common.BoundingBox, 0, len(candidates))
	if len(candidates) == 0 {
		return kept
	}

	rects := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i := range candidates {
		rects[i] = candidates[i].ToRect()
		scores[i] = candidates[i].Confidence
	}

	for _, idx := range gocv.NMSBoxes(rects, scores, confidence, iou) {
		kept = append(kept, candidates[idx])
	}
	return kept
}

// Labels returns the class names indexed by class id.
func (d *OpenCVDetector) Labels() []string {
	return d.config.classes().Names()
}

// Close releases resources
func (d *OpenCVDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.net.Close(); err != nil {
		return errors.Wrap(err, "close net")
	}
	d.log.Debug("opencv detector closed")
	return nil
}
