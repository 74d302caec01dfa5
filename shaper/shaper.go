package shaper

import (
	"github.com/nvr-ai/go-targeting/common"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrInvalidImageSize is returned when an image has no pixels to normalize against.
var ErrInvalidImageSize = errors.New("image width and height must be positive")

// Shaper converts raw detections into DetectionSets and annotated images.
// It holds no per-call state and is safe for concurrent use.
type Shaper struct {
	transform CoordinateTransform
	annotator *Annotator
}

// Option configures a Shaper.
type Option func(*Shaper)

// WithTransform replaces the default 0..1000 grid transform.
func WithTransform(t CoordinateTransform) Option {
	return func(s *Shaper) {
		if t != nil {
			s.transform = t
		}
	}
}

// WithAnnotator replaces the default annotator.
func WithAnnotator(a *Annotator) Option {
	return func(s *Shaper) {
		if a != nil {
			s.annotator = a
		}
	}
}

// New creates a Shaper.
//
// @example
// s := shaper.New(shaper.WithTransform(shaper.AffineTransform{ScaleX: 600, ScaleY: 400, Unit: "mm"}))
// set, err := s.Shape(shaper.ImageSize{Width: 640, Height: 480}, boxes)
func New(opts ...Option) *Shaper {
	s := &Shaper{
		transform: DefaultTransform(),
		annotator: NewAnnotator(DefaultStyle()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Shape converts raw boxes into a DetectionSet.
//
// Arguments:
//   - size: The pixel size of the image the boxes belong to.
//   - boxes: Raw detections. Their order is preserved.
//
// Returns:
//   - DetectionSet: One Detection per box. Detections is empty, never nil, without boxes.
//   - error: ErrInvalidImageSize when either dimension is not positive.
func (s *Shaper) Shape(size ImageSize, boxes []common.BoundingBox) (DetectionSet, error) {
	if size.Width <= 0 || size.Height <= 0 {
		return DetectionSet{}, errors.Wrapf(ErrInvalidImageSize, "got %dx%d", size.Width, size.Height)
	}

	detections := make([]Detection, 0, len(boxes))
	for i := range boxes {
		detections = append(detections, s.detection(size, &boxes[i]))
	}

	return DetectionSet{
		Detections: detections,
		TotalCount: len(detections),
		ImageSize:  size,
	}, nil
}

func (s *Shaper) detection(size ImageSize, b *common.BoundingBox) Detection {
	x1, y1 := float64(b.X1), float64(b.Y1)
	x2, y2 := float64(b.X2), float64(b.Y2)

	cx := trunc((x1 + x2) / 2)
	cy := trunc((y1 + y2) / 2)
	center := Center{
		X:           cx,
		Y:           cy,
		XNormalized: float64(cx) / float64(size.Width),
		YNormalized: float64(cy) / float64(size.Height),
	}

	return Detection{
		Class:      b.Label,
		Confidence: widen(b.Confidence),
		BBox: BoundingBox{
			X1:     trunc(x1),
			Y1:     trunc(y1),
			X2:     trunc(x2),
			Y2:     trunc(y2),
			Width:  trunc(x2 - x1),
			Height: trunc(y2 - y1),
		},
		Center:            center,
		TargetCoordinates: s.transform.Transform(center),
	}
}

// ShapeImage shapes boxes against the size of img and draws them on a copy.
//
// Arguments:
//   - img: The analysed image. It is not modified.
//   - boxes: Raw detections in img pixels.
//
// Returns:
//   - DetectionSet: The shaped detections.
//   - gocv.Mat: The annotated copy. The caller owns it and must Close it.
//   - error: ErrInvalidImageSize for an empty image.
func (s *Shaper) ShapeImage(img gocv.Mat, boxes []common.BoundingBox) (DetectionSet, gocv.Mat, error) {
	if img.Empty() {
		return DetectionSet{}, gocv.NewMat(), errors.Wrap(ErrInvalidImageSize, "empty image")
	}

	set, err := s.Shape(ImageSize{Width: img.Cols(), Height: img.Rows()}, boxes)
	if err != nil {
		return DetectionSet{}, gocv.NewMat(), err
	}

	annotated := img.Clone()
	s.annotator.Annotate(&annotated, set)
	return set, annotated, nil
}
