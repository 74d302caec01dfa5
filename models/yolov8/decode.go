// Package yolov8 - Decodes YOLOv8 detection head outputs.
//
// A YOLOv8 head emits one tensor of shape (1, 4+classes, anchors). Each anchor
// column holds the box center, width and height in model input pixels followed
// by one score per class. There is no separate objectness score.
package yolov8

import (
	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-targeting/common"
	"github.com/nvr-ai/go-targeting/models"
	"github.com/nvr-ai/go-targeting/models/postprocess"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// DefaultMaxDetections caps the detections kept per image.
const DefaultMaxDetections = 300

// Params describes how raw head outputs map back to the original image.
type Params struct {
	// InputWidth and InputHeight are the model input dimensions.
	InputWidth, InputHeight int
	// ImageWidth and ImageHeight are the original image dimensions.
	ImageWidth, ImageHeight int
	// Confidence is the minimum class score to keep.
	Confidence float32
	// Classes names the class ids. Ids outside the set get a generated label.
	Classes *models.OutputClassSet
	// MaxDetections caps the result after NMS. Zero selects DefaultMaxDetections.
	MaxDetections int
}

func (p Params) validate() error {
	if p.InputWidth <= 0 || p.InputHeight <= 0 {
		return errors.Errorf("invalid model input size %dx%d", p.InputWidth, p.InputHeight)
	}
	if p.ImageWidth <= 0 || p.ImageHeight <= 0 {
		return errors.Errorf("invalid image size %dx%d", p.ImageWidth, p.ImageHeight)
	}
	if p.Classes == nil {
		return errors.New("class set is required")
	}
	return nil
}

// Layout returns the attribute count and anchor count of an output shape.
//
// Arguments:
//   - shape: The output tensor shape, (1, attrs, anchors) or (attrs, anchors).
//
// Returns:
//   - attrs: 4 box values plus one score per class.
//   - anchors: The number of candidate boxes.
//   - error: An error if the shape is not a YOLOv8 head.
func Layout(shape []int64) (attrs, anchors int, err error) {
	switch {
	case len(shape) == 3 && shape[0] == 1:
		attrs, anchors = int(shape[1]), int(shape[2])
	case len(shape) == 2:
		attrs, anchors = int(shape[0]), int(shape[1])
	default:
		return 0, 0, errors.Errorf("unexpected output shape %v", shape)
	}
	if attrs < 5 || anchors < 1 {
		return 0, 0, errors.Errorf("output shape %v has no class scores", shape)
	}
	return attrs, anchors, nil
}

// transpose turns the attribute-major head output into one row per anchor.
// The input is copied first because Transpose works in place.
func transpose(output []float32, attrs, anchors int) ([]float32, error) {
	backing := make([]float32, attrs*anchors)
	copy(backing, output)

	dense := tensor.New(tensor.WithShape(attrs, anchors), tensor.WithBacking(backing))
	if err := dense.T(); err != nil {
		return nil, errors.Wrap(err, "transpose output")
	}
	if err := dense.Transpose(); err != nil {
		return nil, errors.Wrap(err, "materialize transpose")
	}
	rows, ok := dense.Data().([]float32)
	if !ok {
		return nil, errors.New("transposed output is not float32")
	}
	return rows, nil
}

// Candidates extracts every anchor whose best class score reaches the confidence
// threshold, rescaled to original image pixels. No NMS is applied.
//
// Arguments:
//   - output: The raw head output data.
//   - shape: The head output shape.
//   - p: Decode parameters.
//
// Returns:
//   - []common.BoundingBox: Candidate detections in anchor order.
//   - error: An error if the output does not match the shape.
func Candidates(output []float32, shape []int64, p Params) ([]common.BoundingBox, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	attrs, anchors, err := Layout(shape)
	if err != nil {
		return nil, err
	}
	if len(output) < attrs*anchors {
		return nil, errors.Errorf("output holds %d values, shape %v needs %d", len(output), shape, attrs*anchors)
	}

	rows, err := transpose(output[:attrs*anchors], attrs, anchors)
	if err != nil {
		return nil, err
	}

	sx := float32(p.ImageWidth) / float32(p.InputWidth)
	sy := float32(p.ImageHeight) / float32(p.InputHeight)

	boxes := make([]common.BoundingBox, 0, 64)
	for a := 0; a < anchors; a++ {
		row := rows[a*attrs : (a+1)*attrs]

		classID := 0
		score := math32.Inf(-1)
		for c, s := range row[4:] {
			if s > score {
				score = s
				classID = c
			}
		}
		if score < p.Confidence {
			continue
		}

		cx, cy, w, h := row[0], row[1], row[2], row[3]
		boxes = append(boxes, common.BoundingBox{
			Label:      p.Classes.Name(classID),
			ClassID:    classID,
			Confidence: score,
			X1:         (cx - w/2) * sx,
			Y1:         (cy - h/2) * sy,
			X2:         (cx + w/2) * sx,
			Y2:         (cy + h/2) * sy,
		})
	}
	return boxes, nil
}

// Decode extracts candidates and applies class-aware greedy NMS.
//
// Returns:
//   - []common.BoundingBox: Detections sorted by descending confidence. Never nil.
//   - error: An error if the output cannot be decoded.
func Decode(output []float32, shape []int64, p Params, nms postprocess.NMSConfig) ([]common.BoundingBox, error) {
	candidates, err := Candidates(output, shape, p)
	if err != nil {
		return nil, err
	}
	kept := postprocess.ApplyGreedyNMS(candidates, nms)
	return Limit(kept, p.MaxDetections), nil
}

// Limit truncates detections to limit. Zero selects DefaultMaxDetections.
func Limit(detections []common.BoundingBox, limit int) []common.BoundingBox {
	if limit <= 0 {
		limit = DefaultMaxDetections
	}
	if len(detections) > limit {
		return detections[:limit]
	}
	return detections
}
