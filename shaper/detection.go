// Package shaper - Turns raw detector output into targeting results.
//
// A Shaper converts raw boxes into Detections with integer pixel geometry, a
// normalized center and target coordinates for the actuator, and draws them
// onto a copy of the source image.
package shaper

import (
	"encoding/json"
	"math"
	"strconv"
)

// ImageSize is the pixel size of the analysed image.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// BoundingBox is the integer pixel geometry of a detection.
type BoundingBox struct {
	X1     int `json:"x1"`
	Y1     int `json:"y1"`
	X2     int `json:"x2"`
	Y2     int `json:"y2"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center is the box center in pixels and as a fraction of the image size.
type Center struct {
	X           int     `json:"x"`
	Y           int     `json:"y"`
	XNormalized float64 `json:"x_normalized"`
	YNormalized float64 `json:"y_normalized"`
}

// TargetCoordinates is a center expressed in the actuator's coordinate space.
type TargetCoordinates struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Unit string `json:"unit"`
}

// Detection is a single shaped result. It is never modified after Shape returns it.
type Detection struct {
	Class             string            `json:"class"`
	Confidence        float64           `json:"confidence"`
	BBox              BoundingBox       `json:"bbox"`
	Center            Center            `json:"center"`
	TargetCoordinates TargetCoordinates `json:"target_coordinates"`
}

// MarshalJSON also writes the target coordinates under laser_coordinates,
// the name read by the upload page and earlier clients.
func (d Detection) MarshalJSON() ([]byte, error) {
	type plain Detection
	return json.Marshal(struct {
		plain
		LaserCoordinates TargetCoordinates `json:"laser_coordinates"`
	}{plain: plain(d), LaserCoordinates: d.TargetCoordinates})
}

// DetectionSet holds the detections of one image in detector order.
type DetectionSet struct {
	Detections []Detection `json:"detections"`
	TotalCount int         `json:"total_count"`
	ImageSize  ImageSize   `json:"image_size"`
}

// trunc converts toward zero.
func trunc(v float64) int {
	return int(math.Trunc(v))
}

// widen converts a float32 score to the float64 with the same shortest decimal
// form, so 0.9 is reported as 0.9 rather than 0.8999999761581421.
func widen(v float32) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
	if err != nil {
		return float64(v)
	}
	return f
}
