// Package common - Types shared between the detector backends and the result shaper.
package common

import (
	"fmt"
	"image"

	"github.com/chewxy/math32"
)

// BoundingBox is a single raw detection as emitted by a detector backend.
//
// Coordinates are in pixels of the original image, axis-aligned, with
// (X1, Y1) the top-left and (X2, Y2) the bottom-right corner.
type BoundingBox struct {
	Label          string
	ClassID        int
	Confidence     float32
	X1, Y1, X2, Y2 float32
}

// String formats the bounding box information for display.
//
// Returns:
// - A formatted string containing object class, confidence, and coordinates.
//
// @example
// box := BoundingBox{Label: "weed", Confidence: 0.95, X1: 100, Y1: 100, X2: 200, Y2: 300}
// fmt.Println(box.String()) // Object weed (confidence 0.950000): (100.00, 100.00), (200.00, 300.00)
func (b *BoundingBox) String() string {
	return fmt.Sprintf("Object %s (confidence %f): (%.2f, %.2f), (%.2f, %.2f)",
		b.Label, b.Confidence, b.X1, b.Y1, b.X2, b.Y2)
}

// ToRect converts the bounding box to an image.Rectangle.
//
// This loses precision, but the box has already been scaled up to the original
// image's dimensions, so only fractional pixels around the edges are dropped.
//
// Returns:
// - An image.Rectangle with canonicalized coordinates.
//
// @example
// box := BoundingBox{X1: 100.5, Y1: 100.5, X2: 200.5, Y2: 300.5}
// rect := box.ToRect() // (100,100)-(200,300)
func (b *BoundingBox) ToRect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// Width returns the horizontal extent of the box in pixels.
func (b *BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns the vertical extent of the box in pixels.
func (b *BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Area returns the floating point area of the box. Degenerate boxes have zero area.
func (b *BoundingBox) Area() float32 {
	return math32.Max(0, b.Width()) * math32.Max(0, b.Height())
}

// Intersection calculates the overlapping area between two bounding boxes.
//
// Arguments:
// - other: The other bounding box to calculate intersection with.
//
// Returns:
// - The area of intersection in pixels as float32.
//
// @example
// box1 := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
// box2 := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
// area := box1.Intersection(&box2) // 2500
func (b *BoundingBox) Intersection(other *BoundingBox) float32 {
	w := math32.Min(b.X2, other.X2) - math32.Max(b.X1, other.X1)
	h := math32.Min(b.Y2, other.Y2) - math32.Max(b.Y1, other.Y1)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Union calculates the area covered by either of the two bounding boxes.
func (b *BoundingBox) Union(other *BoundingBox) float32 {
	return b.Area() + other.Area() - b.Intersection(other)
}

// IoU calculates the Intersection over Union between two bounding boxes.
//
// This metric is used for Non-Maximum Suppression (NMS) to remove duplicate detections.
//
// Arguments:
// - other: The other bounding box to calculate IoU with.
//
// Returns:
// - The IoU value between 0 and 1. Zero when the union is empty.
//
// @example
// box1 := BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}
// box2 := BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}
// iou := box1.IoU(&box2) // ~0.143 (2500/17500)
func (b *BoundingBox) IoU(other *BoundingBox) float32 {
	union := b.Union(other)
	if union <= 0 {
		return 0
	}
	return b.Intersection(other) / union
}
