package shaper

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// AnnotatorStyle controls how detections are drawn.
type AnnotatorStyle struct {
	BoxColor      color.RGBA
	BoxThickness  int
	MarkerColor   color.RGBA
	MarkerRadius  int
	RingRadius    int
	RingThickness int
	LabelColor    color.RGBA
	LabelScale    float64
	LabelWeight   int
	CoordColor    color.RGBA
	CoordScale    float64
	CoordWeight   int
	Font          gocv.HersheyFont
}

// DefaultStyle draws green boxes, a blue center marker and white center coordinates.
func DefaultStyle() AnnotatorStyle {
	green := color.RGBA{G: 255}
	return AnnotatorStyle{
		BoxColor:      green,
		BoxThickness:  2,
		MarkerColor:   color.RGBA{B: 255},
		MarkerRadius:  5,
		RingRadius:    10,
		RingThickness: 2,
		LabelColor:    green,
		LabelScale:    0.5,
		LabelWeight:   2,
		CoordColor:    color.RGBA{R: 255, G: 255, B: 255},
		CoordScale:    0.4,
		CoordWeight:   1,
		Font:          gocv.FontHersheySimplex,
	}
}

// Annotator draws DetectionSets onto images.
type Annotator struct {
	style AnnotatorStyle
}

// NewAnnotator creates an annotator with the given style.
func NewAnnotator(style AnnotatorStyle) *Annotator {
	return &Annotator{style: style}
}

// Label returns the text drawn above a detection box.
func Label(d Detection) string {
	return fmt.Sprintf("%s: %.2f", d.Class, d.Confidence)
}

// CenterText returns the text drawn next to a detection center.
func CenterText(d Detection) string {
	return fmt.Sprintf("(%d, %d)", d.Center.X, d.Center.Y)
}

// Annotate draws every detection onto dst in detection order. Later drawings cover earlier ones.
func (a *Annotator) Annotate(dst *gocv.Mat, set DetectionSet) {
	st := a.style
	for _, d := range set.Detections {
		center := image.Pt(d.Center.X, d.Center.Y)

		gocv.Rectangle(dst, image.Rect(d.BBox.X1, d.BBox.Y1, d.BBox.X2, d.BBox.Y2), st.BoxColor, st.BoxThickness)

		gocv.Circle(dst, center, st.MarkerRadius, st.MarkerColor, -1)
		gocv.Circle(dst, center, st.RingRadius, st.MarkerColor, st.RingThickness)

		gocv.PutText(dst, Label(d), image.Pt(d.BBox.X1, d.BBox.Y1-10),
			st.Font, st.LabelScale, st.LabelColor, st.LabelWeight)

		gocv.PutText(dst, CenterText(d), image.Pt(d.Center.X-40, d.Center.Y-15),
			st.Font, st.CoordScale, st.CoordColor, st.CoordWeight)
	}
}
