package images

import (
	"crypto/md5"
	"fmt"
	"image/color"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum generates a deterministic checksum over the pixel data of a Mat.
//
// Two Mats with the same size, type and pixels produce the same checksum, which makes
// it a cheap way to assert that an image was left untouched.
//
// Arguments:
// - mat: The Mat to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string, or "empty" for an empty Mat.
//
// @example
// before := ComputeMatChecksum(frame)
// annotate(frame.Clone())
// same := before == ComputeMatChecksum(frame)
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	// Non-continuous Mats (ROIs) need a compact copy before their bytes are addressable.
	src := mat
	if !mat.IsContinuous() {
		src = mat.Clone()
		defer src.Close()
	}

	data, err := src.DataPtrUint8()
	if err != nil {
		return "empty"
	}
	hash := md5.New()
	fmt.Fprintf(hash, "%dx%d:%d;", src.Cols(), src.Rows(), src.Type())
	hash.Write(data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}

// NewSolidFrame creates a BGR frame filled with a single color.
//
// Arguments:
// - width: The frame width in pixels.
// - height: The frame height in pixels.
// - c: The fill color. Alpha is ignored.
//
// Returns:
// - A CV_8UC3 Mat. The caller owns it and must Close it.
func NewSolidFrame(width, height int, c color.RGBA) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0),
		height, width, gocv.MatTypeCV8UC3,
	)
}
