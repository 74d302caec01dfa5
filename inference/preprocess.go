package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// PrepareInput fills a planar RGB float tensor for the model before inference is called.
//
// The image is stretched to the model input size without letterboxing, so detections
// are mapped back by scaling each axis independently.
//
// Arguments:
//   - img: The image to prepare.
//   - size: The model input size (width, height).
//   - dst: The destination tensor data, laid out as [3][height][width].
//
// Returns:
//   - error: An error if the input preparation fails.
func PrepareInput(img image.Image, size image.Point, dst []float32) error {
	if size.X <= 0 || size.Y <= 0 {
		return errors.Errorf("invalid input size %v", size)
	}

	channelSize := size.X * size.Y
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs "+
			"%d (make sure it's the right shape!)", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	bounds := img.Bounds()
	if bounds.Dx() != size.X || bounds.Dy() != size.Y {
		img = resize.Resize(uint(size.X), uint(size.Y), img, resize.Lanczos3)
		bounds = img.Bounds()
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+size.Y; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+size.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}

// PrepareMat converts a BGR Mat into the model input tensor.
//
// Arguments:
//   - mat: A CV_8UC3 BGR image.
//   - size: The model input size (width, height).
//   - dst: The destination tensor data.
//
// Returns:
//   - error: An error if the Mat cannot be converted.
func PrepareMat(mat gocv.Mat, size image.Point, dst []float32) error {
	if mat.Empty() {
		return errors.New("cannot prepare an empty image")
	}
	img, err := mat.ToImage()
	if err != nil {
		return errors.Wrap(err, "convert mat to image")
	}
	return PrepareInput(img, size, dst)
}
