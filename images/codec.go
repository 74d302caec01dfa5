package images

import (
	"fmt"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrDecode is the cause of every DecodeError.
var ErrDecode = errors.New("image could not be decoded")

// DecodeError reports malformed or unreadable image input.
type DecodeError struct {
	// Source names the input, usually the uploaded file name.
	Source string
	// Err is the underlying decoder error, if OpenCV reported one.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Source, ErrDecode)
}

// Unwrap lets errors.Is match ErrDecode as well as the decoder error.
func (e *DecodeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDecode, e.Err}
	}
	return []error{ErrDecode}
}

// Decode reads an encoded image into a BGR gocv.Mat.
//
// Arguments:
// - source: A name for the input used in error messages.
// - data: The encoded image bytes.
//
// Returns:
// - The decoded Mat. The caller owns it and must Close it.
// - A *DecodeError when the bytes are empty or not a supported image.
func Decode(source string, data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), &DecodeError{Source: source, Err: errors.New("image data is empty")}
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		mat.Close()
		return gocv.NewMat(), &DecodeError{Source: source, Err: err}
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), &DecodeError{Source: source}
	}
	return mat, nil
}

// Encode serializes a Mat in the given format.
//
// Arguments:
// - format: The output format.
// - mat: The image to encode.
//
// Returns:
// - The encoded bytes, copied out of OpenCV's buffer.
// - An error if encoding fails.
func Encode(format ImageFormat, mat gocv.Mat) ([]byte, error) {
	if mat.Empty() {
		return nil, errors.New("cannot encode an empty image")
	}

	buf, err := gocv.IMEncode(format.FileExt(), mat)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", format)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// ToImage encodes a Mat and wraps it with its dimensions.
func ToImage(format ImageFormat, mat gocv.Mat) (*Image, error) {
	data, err := Encode(format, mat)
	if err != nil {
		return nil, err
	}
	return &Image{Format: format, Data: data, Width: mat.Cols(), Height: mat.Rows()}, nil
}
