package images

import (
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		expected ImageFormat
		ok       bool
	}{
		{"png", "field.png", FormatPNG, true},
		{"jpg upper case", "field.JPG", FormatJPEG, true},
		{"jpeg", "dir/field.jpeg", FormatJPEG, true},
		{"bmp", "field.bmp", FormatBMP, true},
		{"tiff", "field.tiff", FormatTIFF, true},
		{"tif is not accepted", "field.tif", "", false},
		{"gif", "field.gif", "", false},
		{"no extension", "field", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, ok := FormatFromFilename(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, format)
		})
	}
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", FormatPNG.MIMEType())
	assert.Equal(t, "image/jpeg", FormatJPEG.MIMEType())
	assert.Equal(t, "image/bmp", FormatBMP.MIMEType())
	assert.Equal(t, "image/tiff", FormatTIFF.MIMEType())
}

func TestDecodeRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"text", []byte("definitely not an image")},
		{"truncated png header", []byte{0x89, 'P', 'N', 'G'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mat, err := Decode("upload.png", tt.data)
			defer mat.Close()

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))

			var decodeErr *DecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, "upload.png", decodeErr.Source)
		})
	}
}

func TestEncodeDecodeKeepsDimensions(t *testing.T) {
	frame := NewSolidFrame(64, 48, color.RGBA{R: 10, G: 200, B: 30})
	defer frame.Close()

	for _, format := range []ImageFormat{FormatPNG, FormatJPEG, FormatBMP} {
		t.Run(string(format), func(t *testing.T) {
			img, err := ToImage(format, frame)
			require.NoError(t, err)
			assert.Equal(t, 64, img.Width)
			assert.Equal(t, 48, img.Height)
			assert.NotEmpty(t, img.Base64())

			decoded, err := Decode("roundtrip", img.Data)
			require.NoError(t, err)
			defer decoded.Close()
			assert.Equal(t, 64, decoded.Cols())
			assert.Equal(t, 48, decoded.Rows())
		})
	}
}

func TestPNGIsLossless(t *testing.T) {
	frame := NewSolidFrame(32, 32, color.RGBA{R: 1, G: 2, B: 3})
	defer frame.Close()

	data, err := Encode(FormatPNG, frame)
	require.NoError(t, err)

	decoded, err := Decode("lossless", data)
	require.NoError(t, err)
	defer decoded.Close()

	assert.Equal(t, ComputeMatChecksum(frame), ComputeMatChecksum(decoded))
}

func TestComputeMatChecksum(t *testing.T) {
	a := NewSolidFrame(16, 16, color.RGBA{G: 255})
	defer a.Close()
	b := NewSolidFrame(16, 16, color.RGBA{G: 255})
	defer b.Close()
	c := NewSolidFrame(16, 16, color.RGBA{R: 255})
	defer c.Close()

	assert.Equal(t, ComputeMatChecksum(a), ComputeMatChecksum(b))
	assert.NotEqual(t, ComputeMatChecksum(a), ComputeMatChecksum(c))

	pixel := a.GetVecbAt(0, 0)
	assert.Equal(t, uint8(0), pixel[0])
	assert.Equal(t, uint8(255), pixel[1])
	assert.Equal(t, uint8(0), pixel[2])
}
