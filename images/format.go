package images

import (
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// ImageFormat represents supported image formats
type ImageFormat string

const (
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatBMP  ImageFormat = "bmp"
	FormatTIFF ImageFormat = "tiff"
)

// extensions maps accepted upload file extensions to their format.
var extensions = map[string]ImageFormat{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".bmp":  FormatBMP,
	".tiff": FormatTIFF,
}

// FormatFromFilename returns the image format implied by the file extension.
//
// Arguments:
// - name: A file name or path. The extension is matched case-insensitively.
//
// Returns:
// - The format and true when the extension is one of png, jpg, jpeg, bmp or tiff.
//
// @example
// format, ok := FormatFromFilename("field.JPG") // FormatJPEG, true
func FormatFromFilename(name string) (ImageFormat, bool) {
	format, ok := extensions[strings.ToLower(filepath.Ext(name))]
	return format, ok
}

// FileExt returns the OpenCV encoder extension for the format.
func (f ImageFormat) FileExt() gocv.FileExt {
	switch f {
	case FormatPNG:
		return gocv.PNGFileExt
	case FormatBMP:
		return gocv.FileExt(".bmp")
	case FormatTIFF:
		return gocv.FileExt(".tiff")
	default:
		return gocv.JPEGFileExt
	}
}

// MIMEType returns the content type used when serving the encoded image.
func (f ImageFormat) MIMEType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "image/jpeg"
	}
}
