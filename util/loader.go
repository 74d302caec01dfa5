package util

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/nvr-ai/go-targeting/images"
	"github.com/pkg/errors"
)

// ImageFile represents an image file.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Format is derived from the file extension.
	Format images.ImageFormat
	// Data is the raw bytes of the image file.
	Data []byte
}

// ListImageFiles returns the image files of a directory sorted by name.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []string: Paths of the files with an accepted image extension.
// - error: Error if the directory cannot be read.
func ListImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "list images")
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := images.FormatFromFilename(entry.Name()); ok {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadImageFile reads one image file.
func LoadImageFile(path string) (ImageFile, error) {
	format, ok := images.FormatFromFilename(path)
	if !ok {
		return ImageFile{}, errors.Errorf("%s is not a supported image", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ImageFile{}, errors.Wrap(err, "read image")
	}
	return ImageFile{Path: path, Format: format, Data: data}, nil
}
