package service

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ResultStore keeps uploaded images and their annotated copies on disk.
type ResultStore struct {
	uploadDir  string
	resultsDir string
}

// NewResultStore creates both directories when missing.
func NewResultStore(uploadDir, resultsDir string) (*ResultStore, error) {
	for _, dir := range []string{uploadDir, resultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	return &ResultStore{uploadDir: uploadDir, resultsDir: resultsDir}, nil
}

// SaveUpload writes an uploaded file under a unique, sanitized name.
//
// Arguments:
//   - requestID: Prefixes the stored name so concurrent uploads of the same file do not collide.
//   - filename: The client-supplied name.
//   - data: The file contents.
//
// Returns:
//   - string: The stored file name, without directory.
//   - error: An error if the file cannot be written.
func (s *ResultStore) SaveUpload(requestID, filename string, data []byte) (string, error) {
	prefix := strings.ReplaceAll(requestID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	name := SanitizeFilename(filename)
	if prefix != "" {
		name = prefix + "_" + name
	}

	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		return "", errors.Wrap(err, "save upload")
	}
	return name, nil
}

// SaveAnnotated writes annotated_<name> to the results directory and returns its file name.
func (s *ResultStore) SaveAnnotated(name string, data []byte) (string, error) {
	out := "annotated_" + name
	if err := os.WriteFile(filepath.Join(s.resultsDir, out), data, 0o644); err != nil {
		return "", errors.Wrap(err, "save annotated image")
	}
	return out, nil
}

// SanitizeFilename reduces a client file name to a safe base name of
// ASCII letters, digits, dots, dashes and underscores.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}

	out := b.String()
	if strings.Trim(out, "._") == "" {
		return "upload"
	}
	if strings.HasPrefix(out, ".") {
		out = "upload" + out
	}
	return out
}
