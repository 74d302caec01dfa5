// Package logging - logrus setup shared by the server and the command line tools.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-targeting/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// New builds a logger from the logging configuration. When a file is
// configured, entries go to both stdout and the file.
//
// Arguments:
//   - cfg: The logging configuration.
//
// Returns:
//   - *logrus.Logger: The logger.
//   - io.Closer: Closes the log file. Never nil.
//   - error: An error for an unknown level or format, or an unwritable file.
func New(cfg config.LogConfig) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, nopCloser{}, errors.Wrap(err, "log level")
	}
	log.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, nopCloser{}, errors.Errorf("unknown log format %q", cfg.Format)
	}

	if cfg.File == "" {
		log.SetOutput(os.Stdout)
		return log, nopCloser{}, nil
	}

	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nopCloser{}, errors.Wrap(err, "create log directory")
		}
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nopCloser{}, errors.Wrap(err, "open log file")
	}
	log.SetOutput(io.MultiWriter(os.Stdout, file))
	return log, file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
