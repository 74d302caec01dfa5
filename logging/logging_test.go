package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-targeting/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LogConfig
		level     logrus.Level
		formatter logrus.Formatter
		wantErr   bool
	}{
		{"defaults", config.LogConfig{}, logrus.InfoLevel, &logrus.TextFormatter{}, false},
		{"json debug", config.LogConfig{Level: "debug", Format: "JSON"}, logrus.DebugLevel, &logrus.JSONFormatter{}, false},
		{"bad level", config.LogConfig{Level: "loud"}, 0, nil, true},
		{"bad format", config.LogConfig{Format: "xml"}, 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, closer, err := New(tt.cfg)
			require.NotNil(t, closer)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closer.Close()

			assert.Equal(t, tt.level, log.GetLevel())
			assert.IsType(t, tt.formatter, log.Formatter)
		})
	}
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "targeting.log")

	log, closer, err := New(config.LogConfig{File: path})
	require.NoError(t, err)

	log.WithField("component", "test").Info("written to file")
	require.NoError(t, closer.Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "written to file")
	assert.Contains(t, string(content), "component=test")
}
