// Package config - Service configuration from .env, an optional YAML file and the environment.
package config

import (
	"image"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nvr-ai/go-targeting/inference"
	"github.com/nvr-ai/go-targeting/inference/detectors"
	"github.com/nvr-ai/go-targeting/inference/providers"
	"github.com/nvr-ai/go-targeting/models"
	"github.com/nvr-ai/go-targeting/shaper"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Model     ModelConfig            `yaml:"model"`
	Transform shaper.TransformConfig `yaml:"transform"`
	Log       LogConfig              `yaml:"log"`
	IoT       IoTConfig              `yaml:"iot"`
}

// ServerConfig configures the HTTP front-end and its directories.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	UploadDir       string        `yaml:"upload_dir"`
	ResultsDir      string        `yaml:"results_dir"`
	StaticDir       string        `yaml:"static_dir"`
	MaxUploadMB     int64         `yaml:"max_upload_mb"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ModelConfig configures the detector.
type ModelConfig struct {
	Path        string `yaml:"path"`
	Backend     string `yaml:"backend"`
	LibraryPath string `yaml:"library_path"`
	// DataYAML is a YOLO dataset description whose names label the model classes.
	DataYAML string `yaml:"data_yaml"`
	// Family selects built-in labels when DataYAML is empty.
	Family       string   `yaml:"family"`
	Confidence   float64  `yaml:"confidence"`
	NMSThreshold float64  `yaml:"nms_threshold"`
	InputSize    int      `yaml:"input_size"`
	Providers    []string `yaml:"providers"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// IoTConfig configures the AWS IoT target dispatch. An empty endpoint disables it.
type IoTConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
	Topic    string `yaml:"topic"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "5000",
			UploadDir:       "uploads",
			ResultsDir:      "static/results",
			StaticDir:       "static",
			MaxUploadMB:     16,
			ShutdownTimeout: 10 * time.Second,
		},
		Model: ModelConfig{
			Path:         "models/best.onnx",
			Backend:      string(inference.BackendONNXRuntime),
			Family:       string(models.ModelFamilyWeed),
			Confidence:   0.25,
			NMSThreshold: 0.7,
			InputSize:    640,
		},
		Transform: shaper.TransformConfig{
			Kind:  shaper.TransformGrid,
			Scale: shaper.DefaultScale,
			Unit:  shaper.DefaultUnit,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		IoT: IoTConfig{
			Region: "us-east-1",
			Topic:  "laser/targets",
		},
	}
}

// Load builds the configuration. Values are layered: defaults, then the YAML
// file at path (skipped when path is empty), then environment variables. A
// .env file in the working directory is loaded into the environment first.
//
// Arguments:
//   - path: Optional YAML configuration file.
//
// Returns:
//   - *Config: The validated configuration.
//   - error: An error if a file cannot be read or a value is invalid.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.UploadDir = getEnv("UPLOAD_DIR", c.Server.UploadDir)
	c.Server.ResultsDir = getEnv("RESULTS_DIR", c.Server.ResultsDir)
	c.Server.StaticDir = getEnv("STATIC_DIR", c.Server.StaticDir)

	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.Backend = getEnv("MODEL_BACKEND", c.Model.Backend)
	c.Model.LibraryPath = getEnv(providers.SharedLibraryEnv, c.Model.LibraryPath)
	c.Model.DataYAML = getEnv("DATA_YAML", c.Model.DataYAML)
	c.Model.Family = getEnv("MODEL_FAMILY", c.Model.Family)
	if v := getEnv("EXECUTION_PROVIDERS", ""); v != "" {
		c.Model.Providers = strings.Split(v, ",")
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	c.Transform.Kind = shaper.TransformKind(getEnv("TRANSFORM_KIND", string(c.Transform.Kind)))
	c.Transform.Unit = getEnv("TRANSFORM_UNIT", c.Transform.Unit)

	c.IoT.Region = getEnv("AWS_REGION", c.IoT.Region)
	c.IoT.Endpoint = getEnv("IOT_ENDPOINT", c.IoT.Endpoint)
	c.IoT.Topic = getEnv("IOT_TOPIC", c.IoT.Topic)

	var err error
	if c.Server.MaxUploadMB, err = getEnvInt64("MAX_UPLOAD_MB", c.Server.MaxUploadMB); err != nil {
		return err
	}
	if c.Model.Confidence, err = getEnvFloat("CONFIDENCE", c.Model.Confidence); err != nil {
		return err
	}
	if c.Model.NMSThreshold, err = getEnvFloat("NMS_THRESHOLD", c.Model.NMSThreshold); err != nil {
		return err
	}
	if c.Transform.Scale, err = getEnvFloat("TRANSFORM_SCALE", c.Transform.Scale); err != nil {
		return err
	}
	size, err := getEnvInt64("INPUT_SIZE", int64(c.Model.InputSize))
	if err != nil {
		return err
	}
	c.Model.InputSize = int(size)
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is empty")
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.Errorf("max upload must be positive, got %d MB", c.Server.MaxUploadMB)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.Errorf("shutdown timeout must be positive, got %v", c.Server.ShutdownTimeout)
	}
	if c.Model.Confidence < 0 || c.Model.Confidence > 1 {
		return errors.Errorf("confidence must be within [0, 1], got %v", c.Model.Confidence)
	}
	if c.Model.NMSThreshold <= 0 || c.Model.NMSThreshold > 1 {
		return errors.Errorf("nms threshold must be within (0, 1], got %v", c.Model.NMSThreshold)
	}
	if c.Model.InputSize <= 0 || c.Model.InputSize%32 != 0 {
		return errors.Errorf("input size must be a positive multiple of 32, got %d", c.Model.InputSize)
	}
	if _, err := inference.ParseBackend(c.Model.Backend); err != nil {
		return err
	}
	if _, err := shaper.NewTransform(c.Transform); err != nil {
		return errors.Wrap(err, "transform")
	}
	return nil
}

// MaxUploadBytes returns the request body limit.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

// Detector translates the model settings into a detector configuration.
// Class labels are resolved here, so a bad data.yaml fails fast.
func (c *Config) Detector() (detectors.Config, error) {
	out := detectors.DefaultConfig()

	backend, err := inference.ParseBackend(c.Model.Backend)
	if err != nil {
		return out, err
	}
	family, err := models.ParseFamily(c.Model.Family)
	if err != nil {
		return out, err
	}
	classes, err := models.ClassSetFor(c.Model.DataYAML, family)
	if err != nil {
		return out, errors.Wrap(err, "resolve class labels")
	}

	out.Backend = backend
	out.ModelPath = c.Model.Path
	out.LibraryPath = c.Model.LibraryPath
	out.Classes = classes
	out.InputShape = image.Point{X: c.Model.InputSize, Y: c.Model.InputSize}
	out.NMS.IoUThreshold = float32(c.Model.NMSThreshold)

	for _, name := range c.Model.Providers {
		if strings.TrimSpace(name) == "" {
			continue
		}
		p, err := providers.ParseProvider(name)
		if err != nil {
			return out, err
		}
		out.Optimization = out.Optimization.WithProvider(p, nil)
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return v, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return v, nil
}
