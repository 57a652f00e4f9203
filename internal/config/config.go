// Package config loads imageflow settings. Values come from built-in
// defaults, then an optional YAML file, then IMAGEFLOW_* environment
// variables; command-line flags are applied last by the caller.
//
// Example file:
//
//	max_passes: 8
//	log:
//	  level: debug
//	  format: json
//	debug:
//	  dir: /tmp/imageflow
//	  frames: true
//	telemetry:
//	  metric_exporter: prometheus
//	metrics_addr: 127.0.0.1:9464
//	object_store:
//	  endpoint: localhost:9000
//	  access_key: minio
//	  secret_key: minio123
//	  bucket: images
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/ioport"
	"github.com/ironsheep/image-flow/internal/telemetry"
)

// Config holds all settings for the imageflow command.
type Config struct {
	// MaxPasses is the default convergence ceiling of every job.
	MaxPasses int `yaml:"max_passes" validate:"gte=1,lte=64"`

	// BaseDir resolves relative file paths in requests. Empty means the
	// directory of the request file for run, and the working directory for
	// serve.
	BaseDir string `yaml:"base_dir"`

	Log   LogConfig   `yaml:"log"`
	Debug DebugConfig `yaml:"debug"`

	Telemetry telemetry.Config `yaml:"telemetry"`

	// MetricsAddr, when set, serves /metrics there. Requires the
	// prometheus metric exporter.
	MetricsAddr string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`

	// ObjectStore enables bucket/key ports; nil leaves them disabled.
	ObjectStore *ioport.ObjectConfig `yaml:"object_store"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DebugConfig controls graph recording.
type DebugConfig struct {
	// Dir receives graph versions and node frames. Empty disables
	// recording.
	Dir string `yaml:"dir"`

	// Frames also writes every executed node's bitmap.
	Frames bool `yaml:"frames"`

	// Render converts the last graph version to PNG with graphviz.
	Render bool `yaml:"render"`

	// RenderVersions converts every graph version to PNG, not only the
	// last one.
	RenderVersions bool `yaml:"render_versions"`

	// MaxVersions caps the graph versions recorded per job. Zero uses the
	// recorder's default.
	MaxVersions int `yaml:"max_versions" validate:"gte=0,lte=10000"`
}

// Enabled reports whether graph recording is on.
func (d DebugConfig) Enabled() bool { return d.Dir != "" }

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the built-in settings.
func Default() Config {
	return Config{
		MaxPasses: flow.DefaultMaxPasses,
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays IMAGEFLOW_* variables. Setting IMAGEFLOW_S3_ENDPOINT
// enables object storage configured entirely from the environment.
func (c *Config) applyEnv() error {
	if v := env("IMAGEFLOW_MAX_PASSES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("IMAGEFLOW_MAX_PASSES: %w", err)
		}
		c.MaxPasses = n
	}
	if v := env("IMAGEFLOW_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("IMAGEFLOW_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := env("IMAGEFLOW_DEBUG_DIR"); v != "" {
		c.Debug.Dir = v
	}
	if v := env("IMAGEFLOW_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if env("IMAGEFLOW_S3_ENDPOINT") != "" {
		oc, err := ioport.ObjectConfigFromEnv()
		if err != nil {
			return err
		}
		c.ObjectStore = &oc
	}
	return nil
}

// Validate checks field ranges and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.ObjectStore != nil {
		if err := c.ObjectStore.Validate(); err != nil {
			return fmt.Errorf("invalid config: object_store: %w", err)
		}
	}
	if c.MetricsAddr != "" && c.Telemetry.MetricExporter != "prometheus" {
		return errors.New("invalid config: metrics_addr requires telemetry.metric_exporter prometheus")
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
