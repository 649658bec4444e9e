// Package config loads chartfolio settings from YAML or TOML files with
// CHARTFOLIO_* environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ByLCY/chartfolio/poll"
)

// Backend names.
const (
	BackendCanvas = "canvas"
	BackendFPDF   = "fpdf"

	ShooterCanvas = "canvas"
	ShooterRod    = "rod"
)

// Config holds every tunable setting.
type Config struct {
	// Backend selects the PDF primitive: canvas or fpdf.
	Backend string `toml:"backend" yaml:"backend" json:"backend"`
	// Screenshotter selects how staged pages become bitmaps: canvas or rod.
	Screenshotter string `toml:"screenshotter" yaml:"screenshotter" json:"screenshotter"`

	Rod       RodConfig       `toml:"rod" yaml:"rod" json:"rod"`
	Readiness ReadinessConfig `toml:"readiness" yaml:"readiness" json:"readiness"`

	Scale   float64 `toml:"scale" yaml:"scale" json:"scale"`
	WidthPx float64 `toml:"widthPx" yaml:"widthPx" json:"widthPx"`
	// MaxSidePx caps each side of a captured page bitmap, in device pixels.
	MaxSidePx float64 `toml:"maxSidePx" yaml:"maxSidePx" json:"maxSidePx"`

	Log    LogConfig    `toml:"log" yaml:"log" json:"log"`
	Server ServerConfig `toml:"server" yaml:"server" json:"server"`
	HTTP   HTTPConfig   `toml:"http" yaml:"http" json:"http"`
}

// RodConfig configures the headless-browser screenshotter.
type RodConfig struct {
	// ControlURL of a running browser; empty launches a local one.
	ControlURL string `toml:"controlURL" yaml:"controlURL" json:"controlURL"`
}

// ReadinessConfig bounds the wait for asynchronous layout.
type ReadinessConfig struct {
	Attempts int           `toml:"attempts" yaml:"attempts" json:"attempts"`
	Interval time.Duration `toml:"interval" yaml:"interval" json:"interval"`
}

// Budget converts r to a poll.Budget.
func (r ReadinessConfig) Budget() poll.Budget {
	return poll.Budget{Attempts: r.Attempts, Interval: r.Interval}
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"`
}

// ServerConfig configures the export server.
type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr" json:"addr"`
}

// HTTPConfig configures remote dataset fetches.
type HTTPConfig struct {
	Timeout time.Duration `toml:"timeout" yaml:"timeout" json:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	b := poll.DefaultBudget
	return &Config{
		Backend:       BackendCanvas,
		Screenshotter: ShooterCanvas,
		Readiness:     ReadinessConfig{Attempts: b.Attempts, Interval: b.Interval},
		Scale:         2,
		WidthPx:       1024,
		MaxSidePx:     16384,
		Log:           LogConfig{Level: "info", Format: "text"},
		Server:        ServerConfig{Addr: ":8080"},
		HTTP:          HTTPConfig{Timeout: 15 * time.Second},
	}
}

// Load reads path (an empty path or a missing file yields the defaults),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	default:
		return fmt.Errorf("config: unsupported file extension %q", filepath.Ext(path))
	}
	return nil
}

// ApplyEnvOverrides applies CHARTFOLIO_* environment variables.
func (c *Config) ApplyEnvOverrides() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str("CHARTFOLIO_BACKEND", &c.Backend)
	str("CHARTFOLIO_SCREENSHOTTER", &c.Screenshotter)
	str("CHARTFOLIO_ROD_CONTROL_URL", &c.Rod.ControlURL)
	str("CHARTFOLIO_LOG_LEVEL", &c.Log.Level)
	str("CHARTFOLIO_LOG_FORMAT", &c.Log.Format)
	str("CHARTFOLIO_SERVER_ADDR", &c.Server.Addr)

	if v := os.Getenv("CHARTFOLIO_READINESS_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CHARTFOLIO_READINESS_ATTEMPTS: %w", err)
		}
		c.Readiness.Attempts = n
	}
	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"CHARTFOLIO_READINESS_INTERVAL", &c.Readiness.Interval},
		{"CHARTFOLIO_HTTP_TIMEOUT", &c.HTTP.Timeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.name); v != "" {
			dur, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
			*d.dst = dur
		}
	}
	floats := []struct {
		name string
		dst  *float64
	}{
		{"CHARTFOLIO_SCALE", &c.Scale},
		{"CHARTFOLIO_WIDTH_PX", &c.WidthPx},
		{"CHARTFOLIO_MAX_SIDE_PX", &c.MaxSidePx},
	}
	for _, f := range floats {
		if v := os.Getenv(f.name); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			*f.dst = n
		}
	}
	return nil
}

// ValidationError describes one invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is every problem found by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	switch c.Backend {
	case BackendCanvas, BackendFPDF:
	default:
		add("backend", "must be %q or %q, got %q", BackendCanvas, BackendFPDF, c.Backend)
	}
	switch c.Screenshotter {
	case ShooterCanvas, ShooterRod:
	default:
		add("screenshotter", "must be %q or %q, got %q", ShooterCanvas, ShooterRod, c.Screenshotter)
	}
	if c.Readiness.Attempts < 1 {
		add("readiness.attempts", "must be at least 1")
	}
	if c.Readiness.Interval <= 0 {
		add("readiness.interval", "must be positive")
	}
	if c.Scale <= 0 {
		add("scale", "must be positive")
	}
	if c.WidthPx <= 0 {
		add("widthPx", "must be positive")
	}
	if c.MaxSidePx <= 0 {
		add("maxSidePx", "must be positive")
	} else if c.WidthPx*c.Scale > c.MaxSidePx {
		add("widthPx", "%.0f at scale %g exceeds maxSidePx %.0f", c.WidthPx, c.Scale, c.MaxSidePx)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		add("log.level", "%v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}
	if c.HTTP.Timeout < 0 {
		add("http.timeout", "must not be negative")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SlogLevel parses Level (debug, info, warn, error).
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return lvl, nil
}
