// Package config loads ruleup configuration files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/ruleup/domain/config"
)

// DefaultPaths are tried in order when no configuration path is given.
var DefaultPaths = []string{"ruleup.yaml", "ruleup.yml", "ruleup.json"}

// Format represents a configuration file format.
type Format string

const (
	// FormatYAML is the YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is the JSON format.
	FormatJSON Format = "json"
)

// Loader loads configuration files on top of config.Default.
type Loader struct {
	// ExpandEnv enables environment variable expansion.
	ExpandEnv bool
	// StrictEnv fails if referenced env vars are missing.
	StrictEnv bool
	// Validate enables configuration validation.
	Validate bool
}

// LoaderOption configures the loader.
type LoaderOption func(*Loader)

// WithEnvExpansion enables or disables environment variable expansion.
func WithEnvExpansion(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.ExpandEnv = enabled
	}
}

// WithStrictEnv enables strict environment variable checking.
func WithStrictEnv(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.StrictEnv = enabled
	}
}

// WithValidation enables or disables configuration validation.
func WithValidation(enabled bool) LoaderOption {
	return func(l *Loader) {
		l.Validate = enabled
	}
}

// NewLoader creates a loader that expands env vars and validates.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{ExpandEnv: true, Validate: true}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadFile loads configuration from path. An empty path tries DefaultPaths
// and falls back to config.Default when none exists.
func (l *Loader) LoadFile(path string) (*config.Config, error) {
	if path == "" {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				return l.LoadFile(p)
			}
		}
		return l.finish(config.Default())
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to access config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", config.ErrInvalidFormat, path)
	}

	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.LoadBytes(data, format)
}

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, ext)
	}
}

// LoadBytes loads configuration from data.
func (l *Loader) LoadBytes(data []byte, format Format) (*config.Config, error) {
	if l.ExpandEnv {
		expanded, err := ExpandEnv(string(data), l.StrictEnv)
		if err != nil {
			return nil, err
		}
		data = []byte(expanded)
	}

	cfg := config.Default()
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnsupportedFormat, format)
	}
	return l.finish(cfg)
}

// LoadString loads configuration from a string.
func (l *Loader) LoadString(content string, format Format) (*config.Config, error) {
	return l.LoadBytes([]byte(content), format)
}

func (l *Loader) finish(cfg *config.Config) (*config.Config, error) {
	if l.Validate {
		if errs := config.NewValidator().Validate(cfg); errs.HasErrors() {
			return nil, errs
		}
	}
	return cfg, nil
}
