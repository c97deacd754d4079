package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader builds the configuration from layered sources. From lowest to
// highest priority:
//  1. Default values (in code)
//  2. The YAML file at Path, if set
//  3. Environment variables
type Loader struct {
	// Path of the YAML overlay. Empty means environment only.
	Path string
}

// NewLoader creates a loader for the given YAML file.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load reads every source and validates the result.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.Path != "" {
		f, err := os.Open(l.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		if err := decodeYAML(f, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", l.Path, err)
		}
		cfg.ConfigFile = l.Path
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// decodeYAML overlays r onto cfg. Keys missing from the document keep
// their current values; unknown keys are rejected.
func decodeYAML(r io.Reader, cfg *Config) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// LoadFromEnvironment loads using the file named by CONFIG_FILE, if any.
func LoadFromEnvironment() (*Config, error) {
	return NewLoader(os.Getenv("CONFIG_FILE")).Load()
}

// MustLoad loads configuration and panics on error.
// Use this only in main() functions.
func MustLoad() *Config {
	cfg, err := LoadFromEnvironment()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
