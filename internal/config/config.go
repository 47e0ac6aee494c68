// Package config loads the optional govkit.toml file read by the CLI.
//
//	db        = "govkit.db"
//	format    = "json"
//	verbose   = true
//	max_steps = 2048
//
// A missing file is not an error; every key falls back to its default.
// Command-line flags override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/roach88/govkit/internal/ledger"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "govkit.toml"

// Config holds the CLI settings.
type Config struct {
	DB       string `toml:"db"`
	Format   string `toml:"format"`
	Verbose  bool   `toml:"verbose"`
	MaxSteps int    `toml:"max_steps"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		DB:       "govkit.db",
		Format:   "text",
		MaxSteps: ledger.DefaultMaxSteps,
	}
}

// ParseError reports a malformed config file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Load reads path over the defaults. A missing file yields Default().
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes TOML data over the defaults. Unknown keys are rejected.
func Parse(source string, data []byte) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("format must be text or json, got %q", c.Format)
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", c.MaxSteps)
	}
	return nil
}

// LedgerOptions returns the ledger options the settings imply.
func (c Config) LedgerOptions() []ledger.Option {
	return []ledger.Option{ledger.WithMaxSteps(c.MaxSteps)}
}
