// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default values applied by Defaults
const (
	DefaultBatchSize    = 1000
	DefaultWorkers      = 4
	DefaultProgressStep = 1000
	DefaultOutputDir    = "exports"
	DefaultCompression  = "none"
	DefaultFetchTimeout = 30 * time.Second
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values come from the environment or defaults.
type Config struct {
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL

	// Export tuning
	BatchSize    int      `json:"batch_size,omitempty" validate:"gte=0,lte=10000"` // Ids per page
	Workers      int      `json:"workers,omitempty" validate:"gte=0,lte=64"`       // Shards exported concurrently
	ProgressStep int      `json:"progress_step,omitempty" validate:"gte=0"`        // Records between progress saves
	FetchTimeout Duration `json:"fetch_timeout,omitempty"`                         // Bound on each record lookup

	// Output
	OutputDir         string `json:"output_dir,omitempty"`
	OutputCompression string `json:"output_compression,omitempty" validate:"omitempty,oneof=none zstd lz4"`

	// DeletedJobProfileID names the job profile that exports deleted records
	DeletedJobProfileID string `json:"deleted_job_profile_id,omitempty" validate:"omitempty,uuid"`

	Verbose bool `json:"verbose,omitempty"` // Print detailed debug information
}

// Duration is a time.Duration written as a Go duration string in JSON ("30s")
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		d.Duration = parsed
		return nil
	}
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds")
	}
	d.Duration = time.Duration(seconds * float64(time.Second))
	return nil
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		BatchSize:         DefaultBatchSize,
		Workers:           DefaultWorkers,
		ProgressStep:      DefaultProgressStep,
		FetchTimeout:      Duration{DefaultFetchTimeout},
		OutputDir:         DefaultOutputDir,
		OutputCompression: DefaultCompression,
	}
}

// Validate checks that the configuration has valid values.
// Required fields are checked by the commands that need them.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.FetchTimeout.Duration < 0 {
		return fmt.Errorf("config error: 'fetch_timeout' must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
// This is used to layer the config file over the environment and built-in defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.OutputDir == "" {
		result.OutputDir = defaults.OutputDir
	}
	if result.OutputCompression == "" {
		result.OutputCompression = defaults.OutputCompression
	}
	if result.DeletedJobProfileID == "" {
		result.DeletedJobProfileID = defaults.DeletedJobProfileID
	}

	// Int fields: use default if zero
	if result.BatchSize == 0 {
		result.BatchSize = defaults.BatchSize
	}
	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.ProgressStep == 0 {
		result.ProgressStep = defaults.ProgressStep
	}
	if result.FetchTimeout.Duration == 0 {
		result.FetchTimeout = defaults.FetchTimeout
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}
