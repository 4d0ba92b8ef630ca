// Package config provides configuration management for the enrollment pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoSourceURLs             = errors.New("source.modern_urls and source.legacy_urls need at least one template each")
	ErrInvalidYearRange         = errors.New("source.years.min must not exceed source.years.max")
	ErrInvalidSkipRows          = errors.New("source.skip_rows must be non-negative")
	ErrInvalidMaxBody           = errors.New("source.max_body_mb must be at least 1")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrMissingCachePath         = errors.New("cache.path is required when the cache is enabled")
	ErrInvalidCacheTTL          = errors.New("cache.ttl_hours must be at least 1")
	ErrInvalidEraStart          = errors.New("pipeline.modern_era_start must fall inside source.years")
	ErrInvalidExclusionRatio    = errors.New("pipeline.max_exclusion_ratio must be between 0 and 1")
	ErrInvalidConcurrency       = errors.New("pipeline.concurrency must be at least 1")
	ErrMissingOutputPath        = errors.New("output.base_path is required")
	ErrInvalidOutputFormat      = errors.New("output.format must be 'json' or 'jsonl'")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Config represents the complete pipeline configuration.
type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Cache    CacheConfig    `yaml:"cache"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SourceConfig describes where the yearly extracts are published.
type SourceConfig struct {
	ModernURLs []string    `yaml:"modern_urls"`
	LegacyURLs []string    `yaml:"legacy_urls"`
	UserAgent  string      `yaml:"user_agent"`
	Years      YearsConfig `yaml:"years"`
	Retry      RetryPolicy `yaml:"retry"`
	SkipRows   int         `yaml:"skip_rows"`
	MaxBodyMb  int         `yaml:"max_body_mb"`
}

// YearsConfig is the range of published end years.
type YearsConfig struct {
	Missing []int `yaml:"missing"`
	Min     int   `yaml:"min"`
	Max     int   `yaml:"max"`
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// CacheConfig defines the processed-batch cache.
type CacheConfig struct {
	Path     string `yaml:"path"`
	TTLHours int    `yaml:"ttl_hours"`
	Enabled  bool   `yaml:"enabled"`
}

// PipelineConfig tunes extraction and quality checks.
type PipelineConfig struct {
	PatternsFile      string  `yaml:"patterns_file"`
	ModernEraStart    int     `yaml:"modern_era_start"`
	MaxExclusionRatio float64 `yaml:"max_exclusion_ratio"`
	FailOnExclusion   bool    `yaml:"fail_on_exclusion"`
	Concurrency       int     `yaml:"concurrency"`
}

// OutputConfig defines output behavior.
type OutputConfig struct {
	BasePath     string `yaml:"base_path"`
	Format       string `yaml:"format"`
	PrettyPrint  bool   `yaml:"pretty_print"`
	CreateBackup bool   `yaml:"create_backup"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration for the Ohio extracts.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			ModernURLs: []string{
				"https://reports.education.ohio.gov/report/report-card-data-enrollment/{end_year}/download",
				"https://reportcard.education.ohio.gov/download/{start_year}-{end_year}/ENROLLMENT_BUILDING_{end_year}.csv",
			},
			LegacyURLs: []string{
				"https://education.ohio.gov/getattachment/enrollment/{start_year}-{yy}/BUILDING_ENROLLMENT_{end_year}.csv",
			},
			UserAgent: "ohenr/1.0",
			Years: YearsConfig{
				Min:     2007,
				Max:     2025,
				Missing: []int{2021},
			},
			Retry: RetryPolicy{
				MaxAttempts:       3,
				InitialDelayMs:    500,
				MaxDelayMs:        10000,
				BackoffMultiplier: 2.0,
				TimeoutSec:        60,
			},
			MaxBodyMb: 64,
		},
		Cache: CacheConfig{
			Path:     filepath.Join(os.TempDir(), "ohenr", "cache.db"),
			TTLHours: 24 * 30,
			Enabled:  true,
		},
		Pipeline: PipelineConfig{
			ModernEraStart:    2015,
			MaxExclusionRatio: 0.05,
			Concurrency:       4,
		},
		Output: OutputConfig{
			BasePath:    "./output",
			Format:      "json",
			PrettyPrint: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file. Keys absent from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to a YAML file.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Source.ModernURLs) == 0 || len(c.Source.LegacyURLs) == 0 {
		return ErrNoSourceURLs
	}

	if c.Source.Years.Min > c.Source.Years.Max {
		return fmt.Errorf("%w: %d > %d", ErrInvalidYearRange, c.Source.Years.Min, c.Source.Years.Max)
	}

	if c.Source.SkipRows < 0 {
		return ErrInvalidSkipRows
	}

	if c.Source.MaxBodyMb < 1 {
		return ErrInvalidMaxBody
	}

	if c.Source.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Source.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if c.Source.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.Source.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if c.Cache.Enabled {
		if c.Cache.Path == "" {
			return ErrMissingCachePath
		}

		if c.Cache.TTLHours < 1 {
			return ErrInvalidCacheTTL
		}
	}

	if start := c.Pipeline.ModernEraStart; start != 0 && (start < c.Source.Years.Min || start > c.Source.Years.Max) {
		return fmt.Errorf("%w: %d", ErrInvalidEraStart, start)
	}

	if c.Pipeline.MaxExclusionRatio < 0 || c.Pipeline.MaxExclusionRatio > 1 {
		return ErrInvalidExclusionRatio
	}

	if c.Pipeline.Concurrency < 1 {
		return ErrInvalidConcurrency
	}

	if c.Output.BasePath == "" {
		return ErrMissingOutputPath
	}

	if c.Output.Format != "json" && c.Output.Format != "jsonl" {
		return ErrInvalidOutputFormat
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	return nil
}

// IsAvailable reports whether an end year has published data.
func (y YearsConfig) IsAvailable(endYear int) bool {
	return endYear >= y.Min && endYear <= y.Max && !slices.Contains(y.Missing, endYear)
}

// Available lists the published end years in ascending order.
func (y YearsConfig) Available() []int {
	var years []int

	for year := y.Min; year <= y.Max; year++ {
		if y.IsAvailable(year) {
			years = append(years, year)
		}
	}

	return years
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	if int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the timeout duration.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// TTL returns how long a cached batch stays fresh.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// GetOutputPath follows structure: {base_path}/{name}.{format}.
func (c *Config) GetOutputPath(name string) string {
	return filepath.Join(c.Output.BasePath, name+"."+c.Output.Format)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Years: %d-%d, MaxAttempts: %d, Cache: %t, Output: %s}",
		c.Source.Years.Min,
		c.Source.Years.Max,
		c.Source.Retry.MaxAttempts,
		c.Cache.Enabled,
		strings.TrimSpace(c.Output.BasePath),
	)
}
