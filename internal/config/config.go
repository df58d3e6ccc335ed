// Package config loads and validates the pgmill build configuration: the
// target installation matrix, concurrency and timeout limits, and output
// settings.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pgmill/pgmill/internal/archive"
	"github.com/pgmill/pgmill/internal/errors"
	"github.com/pgmill/pgmill/internal/matrix"
	"github.com/pgmill/pgmill/internal/runner"
)

// Config represents the application configuration
type Config struct {
	Metadata string          `yaml:"metadata,omitempty"` // distribution metadata path; defaults to META.yaml in the source tree
	Targets  []matrix.Target `yaml:"targets"`
	Build    BuildConfig     `yaml:"build,omitempty"`
	Output   OutputConfig    `yaml:"output,omitempty"`
}

// BuildConfig bounds the build matrix execution
type BuildConfig struct {
	Concurrency int      `yaml:"concurrency,omitempty"`  // max simultaneous target builds
	StepTimeout Duration `yaml:"step_timeout,omitempty"` // per-step wall-clock limit
	SandboxDir  string   `yaml:"sandbox_dir,omitempty"`  // base directory for sandboxes; system temp when empty
}

// OutputConfig controls artifact packaging
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Format    string `yaml:"format,omitempty"` // gzip (default) or zstd
}

// Duration wraps time.Duration with YAML string parsing ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load loads configuration from the specified file
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.ConfigNotFound(configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to read config file").
			WithContext("path", configPath)
	}

	return Parse(data)
}

// Parse unmarshals, defaults, and validates configuration bytes.
// Environment variables referenced in the YAML content are expanded first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.CategoryConfig, errors.SeverityFatal, "failed to unmarshal config")
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Build.Concurrency <= 0 {
		c.Build.Concurrency = matrix.DefaultConcurrency
	}
	if c.Build.StepTimeout <= 0 {
		c.Build.StepTimeout = Duration(runner.DefaultStepTimeout)
	}
	if c.Output.Directory == "" {
		c.Output.Directory = "./dist"
	}
	if c.Output.Format == "" {
		c.Output.Format = string(archive.FormatGzip)
	}
}

func (c *Config) validate() error {
	if len(c.Targets) == 0 {
		return errors.ConfigRequired("targets")
	}
	for i, t := range c.Targets {
		if t.Version == "" {
			return errors.ConfigRequired(fmt.Sprintf("targets[%d].version", i))
		}
		if t.Platform == "" {
			return errors.ConfigRequired(fmt.Sprintf("targets[%d].platform", i))
		}
	}
	switch archive.Format(c.Output.Format) {
	case archive.FormatGzip, archive.FormatZstd:
	default:
		return errors.New(errors.CategoryConfig, errors.SeverityFatal, "unsupported archive format").
			WithContext("format", c.Output.Format)
	}
	return nil
}

// ArchiveFormat returns the validated output format.
func (c *Config) ArchiveFormat() archive.Format {
	return archive.Format(c.Output.Format)
}
