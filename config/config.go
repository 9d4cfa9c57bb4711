package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/archery-sim/game"
	"github.com/signalnine/archery-sim/simulation"
)

// Config holds all settings for a tournament run.
type Config struct {
	Participants int    `yaml:"participants"` // Archers in the circle
	Trials       int64  `yaml:"trials"`       // Requested matches, rounded down to whole batches
	BatchSize    int64  `yaml:"batch_size"`   // Matches per scheduled batch
	Parallelism  int    `yaml:"parallelism"`  // Worker goroutines (0 = runtime.NumCPU())
	Timeout      string `yaml:"timeout"`      // Bound on waiting for all batches, e.g. "100s"
	Variant      string `yaml:"variant"`      // radius, fixed-start
	Output       string `yaml:"output"`       // Optional JSON result path

	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Participants: 4,
		Trials:       100_000_000,
		BatchSize:    1_000_000,
		Parallelism:  24,
		Timeout:      "100s",
		Variant:      game.VariantRadius,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults and then
// applies environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies ARCHERY_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	ints := []struct {
		env string
		set func(int64)
	}{
		{"ARCHERY_PARTICIPANTS", func(v int64) { c.Participants = int(v) }},
		{"ARCHERY_TRIALS", func(v int64) { c.Trials = v }},
		{"ARCHERY_BATCH_SIZE", func(v int64) { c.BatchSize = v }},
		{"ARCHERY_PARALLELISM", func(v int64) { c.Parallelism = int(v) }},
	}
	for _, o := range ints {
		raw := os.Getenv(o.env)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", o.env, raw, err)
		}
		o.set(v)
	}

	if timeout := os.Getenv("ARCHERY_TIMEOUT"); timeout != "" {
		c.Timeout = timeout
	}
	if variant := os.Getenv("ARCHERY_VARIANT"); variant != "" {
		c.Variant = variant
	}

	return nil
}

// GetTimeout returns the completion timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return simulation.DefaultTimeout
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Participants < 1 {
		return fmt.Errorf("participants must be at least 1, got %d", c.Participants)
	}
	if c.Trials < 0 {
		return fmt.Errorf("trials must not be negative, got %d", c.Trials)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism)
	}
	if c.Timeout != "" {
		d, err := time.ParseDuration(c.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
	}
	if c.Variant != "" && !slices.Contains(game.Variants, c.Variant) {
		return fmt.Errorf("invalid variant: %s (valid: %v)", c.Variant, game.Variants)
	}
	return c.Logging.Validate()
}

// Tournament converts the configuration into simulation parameters.
func (c *Config) Tournament() simulation.TournamentConfig {
	return simulation.TournamentConfig{
		Participants: c.Participants,
		Trials:       c.Trials,
		BatchSize:    c.BatchSize,
		Parallelism:  c.Parallelism,
		Timeout:      c.GetTimeout(),
	}
}
