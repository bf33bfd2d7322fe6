// Package config provides configuration structures and loading logic for
// the acquisition pipeline, plus a file watcher that hot-reloads guard
// thresholds at runtime.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Guards    GuardsConfig    `yaml:"guards"`
	Retry     RetryConfig     `yaml:"retry"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Demo      DemoConfig      `yaml:"demo"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// MetricsConfig holds configuration for the Prometheus endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// GuardsConfig holds the reloadable admission thresholds.
type GuardsConfig struct {
	WeakRTTThresholdMS  int     `yaml:"weak_rtt_threshold_ms"`
	ProbeIntervalS      int     `yaml:"probe_interval_s"`
	MinRTTSamples       int     `yaml:"min_rtt_samples"`
	TTLMS               int     `yaml:"ttl_ms"`
	FreshnessCutoff     float64 `yaml:"freshness_cutoff"`
	VisibilityThreshold float64 `yaml:"visibility_threshold"`
}

// WeakRTTThreshold returns the weak-link threshold as a duration.
func (g GuardsConfig) WeakRTTThreshold() time.Duration {
	return time.Duration(g.WeakRTTThresholdMS) * time.Millisecond
}

// ProbeInterval returns the probe cadence as a duration.
func (g GuardsConfig) ProbeInterval() time.Duration {
	return time.Duration(g.ProbeIntervalS) * time.Second
}

// TTL returns the staleness window as a duration.
func (g GuardsConfig) TTL() time.Duration {
	return time.Duration(g.TTLMS) * time.Millisecond
}

// RetryConfig holds fetch retry settings.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts"`
	InitialBackoffMS int `yaml:"initial_backoff_ms"`
}

// BreakerConfig holds transport circuit breaker settings.
type BreakerConfig struct {
	MaxFailures int `yaml:"max_failures"`
	CooldownS   int `yaml:"cooldown_s"`
}

// DemoConfig holds demo-mode settings for the daemon.
type DemoConfig struct {
	Enabled          bool `yaml:"enabled"`
	RefreshIntervalS int  `yaml:"refresh_interval_s"`
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path loads defaults only.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Address: ":9290"},
		Guards: GuardsConfig{
			WeakRTTThresholdMS:  3000,
			ProbeIntervalS:      30,
			MinRTTSamples:       3,
			TTLMS:               300000,
			FreshnessCutoff:     0.7,
			VisibilityThreshold: 0.1,
		},
		Retry: RetryConfig{
			MaxAttempts:      3,
			InitialBackoffMS: 200,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			CooldownS:   30,
		},
		Demo: DemoConfig{RefreshIntervalS: 60},
	}
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("VITAL_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("VITAL_LOG_PRETTY"); val == "true" {
		cfg.Logging.Pretty = true
	}
	if val := os.Getenv("VITAL_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("VITAL_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("VITAL_METRICS_ADDR"); val != "" {
		cfg.Metrics.Address = val
	}
	if val := os.Getenv("VITAL_DEMO"); val == "true" {
		cfg.Demo.Enabled = true
	}
	if val := os.Getenv("VITAL_WEAK_RTT_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			cfg.Guards.WeakRTTThresholdMS = ms
		}
	}
	if val := os.Getenv("VITAL_TTL_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			cfg.Guards.TTLMS = ms
		}
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Guards.WeakRTTThresholdMS <= 0 {
		return fmt.Errorf("guards.weak_rtt_threshold_ms must be positive")
	}
	if c.Guards.TTLMS <= 0 {
		return fmt.Errorf("guards.ttl_ms must be positive")
	}
	if c.Guards.FreshnessCutoff <= 0 || c.Guards.FreshnessCutoff >= 1 {
		return fmt.Errorf("guards.freshness_cutoff must be in (0,1)")
	}
	if c.Guards.VisibilityThreshold <= 0 || c.Guards.VisibilityThreshold > 1 {
		return fmt.Errorf("guards.visibility_threshold must be in (0,1]")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive")
	}
	return nil
}
