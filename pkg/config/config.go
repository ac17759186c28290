// Package config loads the runtime's Config from a file and the
// environment, following the teacher's default-provider pattern: a
// package-level provider wraps a viper instance, exposes typed
// accessors, and validates on load rather than at point of use.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of tunables the runtime needs at startup.
type Config struct {
	ListenAddress string `mapstructure:"listen_address"`

	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions"`
	MaxSessionsPerUser    int `mapstructure:"max_sessions_per_user"`
	MaxQueueDepth         int `mapstructure:"max_queue_depth"`
	GlobalInFlightCap     int `mapstructure:"global_in_flight_cap"`

	DefaultEvalTimeout time.Duration `mapstructure:"default_eval_timeout"`
	AbsoluteEvalCeiling time.Duration `mapstructure:"absolute_eval_ceiling"`
	HandshakeTimeout    time.Duration `mapstructure:"handshake_timeout"`

	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	EvictionSweepEvery time.Duration `mapstructure:"eviction_sweep_interval"`
	SupervisorInterval time.Duration `mapstructure:"supervisor_interval"`

	ClipsliteBinaryPath string `mapstructure:"clipslite_binary_path"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

const envPrefix = "RULEFORGE"

// Default returns the built-in defaults used when no file or environment
// override is present.
func Default() Config {
	return Config{
		ListenAddress:         ":8080",
		MaxConcurrentSessions: 64,
		MaxSessionsPerUser:    8,
		MaxQueueDepth:         32,
		GlobalInFlightCap:     16,
		DefaultEvalTimeout:    5 * time.Second,
		AbsoluteEvalCeiling:   60 * time.Second,
		HandshakeTimeout:      3 * time.Second,
		IdleTimeout:           10 * time.Minute,
		EvictionSweepEvery:    30 * time.Second,
		SupervisorInterval:    15 * time.Second,
		ClipsliteBinaryPath:   "ruleforge-clipslite",
		MetricsEnabled:        true,
	}
}

// Provider loads and validates Config values from a viper instance
// seeded with defaults, an optional file, and RULEFORGE_-prefixed
// environment overrides.
type Provider struct {
	v *viper.Viper
}

// NewDefaultProvider builds a Provider with defaults already populated.
func NewDefaultProvider() *Provider {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("listen_address", def.ListenAddress)
	v.SetDefault("max_concurrent_sessions", def.MaxConcurrentSessions)
	v.SetDefault("max_sessions_per_user", def.MaxSessionsPerUser)
	v.SetDefault("max_queue_depth", def.MaxQueueDepth)
	v.SetDefault("global_in_flight_cap", def.GlobalInFlightCap)
	v.SetDefault("default_eval_timeout", def.DefaultEvalTimeout)
	v.SetDefault("absolute_eval_ceiling", def.AbsoluteEvalCeiling)
	v.SetDefault("handshake_timeout", def.HandshakeTimeout)
	v.SetDefault("idle_timeout", def.IdleTimeout)
	v.SetDefault("eviction_sweep_interval", def.EvictionSweepEvery)
	v.SetDefault("supervisor_interval", def.SupervisorInterval)
	v.SetDefault("clipslite_binary_path", def.ClipsliteBinaryPath)
	v.SetDefault("metrics_enabled", def.MetricsEnabled)

	return &Provider{v: v}
}

// Load reads an optional config file (YAML/JSON/TOML, by extension) on
// top of the defaults and environment, then returns the validated
// Config. An empty path skips the file read.
func (p *Provider) Load(path string) (*Config, error) {
	if path != "" {
		p.v.SetConfigFile(path)
		if err := p.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := p.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfig loads using only defaults and the environment.
func (p *Provider) GetConfig() (*Config, error) {
	return p.Load("")
}

// Validate rejects zero or negative caps and nonsensical timeouts.
func Validate(cfg *Config) error {
	switch {
	case cfg.MaxConcurrentSessions <= 0:
		return fmt.Errorf("max_concurrent_sessions must be positive, got %d", cfg.MaxConcurrentSessions)
	case cfg.MaxSessionsPerUser <= 0:
		return fmt.Errorf("max_sessions_per_user must be positive, got %d", cfg.MaxSessionsPerUser)
	case cfg.MaxQueueDepth <= 0:
		return fmt.Errorf("max_queue_depth must be positive, got %d", cfg.MaxQueueDepth)
	case cfg.GlobalInFlightCap <= 0:
		return fmt.Errorf("global_in_flight_cap must be positive, got %d", cfg.GlobalInFlightCap)
	case cfg.DefaultEvalTimeout <= 0:
		return fmt.Errorf("default_eval_timeout must be positive, got %s", cfg.DefaultEvalTimeout)
	case cfg.AbsoluteEvalCeiling < cfg.DefaultEvalTimeout:
		return fmt.Errorf("absolute_eval_ceiling (%s) must be >= default_eval_timeout (%s)",
			cfg.AbsoluteEvalCeiling, cfg.DefaultEvalTimeout)
	case cfg.HandshakeTimeout <= 0:
		return fmt.Errorf("handshake_timeout must be positive, got %s", cfg.HandshakeTimeout)
	case cfg.IdleTimeout <= 0:
		return fmt.Errorf("idle_timeout must be positive, got %s", cfg.IdleTimeout)
	}
	return nil
}
