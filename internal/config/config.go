// Package config loads finchat configuration from defaults, an optional
// YAML file and FINCHAT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"finchat/internal/compaction"
	"finchat/internal/summarizer"
	"finchat/pkg/logger"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// FINCHAT_COMPACTION_MAX_TOKEN_BUDGET.
const EnvPrefix = "FINCHAT"

// Config is the root configuration.
type Config struct {
	Server     ServerConfig      `mapstructure:"server" yaml:"server"`
	Log        logger.LogConfig  `mapstructure:"log" yaml:"log"`
	Storage    StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Compaction compaction.Config `mapstructure:"compaction" yaml:"compaction"`
	Summarizer summarizer.Config `mapstructure:"summarizer" yaml:"summarizer"`
	Refresh    RefreshConfig     `mapstructure:"refresh" yaml:"refresh"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// Addr returns host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig configures the SQLite store.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// RefreshConfig configures background snapshot rebuilding.
type RefreshConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule      string `mapstructure:"schedule" yaml:"schedule"`
	BatchSize     int    `mapstructure:"batch_size" yaml:"batch_size"`
	KeepSnapshots int    `mapstructure:"keep_snapshots" yaml:"keep_snapshots"`
}

// Load reads configuration. An empty path, or a path that does not exist,
// yields defaults plus environment overrides; a malformed file is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("summarizer.anthropic.api_key", EnvPrefix+"_SUMMARIZER_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"); err != nil {
		return nil, err
	}

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(expanded)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) {
				return nil, fmt.Errorf("read config %s: %w", expanded, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Save writes cfg to path as YAML, creating parent directories. The file
// may hold API keys and is written with mode 0600.
func Save(cfg *Config, path string) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(expanded, data, 0o600)
}
