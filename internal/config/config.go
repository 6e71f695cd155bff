// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

// Package config loads the filtermap tool configuration from a YAML file,
// a .env file and FILTERMAP_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joamaki/filtermap/internal/logger"
	"github.com/joamaki/filtermap/internal/rule"
)

const EnvPrefix = "FILTERMAP"

const (
	SourceLines = "lines"
	SourceHTTP  = "http"
	SourceRedis = "redis"
)

// How an HTTP response body is split into records.
const (
	SplitLines = "lines"
	SplitNone  = "none"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Rule     rule.Config    `mapstructure:"rule"`
	Throttle ThrottleConfig `mapstructure:"throttle"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Log      logger.Config  `mapstructure:"log"`
}

type SourceConfig struct {
	// Kind is one of "lines", "http" or "redis".
	Kind string `mapstructure:"kind"`

	// Path of the file to read for "lines", "-" for standard input.
	Path string `mapstructure:"path"`

	// URL to request for "http".
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	// Method is GET or POST. Body is sent with POST requests.
	Method string `mapstructure:"method"`
	Body   string `mapstructure:"body"`
	// Split is "lines" to emit each line of the response as a record or
	// "none" to emit the whole body as one record.
	Split string `mapstructure:"split"`

	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr    string        `mapstructure:"addr"`
	Stream  string        `mapstructure:"stream"`
	Field   string        `mapstructure:"field"`
	StartID string        `mapstructure:"start_id"`
	Block   time.Duration `mapstructure:"block"`
	Count   int64         `mapstructure:"count"`
}

type ThrottleConfig struct {
	// Rate is the maximum records per second emitted. Zero disables throttling.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type RetryConfig struct {
	// Max is the number of times the source is resubscribed after failing.
	Max        int           `mapstructure:"max"`
	MinBackoff time.Duration `mapstructure:"min_backoff"`
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
}

type LoadOptions struct {
	// ConfigFile is the YAML file to read. Optional.
	ConfigFile string

	// EnvFile is a .env file to load. If empty, ./.env is loaded if it exists.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.kind", SourceLines)
	v.SetDefault("source.path", "-")
	v.SetDefault("source.url", "")
	v.SetDefault("source.headers", map[string]string{})
	v.SetDefault("source.method", http.MethodGet)
	v.SetDefault("source.body", "")
	v.SetDefault("source.split", SplitLines)
	v.SetDefault("source.redis.addr", "localhost:6379")
	v.SetDefault("source.redis.stream", "")
	v.SetDefault("source.redis.field", "data")
	v.SetDefault("source.redis.start_id", "$")
	v.SetDefault("source.redis.block", time.Second)
	v.SetDefault("source.redis.count", 100)

	v.SetDefault("rule.kind", string(rule.KindExpr))
	v.SetDefault("rule.expression", "")
	v.SetDefault("rule.path", "")
	v.SetDefault("rule.pattern", "")
	v.SetDefault("rule.on_error", string(rule.OnErrorFail))

	v.SetDefault("throttle.rate", 0)
	v.SetDefault("throttle.burst", 1)

	v.SetDefault("retry.max", 0)
	v.SetDefault("retry.min_backoff", 100*time.Millisecond)
	v.SetDefault("retry.max_backoff", 5*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logger.FormatConsole)
	v.SetDefault("log.no_color", false)
}

// Load reads the configuration. It does not validate it.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the configuration and compiles the rule.
func (c *Config) Validate() (*rule.Rule, error) {
	switch c.Source.Kind {
	case SourceLines:
		if c.Source.Path == "" {
			return nil, invalid("source.path is required for %q sources", SourceLines)
		}
	case SourceHTTP:
		if c.Source.URL == "" {
			return nil, invalid("source.url is required for %q sources", SourceHTTP)
		}
		switch strings.ToUpper(c.Source.Method) {
		case http.MethodGet, http.MethodPost:
		default:
			return nil, invalid("source.method must be GET or POST (got: %s)", c.Source.Method)
		}
		if c.Source.Split != SplitLines && c.Source.Split != SplitNone {
			return nil, invalid("source.split must be one of [%s %s] (got: %s)", SplitLines, SplitNone, c.Source.Split)
		}
	case SourceRedis:
		if c.Source.Redis.Addr == "" || c.Source.Redis.Stream == "" || c.Source.Redis.Field == "" {
			return nil, invalid("source.redis.addr, stream and field are required for %q sources", SourceRedis)
		}
	default:
		return nil, invalid("source.kind must be one of [%s %s %s] (got: %s)", SourceLines, SourceHTTP, SourceRedis, c.Source.Kind)
	}

	if c.Throttle.Rate < 0 {
		return nil, invalid("throttle.rate must not be negative")
	}
	if c.Throttle.Rate > 0 && c.Throttle.Burst < 1 {
		return nil, invalid("throttle.burst must be at least 1")
	}
	if c.Retry.Max < 0 {
		return nil, invalid("retry.max must not be negative")
	}
	if c.Retry.Max > 0 && (c.Retry.MinBackoff <= 0 || c.Retry.MaxBackoff < c.Retry.MinBackoff) {
		return nil, invalid("retry backoffs must satisfy 0 < min_backoff <= max_backoff")
	}
	if err := c.Log.Validate(); err != nil {
		return nil, invalid("%s", err)
	}

	r, err := rule.Compile(c.Rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return r, nil
}
