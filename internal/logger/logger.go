// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

// Package logger builds zerolog loggers from configuration.
package logger

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"

	FieldRunID     = "run_id"
	FieldComponent = "component"
)

type Config struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// ApplyDefaults fills in unset fields.
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatConsole
	}
}

func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Format) {
	case FormatConsole, FormatJSON:
		return nil
	default:
		return fmt.Errorf("log.format must be one of [%s %s] (got: %s)", FormatConsole, FormatJSON, c.Format)
	}
}

// New creates a logger writing to 'out'. An unparseable level falls back to info.
func New(cfg Config, out io.Writer) zerolog.Logger {
	cfg.ApplyDefaults()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	if strings.ToLower(cfg.Format) == FormatConsole {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor,
			TimeFormat: time.RFC3339,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// WithRun tags the logger with a fresh run ID and returns both.
func WithRun(log zerolog.Logger) (zerolog.Logger, string) {
	id := uuid.NewString()
	return log.With().Str(FieldRunID, id).Logger(), id
}

// WithComponent tags the logger with a component name.
func WithComponent(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str(FieldComponent, name).Logger()
}
