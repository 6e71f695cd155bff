// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The filtermap Authors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joamaki/filtermap/internal/logger"
	"github.com/joamaki/filtermap/internal/rule"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loggerDefaults() logger.Config {
	var c logger.Config
	c.ApplyDefaults()
	return c
}

const testYAML = `
source:
  kind: redis
  redis:
    addr: "127.0.0.1:6380"
    stream: events
    block: 250ms
rule:
  kind: jsonpath
  path: user.name
  on_error: drop
throttle:
  rate: 50
  burst: 5
retry:
  max: 3
log:
  level: debug
  format: json
`

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, SourceLines, cfg.Source.Kind)
	assert.Equal(t, "-", cfg.Source.Path)
	assert.Equal(t, "GET", cfg.Source.Method)
	assert.Equal(t, SplitLines, cfg.Source.Split)
	assert.Equal(t, "data", cfg.Source.Redis.Field)
	assert.Equal(t, "$", cfg.Source.Redis.StartID)
	assert.Equal(t, time.Second, cfg.Source.Redis.Block)
	assert.Equal(t, rule.KindExpr, cfg.Rule.Kind)
	assert.Equal(t, rule.OnErrorFail, cfg.Rule.OnError)
	assert.Equal(t, 1, cfg.Throttle.Burst)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.MinBackoff)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxBackoff)
	assert.Equal(t, "info", cfg.Log.Level)

	// The default rule has no expression.
	_, err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorIs(t, err, rule.ErrEmptyRule)
}

func TestLoadFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(LoadOptions{ConfigFile: writeFile(t, "config.yml", testYAML)})
	require.NoError(t, err)

	assert.Equal(t, SourceRedis, cfg.Source.Kind)
	assert.Equal(t, "127.0.0.1:6380", cfg.Source.Redis.Addr)
	assert.Equal(t, "events", cfg.Source.Redis.Stream)
	assert.Equal(t, 250*time.Millisecond, cfg.Source.Redis.Block)
	assert.Equal(t, int64(100), cfg.Source.Redis.Count)
	assert.Equal(t, rule.KindJSONPath, cfg.Rule.Kind)
	assert.Equal(t, rule.OnErrorDrop, cfg.Rule.OnError)
	assert.Equal(t, 50.0, cfg.Throttle.Rate)
	assert.Equal(t, 5, cfg.Throttle.Burst)
	assert.Equal(t, 3, cfg.Retry.Max)
	assert.Equal(t, "json", cfg.Log.Format)

	r, err := cfg.Validate()
	require.NoError(t, err)
	assert.Equal(t, rule.KindJSONPath, r.Kind())
	assert.True(t, r.DropOnError())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("FILTERMAP_RULE_PATH", "user.id")
	t.Setenv("FILTERMAP_SOURCE_REDIS_BLOCK", "2s")
	t.Setenv("FILTERMAP_THROTTLE_RATE", "7.5")

	cfg, err := Load(LoadOptions{ConfigFile: writeFile(t, "config.yml", testYAML)})
	require.NoError(t, err)
	assert.Equal(t, "user.id", cfg.Rule.Path)
	assert.Equal(t, 2*time.Second, cfg.Source.Redis.Block)
	assert.Equal(t, 7.5, cfg.Throttle.Rate)
}

func TestLoadEnvFile(t *testing.T) {
	chdir(t, t.TempDir())
	t.Cleanup(func() { os.Unsetenv("FILTERMAP_RULE_PATTERN") })

	envFile := writeFile(t, "test.env", "FILTERMAP_RULE_KIND=regexp\nFILTERMAP_RULE_PATTERN=id=(\\d+)\n")
	t.Cleanup(func() { os.Unsetenv("FILTERMAP_RULE_KIND") })

	cfg, err := Load(LoadOptions{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, rule.KindRegexp, cfg.Rule.Kind)
	assert.Equal(t, `id=(\d+)`, cfg.Rule.Pattern)

	_, err = cfg.Validate()
	require.NoError(t, err)

	_, err = Load(LoadOptions{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
}

func TestLoadMissingConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	_, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "missing.yml")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Source: SourceConfig{Kind: SourceLines, Path: "-"},
			Rule:   rule.Config{Kind: rule.KindRegexp, Pattern: "x"},
			Log:    loggerDefaults(),
		}
	}

	cfg := valid()
	_, err := cfg.Validate()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Source.Kind = "kafka" }},
		{"lines without path", func(c *Config) { c.Source.Path = "" }},
		{"http without url", func(c *Config) { c.Source.Kind = SourceHTTP }},
		{"http bad method", func(c *Config) {
			c.Source = SourceConfig{Kind: SourceHTTP, URL: "http://x", Method: "DELETE", Split: SplitLines}
		}},
		{"http bad split", func(c *Config) {
			c.Source = SourceConfig{Kind: SourceHTTP, URL: "http://x", Method: "GET", Split: "words"}
		}},
		{"redis without stream", func(c *Config) { c.Source.Kind = SourceRedis; c.Source.Redis.Addr = "x"; c.Source.Redis.Field = "data" }},
		{"negative rate", func(c *Config) { c.Throttle.Rate = -1 }},
		{"zero burst", func(c *Config) { c.Throttle.Rate = 1 }},
		{"negative retries", func(c *Config) { c.Retry.Max = -1 }},
		{"bad backoff", func(c *Config) { c.Retry.Max = 1; c.Retry.MinBackoff = time.Second; c.Retry.MaxBackoff = time.Millisecond }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad rule", func(c *Config) { c.Rule.Pattern = "(" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			_, err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
