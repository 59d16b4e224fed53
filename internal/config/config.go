// Package config loads and validates the optional .procrun YAML file.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the configuration file searched for by Load.
const FileName = ".procrun"

// Default values.
const (
	DefaultHistoryCapacity = 16
	DefaultLogLevel        = "warn"
	DefaultLogFormat       = "console"
)

// Config holds the parsed .procrun configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version      int           `yaml:"version"`
	RawTimeout   string        `yaml:"timeout"`    // e.g. "30s" or 2.5 seconds; empty waits for natural exit
	AllowFork    bool          `yaml:"allow_fork"` // unblock SIGCHLD in children
	RawKillGrace string        `yaml:"kill_grace"` // SIGKILL this long after SIGTERM
	RawMaxOutput int           `yaml:"max_output"` // bytes per stream; 0 keeps everything
	History      HistoryConfig `yaml:"history"`
	Log          LogConfig     `yaml:"log"`
}

// HistoryConfig controls where finished runs are kept.
type HistoryConfig struct {
	Dir      string `yaml:"dir"`      // default: <user cache dir>/procrun
	Capacity int    `yaml:"capacity"` // runs held in memory
}

// LogConfig controls diagnostic logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// Timeout returns the configured timeout, or 0 for none.
func (c *Config) Timeout() time.Duration {
	return parsePositive(c.RawTimeout)
}

// KillGrace returns the configured SIGTERM-to-SIGKILL grace, or 0 to never
// escalate.
func (c *Config) KillGrace() time.Duration {
	return parsePositive(c.RawKillGrace)
}

// MaxOutputBytes returns the configured per-stream output cap, or 0 for none.
func (c *Config) MaxOutputBytes() int {
	return max(c.RawMaxOutput, 0)
}

// HistoryDir returns the directory holding saved runs.
func (c *Config) HistoryDir() string {
	if c.History.Dir != "" {
		return c.History.Dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(cache, "procrun")
}

// HistoryCapacity returns the in-memory run cache size.
func (c *Config) HistoryCapacity() int {
	if c.History.Capacity > 0 {
		return c.History.Capacity
	}
	return DefaultHistoryCapacity
}

// LogLevel returns the configured log level or the default.
func (c *Config) LogLevel() string {
	if c.Log.Level != "" {
		return c.Log.Level
	}
	return DefaultLogLevel
}

// LogFormat returns the configured log format or the default.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	return DefaultLogFormat
}

// Validate reports malformed values. Missing values are never an error.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"timeout": c.RawTimeout, "kill_grace": c.RawKillGrace} {
		if raw == "" {
			continue
		}
		if _, err := ParseDuration(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch c.LogFormat() {
	case "console", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// ParseDuration reads a Go duration ("1m30s") or a plain number of seconds
// ("2.5"). Flags and PROCRUN_* variables go through the same rule as the
// file. Non-positive numbers of seconds yield 0.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(secs) {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	switch {
	case secs <= 0:
		return 0, nil
	case secs >= float64(math.MaxInt64)/float64(time.Second):
		return time.Duration(math.MaxInt64), nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func parsePositive(raw string) time.Duration {
	d, err := ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

// LoadResult holds the parsed config and where it came from.
type LoadResult struct {
	Config *Config
	Path   string // file that was read; empty if none was found
}

// Load reads the nearest .procrun file, searching dir and then each parent
// directory. If none exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	path, err := find(dir)
	if err != nil {
		return &LoadResult{Config: &Config{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

// find walks upward from dir looking for a config file.
func find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found", FileName)
		}
		dir = parent
	}
}
