// Package config loads and validates the optional .cmdexec YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deixis/cmdexec/internal/capture"
)

// FileName is the name of the configuration file searched for.
const FileName = ".cmdexec"

// Default values for zero-valued fields.
const (
	DefaultLogLevel        = "info"
	DefaultHistoryCapacity = 64
	DefaultSweepMaxAge     = 24 * time.Hour
)

// Config holds the parsed .cmdexec configuration.
// All fields are optional; zero values represent defaults.
type Config struct {
	Version        int           `yaml:"version"`
	RawTimeout     string        `yaml:"timeout"`         // e.g. "30s"; empty or "0" waits forever
	SpillThreshold int64         `yaml:"spill_threshold"` // bytes kept in memory per stream
	TempDir        string        `yaml:"temp_dir"`        // spill file directory
	Encoding       string        `yaml:"encoding"`        // e.g. "utf-8", "shift_jis"; empty follows the locale
	LogLevel       string        `yaml:"log_level"`
	History        HistoryConfig `yaml:"history"`
	Sweep          SweepConfig   `yaml:"sweep"`
}

// HistoryConfig controls where run records are kept.
type HistoryConfig struct {
	Dir      string `yaml:"dir"`      // default: <user cache dir>/cmdexec/runs
	Capacity int    `yaml:"capacity"` // records cached in memory
}

// SweepConfig controls removal of spill files left behind by crashed runs.
type SweepConfig struct {
	OnStart   bool   `yaml:"on_start"`
	RawMaxAge string `yaml:"max_age"` // e.g. "24h"
}

// Timeout returns the configured timeout. Zero means no timeout.
func (c *Config) Timeout() time.Duration {
	if c.RawTimeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.RawTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Threshold returns the configured spill threshold or the default.
func (c *Config) Threshold() int64 {
	if c.SpillThreshold > 0 {
		return c.SpillThreshold
	}
	return capture.DefaultThreshold
}

// SpillDir returns the directory spill files are written to.
func (c *Config) SpillDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// Level returns the configured log level or the default.
func (c *Config) Level() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return DefaultLogLevel
}

// HistoryDir returns the run record directory. An empty result means the
// user cache directory is unavailable and records go to a temp directory.
func (c *Config) HistoryDir() string {
	if c.History.Dir != "" {
		return c.History.Dir
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(cache, "cmdexec", "runs")
}

// HistoryCapacity returns the in-memory record cache size or the default.
func (c *Config) HistoryCapacity() int {
	if c.History.Capacity > 0 {
		return c.History.Capacity
	}
	return DefaultHistoryCapacity
}

// SweepMaxAge returns the age past which orphaned spill files are removed.
func (c *Config) SweepMaxAge() time.Duration {
	if c.Sweep.RawMaxAge != "" {
		d, err := time.ParseDuration(c.Sweep.RawMaxAge)
		if err == nil && d >= 0 {
			return d
		}
	}
	return DefaultSweepMaxAge
}

// LoadResult holds the parsed config and where it came from.
type LoadResult struct {
	Config *Config
	Path   string // file that was read; empty when defaults are used
}

// Load searches for a .cmdexec file in dir and each of its parents. If
// none exists, a default Config is returned.
func Load(dir string) (*LoadResult, error) {
	path, err := find(dir)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return &LoadResult{Config: &Config{}}, nil
	}
	return LoadFile(path)
}

// LoadFile reads the configuration at path, which must exist.
func LoadFile(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &LoadResult{Config: cfg, Path: path}, nil
}

// find walks upward from dir looking for FileName.
func find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			return path, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("checking %s: %w", path, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
