package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"

	"github.com/deixis/cmdexec/internal/textenc"
)

// Validate checks every field and reports all problems at once as
// criterio.FieldErrors.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("timeout", c.RawTimeout, isDuration),
		criterio.Run("spill_threshold", c.SpillThreshold, isNonNegative),
		criterio.Run("temp_dir", c.TempDir, isExistingDirectory),
		criterio.Run("encoding", c.Encoding, isKnownEncoding),
		criterio.Run("log_level", c.LogLevel, isLogLevel),
		criterio.Run("history.capacity", c.History.Capacity, isNonNegativeInt),
		criterio.Run("sweep.max_age", c.Sweep.RawMaxAge, isDuration),
		c.validateHistoryDir(),
	)
}

func (c *Config) validateHistoryDir() error {
	if c.History.Dir == "" {
		return nil
	}
	info, err := os.Stat(c.History.Dir)
	if os.IsNotExist(err) {
		return nil // created on first save
	}
	if err != nil {
		return criterio.NewFieldErrors("history.dir", fmt.Errorf("cannot access: %w", err))
	}
	if !info.IsDir() {
		return criterio.NewFieldErrors("history.dir", fmt.Errorf("exists but is not a directory"))
	}
	return nil
}

func isDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return fmt.Errorf("duration %q is negative", s)
	}
	return nil
}

func isNonNegative(n int64) error {
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func isNonNegativeInt(n int) error {
	return isNonNegative(int64(n))
}

func isExistingDirectory(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

func isKnownEncoding(name string) error {
	_, err := textenc.Lookup(name)
	return err
}

func isLogLevel(level string) error {
	if level == "" {
		return nil
	}
	if _, err := zerolog.ParseLevel(level); err != nil {
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}
