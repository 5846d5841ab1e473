package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern matches spill file names.
const Pattern = FilePrefix + "*" + FileSuffix

// Sweep removes spill files in dir ("" means os.TempDir) whose
// modification time is at least maxAge before now. Such files are left
// behind by processes that exited before releasing their captures. It
// returns the removed paths.
func Sweep(dir string, maxAge time.Duration, now time.Time) ([]string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var (
		removed []string
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := doublestar.Match(Pattern, e.Name())
		if err != nil {
			return removed, fmt.Errorf("match %s: %w", Pattern, err)
		}
		if !ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue // removed since ReadDir
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}

		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed = append(removed, path)
	}

	return removed, errors.Join(errs...)
}
