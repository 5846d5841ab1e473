package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	touch := func(name string, age time.Duration) string {
		t.Helper()
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		mtime := now.Add(-age)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		return path
	}

	stale := touch(FilePrefix+"111"+FileSuffix, 48*time.Hour)
	fresh := touch(FilePrefix+"222"+FileSuffix, time.Minute)
	other := touch("unrelated-111.tmp", 48*time.Hour)
	require.NoError(t, os.Mkdir(filepath.Join(dir, FilePrefix+"dir"+FileSuffix), 0o755))

	removed, err := Sweep(dir, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, removed)

	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestSweep_RemovesRealSpillFiles(t *testing.T) {
	dir := t.TempDir()
	c, err := New(0, WithDir(dir))
	require.NoError(t, err)
	_, err = c.Write([]byte("orphan"))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	removed, err := Sweep(dir, 0, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{c.Path()}, removed)
}

func TestSweep_MissingDir(t *testing.T) {
	_, err := Sweep(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Now())
	require.Error(t, err)
}
