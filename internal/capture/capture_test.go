package capture

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/unicode"
)

func newCapture(t *testing.T, threshold int64) *Capture {
	t.Helper()
	c, err := New(threshold, WithDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Release() })
	return c
}

func writeAndClose(t *testing.T, threshold int64, data string) *Capture {
	t.Helper()
	c := newCapture(t, threshold)
	_, err := c.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	return c
}

func TestNew_NegativeThreshold(t *testing.T) {
	_, err := New(-1)
	require.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestSpillBoundary(t *testing.T) {
	t.Run("exactly threshold stays in memory", func(t *testing.T) {
		data := strings.Repeat("x", 10)
		c := writeAndClose(t, 10, data)

		assert.False(t, c.IsSpilled())
		assert.Empty(t, c.Path())
		got, err := c.Bytes()
		require.NoError(t, err)
		assert.Equal(t, []byte(data), got)
	})

	t.Run("threshold plus one spills", func(t *testing.T) {
		data := strings.Repeat("x", 11)
		c := writeAndClose(t, 10, data)

		assert.True(t, c.IsSpilled())
		assert.FileExists(t, c.Path())
		got, err := c.Bytes()
		require.NoError(t, err)
		assert.Equal(t, []byte(data), got)
	})

	t.Run("spill across several writes keeps order", func(t *testing.T) {
		c := newCapture(t, 10)
		for _, chunk := range []string{"0123", "4567", "89ab", "cdefghijk"} {
			_, err := c.Write([]byte(chunk))
			require.NoError(t, err)
		}
		assert.Equal(t, Spilled, c.State())
		require.NoError(t, c.Close())

		got, err := c.Bytes()
		require.NoError(t, err)
		assert.Equal(t, "0123456789abcdefghijk", string(got))
		assert.EqualValues(t, 21, c.Len())
	})

	t.Run("zero threshold spills on first byte", func(t *testing.T) {
		c := writeAndClose(t, 0, "0123456789")
		assert.True(t, c.IsSpilled())
		lines, err := c.Lines(unicode.UTF8)
		require.NoError(t, err)
		assert.Equal(t, []string{"0123456789"}, lines)
	})
}

func TestSpill_TwentyOneBytes(t *testing.T) {
	data := "0123456789\n9876543210"
	require.Len(t, data, 21)

	c := writeAndClose(t, 10, data)
	assert.True(t, c.IsSpilled())

	got, err := c.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte(data), got)

	lines, err := c.Lines(unicode.UTF8)
	require.NoError(t, err)
	assert.Equal(t, []string{"0123456789", "9876543210"}, lines)
}

func TestSpill_FileName(t *testing.T) {
	c := writeAndClose(t, 0, "x")
	name := filepath.Base(c.Path())
	assert.True(t, strings.HasPrefix(name, FilePrefix), name)
	assert.True(t, strings.HasSuffix(name, FileSuffix), name)
}

func TestReadBeforeClose(t *testing.T) {
	for _, threshold := range []int64{0, 1024} {
		c := newCapture(t, threshold)
		_, err := c.Write([]byte("data"))
		require.NoError(t, err)

		assert.False(t, c.IsReady())

		_, err = c.Bytes()
		require.ErrorIs(t, err, ErrState)
		_, err = c.Lines(nil)
		require.ErrorIs(t, err, ErrState)
		_, err = c.Open()
		require.ErrorIs(t, err, ErrState)

		require.NoError(t, c.Close())
		assert.True(t, c.IsReady())
	}
}

func TestWriteAfterClose(t *testing.T) {
	c := writeAndClose(t, 1024, "data")

	_, err := c.Write([]byte("more"))
	require.ErrorIs(t, err, ErrState)

	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "write", se.Op)
	assert.Equal(t, Closed, se.State)
}

func TestClose_Idempotent(t *testing.T) {
	c := writeAndClose(t, 0, "spilled")
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.IsSpilled(), "spilling is one-way")
}

func TestReads_Repeatable(t *testing.T) {
	for _, threshold := range []int64{0, 1024} {
		c := writeAndClose(t, threshold, "a\nb\n")

		first, err := c.Bytes()
		require.NoError(t, err)
		second, err := c.Bytes()
		require.NoError(t, err)
		assert.Equal(t, first, second)

		l1, err := c.Lines(nil)
		require.NoError(t, err)
		l2, err := c.Lines(nil)
		require.NoError(t, err)
		assert.Equal(t, l1, l2)

		for range 2 {
			r, err := c.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())
			assert.Equal(t, "a\nb\n", string(data))
		}
	}
}

func TestBytes_ReturnsCopy(t *testing.T) {
	c := writeAndClose(t, 1024, "abc")
	got, err := c.Bytes()
	require.NoError(t, err)
	got[0] = 'z'

	again, err := c.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again))
}

func TestLines_Encoding(t *testing.T) {
	raw, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("日本語\nテスト\n"))
	require.NoError(t, err)

	c := writeAndClose(t, 4, string(raw))
	lines, err := c.Lines(japanese.ShiftJIS)
	require.NoError(t, err)
	assert.Equal(t, []string{"日本語", "テスト"}, lines)
}

func TestLines_Empty(t *testing.T) {
	c := writeAndClose(t, 1024, "")
	lines, err := c.Lines(nil)
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: []string{}},
		{in: "a\nb\n", want: []string{"a", "b"}},
		{in: "a\nb", want: []string{"a", "b"}},
		{in: "a\r\nb\r\n", want: []string{"a", "b"}},
		{in: "a\rb", want: []string{"a", "b"}},
		{in: "\n", want: []string{""}},
		{in: "a\n\n", want: []string{"a", ""}},
		{in: "\n\na", want: []string{"", "", "a"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitLines(tt.in), "input %q", tt.in)
	}
}

func TestRelease(t *testing.T) {
	c := writeAndClose(t, 0, "spilled")
	path := c.Path()
	require.FileExists(t, path)

	require.NoError(t, c.Release())
	assert.NoFileExists(t, path)

	_, err := c.Bytes()
	require.ErrorIs(t, err, ErrReleased)

	require.NoError(t, c.Release())
}

func TestRelease_OpenCapture(t *testing.T) {
	c := newCapture(t, 0)
	_, err := c.Write([]byte("partial"))
	require.NoError(t, err)
	path := c.Path()

	require.NoError(t, c.Release())
	assert.NoFileExists(t, path)
	assert.True(t, c.IsReady())
}

func TestSpill_CreateFails(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing")
	c, err := New(2, WithDir(dir))
	require.NoError(t, err)

	_, err = c.Write([]byte("abc"))
	require.Error(t, err)
	assert.False(t, c.IsSpilled())

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}
