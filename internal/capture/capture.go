// Package capture provides the sink a child process's output stream is
// drained into. A Capture buffers in memory and spills to a temporary
// file once a byte threshold is exceeded. It becomes readable, repeatably,
// once closed.
//
// A Capture is written by one goroutine and read afterwards; it does no
// locking of its own.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"

	"golang.org/x/text/encoding"

	"github.com/deixis/cmdexec/internal/textenc"
)

// DefaultThreshold is the in-memory limit used when callers have no
// preference.
const DefaultThreshold = 1 << 20 // 1 MiB

// Spill files are named FilePrefix + random + FileSuffix.
const (
	FilePrefix = "cmdexec-capture-"
	FileSuffix = ".tmp"
)

var (
	// ErrState is matched by every *StateError.
	ErrState = errors.New("invalid capture state")
	// ErrInvalidThreshold is returned by New for a negative threshold.
	ErrInvalidThreshold = errors.New("capture threshold must be >= 0")
	// ErrReleased is returned by reads after Release.
	ErrReleased = errors.New("capture released")
)

// State is the lifecycle position of a Capture.
type State int

const (
	// Open accepts writes into memory.
	Open State = iota
	// Spilled accepts writes into the spill file.
	Spilled
	// Closed accepts reads only.
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Spilled:
		return "spilled"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateError reports an operation the capture's state does not allow:
// reading before Close, or writing after it.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("capture: cannot %s while %s", e.Op, e.State)
}

// Is reports ErrState.
func (e *StateError) Is(target error) bool { return target == ErrState }

// Option configures a Capture.
type Option func(*Capture)

// WithDir sets the directory spill files are created in. The default is
// os.TempDir.
func WithDir(dir string) Option {
	return func(c *Capture) {
		c.dir = dir
	}
}

// Capture accumulates one output stream.
type Capture struct {
	threshold int64
	dir       string

	state    State
	spilled  bool
	released bool
	written  int64

	mem     bytes.Buffer
	file    *os.File
	path    string
	cleanup runtime.Cleanup
}

// New returns an open Capture that keeps up to threshold bytes in memory.
func New(threshold int64, opts ...Option) (*Capture, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	c := &Capture{threshold: threshold}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Write appends p. The write that would take the in-memory size past the
// threshold moves everything buffered so far into a new spill file; it and
// every later write go to that file.
func (c *Capture) Write(p []byte) (int, error) {
	if c.state == Closed {
		return 0, &StateError{Op: "write", State: c.state}
	}

	if c.state == Open {
		if c.written+int64(len(p)) <= c.threshold {
			c.mem.Write(p)
			c.written += int64(len(p))
			return len(p), nil
		}
		if err := c.spill(); err != nil {
			return 0, err
		}
	}

	n, err := c.file.Write(p)
	c.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("write spill file %s: %w", c.path, err)
	}
	return n, nil
}

func (c *Capture) spill() error {
	f, err := os.CreateTemp(c.dir, FilePrefix+"*"+FileSuffix)
	if err != nil {
		return fmt.Errorf("create spill file: %w", err)
	}
	if _, err := f.Write(c.mem.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return fmt.Errorf("write spill file %s: %w", f.Name(), err)
	}

	c.file = f
	c.path = f.Name()
	c.state = Spilled
	c.spilled = true
	c.mem = bytes.Buffer{}

	// Remove the file if the capture is dropped without Release.
	c.cleanup = runtime.AddCleanup(c, removeFile, c.path)
	return nil
}

func removeFile(path string) {
	_ = os.Remove(path)
}

// Close ends the write phase. It is idempotent. The capture is closed even
// when closing the spill file reports an error.
func (c *Capture) Close() error {
	if c.state == Closed {
		return nil
	}
	c.state = Closed

	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	if err != nil {
		return fmt.Errorf("close spill file %s: %w", c.path, err)
	}
	return nil
}

// Release closes the capture and deletes its spill file. Reads afterwards
// fail with ErrReleased.
func (c *Capture) Release() error {
	if c.released {
		return nil
	}
	closeErr := c.Close()
	c.released = true
	c.mem = bytes.Buffer{}

	if c.path == "" {
		return closeErr
	}
	c.cleanup.Stop()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(closeErr, fmt.Errorf("remove spill file: %w", err))
	}
	return closeErr
}

// State returns the current state.
func (c *Capture) State() State { return c.state }

// IsSpilled reports whether the capture has ever moved to a spill file.
func (c *Capture) IsSpilled() bool { return c.spilled }

// IsReady reports whether the capture is closed and can be read.
func (c *Capture) IsReady() bool { return c.state == Closed }

// Len returns the number of bytes written so far.
func (c *Capture) Len() int64 { return c.written }

// Path returns the spill file path, or "" while memory-backed.
func (c *Capture) Path() string { return c.path }

func (c *Capture) readable() error {
	if c.released {
		return ErrReleased
	}
	if c.state != Closed {
		return &StateError{Op: "read", State: c.state}
	}
	return nil
}

// Bytes returns the full captured content. Each call reads it afresh.
func (c *Capture) Bytes() ([]byte, error) {
	if err := c.readable(); err != nil {
		return nil, err
	}
	if !c.spilled {
		return bytes.Clone(c.mem.Bytes()), nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read spill file: %w", err)
	}
	return data, nil
}

// Open returns a reader positioned at the start of the captured content.
// Callers must close it. Each call returns an independent reader.
func (c *Capture) Open() (io.ReadCloser, error) {
	if err := c.readable(); err != nil {
		return nil, err
	}
	if !c.spilled {
		return io.NopCloser(bytes.NewReader(bytes.Clone(c.mem.Bytes()))), nil
	}
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open spill file: %w", err)
	}
	return f, nil
}

// Lines decodes the content with enc (nil selects textenc.Default) and
// splits it into lines. See SplitLines.
func (c *Capture) Lines(enc encoding.Encoding) ([]string, error) {
	data, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	text, err := textenc.Decode(enc, data)
	if err != nil {
		return nil, err
	}
	return SplitLines(string(text)), nil
}

// SplitLines splits s on "\n", "\r\n" and "\r". A terminator at the very
// end does not produce a trailing empty line. The result is never nil.
func SplitLines(s string) []string {
	lines := make([]string, 0, bytes.Count([]byte(s), []byte{'\n'})+1)
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\n':
			lines = append(lines, s[start:i])
			start = i + 1
		case '\r':
			lines = append(lines, s[start:i])
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
