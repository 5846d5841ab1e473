// Package report provides structured persistence and retrieval of
// command run records. A record is a self-contained snapshot of a run:
// the command, its exit status and its decoded output lines.
package report

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/encoding"

	"github.com/deixis/cmdexec/internal/runner"
	"github.com/deixis/cmdexec/internal/textenc"
)

// ErrNotFound is returned by stores when no record exists for a run ID.
var ErrNotFound = errors.New("run record not found")

// Stream identifies one of the two captured output streams.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// ParseStream validates a stream name. The empty string means Stdout.
func ParseStream(s string) (Stream, error) {
	switch Stream(s) {
	case "", Stdout:
		return Stdout, nil
	case Stderr:
		return Stderr, nil
	}
	return "", fmt.Errorf("unknown stream %q (want stdout or stderr)", s)
}

// Store persists and retrieves run records.
type Store interface {
	Save(rec *Record) error
	Load(runID string) (*Record, error)
}

// Record holds the persisted form of a runner.Result.
type Record struct {
	ID         string    `json:"id"`
	Program    string    `json:"program"`
	Args       []string  `json:"args,omitempty"`
	ExitCode   int       `json:"exit_code"`
	TimedOut   bool      `json:"timed_out,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Encoding   string    `json:"encoding"`

	Stdout      []string `json:"stdout"`
	Stderr      []string `json:"stderr"`
	StdoutBytes int64    `json:"stdout_bytes"`
	StderrBytes int64    `json:"stderr_bytes"`
	Spilled     bool     `json:"spilled,omitempty"` // either stream exceeded the memory threshold
}

// NewRecord decodes both streams of res with enc (nil means the platform
// default) into a Record. res is not released.
func NewRecord(res *runner.Result, enc encoding.Encoding) (*Record, error) {
	if enc == nil {
		enc = textenc.Default()
	}
	stdout, err := res.StdoutLines(enc)
	if err != nil {
		return nil, fmt.Errorf("decoding stdout of run %s: %w", res.RunID, err)
	}
	stderr, err := res.StderrLines(enc)
	if err != nil {
		return nil, fmt.Errorf("decoding stderr of run %s: %w", res.RunID, err)
	}
	return &Record{
		ID:          res.RunID,
		Program:     res.Command.Program(),
		Args:        res.Command.Args(),
		ExitCode:    res.ExitCode,
		TimedOut:    res.TimedOut,
		StartedAt:   res.StartedAt,
		DurationMS:  res.Duration.Milliseconds(),
		Encoding:    textenc.Name(enc),
		Stdout:      stdout,
		Stderr:      stderr,
		StdoutBytes: res.Stdout.Len(),
		StderrBytes: res.Stderr.Len(),
		Spilled:     res.Stdout.IsSpilled() || res.Stderr.IsSpilled(),
	}, nil
}

// Argv returns the program followed by its arguments.
func (r *Record) Argv() []string {
	return append([]string{r.Program}, r.Args...)
}

// Lines returns the decoded lines of one stream.
func (r *Record) Lines(s Stream) ([]string, error) {
	switch s {
	case Stdout:
		return r.Stdout, nil
	case Stderr:
		return r.Stderr, nil
	}
	return nil, fmt.Errorf("run %s: unknown stream %q", r.ID, s)
}

// Page returns up to limit lines starting at offset. Out of range offsets
// yield an empty page; limit <= 0 means no limit.
func Page(lines []string, offset, limit int) []string {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(lines) {
		return []string{}
	}
	end := len(lines)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return lines[offset:end]
}
