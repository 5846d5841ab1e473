package runner

import (
	"errors"
	"time"

	"golang.org/x/text/encoding"

	"github.com/deixis/cmdexec/internal/capture"
	"github.com/deixis/cmdexec/internal/command"
)

// ExitCodeSignaled is the exit code reported for a child terminated by a
// signal, including one killed after its timeout.
const ExitCodeSignaled = -1

// Result holds the outcome of one execution. Both captures are closed.
// The exit code is passed through from the OS and carries no success or
// failure meaning here.
type Result struct {
	RunID     string           // unique identifier for this run
	Command   command.Spec     // what was run
	ExitCode  int              // process exit code; ExitCodeSignaled if killed
	TimedOut  bool             // true if the timeout guard killed the process
	StartedAt time.Time        // when the process was spawned
	Duration  time.Duration    // spawn to reap
	Stdout    *capture.Capture // closed stdout capture
	Stderr    *capture.Capture // closed stderr capture
}

// Success reports whether the exit code is 0.
func (r *Result) Success() bool { return r.ExitCode == 0 }

// StdoutBytes returns everything the process wrote to stdout.
func (r *Result) StdoutBytes() ([]byte, error) { return r.Stdout.Bytes() }

// StderrBytes returns everything the process wrote to stderr.
func (r *Result) StderrBytes() ([]byte, error) { return r.Stderr.Bytes() }

// StdoutLines decodes stdout with enc (nil for the platform default) and
// splits it into lines.
func (r *Result) StdoutLines(enc encoding.Encoding) ([]string, error) {
	return r.Stdout.Lines(enc)
}

// StderrLines decodes stderr with enc (nil for the platform default) and
// splits it into lines.
func (r *Result) StderrLines(enc encoding.Encoding) ([]string, error) {
	return r.Stderr.Lines(enc)
}

// Release deletes any spill files behind the captures.
func (r *Result) Release() error {
	return errors.Join(r.Stdout.Release(), r.Stderr.Release())
}
