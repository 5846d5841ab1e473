package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn is matched by every *SpawnError.
	ErrSpawn = errors.New("spawn process")
	// ErrIO is matched by every *IOError.
	ErrIO = errors.New("process output")
	// ErrInvalidTimeout is returned for negative timeouts.
	ErrInvalidTimeout = errors.New("timeout must be >= 0")
)

// SpawnError reports a child process that could not be started: missing
// executable, permission denied, or the OS refusing to launch it.
type SpawnError struct {
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Is reports ErrSpawn.
func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// IOError reports an unexpected failure while draining a child's output
// stream or writing it to its capture.
type IOError struct {
	Stream string // "stdout", "stderr", or "wait"
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stream, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is reports ErrIO.
func (e *IOError) Is(target error) bool { return target == ErrIO }
