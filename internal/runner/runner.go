// Package runner executes external commands, capturing stdout and stderr
// independently, with an optional timeout after which the process is
// killed.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/deixis/cmdexec/internal/capture"
	"github.com/deixis/cmdexec/internal/command"
)

// DefaultWaitDelay bounds how long output pipes held open by escaped
// descendants are waited on after a killed process exits.
const DefaultWaitDelay = 2 * time.Second

// SpillAlways as a Runner's SpillThreshold keeps nothing in memory: every
// non-empty write goes to a spill file.
const SpillAlways int64 = -1

var (
	errTimedOut     = errors.New("timeout reached")
	errEmptyProgram = errors.New("empty program name")
)

// Runner executes commands. The zero value is ready to use.
type Runner struct {
	Dir            string        // working directory; empty inherits the caller's
	SpillThreshold int64         // bytes kept in memory per stream; 0 means capture.DefaultThreshold, negative means SpillAlways
	TempDir        string        // directory for spill files; empty means os.TempDir
	WaitDelay      time.Duration // 0 means DefaultWaitDelay
	Log            zerolog.Logger
}

// Run starts spec, drains its stdout and stderr concurrently into separate
// captures, and waits for it to exit. A timeout of 0 waits indefinitely;
// otherwise the process (and on unix its process group) is killed once the
// timeout elapses and the result reports TimedOut.
//
// A non-zero exit code is not an error. Errors are a *SpawnError when the
// process could not be started, an *IOError when output could not be
// captured, or the cause of ctx when the caller cancelled it. No Result is
// returned alongside an error.
func (r *Runner) Run(ctx context.Context, spec command.Spec, timeout time.Duration) (*Result, error) {
	return r.run(ctx, uuid.NewString(), spec, timeout)
}

func (r *Runner) run(ctx context.Context, runID string, spec command.Spec, timeout time.Duration) (*Result, error) {
	if timeout < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, timeout)
	}
	if spec.IsZero() {
		return nil, &SpawnError{Program: spec.Program(), Err: errEmptyProgram}
	}

	log := r.Log.With().Str("run_id", runID).Str("program", spec.Program()).Logger()

	parent := ctx
	ctx, abort := context.WithCancelCause(ctx)
	defer abort(nil)
	if timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, timeout, errTimedOut)
		defer stop()
	}

	stdout, err := r.newCapture()
	if err != nil {
		return nil, err
	}
	stderr, err := r.newCapture()
	if err != nil {
		releaseAll(stdout)
		return nil, err
	}

	var killed atomic.Bool
	cmd := exec.CommandContext(ctx, spec.Program(), spec.Args()...)
	cmd.Dir = r.Dir
	cmd.WaitDelay = r.waitDelay()
	configureKill(cmd, func() { killed.Store(true) })

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		releaseAll(stdout, stderr)
		return nil, &SpawnError{Program: spec.Program(), Err: err}
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		releaseAll(stdout, stderr)
		return nil, &SpawnError{Program: spec.Program(), Err: err}
	}

	startedAt := time.Now()
	if err := cmd.Start(); err != nil {
		releaseAll(stdout, stderr)
		return nil, &SpawnError{Program: spec.Program(), Err: err}
	}
	log.Debug().Int("pid", cmd.Process.Pid).Strs("args", spec.Args()).Msg("process started")

	// A descendant that left the process group survives the kill and may
	// hold the pipes open. Close them after the wait delay.
	stopClosing := closeAfter(ctx, r.waitDelay(), outPipe, errPipe)

	// Both streams must be drained while the child runs; a child blocked
	// writing to a full pipe never exits.
	var g errgroup.Group
	g.Go(func() error { return drain(ctx, abort, "stdout", stdout, outPipe, log) })
	g.Go(func() error { return drain(ctx, abort, "stderr", stderr, errPipe, log) })
	drainErr := g.Wait()
	stopClosing()

	waitErr := cmd.Wait()
	duration := time.Since(startedAt)
	closeErr := errors.Join(stdout.Close(), stderr.Close())

	if drainErr != nil {
		releaseAll(stdout, stderr)
		return nil, drainErr
	}
	if closeErr != nil {
		releaseAll(stdout, stderr)
		return nil, &IOError{Stream: "close", Err: closeErr}
	}

	exitCode, err := exitStatus(cmd, waitErr)
	if err != nil {
		releaseAll(stdout, stderr)
		return nil, &IOError{Stream: "wait", Err: err}
	}

	timedOut := killed.Load() && errors.Is(context.Cause(ctx), errTimedOut)
	if killed.Load() && !timedOut && parent.Err() != nil {
		releaseAll(stdout, stderr)
		return nil, fmt.Errorf("run %s: %w", spec.Program(), context.Cause(parent))
	}

	if timedOut {
		log.Warn().Dur("timeout", timeout).Msg("timeout reached, process killed")
	}
	log.Debug().
		Int("exit_code", exitCode).
		Bool("timed_out", timedOut).
		Dur("duration", duration).
		Int64("stdout_bytes", stdout.Len()).
		Int64("stderr_bytes", stderr.Len()).
		Msg("process exited")

	return &Result{
		RunID:     runID,
		Command:   spec,
		ExitCode:  exitCode,
		TimedOut:  timedOut,
		StartedAt: startedAt,
		Duration:  duration,
		Stdout:    stdout,
		Stderr:    stderr,
	}, nil
}

func (r *Runner) newCapture() (*capture.Capture, error) {
	threshold := r.SpillThreshold
	switch {
	case threshold == 0:
		threshold = capture.DefaultThreshold
	case threshold < 0:
		threshold = 0
	}
	return capture.New(threshold, capture.WithDir(r.TempDir))
}

func (r *Runner) waitDelay() time.Duration {
	if r.WaitDelay > 0 {
		return r.WaitDelay
	}
	return DefaultWaitDelay
}

// closeAfter closes pipes once delay has passed after ctx is done. The
// returned func disarms it; pipes already closed stay closed.
func closeAfter(ctx context.Context, delay time.Duration, pipes ...io.Closer) (stop func()) {
	var (
		mu      sync.Mutex
		timer   *time.Timer
		stopped bool
	)
	stopWatch := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		timer = time.AfterFunc(delay, func() {
			for _, p := range pipes {
				_ = p.Close()
			}
		})
	})
	return func() {
		stopWatch()
		mu.Lock()
		defer mu.Unlock()
		stopped = true
		if timer != nil {
			timer.Stop()
		}
	}
}

// drain copies src into dst until EOF. On failure it aborts the run so the
// child does not block on a pipe nobody reads.
func drain(ctx context.Context, abort context.CancelCauseFunc, stream string, dst *capture.Capture, src io.Reader, log zerolog.Logger) error {
	_, err := io.Copy(dst, src)
	if err == nil {
		return nil
	}
	// After a kill, closeAfter closes pipes still held open by escaped
	// descendants once the wait delay expires. The output ends there.
	if errors.Is(err, os.ErrClosed) && ctx.Err() != nil {
		log.Warn().Str("stream", stream).Msg("output pipe closed after kill; output may be incomplete")
		return nil
	}
	ioErr := &IOError{Stream: stream, Err: err}
	abort(ioErr)
	return ioErr
}

// exitStatus extracts the exit code from the outcome of cmd.Wait. Any
// error that still left a process state behind (the context killed the
// process) is not a failure of the run.
func exitStatus(cmd *exec.Cmd, waitErr error) (int, error) {
	if waitErr == nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return 0, waitErr
}

func releaseAll(captures ...*capture.Capture) {
	for _, c := range captures {
		_ = c.Release()
	}
}
