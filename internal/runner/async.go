package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deixis/cmdexec/internal/command"
)

// Handle is the pending outcome of Runner.Go. It is single-use.
type Handle struct {
	id     string
	done   chan struct{}
	result *Result
	err    error
}

// Go runs spec on its own goroutine and returns immediately. There is no
// pooling: every call gets a goroutine and a child process.
func (r *Runner) Go(ctx context.Context, spec command.Spec, timeout time.Duration) *Handle {
	h := &Handle{id: uuid.NewString(), done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer func() {
			if p := recover(); p != nil {
				h.result = nil
				h.err = fmt.Errorf("run %s: panic: %v", spec.Program(), p)
			}
		}()
		h.result, h.err = r.run(ctx, h.id, spec, timeout)
	}()
	return h
}

// ID returns the run ID the Result will carry, available before the run
// finishes.
func (h *Handle) ID() string { return h.id }

// Done is closed once the run has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns what Run returned.
func (h *Handle) Wait() (*Result, error) {
	<-h.done
	return h.result, h.err
}
