package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/encoding"

	"github.com/deixis/cmdexec/internal/command"
	"github.com/deixis/cmdexec/internal/config"
	"github.com/deixis/cmdexec/internal/report"
	"github.com/deixis/cmdexec/internal/runner"
	"github.com/deixis/cmdexec/internal/textenc"
)

// previewLines is how many lines of each stream exec_run returns inline.
const previewLines = 50

type execParams struct {
	Command   string `json:"command" jsonschema:"the command line to run, e.g. ls -la \"my dir\""`
	TimeoutMS *int64 `json:"timeout_ms,omitempty" jsonschema:"kill the command after this many milliseconds; 0 waits forever. Defaults to the configured timeout."`
	Encoding  string `json:"encoding,omitempty" jsonschema:"character encoding of the command's output, e.g. utf-8, shift_jis, euc-jp. Defaults to the configured encoding."`
}

// prepared is a validated exec request.
type prepared struct {
	spec    command.Spec
	timeout time.Duration
	enc     encoding.Encoding
}

func prepare(params execParams, cfg *config.Config) (*prepared, error) {
	spec, err := command.Parse(params.Command)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout()
	if params.TimeoutMS != nil {
		if *params.TimeoutMS < 0 {
			return nil, fmt.Errorf("timeout_ms must be >= 0, got %d", *params.TimeoutMS)
		}
		timeout = time.Duration(*params.TimeoutMS) * time.Millisecond
	}

	name := params.Encoding
	if name == "" {
		name = cfg.Encoding
	}
	enc, err := textenc.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &prepared{spec: spec, timeout: timeout, enc: enc}, nil
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params execParams) (*mcp.CallToolResult, any, error) {
	r, cfg := h.snapshot()
	p, err := prepare(params, cfg)
	if err != nil {
		return errorResult(err.Error())
	}

	res, err := r.Run(ctx, p.spec, p.timeout)
	if err != nil {
		return errorResult(describe(err))
	}
	rec, err := h.record(res, p.enc)
	if err != nil {
		return errorResult(err.Error())
	}
	h.save(rec)
	return textResult(formatRun(rec))
}

func (h *handler) startHandler(ctx context.Context, req *mcp.CallToolRequest, params execParams) (*mcp.CallToolResult, any, error) {
	r, cfg := h.snapshot()
	p, err := prepare(params, cfg)
	if err != nil {
		return errorResult(err.Error())
	}

	// The run outlives this tool call.
	id := h.start(ctx, r, p)
	h.log.Debug().Str("run_id", id).Str("command", p.spec.String()).Msg("background run started")
	return textResult(fmt.Sprintf("Started: %s\nRun: %s\n\nPoll with exec_output(run_id=%q).\n", p.spec, id, id))
}

// start runs p in the background and returns its run ID. The result is
// collected as soon as the run finishes, whether or not anyone polls it.
func (h *handler) start(ctx context.Context, r *runner.Runner, p *prepared) string {
	handle := r.Go(context.WithoutCancel(ctx), p.spec, p.timeout)
	pr := &pendingRun{handle: handle, enc: p.enc, collected: make(chan struct{})}

	h.mu.Lock()
	h.pending[handle.ID()] = pr
	h.mu.Unlock()

	go h.await(pr)
	return handle.ID()
}

// await collects pr once its run finishes. A run whose record reached the
// store leaves pending; failures stay so every poll reports them.
func (h *handler) await(pr *pendingRun) {
	id := pr.handle.ID()
	res, err := pr.handle.Wait()
	if err != nil {
		pr.err = fmt.Errorf("run %s failed: %w", id, err)
		h.log.Warn().Err(err).Str("run_id", id).Msg("background run failed")
	} else {
		pr.rec, pr.err = h.record(res, pr.enc)
	}
	saved := pr.err == nil && h.save(pr.rec)
	close(pr.collected)

	if saved {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}
}

// record turns a finished result into a record and releases the result's
// spill files.
func (h *handler) record(res *runner.Result, enc encoding.Encoding) (*report.Record, error) {
	defer func() {
		if err := res.Release(); err != nil {
			h.log.Warn().Err(err).Str("run_id", res.RunID).Msg("releasing captures")
		}
	}()
	return report.NewRecord(res, enc)
}

// save stores rec and reports whether it succeeded. A failure only costs
// later exec_output calls.
func (h *handler) save(rec *report.Record) bool {
	if err := h.store.Save(rec); err != nil {
		h.log.Error().Err(err).Str("run_id", rec.ID).Msg("saving run record")
		return false
	}
	return true
}

func formatRun(rec *report.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintf(&b, "Command: %s\n", command.New(rec.Program, rec.Args...))
	fmt.Fprintf(&b, "ExitCode: %d\n", rec.ExitCode)
	if rec.TimedOut {
		fmt.Fprintln(&b, "TimedOut: true")
	}
	fmt.Fprintf(&b, "Duration: %s\n", time.Duration(rec.DurationMS)*time.Millisecond)

	writePreview(&b, "Stdout", "1>", rec.Stdout)
	writePreview(&b, "Stderr", "2>", rec.Stderr)

	if len(rec.Stdout) > previewLines || len(rec.Stderr) > previewLines {
		fmt.Fprintf(&b, "\nOutput truncated. Read more with exec_output(run_id=%q, stream=\"stdout\", offset=%d).\n", rec.ID, previewLines)
	}
	return b.String()
}

func writePreview(b *strings.Builder, title, prefix string, lines []string) {
	fmt.Fprintln(b)
	fmt.Fprintf(b, "%s (%d lines):\n", title, len(lines))
	for _, l := range report.Page(lines, 0, previewLines) {
		fmt.Fprintf(b, "%s  %s\n", prefix, l)
	}
}

// describe renders a run failure the way tool results report it.
func describe(err error) string {
	switch {
	case errors.Is(err, runner.ErrSpawn):
		return fmt.Sprintf("could not start command: %v", err)
	case errors.Is(err, runner.ErrIO):
		return fmt.Sprintf("could not capture output: %v", err)
	}
	return err.Error()
}
