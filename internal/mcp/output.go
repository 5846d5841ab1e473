package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/encoding"

	"github.com/deixis/cmdexec/internal/report"
	"github.com/deixis/cmdexec/internal/runner"
)

// defaultPageSize is the number of lines exec_output returns when no limit
// is given.
const defaultPageSize = 200

// pendingRun is an exec_start run whose record is not in the store. rec and
// err are set before collected is closed.
type pendingRun struct {
	handle    *runner.Handle
	enc       encoding.Encoding
	collected chan struct{}
	rec       *report.Record
	err       error
}

type outputParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from an exec_run or exec_start result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout (default) or stderr"`
	Offset int    `json:"offset,omitempty" jsonschema:"first line to return, counting from 0"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of lines to return; default 200"`
}

func (h *handler) outputHandler(ctx context.Context, req *mcp.CallToolRequest, params outputParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	stream, err := report.ParseStream(params.Stream)
	if err != nil {
		return errorResult(err.Error())
	}
	if params.Offset < 0 || params.Limit < 0 {
		return errorResult("offset and limit must be >= 0")
	}

	rec, running, err := h.lookup(params.RunID)
	if err != nil {
		return errorResult(describe(err))
	}
	if running {
		return textResult(fmt.Sprintf("Run: %s\nStatus: running\n", params.RunID))
	}

	lines, err := rec.Lines(stream)
	if err != nil {
		return errorResult(err.Error())
	}
	limit := params.Limit
	if limit == 0 {
		limit = defaultPageSize
	}
	return textResult(formatPage(rec, stream, lines, params.Offset, limit))
}

// lookup finds a run's record. The second result reports an exec_start run
// that has not been collected yet.
func (h *handler) lookup(runID string) (*report.Record, bool, error) {
	h.mu.Lock()
	p, ok := h.pending[runID]
	h.mu.Unlock()

	if ok {
		select {
		case <-p.collected:
			return p.rec, false, p.err
		default:
			return nil, true, nil
		}
	}

	rec, err := h.store.Load(runID)
	if errors.Is(err, report.ErrNotFound) {
		return nil, false, fmt.Errorf("unknown run %s", runID)
	}
	return rec, false, err
}

func formatPage(rec *report.Record, stream report.Stream, lines []string, offset, limit int) string {
	var b strings.Builder

	page := report.Page(lines, offset, limit)
	fmt.Fprintf(&b, "Run: %s\n", rec.ID)
	fmt.Fprintln(&b, "Status: finished")
	fmt.Fprintf(&b, "ExitCode: %d\n", rec.ExitCode)
	if rec.TimedOut {
		fmt.Fprintln(&b, "TimedOut: true")
	}

	prefix := "1>"
	if stream == report.Stderr {
		prefix = "2>"
	}
	if len(page) == 0 {
		fmt.Fprintf(&b, "\n%s: no lines at offset %d (%d total)\n", stream, offset, len(lines))
		return b.String()
	}
	end := offset + len(page)
	fmt.Fprintf(&b, "\n%s lines %d-%d of %d:\n", stream, offset, end-1, len(lines))
	for _, l := range page {
		fmt.Fprintf(&b, "%s  %s\n", prefix, l)
	}
	if end < len(lines) {
		fmt.Fprintf(&b, "\nMore: exec_output(run_id=%q, stream=%q, offset=%d).\n", rec.ID, stream, end)
	}
	return b.String()
}
