// Package mcp provides the cmdexec MCP server, exposing command execution
// as tools and publishing model instructions.
package mcp

import (
	"context"
	_ "embed"
	"net/url"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/deixis/cmdexec"
	"github.com/deixis/cmdexec/internal/config"
	"github.com/deixis/cmdexec/internal/report"
	"github.com/deixis/cmdexec/internal/runner"
)

//go:embed instructions.md
var Instructions string

// handler holds shared dependencies for all tool handlers.
type handler struct {
	store report.Store
	log   zerolog.Logger

	mu      sync.Mutex
	cfg     *config.Config
	runner  runner.Runner          // template copied per call; updated from roots
	pending map[string]*pendingRun // exec_start runs not yet in the store
}

func newHandler(cfg *config.Config, r *runner.Runner, store report.Store, log zerolog.Logger) *handler {
	return &handler{
		store:   store,
		log:     log,
		cfg:     cfg,
		runner:  *r,
		pending: make(map[string]*pendingRun),
	}
}

// NewServer creates an MCP server with all cmdexec tools registered. r is
// copied; later changes to it are not observed.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, log zerolog.Logger) *mcp.Server {
	h := newHandler(cfg, r, store, log)

	opts := &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			h.updateWorkspaceFromRoots(ctx, req.Session)
		},
	}
	s := mcp.NewServer(&mcp.Implementation{Name: "cmdexec", Version: cmdexec.Version}, opts)

	mcp.AddTool(s, &mcp.Tool{
		Name: "exec_run",
		Description: `Run a command and wait for it to finish.

The command line is split like a POSIX shell would (quotes and backslashes) but
is not interpreted by a shell: no pipes, redirection, globbing or variables.
Returns the exit code and a preview of stdout and stderr. The full output is
stored; page through it with exec_output.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "exec_start",
		Description: `Start a command in the background and return its run ID immediately.

Use exec_output with the run ID to check whether it has finished and to read its output.`,
	}, h.startHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name: "exec_output",
		Description: `Read the output of a run started by exec_run or exec_start.

Reports "running" while a background run is still in progress. Otherwise returns
a page of lines from the requested stream.`,
	}, h.outputHandler)

	return s
}

// snapshot returns the runner and config a tool call should use.
func (h *handler) snapshot() (*runner.Runner, *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.runner
	return &r, h.cfg
}

// updateWorkspaceFromRoots queries the client for MCP roots and, if a file
// root is returned, runs commands there using the .cmdexec found from it.
// This is called during session initialization, before any tool calls.
func (h *handler) updateWorkspaceFromRoots(ctx context.Context, session *mcp.ServerSession) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	roots, err := session.ListRoots(ctx, &mcp.ListRootsParams{})
	if err != nil {
		return
	}
	if len(roots.Roots) == 0 {
		return
	}

	u, err := url.Parse(roots.Roots[0].URI)
	if err != nil || u.Scheme != "file" {
		return
	}
	workspace := u.Path

	loaded, err := config.Load(workspace)
	if err != nil {
		h.log.Warn().Err(err).Str("workspace", workspace).Msg("ignoring workspace config")
		return
	}
	if err := loaded.Config.Validate(); err != nil {
		h.log.Warn().Err(err).Str("path", loaded.Path).Msg("ignoring invalid workspace config")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = loaded.Config
	h.runner.Dir = workspace
	h.runner.SpillThreshold = loaded.Config.Threshold()
	h.runner.TempDir = loaded.Config.TempDir
	h.log.Info().Str("workspace", workspace).Msg("workspace set from client roots")
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
