package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/deixis/cmdexec/internal/logutils"
	cmdmcp "github.com/deixis/cmdexec/internal/mcp"
)

type MCPCmd struct {
	flags *Flags

	http         string
	instructions bool
}

// NewMCPCmd creates a new mcp command
func NewMCPCmd(flags *Flags) *MCPCmd {
	return &MCPCmd{flags: flags}
}

// Register adds the mcp command to the application
func (cmd *MCPCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "mcp",
		Usage:     "Start the MCP server",
		UsageText: "cmdexec mcp [--http ADDR] [--instructions]",
		Description: `Serves the exec_run, exec_start and exec_output tools over stdio, or over
streamable HTTP when --http is given. Commands run in the working directory,
or in the first root the client reports.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "http",
				Usage:       "serve streamable HTTP on this address (e.g. :9090) instead of stdio",
				Destination: &cmd.http,
			},
			&cli.BoolFlag{
				Name:        "instructions",
				Usage:       "print model instructions and exit",
				Destination: &cmd.instructions,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *MCPCmd) run(ctx context.Context, c *cli.Command) error {
	if cmd.instructions {
		_, err := fmt.Fprint(c.Root().Writer, cmdmcp.Instructions)
		return err
	}

	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	r := cmd.flags.Runner()
	r.Dir = workspace
	log := logutils.Component(cmd.flags.Log, "mcp")
	server := cmdmcp.NewServer(cmd.flags.Config, r, cmd.flags.Store(), log)

	if cmd.http != "" {
		return serveHTTP(ctx, server, cmd.http, log)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, log zerolog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	log.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
