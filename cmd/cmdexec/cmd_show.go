package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/deixis/cmdexec/internal/report"
)

type ShowCmd struct {
	flags *Flags

	stream string
	json   bool
}

// NewShowCmd creates a new show command
func NewShowCmd(flags *Flags) *ShowCmd {
	return &ShowCmd{flags: flags}
}

// Register adds the show command to the application
func (cmd *ShowCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "show",
		Usage:     "Print a run saved with 'cmdexec run --save'",
		UsageText: "cmdexec show [--stream stdout|stderr] [--json] RUN_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "stream",
				Aliases:     []string{"s"},
				Usage:       "print only this stream's lines, without prefixes",
				Destination: &cmd.stream,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the record as JSON",
				Destination: &cmd.json,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ShowCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one run ID, got %d", c.Args().Len())
	}
	runID := c.Args().First()

	rec, err := cmd.flags.Store().Load(runID)
	if err != nil {
		return err
	}

	out := c.Root().Writer
	switch {
	case cmd.json:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	case cmd.stream != "":
		stream, err := report.ParseStream(cmd.stream)
		if err != nil {
			return err
		}
		lines, err := rec.Lines(stream)
		if err != nil {
			return err
		}
		for _, l := range lines {
			if _, err := fmt.Fprintln(out, l); err != nil {
				return err
			}
		}
		return nil
	}

	newPrinter(out, colorEnabled(out)).record(rec, true)
	return nil
}
