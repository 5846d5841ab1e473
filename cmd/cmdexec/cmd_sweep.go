package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/deixis/cmdexec/internal/capture"
	"github.com/deixis/cmdexec/internal/logutils"
)

type SweepCmd struct {
	flags *Flags

	maxAge time.Duration
	dir    string
}

// NewSweepCmd creates a new sweep command
func NewSweepCmd(flags *Flags) *SweepCmd {
	return &SweepCmd{flags: flags}
}

// Register adds the sweep command to the application
func (cmd *SweepCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sweep",
		Usage:     "Remove spill files left behind by interrupted runs",
		UsageText: "cmdexec sweep [--max-age D] [--dir DIR]",
		Description: fmt.Sprintf(`Deletes files matching %s in the spill directory that are older
than --max-age. Spill files of runs still in progress are younger than any
sensible max age and are left alone.`, capture.Pattern),
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "max-age",
				Usage:       "only remove files older than this (default from config, 24h)",
				Destination: &cmd.maxAge,
			},
			&cli.StringFlag{
				Name:        "dir",
				Usage:       "spill directory to sweep (default from config or the system temp dir)",
				Destination: &cmd.dir,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SweepCmd) run(ctx context.Context, c *cli.Command) error {
	cfg := cmd.flags.Config

	maxAge := cfg.SweepMaxAge()
	if c.IsSet("max-age") {
		if cmd.maxAge < 0 {
			return fmt.Errorf("--max-age must be >= 0, got %s", cmd.maxAge)
		}
		maxAge = cmd.maxAge
	}
	dir := cfg.SpillDir()
	if cmd.dir != "" {
		dir = cmd.dir
	}

	removed := sweepSpillFiles(dir, maxAge, logutils.Component(cmd.flags.Log, "sweep"))

	out := c.Root().Writer
	for _, path := range removed {
		fmt.Fprintln(out, path)
	}
	_, err := fmt.Fprintf(out, "Removed %d spill file(s) from %s\n", len(removed), dir)
	return err
}
