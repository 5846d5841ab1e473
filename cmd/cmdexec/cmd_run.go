package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/text/encoding"

	"github.com/deixis/cmdexec/internal/command"
	"github.com/deixis/cmdexec/internal/report"
	"github.com/deixis/cmdexec/internal/runner"
	"github.com/deixis/cmdexec/internal/textenc"
)

type RunCmd struct {
	flags *Flags

	commands []string
	timeout  time.Duration
	encoding string
	json     bool
	save     bool
}

// NewRunCmd creates a new run command
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Register adds the run command to the application
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run one or more commands and print their output",
		UsageText: "cmdexec run [-c LINE]... [options] [-- PROGRAM [ARGS...]]",
		Description: `Runs each command given with -c, plus the one after --, concurrently, and
prints the results in the order given:

  Execute: [ls, -la, missing.txt]
  ExitCode: 2
  Stdout:
  Stderr:
  2>  ls: cannot access 'missing.txt': No such file or directory

-c lines are split with shell-style quoting; no shell is involved. A non-zero
exit code is reported, not treated as an error.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "command",
				Aliases:     []string{"c"},
				Usage:       "command line to run (repeatable)",
				Destination: &cmd.commands,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Aliases:     []string{"t"},
				Usage:       "kill each command after this long (0 waits forever; default from config)",
				Destination: &cmd.timeout,
			},
			&cli.StringFlag{
				Name:        "encoding",
				Aliases:     []string{"e"},
				Usage:       "character encoding of the output, e.g. utf-8, shift_jis (default from config or locale)",
				Destination: &cmd.encoding,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print run records as JSON lines",
				Destination: &cmd.json,
			},
			&cli.BoolFlag{
				Name:        "save",
				Usage:       "store run records in the history directory for 'cmdexec show'",
				Destination: &cmd.save,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RunCmd) run(ctx context.Context, c *cli.Command) error {
	specs, err := cmd.specs(c.Args().Slice())
	if err != nil {
		return err
	}

	enc, err := cmd.textEncoding()
	if err != nil {
		return err
	}

	timeout := cmd.flags.Config.Timeout()
	if c.IsSet("timeout") {
		timeout = cmd.timeout
	}

	r := cmd.flags.Runner()
	handles := make([]*runner.Handle, len(specs))
	for i, spec := range specs {
		handles[i] = r.Go(ctx, spec, timeout)
	}

	var store report.Store
	if cmd.save {
		store = cmd.flags.Store()
	}

	out := c.Root().Writer
	p := newPrinter(out, colorEnabled(out))

	var errs []error
	for i, h := range handles {
		res, err := h.Wait()
		if err != nil {
			errs = append(errs, err)
			p.failure(specs[i], err)
			continue
		}
		rec, err := collect(res, enc)
		if err != nil {
			errs = append(errs, err)
			p.failure(specs[i], err)
			continue
		}

		if store != nil {
			if err := store.Save(rec); err != nil {
				errs = append(errs, fmt.Errorf("saving run %s: %w", rec.ID, err))
			}
		}

		if cmd.json {
			if err := json.NewEncoder(out).Encode(rec); err != nil {
				return err
			}
			continue
		}
		p.record(rec, cmd.save)
	}
	return errors.Join(errs...)
}

// specs collects the -c lines followed by the argv after --.
func (cmd *RunCmd) specs(argv []string) ([]command.Spec, error) {
	var specs []command.Spec
	for _, line := range cmd.commands {
		spec, err := command.Parse(line)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(argv) > 0 {
		specs = append(specs, command.FromArgv(argv))
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("nothing to run: pass -c LINE or -- PROGRAM [ARGS...]")
	}
	return specs, nil
}

func (cmd *RunCmd) textEncoding() (encoding.Encoding, error) {
	name := cmd.encoding
	if name == "" {
		name = cmd.flags.Config.Encoding
	}
	return textenc.Lookup(name)
}

// collect decodes a result into a record and deletes its spill files.
func collect(res *runner.Result, enc encoding.Encoding) (*report.Record, error) {
	defer func() { _ = res.Release() }()
	return report.NewRecord(res, enc)
}
