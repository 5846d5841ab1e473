// Command cmdexec runs external commands and reports their exit code with
// stdout and stderr captured separately.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/deixis/cmdexec"
	"github.com/deixis/cmdexec/internal/capture"
	"github.com/deixis/cmdexec/internal/config"
	"github.com/deixis/cmdexec/internal/logutils"
	"github.com/deixis/cmdexec/internal/report"
	"github.com/deixis/cmdexec/internal/runner"
)

// Flags holds global flag values and what the Before hook derives from them.
type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string

	// Loaded in Before and available to all commands.
	Config *config.Config
	Log    zerolog.Logger
}

// Runner returns a runner configured from the loaded config.
func (f *Flags) Runner() *runner.Runner {
	return &runner.Runner{
		SpillThreshold: f.Config.Threshold(),
		TempDir:        f.Config.TempDir,
		Log:            logutils.Component(f.Log, "runner"),
	}
}

// Store returns the run history store.
func (f *Flags) Store() report.Store {
	return report.NewLRUStore(f.Config.HistoryCapacity(), report.NewDiskStore(f.Config.HistoryDir()))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cmdexec: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	var logCloser func()
	flags := &Flags{Log: zerolog.Nop()}

	app := &cli.Command{
		Name:      "cmdexec",
		Usage:     "Run commands with separately captured stdout and stderr",
		UsageText: "cmdexec [global options] command [command options]",
		Description: `cmdexec spawns external programs, drains stdout and stderr concurrently,
optionally kills them after a timeout, and reports the exit code together
with each stream's output decoded in a chosen character encoding.

Output beyond a memory threshold is spilled to temporary files, so commands
producing large amounts of output are handled without exhausting memory.`,
		Version:                   cmdexec.Version,
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (trace, debug, info, warn, error); overrides log_level in the config file",
				Sources:     cli.EnvVars("CMDEXEC_LOG_LEVEL"),
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "write JSON logs to this file instead of stderr",
				Sources:     cli.EnvVars("CMDEXEC_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to config file (default: nearest .cmdexec in the working directory or its parents)",
				Sources:     cli.EnvVars("CMDEXEC_CONFIG"),
				Destination: &flags.ConfigPath,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			loaded, err := loadConfig(flags.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			cfg := loaded.Config
			if err := cfg.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid config %s: %w", loaded.Path, err)
			}
			flags.Config = cfg

			level := cfg.Level()
			if flags.LogLevel != "" {
				level = flags.LogLevel
			}
			logger, closer, err := logutils.New(level, flags.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			flags.Log = logger
			logCloser = closer
			if loaded.Path != "" {
				logger.Debug().Str("path", loaded.Path).Msg("config loaded")
			}

			if cfg.Sweep.OnStart {
				sweepSpillFiles(cfg.SpillDir(), cfg.SweepMaxAge(), logutils.Component(logger, "sweep"))
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = NewRunCmd(flags).Register(app)
	app = NewShowCmd(flags).Register(app)
	app = NewSweepCmd(flags).Register(app)
	app = NewMCPCmd(flags).Register(app)

	app.Commands = append(app.Commands, &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(ctx context.Context, c *cli.Command) error {
			_, err := fmt.Fprintln(c.Root().Writer, cmdexec.Version)
			return err
		},
	})

	return app
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determining working directory: %w", err)
	}
	return config.Load(wd)
}

// sweepSpillFiles removes spill files orphaned by runs that never released
// them. Failures are logged, not fatal.
func sweepSpillFiles(dir string, maxAge time.Duration, log zerolog.Logger) []string {
	removed, err := capture.Sweep(dir, maxAge, time.Now())
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("sweeping spill files")
	}
	if len(removed) > 0 {
		log.Info().Int("count", len(removed)).Str("dir", dir).Msg("removed orphaned spill files")
	}
	return removed
}
