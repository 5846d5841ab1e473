package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/deixis/cmdexec/internal/command"
	"github.com/deixis/cmdexec/internal/report"
)

// colorEnabled reports whether w is a terminal that should get color.
// NO_COLOR and dumb terminals disable it through color.NoColor.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// printer writes run records in the human-readable listing format.
type printer struct {
	w io.Writer

	header *color.Color
	ok     *color.Color
	failed *color.Color
	stdout *color.Color
	stderr *color.Color
	faint  *color.Color
}

func newPrinter(w io.Writer, colored bool) *printer {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return &printer{
		w:      w,
		header: mk(color.Bold),
		ok:     mk(color.FgGreen),
		failed: mk(color.FgRed, color.Bold),
		stdout: mk(color.Reset),
		stderr: mk(color.FgYellow),
		faint:  mk(color.Faint),
	}
}

// record prints one finished run. showID adds the run ID for later lookup.
func (p *printer) record(rec *report.Record, showID bool) {
	fmt.Fprintf(p.w, "%s %s\n", p.header.Sprint("Execute:"), formatArgv(rec.Argv()))
	if showID {
		fmt.Fprintf(p.w, "%s %s\n", p.header.Sprint("Run:"), rec.ID)
	}

	code := p.ok
	if rec.ExitCode != 0 {
		code = p.failed
	}
	fmt.Fprintf(p.w, "%s %s", p.header.Sprint("ExitCode:"), code.Sprint(rec.ExitCode))
	if rec.TimedOut {
		fmt.Fprintf(p.w, " %s", p.failed.Sprint("(timed out)"))
	}
	fmt.Fprintln(p.w)

	p.stream("Stdout:", "1>", p.stdout, rec.Stdout)
	p.stream("Stderr:", "2>", p.stderr, rec.Stderr)
	fmt.Fprintln(p.w)
}

func (p *printer) stream(title, prefix string, c *color.Color, lines []string) {
	fmt.Fprintln(p.w, p.header.Sprint(title))
	for _, l := range lines {
		fmt.Fprintf(p.w, "%s  %s\n", p.faint.Sprint(prefix), c.Sprint(l))
	}
}

// failure prints a run that produced no result.
func (p *printer) failure(spec command.Spec, err error) {
	fmt.Fprintf(p.w, "%s %s\n", p.header.Sprint("Execute:"), formatArgv(spec.Argv()))
	fmt.Fprintf(p.w, "%s %v\n\n", p.failed.Sprint("Error:"), err)
}

// formatArgv renders argv as a bracketed, comma-separated list.
func formatArgv(argv []string) string {
	return "[" + strings.Join(argv, ", ") + "]"
}
