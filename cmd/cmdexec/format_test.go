package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deixis/cmdexec/internal/command"
	"github.com/deixis/cmdexec/internal/report"
)

func TestPrinterRecord(t *testing.T) {
	rec := &report.Record{
		ID:       "0b7d7a0e-1c55-4f6e-9a51-2f8d7f0c4a11",
		Program:  "ls",
		Args:     []string{"-la", "missing.txt"},
		ExitCode: 2,
		Stdout:   []string{},
		Stderr:   []string{"ls: missing.txt: No such file or directory"},
	}

	var buf bytes.Buffer
	newPrinter(&buf, false).record(rec, false)

	want := `Execute: [ls, -la, missing.txt]
ExitCode: 2
Stdout:
Stderr:
2>  ls: missing.txt: No such file or directory

`
	assert.Equal(t, want, buf.String())
}

func TestPrinterRecord_WithIDAndTimeout(t *testing.T) {
	rec := &report.Record{
		ID:       "0b7d7a0e-1c55-4f6e-9a51-2f8d7f0c4a11",
		Program:  "sleep",
		Args:     []string{"10"},
		ExitCode: -1,
		TimedOut: true,
		Stdout:   []string{"partial"},
	}

	var buf bytes.Buffer
	newPrinter(&buf, false).record(rec, true)

	want := `Execute: [sleep, 10]
Run: 0b7d7a0e-1c55-4f6e-9a51-2f8d7f0c4a11
ExitCode: -1 (timed out)
Stdout:
1>  partial
Stderr:

`
	assert.Equal(t, want, buf.String())
}

func TestPrinterFailure(t *testing.T) {
	var buf bytes.Buffer
	newPrinter(&buf, false).failure(command.New("nope", "x"), errors.New("spawn nope: not found"))
	assert.Equal(t, "Execute: [nope, x]\nError: spawn nope: not found\n\n", buf.String())
}

func TestPrinterColor(t *testing.T) {
	rec := &report.Record{Program: "true", Stdout: []string{"out"}, Stderr: []string{"err"}}

	var plain, colored bytes.Buffer
	newPrinter(&plain, false).record(rec, false)
	newPrinter(&colored, true).record(rec, false)

	assert.NotContains(t, plain.String(), "\x1b[")
	assert.Contains(t, colored.String(), "\x1b[")
	assert.Contains(t, colored.String(), "out")
}

func TestColorEnabled_NotATerminal(t *testing.T) {
	assert.False(t, colorEnabled(&bytes.Buffer{}))
}
