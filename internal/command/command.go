// Package command describes the programs cmdexec launches.
package command

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/shlex"
)

// ErrParse is matched by every error returned from Parse.
var ErrParse = errors.New("parse command line")

// ParseError reports a command line that could not be tokenized.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse command line %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ErrParse so callers need not know the concrete type.
func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Spec is an immutable program plus its argument list.
type Spec struct {
	program string
	args    []string
}

// New builds a Spec from an already tokenized program and arguments.
// An empty program is accepted here and surfaces as a spawn failure.
func New(program string, args ...string) Spec {
	return Spec{program: program, args: slices.Clone(args)}
}

// FromArgv builds a Spec from argv, where argv[0] is the program.
func FromArgv(argv []string) Spec {
	if len(argv) == 0 {
		return Spec{}
	}
	return New(argv[0], argv[1:]...)
}

// Parse tokenizes line using POSIX shell-like quoting rules. It does not
// expand globs, variables, pipes or redirections.
func Parse(line string) (Spec, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Spec{}, &ParseError{Line: line, Err: err}
	}
	if len(tokens) == 0 {
		return Spec{}, &ParseError{Line: line, Err: errors.New("empty command line")}
	}
	return FromArgv(tokens), nil
}

// Program returns the executable name or path.
func (s Spec) Program() string { return s.program }

// Args returns a copy of the argument list.
func (s Spec) Args() []string { return slices.Clone(s.args) }

// Argv returns the program followed by its arguments.
func (s Spec) Argv() []string {
	return append([]string{s.program}, s.args...)
}

// IsZero reports whether s has no program.
func (s Spec) IsZero() bool { return s.program == "" }

// Equal reports whether s and other describe the same invocation.
func (s Spec) Equal(other Spec) bool {
	return s.program == other.program && slices.Equal(s.args, other.args)
}

// String renders the invocation with single-quoted tokens where needed,
// suitable for logs. The result round-trips through Parse.
func (s Spec) String() string {
	argv := s.Argv()
	parts := make([]string, len(argv))
	for i, a := range argv {
		parts[i] = quote(a)
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$`|&;<>()*?[]#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
