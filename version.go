// Package cmdexec runs external commands and captures their output.
package cmdexec

// Version is the cmdexec release version.
var Version = "v0.1.0-dev"
