package main

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitResolveError    = 2
	ExitDeployError     = 3
	ExitDatabaseError   = 4
	ExitHTTPServerError = 5
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	a.close()
	if err == nil {
		return ExitSuccess
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		if a.logger != nil {
			a.logger.Error("command failed", "operation", cmdErr.Op, "error", cmdErr.Err)
		} else {
			fmt.Fprintf(stderr, "%s: %v\n", cmdErr.Op, cmdErr.Err)
		}
		return cmdErr.ExitCode
	}

	// Usage errors from flag and argument parsing.
	fmt.Fprintf(stderr, "error: %v\n", err)
	return ExitConfigError
}

// =============================================================================
// Command Error
// =============================================================================

// CommandError carries the exit code a failed command maps to.
type CommandError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *CommandError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func fail(op string, code int, err error) error {
	return &CommandError{Op: op, Err: err, ExitCode: code}
}
