// Command procrun runs commands with an optional timeout, replays or
// records their output, and serves the same over MCP.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/deixis/procrun"
	"github.com/deixis/procrun/internal/runner"
	"github.com/deixis/procrun/internal/spawn"
)

func main() {
	procrun.Init()
	os.Exit(execute(newApp(""), os.Args[1:], os.Stdout, os.Stderr))
}

// exitError carries the status procrun should exit with after a run that
// itself went fine.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitStatus maps a run's exit code to a shell-style status: a process
// killed by signal n reports 128+n.
func exitStatus(code int) int {
	if code < 0 {
		return 128 - code
	}
	return code
}

func execute(a *app, args []string, stdout, stderr io.Writer) int {
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if syncErr := syncLogger(a.logger); syncErr != nil {
		fmt.Fprintf(stderr, "procrun: flushing logs: %v\n", syncErr)
	}

	var exitErr *exitError
	if err == nil {
		return 0
	}
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	fmt.Fprintf(stderr, "procrun: %v\n", err)

	var parseErr *runner.ParseError
	var spawnErr *spawn.Error
	switch {
	case errors.As(err, &parseErr), errors.Is(err, runner.ErrEmptyCommand):
		return 2
	case errors.As(err, &spawnErr):
		return 127
	}
	return 1
}
