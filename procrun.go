// Package procrun runs external commands to completion, capturing their
// standard output and standard error, with an optional wall-clock timeout.
//
// Programs that import procrun must call Init first thing in main.
package procrun

import (
	"context"

	"github.com/deixis/procrun/internal/runner"
	"github.com/deixis/procrun/internal/spawn"
)

// Version is the release version of procrun.
const Version = "0.1.0"

type (
	// Command is one execution request.
	Command = runner.Command
	// Result is the outcome of one execution.
	Result = runner.Result
	// Runner executes commands; the zero value is ready to use.
	Runner = runner.Runner
	// ParseError reports a command line with malformed quoting.
	ParseError = runner.ParseError
	// SpawnError reports that the process could not be created.
	SpawnError = spawn.Error
)

// NoExitCode is the exit code of a run whose process exit was never observed.
const NoExitCode = runner.NoExitCode

var defaultRunner = &runner.Runner{}

// Init must be called at the start of main. It returns immediately unless
// the process was started to prepare a child for exec.
func Init() {
	spawn.Init()
}

// Run splits command with shell quoting rules and runs it.
//
// timeout is loosely typed: a time.Duration, or a number of seconds as any
// numeric type or numeric string. Anything else, and any value <= 0, means
// no timeout. When the timeout elapses the process is sent SIGTERM and Run
// returns once it has exited, with Result.TimedOut set.
func Run(ctx context.Context, command string, allowFork bool, timeout any) (*Result, error) {
	return defaultRunner.Run(ctx, Command{
		Line:      command,
		AllowFork: allowFork,
		Timeout:   runner.NormalizeTimeout(timeout),
	})
}
