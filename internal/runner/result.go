package runner

import "time"

// NoExitCode is the exit code of a run whose process exit was never observed.
const NoExitCode = -1

// Command is one execution request.
type Command struct {
	Line      string        // command line, split with shell quoting rules
	AllowFork bool          // the program forks and reaps children of its own
	Timeout   time.Duration // <= 0 waits for natural exit
}

// Result holds the output of a command execution.
type Result struct {
	RunID     string        // unique identifier for this run
	ExitCode  int           // exit status, or the negated signal number if killed
	Stdout    []byte        // captured stdout (may be truncated)
	Stderr    []byte        // captured stderr (may be truncated)
	TimedOut  bool          // the runner asked the process to terminate
	Truncated bool          // true if output exceeded the size cap
	Duration  time.Duration // from spawn to reap
}

// Success reports whether the process exited on its own with status 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && !r.TimedOut
}
