// Package spawn starts child processes with their standard streams wired to
// pipes and with descriptors above stderr closed before the target program
// runs.
//
// On Linux the preparation happens in a short-lived copy of the current
// executable (the trampoline) which sanitizes itself and then execs the
// target, so the calling process is never modified. Programs using this
// package must call Init at the very start of main, and test binaries at the
// start of TestMain.
package spawn

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// ErrEmptyArgv is returned by Open when no program is given.
var ErrEmptyArgv = errors.New("empty argv")

// Error reports that a child process could not be created.
type Error struct {
	Path string // program as given or resolved
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("spawn: %v", e.Err)
	}
	return fmt.Sprintf("spawning %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Handle is a started child process and the parent ends of its pipes.
//
// Stdout and Stderr must be read to EOF before Wait is called; Wait closes
// them.
type Handle struct {
	Pid    int
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	cmd *exec.Cmd
}

// Wait reaps the process and returns its exit code. A process killed by a
// signal reports the negated signal number. The error is non-nil only when
// the exit status could not be collected, in which case the code is -1.
func (h *Handle) Wait() (int, error) {
	err := h.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return -1, err
		}
	}
	return exitCode(h.cmd.ProcessState), nil
}

// Terminate asks the process to exit with SIGTERM. Signalling a process that
// has already exited is not an error.
func (h *Handle) Terminate() error {
	return h.signal(syscall.SIGTERM)
}

// Kill sends SIGKILL. Killing a process that has already exited is not an
// error.
func (h *Handle) Kill() error {
	return h.signal(syscall.SIGKILL)
}

func (h *Handle) signal(sig os.Signal) error {
	err := h.cmd.Process.Signal(sig)
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signalling pid %d: %w", h.Pid, err)
	}
	return nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return -1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -int(ws.Signal())
	}
	return state.ExitCode()
}
