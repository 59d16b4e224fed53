//go:build linux

package spawn

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

const (
	trampolineName = "procrun-spawn"

	modeFork   = "fork"
	modeNoFork = "nofork"

	// statusFD carries the errno of a failed exec back to the parent.
	statusFD = 3

	execFailedExit = 127
)

// Spawner starts child processes through the trampoline.
type Spawner struct {
	// Self is the executable re-invoked to prepare each child. It must call
	// Init on startup. Empty means the running executable.
	Self string
}

// Open starts argv with all three standard streams connected to pipes.
//
// Inside the new process, before argv[0] is executed, every descriptor
// numbered 3 and above is closed, and if allowFork is set SIGCHLD is removed
// from the blocked signal mask so the program can reap its own children.
//
// Open fails with *Error if the program cannot be found or the process
// cannot be created.
func (s *Spawner) Open(argv []string, allowFork bool) (*Handle, error) {
	if len(argv) == 0 {
		return nil, &Error{Err: ErrEmptyArgv}
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, &Error{Path: argv[0], Err: err}
	}

	self := s.Self
	if self == "" {
		self = "/proc/self/exe"
	}
	mode := modeNoFork
	if allowFork {
		mode = modeFork
	}

	statusR, statusW, err := os.Pipe()
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	defer statusR.Close()

	cmd := exec.Command(self)
	cmd.Args = append([]string{trampolineName, mode, path}, argv...)
	cmd.ExtraFiles = []*os.File{statusW}

	h, err := startPiped(cmd)
	statusW.Close()
	if err != nil {
		return nil, &Error{Path: path, Err: err}
	}

	// EOF arrives when the trampoline execs (the descriptor is close-on-exec
	// by then) or exits.
	status, _ := io.ReadAll(statusR)
	if len(status) > 0 {
		_ = cmd.Wait()
		return nil, &Error{Path: path, Err: &os.PathError{Op: "exec", Path: path, Err: decodeErrno(status)}}
	}
	return h, nil
}

func startPiped(cmd *exec.Cmd) (*Handle, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Handle{
		Pid:    cmd.Process.Pid,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		cmd:    cmd,
	}, nil
}

func decodeErrno(status []byte) error {
	n, err := strconv.Atoi(strings.TrimSpace(string(status)))
	if err != nil {
		return fmt.Errorf("trampoline: %s", status)
	}
	return syscall.Errno(n)
}

// Init turns the current process into the target program if it was started
// by Open as a trampoline. In any other process it returns immediately.
func Init() {
	if len(os.Args) < 4 || os.Args[0] != trampolineName {
		return
	}
	// The mask change and the exec must happen on the same thread.
	runtime.LockOSThread()

	mode, path, argv := os.Args[1], os.Args[2], os.Args[3:]

	closeFrom(statusFD)
	if mode == modeFork {
		_ = ThreadSignalMask().Unblock(unix.SIGCHLD)
	}

	err := unix.Exec(path, argv, os.Environ())

	errno, ok := err.(syscall.Errno)
	if !ok {
		errno = unix.EINVAL
	}
	status := os.NewFile(statusFD, "status")
	fmt.Fprint(status, int(errno))
	os.Exit(execFailedExit)
}

// closeFrom marks every descriptor >= lowfd close-on-exec, so none of them
// survive into the target program. The Go runtime keeps using its own
// descriptors until the exec. Errors are ignored: most numbers are not open.
func closeFrom(lowfd int) {
	err := unix.CloseRange(uint(lowfd), math.MaxUint32, unix.CLOSE_RANGE_CLOEXEC)
	if err == nil {
		return
	}

	if entries, err := os.ReadDir("/proc/self/fd"); err == nil {
		for _, e := range entries {
			fd, err := strconv.Atoi(e.Name())
			if err == nil && fd >= lowfd {
				setCloexec(fd)
			}
		}
		return
	}

	maxfd := 1024
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err == nil && lim.Cur < math.MaxInt32 {
		maxfd = int(lim.Cur)
	}
	for fd := lowfd; fd < maxfd; fd++ {
		setCloexec(fd)
	}
}

func setCloexec(fd int) {
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
}
