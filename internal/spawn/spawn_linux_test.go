//go:build linux

package spawn

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

const helperEnv = "PROCRUN_SPAWN_HELPER"

func TestMain(m *testing.M) {
	Init()
	if os.Getenv(helperEnv) == "fds" {
		printOpenFDs()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// printOpenFDs lists descriptors >= 3 without opening any itself.
func printOpenFDs() {
	for fd := 3; fd < 4096; fd++ {
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err == nil {
			fmt.Println(fd)
		}
	}
}

// drain reads both streams to EOF and reaps the process.
func drain(t *testing.T, h *Handle) (stdout, stderr string, code int) {
	t.Helper()
	require.NoError(t, h.Stdin.Close())
	out, err := io.ReadAll(h.Stdout)
	require.NoError(t, err)
	errOut, err := io.ReadAll(h.Stderr)
	require.NoError(t, err)
	code, err = h.Wait()
	require.NoError(t, err)
	return string(out), string(errOut), code
}

func TestOpen_Echo(t *testing.T) {
	h, err := (&Spawner{}).Open([]string{"echo", "hello"}, false)
	require.NoError(t, err)
	assert.Positive(t, h.Pid)

	stdout, stderr, code := drain(t, h)
	assert.Equal(t, "hello\n", stdout)
	assert.Empty(t, stderr)
	assert.Equal(t, 0, code)
}

func TestOpen_ExitStatus(t *testing.T) {
	h, err := (&Spawner{}).Open([]string{"sh", "-c", "echo oops >&2; exit 3"}, false)
	require.NoError(t, err)

	_, stderr, code := drain(t, h)
	assert.Equal(t, "oops\n", stderr)
	assert.Equal(t, 3, code)
}

func TestOpen_PidIsTarget(t *testing.T) {
	h, err := (&Spawner{}).Open([]string{"sh", "-c", "echo $$"}, false)
	require.NoError(t, err)

	stdout, _, _ := drain(t, h)
	assert.Equal(t, strconv.Itoa(h.Pid), strings.TrimSpace(stdout))
}

func TestOpen_Empty(t *testing.T) {
	_, err := (&Spawner{}).Open(nil, false)
	assert.ErrorIs(t, err, ErrEmptyArgv)
}

func TestOpen_NotFound(t *testing.T) {
	_, err := (&Spawner{}).Open([]string{"nonexistent-binary-xyz"}, false)
	var spawnErr *Error
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "nonexistent-binary-xyz", spawnErr.Path)
	assert.ErrorIs(t, err, exec.ErrNotFound)
}

func TestOpen_ExecFailureReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-program")
	require.NoError(t, os.WriteFile(path, []byte("not a program\n"), 0o755))

	_, err := (&Spawner{}).Open([]string{path}, false)
	var spawnErr *Error
	require.ErrorAs(t, err, &spawnErr)
	assert.ErrorIs(t, err, syscall.ENOEXEC)

	var pathErr *os.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "exec", pathErr.Op)
}

func TestOpen_ClosesInheritedDescriptors(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "leak")
	require.NoError(t, err)
	defer f.Close()

	// Dup drops close-on-exec, so a plain fork/exec would pass it on.
	leaked, err := unix.Dup(int(f.Fd()))
	require.NoError(t, err)
	defer unix.Close(leaked)

	t.Setenv(helperEnv, "fds")
	self, err := os.Executable()
	require.NoError(t, err)

	control, err := exec.Command(self, "-test.run=^$").Output()
	require.NoError(t, err)
	require.Contains(t, strings.Fields(string(control)), strconv.Itoa(leaked),
		"helper should see descriptors inherited through plain exec")

	h, err := (&Spawner{}).Open([]string{self, "-test.run=^$"}, false)
	require.NoError(t, err)
	stdout, _, code := drain(t, h)
	assert.Equal(t, 0, code)
	// The helper's own runtime opens a few descriptors; only the dup matters.
	assert.NotContains(t, strings.Fields(stdout), strconv.Itoa(leaked),
		"descriptor %d leaked into child", leaked)
}

func TestOpen_AllowForkUnblocksSIGCHLD(t *testing.T) {
	for _, allowFork := range []bool{true, false} {
		t.Run(fmt.Sprint("allowFork=", allowFork), func(t *testing.T) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			// Blocking in the parent thread must not leak into the child.
			mask := ThreadSignalMask()
			require.NoError(t, mask.Block(syscall.SIGCHLD))
			defer mask.Unblock(syscall.SIGCHLD)

			h, err := (&Spawner{}).Open([]string{"grep", "^SigBlk:", "/proc/self/status"}, allowFork)
			require.NoError(t, err)
			stdout, _, code := drain(t, h)
			require.Equal(t, 0, code)

			// With allowFork the trampoline unblocks SIGCHLD itself. Without
			// it the mask is left as the trampoline's runtime set it up,
			// which never blocks SIGCHLD either; the parent thread's block
			// is not inherited in either case.
			assert.False(t, sigblkHas(t, stdout, syscall.SIGCHLD), stdout)
		})
	}
}

func sigblkHas(t *testing.T, line string, sig syscall.Signal) bool {
	t.Helper()
	fields := strings.Fields(line)
	require.Len(t, fields, 2, line)
	bits, err := strconv.ParseUint(fields[1], 16, 64)
	require.NoError(t, err)
	return bits&(1<<(uint(sig)-1)) != 0
}

func TestThreadSignalMask(t *testing.T) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	mask := ThreadSignalMask()
	require.NoError(t, mask.Block(syscall.SIGCHLD))
	blocked, err := isBlocked(syscall.SIGCHLD)
	require.NoError(t, err)
	assert.True(t, blocked)

	require.NoError(t, mask.Unblock(syscall.SIGCHLD))
	blocked, err = isBlocked(syscall.SIGCHLD)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestSigaddset(t *testing.T) {
	var set unix.Sigset_t
	sigaddset(&set, syscall.SIGCHLD)
	word, bit := sigpos(&set, syscall.SIGCHLD)
	assert.Equal(t, uint(0), word)
	assert.Equal(t, uint(16), bit)
	assert.NotZero(t, set.Val[0]&(1<<16))
}

func TestHandle_Terminate(t *testing.T) {
	h, err := (&Spawner{}).Open([]string{"sleep", "10"}, false)
	require.NoError(t, err)
	require.NoError(t, h.Terminate())

	_, _, code := drain(t, h)
	assert.Equal(t, -int(syscall.SIGTERM), code)
}

func TestHandle_Kill(t *testing.T) {
	h, err := (&Spawner{}).Open([]string{"sleep", "10"}, false)
	require.NoError(t, err)
	require.NoError(t, h.Kill())

	_, _, code := drain(t, h)
	assert.Equal(t, -int(syscall.SIGKILL), code)
}

func TestHandle_TerminateAfterExit(t *testing.T) {
	h, err := (&Spawner{}).Open([]string{"true"}, false)
	require.NoError(t, err)
	_, _, code := drain(t, h)
	require.Equal(t, 0, code)

	assert.NoError(t, h.Terminate())
	assert.NoError(t, h.Kill())
}

func TestError(t *testing.T) {
	err := &Error{Path: "/bin/x", Err: syscall.EACCES}
	assert.Equal(t, "spawning /bin/x: permission denied", err.Error())
	assert.ErrorIs(t, err, syscall.EACCES)

	assert.Equal(t, "spawn: empty argv", (&Error{Err: ErrEmptyArgv}).Error())
}
