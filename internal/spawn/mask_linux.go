//go:build linux

package spawn

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SignalMask changes which signals are blocked from delivery.
type SignalMask interface {
	Block(sig syscall.Signal) error
	Unblock(sig syscall.Signal) error
}

// ThreadSignalMask returns the mask of the calling OS thread. Callers must
// hold runtime.LockOSThread for the change to stay on the intended thread.
func ThreadSignalMask() SignalMask {
	return threadMask{}
}

type threadMask struct{}

func (threadMask) Block(sig syscall.Signal) error {
	return changeMask(unix.SIG_BLOCK, sig)
}

func (threadMask) Unblock(sig syscall.Signal) error {
	return changeMask(unix.SIG_UNBLOCK, sig)
}

func changeMask(how int, sig syscall.Signal) error {
	var set unix.Sigset_t
	sigaddset(&set, sig)
	if err := unix.PthreadSigmask(how, &set, nil); err != nil {
		return fmt.Errorf("pthread_sigmask(%d, %v): %w", how, sig, err)
	}
	return nil
}

// isBlocked reports whether sig is in the calling thread's blocked set.
func isBlocked(sig syscall.Signal) (bool, error) {
	var cur unix.Sigset_t
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, nil, &cur); err != nil {
		return false, err
	}
	word, bit := sigpos(&cur, sig)
	return cur.Val[word]&(1<<bit) != 0, nil
}

func sigaddset(set *unix.Sigset_t, sig syscall.Signal) {
	word, bit := sigpos(set, sig)
	set.Val[word] |= 1 << bit
}

// sigpos locates sig in the kernel sigset layout, whose word size differs
// between 32- and 64-bit targets.
func sigpos(set *unix.Sigset_t, sig syscall.Signal) (word, bit uint) {
	n := uint(sig) - 1
	width := uint(unsafe.Sizeof(set.Val[0])) * 8
	return n / width, n % width
}
