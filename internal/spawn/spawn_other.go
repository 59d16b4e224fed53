//go:build !linux

package spawn

import "errors"

// Spawner starts child processes. Only Linux is supported.
type Spawner struct {
	Self string
}

// Open always fails on this platform.
func (s *Spawner) Open(argv []string, allowFork bool) (*Handle, error) {
	if len(argv) == 0 {
		return nil, &Error{Err: ErrEmptyArgv}
	}
	return nil, &Error{Path: argv[0], Err: errors.ErrUnsupported}
}

// Init is a no-op on this platform.
func Init() {}
