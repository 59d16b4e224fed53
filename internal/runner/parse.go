package runner

import (
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
)

// ErrEmptyCommand is wrapped by ParseError when a command line holds no
// words.
var ErrEmptyCommand = errors.New("empty command")

// ParseError reports a command line that cannot be split into arguments.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing command %q: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse splits line into an argument vector using POSIX shell quoting.
// No expansion of any kind is performed.
func Parse(line string) ([]string, error) {
	argv, err := shellquote.Split(line)
	if err != nil {
		return nil, &ParseError{Line: line, Err: err}
	}
	if len(argv) == 0 {
		return nil, &ParseError{Line: line, Err: ErrEmptyCommand}
	}
	return argv, nil
}
