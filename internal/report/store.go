// Package report keeps finished runs so their full output can be fetched
// again by run ID.
package report

import (
	"errors"
	"fmt"
	"time"

	"github.com/deixis/procrun/internal/runner"
)

// ErrNotFound is returned by Load when no run has the given ID.
var ErrNotFound = errors.New("run not found")

// Store persists and retrieves run records.
type Store interface {
	Save(record *Record) error
	Load(runID string) (*Record, error)
}

// Stream names a captured output stream.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Record is a finished run together with the request that produced it.
type Record struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	AllowFork bool          `json:"allow_fork,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	ExitCode  int           `json:"exit_code"`
	TimedOut  bool          `json:"timed_out,omitempty"`
	Truncated bool          `json:"truncated,omitempty"`
	Stdout    []byte        `json:"stdout,omitempty"`
	Stderr    []byte        `json:"stderr,omitempty"`
}

// NewRecord builds the record of res, produced by running cmd.
func NewRecord(cmd runner.Command, res *runner.Result) *Record {
	return &Record{
		ID:        res.RunID,
		Command:   cmd.Line,
		AllowFork: cmd.AllowFork,
		Timeout:   cmd.Timeout,
		StartedAt: time.Now().Add(-res.Duration),
		Duration:  res.Duration,
		ExitCode:  res.ExitCode,
		TimedOut:  res.TimedOut,
		Truncated: res.Truncated,
		Stdout:    res.Stdout,
		Stderr:    res.Stderr,
	}
}

// Output returns the bytes captured on stream.
func (r *Record) Output(stream Stream) ([]byte, error) {
	switch stream {
	case Stdout:
		return r.Stdout, nil
	case Stderr:
		return r.Stderr, nil
	}
	return nil, fmt.Errorf("unknown stream %q (want %s or %s)", stream, Stdout, Stderr)
}
