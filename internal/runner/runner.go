// Package runner executes single commands with captured output and an
// optional wall-clock timeout.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deixis/procrun/internal/spawn"
)

var defaultSpawner = &spawn.Spawner{}

// Runner executes commands one at a time per call. A Runner holds no state
// between runs and may be used from several goroutines.
type Runner struct {
	Spawner   *spawn.Spawner // nil uses the running executable as trampoline
	KillGrace time.Duration  // after SIGTERM, wait this long before SIGKILL; <= 0 waits forever
	MaxOutput int            // bytes kept per stream; <= 0 keeps everything
	Logger    *zap.Logger    // nil discards
}

// Run splits cmd.Line into arguments and runs them. See RunArgv.
//
// A line that cannot be split fails with *ParseError before anything is
// started.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	argv, err := Parse(cmd.Line)
	if err != nil {
		return nil, err
	}
	return r.RunArgv(ctx, argv, cmd.AllowFork, cmd.Timeout)
}

// RunArgv starts argv, drains its stdout and stderr, and waits for it to
// exit. If timeout is positive and elapses first, or ctx is done first, the
// process is sent SIGTERM and RunArgv keeps waiting until it has exited and
// its output has been collected; the result then has TimedOut set.
//
// The process gets an already closed stdin. A process that cannot be
// started fails with *spawn.Error and no result. A non-zero exit is not an
// error.
func (r *Runner) RunArgv(ctx context.Context, argv []string, allowFork bool, timeout time.Duration) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	h, err := r.spawner().Open(argv, allowFork)
	if err != nil {
		return nil, err
	}
	_ = h.Stdin.Close()

	var stdout, stderr bytes.Buffer
	outW := &limitWriter{buf: &stdout, limit: r.MaxOutput}
	errW := &limitWriter{buf: &stderr, limit: r.MaxOutput}

	done := make(chan captured, 1)
	go func() {
		done <- capture(h, outW, errW)
	}()

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var c captured
	timedOut := false
	select {
	case c = <-done:
	case <-deadline:
		timedOut = true
		c = r.stop(h, done, "timeout")
	case <-ctx.Done():
		timedOut = true
		c = r.stop(h, done, context.Cause(ctx).Error())
	}
	if c.err != nil {
		return nil, fmt.Errorf("running %s: %w", argv[0], c.err)
	}

	return &Result{
		RunID:     uuid.New().String(),
		ExitCode:  c.exitCode,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		TimedOut:  timedOut,
		Truncated: outW.truncated || errW.truncated,
		Duration:  time.Since(start),
	}, nil
}

// stop terminates the process and waits for the capture goroutine.
func (r *Runner) stop(h *spawn.Handle, done <-chan captured, reason string) captured {
	log := r.logger().With(zap.Int("pid", h.Pid))
	log.Debug("terminating process", zap.String("reason", reason))
	if err := h.Terminate(); err != nil {
		log.Debug("terminate failed", zap.Error(err))
	}

	if r.KillGrace <= 0 {
		return <-done
	}

	grace := time.NewTimer(r.KillGrace)
	defer grace.Stop()
	select {
	case c := <-done:
		return c
	case <-grace.C:
		log.Debug("killing process", zap.Duration("grace", r.KillGrace))
		if err := h.Kill(); err != nil {
			log.Debug("kill failed", zap.Error(err))
		}
		return <-done
	}
}

func (r *Runner) spawner() *spawn.Spawner {
	if r.Spawner != nil {
		return r.Spawner
	}
	return defaultSpawner
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

type captured struct {
	exitCode int
	err      error
}

// capture reads both streams to EOF in parallel, so a child blocked on a full
// stderr pipe cannot stall the stdout reader, then reaps the process.
func capture(h *spawn.Handle, stdout, stderr io.Writer) captured {
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(stdout, h.Stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(stderr, h.Stderr)
		return err
	})
	copyErr := g.Wait()

	code, waitErr := h.Wait()
	switch {
	case copyErr != nil:
		return captured{exitCode: code, err: fmt.Errorf("capturing output: %w", copyErr)}
	case waitErr != nil:
		return captured{exitCode: NoExitCode, err: fmt.Errorf("waiting for process: %w", waitErr)}
	}
	return captured{exitCode: code}
}

// limitWriter writes up to limit bytes to buf, then silently discards the rest.
// A limit <= 0 means no limit.
type limitWriter struct {
	buf       *bytes.Buffer
	limit     int
	truncated bool
}

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.limit <= 0 {
		return w.buf.Write(p)
	}
	remaining := w.limit - w.buf.Len()
	if len(p) > remaining {
		// Keep what fits but report everything as consumed so io.Copy
		// keeps draining the pipe.
		w.truncated = true
		if remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		return len(p), nil
	}
	return w.buf.Write(p)
}
