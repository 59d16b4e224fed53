package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/procrun/internal/report"
	"github.com/deixis/procrun/internal/runner"
	"github.com/deixis/procrun/internal/spawn"
)

type runParams struct {
	Command        string  `json:"command" jsonschema:"command line, e.g. ls -l /tmp or sh -c 'make 2>&1 | tail'"`
	AllowFork      bool    `json:"allow_fork,omitempty" jsonschema:"set when the program starts and reaps child processes of its own"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty" jsonschema:"seconds before the process is terminated; 0 or omitted uses the server default"`
}

func (h *handler) runHandler(ctx context.Context, req *mcp.CallToolRequest, params runParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Command) == "" {
		return errorResult("command is required")
	}

	cmd := runner.Command{
		Line:      params.Command,
		AllowFork: params.AllowFork || h.cfg.AllowFork,
		Timeout:   runner.NormalizeTimeout(params.TimeoutSeconds),
	}
	if cmd.Timeout == 0 {
		cmd.Timeout = h.cfg.Timeout()
	}

	res, err := h.runner.Run(ctx, cmd)
	if err != nil {
		var parseErr *runner.ParseError
		var spawnErr *spawn.Error
		switch {
		case errors.As(err, &parseErr):
			return errorResult(fmt.Sprintf("Cannot parse command: %v", parseErr.Err))
		case errors.As(err, &spawnErr):
			return errorResult(fmt.Sprintf("Cannot start command: %v", err))
		}
		return errorResult(fmt.Sprintf("Run failed: %v", err))
	}

	record := report.NewRecord(cmd, res)
	if err := h.store.Save(record); err != nil {
		// The reply still carries the preview; only get_output is affected.
		h.log.Warn("saving run", zap.String("run_id", record.ID), zap.Error(err))
	}

	return textResult(formatRun(record))
}

func formatRun(r *report.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Exit: %d\n", r.ExitCode)
	fmt.Fprintf(&b, "Run: %s\n", r.ID)
	fmt.Fprintf(&b, "Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.TimedOut {
		fmt.Fprintf(&b, "Timed out: terminated after %s\n", r.Timeout)
	}
	if r.Truncated {
		fmt.Fprintln(&b, "Truncated: output exceeded the server capture limit")
	}

	more := false
	for _, s := range []struct {
		name report.Stream
		data []byte
	}{{report.Stdout, r.Stdout}, {report.Stderr, r.Stderr}} {
		fmt.Fprintln(&b)
		if len(s.data) == 0 {
			fmt.Fprintf(&b, "%s: (empty)\n", s.name)
			continue
		}
		fmt.Fprintf(&b, "%s (%d bytes):\n", s.name, len(s.data))
		data := s.data
		if len(data) > previewBytes {
			data = data[:previewBytes]
			more = true
		}
		b.Write(data)
		if data[len(data)-1] != '\n' {
			fmt.Fprintln(&b)
		}
		if len(data) < len(s.data) {
			fmt.Fprintf(&b, "... %d more bytes\n", len(s.data)-len(data))
		}
	}

	if more {
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "Read the rest with get_output(run_id=%q, stream=\"stdout\"|\"stderr\", offset=%d).\n", r.ID, previewBytes)
	}
	return b.String()
}
