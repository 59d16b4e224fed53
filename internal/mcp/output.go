package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/procrun/internal/report"
)

const defaultPageBytes = 64 << 10

type outputParams struct {
	RunID  string `json:"run_id" jsonschema:"the run ID from a run_command result"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout (default) or stderr"`
	Offset int    `json:"offset,omitempty" jsonschema:"byte offset to start reading at"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum bytes to return (default 65536)"`
}

func (h *handler) outputHandler(ctx context.Context, req *mcp.CallToolRequest, params outputParams) (*mcp.CallToolResult, any, error) {
	if params.RunID == "" {
		return errorResult("run_id is required")
	}
	stream := report.Stream(params.Stream)
	if stream == "" {
		stream = report.Stdout
	}

	record, err := h.store.Load(params.RunID)
	if errors.Is(err, report.ErrNotFound) {
		return errorResult(fmt.Sprintf("Run %s not found; it may have been run by another server.", params.RunID))
	}
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to load run %s: %v", params.RunID, err))
	}

	data, err := record.Output(stream)
	if err != nil {
		return errorResult(err.Error())
	}

	return textResult(formatPage(record.ID, stream, data, params.Offset, params.Limit))
}

func formatPage(runID string, stream report.Stream, data []byte, offset, limit int) string {
	if limit <= 0 {
		limit = defaultPageBytes
	}
	offset = min(max(offset, 0), len(data))
	end := offset + min(limit, len(data)-offset)

	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\n", runID)
	fmt.Fprintf(&b, "%s bytes %d-%d of %d\n", stream, offset, end, len(data))
	fmt.Fprintln(&b)
	b.Write(data[offset:end])
	if end < len(data) {
		if end > offset && data[end-1] != '\n' {
			fmt.Fprintln(&b)
		}
		fmt.Fprintf(&b, "\nContinue with offset=%d.\n", end)
	}
	return b.String()
}
