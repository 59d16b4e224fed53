// Package mcp provides the procrun MCP server, which lets a client run
// commands and page through their captured output.
package mcp

import (
	_ "embed"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/deixis/procrun"
	"github.com/deixis/procrun/internal/config"
	"github.com/deixis/procrun/internal/report"
	"github.com/deixis/procrun/internal/runner"
)

//go:embed instructions.md
var Instructions string

// previewBytes bounds each stream in a run_command reply.
const previewBytes = 4 << 10

// handler holds shared dependencies for all tool handlers.
type handler struct {
	cfg    *config.Config
	runner *runner.Runner
	store  report.Store
	log    *zap.Logger
}

// NewServer creates an MCP server with all procrun tools registered.
func NewServer(cfg *config.Config, r *runner.Runner, store report.Store, opts ...ServerOption) *mcp.Server {
	so := serverOptions{log: zap.NewNop()}
	for _, o := range opts {
		o(&so)
	}

	h := &handler{
		cfg:    cfg,
		runner: r,
		store:  store,
		log:    so.log,
	}

	s := mcp.NewServer(&mcp.Implementation{Name: "procrun", Version: procrun.Version}, &mcp.ServerOptions{
		Instructions: Instructions,
		Capabilities: &mcp.ServerCapabilities{
			Tools: &mcp.ToolCapabilities{ListChanged: false},
		},
	})

	mcp.AddTool(s, &mcp.Tool{
		Name: "run_command",
		Description: `Run one command to completion and return its exit code and captured output.

The command line is split with POSIX shell quoting and executed directly, without a shell:
pipes, redirections, globbing and variable expansion are not available (wrap in sh -c for those).
stdin is closed. If timeout_seconds elapses the process is sent SIGTERM and the partial output
is returned. Output longer than the preview is available through get_output.`,
	}, h.runHandler)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_output",
		Description: `Read captured stdout or stderr of an earlier run_command call by run ID, in pages.`,
	}, h.outputHandler)

	return s
}

// ServerOption configures the procrun MCP server.
type ServerOption func(*serverOptions)

type serverOptions struct {
	log *zap.Logger
}

// WithLogger sets the logger used for server diagnostics.
func WithLogger(log *zap.Logger) ServerOption {
	return func(o *serverOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// textResult is a helper to build a text-only tool result.
func textResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, nil, nil
}

// errorResult is a helper to build an error tool result.
func errorResult(text string) (*mcp.CallToolResult, any, error) {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}, nil, nil
}
