package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deixis/procrun"
	procmcp "github.com/deixis/procrun/internal/mcp"
	"github.com/deixis/procrun/internal/report"
)

func (a *app) mcpCommand() *cobra.Command {
	var httpAddr string
	var instructions bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio, or on streamable HTTP with --http.

The run flags set the defaults applied to every run_command call.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if instructions {
				fmt.Fprint(cmd.OutOrStdout(), procmcp.Instructions)
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.serve(ctx, httpAddr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&httpAddr, "http", "", "start HTTP server on address (e.g. :9090)")
	f.BoolVar(&instructions, "instructions", false, "print model instructions and exit")
	addRunFlags(f)
	return cmd
}

func (a *app) serve(ctx context.Context, httpAddr string) error {
	disk := report.NewDiskStore(a.cfg.HistoryDir())
	store := report.NewLRUStore(a.cfg.HistoryCapacity(), disk)

	server := procmcp.NewServer(a.cfg, a.newRunner(), store, procmcp.WithLogger(a.logger))

	if httpAddr != "" {
		return a.serveHTTP(ctx, server, httpAddr)
	}
	a.logger.Info("serving on stdio", zap.String("version", procrun.Version))
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func (a *app) serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	a.logger.Info("listening", zap.String("addr", addr), zap.String("version", procrun.Version))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
