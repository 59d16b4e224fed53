package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/deixis/procrun/internal/report"
)

func (a *app) showCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [--json] RUN_ID",
		Short: "Print a run saved with procrun run --save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.HistoryDir()
			record, err := report.NewDiskStore(dir).Load(args[0])
			if errors.Is(err, report.ErrNotFound) {
				return fmt.Errorf("run %s not found in %s", args[0], dir)
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), record)
			}
			fmt.Fprint(cmd.OutOrStdout(), describe(record))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")
	return cmd
}

func describe(r *report.Record) string {
	var b []byte
	w := func(format string, args ...any) {
		b = fmt.Appendf(b, format, args...)
	}

	w("Run:      %s\n", r.ID)
	w("Command:  %s\n", r.Command)
	w("Started:  %s\n", r.StartedAt.Format(time.RFC3339))
	w("Duration: %s\n", r.Duration.Round(time.Millisecond))
	w("Exit:     %d\n", r.ExitCode)
	if r.AllowFork {
		w("Fork:     allowed\n")
	}
	if r.TimedOut {
		w("Timeout:  terminated after %s\n", r.Timeout)
	}
	if r.Truncated {
		w("Output:   truncated\n")
	}

	for _, s := range []report.Stream{report.Stdout, report.Stderr} {
		data, _ := r.Output(s)
		w("\n--- %s (%d bytes)\n", s, len(data))
		b = append(b, data...)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			w("\n")
		}
	}
	return string(b)
}
