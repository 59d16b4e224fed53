package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/deixis/procrun/internal/report"
	"github.com/deixis/procrun/internal/runner"
)

func (a *app) runCommand() *cobra.Command {
	var save, asJSON bool

	cmd := &cobra.Command{
		Use:   "run [flags] COMMAND [ARG...]",
		Short: "Run a command once and exit with its status",
		Long: `Run a command once, copy its captured stdout and stderr to procrun's own,
and exit with the command's status. A command killed by signal n exits
with 128+n, so a timeout normally reports 143.

A single COMMAND argument is split with shell quoting rules. Several
arguments are used as the argument vector as given. No shell is involved
either way.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, commandLine(args), save, asJSON)
		},
	}

	f := cmd.Flags()
	f.SetInterspersed(false)
	addRunFlags(f)
	f.BoolVar(&save, "save", false, "keep the run in the history directory for procrun show")
	f.BoolVar(&asJSON, "json", false, "print the run as JSON instead of replaying its output")
	return cmd
}

// addRunFlags registers the flags that set defaults for every run.
func addRunFlags(f *pflag.FlagSet) {
	f.String("timeout", "", "terminate the command after this long (e.g. 30s, or 2.5 for seconds)")
	f.Bool("allow-fork", false, "unblock SIGCHLD so the command can reap children of its own")
	f.String("kill-grace", "", "send SIGKILL this long after SIGTERM if the command is still running")
	f.Int("max-output", 0, "bytes kept per stream; 0 keeps everything")
}

// commandLine turns positional arguments into one command line.
func commandLine(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return shellquote.Join(args...)
}

func (a *app) newRunner() *runner.Runner {
	return &runner.Runner{
		KillGrace: a.cfg.KillGrace(),
		MaxOutput: a.cfg.MaxOutputBytes(),
		Logger:    a.logger,
	}
}

func (a *app) run(cmd *cobra.Command, line string, save, asJSON bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := runner.Command{
		Line:      line,
		AllowFork: a.cfg.AllowFork,
		Timeout:   a.cfg.Timeout(),
	}
	res, err := a.newRunner().Run(ctx, c)
	if err != nil {
		return err
	}
	record := report.NewRecord(c, res)

	if save {
		store := report.NewDiskStore(a.cfg.HistoryDir())
		if err := store.Save(record); err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "procrun: saved run %s\n", record.ID)
	}

	if asJSON {
		if err := writeJSON(cmd.OutOrStdout(), record); err != nil {
			return err
		}
	} else {
		if err := replay(cmd.OutOrStdout(), cmd.ErrOrStderr(), record); err != nil {
			return err
		}
		switch {
		case res.TimedOut && ctx.Err() != nil:
			fmt.Fprintln(cmd.ErrOrStderr(), "procrun: interrupted, command terminated")
		case res.TimedOut:
			fmt.Fprintf(cmd.ErrOrStderr(), "procrun: terminated after %s\n", c.Timeout)
		}
		if res.Truncated {
			fmt.Fprintf(cmd.ErrOrStderr(), "procrun: output truncated to %d bytes per stream\n", a.cfg.MaxOutputBytes())
		}
	}

	if code := exitStatus(res.ExitCode); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// replay writes the captured streams to stdout and stderr.
func replay(stdout, stderr io.Writer, r *report.Record) error {
	if _, err := stdout.Write(r.Stdout); err != nil {
		return err
	}
	_, err := stderr.Write(r.Stderr)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
