package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deixis/procrun/internal/config"
)

const envPrefix = "PROCRUN"

// flagKeys maps command-line flags to configuration keys. The same keys
// are read from PROCRUN_* environment variables, with dots as underscores.
var flagKeys = map[string]string{
	"timeout":    "timeout",
	"allow-fork": "allow_fork",
	"kill-grace": "kill_grace",
	"max-output": "max_output",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// app wires the cobra command tree to the layered configuration and the
// logger built from it.
type app struct {
	dir     string // where the .procrun search starts; empty means the working directory
	v       *viper.Viper
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
}

func newApp(dir string) *app {
	return &app{
		dir:    dir,
		v:      viper.New(),
		cfg:    &config.Config{},
		logger: zap.NewNop(),
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "procrun",
		Short: "Run commands with a timeout and capture their output",
		Long: `procrun runs a command with its standard streams on pipes, waits for it
under an optional timeout, and reports its exit status and output.

Settings are read from the nearest .procrun file, then PROCRUN_*
environment variables, then flags, each overriding the one before.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initialize(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	pf.String("log-format", "", "override the configured log format (console or json)")

	root.AddCommand(
		a.runCommand(),
		a.showCommand(),
		a.mcpCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) initialize(cmd *cobra.Command) error {
	dir := a.dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determining working directory: %w", err)
		}
		dir = wd
	}

	loaded, err := config.Load(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg, a.cfgPath = loaded.Config, loaded.Path

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}

	if err := overlay(a.cfg, a.v); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(a.cfg.LogLevel(), a.cfg.LogFormat(), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.logger = logger
	a.logger.Debug("configuration loaded",
		zap.String("config_file", a.cfgPath),
		zap.Duration("timeout", a.cfg.Timeout()),
		zap.Bool("allow_fork", a.cfg.AllowFork),
		zap.String("history_dir", a.cfg.HistoryDir()),
	)
	return nil
}

// overlay copies every key set by a flag or environment variable onto cfg.
func overlay(cfg *config.Config, v *viper.Viper) error {
	var err error
	if v.IsSet("timeout") {
		if cfg.RawTimeout, err = durationSetting(v.GetString("timeout")); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	if v.IsSet("kill_grace") {
		if cfg.RawKillGrace, err = durationSetting(v.GetString("kill_grace")); err != nil {
			return fmt.Errorf("kill_grace: %w", err)
		}
	}
	if v.IsSet("allow_fork") {
		if cfg.AllowFork, err = cast.ToBoolE(v.Get("allow_fork")); err != nil {
			return fmt.Errorf("allow_fork: %w", err)
		}
	}
	if v.IsSet("max_output") {
		if cfg.RawMaxOutput, err = cast.ToIntE(v.Get("max_output")); err != nil {
			return fmt.Errorf("max_output: %w", err)
		}
	}
	if v.IsSet("history.dir") {
		cfg.History.Dir = v.GetString("history.dir")
	}
	if v.IsSet("history.capacity") {
		if cfg.History.Capacity, err = cast.ToIntE(v.Get("history.capacity")); err != nil {
			return fmt.Errorf("history.capacity: %w", err)
		}
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}
	return nil
}

// durationSetting accepts what config.ParseDuration accepts and returns it
// in the form stored in config.Config. Zero and negative values disable the
// setting.
func durationSetting(raw string) (string, error) {
	d, err := config.ParseDuration(raw)
	if err != nil {
		return "", err
	}
	if d <= 0 {
		return "", nil
	}
	return d.String(), nil
}
