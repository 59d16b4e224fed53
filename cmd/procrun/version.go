package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/deixis/procrun"
)

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// No configuration is needed, so a broken .procrun does not matter here.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), procrun.Version)
		},
	}
}
