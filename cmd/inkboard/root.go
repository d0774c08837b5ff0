package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inkboard/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool
	var logLevel string

	cmd := &cobra.Command{
		Use:           "inkboard",
		Short:         "Inkboard is a collaborative whiteboard server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warnings, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newInfoCmd(cfg, &jsonOutput),
		newLoginCmd(cfg, &jsonOutput),
		newLogoutCmd(cfg),
		newUserCmd(cfg, &jsonOutput),
		newBoardCmd(cfg, &jsonOutput),
		newLogsCmd(cfg, &jsonOutput),
		newCallCmd(cfg),
		newConfigCmd(cfg),
	)

	return cmd
}
