package main

import (
	"time"

	"github.com/spf13/cobra"

	"inkboard/internal/api"
	"inkboard/internal/config"
)

func newLogsCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		logType string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show startup and error records (admin only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				records, err := client.ListLogs(cmd.Context(), logType, limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(records)
				}
				for _, record := range records {
					ts := time.UnixMilli(record.Timestamp)
					if err := writePlain("%s  %-7s  %s\n", formatTime(ts), record.Type, record.Content); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&logType, "type", "", "startup or error")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to show")
	return cmd
}
