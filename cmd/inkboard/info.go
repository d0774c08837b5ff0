package main

import (
	"strings"

	"github.com/spf13/cobra"

	"inkboard/internal/api"
	"inkboard/internal/config"
)

func newInfoCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show server, database, and service info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.GetInfo(cmd.Context())
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(resp)
				}

				_ = writePlain("db_path: %s\n", resp.DBPath)
				_ = writePlain("schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain("users: %d\n", resp.Users)
				_ = writePlain("boards: %d\n", resp.Boards)
				_ = writePlain("logs: %d\n", resp.Logs)
				_ = writePlain("signup_open: %t\n", resp.SignupOpen)
				return writePlain("services: %s\n", strings.Join(resp.Services, ", "))
			})
		},
	}
}
