package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"inkboard/internal/api"
	"inkboard/internal/config"
)

func newLoginCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login <username-or-email>",
		Short: "Open a session and print its token",
		Long: "Open a session and print its token. Export it as INKBOARD_SESSION so later\n" +
			"commands run as this user.",
		Args: requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPasswordStdin(passwordStdin)
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Login(cmd.Context(), api.LoginRequest{Username: args[0], Password: password})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{
						"user":       resp.User,
						"expires_at": resp.ExpiresAt,
						"session":    client.SessionToken(),
					})
				}
				return writePlain("export INKBOARD_SESSION=%s\n", client.SessionToken())
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	return cmd
}

func newLogoutCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session in INKBOARD_SESSION",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if client.SessionToken() == "" {
					return fmt.Errorf("INKBOARD_SESSION is not set")
				}
				if err := client.Logout(cmd.Context()); err != nil {
					return err
				}
				return writePlain("session revoked\n")
			})
		},
	}
}

func readPasswordStdin(enabled bool) (string, error) {
	if !enabled {
		return "", fmt.Errorf("--password-stdin is required")
	}
	passwordBytes, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(passwordBytes)), nil
}
