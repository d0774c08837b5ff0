package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"inkboard/internal/api"
	"inkboard/internal/blobstore"
	"inkboard/internal/config"
	"inkboard/internal/models"
	"inkboard/internal/services/account"
	"inkboard/internal/services/board"
	"inkboard/internal/store"
)

// User commands work on the local database so the first admin can be
// provisioned before any server runs.
func newUserCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts in the local database",
	}
	cmd.AddCommand(newUserAddCmd(cfg, jsonOutput))
	cmd.AddCommand(newUserListCmd(cfg, jsonOutput))
	cmd.AddCommand(newUserSetDisabledCmd(cfg, jsonOutput, "disable", "Disable one account and block its logins", true))
	cmd.AddCommand(newUserSetDisabledCmd(cfg, jsonOutput, "enable", "Enable one account", false))
	cmd.AddCommand(newUserDeleteCmd(cfg, jsonOutput))
	return cmd
}

func withAccounts(cfg *config.Config, fn func(context.Context, *account.Service) error) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	blobs, err := blobstore.NewLocalCAS(cfg.BlobRoot())
	if err != nil {
		return err
	}
	boards, err := board.New(board.Options{
		Store:  st,
		Blobs:  blobs,
		Logger: slog.Default().With("component", board.Name),
	})
	if err != nil {
		return err
	}
	svc, err := account.New(account.Options{
		Store:  st,
		Logger: slog.Default().With("component", account.Name),
		OnUserDeleted: func(ctx context.Context, username string) {
			if _, err := boards.CollectBlobs(ctx, true); err != nil {
				slog.Warn("blob sweep after user delete failed", "username", username, "error", err)
			}
		},
	})
	if err != nil {
		return err
	}
	return fn(context.Background(), svc)
}

func newUserAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		passwordStdin bool
		email         string
		role          string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create one account",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPasswordStdin(passwordStdin)
			if err != nil {
				return err
			}
			parsedRole, err := models.ParseRole(role)
			if err != nil {
				return err
			}

			return withAccounts(cfg, func(ctx context.Context, svc *account.Service) error {
				created, err := svc.CreateUser(ctx, account.CreateUserInput{
					Username: args[0],
					Email:    email,
					Password: password,
					Role:     parsedRole,
				})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(api.UserFromModel(created))
				}
				return writePlain("created %s user %s (%s)\n", created.Role, created.Username, created.ID)
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	cmd.Flags().StringVar(&email, "email", "", "email address used for password resets")
	cmd.Flags().StringVar(&role, "role", string(models.RoleMember), "account role (admin or member)")
	return cmd
}

func newUserListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cfg, func(ctx context.Context, svc *account.Service) error {
				users, err := svc.ListUsers(ctx)
				if err != nil {
					return err
				}
				resp := make([]*api.UserResponse, 0, len(users))
				for i := range users {
					resp = append(resp, api.UserFromModel(&users[i]))
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"count": len(resp), "users": resp})
				}
				if len(resp) == 0 {
					return writePlain("no accounts yet; the first signup becomes admin\n")
				}
				if err := writePlain("USERNAME\tROLE\tSTATUS\tID\n"); err != nil {
					return err
				}
				for _, user := range resp {
					if err := writeUserLine(user); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newUserSetDisabledCmd(cfg *config.Config, jsonOutput *bool, name, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <username>",
		Short: short,
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAccounts(cfg, func(ctx context.Context, svc *account.Service) error {
				updated, err := svc.SetDisabled(ctx, args[0], disabled)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(api.UserFromModel(updated))
				}
				action := "enabled"
				if disabled {
					action = "disabled"
				}
				return writePlain("%s user %s\n", action, updated.Username)
			})
		},
	}
}

func newUserDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete one account with its sessions and boards",
		Args:    requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("deleting %s also deletes their boards; pass --force to confirm", args[0])
			}
			return withAccounts(cfg, func(ctx context.Context, svc *account.Service) error {
				if err := svc.DeleteUser(ctx, args[0]); err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(api.AdminUserDeleteResponse{Username: args[0], Deleted: true})
				}
				return writePlain("deleted user %s\n", args[0])
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "confirm deletion")
	return cmd
}
