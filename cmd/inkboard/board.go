package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"inkboard/internal/api"
	"inkboard/internal/config"
	"inkboard/internal/format"
)

func newBoardCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Manage boards of the INKBOARD_SESSION user",
	}
	cmd.AddCommand(
		newBoardListCmd(cfg, jsonOutput),
		newBoardCreateCmd(cfg, jsonOutput),
		newBoardShowCmd(cfg, jsonOutput),
		newBoardRenameCmd(cfg, jsonOutput),
		newBoardExportCmd(cfg),
		newBoardImportCmd(cfg, jsonOutput),
		newBoardDeleteCmd(cfg, jsonOutput),
		newBoardSceneCmd(cfg, jsonOutput),
		newBoardFileCmd(cfg, jsonOutput),
	)
	return cmd
}

func newBoardListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List boards",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				boards, err := client.ListBoards(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(boards)
				}
				return writeBoardList(boards)
			})
		},
	}
}

func newBoardCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "create [title]",
		Short: "Create an empty board",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req api.BoardCreateRequest
			if len(args) == 1 {
				req.Title = args[0]
			}
			return withClient(cfg, func(client *api.Client) error {
				created, err := client.CreateBoard(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(created)
				}
				return writePlain("created board %s (%s)\n", created.ID, created.Title)
			})
		},
	}
}

func newBoardShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one board",
		Args:  requireExactlyArgs(1, "board id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				board, err := client.GetBoard(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(board)
				}
				return writeBoardDetail(board)
			})
		},
	}
}

func newBoardRenameCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename one board",
		Args:  requireExactlyArgs(2, "board id and title are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				board, err := client.RenameBoard(cmd.Context(), args[0], api.BoardRenameRequest{Title: args[1]})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(board)
				}
				return writePlain("renamed board %s to %s\n", board.ID, board.Title)
			})
		},
	}
}

func newBoardExportCmd(cfg *config.Config) *cobra.Command {
	var (
		output     string
		formatName string
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a board with its files",
		Args:  requireExactlyArgs(1, "board id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := exportKind(formatName, output)
			if err != nil {
				return err
			}

			var w io.Writer = os.Stdout
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			return withClient(cfg, func(client *api.Client) error {
				return client.ExportBoard(cmd.Context(), args[0], string(kind), w)
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&formatName, "format", "", "json or yaml (default from the output extension)")
	return cmd
}

func newBoardImportCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var formatName string

	cmd := &cobra.Command{
		Use:   "import <file|->",
		Short: "Import a board document as a new board",
		Args:  requireExactlyArgs(1, "input file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := exportKind(formatName, args[0])
			if err != nil {
				return err
			}

			var data []byte
			if args[0] == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			// Validate locally so obvious mistakes never reach the server.
			if _, err := format.DecodeBoard(bytes.NewReader(data), kind); err != nil {
				return fmt.Errorf("invalid board document: %w", err)
			}

			return withClient(cfg, func(client *api.Client) error {
				board, err := client.ImportBoard(cmd.Context(), bytes.NewReader(data), kind.ContentType())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(board)
				}
				return writePlain("imported board %s (%s)\n", board.ID, board.Title)
			})
		},
	}

	cmd.Flags().StringVar(&formatName, "format", "", "json or yaml (default from the file extension)")
	return cmd
}

func newBoardDeleteCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete boards and their files",
		Args:    requireAtLeastArgs(1, "board id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				deleted := make([]string, 0, len(args))
				for _, id := range args {
					if err := client.DeleteBoard(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %s: %w", id, err)
					}
					deleted = append(deleted, id)
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"deleted": deleted})
				}
				return writePlain("deleted %s\n", strings.Join(deleted, ", "))
			})
		},
	}
}

// exportKind prefers an explicit --format and falls back to the file extension.
func exportKind(formatName, path string) (format.Kind, error) {
	if strings.TrimSpace(formatName) != "" {
		return format.ParseKind(formatName)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return format.KindYAML, nil
	default:
		return format.KindJSON, nil
	}
}
