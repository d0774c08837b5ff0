package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"inkboard/internal/api"
	"inkboard/internal/config"
)

func newBoardFileCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Upload or download images referenced by a board",
	}
	cmd.AddCommand(newBoardFilePutCmd(cfg, jsonOutput), newBoardFileGetCmd(cfg))
	return cmd
}

func newBoardFilePutCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var mimeType string

	cmd := &cobra.Command{
		Use:   "put <board-id> <file-id> <path>",
		Short: "Upload one image",
		Args:  requireExactlyArgs(3, "board id, file id, and path are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID, fileID, path := args[0], args[1], args[2]
			if mimeType == "" {
				mimeType = mime.TypeByExtension(filepath.Ext(path))
			}
			if mimeType == "" {
				return fmt.Errorf("cannot infer a type for %s; pass --type", path)
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			return withClient(cfg, func(client *api.Client) error {
				file, err := client.UploadFile(cmd.Context(), boardID, fileID, mimeType, f)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(file)
				}
				return writePlain("stored %s (%s, %d bytes)\n", file.FileID, file.MimeType, file.SizeBytes)
			})
		},
	}

	cmd.Flags().StringVar(&mimeType, "type", "", "mime type (default from the extension)")
	return cmd
}

func newBoardFileGetCmd(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "get <board-id> <file-id>",
		Short: "Download one image",
		Args:  requireExactlyArgs(2, "board id and file id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
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
				_, err := client.DownloadFile(cmd.Context(), args[0], args[1], w)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newBoardSceneCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		replace         string
		expectedVersion int64
	)

	cmd := &cobra.Command{
		Use:   "scene <id>",
		Short: "Print a board scene, or replace it with --replace",
		Args:  requireExactlyArgs(1, "board id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withClient(cfg, func(client *api.Client) error {
				if replace == "" {
					scene, err := client.GetScene(cmd.Context(), id)
					if err != nil {
						return err
					}
					return writeJSON(scene)
				}

				data, err := os.ReadFile(replace)
				if err != nil {
					return err
				}
				var req api.SceneSaveRequest
				if err := json.Unmarshal(data, &req.Scene); err != nil {
					return fmt.Errorf("parse scene %s: %w", replace, err)
				}
				if cmd.Flags().Changed("expected-version") {
					req.ExpectedVersion = &expectedVersion
				}
				resp, err := client.SaveScene(cmd.Context(), id, req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("saved board %s at version %d\n", resp.ID, resp.Version)
			})
		},
	}

	cmd.Flags().StringVar(&replace, "replace", "", "scene JSON file to save")
	cmd.Flags().Int64Var(&expectedVersion, "expected-version", 0, "reject the save unless the board is at this version")
	return cmd
}
