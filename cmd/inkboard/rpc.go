package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"inkboard/internal/api"
	"inkboard/internal/config"
)

func newCallCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "call <service> <method> [params-json]",
		Short: "Invoke a service method over the RPC endpoint",
		Args:  requireArgs(2, 3, "service and method are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 3 {
				params = json.RawMessage(args[2])
				if !json.Valid(params) {
					return fmt.Errorf("params must be valid JSON")
				}
			}
			return withClient(cfg, func(client *api.Client) error {
				var result json.RawMessage
				if err := client.Call(cmd.Context(), args[0], args[1], params, &result); err != nil {
					return err
				}
				return writeJSON(result)
			})
		},
	}
}
