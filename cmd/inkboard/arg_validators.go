package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// requireArgs accepts between min and max positional args. A negative max is unbounded.
func requireArgs(min, max int, message string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min || (max >= 0 && len(args) > max) {
			return fmt.Errorf("%s (usage: %s)", message, cmd.UseLine())
		}
		return nil
	}
}

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return requireArgs(min, -1, message)
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return requireArgs(count, count, message)
}
