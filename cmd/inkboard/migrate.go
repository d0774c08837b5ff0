package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"inkboard/internal/config"
	"inkboard/internal/store"
)

func newMigrateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or inspect database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}

			if dryRun {
				plan, err := migrationPlan(cfg.DBPath)
				if err != nil {
					return fmt.Errorf("inspect migrations: %w", err)
				}
				if *jsonOutput {
					return writeJSON(plan)
				}
				return writeMigrationPlan(plan)
			}

			// Opening the store applies pending migrations.
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := st.Close(); err != nil {
				return err
			}

			if *jsonOutput {
				plan, err := migrationPlan(cfg.DBPath)
				if err != nil {
					return err
				}
				return writeJSON(plan)
			}
			return writePlain("Migrations applied successfully.\n")
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show pending migrations without applying")
	return cmd
}

func migrationPlan(path string) (*store.MigrationStatus, error) {
	db, err := store.OpenRaw(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return store.MigrationPlan(db)
}

func writeMigrationPlan(plan *store.MigrationStatus) error {
	_ = writePlain("Current version: %d\n", plan.CurrentVersion)
	_ = writePlain("Available version: %d\n", plan.AvailableVersion)
	if len(plan.Pending) == 0 {
		return writePlain("No pending migrations.\n")
	}
	_ = writePlain("Pending migrations: %d\n", len(plan.Pending))
	for _, m := range plan.Pending {
		if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
			return err
		}
	}
	return nil
}
