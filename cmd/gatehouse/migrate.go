// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending database migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateWithDeps(cmd, cmd.Flags(), down, nil)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations (destructive)")
	cmd.Flags().AddFlagSet(config.Flags())

	return cmd
}

// MigrateDeps contains injectable dependencies for the migrate command.
type MigrateDeps struct {
	ConfigLoader    func(path string, flags *pflag.FlagSet) (config.Config, error)
	MigratorFactory func(databaseURL string) (MigratorWithVersion, error)
}

// MigratorWithVersion extends Migrator with version reporting for the CLI.
type MigratorWithVersion interface {
	Migrator
	Down() error
	Version() (version uint, dirty bool, err error)
}

func runMigrateWithDeps(cmd *cobra.Command, flags *pflag.FlagSet, down bool, deps *MigrateDeps) error {
	if deps == nil {
		deps = &MigrateDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (MigratorWithVersion, error) {
			return store.NewMigrator(databaseURL)
		}
	}

	cfg, err := deps.ConfigLoader(configFile, flags)
	if err != nil {
		return err
	}

	migrator, err := deps.MigratorFactory(cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if down {
		cmd.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			return err
		}
		cmd.Println("Rollback completed successfully")
		return nil
	}

	cmd.Println("Running migrations...")
	if err := migrator.Up(); err != nil {
		return err
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	cmd.Printf("Migrations completed successfully (version %d, dirty: %t)\n", version, dirty)
	return nil
}
