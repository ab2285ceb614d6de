// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/config"
	"github.com/holomush/warden/internal/store"
)

// schemaMigrator is the subset of store.Migrator the migrate commands use.
type schemaMigrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// newMigrator is replaced in tests.
var newMigrator = func(databaseURL string) (schemaMigrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL users schema",
		Long: `Apply, roll back or inspect the users schema migrations.
The database is taken from --database-url or DATABASE_URL.`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m schemaMigrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("Schema is up to date")
					return nil
				}
				cmd.Printf("Applying %d migration(s)...\n", len(pending))
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations completed successfully")
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations, dropping every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").
					Errorf("migrate down drops the users table; pass --yes to confirm")
			}
			return withMigrator(cmd, func(m schemaMigrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping all data")

	return cmd
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m schemaMigrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				cmd.Println(formatVersion(version, dirty, len(pending)))
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark the schema as VERSION without running migrations",
		Long: `Set the recorded schema version and clear the dirty flag.
Use this only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, func(m schemaMigrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", version)
				return nil
			})
		},
	}
}

// withMigrator runs fn with a migrator for the configured database.
func withMigrator(cmd *cobra.Command, fn func(schemaMigrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	databaseURL, err := getDatabaseURL(cfg)
	if err != nil {
		return err
	}

	m, err := newMigrator(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrln("warning: closing migrator:", closeErr)
		}
	}()

	return fn(m)
}

// getDatabaseURL returns the configured PostgreSQL URL.
func getDatabaseURL(cfg *config.Config) (string, error) {
	if cfg.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").
			With("key", "database_url").
			Errorf("database URL is required: set --database-url or DATABASE_URL")
	}
	return cfg.DatabaseURL, nil
}

// parseForceVersion reads a leading integer from s.
func parseForceVersion(s string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &version); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return version, nil
}

func formatVersion(version uint, dirty bool, pending int) string {
	var b strings.Builder
	if version == 0 {
		b.WriteString("Schema version: none")
	} else {
		fmt.Fprintf(&b, "Schema version: %d", version)
		if name, err := store.MigrationName(version); err == nil && name != "" {
			fmt.Fprintf(&b, " (%s)", name)
		}
	}
	if dirty {
		b.WriteString(" [dirty]")
	}
	fmt.Fprintf(&b, "\nPending migrations: %d", pending)
	return b.String()
}
