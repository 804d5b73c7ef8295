// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Blockstranding Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nrdxhq/blockstranding/internal/store"
)

// migrator is the subset of store.Migrator the migrate commands use.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	Pending() ([]uint, error)
	Close() error
}

// newMigrator is swapped in tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, or inspect the PostgreSQL schema migrations.`,
	}

	var all bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(c, func(m migrator) error {
				if all {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("All migrations rolled back")
					return nil
				}
				if err := m.Steps(-1); err != nil {
					return err
				}
				cmd.Println("Rolled back one migration")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&all, "all", false, "roll back every migration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(c, func(m migrator) error {
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations completed successfully")
					return nil
				})
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Show the current schema version and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(c, func(m migrator) error {
					return runMigrateVersion(cmd, m)
				})
			},
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Set the schema version without running migrations (clears dirty state)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := parseForceVersion(args[0])
				if err != nil {
					return err
				}
				return withMigrator(c, func(m migrator) error {
					if err := m.Force(v); err != nil {
						return err
					}
					cmd.Printf("Forced schema version to %d\n", v)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(c *cli, fn func(m migrator) error) error {
	if err := c.cfg.requireDatabase(); err != nil {
		return err
	}
	m, err := newMigrator(c.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			c.logger.Warn("failed to close migrator", "error", err)
		}
	}()
	return fn(m)
}

func runMigrateVersion(cmd *cobra.Command, m migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	name := "none"
	if v > 0 {
		if name, err = store.MigrationName(v); err != nil {
			return err
		}
	}
	cmd.Printf("Version: %d (%s)\n", v, name)
	if dirty {
		cmd.Println("State: dirty (fix the schema, then run migrate force)")
	}
	pending, err := m.Pending()
	if err != nil {
		return err
	}
	cmd.Printf("Pending: %d\n", len(pending))
	for _, p := range pending {
		n, err := store.MigrationName(p)
		if err != nil {
			return err
		}
		cmd.Printf("  %s\n", n)
	}
	return nil
}

func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return v, nil
}
