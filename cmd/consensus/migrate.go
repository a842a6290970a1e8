package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/banshee-data/consensus.report/internal/db"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the sqlite schema",
		Long: `Manage the sqlite schema of the --db database.

Examples:
  consensus migrate up --db consensus.db
  consensus migrate version --db consensus.db
  consensus migrate force 1 --db consensus.db`,
	}

	open := func() (*db.DB, error) {
		if root.dbPath == "" {
			return nil, errors.New("--db is required")
		}
		return db.Open(root.dbPath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			return d.MigrateUp()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			return d.MigrateDown()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current and latest schema versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()

			current, dirty, err := d.MigrateVersion()
			if err != nil {
				return err
			}
			latest, err := db.LatestMigrationVersion()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "current: %d\nlatest: %d\ndirty: %t\n", current, latest, dirty)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			return d.MigrateForce(v)
		},
	})

	return cmd
}
