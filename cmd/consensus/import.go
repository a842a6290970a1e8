package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/db"
	"github.com/banshee-data/consensus.report/internal/fsutil"
	"github.com/banshee-data/consensus.report/internal/ingest"
	"github.com/banshee-data/consensus.report/internal/monitoring"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Load classification dumps into the sqlite database",
		Long: `Load one or more classification dumps into the --db database.

Every file is parsed before anything is written. A file that fails the
schema check, or a classification id already present in the database,
rolls the whole import back.

Example:
  consensus import --db consensus.db day1.jsonl day2.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if root.dbPath == "" {
				return errors.New("--db is required")
			}

			var rows []annotation.Classification
			for _, path := range args {
				batch, err := ingest.LoadFile(fsutil.OSFileSystem{}, path)
				if err != nil {
					return err
				}
				rows = append(rows, batch...)
			}

			store, err := db.OpenMigrated(root.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			classifications := db.NewClassificationStore(store)
			if err := classifications.InsertAll(cmd.Context(), rows); err != nil {
				return err
			}
			total, err := classifications.Count(cmd.Context())
			if err != nil {
				return err
			}
			monitoring.Logf("import: added %d classifications from %d files (%d stored)", len(rows), len(args), total)
			return nil
		},
	}
}
