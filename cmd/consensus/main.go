// Package main implements the consensus CLI: import classification dumps,
// evaluate consensus per subject and task kind, and export or store results.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/banshee-data/consensus.report/internal/monitoring"
	"github.com/banshee-data/consensus.report/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	logLevel  string
	logFormat string
	dbPath    string

	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "consensus",
		Short: "Aggregate crowd annotations into per-subject consensus",
		Long: `consensus reduces volunteer classifications of image subjects into one
consensus answer per subject and task kind.

Choice and count tasks use the most frequent answer; point, circle and
rectangle marks are clustered with DBSCAN and merged into centroids.

Examples:
  # Evaluate a JSON Lines dump and write CSV
  consensus evaluate --input classifications.jsonl --out results.csv

  # Import into sqlite, then evaluate and keep the run
  consensus import --db consensus.db classifications.json
  consensus evaluate --db consensus.db --save --out results.yaml`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := monitoring.NewZapLogger(opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			monitoring.UseZap(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "log format (console or json)")
	cmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "sqlite database path")

	cmd.AddCommand(
		newEvaluateCmd(opts),
		newImportCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "consensus %s\n", version.String())
		},
	}
}
