package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/config"
	"github.com/banshee-data/consensus.report/internal/consensus"
	"github.com/banshee-data/consensus.report/internal/db"
	"github.com/banshee-data/consensus.report/internal/db/postgres"
	"github.com/banshee-data/consensus.report/internal/export"
	"github.com/banshee-data/consensus.report/internal/fsutil"
	"github.com/banshee-data/consensus.report/internal/ingest"
	"github.com/banshee-data/consensus.report/internal/monitoring"
)

type evaluateOptions struct {
	root *rootOptions

	input       string
	configPath  string
	out         string
	format      string
	save        bool
	postgresDSN string
	metricsFile string
	workers     int
}

func newEvaluateCmd(root *rootOptions) *cobra.Command {
	o := &evaluateOptions{root: root}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Compute consensus for every subject and task kind",
		Long: `Compute consensus for every subject and task kind.

Classifications are read from a JSON or JSON Lines file (--input) or from a
sqlite database filled by 'consensus import' (--db). Results are ordered by
subject id, then task kind, and written to --out or stdout.

Examples:
  consensus evaluate --input dump.jsonl --format csv > results.csv
  consensus evaluate --db consensus.db --config config/consensus.defaults.json --save
  CONSENSUS_MIN_THRESHOLD=3 consensus evaluate --input dump.json --out results.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return o.run(ctx, cmd)
		},
	}

	cmd.Flags().StringVar(&o.input, "input", "", "classification dump (.json array or JSON Lines)")
	cmd.Flags().StringVar(&o.configPath, "config", "", "config file (.json, .yaml or .yml); CONSENSUS_* env vars override it")
	cmd.Flags().StringVar(&o.out, "out", "", "output file; format inferred from extension unless --format is set")
	cmd.Flags().StringVar(&o.format, "format", "", "output format: csv, json or yaml (default json)")
	cmd.Flags().BoolVar(&o.save, "save", false, "store the run in the --db database")
	cmd.Flags().StringVar(&o.postgresDSN, "postgres-dsn", "", "also store the run in this PostgreSQL database")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	cmd.Flags().IntVar(&o.workers, "workers", 0, "parallel subject workers (overrides config; 0 keeps config)")
	return cmd
}

func (o *evaluateOptions) validate() error {
	switch {
	case o.input == "" && o.root.dbPath == "":
		return errors.New("one of --input or --db is required")
	case o.input != "" && o.root.dbPath != "":
		return errors.New("--input and --db are mutually exclusive")
	case o.save && o.root.dbPath == "":
		return errors.New("--save requires --db")
	case o.workers < 0:
		return fmt.Errorf("--workers must be non-negative, got %d", o.workers)
	}
	return nil
}

func (o *evaluateOptions) outputFormat() (export.Format, error) {
	if o.format != "" {
		return export.ParseFormat(o.format)
	}
	if o.out != "" {
		if f, err := export.FormatFromPath(o.out); err == nil {
			return f, nil
		}
	}
	return export.FormatJSON, nil
}

func (o *evaluateOptions) run(ctx context.Context, cmd *cobra.Command) error {
	if err := o.validate(); err != nil {
		return err
	}
	format, err := o.outputFormat()
	if err != nil {
		return err
	}

	cfg, err := config.LoadConsensusConfig(o.configPath)
	if err != nil {
		return err
	}
	opts, err := cfg.Options()
	if err != nil {
		return err
	}
	if o.workers > 0 {
		opts.Workers = o.workers
	}

	var reg *prometheus.Registry
	if o.metricsFile != "" {
		reg = prometheus.NewRegistry()
		if opts.Metrics, err = monitoring.NewMetrics(reg); err != nil {
			return err
		}
	}

	var store *db.DB
	if o.root.dbPath != "" {
		if store, err = db.OpenMigrated(o.root.dbPath); err != nil {
			return err
		}
		defer store.Close()
	}

	rows, err := o.load(ctx, store)
	if err != nil {
		return err
	}

	results, err := consensus.Evaluate(ctx, rows, opts)
	if err != nil {
		var schemaErr *annotation.SchemaError
		if errors.As(err, &schemaErr) {
			return fmt.Errorf("input rejected: %w", err)
		}
		return err
	}

	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	run := consensus.NewRun(configJSON, results)
	for _, s := range run.Summarise() {
		monitoring.Logf("consensus: %s reached %d/%d (errors %d)", s.Kind, s.Reached, s.Total, s.Errors)
	}

	if err := o.persist(ctx, store, run); err != nil {
		return err
	}

	if o.out != "" {
		if err := export.WriteFile(fsutil.OSFileSystem{}, o.out, format, results); err != nil {
			return err
		}
	} else if err := export.Write(cmd.OutOrStdout(), format, results); err != nil {
		return err
	}

	if reg != nil {
		if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}
	return nil
}

func (o *evaluateOptions) load(ctx context.Context, store *db.DB) ([]annotation.Classification, error) {
	if o.input != "" {
		return ingest.LoadFile(fsutil.OSFileSystem{}, o.input)
	}
	if err := store.CheckMigrations(); err != nil {
		return nil, err
	}
	return db.NewClassificationStore(store).LoadAll(ctx)
}

func (o *evaluateOptions) persist(ctx context.Context, store *db.DB, run *consensus.Run) error {
	var sinks []consensus.Sink
	if o.save {
		sinks = append(sinks, db.NewResultStore(store))
	}
	if o.postgresDSN != "" {
		pg, err := postgres.Open(ctx, o.postgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		sinks = append(sinks, pg)
	}

	for _, sink := range sinks {
		if err := sink.SaveRun(ctx, run); err != nil {
			return err
		}
	}
	if len(sinks) > 0 {
		monitoring.Logf("consensus: saved run %s with %d results", run.ID, len(run.Results))
	}
	return nil
}
