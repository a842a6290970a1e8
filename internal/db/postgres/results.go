// Package postgres stores consensus runs in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver

	"github.com/banshee-data/consensus.report/internal/consensus"
	"github.com/banshee-data/consensus.report/internal/db"
	"github.com/banshee-data/consensus.report/internal/monitoring"
	"github.com/banshee-data/consensus.report/internal/reduce"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS consensus_runs (
    run_id      TEXT        PRIMARY KEY,
    created_at  TIMESTAMPTZ NOT NULL,
    config_json JSONB,
    n_results   INTEGER     NOT NULL
);

CREATE TABLE IF NOT EXISTS consensus_results (
    run_id            TEXT    NOT NULL REFERENCES consensus_runs (run_id) ON DELETE CASCADE,
    subject_id        BIGINT  NOT NULL,
    task_kind         TEXT    NOT NULL,
    consensus_json    JSONB,
    consensus_reached BOOLEAN NOT NULL,
    n_evaluators      INTEGER NOT NULL,
    aux_info_json     JSONB   NOT NULL,
    PRIMARY KEY (run_id, subject_id, task_kind)
);
`

// ResultStore persists consensus runs to PostgreSQL. It implements
// consensus.Sink.
type ResultStore struct {
	db *sql.DB
}

var _ consensus.Sink = (*ResultStore)(nil)

// Open connects to dsn, checks the connection and creates the result tables
// if they do not exist.
func Open(ctx context.Context, dsn string) (*ResultStore, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	s := &ResultStore{db: conn}
	if err := s.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	monitoring.Logf("postgres: connected to %s", SafeDSNSummary(dsn))
	return s, nil
}

// NewResultStore wraps an already open pgx-backed *sql.DB.
func NewResultStore(conn *sql.DB) *ResultStore {
	return &ResultStore{db: conn}
}

// Close closes the underlying connection pool.
func (s *ResultStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the result tables if needed.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating postgres schema: %w", err)
	}
	return nil
}

// SaveRun stores run and its results in one transaction.
func (s *ResultStore) SaveRun(ctx context.Context, run *consensus.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	var config interface{}
	if len(run.Config) > 0 {
		config = string(run.Config)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO consensus_runs (run_id, created_at, config_json, n_results) VALUES ($1, $2, $3, $4)`,
		run.ID, run.CreatedAt.UTC(), config, len(run.Results),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO consensus_results (
			run_id, subject_id, task_kind, consensus_json, consensus_reached, n_evaluators, aux_info_json
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, res := range run.Results {
		consensusJSON, auxJSON, err := db.EncodeResult(res)
		if err != nil {
			return fmt.Errorf("encoding result for subject %d %s: %w", res.SubjectID, res.Kind, err)
		}
		var value interface{}
		if consensusJSON != nil {
			value = string(consensusJSON)
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, res.SubjectID, res.Kind.String(), value, res.Reached, res.NEvaluators, string(auxJSON),
		); err != nil {
			return fmt.Errorf("inserting result for subject %d %s: %w", res.SubjectID, res.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// ListResults returns the results of one run ordered by subject id and task kind.
func (s *ResultStore) ListResults(ctx context.Context, runID string) ([]reduce.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, task_kind, consensus_json::text, consensus_reached, n_evaluators, aux_info_json::text
		FROM consensus_results
		WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []reduce.Result
	for rows.Next() {
		var (
			subjectID     int64
			kind          string
			consensusJSON sql.NullString
			reached       bool
			nEvaluators   int
			auxJSON       string
		)
		if err := rows.Scan(&subjectID, &kind, &consensusJSON, &reached, &nEvaluators, &auxJSON); err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		var raw []byte
		if consensusJSON.Valid {
			raw = []byte(consensusJSON.String)
		}
		res, err := db.DecodeResult(subjectID, kind, raw, []byte(auxJSON), reached, nEvaluators)
		if err != nil {
			return nil, fmt.Errorf("run %s subject %d %s: %w", runID, subjectID, kind, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reduce.SortResults(out)
	return out, nil
}

// SafeDSNSummary returns host and database name from a postgres URL or
// keyword DSN, without credentials.
func SafeDSNSummary(dsn string) string {
	if strings.Contains(dsn, "://") {
		rest := dsn[strings.Index(dsn, "://")+3:]
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			rest = rest[at+1:]
		}
		if q := strings.Index(rest, "?"); q >= 0 {
			rest = rest[:q]
		}
		return rest
	}

	var host, name string
	for _, field := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "host":
			host = v
		case "dbname":
			name = v
		}
	}
	return host + "/" + name
}
