package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/consensus"
	"github.com/banshee-data/consensus.report/internal/reduce"
)

// RunRecord is the stored header of a consensus run.
type RunRecord struct {
	RunID     string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Config    json.RawMessage `json:"config,omitempty"`
	NResults  int             `json:"n_results"`
}

// ResultStore persists consensus runs. It implements consensus.Sink.
type ResultStore struct {
	db *sql.DB
}

var _ consensus.Sink = (*ResultStore)(nil)

// NewResultStore creates a new ResultStore.
func NewResultStore(db *DB) *ResultStore {
	return &ResultStore{db: db.DB}
}

func nullJSON(data json.RawMessage) *string {
	if len(data) == 0 {
		return nil
	}
	s := string(data)
	return &s
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

// SaveRun stores run and all of its results in one transaction.
func (s *ResultStore) SaveRun(ctx context.Context, run *consensus.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO consensus_runs (run_id, created_at, config_json, n_results) VALUES (?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UTC().Format(time.RFC3339Nano), nullJSON(run.Config), len(run.Results),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO consensus_results (
			run_id, subject_id, task_kind, consensus_json, consensus_reached, n_evaluators, aux_info_json
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, res := range run.Results {
		consensusJSON, auxJSON, err := EncodeResult(res)
		if err != nil {
			return fmt.Errorf("encoding result for subject %d %s: %w", res.SubjectID, res.Kind, err)
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, res.SubjectID, res.Kind.String(), nullJSON(consensusJSON),
			res.Reached, res.NEvaluators, string(auxJSON),
		); err != nil {
			return fmt.Errorf("inserting result for subject %d %s: %w", res.SubjectID, res.Kind, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", run.ID, err)
	}
	return nil
}

// EncodeResult returns the JSON column values for res. A nil consensus
// encodes as nil.
func EncodeResult(res reduce.Result) (consensusJSON, auxJSON json.RawMessage, err error) {
	if res.Consensus != nil {
		if consensusJSON, err = json.Marshal(res.Consensus); err != nil {
			return nil, nil, err
		}
	}
	if auxJSON, err = json.Marshal(res.Aux); err != nil {
		return nil, nil, err
	}
	return consensusJSON, auxJSON, nil
}

// DecodeResult rebuilds a Result from its stored columns.
func DecodeResult(subjectID int64, kindName string, consensusJSON, auxJSON []byte, reached bool, nEvaluators int) (reduce.Result, error) {
	kind, err := annotation.ParseTaskKind(kindName)
	if err != nil {
		return reduce.Result{}, err
	}
	value, err := reduce.DecodeConsensus(kind, consensusJSON)
	if err != nil {
		return reduce.Result{}, fmt.Errorf("decoding consensus: %w", err)
	}
	res := reduce.Result{
		SubjectID:   subjectID,
		Kind:        kind,
		Consensus:   value,
		Reached:     reached,
		NEvaluators: nEvaluators,
	}
	if err := json.Unmarshal(auxJSON, &res.Aux); err != nil {
		return reduce.Result{}, fmt.Errorf("decoding aux_info: %w", err)
	}
	return res, nil
}

// ListRuns returns stored runs, newest first.
func (s *ResultStore) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, created_at, config_json, n_results FROM consensus_runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			rec       RunRecord
			createdAt string
			config    sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &createdAt, &config, &rec.NResults); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at for run %s: %w", rec.RunID, err)
		}
		rec.Config = jsonOrNil(config)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListResults returns the results of one run ordered by subject id and task
// kind. An unknown run id yields no results.
func (s *ResultStore) ListResults(ctx context.Context, runID string) ([]reduce.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, task_kind, consensus_json, consensus_reached, n_evaluators, aux_info_json
		FROM consensus_results
		WHERE run_id = ?`, runID)
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
		res, err := DecodeResult(subjectID, kind, jsonOrNil(consensusJSON), []byte(auxJSON), reached, nEvaluators)
		if err != nil {
			return nil, fmt.Errorf("run %s subject %d %s: %w", runID, subjectID, kind, err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// task_kind is stored by name, so order by the enum here
	reduce.SortResults(out)
	return out, nil
}
