package consensus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/reduce"
	"github.com/banshee-data/consensus.report/internal/timeutil"
)

// Run is one completed evaluation: the options snapshot it ran with and
// every result it produced.
type Run struct {
	ID        string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	Config    json.RawMessage `json:"config,omitempty"`
	Results   []reduce.Result `json:"results"`
}

// NewRun wraps results in a Run with a fresh id. config is stored as-is and
// may be nil.
func NewRun(config json.RawMessage, results []reduce.Result) *Run {
	return NewRunAt(timeutil.RealClock{}, config, results)
}

// NewRunAt is NewRun stamped by clock.
func NewRunAt(clock timeutil.Clock, config json.RawMessage, results []reduce.Result) *Run {
	return &Run{
		ID:        uuid.NewString(),
		CreatedAt: clock.Now().UTC(),
		Config:    config,
		Results:   results,
	}
}

// Summary counts results by task kind.
type Summary struct {
	Kind    annotation.TaskKind `json:"task_kind"`
	Total   int                 `json:"total"`
	Reached int                 `json:"reached"`
	Errors  int                 `json:"errors"`
}

// Summarise returns one Summary per kind present in the run, in declared
// kind order.
func (r *Run) Summarise() []Summary {
	byKind := make(map[annotation.TaskKind]*Summary)
	for _, res := range r.Results {
		s, ok := byKind[res.Kind]
		if !ok {
			s = &Summary{Kind: res.Kind}
			byKind[res.Kind] = s
		}
		s.Total++
		if res.Reached {
			s.Reached++
		}
		if res.Aux.Error != "" {
			s.Errors++
		}
	}

	var out []Summary
	for _, k := range annotation.AllKinds() {
		if s, ok := byKind[k]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Sink persists completed runs.
type Sink interface {
	SaveRun(ctx context.Context, run *Run) error
}
