package consensus

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/monitoring"
	"github.com/banshee-data/consensus.report/internal/reduce"
	"github.com/banshee-data/consensus.report/internal/timeutil"
)

// DefaultMinThreshold is the number of distinct evaluators a subject needs
// before any reducer runs.
const DefaultMinThreshold = 5

// Options configures an Evaluator.
type Options struct {
	// Kinds lists the task kinds to reduce. Empty means every kind.
	Kinds []annotation.TaskKind
	// MinThreshold is the minimum distinct evaluator count per subject.
	MinThreshold int
	// Reduce holds the reached fraction and per-kind clustering parameters.
	Reduce reduce.Params
	// Workers bounds the number of subjects reduced in parallel. Zero or
	// less means GOMAXPROCS.
	Workers int
	// Metrics is optional.
	Metrics *monitoring.Metrics
	// Clock times runs. Nil means the wall clock.
	Clock timeutil.Clock
}

// DefaultOptions returns options for every task kind with default thresholds.
func DefaultOptions() Options {
	return Options{
		Kinds:        annotation.AllKinds(),
		MinThreshold: DefaultMinThreshold,
		Reduce:       reduce.DefaultParams(),
	}
}

// Evaluator reduces a batch of classifications into one result per
// (subject, task kind). It keeps no state between calls and may be used
// concurrently.
type Evaluator struct {
	opts     Options
	reducers []reduce.Reducer // in declared kind order
}

// NewEvaluator validates opts and builds one reducer per requested kind.
func NewEvaluator(opts Options) (*Evaluator, error) {
	if opts.MinThreshold < 0 {
		return nil, fmt.Errorf("min_threshold must be non-negative, got %d", opts.MinThreshold)
	}
	if f := opts.Reduce.ReachedFraction; !(f > 0 && f <= 1) {
		return nil, fmt.Errorf("reached_fraction must be in (0, 1], got %v", f)
	}

	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = annotation.AllKinds()
	}
	kinds = append([]annotation.TaskKind(nil), kinds...)
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	reducers := make([]reduce.Reducer, 0, len(kinds))
	for i, k := range kinds {
		if i > 0 && kinds[i-1] == k {
			return nil, fmt.Errorf("task kind %s requested twice", k)
		}
		r, err := reduce.New(k, opts.Reduce)
		if err != nil {
			return nil, err
		}
		reducers = append(reducers, r)
	}

	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	opts.Kinds = kinds

	return &Evaluator{opts: opts, reducers: reducers}, nil
}

// Kinds returns the task kinds this evaluator reduces, in declared order.
func (e *Evaluator) Kinds() []annotation.TaskKind {
	return append([]annotation.TaskKind(nil), e.opts.Kinds...)
}

// Evaluate groups rows by subject and reduces every subject for every
// configured kind. Results are ordered by subject id, then task kind, no
// matter how rows or worker completions are ordered.
//
// A *annotation.SchemaError aborts the run. Failures inside one subject are
// recorded in that subject's Aux.Error and the run continues.
func (e *Evaluator) Evaluate(ctx context.Context, rows []annotation.Classification) ([]reduce.Result, error) {
	start := e.opts.Clock.Now()
	defer func() { e.opts.Metrics.ObserveRun(e.opts.Clock.Since(start)) }()

	groups, ids, err := annotation.Group(rows)
	if err != nil {
		return nil, err
	}

	perSubject := make([][]reduce.Result, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, id := range ids {
		if gctx.Err() != nil {
			break
		}
		group := groups[id]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perSubject[i] = e.reduceSubject(group)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]reduce.Result, 0, len(ids)*len(e.reducers))
	for _, rs := range perSubject {
		results = append(results, rs...)
	}
	reduce.SortResults(results)

	monitoring.Logf("consensus: reduced %d subjects, %d classifications, %d results in %s",
		len(ids), len(rows), len(results), e.opts.Clock.Since(start).Round(time.Millisecond))
	return results, nil
}

// reduceSubject runs every reducer over one subject.
func (e *Evaluator) reduceSubject(group *annotation.SubjectGroup) []reduce.Result {
	n := group.NEvaluators()
	out := make([]reduce.Result, 0, len(e.reducers))
	failed := false

	for _, r := range e.reducers {
		var res reduce.Result
		if n < e.opts.MinThreshold {
			res = reduce.BelowThreshold(group.SubjectID, r.Kind(), n)
		} else {
			var err error
			res, err = safeReduce(r, group)
			if err != nil {
				failed = true
				monitoring.Logf("consensus: subject %d %s: %v", group.SubjectID, r.Kind(), err)
				res = reduce.Result{
					SubjectID:   group.SubjectID,
					Kind:        r.Kind(),
					NEvaluators: n,
					Aux:         reduce.AuxInfo{NEvaluators: n, Error: err.Error()},
				}
			} else if res.Aux.DroppedMarks > 0 {
				monitoring.Logf("consensus: subject %d %s: dropped %d malformed marks",
					group.SubjectID, r.Kind(), res.Aux.DroppedMarks)
			}
		}
		e.opts.Metrics.ObserveResult(r.Kind().String(), res.Reached, res.Aux.DroppedMarks)
		out = append(out, res)
	}

	e.opts.Metrics.ObserveSubject(failed)
	return out
}

// errReducerPanic wraps a recovered panic from a reducer.
var errReducerPanic = errors.New("reducer panic")

// safeReduce runs r and converts a panic into an error so one bad subject
// cannot take down the run.
func safeReduce(r reduce.Reducer, group *annotation.SubjectGroup) (res reduce.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", errReducerPanic, p)
		}
	}()
	return r.Reduce(group)
}

// Evaluate is a convenience wrapper that builds an Evaluator from opts and
// runs it once.
func Evaluate(ctx context.Context, rows []annotation.Classification, opts Options) ([]reduce.Result, error) {
	e, err := NewEvaluator(opts)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, rows)
}
