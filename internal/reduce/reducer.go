package reduce

import (
	"cmp"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/cluster"
)

// DefaultReachedFraction is the share of responses the winning answer needs.
const DefaultReachedFraction = 0.70

// Reducer turns one subject's annotations for one task kind into a Result.
// Implementations hold no mutable state and are safe for concurrent use.
type Reducer interface {
	Kind() annotation.TaskKind
	Reduce(g *annotation.SubjectGroup) (Result, error)
}

// Params configures the reducers built by New.
type Params struct {
	ReachedFraction float64
	Clustering      map[annotation.TaskKind]cluster.Params
}

// DefaultParams returns the default reduction parameters.
func DefaultParams() Params {
	clustering := make(map[annotation.TaskKind]cluster.Params)
	for _, k := range annotation.AllKinds() {
		if k.Spatial() {
			clustering[k] = cluster.DefaultParams()
		}
	}
	return Params{
		ReachedFraction: DefaultReachedFraction,
		Clustering:      clustering,
	}
}

// New returns the reducer for kind. Unknown kinds are rejected with
// annotation.ErrUnknownTaskKind.
func New(kind annotation.TaskKind, p Params) (Reducer, error) {
	switch kind {
	case annotation.KindChoice:
		return &ChoiceReducer{ReachedFraction: p.ReachedFraction}, nil
	case annotation.KindCount:
		return &CountReducer{ReachedFraction: p.ReachedFraction}, nil
	case annotation.KindPoint, annotation.KindCircle, annotation.KindRect:
		cp, ok := p.Clustering[kind]
		if !ok {
			cp = cluster.DefaultParams()
		}
		if err := cp.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", kind, err)
		}
		return NewMarkReducer(kind, cluster.NewDBSCANClusterer(cp.Eps, cp.MinSamples)), nil
	default:
		return nil, fmt.Errorf("%w: %v", annotation.ErrUnknownTaskKind, kind)
	}
}

// mode returns the most frequent key and its count. Ties go to the smallest key.
func mode[K cmp.Ordered](tally map[K]int) (K, int) {
	keys := make([]K, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var best K
	bestCount := 0
	for _, k := range keys {
		if tally[k] > bestCount {
			best, bestCount = k, tally[k]
		}
	}
	return best, bestCount
}

// reached applies the agreement rule: the winner's share of responses must
// be at least fraction.
func reached(winner, total int, fraction float64) bool {
	if total == 0 {
		return false
	}
	return float64(winner)/float64(total) >= fraction
}

// percent rounds half to even, matching the spreadsheet figures the
// project has always reported.
func percent(n, total int) int {
	return int(math.RoundToEven(100 * float64(n) / float64(total)))
}

// DecodeConsensus restores a consensus value encoded as JSON to the Go type
// the reducer for kind produces.
func DecodeConsensus(kind annotation.TaskKind, raw []byte) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch kind {
	case annotation.KindChoice:
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case annotation.KindCount:
		var n int
		err := json.Unmarshal(raw, &n)
		return n, err
	case annotation.KindPoint, annotation.KindCircle, annotation.KindRect:
		var cs []Centroid
		err := json.Unmarshal(raw, &cs)
		return cs, err
	default:
		return nil, fmt.Errorf("%w: %v", annotation.ErrUnknownTaskKind, kind)
	}
}
