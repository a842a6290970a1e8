package reduce

import (
	"strconv"

	"github.com/banshee-data/consensus.report/internal/annotation"
)

// CountReducer finds the most frequent numeric answer, ignoring answers
// that could not be read as integers.
type CountReducer struct {
	ReachedFraction float64
}

func (r *CountReducer) Kind() annotation.TaskKind { return annotation.KindCount }

func (r *CountReducer) Reduce(g *annotation.SubjectGroup) (Result, error) {
	if len(g.Classifications) == 0 {
		return Result{}, &InsufficientDataError{SubjectID: g.SubjectID, Kind: annotation.KindCount}
	}

	tally := make(map[int]int)
	total, absent := 0, 0
	for _, c := range g.Classifications {
		for _, a := range c.OfKind(annotation.KindCount) {
			v := a.(annotation.Count).Value
			if v == nil {
				absent++
				continue
			}
			tally[*v]++
			total++
		}
	}

	n := g.NEvaluators()
	res := Result{
		SubjectID:   g.SubjectID,
		Kind:        annotation.KindCount,
		NEvaluators: n,
		Aux: AuxInfo{
			NEvaluators: n,
			ResponseStats: &ResponseStats{
				NResponses:  total,
				NAbsent:     absent,
				Percentages: make(map[string]int, len(tally)),
			},
		},
	}
	if total == 0 {
		return res, nil
	}

	winner, count := mode(tally)
	for v, c := range tally {
		res.Aux.Percentages[strconv.Itoa(v)] = percent(c, total)
	}
	res.Consensus = winner
	res.Reached = reached(count, total, r.ReachedFraction)
	return res, nil
}
