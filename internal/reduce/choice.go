package reduce

import "github.com/banshee-data/consensus.report/internal/annotation"

// ChoiceReducer finds the most frequent categorical answer. Values are
// compared exactly as submitted.
type ChoiceReducer struct {
	ReachedFraction float64
}

func (r *ChoiceReducer) Kind() annotation.TaskKind { return annotation.KindChoice }

func (r *ChoiceReducer) Reduce(g *annotation.SubjectGroup) (Result, error) {
	if len(g.Classifications) == 0 {
		return Result{}, &InsufficientDataError{SubjectID: g.SubjectID, Kind: annotation.KindChoice}
	}

	tally := make(map[string]int)
	total := 0
	for _, c := range g.Classifications {
		for _, a := range c.OfKind(annotation.KindChoice) {
			tally[a.(annotation.Choice).Value]++
			total++
		}
	}

	n := g.NEvaluators()
	res := Result{
		SubjectID:   g.SubjectID,
		Kind:        annotation.KindChoice,
		NEvaluators: n,
		Aux: AuxInfo{
			NEvaluators:   n,
			ResponseStats: &ResponseStats{NResponses: total, Percentages: make(map[string]int, len(tally))},
		},
	}
	if total == 0 {
		return res, nil
	}

	winner, count := mode(tally)
	for v, c := range tally {
		res.Aux.Percentages[v] = percent(c, total)
	}
	res.Consensus = winner
	res.Reached = reached(count, total, r.ReachedFraction)
	return res, nil
}
