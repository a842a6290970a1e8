package reduce

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/consensus.report/internal/annotation"
)

func choiceGroup(values ...string) *annotation.SubjectGroup {
	g := &annotation.SubjectGroup{SubjectID: 7}
	for i, v := range values {
		g.Classifications = append(g.Classifications, annotation.Classification{
			ClassificationID: int64(i + 1),
			UserID:           int64(100 + i),
			SubjectID:        7,
			Annotations:      []annotation.Annotation{annotation.Choice{Value: v}},
		})
	}
	return g
}

func countGroup(values ...*int) *annotation.SubjectGroup {
	g := &annotation.SubjectGroup{SubjectID: 9}
	for i, v := range values {
		g.Classifications = append(g.Classifications, annotation.Classification{
			ClassificationID: int64(i + 1),
			UserID:           int64(100 + i),
			SubjectID:        9,
			Annotations:      []annotation.Annotation{annotation.Count{Value: v}},
		})
	}
	return g
}

func ints(vs ...int) []*int {
	out := make([]*int, len(vs))
	for i, v := range vs {
		out[i] = annotation.IntPtr(v)
	}
	return out
}

func TestChoiceReducer_TieBreaksLexicographically(t *testing.T) {
	r := &ChoiceReducer{ReachedFraction: DefaultReachedFraction}

	res, err := r.Reduce(choiceGroup("b", "a", "b", "a"))
	require.NoError(t, err)

	assert.Equal(t, "a", res.Consensus)
	assert.False(t, res.Reached, "2/4 is below 70%")
	assert.Equal(t, map[string]int{"a": 50, "b": 50}, res.Aux.Percentages)
	assert.Equal(t, 4, res.Aux.NResponses)
	assert.Equal(t, 4, res.NEvaluators)
}

func TestChoiceReducer_CaseIsSignificant(t *testing.T) {
	r := &ChoiceReducer{ReachedFraction: DefaultReachedFraction}

	res, err := r.Reduce(choiceGroup("Playing", "playing", "Playing"))
	require.NoError(t, err)
	assert.Equal(t, "Playing", res.Consensus)
	assert.Equal(t, map[string]int{"Playing": 67, "playing": 33}, res.Aux.Percentages)
}

func TestChoiceReducer_NoChoiceAnswers(t *testing.T) {
	g := &annotation.SubjectGroup{SubjectID: 3, Classifications: []annotation.Classification{
		{ClassificationID: 1, UserID: 1, SubjectID: 3},
	}}
	res, err := (&ChoiceReducer{ReachedFraction: 0.7}).Reduce(g)
	require.NoError(t, err)
	assert.Nil(t, res.Consensus)
	assert.False(t, res.Reached)
	assert.Equal(t, 0, res.Aux.NResponses)
}

func TestChoiceReducer_EmptyGroup(t *testing.T) {
	_, err := (&ChoiceReducer{}).Reduce(&annotation.SubjectGroup{SubjectID: 3})
	var insufficient *InsufficientDataError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(3), insufficient.SubjectID)
	assert.Equal(t, annotation.KindChoice, insufficient.Kind)
}

func TestCountReducer_ReachedBoundary(t *testing.T) {
	tests := []struct {
		name        string
		values      []*int
		wantReached bool
	}{
		{"exactly 70 percent", ints(1, 1, 1, 1, 1, 1, 1, 2, 2, 2), true},
		{"60 percent", ints(1, 1, 1, 1, 1, 1, 2, 2, 2, 2), false},
		{"unanimous", ints(3, 3, 3), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := (&CountReducer{ReachedFraction: DefaultReachedFraction}).Reduce(countGroup(tt.values...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantReached, res.Reached)
		})
	}
}

func TestChoiceReducer_ReachedBoundary(t *testing.T) {
	seventy := choiceGroup("x", "x", "x", "x", "x", "x", "x", "y", "y", "y")
	res, err := (&ChoiceReducer{ReachedFraction: DefaultReachedFraction}).Reduce(seventy)
	require.NoError(t, err)
	assert.True(t, res.Reached)
	assert.Equal(t, map[string]int{"x": 70, "y": 30}, res.Aux.Percentages)
}

func TestCountReducer_IgnoresAbsentAndBreaksTiesLow(t *testing.T) {
	values := append(ints(4, 2, 4, 2), nil, nil)
	res, err := (&CountReducer{ReachedFraction: DefaultReachedFraction}).Reduce(countGroup(values...))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Consensus)
	assert.False(t, res.Reached)
	assert.Equal(t, 4, res.Aux.NResponses)
	assert.Equal(t, 2, res.Aux.NAbsent)
	assert.Equal(t, map[string]int{"2": 50, "4": 50}, res.Aux.Percentages)
	assert.Equal(t, 6, res.NEvaluators)
}

func TestCountReducer_AllAbsent(t *testing.T) {
	res, err := (&CountReducer{ReachedFraction: DefaultReachedFraction}).Reduce(countGroup(nil, nil, nil))
	require.NoError(t, err)
	assert.Nil(t, res.Consensus)
	assert.False(t, res.Reached)
	assert.Equal(t, 3, res.Aux.NAbsent)
}

func TestPercentRoundsHalfToEven(t *testing.T) {
	// 1/8 = 12.5% and 3/8 = 37.5%
	assert.Equal(t, 12, percent(1, 8))
	assert.Equal(t, 38, percent(3, 8))
	assert.Equal(t, 33, percent(1, 3))
}

func TestMode(t *testing.T) {
	v, n := mode(map[string]int{"cat": 2, "ant": 2, "bee": 1})
	assert.Equal(t, "ant", v)
	assert.Equal(t, 2, n)

	iv, in := mode(map[int]int{5: 1, -3: 1, 9: 3})
	assert.Equal(t, 9, iv)
	assert.Equal(t, 3, in)
}
