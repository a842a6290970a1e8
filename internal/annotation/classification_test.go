package annotation

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_PartitionsBySubject(t *testing.T) {
	rows := []Classification{
		{ClassificationID: 1, UserID: 10, SubjectID: 300},
		{ClassificationID: 2, UserID: 11, SubjectID: 100},
		{ClassificationID: 3, UserID: 12, SubjectID: 300},
		{ClassificationID: 4, UserID: 10, SubjectID: 200},
		{ClassificationID: 5, UserID: 13, SubjectID: 100},
	}

	groups, ids, err := Group(rows)
	require.NoError(t, err)

	assert.Equal(t, []int64{100, 200, 300}, ids)
	assert.Len(t, groups, 3)

	seen := make(map[int64]int)
	total := 0
	for id, g := range groups {
		assert.Equal(t, id, g.SubjectID)
		for _, c := range g.Classifications {
			assert.Equal(t, id, c.SubjectID)
			seen[c.ClassificationID]++
			total++
		}
	}
	assert.Equal(t, len(rows), total, "no row lost or duplicated")
	for _, r := range rows {
		assert.Equal(t, 1, seen[r.ClassificationID], "classification %d", r.ClassificationID)
	}

	// input order preserved within a group
	assert.Equal(t, int64(1), groups[300].Classifications[0].ClassificationID)
	assert.Equal(t, int64(3), groups[300].Classifications[1].ClassificationID)
}

func TestGroup_Empty(t *testing.T) {
	groups, ids, err := Group(nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Empty(t, ids)
}

func TestGroup_MissingSubjectIsSchemaError(t *testing.T) {
	rows := []Classification{
		{ClassificationID: 1, UserID: 10, SubjectID: 5},
		{ClassificationID: 2, UserID: 11},
	}

	_, _, err := Group(rows)
	require.Error(t, err)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, int64(2), schemaErr.ClassificationID)
	assert.Equal(t, "subject_id", schemaErr.Field)
}

func TestSubjectGroup_NEvaluatorsCountsDistinctUsers(t *testing.T) {
	g := &SubjectGroup{
		SubjectID: 1,
		Classifications: []Classification{
			{ClassificationID: 1, UserID: 10},
			{ClassificationID: 2, UserID: 10},
			{ClassificationID: 3, UserID: 11},
		},
	}
	assert.Equal(t, 2, g.NEvaluators())
}

func TestClassification_OfKind(t *testing.T) {
	c := Classification{Annotations: []Annotation{
		Choice{Value: "Playing"},
		PointMark{X: 1, Y: 2},
		Count{Value: IntPtr(2)},
		PointMark{X: 3, Y: 4},
	}}

	points := c.OfKind(KindPoint)
	require.Len(t, points, 2)
	assert.Equal(t, PointMark{X: 1, Y: 2}, points[0])
	assert.Equal(t, PointMark{X: 3, Y: 4}, points[1])
	assert.Empty(t, c.OfKind(KindRect))
}

func TestRectMark_CentreIsBoxMidpoint(t *testing.T) {
	x, y := RectMark{X: 409.25, Y: 133.5, Width: 26, Height: 20}.Centre()
	assert.InDelta(t, 422.25, x, 1e-9)
	assert.InDelta(t, 143.5, y, 1e-9)
}

func TestValidateMark(t *testing.T) {
	tests := []struct {
		name    string
		mark    Mark
		wantErr bool
	}{
		{"finite point", PointMark{X: 1, Y: 2}, false},
		{"nan x", PointMark{X: math.NaN(), Y: 2}, true},
		{"inf radius", CircleMark{X: 1, Y: 2, Radius: math.Inf(1)}, true},
		{"nan height", RectMark{X: 1, Y: 2, Width: 3, Height: math.NaN()}, true},
		{"finite rect", RectMark{X: 1, Y: 2, Width: 3, Height: 4}, false},
		{"circle with angle", CircleMark{X: 1, Y: 2, Radius: 3, Angle: FloatPtr(153.43)}, false},
		{"nan angle", CircleMark{X: 1, Y: 2, Radius: 3, Angle: FloatPtr(math.NaN())}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMark(tt.mark)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var mErr *MalformedMarkError
			require.True(t, errors.As(err, &mErr))
			assert.Equal(t, tt.mark.Kind(), mErr.Kind)
		})
	}
}

func TestParseTaskKind(t *testing.T) {
	for _, k := range AllKinds() {
		got, err := ParseTaskKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseTaskKind("polygon")
	assert.ErrorIs(t, err, ErrUnknownTaskKind)
	assert.False(t, TaskKind(42).Valid())
}
