// Package testutil provides shared classification fixtures for tests.
package testutil

import (
	"testing"

	"github.com/banshee-data/consensus.report/internal/annotation"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t testing.TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Choices returns one choice classification per value for subject, each
// from a distinct user. Classification ids are subject*1000 + position.
func Choices(subject int64, values ...string) []annotation.Classification {
	rows := make([]annotation.Classification, len(values))
	for i, v := range values {
		rows[i] = annotation.Classification{
			ClassificationID: subject*1000 + int64(i),
			UserID:           int64(i + 1),
			SubjectID:        subject,
			Annotations:      []annotation.Annotation{annotation.Choice{Value: v}},
		}
	}
	return rows
}

// Counts is Choices for count answers. A nil entry is an unreadable answer.
func Counts(subject int64, values ...*int) []annotation.Classification {
	rows := make([]annotation.Classification, len(values))
	for i, v := range values {
		rows[i] = annotation.Classification{
			ClassificationID: subject*1000 + int64(i),
			UserID:           int64(i + 1),
			SubjectID:        subject,
			Annotations:      []annotation.Annotation{annotation.Count{Value: v}},
		}
	}
	return rows
}

// TwoEyes is subject 458030: two users each marking both eyes of one
// animal. Clustered with eps 15 it yields two centroids.
func TwoEyes() []annotation.Classification {
	return []annotation.Classification{
		{ClassificationID: 1, UserID: 10, SubjectID: 458030, Annotations: []annotation.Annotation{
			annotation.PointMark{X: 418.25, Y: 167.96665954589844},
			annotation.PointMark{X: 392.25, Y: 164.96665954589844},
		}},
		{ClassificationID: 2, UserID: 11, SubjectID: 458030, Annotations: []annotation.Annotation{
			annotation.PointMark{X: 420.25, Y: 169.96665954589844},
			annotation.PointMark{X: 390.25, Y: 162.96665954589844},
		}},
	}
}

// Batch builds n subjects with ids 1..n, each holding the given choice
// values, for ordering and concurrency tests.
func Batch(n int, values ...string) []annotation.Classification {
	var rows []annotation.Classification
	for s := int64(1); s <= int64(n); s++ {
		rows = append(rows, Choices(s, values...)...)
	}
	return rows
}
