package db

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/consensus"
	"github.com/banshee-data/consensus.report/internal/monitoring"
	"github.com/banshee-data/consensus.report/internal/reduce"
)

func init() {
	monitoring.SetLogger(nil)
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMigrated(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmas(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestMigrateUpDownVersion(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
	assert.Error(t, db.CheckMigrations())

	require.NoError(t, db.MigrateUp())
	latest, err := LatestMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(3), latest)

	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.NoError(t, db.CheckMigrations())

	// a second up is a no-op
	require.NoError(t, db.MigrateUp())

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('task_annotations') WHERE name = 'angle'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='consensus_runs'`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func sampleClassifications() []annotation.Classification {
	return []annotation.Classification{
		{ClassificationID: 2, UserID: 8, SubjectID: 100, Annotations: []annotation.Annotation{
			annotation.Choice{Value: "Resting"},
			annotation.Count{},
			annotation.RectMark{X: 1, Y: 2, Width: 3, Height: 4},
		}},
		{ClassificationID: 1, UserID: 7, SubjectID: 100, Annotations: []annotation.Annotation{
			annotation.Choice{Value: "Playing"},
			annotation.Count{Value: annotation.IntPtr(2)},
			annotation.PointMark{X: 418.25, Y: 167.97},
			annotation.CircleMark{X: 403.25, Y: 176.97, Radius: 6.7, Angle: annotation.FloatPtr(153.43)},
			annotation.CircleMark{X: 410, Y: 180, Radius: 5},
		}},
		{ClassificationID: 3, UserID: 9, SubjectID: 200},
	}
}

func TestClassificationStoreRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	store := NewClassificationStore(db)
	ctx := context.Background()

	rows := sampleClassifications()
	require.NoError(t, store.InsertAll(ctx, rows))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)

	want := []annotation.Classification{rows[1], rows[0], rows[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadAll mismatch (-want +got):\n%s", diff)
	}

	subject, err := store.LoadSubject(ctx, 200)
	require.NoError(t, err)
	require.Len(t, subject, 1)
	assert.Equal(t, int64(3), subject[0].ClassificationID)
	assert.Empty(t, subject[0].Annotations)
}

func TestClassificationStoreNonFiniteMarksLoadAsNaN(t *testing.T) {
	db := setupTestDB(t)
	store := NewClassificationStore(db)
	ctx := context.Background()

	require.NoError(t, store.InsertAll(ctx, []annotation.Classification{
		{ClassificationID: 1, UserID: 1, SubjectID: 1, Annotations: []annotation.Annotation{
			annotation.PointMark{X: math.Inf(1), Y: 3},
		}},
	}))

	got, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	mark := got[0].Annotations[0].(annotation.PointMark)
	assert.True(t, math.IsNaN(mark.X))
	assert.Equal(t, 3.0, mark.Y)
	assert.Error(t, annotation.ValidateMark(mark))
}

func TestClassificationStoreDuplicateRollsBack(t *testing.T) {
	db := setupTestDB(t)
	store := NewClassificationStore(db)
	ctx := context.Background()

	require.NoError(t, store.InsertAll(ctx, sampleClassifications()[:1]))

	err := store.InsertAll(ctx, []annotation.Classification{
		{ClassificationID: 50, UserID: 1, SubjectID: 1},
		{ClassificationID: 2, UserID: 1, SubjectID: 1}, // already stored
	})
	require.Error(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "failed batch must not leave partial rows")
}

func TestResultStoreSaveAndList(t *testing.T) {
	db := setupTestDB(t)
	store := NewResultStore(db)
	ctx := context.Background()

	results := []reduce.Result{
		{
			SubjectID: 100, Kind: annotation.KindCount, Consensus: 2, Reached: true, NEvaluators: 5,
			Aux: reduce.AuxInfo{NEvaluators: 5, ResponseStats: &reduce.ResponseStats{
				NResponses: 4, NAbsent: 1, Percentages: map[string]int{"2": 100},
			}},
		},
		{
			SubjectID: 100, Kind: annotation.KindChoice, Consensus: "Playing", Reached: false, NEvaluators: 5,
			Aux: reduce.AuxInfo{NEvaluators: 5, ResponseStats: &reduce.ResponseStats{
				NResponses: 5, Percentages: map[string]int{"Playing": 60, "Resting": 40},
			}},
		},
		{
			SubjectID: 100, Kind: annotation.KindPoint, Consensus: []reduce.Centroid{{X: 1, Y: 2, NMarks: 2, StdX: 0.5}},
			Reached: true, NEvaluators: 5,
			Aux: reduce.AuxInfo{NEvaluators: 5, MarkStats: &reduce.MarkStats{
				NMarksTotal: 3, NNoiseMarks: 1, NClusters: 1, ClusteredFraction: 2.0 / 3.0,
			}, DroppedMarks: 1},
		},
		reduce.BelowThreshold(200, annotation.KindChoice, 2),
	}
	run := consensus.NewRun([]byte(`{"min_threshold":5}`), results)
	require.NoError(t, store.SaveRun(ctx, run))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].RunID)
	assert.Equal(t, 4, runs[0].NResults)
	assert.JSONEq(t, `{"min_threshold":5}`, string(runs[0].Config))
	assert.WithinDuration(t, run.CreatedAt, runs[0].CreatedAt, time.Millisecond)

	got, err := store.ListResults(ctx, run.ID)
	require.NoError(t, err)

	want := append([]reduce.Result(nil), results...)
	reduce.SortResults(want)
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("ListResults mismatch (-want +got):\n%s", diff)
	}

	none, err := store.ListResults(ctx, "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResultStoreDuplicateRunID(t *testing.T) {
	db := setupTestDB(t)
	store := NewResultStore(db)
	ctx := context.Background()

	run := consensus.NewRun(nil, nil)
	require.NoError(t, store.SaveRun(ctx, run))
	assert.Error(t, store.SaveRun(ctx, run))
}

func TestEvaluateFromStoreEndToEnd(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var rows []annotation.Classification
	for u := int64(1); u <= 5; u++ {
		rows = append(rows, annotation.Classification{
			ClassificationID: u, UserID: u, SubjectID: 42,
			Annotations: []annotation.Annotation{annotation.Choice{Value: "Feeding"}},
		})
	}
	require.NoError(t, NewClassificationStore(db).InsertAll(ctx, rows))

	loaded, err := NewClassificationStore(db).LoadAll(ctx)
	require.NoError(t, err)

	opts := consensus.DefaultOptions()
	opts.Kinds = []annotation.TaskKind{annotation.KindChoice}
	results, err := consensus.Evaluate(ctx, loaded, opts)
	require.NoError(t, err)

	store := NewResultStore(db)
	run := consensus.NewRun(nil, results)
	require.NoError(t, store.SaveRun(ctx, run))

	got, err := store.ListResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Feeding", got[0].Consensus)
	assert.True(t, got[0].Reached)
}
