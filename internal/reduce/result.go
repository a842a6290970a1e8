package reduce

import (
	"fmt"
	"sort"

	"github.com/banshee-data/consensus.report/internal/annotation"
)

// Result is the consensus for one (subject, task kind) pair.
//
// Consensus holds a string for choice tasks, an int for count tasks, a
// []Centroid for mark tasks, and nil when no consensus value exists.
type Result struct {
	SubjectID   int64               `json:"subject_id"`
	Kind        annotation.TaskKind `json:"task_kind"`
	Consensus   any                 `json:"consensus"`
	Reached     bool                `json:"consensus_reached"`
	NEvaluators int                 `json:"n_evaluators"`
	Aux         AuxInfo             `json:"aux_info"`
}

// AuxInfo carries diagnostic statistics. Which blocks are present depends on
// the task kind: ResponseStats for choice and count, MarkStats for marks.
type AuxInfo struct {
	NEvaluators int `json:"n_evaluators"`
	*ResponseStats
	*MarkStats
	DroppedMarks int    `json:"dropped_marks,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ResponseStats describes the answers tallied by a choice or count reducer.
type ResponseStats struct {
	NResponses  int            `json:"n_responses"`
	NAbsent     int            `json:"n_absent,omitempty"`
	Percentages map[string]int `json:"percentages"`
}

// MarkStats describes a clustering run over one subject's marks.
type MarkStats struct {
	NMarksTotal       int     `json:"n_marks_total"`
	NNoiseMarks       int     `json:"n_noise_marks"`
	NClusters         int     `json:"n_clusters"`
	ClusteredFraction float64 `json:"clustered_fraction"`
}

// Centroid is the canonical object merged from one cluster of marks.
// X and Y are the mean mark centre. Radius is set for circles, and Angle
// when any member circle carried one; Width, Height, Left and Top for
// rectangles.
type Centroid struct {
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Radius *float64 `json:"r,omitempty"`
	Angle  *float64 `json:"angle,omitempty"`
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Left   *float64 `json:"left,omitempty"`
	Top    *float64 `json:"top,omitempty"`
	NMarks int      `json:"n_marks"`
	StdX   float64  `json:"std_x"`
	StdY   float64  `json:"std_y"`
}

// InsufficientDataError is returned when a reducer is handed a group with no
// classifications.
type InsufficientDataError struct {
	SubjectID int64
	Kind      annotation.TaskKind
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: subject %d has no classifications for %s", e.SubjectID, e.Kind)
}

// BelowThreshold is the result for a subject with too few evaluators for
// its reducer to run.
func BelowThreshold(subjectID int64, kind annotation.TaskKind, nEvaluators int) Result {
	return Result{
		SubjectID:   subjectID,
		Kind:        kind,
		NEvaluators: nEvaluators,
		Aux:         AuxInfo{NEvaluators: nEvaluators},
	}
}

// SortResults orders results by subject id, then task kind.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].SubjectID != results[j].SubjectID {
			return results[i].SubjectID < results[j].SubjectID
		}
		return results[i].Kind < results[j].Kind
	})
}
