package reduce

import (
	"fmt"

	"github.com/banshee-data/consensus.report/internal/annotation"
	"github.com/banshee-data/consensus.report/internal/cluster"
)

// MarkReducer merges point, circle or rectangle marks from every annotator
// of a subject into canonical objects by clustering the mark centres.
type MarkReducer struct {
	kind      annotation.TaskKind
	clusterer cluster.Clusterer
}

// NewMarkReducer creates a reducer for a spatial kind using clusterer.
func NewMarkReducer(kind annotation.TaskKind, clusterer cluster.Clusterer) *MarkReducer {
	return &MarkReducer{kind: kind, clusterer: clusterer}
}

func (r *MarkReducer) Kind() annotation.TaskKind { return r.kind }

// Reduce clusters the subject's marks. Marks with non-finite values are
// dropped and counted in Aux.DroppedMarks. Consensus is the list of cluster
// centroids in cluster index order; it is reached when at least one cluster
// formed.
func (r *MarkReducer) Reduce(g *annotation.SubjectGroup) (Result, error) {
	if len(g.Classifications) == 0 {
		return Result{}, &InsufficientDataError{SubjectID: g.SubjectID, Kind: r.kind}
	}

	var (
		marks   []annotation.Mark
		dropped int
	)
	for _, c := range g.Classifications {
		for _, a := range c.OfKind(r.kind) {
			m, ok := a.(annotation.Mark)
			if !ok {
				return Result{}, fmt.Errorf("subject %d: %T is not a mark", g.SubjectID, a)
			}
			if err := annotation.ValidateMark(m); err != nil {
				dropped++
				continue
			}
			marks = append(marks, m)
		}
	}

	points := make([]cluster.Point, len(marks))
	aux := make([][]float64, len(marks))
	for i, m := range marks {
		points[i].X, points[i].Y = m.Centre()
		aux[i] = m.Aux()
	}

	labelling, err := r.clusterer.Cluster(points)
	if err != nil {
		return Result{}, fmt.Errorf("subject %d: cluster %s marks: %w", g.SubjectID, r.kind, err)
	}
	clusters, err := cluster.Summarise(points, aux, labelling)
	if err != nil {
		return Result{}, fmt.Errorf("subject %d: summarise %s clusters: %w", g.SubjectID, r.kind, err)
	}

	centroids := make([]Centroid, 0, len(clusters))
	for _, c := range clusters {
		centroids = append(centroids, r.centroid(c, marks))
	}

	stats := &MarkStats{
		NMarksTotal: len(marks),
		NNoiseMarks: labelling.NoiseCount(),
		NClusters:   labelling.NClusters,
	}
	if len(marks) > 0 {
		stats.ClusteredFraction = float64(len(marks)-stats.NNoiseMarks) / float64(len(marks))
	}

	n := g.NEvaluators()
	return Result{
		SubjectID:   g.SubjectID,
		Kind:        r.kind,
		Consensus:   centroids,
		Reached:     labelling.NClusters > 0,
		NEvaluators: n,
		Aux: AuxInfo{
			NEvaluators:  n,
			MarkStats:    stats,
			DroppedMarks: dropped,
		},
	}, nil
}

func (r *MarkReducer) centroid(c cluster.Cluster, marks []annotation.Mark) Centroid {
	out := Centroid{
		X:      c.CentroidX,
		Y:      c.CentroidY,
		NMarks: len(c.Members),
		StdX:   c.StdX,
		StdY:   c.StdY,
	}
	switch r.kind {
	case annotation.KindCircle:
		radius := c.AuxMeans[0]
		out.Radius = &radius
		out.Angle = meanAngle(c.Members, marks)
	case annotation.KindRect:
		w, h := c.AuxMeans[0], c.AuxMeans[1]
		left, top := c.CentroidX-0.5*w, c.CentroidY-0.5*h
		out.Width, out.Height = &w, &h
		out.Left, out.Top = &left, &top
	}
	return out
}

// meanAngle is the circular mean of the angles carried by the member
// circles, or nil when none carries one.
func meanAngle(members []int, marks []annotation.Mark) *float64 {
	var angles []float64
	for _, idx := range members {
		if c, ok := marks[idx].(annotation.CircleMark); ok && c.Angle != nil {
			angles = append(angles, *c.Angle)
		}
	}
	if len(angles) == 0 {
		return nil
	}
	mean, _ := cluster.CircularMean(angles)
	return &mean
}
