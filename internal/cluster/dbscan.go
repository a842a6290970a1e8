package cluster

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Noise is the label given to points that belong to no cluster.
const Noise = -1

// unvisited marks points the scan has not reached yet.
const unvisited = -2

// EstimatedPointsPerCell is used for initial spatial index capacity estimation.
const EstimatedPointsPerCell = 4

// ErrInvalidParams is returned for a non-positive eps or min samples below one.
var ErrInvalidParams = errors.New("invalid clustering parameters")

// Point is a 2D position in image pixel coordinates.
type Point struct {
	X, Y float64
}

// Params configures DBSCAN.
type Params struct {
	Eps        float64 `json:"eps"`         // Neighbourhood radius in pixels
	MinSamples int     `json:"min_samples"` // Points within Eps, itself included, for a core point
}

// Validate checks that the parameters can drive a clustering run.
func (p Params) Validate() error {
	if !(p.Eps > 0) || math.IsInf(p.Eps, 0) {
		return fmt.Errorf("%w: eps must be positive and finite, got %v", ErrInvalidParams, p.Eps)
	}
	if p.MinSamples < 1 {
		return fmt.Errorf("%w: min_samples must be at least 1, got %d", ErrInvalidParams, p.MinSamples)
	}
	return nil
}

// Labelling is the outcome of a clustering run. Labels[i] is a cluster index
// in [0, NClusters) or Noise.
type Labelling struct {
	Labels    []int
	NClusters int
}

// NoiseCount returns how many points were left unclustered.
func (l Labelling) NoiseCount() int {
	n := 0
	for _, label := range l.Labels {
		if label == Noise {
			n++
		}
	}
	return n
}

// Members returns the input indices labelled k, ascending.
func (l Labelling) Members(k int) []int {
	var out []int
	for i, label := range l.Labels {
		if label == k {
			out = append(out, i)
		}
	}
	return out
}

// cellKey addresses one square of the grid index.
type cellKey struct {
	x, y int64
}

// SpatialIndex provides efficient neighbour queries using a regular grid.
// Cell size should match the DBSCAN eps parameter so a 3x3 block of cells
// covers every candidate neighbour.
type SpatialIndex struct {
	CellSize float64
	Grid     map[cellKey][]int
}

// NewSpatialIndex creates a spatial index with the specified cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[cellKey][]int),
	}
}

// Build populates the index. Indices within a cell stay in input order.
func (si *SpatialIndex) Build(points []Point) {
	si.Grid = make(map[cellKey][]int, len(points)/EstimatedPointsPerCell+1)
	for i, p := range points {
		key := si.cellOf(p)
		si.Grid[key] = append(si.Grid[key], i)
	}
}

func (si *SpatialIndex) cellOf(p Point) cellKey {
	return cellKey{
		x: int64(math.Floor(p.X / si.CellSize)),
		y: int64(math.Floor(p.Y / si.CellSize)),
	}
}

// RegionQuery returns the indices of all points within eps of points[idx],
// idx included, in ascending order.
func (si *SpatialIndex) RegionQuery(points []Point, idx int, eps float64) []int {
	p := points[idx]
	eps2 := eps * eps
	base := si.cellOf(p)

	var neighbours []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, candidate := range si.Grid[cellKey{base.x + dx, base.y + dy}] {
				q := points[candidate]
				ddx, ddy := q.X-p.X, q.Y-p.Y
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbours = append(neighbours, candidate)
				}
			}
		}
	}
	sort.Ints(neighbours)
	return neighbours
}

// DBSCAN labels points by density. A point is a core point when at least
// MinSamples points, itself included, lie within Eps. Clusters are the
// connected core points plus the border points reachable from them.
//
// Points are scanned in ascending index order and each expansion queue is
// processed in order, so a border point reachable from two clusters always
// joins the one discovered first. The same input always gives the same
// labelling.
func DBSCAN(points []Point, params Params) (Labelling, error) {
	if err := params.Validate(); err != nil {
		return Labelling{}, err
	}

	n := len(points)
	labels := make([]int, n)
	if n <= 1 {
		for i := range labels {
			labels[i] = Noise
		}
		return Labelling{Labels: labels}, nil
	}
	for i := range labels {
		labels[i] = unvisited
	}

	index := NewSpatialIndex(params.Eps)
	index.Build(points)

	next := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}

		neighbours := index.RegionQuery(points, i, params.Eps)
		if len(neighbours) < params.MinSamples {
			labels[i] = Noise
			continue
		}

		expandCluster(points, index, labels, i, neighbours, next, params)
		next++
	}

	return Labelling{Labels: labels, NClusters: next}, nil
}

// expandCluster grows cluster id breadth-first from the core point seed and
// returns how many points it queued for expansion. A point is claimed when
// first reached, so each one is queued at most once. Noise points reached
// from the cluster become border points and are never expanded.
func expandCluster(points []Point, si *SpatialIndex, labels []int,
	seed int, neighbours []int, id int, params Params) int {

	labels[seed] = id
	var queue []int
	claim := func(candidates []int) {
		for _, idx := range candidates {
			switch labels[idx] {
			case Noise:
				labels[idx] = id
			case unvisited:
				labels[idx] = id
				queue = append(queue, idx)
			}
		}
	}

	claim(neighbours)
	for j := 0; j < len(queue); j++ {
		more := si.RegionQuery(points, queue[j], params.Eps)
		if len(more) >= params.MinSamples {
			claim(more)
		}
	}
	return len(queue)
}
