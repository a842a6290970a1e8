package cluster

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func twoClumps() []Point {
	return []Point{
		// first clump
		{X: 100, Y: 100},
		{X: 102, Y: 101},
		{X: 99, Y: 103},
		// second clump
		{X: 300, Y: 300},
		{X: 301, Y: 298},
		// stray
		{X: 600, Y: 50},
	}
}

func TestDBSCAN_TwoClustersAndNoise(t *testing.T) {
	got, err := DBSCAN(twoClumps(), Params{Eps: 15, MinSamples: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Labelling{Labels: []int{0, 0, 0, 1, 1, Noise}, NClusters: 2}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DBSCAN() mismatch (-want +got):\n%s", diff)
	}
	if got.NoiseCount() != 1 {
		t.Errorf("NoiseCount() = %d, want 1", got.NoiseCount())
	}
}

func TestDBSCAN_Determinism(t *testing.T) {
	points := twoClumps()
	params := Params{Eps: 15, MinSamples: 2}

	run1, err := DBSCAN(points, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		run, err := DBSCAN(points, params)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(run1, run); diff != "" {
			t.Fatalf("run %d differs (-first +run):\n%s", i, diff)
		}
	}
}

func TestDBSCAN_DegenerateInput(t *testing.T) {
	for _, points := range [][]Point{nil, {{X: 1, Y: 1}}} {
		got, err := DBSCAN(points, Params{Eps: 15, MinSamples: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.NClusters != 0 {
			t.Errorf("n=%d: NClusters = %d, want 0", len(points), got.NClusters)
		}
		for i, label := range got.Labels {
			if label != Noise {
				t.Errorf("n=%d: label[%d] = %d, want Noise", len(points), i, label)
			}
		}
	}
}

func TestDBSCAN_SingleTightClump(t *testing.T) {
	points := []Point{
		{X: 50, Y: 50}, {X: 51, Y: 50}, {X: 50, Y: 51},
		{X: 52, Y: 52}, {X: 49, Y: 48},
	}
	got, err := DBSCAN(points, Params{Eps: 10, MinSamples: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NClusters != 1 {
		t.Fatalf("NClusters = %d, want 1", got.NClusters)
	}
	if len(got.Members(0)) != len(points) {
		t.Errorf("cluster has %d members, want %d", len(got.Members(0)), len(points))
	}
}

func TestDBSCAN_BorderPointJoinsFirstCluster(t *testing.T) {
	// The border point at index 4 sees one core point from each group, so it
	// is not core itself but is reachable from both clusters.
	points := []Point{
		{X: 0, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}, {X: 1, Y: 0}, // cluster 0
		{X: 10.5, Y: 0}, // border
		{X: 20, Y: 0}, {X: 21, Y: 0}, {X: 21, Y: 1}, {X: 22, Y: 0}, // cluster 1
	}
	got, err := DBSCAN(points, Params{Eps: 10, MinSamples: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NClusters != 2 {
		t.Fatalf("NClusters = %d, want 2", got.NClusters)
	}
	if got.Labels[4] != 0 {
		t.Errorf("border point label = %d, want 0 (first discovered)", got.Labels[4])
	}
	if got.NoiseCount() != 0 {
		t.Errorf("NoiseCount() = %d, want 0", got.NoiseCount())
	}
}

func TestDBSCAN_EpsBoundaryIsInclusive(t *testing.T) {
	points := []Point{{X: 0, Y: 0}, {X: 3, Y: 4}}
	got, err := DBSCAN(points, Params{Eps: 5, MinSamples: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NClusters != 1 {
		t.Errorf("NClusters = %d, want 1 for points exactly eps apart", got.NClusters)
	}
}

func TestDBSCAN_NegativeCoordinates(t *testing.T) {
	points := []Point{{X: -1, Y: -1}, {X: 1, Y: 1}, {X: -0.5, Y: 0.5}}
	got, err := DBSCAN(points, Params{Eps: 3, MinSamples: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.NClusters != 1 || got.NoiseCount() != 0 {
		t.Errorf("got %+v, want one cluster spanning the origin", got)
	}
}

func TestDBSCAN_InvalidParams(t *testing.T) {
	tests := []Params{
		{Eps: 0, MinSamples: 2},
		{Eps: -1, MinSamples: 2},
		{Eps: math.NaN(), MinSamples: 2},
		{Eps: math.Inf(1), MinSamples: 2},
		{Eps: 5, MinSamples: 0},
	}
	for _, p := range tests {
		if _, err := DBSCAN(twoClumps(), p); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("DBSCAN(%+v) error = %v, want ErrInvalidParams", p, err)
		}
	}
}

func TestSpatialIndex_RegionQueryAscending(t *testing.T) {
	points := []Point{{X: 14, Y: 0}, {X: 0, Y: 0}, {X: -14, Y: 0}, {X: 7, Y: 7}}
	si := NewSpatialIndex(15)
	si.Build(points)

	got := si.RegionQuery(points, 1, 15)
	want := []int{0, 1, 2, 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RegionQuery() mismatch (-want +got):\n%s", diff)
	}
}

func TestDBSCANClusterer_Params(t *testing.T) {
	c := NewDefaultDBSCANClusterer()
	if got := c.Params(); got != DefaultParams() {
		t.Errorf("Params() = %+v, want %+v", got, DefaultParams())
	}

	c = NewDBSCANClusterer(8, 3)
	if got := c.Params(); got.Eps != 8 || got.MinSamples != 3 {
		t.Errorf("Params() = %+v, want eps 8 min 3", got)
	}
}

func TestExpandCluster_QueuesEachPointOnce(t *testing.T) {
	var points []Point
	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			points = append(points, Point{X: 200 + 0.5*float64(i), Y: 200 + 0.5*float64(j)})
		}
	}
	params := Params{Eps: 15, MinSamples: 2}
	si := NewSpatialIndex(params.Eps)
	si.Build(points)

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	queued := expandCluster(points, si, labels, 0, si.RegionQuery(points, 0, params.Eps), 0, params)

	if queued != len(points)-1 {
		t.Errorf("queued %d points, want %d", queued, len(points)-1)
	}
	for i, label := range labels {
		if label != 0 {
			t.Fatalf("labels[%d] = %d, want 0", i, label)
		}
	}
}

// naiveDBSCAN is the textbook formulation with a brute-force neighbour
// search and an unbounded expansion queue.
func naiveDBSCAN(points []Point, params Params) Labelling {
	region := func(i int) []int {
		var out []int
		for j, q := range points {
			dx, dy := q.X-points[i].X, q.Y-points[i].Y
			if dx*dx+dy*dy <= params.Eps*params.Eps {
				out = append(out, j)
			}
		}
		return out
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}
	next := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		queue := region(i)
		if len(queue) < params.MinSamples {
			labels[i] = Noise
			continue
		}
		labels[i] = next
		for j := 0; j < len(queue); j++ {
			idx := queue[j]
			if labels[idx] == Noise {
				labels[idx] = next
				continue
			}
			if labels[idx] != unvisited {
				continue
			}
			labels[idx] = next
			if more := region(idx); len(more) >= params.MinSamples {
				queue = append(queue, more...)
			}
		}
		next++
	}
	return Labelling{Labels: labels, NClusters: next}
}

func TestDBSCAN_MatchesNaiveExpansion(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		points := make([]Point, 150)
		for i := range points {
			points[i] = Point{X: rng.Float64() * 300, Y: rng.Float64() * 300}
		}
		params := Params{Eps: 12, MinSamples: 1 + trial%4}

		got, err := DBSCAN(points, params)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(naiveDBSCAN(points, params), got); diff != "" {
			t.Fatalf("trial %d: labelling differs (-naive +got):\n%s", trial, diff)
		}
	}
}
