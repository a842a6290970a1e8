package cluster

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Cluster is one group of points sharing a label, with derived statistics.
type Cluster struct {
	Index     int
	Members   []int     // input indices, ascending
	CentroidX float64   // mean x over members
	CentroidY float64   // mean y over members
	StdX      float64   // sample standard deviation of x, 0 for a single member
	StdY      float64   // sample standard deviation of y, 0 for a single member
	AuxMeans  []float64 // mean of each auxiliary attribute over members
}

// Summarise computes per-cluster centroids and auxiliary attribute means.
// aux may be nil; otherwise aux[i] holds the attributes of points[i] and every
// row must have the same length. Clusters are returned in index order.
func Summarise(points []Point, aux [][]float64, l Labelling) ([]Cluster, error) {
	if len(l.Labels) != len(points) {
		return nil, fmt.Errorf("labelling covers %d points, have %d", len(l.Labels), len(points))
	}
	if aux != nil && len(aux) != len(points) {
		return nil, fmt.Errorf("aux covers %d points, have %d", len(aux), len(points))
	}

	width := 0
	if len(aux) > 0 {
		width = len(aux[0])
	}

	clusters := make([]Cluster, 0, l.NClusters)
	for k := 0; k < l.NClusters; k++ {
		members := l.Members(k)
		if len(members) == 0 {
			continue
		}

		xs := make([]float64, len(members))
		ys := make([]float64, len(members))
		for i, idx := range members {
			xs[i] = points[idx].X
			ys[i] = points[idx].Y
		}

		c := Cluster{
			Index:     k,
			Members:   members,
			CentroidX: stat.Mean(xs, nil),
			CentroidY: stat.Mean(ys, nil),
		}
		if len(members) > 1 {
			c.StdX = stat.StdDev(xs, nil)
			c.StdY = stat.StdDev(ys, nil)
		}

		if width > 0 {
			c.AuxMeans = make([]float64, width)
			col := make([]float64, len(members))
			for a := 0; a < width; a++ {
				for i, idx := range members {
					if len(aux[idx]) != width {
						return nil, fmt.Errorf("aux row %d has %d values, want %d", idx, len(aux[idx]), width)
					}
					col[i] = aux[idx][a]
				}
				c.AuxMeans[a] = stat.Mean(col, nil)
			}
		}

		clusters = append(clusters, c)
	}
	return clusters, nil
}
