package cluster

// Default DBSCAN parameters for image marks, in pixels.
const (
	DefaultEps        = 15.0
	DefaultMinSamples = 2
)

// Clusterer abstracts the clustering implementation so reducers can be
// exercised with other strategies.
type Clusterer interface {
	// Cluster labels points. The result must be a pure function of the
	// points and the clusterer's parameters.
	Cluster(points []Point) (Labelling, error)

	// Params returns the current clustering parameters.
	Params() Params
}

// DBSCANClusterer implements Clusterer with DBSCAN.
type DBSCANClusterer struct {
	params Params
}

// NewDBSCANClusterer creates a DBSCAN clusterer with the given parameters.
func NewDBSCANClusterer(eps float64, minSamples int) *DBSCANClusterer {
	return &DBSCANClusterer{params: Params{Eps: eps, MinSamples: minSamples}}
}

// NewDefaultDBSCANClusterer creates a DBSCAN clusterer with default parameters.
func NewDefaultDBSCANClusterer() *DBSCANClusterer {
	return NewDBSCANClusterer(DefaultEps, DefaultMinSamples)
}

// DefaultParams returns the default image-mark parameters.
func DefaultParams() Params {
	return Params{Eps: DefaultEps, MinSamples: DefaultMinSamples}
}

// Cluster runs DBSCAN over points.
func (c *DBSCANClusterer) Cluster(points []Point) (Labelling, error) {
	return DBSCAN(points, c.params)
}

// Params returns the clusterer's parameters.
func (c *DBSCANClusterer) Params() Params {
	return c.params
}

// Verify at compile time that *DBSCANClusterer implements Clusterer.
var _ Clusterer = (*DBSCANClusterer)(nil)
