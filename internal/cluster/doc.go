// Package cluster groups 2D image marks by density.
//
// Responsibilities: grid spatial index, deterministic DBSCAN labelling, and
// per-cluster centroid and attribute means.
// Key types: Point, Params, Labelling, Cluster.
//
// Clustering works on index sets over a fixed point slice; no point objects
// are linked to each other.
package cluster
