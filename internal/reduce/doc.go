// Package reduce computes the consensus for one subject and one task kind.
//
// Each task kind has its own Reducer: categorical answers and numeric counts
// are reduced by frequency with a smallest-value tie-break, and marks are
// merged by density clustering. New returns the reducer for a kind and
// rejects kinds it does not know.
package reduce
