// Package consensus runs the task reducers over a batch of classifications.
//
// An Evaluator groups classifications by subject, gates each subject on a
// minimum number of distinct evaluators, and reduces subjects in parallel
// on a bounded worker pool. Output is sorted by subject id and task kind so
// repeated runs over the same input produce identical results.
package consensus
