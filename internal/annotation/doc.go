// Package annotation holds the typed input contract for the consensus engine:
// classifications submitted by annotators, the closed set of task annotation
// variants, and grouping of classifications by subject.
//
// Key types: Classification, Annotation, TaskKind, SubjectGroup.
//
// Nothing in this package reads raw platform exports. Classifications arrive
// already split into typed annotations.
package annotation
