package kll

import "errors"

// Sentinel errors returned by observer and merge operations. Callers
// should compare with errors.Is rather than string matching.
var (
	// ErrEmptySketch is returned by an observer (EstimateQuantile,
	// EstimateQuantiles, GetRank, MinItem, MaxItem) called on a sketch
	// that has never received an Insert.
	ErrEmptySketch = errors.New("kll: operation undefined on an empty sketch")

	// ErrInvalidFraction is returned when a requested quantile fraction
	// or rank lies outside [0, 1].
	ErrInvalidFraction = errors.New("kll: fraction must be within [0, 1]")

	// ErrIncompatibleParameters is returned by Merge when a peer sketch
	// was built with a different k or a different comparator identity.
	ErrIncompatibleParameters = errors.New("kll: merge requires matching k and comparator")
)
