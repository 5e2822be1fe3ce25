package kll

import "golang.org/x/exp/constraints"

// Comparator reports whether a sorts strictly before b under the
// caller's total order. It must be a strict weak ordering: irreflexive
// and transitive.
type Comparator[T any] func(a, b T) bool

// OrderedComparator returns the natural Comparator for any type with a
// built-in total order, so callers of int, float64, or string sketches
// never have to write one by hand.
func OrderedComparator[T constraints.Ordered]() Comparator[T] {
	return func(a, b T) bool { return a < b }
}
