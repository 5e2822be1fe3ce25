package kll

import (
	"math"
	"sort"
)

// sortedView is the fully sorted, cumulative-weight-annotated view of
// a sketch's retained items, built lazily the first time a quantile or
// rank query needs it and invalidated by the next Insert or Merge.
// Spec section 4.3: each level-l item represents weight 2^l; entries
// are sorted once, then each entry's weight is replaced by the
// running prefix weight strictly less than it, so a query is a single
// binary search over prefix weights.
type sortedView[T any] struct {
	values      []T
	prefix      []uint64 // prefix[i] = total weight of entries strictly before i
	totalWeight uint64
	minItem     T
	maxItem     T
}

func (s *Sketch[T]) buildSortedView() *sortedView[T] {
	if s.sortedView != nil {
		return s.sortedView
	}

	if !s.levelZeroSorted {
		popZero := s.levels[1] - s.levels[0]
		sortRange(s.items, s.levels[0], popZero, s.comparator)
		s.levelZeroSorted = true
	}

	numLevels := s.numLevels()
	numRetained := s.levels[numLevels] - s.levels[0]

	type entry struct {
		value  T
		weight uint64
	}
	entries := make([]entry, 0, numRetained)
	weight := uint64(1)
	for lvl := uint32(0); lvl < numLevels; lvl++ {
		beg, end := s.levels[lvl], s.levels[lvl+1]
		for i := beg; i < end; i++ {
			entries = append(entries, entry{value: s.items[i], weight: weight})
		}
		weight *= 2
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return s.comparator(entries[i].value, entries[j].value)
	})

	values := make([]T, len(entries))
	prefix := make([]uint64, len(entries))
	var running uint64
	for i, e := range entries {
		values[i] = e.value
		prefix[i] = running
		running += e.weight
	}

	sv := &sortedView[T]{
		values:      values,
		prefix:      prefix,
		totalWeight: running,
		minItem:     *s.minItem,
		maxItem:     *s.maxItem,
	}
	s.sortedView = sv
	return sv
}

// EstimateQuantile returns the approximate value at normalized rank q.
func (s *Sketch[T]) EstimateQuantile(q float64) (T, error) {
	var zero T
	if s.IsEmpty() {
		return zero, ErrEmptySketch
	}
	if q < 0 || q > 1 {
		return zero, ErrInvalidFraction
	}
	sv := s.buildSortedView()
	switch {
	case q == 0:
		return sv.minItem, nil
	case q == 1:
		return sv.maxItem, nil
	default:
		target := q * float64(sv.totalWeight)
		idx := sort.Search(len(sv.prefix), func(i int) bool { return float64(sv.prefix[i]) >= target })
		if idx == len(sv.prefix) {
			idx = len(sv.prefix) - 1
		}
		return sv.values[idx], nil
	}
}

// EstimateQuantiles fills out with the approximate values at each
// normalized rank in qs, returning out.
func (s *Sketch[T]) EstimateQuantiles(qs []float64, out []T) ([]T, error) {
	if s.IsEmpty() {
		return nil, ErrEmptySketch
	}
	if len(out) < len(qs) {
		out = make([]T, len(qs))
	}
	for i, q := range qs {
		v, err := s.EstimateQuantile(q)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out[:len(qs)], nil
}

// GetRank returns the fraction of the stream at or below item
// (inclusive) or strictly below it (exclusive).
func (s *Sketch[T]) GetRank(item T, inclusive bool) (float64, error) {
	if s.IsEmpty() {
		return 0, ErrEmptySketch
	}
	sv := s.buildSortedView()
	var idx int
	if inclusive {
		idx = sort.Search(len(sv.values), func(i int) bool { return s.comparator(item, sv.values[i]) })
	} else {
		idx = sort.Search(len(sv.values), func(i int) bool { return !s.comparator(sv.values[i], item) })
	}
	var weightBefore uint64
	if idx < len(sv.prefix) {
		weightBefore = sv.prefix[idx]
	} else {
		weightBefore = sv.totalWeight
	}
	return float64(weightBefore) / float64(sv.totalWeight), nil
}

// NormalizedRankError returns the empirical rank-error bound for this
// sketch's k: the "single-sided" bound used by EstimateQuantile/
// GetRank when pmf is false, or the "double-sided" bound a PMF-style
// query would need when pmf is true. Mirrors the teacher's
// getNormalizedRankError formula (spec section 9 design notes:
// rank error is O(1/k * sqrt(log n)) with high probability).
func (s *Sketch[T]) NormalizedRankError(pmf bool) float64 {
	return normalizedRankError(s.k, pmf)
}

const (
	pmfErrCoef = 2.446
	pmfErrExp  = 0.9433
	cdfErrCoef = 2.296
	cdfErrExp  = 0.9723
)

func normalizedRankError(k uint32, pmf bool) float64 {
	kf := float64(k)
	if pmf {
		return pmfErrCoef / math.Pow(kf, pmfErrExp)
	}
	return cdfErrCoef / math.Pow(kf, cdfErrExp)
}
