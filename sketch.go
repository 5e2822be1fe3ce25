package kll

import (
	"fmt"
	"reflect"

	"github.com/colinmarc/kll/internal/rng"
)

// minLevelCap is the fixed floor on a level's capacity (spec section
// 4.1's minK, "a small constant (8 in the reference)").
const minLevelCap = 8

// Sketch is a KLL streaming quantile sketch over a comparator-ordered
// type T. It is parameterized by k (the accuracy/memory knob), a
// comparator giving T a strict weak total order, an Allocator for its
// two backing sequences, and a seeded bit source consumed only by
// compaction.
//
// A Sketch is not safe for concurrent mutation; the intended pattern
// is parallel fan-out (many independent sketches fed disjoint
// partitions) followed by a serial reduction via Merge. See
// SeedFromKey for deterministic per-partition seeding.
type Sketch[T any] struct {
	k uint32

	comparator Comparator[T]
	alloc      Allocator[T]
	rngSrc     *rng.Source

	n               uint64
	minItem         *T
	maxItem         *T
	items           []T
	levels          []uint32
	levelZeroSorted bool

	sortedView *sortedView[T]
}

// Option configures a Sketch at construction time.
type Option[T any] func(*sketchConfig[T])

type sketchConfig[T any] struct {
	alloc Allocator[T]
	seed  uint64
}

// WithAllocator overrides the default make()-based allocator.
func WithAllocator[T any](a Allocator[T]) Option[T] {
	return func(c *sketchConfig[T]) { c.alloc = a }
}

// WithSeed fixes the seed of the PRNG that drives compaction. Two
// sketches built with the same k, comparator, seed, and input sequence
// reach bit-identical internal state (spec section 5).
func WithSeed[T any](seed uint64) Option[T] {
	return func(c *sketchConfig[T]) { c.seed = seed }
}

// New constructs an empty Sketch with the given accuracy parameter k
// (k must be at least 8) and comparator.
func New[T any](k uint32, cmp Comparator[T], opts ...Option[T]) (*Sketch[T], error) {
	if k < minLevelCap {
		return nil, fmt.Errorf("kll: k must be >= %d, got %d", minLevelCap, k)
	}
	if cmp == nil {
		return nil, fmt.Errorf("kll: no comparator provided")
	}
	cfg := sketchConfig[T]{alloc: defaultAllocator[T]{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	levels := cfg.alloc.MakeLevels(2)
	// The two level boundaries both start at k: an empty, full-capacity
	// level 0 with no free space consumed yet (spec section 3 lifecycle).
	levels[0], levels[1] = k, k
	return &Sketch[T]{
		k:          k,
		comparator: cmp,
		alloc:      cfg.alloc,
		rngSrc:     rng.New(cfg.seed),
		items:      cfg.alloc.MakeItems(int(k)),
		levels:     levels,
	}, nil
}

// IsEmpty reports whether the sketch has ever received an Insert.
func (s *Sketch[T]) IsEmpty() bool { return s.n == 0 }

// TotalCount returns n, the number of values ever inserted (summed
// across any merged peers).
func (s *Sketch[T]) TotalCount() uint64 { return s.n }

// K returns the sketch's accuracy parameter.
func (s *Sketch[T]) K() uint32 { return s.k }

// GetNumRetained returns the number of items currently retained.
func (s *Sketch[T]) GetNumRetained() uint32 {
	return s.levels[len(s.levels)-1] - s.levels[0]
}

// MinItem returns the exact minimum of every value ever inserted.
func (s *Sketch[T]) MinItem() (T, error) {
	if s.IsEmpty() {
		var zero T
		return zero, ErrEmptySketch
	}
	return *s.minItem, nil
}

// MaxItem returns the exact maximum of every value ever inserted.
func (s *Sketch[T]) MaxItem() (T, error) {
	if s.IsEmpty() {
		var zero T
		return zero, ErrEmptySketch
	}
	return *s.maxItem, nil
}

// Reset returns the sketch to its initial empty state, keeping the
// same k, comparator, allocator, and PRNG.
func (s *Sketch[T]) Reset() {
	s.n = 0
	s.levelZeroSorted = false
	s.items = s.alloc.MakeItems(int(s.k))
	s.levels = s.alloc.MakeLevels(2)
	s.levels[0], s.levels[1] = s.k, s.k
	s.minItem = nil
	s.maxItem = nil
	s.sortedView = nil
}

// Insert adds value to the stream the sketch summarizes.
func (s *Sketch[T]) Insert(value T) {
	if s.IsEmpty() {
		s.minItem = &value
		s.maxItem = &value
	} else {
		if s.comparator(value, *s.minItem) {
			s.minItem = &value
		}
		if s.comparator(*s.maxItem, value) {
			s.maxItem = &value
		}
	}
	pos := s.insertPosition()
	s.items[pos] = value
	s.levelZeroSorted = false
	s.n++
	s.sortedView = nil
}

// insertPosition returns the next free low-end slot in level 0,
// compacting first if level 0 is full. It does not touch n, min/max,
// or the sorted flag — callers (Insert, and Merge's level-0 transfer)
// own those.
func (s *Sketch[T]) insertPosition() uint32 {
	if s.levels[0] == 0 {
		s.compressWhileInserting()
	}
	s.levels[0]--
	return s.levels[0]
}

func (s *Sketch[T]) numLevels() uint32 { return uint32(len(s.levels) - 1) }

// findLevelToCompact returns the lowest level whose population is at
// or over capacity. Bounded by numLevels per spec section 9's open
// question: the reference's unbounded loop is only safe because
// addEmptyTopLevelToCompletelyFullSketch is guaranteed to have run
// first; here that guarantee is asserted instead of assumed.
func (s *Sketch[T]) findLevelToCompact() uint32 {
	numLevels := s.numLevels()
	for level := uint32(0); level < numLevels; level++ {
		pop := s.levels[level+1] - s.levels[level]
		if pop >= levelCapacity(s.k, numLevels, level, minLevelCap) {
			return level
		}
	}
	panic("kll: findLevelToCompact found no compactable level; addEmptyTopLevel invariant violated")
}

// compressWhileInserting performs the in-place, single-level
// compaction of spec section 4.3's insertPosition steps 1-4.
func (s *Sketch[T]) compressWhileInserting() {
	level := s.findLevelToCompact()
	if level == s.numLevels()-1 {
		s.addEmptyTopLevel()
	}

	levels := s.levels
	rawBeg := levels[level]
	rawEnd := levels[level+1]
	popAbove := levels[level+2] - rawEnd // safe: a top level was just added if needed
	rawPop := rawEnd - rawBeg
	oddPop := rawPop%2 == 1
	adjBeg := rawBeg
	if oddPop {
		adjBeg++
	}
	adjPop := rawPop
	if oddPop {
		adjPop--
	}
	halfAdjPop := adjPop / 2

	items := s.items
	if level == 0 && !s.levelZeroSorted {
		sortRange(items, adjBeg, adjPop, s.comparator)
	}
	if popAbove == 0 {
		randomlyHalveUp(items, adjBeg, adjPop, s.rngSrc)
	} else {
		randomlyHalveDown(items, adjBeg, adjPop, s.rngSrc)
		mergeOverlap(items, adjBeg, halfAdjPop, items, rawEnd, popAbove, items, adjBeg+halfAdjPop, s.comparator)
	}

	levels[level+1] -= halfAdjPop
	if oddPop {
		levels[level] = levels[level+1] - 1
		items[levels[level]] = items[rawBeg] // the one preserved orphan
	} else {
		levels[level] = levels[level+1]
	}

	// Shift everything below the compacted level up by halfAdjPop so
	// the freed slots land at the low end of level 0.
	if level > 0 {
		amount := rawBeg - levels[0]
		for i := amount; i > 0; i-- {
			dst := levels[0] + halfAdjPop + i - 1
			src := levels[0] + i - 1
			items[dst] = items[src]
		}
	}
	for lvl := uint32(0); lvl < level; lvl++ {
		levels[lvl] += halfAdjPop
	}
}

// addEmptyTopLevel grows the items buffer by levelCapacity(k,
// numLevels+1, 0), the amount by which total capacity rises when one
// more level is added, shifts existing data to the high end, and
// appends the new top boundary. Spec section 4.3 step 1.
func (s *Sketch[T]) addEmptyTopLevel() {
	curNumLevels := s.numLevels()
	curTotal := s.levels[curNumLevels]
	delta := levelCapacity(s.k, curNumLevels+1, 0, minLevelCap)
	newTotal := curTotal + delta

	newItems := s.alloc.MakeItems(int(newTotal))
	copy(newItems[delta:], s.items[:curTotal])

	newLevels := s.alloc.MakeLevels(int(curNumLevels) + 2)
	copy(newLevels, s.levels)
	for lvl := uint32(0); lvl <= curNumLevels; lvl++ {
		newLevels[lvl] += delta
	}
	newLevels[curNumLevels+1] = newTotal

	s.items = newItems
	s.levels = newLevels
}

// Merge folds each peer into the receiver. Every peer must share this
// sketch's k and comparator identity.
func (s *Sketch[T]) Merge(peers ...*Sketch[T]) error {
	for _, peer := range peers {
		if peer.k != s.k || !sameComparator(s.comparator, peer.comparator) {
			return ErrIncompatibleParameters
		}
	}
	for _, peer := range peers {
		s.mergeOne(peer)
	}
	if len(peers) > 0 {
		s.sortedView = nil
	}
	return nil
}

func sameComparator[T any](a, b Comparator[T]) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func (s *Sketch[T]) mergeOne(other *Sketch[T]) {
	if other.IsEmpty() {
		return
	}

	myEmpty := s.IsEmpty()
	var myMin, myMax T
	if !myEmpty {
		myMin, myMax = *s.minItem, *s.maxItem
	}
	finalN := s.n + other.n

	otherNumLevels := other.numLevels()
	otherLevels := other.levels
	otherItems := other.items

	for i := otherLevels[0]; i < otherLevels[1]; i++ {
		pos := s.insertPosition()
		s.items[pos] = otherItems[i]
		s.levelZeroSorted = false
	}

	myNumLevels := s.numLevels()
	myLevels := s.levels
	myItems := s.items

	newNumLevels := myNumLevels
	newLevels := myLevels
	newItems := myItems

	if otherNumLevels > 1 {
		retainedAboveZeroSelf := myLevels[myNumLevels] - myLevels[1]
		retainedAboveZeroOther := otherLevels[otherNumLevels] - otherLevels[1]
		workSize := (myLevels[1] - myLevels[0]) + retainedAboveZeroSelf + retainedAboveZeroOther
		workbuf := s.alloc.MakeItems(int(workSize))
		ub := upperBoundNumLevels(finalN)
		worklevels := make([]uint32, ub+2)
		outlevels := make([]uint32, ub+2)
		provisionalNumLevels := max(myNumLevels, otherNumLevels)

		populateWorkArrays(workbuf, worklevels, provisionalNumLevels,
			myNumLevels, myLevels, myItems,
			otherNumLevels, otherLevels, otherItems, s.comparator)

		finalNumLevels, targetCap, retained := generalCompress(
			s.k, minLevelCap, provisionalNumLevels, workbuf, worklevels,
			workbuf, outlevels, s.levelZeroSorted, s.comparator, s.rngSrc)

		newNumLevels = finalNumLevels
		newItems = s.alloc.MakeItems(int(targetCap))
		freeAtBottom := targetCap - retained
		copy(newItems[freeAtBottom:], workbuf[outlevels[0]:outlevels[0]+retained])
		shift := freeAtBottom - outlevels[0]

		newLevels = s.alloc.MakeLevels(int(newNumLevels) + 1)
		for lvl := uint32(0); lvl <= newNumLevels; lvl++ {
			newLevels[lvl] = outlevels[lvl] + shift
		}
	}

	s.n = finalN
	s.levels = newLevels
	s.items = newItems

	if myEmpty {
		minVal, maxVal := *other.minItem, *other.maxItem
		s.minItem, s.maxItem = &minVal, &maxVal
	} else {
		if s.comparator(myMin, *other.minItem) {
			s.minItem = &myMin
		} else {
			v := *other.minItem
			s.minItem = &v
		}
		if s.comparator(*other.maxItem, myMax) {
			s.maxItem = &myMax
		} else {
			v := *other.maxItem
			s.maxItem = &v
		}
	}
}

// populateWorkArrays lays self's and other's per-level data into a
// flat workspace buffer ahead of generalCompress, merging any level
// present in both.
func populateWorkArrays[T any](workbuf []T, worklevels []uint32, provisionalNumLevels uint32,
	myNumLevels uint32, myLevels []uint32, myItems []T,
	otherNumLevels uint32, otherLevels []uint32, otherItems []T,
	cmp Comparator[T]) {

	worklevels[0] = 0
	selfPopZero := levelSize(0, myNumLevels, myLevels)
	copy(workbuf[:selfPopZero], myItems[myLevels[0]:myLevels[0]+selfPopZero])
	worklevels[1] = worklevels[0] + selfPopZero

	for lvl := uint32(1); lvl < provisionalNumLevels; lvl++ {
		selfPop := levelSize(lvl, myNumLevels, myLevels)
		otherPop := levelSize(lvl, otherNumLevels, otherLevels)
		worklevels[lvl+1] = worklevels[lvl] + selfPop + otherPop

		switch {
		case selfPop > 0 && otherPop == 0:
			copy(workbuf[worklevels[lvl]:], myItems[myLevels[lvl]:myLevels[lvl]+selfPop])
		case selfPop == 0 && otherPop > 0:
			copy(workbuf[worklevels[lvl]:], otherItems[otherLevels[lvl]:otherLevels[lvl]+otherPop])
		case selfPop > 0 && otherPop > 0:
			mergeOverlap(myItems, myLevels[lvl], selfPop, otherItems, otherLevels[lvl], otherPop, workbuf, worklevels[lvl], cmp)
		}
	}
}

func levelSize(level, numLevels uint32, levels []uint32) uint32 {
	if level >= numLevels {
		return 0
	}
	return levels[level+1] - levels[level]
}

// upperBoundNumLevels bounds how many levels a sketch holding n items
// could ever need: 1 + floor(log2(n)).
func upperBoundNumLevels(n uint64) uint32 {
	if n == 0 {
		return 1
	}
	floor := floorPowerOf2(n)
	return 1 + trailingZeros64(floor)
}

func floorPowerOf2(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	msb := uint64(1) << 63
	for msb > n {
		msb >>= 1
	}
	return msb
}

func trailingZeros64(v uint64) uint32 {
	if v == 0 {
		return 64
	}
	var n uint32
	for v&1 == 0 {
		v >>= 1
		n++
	}
	return n
}
