package kll

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenario_S1_SmallSortedStream inserts 1..1000 in order and checks
// the median and the exact extremes.
func TestScenario_S1_SmallSortedStream(t *testing.T) {
	s, err := New[int](200, OrderedComparator[int]())
	require.NoError(t, err)
	for i := 1; i <= 1000; i++ {
		s.Insert(i)
	}

	median, err := s.EstimateQuantile(0.5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, median, 480)
	assert.LessOrEqual(t, median, 520)

	q0, err := s.EstimateQuantile(0)
	require.NoError(t, err)
	assert.Equal(t, 1, q0)

	q1, err := s.EstimateQuantile(1)
	require.NoError(t, err)
	assert.Equal(t, 1000, q1)

	assert.Equal(t, uint64(1000), s.TotalCount())
}

// TestScenario_S2_MillionItemStream checks the retained-item bound and
// tail-quantile accuracy hold at a million items, well past the point
// where the sketch must start compacting.
func TestScenario_S2_MillionItemStream(t *testing.T) {
	if testing.Short() {
		t.Skip("million-item stream; skip under -short")
	}
	const k, n = 200, 1_000_000
	s, err := New[int](k, OrderedComparator[int]())
	require.NoError(t, err)
	for i := 1; i <= n; i++ {
		s.Insert(i)
	}

	// 3*k*log2(n/k) ~= 3*200*12 = 7200.
	assert.LessOrEqual(t, s.GetNumRetained(), uint32(7200))

	q99, err := s.EstimateQuantile(0.99)
	require.NoError(t, err)
	assert.InDelta(t, 990000, q99, 2000)
}

// TestScenario_S3_MergeDisjointHalves builds two sketches over disjoint
// halves of 1..1_000_000 and merges the second into the first.
func TestScenario_S3_MergeDisjointHalves(t *testing.T) {
	if testing.Short() {
		t.Skip("million-item merge; skip under -short")
	}
	a, err := New[int](200, OrderedComparator[int]())
	require.NoError(t, err)
	b, err := New[int](200, OrderedComparator[int]())
	require.NoError(t, err)
	for i := 1; i <= 500000; i++ {
		a.Insert(i)
	}
	for i := 500001; i <= 1000000; i++ {
		b.Insert(i)
	}
	require.NoError(t, a.Merge(b))

	assert.Equal(t, uint64(1000000), a.TotalCount())
	median, err := a.EstimateQuantile(0.5)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, median, 490000)
	assert.LessOrEqual(t, median, 510000)
}

// TestScenario_S4_MinimumKTinyStream exercises k at its floor with a
// handful of values, including duplicates.
func TestScenario_S4_MinimumKTinyStream(t *testing.T) {
	s, err := New[int](minLevelCap, OrderedComparator[int]())
	require.NoError(t, err)
	for _, v := range []int{3, 1, 4, 1, 5, 9, 2, 6, 5, 3} {
		s.Insert(v)
	}

	q0, err := s.EstimateQuantile(0)
	require.NoError(t, err)
	assert.Equal(t, 1, q0)

	q1, err := s.EstimateQuantile(1)
	require.NoError(t, err)
	assert.Equal(t, 9, q1)

	assert.Equal(t, uint64(10), s.TotalCount())
	assert.LessOrEqual(t, s.GetNumRetained(), uint32(10))
}

// TestScenario_S5_SameSeedIsDeterministic feeds the same pseudorandom
// stream into two independently constructed sketches sharing a seed
// and asserts they reach identical internal state.
func TestScenario_S5_SameSeedIsDeterministic(t *testing.T) {
	const seed = uint64(777)
	src := rand.New(rand.NewSource(1))
	values := make([]int, 100000)
	for i := range values {
		values[i] = src.Intn(1 << 30)
	}

	toBytes := func(v int) []byte {
		b := make([]byte, 8)
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		return b
	}

	build := func() *Sketch[int] {
		s, err := New[int](200, OrderedComparator[int](), WithSeed[int](seed))
		require.NoError(t, err)
		for _, v := range values {
			s.Insert(v)
		}
		return s
	}

	a := build()
	b := build()
	assert.Equal(t, a.Fingerprint(toBytes), b.Fingerprint(toBytes))
}

// TestScenario_S6_EmptySketchQuantileFails asserts the documented
// failure mode for querying an empty sketch.
func TestScenario_S6_EmptySketchQuantileFails(t *testing.T) {
	s, err := New[int](200, OrderedComparator[int]())
	require.NoError(t, err)
	_, err = s.EstimateQuantile(0.5)
	assert.ErrorIs(t, err, ErrEmptySketch)
}
