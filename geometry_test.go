package kll

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelCapacity_DeepestLevelFlooredAtMinK(t *testing.T) {
	// In a 20-level sketch, height 0 sits at depth 19, where the
	// (2/3)^depth capacity collapses below minK; the floor must still hold.
	cap := levelCapacity(200, 20, 0, minLevelCap)
	assert.Equal(t, uint32(minLevelCap), cap)
}

func TestLevelCapacity_BottomLevelEqualsK(t *testing.T) {
	// With numLevels == 1 the single level is depth 0, so its capacity
	// is exactly k.
	assert.Equal(t, uint32(200), levelCapacity(200, 1, 0, minLevelCap))
}

func TestLevelCapacity_MonotonicByDepth(t *testing.T) {
	const k, numLevels = 256, 5
	var prev uint32 = k + 1
	// Walk from the top level (depth 0) down to height 0 (deepest).
	for h := uint32(numLevels); h > 0; h-- {
		c := levelCapacity(k, numLevels, h-1, minLevelCap)
		assert.LessOrEqual(t, c, prev)
		prev = c
	}
}

func TestComputeTotalCapacity_SumsLevels(t *testing.T) {
	const k, numLevels = 200, 4
	var want uint32
	for h := uint32(0); h < numLevels; h++ {
		want += levelCapacity(k, numLevels, h, minLevelCap)
	}
	assert.Equal(t, want, computeTotalCapacity(k, numLevels, minLevelCap))
}

func TestCapAtDepth_ZeroDepthIsK(t *testing.T) {
	assert.Equal(t, uint32(200), capAtDepth(200, 0))
}

func TestCapAtDepth_NeverExceedsK(t *testing.T) {
	for depth := uint32(0); depth < 40; depth++ {
		assert.LessOrEqual(t, capAtDepth(200, depth), uint32(200))
	}
}
