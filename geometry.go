package kll

// Level geometry: the pure, side-effect-free arithmetic of spec
// section 4.1. levelCapacity and computeTotalCapacity are the only
// two functions that know the shape of the geometric capacity
// schedule; everything else in the compaction engine and sketch
// object treats capacity as a black box computed here.

// powersOfThree backs the (2/3)^depth schedule with integer
// arithmetic so the capacity of a level never drifts with floating
// point rounding across repeated compactions.
var powersOfThree = [...]uint64{
	1, 3, 9, 27, 81, 243, 729, 2187, 6561, 19683, 59049, 177147, 531441,
	1594323, 4782969, 14348907, 43046721, 129140163, 387420489, 1162261467,
	3486784401, 10460353203, 31381059609, 94143178827, 282429536481,
	847288609443, 2541865828329, 7625597484987, 22876792454961,
	68630377364883, 205891132094649,
}

// levelCapacity returns the capacity of level height when the sketch
// currently has numLevels levels: max(minK, ceil(k*(2/3)^depth)) where
// depth = numLevels - height - 1. The top level (depth 0) carries
// capacity k; each level below it shrinks by a factor of 2/3, and the
// deepest levels (height 0 in a tall sketch) are floored at minK.
func levelCapacity(k uint32, numLevels, height, minK uint32) uint32 {
	depth := numLevels - height - 1
	return max(minK, capAtDepth(k, depth))
}

// computeTotalCapacity sums levelCapacity across every level of a
// numLevels-level sketch.
func computeTotalCapacity(k uint32, numLevels, minK uint32) uint32 {
	var total uint32
	for h := uint32(0); h < numLevels; h++ {
		total += levelCapacity(k, numLevels, h, minK)
	}
	return total
}

// capAtDepth computes ceil(k*(2/3)^depth) using integer arithmetic.
// Depths above 30 are split into two table lookups, which covers
// depths up to 61 (in practice depth never exceeds ~60 for realistic n).
func capAtDepth(k, depth uint32) uint32 {
	if depth <= 30 {
		return capAtDepthAux(k, depth)
	}
	half := depth / 2
	rest := depth - half
	tmp := capAtDepthAux(k, half)
	return capAtDepthAux(tmp, rest)
}

func capAtDepthAux(k, depth uint32) uint32 {
	denom := powersOfThree[depth]
	result := ((uint64(k) << depth) + denom - 1) / denom // ceil(k*2^depth / 3^depth)
	if result <= uint64(k) {
		return uint32(result)
	}
	return k
}
