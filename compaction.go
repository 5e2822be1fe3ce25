package kll

import (
	"sort"

	"github.com/colinmarc/kll/internal/rng"
)

// Compaction engine: the randomized halving / merge-overlap
// primitives and the generalCompress driver of spec section 4.2.
// These operate on plain slices and level-boundary arrays; none of
// them know about the Sketch type that owns the buffer.

// randomlyHalveUp draws one bit from src and keeps every other
// element of buf[start:start+length] (length must be even), writing
// the survivors into the upper half of the range. The discarded
// elements are left in place but become semantically dead.
func randomlyHalveUp[T any](buf []T, start, length uint32, src *rng.Source) {
	half := length / 2
	offset := uint32(src.Bit())
	j := (start + length) - 1 - offset
	for i := (start + length) - 1; i+1 > (start + half); i-- {
		buf[i] = buf[j]
		j -= 2
	}
}

// randomlyHalveDown is the mirror of randomlyHalveUp: survivors land
// in the lower half of the range.
func randomlyHalveDown[T any](buf []T, start, length uint32, src *rng.Source) {
	half := length / 2
	offset := uint32(src.Bit())
	j := start + offset
	for i := start; i < start+half; i++ {
		buf[i] = buf[j]
		j += 2
	}
}

// mergeOverlap merges sorted ranges A = bufA[startA:startA+lenA] and
// B = bufB[startB:startB+lenB] into bufC starting at startC, under
// cmp ("a sorts before b"). When bufA and bufC are the same slice, the
// caller must guarantee startA+lenA <= startC (so the left-to-right
// write never overtakes an unread A element), which is what lets the
// output range overlap with B; this is checked and violations panic.
// Distinct A and C buffers carry no such constraint.
func mergeOverlap[T any](bufA []T, startA, lenA uint32, bufB []T, startB, lenB uint32, bufC []T, startC uint32, cmp Comparator[T]) {
	if len(bufA) > 0 && len(bufC) > 0 && &bufA[0] == &bufC[0] && startA+lenA > startC {
		panic("kll: mergeOverlap precondition violated: startA+lenA > startC")
	}
	limA := startA + lenA
	limB := startB + lenB
	limC := startC + lenA + lenB

	a, b := startA, startB
	for c := startC; c < limC; c++ {
		switch {
		case a == limA:
			bufC[c] = bufB[b]
			b++
		case b == limB:
			bufC[c] = bufA[a]
			a++
		case cmp(bufA[a], bufB[b]):
			bufC[c] = bufA[a]
			a++
		default:
			bufC[c] = bufB[b]
			b++
		}
	}
}

// sortRange sorts buf[start:start+length] under cmp in place.
func sortRange[T any](buf []T, start, length uint32, cmp Comparator[T]) {
	slice := buf[start : start+length]
	sort.Slice(slice, func(i, j int) bool { return cmp(slice[i], slice[j]) })
}

// generalCompress rebalances a possibly over-full, numLevelsIn-level
// configuration described by inLevels into a valid configuration
// described by outLevels, rearranging item data from buf into out (out
// may alias buf: Merge passes its workspace buffer as both).
//
// It returns the final number of levels, the target (maximum)
// capacity at that level count, and the number of items actually
// retained.
func generalCompress[T any](k, minK uint32, numLevelsIn uint32, buf []T, inLevels []uint32, out []T, outLevels []uint32, level0Sorted bool, cmp Comparator[T], src *rng.Source) (finalNumLevels, targetCapacity, retained uint32) {
	numLevels := numLevelsIn
	currentItemCount := inLevels[numLevels] - inLevels[0]
	targetItemCount := computeTotalCapacity(k, numLevels, minK)
	outLevels[0] = 0

	level := -1
	for {
		level++

		// An empty level above the current top makes the bottom-up loop
		// below uniform, without committing to numLevels growing yet.
		if uint32(level) == numLevels-1 {
			inLevels[level+2] = inLevels[level+1]
		}

		rawBeg := inLevels[level]
		rawLim := inLevels[level+1]
		rawPop := rawLim - rawBeg

		if currentItemCount < targetItemCount || rawPop < levelCapacity(k, numLevels, uint32(level), minK) {
			copy(out[outLevels[level]:], buf[rawBeg:rawLim])
			outLevels[level+1] = outLevels[level] + rawPop
		} else {
			popAbove := inLevels[level+2] - rawLim
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

			if oddPop {
				out[outLevels[level]] = buf[rawBeg]
				outLevels[level+1] = outLevels[level] + 1
			} else {
				outLevels[level+1] = outLevels[level]
			}

			if level == 0 && !level0Sorted {
				sortRange(buf, adjBeg, adjPop, cmp)
			}

			if popAbove == 0 {
				randomlyHalveUp(buf, adjBeg, adjPop, src)
			} else {
				randomlyHalveDown(buf, adjBeg, adjPop, src)
				mergeOverlap(buf, adjBeg, halfAdjPop, buf, rawLim, popAbove, buf, adjBeg+halfAdjPop, cmp)
			}

			currentItemCount -= halfAdjPop
			inLevels[level+1] -= halfAdjPop

			if uint32(level) == numLevels-1 {
				numLevels++
				targetItemCount += levelCapacity(k, numLevels, 0, minK)
			}
		}

		if uint32(level) == numLevels-1 {
			break
		}
	}

	return numLevels, targetItemCount, currentItemCount
}
