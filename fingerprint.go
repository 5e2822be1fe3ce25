package kll

import "github.com/cespare/xxhash/v2"

// Fingerprint hashes the sketch's retained items (in raw buffer order)
// and its level-boundary vector into a single uint64, using toBytes to
// project each item to its byte representation. Two sketches with
// identical internal state (spec section 5's determinism guarantee:
// same k, seed, comparator, and input sequence) produce identical
// fingerprints; this is a cheap way for a determinism test to assert
// "these two sketches are byte-identical" without diffing slices by
// hand.
func (s *Sketch[T]) Fingerprint(toBytes func(T) []byte) uint64 {
	d := xxhash.New()
	for i := s.levels[0]; i < s.levels[len(s.levels)-1]; i++ {
		d.Write(toBytes(s.items[i]))
	}
	levelBytes := make([]byte, 4*len(s.levels))
	for i, lvl := range s.levels {
		putUint32LE(levelBytes[i*4:], lvl)
	}
	d.Write(levelBytes)
	return d.Sum64()
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
