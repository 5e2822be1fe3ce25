package kll

import "github.com/twmb/murmur3"

// seedHashSeed is an arbitrary fixed seed for the murmur3 hash used to
// derive per-partition PRNG seeds; it only needs to be fixed, not secret.
const seedHashSeed = uint64(9001)

// SeedFromKey derives a deterministic PRNG seed from an arbitrary
// partition key (a shard id, a time bucket, a shuffle-split index...).
// It exists for the parallel fan-out pattern spec section 5 describes:
// many disjoint-partition sketches fed independently, then serially
// reduced with Merge. Seeding each partition's sketch with
// SeedFromKey(partitionKey) keeps the whole fan-out reproducible
// without a shared PRNG or any coordination between partitions.
func SeedFromKey(key []byte) uint64 {
	return murmur3.SeedSum64(seedHashSeed, key)
}
