package builder

import "math/rand"

// subSeed derives a tree's independent RNG stream from the build's master
// seed and the tree's index, so determinism holds regardless of worker
// count or dispatch order (spec §4.4). splitmix64's mixing step gives a
// well-distributed, invertible-free derivation from two integers.
func subSeed(masterSeed uint64, treeIndex int) uint64 {
	z := masterSeed + uint64(treeIndex)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func newTreeRNG(masterSeed uint64, treeIndex int) *rand.Rand {
	return rand.New(rand.NewSource(int64(subSeed(masterSeed, treeIndex))))
}

// fairCoin resolves a tie with an unbiased coin flip driven by rng, used
// both for undecided-item assignment (§4.4 step 5) and for the last-resort
// random bisection (§4.4 step 4).
func fairCoin(rng *rand.Rand) bool {
	return rng.Int63()&1 == 0
}
