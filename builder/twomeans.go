package builder

import (
	"context"
	"math/rand"

	"golang.org/x/sync/semaphore"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
)

// twoMeans refines the two seed points p, q sampled for a Euclidean split
// into a pair of centroids, per spec §4.4: repeatedly reassign a random
// subsample of ids to whichever of the current two centers is nearer, then
// recenter on the assigned subsample. Bounded to opts.TwoMeansIterations
// rounds with early exit once the centers stop moving appreciably. sem
// bounds how many two-means refinements (across all trees building
// concurrently) hold their subsample scratch buffer at once.
func twoMeans(ctx context.Context, sem *semaphore.Weighted, rng *rand.Rand, ids []core.ItemID, vectorOf func(core.ItemID) []float32, dim int, p, q []float32, opts Options) ([]float32, []float32, error) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer sem.Release(1)

	pCenter := append([]float32(nil), p...)
	qCenter := append([]float32(nil), q...)

	n := opts.TwoMeansSubsampleSize
	if n > len(ids) {
		n = len(ids)
	}
	subsample := make([]core.ItemID, n)
	pSum := make([]float32, dim)
	qSum := make([]float32, dim)

	const moveEpsilon = 1e-6

	for iter := 0; iter < opts.TwoMeansIterations; iter++ {
		perm := rng.Perm(len(ids))
		for i := 0; i < n; i++ {
			subsample[i] = ids[perm[i]]
		}

		for i := range pSum {
			pSum[i] = 0
			qSum[i] = 0
		}
		var pCount, qCount int
		for _, id := range subsample {
			v := vectorOf(id)
			if distance.SquaredL2(v, pCenter) <= distance.SquaredL2(v, qCenter) {
				addInto(pSum, v)
				pCount++
			} else {
				addInto(qSum, v)
				qCount++
			}
		}

		var moved float32
		if pCount > 0 {
			newP := scale(pSum, 1/float32(pCount))
			moved += distance.SquaredL2(newP, pCenter)
			pCenter = newP
		}
		if qCount > 0 {
			newQ := scale(qSum, 1/float32(qCount))
			moved += distance.SquaredL2(newQ, qCenter)
			qCenter = newQ
		}
		if moved < moveEpsilon {
			break
		}
	}

	return pCenter, qCenter, nil
}

func addInto(dst, src []float32) {
	for i, v := range src {
		dst[i] += v
	}
}

func scale(v []float32, s float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * s
	}
	return out
}
