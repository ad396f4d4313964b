package builder

import (
	"context"
	"math/rand"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/itemset"
)

// waitIO throttles n bytes of accumulated node writes against limiter,
// a no-op when limiter is nil (IOWriteBytesPerSec unset, meaning unlimited).
func waitIO(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil || n <= 0 {
		return nil
	}
	return limiter.WaitN(ctx, n)
}

// buildSubtree implements spec §4.4 steps 2-6 for one tree, recursively.
func buildSubtree(ctx context.Context, sem *semaphore.Weighted, limiter *rate.Limiter, rng *rand.Rand, kernel distance.Kernel, dim int, vectorOf func(core.ItemID) []float32, ids []core.ItemID, alloc *idAllocator, opts Options) (core.NodeID, []NodeWrite, error) {
	if len(ids) <= opts.K {
		set := itemset.FromIDs(ids)
		buf, err := codec.EncodeDescendants(kernel.Metric(), set)
		if err != nil {
			return 0, nil, err
		}
		if err := waitIO(ctx, limiter, len(buf)); err != nil {
			return 0, nil, err
		}
		node := alloc.allocate()
		return node, []NodeWrite{{Node: node, Bytes: buf}}, nil
	}

	normal, bias, left, right := splitChildren(ctx, sem, rng, kernel, dim, vectorOf, ids, opts)

	leftID, leftWrites, err := buildSubtree(ctx, sem, limiter, rng, kernel, dim, vectorOf, left, alloc, opts)
	if err != nil {
		return 0, nil, err
	}
	rightID, rightWrites, err := buildSubtree(ctx, sem, limiter, rng, kernel, dim, vectorOf, right, alloc, opts)
	if err != nil {
		return 0, nil, err
	}

	buf := codec.EncodeSplit(kernel.Metric(), normal, bias, leftID, rightID)
	if err := waitIO(ctx, limiter, len(buf)); err != nil {
		return 0, nil, err
	}
	node := alloc.allocate()
	writes := make([]NodeWrite, 0, len(leftWrites)+len(rightWrites)+1)
	writes = append(writes, leftWrites...)
	writes = append(writes, rightWrites...)
	writes = append(writes, NodeWrite{Node: node, Bytes: buf})
	return node, writes, nil
}

// splitChildren implements spec §4.4 steps 3-5: sample a hyperplane
// (retrying up to MaxAttempts times, falling back to a random bisection if
// the split remains too imbalanced), partition ids into left/right, and
// assign undecided items to the smaller side with a fair coin.
func splitChildren(ctx context.Context, sem *semaphore.Weighted, rng *rand.Rand, kernel distance.Kernel, dim int, vectorOf func(core.ItemID) []float32, ids []core.ItemID, opts Options) (normal []float32, bias float32, left, right []core.ItemID) {
	attempts := opts.MaxAttempts
	for {
		normal, bias = sampleHyperplane(ctx, sem, rng, kernel, dim, vectorOf, ids, opts)
		left, right, undecided := partition(kernel, vectorOf, ids, normal, bias)
		left, right = assignUndecided(rng, left, right, undecided)

		imb := splitImbalance(len(left), len(right))
		if imb < opts.ImbalanceAccept || attempts == 0 {
			if imb > opts.ImbalanceRandomFallback {
				left, right = randomBisection(rng, ids)
			}
			return normal, bias, left, right
		}
		attempts--
	}
}

// sampleHyperplane picks two points from ids and derives a separating
// hyperplane. For Euclidean it first refines the two points via two-means;
// other metrics sample uniformly, per spec §4.4 step 3 and the resolved
// UsesTwoMeans scope (distance package DESIGN notes).
func sampleHyperplane(ctx context.Context, sem *semaphore.Weighted, rng *rand.Rand, kernel distance.Kernel, dim int, vectorOf func(core.ItemID) []float32, ids []core.ItemID, opts Options) ([]float32, float32) {
	i, j := rng.Intn(len(ids)), rng.Intn(len(ids))
	for j == i {
		j = rng.Intn(len(ids))
	}
	p, q := vectorOf(ids[i]), vectorOf(ids[j])

	if kernel.UsesTwoMeans() {
		refinedP, refinedQ, err := twoMeans(ctx, sem, rng, ids, vectorOf, kernel.WorkingDimension(dim), p, q, opts)
		if err == nil {
			p, q = refinedP, refinedQ
		}
	}

	return kernel.HyperplaneFromPoints(p, q)
}

func partition(kernel distance.Kernel, vectorOf func(core.ItemID) []float32, ids []core.ItemID, normal []float32, bias float32) (left, right, undecided []core.ItemID) {
	for _, id := range ids {
		switch kernel.Side(normal, bias, vectorOf(id)) {
		case distance.SideLeft:
			left = append(left, id)
		case distance.SideRight:
			right = append(right, id)
		default:
			undecided = append(undecided, id)
		}
	}
	return left, right, undecided
}

// assignUndecided appends undecided items to the smaller of left/right,
// breaking a tie in their sizes with a fair coin (spec §4.4 step 5).
func assignUndecided(rng *rand.Rand, left, right, undecided []core.ItemID) ([]core.ItemID, []core.ItemID) {
	if len(undecided) == 0 {
		return left, right
	}
	toLeft := len(left) < len(right) || (len(left) == len(right) && fairCoin(rng))
	if toLeft {
		return append(left, undecided...), right
	}
	return left, append(right, undecided...)
}

func randomBisection(rng *rand.Rand, ids []core.ItemID) (left, right []core.ItemID) {
	for _, id := range ids {
		if fairCoin(rng) {
			left = append(left, id)
		} else {
			right = append(right, id)
		}
	}
	return left, right
}

// float64Epsilon guards the split-imbalance denominator against 0/0.
const float64Epsilon = 2.220446049250313e-16

// splitImbalance is max(f, 1-f) where f is the left fraction.
func splitImbalance(leftLen, rightLen int) float64 {
	l, r := float64(leftLen), float64(rightLen)
	f := l / (l + r + float64Epsilon)
	if f > 1-f {
		return f
	}
	return 1 - f
}
