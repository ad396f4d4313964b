// Package builder implements the random-projection forest construction from
// spec §4.4: recursive hyperplane partitioning per tree, dispatched across
// bounded parallel workers with per-tree deterministic RNG streams and a
// striped internal-id allocator so builds are byte-identical given the same
// inputs regardless of worker count.
package builder

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
)

// NodeWrite is one encoded node produced by a build, ready to hand to a
// store.WriteTx.
type NodeWrite struct {
	Node  core.NodeID
	Bytes []byte
}

// Input bundles everything a build needs about the active item set.
type Input struct {
	Kernel      distance.Kernel
	Dimension   int
	ActiveItems []core.ItemID
	// VectorOf returns an item's stored (unaugmented) vector.
	VectorOf func(core.ItemID) []float32
	// NormOf returns an item's cached L2 norm (spec §4.2's item trailer);
	// ignored by metrics whose kernel does not use it.
	NormOf func(core.ItemID) float32
	Seed   uint64
}

// Output is a completed forest: root ids (one per tree, a single item root
// when the active set has exactly one member, none when it is empty) and
// every node it wrote.
type Output struct {
	Roots     []core.NodeID
	Writes    []NodeWrite
	BachrachM float32
}

// Build runs the forest construction described in spec §4.4.
func Build(ctx context.Context, in Input, opts Options) (*Output, error) {
	opts = opts.withDefaults(in.Dimension)
	if opts.Concurrency == 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}

	if len(in.ActiveItems) == 0 {
		return &Output{}, nil
	}
	if len(in.ActiveItems) == 1 {
		return &Output{Roots: []core.NodeID{core.ItemNodeID(in.ActiveItems[0])}}, nil
	}

	var bachrachM float32
	if in.Kernel.Metric() == distance.Dot {
		norms := make([]float32, len(in.ActiveItems))
		for i, id := range in.ActiveItems {
			norms[i] = in.NormOf(id)
		}
		bachrachM = distance.BachrachM(norms)
	}

	working := make(map[core.ItemID][]float32, len(in.ActiveItems))
	for _, id := range in.ActiveItems {
		working[id] = in.Kernel.PrepareItem(in.VectorOf(id), in.NormOf(id), bachrachM)
	}
	vectorOf := func(id core.ItemID) []float32 { return working[id] }

	stripe := uint32(2*len(in.ActiveItems) + 1)
	sem := semaphore.NewWeighted(int64(opts.Concurrency))

	var limiter *rate.Limiter
	if opts.IOWriteBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.IOWriteBytesPerSec), int(opts.IOWriteBytesPerSec))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	roots := make([]core.NodeID, opts.NTrees)
	writesPerTree := make([][]NodeWrite, opts.NTrees)

	for t := 0; t < opts.NTrees; t++ {
		t := t
		g.Go(func() error {
			rng := newTreeRNG(in.Seed, t)
			alloc := &idAllocator{next: uint32(t) * stripe}
			root, writes, err := buildSubtree(gctx, sem, limiter, rng, in.Kernel, in.Dimension, vectorOf, append([]core.ItemID(nil), in.ActiveItems...), alloc, opts)
			if err != nil {
				return err
			}
			roots[t] = root
			writesPerTree[t] = writes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, w := range writesPerTree {
		total += len(w)
	}
	writes := make([]NodeWrite, 0, total)
	for _, w := range writesPerTree {
		writes = append(writes, w...)
	}

	opts.Logger.Debug("forestkv: build complete", "trees", opts.NTrees, "items", len(in.ActiveItems), "nodes", len(writes))

	return &Output{Roots: roots, Writes: writes, BachrachM: bachrachM}, nil
}

// idAllocator hands out monotonically increasing internal node ids within a
// tree's pre-reserved stripe. Not safe for concurrent use; each tree owns
// its own allocator.
type idAllocator struct {
	next uint32
}

func (a *idAllocator) allocate() core.NodeID {
	id := core.InternalNodeID(a.next)
	a.next++
	return id
}
