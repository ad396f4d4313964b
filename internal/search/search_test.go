package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/store"
)

type fakeSource map[store.Key][]byte

func (f fakeSource) Get(key store.Key) ([]byte, bool) {
	b, ok := f[key]
	return b, ok
}

// buildFourPointTree builds one hand-rolled Euclidean tree over four 2-D
// points: a single split along x=0 whose two children are descendants
// leaves, {0, 1} on the left and {2, 3} on the right.
func buildFourPointTree(t *testing.T) (fakeSource, core.NodeID, map[core.ItemID][]float32) {
	t.Helper()
	const tag core.Tag = 1
	vecs := map[core.ItemID][]float32{
		0: {-1, -1},
		1: {-1, 1},
		2: {1, -1},
		3: {1, 1},
	}
	src := fakeSource{}
	for id, v := range vecs {
		src[store.Key{Tag: tag, Node: core.ItemNodeID(id)}] = codec.EncodeItem(distance.Euclidean, v, 0)
	}

	leftLeaf := core.InternalNodeID(0)
	rightLeaf := core.InternalNodeID(1)
	left := itemset.FromIDs([]core.ItemID{0, 1})
	right := itemset.FromIDs([]core.ItemID{2, 3})
	leftBuf, err := codec.EncodeDescendants(distance.Euclidean, left)
	require.NoError(t, err)
	rightBuf, err := codec.EncodeDescendants(distance.Euclidean, right)
	require.NoError(t, err)
	src[store.Key{Tag: tag, Node: leftLeaf}] = leftBuf
	src[store.Key{Tag: tag, Node: rightLeaf}] = rightBuf

	root := core.InternalNodeID(2)
	// normal (1,0), bias 0 separates x<0 from x>0.
	splitBuf := codec.EncodeSplit(distance.Euclidean, []float32{1, 0}, 0, leftLeaf, rightLeaf)
	src[store.Key{Tag: tag, Node: root}] = splitBuf

	return src, root, vecs
}

func TestRunFindsNearestNeighbor(t *testing.T) {
	src, root, vecs := buildFourPointTree(t)
	kernel, err := distance.NewKernel(distance.Euclidean)
	require.NoError(t, err)

	results, err := Run(src, Params{
		Tag:       1,
		Kernel:    kernel,
		Dimension: 2,
		Roots:     []core.NodeID{root},
		Query:     []float32{0.9, 0.9},
		K:         1,
		SearchK:   4,
		VectorOf: func(id core.ItemID) ([]float32, bool) {
			v, ok := vecs[id]
			return v, ok
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, core.ItemID(3), results[0].ID)
}

func TestRunRespectsFilter(t *testing.T) {
	src, root, vecs := buildFourPointTree(t)
	kernel, err := distance.NewKernel(distance.Euclidean)
	require.NoError(t, err)

	filter := itemset.FromIDs([]core.ItemID{0, 1, 2})
	results, err := Run(src, Params{
		Tag:       1,
		Kernel:    kernel,
		Dimension: 2,
		Roots:     []core.NodeID{root},
		Query:     []float32{0.9, 0.9},
		K:         1,
		SearchK:   4,
		Filter:    filter,
		VectorOf: func(id core.ItemID) ([]float32, bool) {
			v, ok := vecs[id]
			return v, ok
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotEqual(t, core.ItemID(3), results[0].ID, "item 3 is excluded by the filter")
}

func TestRunTopKTieBreakByAscendingID(t *testing.T) {
	const tag core.Tag = 9
	src := fakeSource{}
	ids := itemset.FromIDs([]core.ItemID{5, 2, 8})
	buf, err := codec.EncodeDescendants(distance.Euclidean, ids)
	require.NoError(t, err)
	leaf := core.InternalNodeID(0)
	src[store.Key{Tag: tag, Node: leaf}] = buf

	vecs := map[core.ItemID][]float32{5: {0, 0}, 2: {0, 0}, 8: {0, 0}}
	kernel, err := distance.NewKernel(distance.Euclidean)
	require.NoError(t, err)

	results, err := Run(src, Params{
		Tag:       tag,
		Kernel:    kernel,
		Dimension: 2,
		Roots:     []core.NodeID{leaf},
		Query:     []float32{0, 0},
		K:         3,
		SearchK:   3,
		VectorOf: func(id core.ItemID) ([]float32, bool) {
			v, ok := vecs[id]
			return v, ok
		},
	})
	require.NoError(t, err)
	require.Equal(t, []core.ItemID{2, 5, 8}, []core.ItemID{results[0].ID, results[1].ID, results[2].ID})
}
