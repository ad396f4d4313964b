package forestkv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/store/memstore"
)

func TestEndToEndAddBuildSearch(t *testing.T) {
	s := memstore.New()
	f := New(s, 1, distance.Euclidean)

	points := map[core.ItemID][]float32{
		0: {-10, -10},
		1: {-10, 10},
		2: {10, -10},
		3: {10, 10},
		4: {9, 9},
	}
	for id, v := range points {
		require.NoError(t, f.AddItem(id, v))
	}

	require.NoError(t, f.Build(context.Background(), 1, 4))

	dim, err := f.Dimensions()
	require.NoError(t, err)
	require.Equal(t, 2, dim)

	count, err := f.ItemCount()
	require.NoError(t, err)
	require.Equal(t, 5, count)

	results, err := f.NNSByVector([]float32{8, 8}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, core.ItemID(4), results[0].ID)

	violations, err := f.Diagnose()
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestSearchBeforeBuildReturnsErrNeedBuild(t *testing.T) {
	s := memstore.New()
	f := New(s, 1, distance.Euclidean)

	_, err := f.NNSByVector([]float32{1, 2}, 1, 0, nil)
	require.ErrorIs(t, err, ErrNeedBuild)
}

func TestDelItemThenRebuildDropsItemFromResults(t *testing.T) {
	s := memstore.New()
	f := New(s, 1, distance.Euclidean)

	require.NoError(t, f.AddItem(0, []float32{0, 0}))
	require.NoError(t, f.AddItem(1, []float32{100, 100}))
	require.NoError(t, f.Build(context.Background(), 1, 2))

	require.NoError(t, f.DelItem(1))
	require.NoError(t, f.Build(context.Background(), 2, 2))

	ids, err := f.ItemIDs()
	require.NoError(t, err)
	require.Equal(t, []core.ItemID{0}, ids)
}

func TestReopeningWithDifferentMetricReturnsErrMetricMismatch(t *testing.T) {
	s := memstore.New()
	f := New(s, 1, distance.Euclidean)
	require.NoError(t, f.AddItem(0, []float32{1, 2}))
	require.NoError(t, f.Build(context.Background(), 1, 1))

	other := New(s, 1, distance.Cosine)
	require.ErrorIs(t, other.AddItem(1, []float32{3, 4}), ErrMetricMismatch)
}

func TestNNSByVectorRespectsFilter(t *testing.T) {
	s := memstore.New()
	f := New(s, 1, distance.Euclidean)

	for id, v := range map[core.ItemID][]float32{
		0: {0, 0},
		1: {1, 0},
		2: {2, 0},
	} {
		require.NoError(t, f.AddItem(id, v))
	}
	require.NoError(t, f.Build(context.Background(), 1, 2))

	filter := itemset.FromIDs([]core.ItemID{2})
	results, err := f.NNSByVector([]float32{0, 0}, 1, 3, filter)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, core.ItemID(2), results[0].ID)
}
