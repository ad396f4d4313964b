package writer

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/store"
	"github.com/forestkv/forestkv/store/memstore"
)

const tag core.Tag = 1

func TestAddItemBindsDimensionOnFirstCall(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := Open(tx, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)

	require.NoError(t, w.AddItem(1, []float32{1, 2, 3}))
	require.Equal(t, StatePopulated, w.State())

	err = w.AddItem(2, []float32{1, 2})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAddItemRejectsNonFiniteComponents(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := Open(tx, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)

	err = w.AddItem(1, []float32{1, float32(math.NaN())})
	require.ErrorIs(t, err, ErrInvalidVector)
}

func TestBuildThenCommitPublishesRoots(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := Open(tx, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)

	points := map[core.ItemID][]float32{
		0: {-10, -10},
		1: {-10, 10},
		2: {10, -10},
		3: {10, 10},
	}
	for id, v := range points {
		require.NoError(t, w.AddItem(id, v))
	}

	require.NoError(t, w.Build(context.Background(), 1, 3))
	require.Equal(t, StateBuilt, w.State())
	require.NoError(t, w.Commit())
	require.Equal(t, StateCommitted, w.State())

	rtx := s.BeginRead()
	defer rtx.Close()
	buf, ok := rtx.Get(store.Key{Tag: tag, Node: core.MetadataNodeID})
	require.True(t, ok)
	meta, err := codec.DecodeMetadata(buf)
	require.NoError(t, err)
	require.Len(t, meta.Roots, 3)
	require.EqualValues(t, 4, meta.ItemCount)
}

func TestBuildWithNoItemsProducesEmptyRoots(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := Open(tx, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)

	require.NoError(t, w.Build(context.Background(), 1, 4))
	require.NoError(t, w.Commit())

	rtx := s.BeginRead()
	defer rtx.Close()
	buf, ok := rtx.Get(store.Key{Tag: tag, Node: core.MetadataNodeID})
	require.True(t, ok)
	meta, err := codec.DecodeMetadata(buf)
	require.NoError(t, err)
	require.Empty(t, meta.Roots)
}

func TestDelItemDropsBuiltBackToPopulated(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := Open(tx, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)

	require.NoError(t, w.AddItem(1, []float32{1, 2}))
	require.NoError(t, w.AddItem(2, []float32{3, 4}))
	require.NoError(t, w.Build(context.Background(), 1, 2))
	require.Equal(t, StateBuilt, w.State())

	require.NoError(t, w.DelItem(1))
	require.Equal(t, StatePopulated, w.State())
}

func TestClearResetsToOpenAndUnbindsDimension(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := Open(tx, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)

	require.NoError(t, w.AddItem(1, []float32{1, 2, 3}))
	require.NoError(t, w.Clear())
	require.Equal(t, StateOpen, w.State())

	require.NoError(t, w.AddItem(1, []float32{9}))
}

func TestReopenResumesActiveSetAndDimension(t *testing.T) {
	s := memstore.New()

	tx1 := s.BeginWrite()
	w1, err := Open(tx1, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)
	require.NoError(t, w1.AddItem(7, []float32{1, 1, 1}))
	require.NoError(t, w1.Commit())

	tx2 := s.BeginWrite()
	w2, err := Open(tx2, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)
	require.Equal(t, StatePopulated, w2.State())

	err = w2.AddItem(8, []float32{1, 1})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOpenRejectsMismatchedMetric(t *testing.T) {
	s := memstore.New()

	tx1 := s.BeginWrite()
	w1, err := Open(tx1, tag, distance.Euclidean, DefaultOptions)
	require.NoError(t, err)
	require.NoError(t, w1.AddItem(1, []float32{1, 2}))
	require.NoError(t, w1.Build(context.Background(), 1, 1))
	require.NoError(t, w1.Commit())

	tx2 := s.BeginWrite()
	_, err = Open(tx2, tag, distance.Cosine, DefaultOptions)
	require.ErrorIs(t, err, ErrMetricMismatch)
}
