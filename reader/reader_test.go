package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/store/memstore"
	"github.com/forestkv/forestkv/writer"
)

const tag core.Tag = 1

func buildFourCorners(t *testing.T, metric distance.Metric) *memstore.Store {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := writer.Open(tx, tag, metric, writer.DefaultOptions)
	require.NoError(t, err)

	points := map[core.ItemID][]float32{
		0: {-10, -10},
		1: {-10, 10},
		2: {10, -10},
		3: {10, 10},
		4: {-9, -9},
	}
	for id, v := range points {
		require.NoError(t, w.AddItem(id, v))
	}
	require.NoError(t, w.Build(context.Background(), 1, 4))
	require.NoError(t, w.Commit())
	return s
}

func TestOpenReturnsNeedBuildWithoutMetadata(t *testing.T) {
	s := memstore.New()
	rtx := s.BeginRead()
	defer rtx.Close()
	_, err := Open(rtx, tag, DefaultOptions)
	require.ErrorIs(t, err, ErrNeedBuild)
}

func TestReaderExposesItemsAndDimension(t *testing.T) {
	s := buildFourCorners(t, distance.Euclidean)
	rtx := s.BeginRead()
	defer rtx.Close()

	r, err := Open(rtx, tag, DefaultOptions)
	require.NoError(t, err)
	require.Equal(t, 2, r.Dimensions())
	require.Equal(t, distance.Euclidean, r.Metric())
	require.Equal(t, 5, r.ItemCount())

	v, ok := r.ItemVector(0)
	require.True(t, ok)
	require.Equal(t, []float32{-10, -10}, v)

	_, ok = r.ItemVector(999)
	require.False(t, ok)
}

func TestNNSByVectorFindsNearestCorner(t *testing.T) {
	s := buildFourCorners(t, distance.Euclidean)
	rtx := s.BeginRead()
	defer rtx.Close()

	r, err := Open(rtx, tag, DefaultOptions)
	require.NoError(t, err)

	results, err := r.NNSByVector([]float32{9, 9}, 1, 0, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, core.ItemID(3), results[0].ID)
}

func TestNNSByItemExcludesNothingBySelf(t *testing.T) {
	s := buildFourCorners(t, distance.Euclidean)
	rtx := s.BeginRead()
	defer rtx.Close()

	r, err := Open(rtx, tag, DefaultOptions)
	require.NoError(t, err)

	results, err := r.NNSByItem(0, 2, 0, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, core.ItemID(0), results[0].ID)
	require.Equal(t, float32(0), results[0].Distance)
}

func TestNNSByVectorRejectsWrongDimension(t *testing.T) {
	s := buildFourCorners(t, distance.Euclidean)
	rtx := s.BeginRead()
	defer rtx.Close()

	r, err := Open(rtx, tag, DefaultOptions)
	require.NoError(t, err)

	_, err = r.NNSByVector([]float32{1, 2, 3}, 1, 0, nil)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNNSByItemRejectsUnknownID(t *testing.T) {
	s := buildFourCorners(t, distance.Euclidean)
	rtx := s.BeginRead()
	defer rtx.Close()

	r, err := Open(rtx, tag, DefaultOptions)
	require.NoError(t, err)

	_, err = r.NNSByItem(999, 1, 0, nil)
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestConcurrentReadersSeeSnapshotAtOpenTime(t *testing.T) {
	s := buildFourCorners(t, distance.Euclidean)

	rtx1 := s.BeginRead()
	defer rtx1.Close()
	r1, err := Open(rtx1, tag, DefaultOptions)
	require.NoError(t, err)

	tx2 := s.BeginWrite()
	w2, err := writer.Open(tx2, tag, distance.Euclidean, writer.DefaultOptions)
	require.NoError(t, err)
	require.NoError(t, w2.AddItem(99, []float32{0, 0}))
	require.NoError(t, w2.Build(context.Background(), 2, 4))
	require.NoError(t, w2.Commit())

	require.Equal(t, 5, r1.ItemCount())

	rtx3 := s.BeginRead()
	defer rtx3.Close()
	r3, err := Open(rtx3, tag, DefaultOptions)
	require.NoError(t, err)
	require.Equal(t, 6, r3.ItemCount())
}
