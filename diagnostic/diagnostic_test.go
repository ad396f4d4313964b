package diagnostic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/store"
	"github.com/forestkv/forestkv/store/memstore"
	"github.com/forestkv/forestkv/writer"
)

const tag core.Tag = 1

func TestWalkFindsNoViolationOnFreshBuild(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := writer.Open(tx, tag, distance.Euclidean, writer.DefaultOptions)
	require.NoError(t, err)

	points := map[core.ItemID][]float32{
		0: {-10, -10},
		1: {-10, 10},
		2: {10, -10},
		3: {10, 10},
		4: {-9, -9},
		5: {9, 9},
		6: {-8, 8},
	}
	for id, v := range points {
		require.NoError(t, w.AddItem(id, v))
	}
	require.NoError(t, w.Build(context.Background(), 1, 5))
	require.NoError(t, w.Commit())

	rtx := s.BeginRead()
	defer rtx.Close()
	violations, err := Walk(rtx, tag)
	require.NoError(t, err)
	require.Empty(t, violations)
}

func TestWalkDetectsItemOutsideActiveSet(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := writer.Open(tx, tag, distance.Euclidean, writer.DefaultOptions)
	require.NoError(t, err)

	require.NoError(t, w.AddItem(0, []float32{1, 1}))
	require.NoError(t, w.AddItem(1, []float32{2, 2}))
	require.NoError(t, w.Build(context.Background(), 1, 1))
	require.NoError(t, w.Commit())

	tx2 := s.BeginWrite()
	tamperedActive := itemset.FromIDs([]core.ItemID{1})
	b, err := tamperedActive.MarshalBinary()
	require.NoError(t, err)
	tx2.Put(store.Key{Tag: tag, Node: core.ActiveSetNodeID}, b)
	require.NoError(t, tx2.Commit())

	rtx := s.BeginRead()
	defer rtx.Close()
	violations, err := Walk(rtx, tag)
	require.NoError(t, err)
	require.NotEmpty(t, violations)
}

func TestWalkOnEmptyIndexHasNoViolation(t *testing.T) {
	s := memstore.New()
	tx := s.BeginWrite()
	w, err := writer.Open(tx, tag, distance.Euclidean, writer.DefaultOptions)
	require.NoError(t, err)
	require.NoError(t, w.Build(context.Background(), 1, 4))
	require.NoError(t, w.Commit())

	rtx := s.BeginRead()
	defer rtx.Close()
	violations, err := Walk(rtx, tag)
	require.NoError(t, err)
	require.Empty(t, violations)
}
