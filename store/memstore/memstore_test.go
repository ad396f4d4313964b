package memstore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/store"
)

func TestWriteCommitVisibleToNewReaders(t *testing.T) {
	s := New()
	key := store.Key{Tag: 1, Node: core.ItemNodeID(7)}

	before := s.BeginRead()
	_, ok := before.Get(key)
	require.False(t, ok)
	before.Close()

	w := s.BeginWrite()
	w.Put(key, []byte("hello"))
	require.NoError(t, w.Commit())

	after := s.BeginRead()
	b, ok := after.Get(key)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), b)
	after.Close()

	_, ok = before.Get(key)
	require.False(t, ok, "reader opened before the write must not see it")
}

func TestRollbackDiscardsWrites(t *testing.T) {
	s := New()
	key := store.Key{Tag: 1, Node: core.ItemNodeID(1)}

	w := s.BeginWrite()
	w.Put(key, []byte("x"))
	w.Rollback()

	r := s.BeginRead()
	_, ok := r.Get(key)
	require.False(t, ok)
	r.Close()
}

func TestScanInternalSkipsItems(t *testing.T) {
	s := New()
	w := s.BeginWrite()
	w.Put(store.Key{Tag: 2, Node: core.ItemNodeID(3)}, []byte("item"))
	w.Put(store.Key{Tag: 2, Node: core.InternalNodeID(0)}, []byte("split"))
	require.NoError(t, w.Commit())

	r := s.BeginRead()
	defer r.Close()

	seen := map[core.NodeID][]byte{}
	for id, b := range r.ScanInternal(2) {
		seen[id] = b
	}
	require.Len(t, seen, 1)
	require.Equal(t, []byte("split"), seen[core.InternalNodeID(0)])
}

func TestFlushAndOpenFileRoundTrip(t *testing.T) {
	s := New()
	w := s.BeginWrite()
	w.Put(store.Key{Tag: 5, Node: core.ItemNodeID(1)}, []byte("abc"))
	w.Put(store.Key{Tag: 5, Node: core.InternalNodeID(0)}, []byte("defgh"))
	require.NoError(t, w.Commit())

	path := t.TempDir() + "/snap.forestkv"
	require.NoError(t, s.Flush(path))
	defer os.Remove(path)

	fs, err := OpenFile(path)
	require.NoError(t, err)
	defer fs.Close()

	r := fs.BeginRead()
	defer r.Close()

	b, ok := r.Get(store.Key{Tag: 5, Node: core.ItemNodeID(1)})
	require.True(t, ok)
	require.Equal(t, []byte("abc"), b)

	count := 0
	for range r.ScanInternal(5) {
		count++
	}
	require.Equal(t, 1, count)
}
