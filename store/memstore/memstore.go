// Package memstore is the reference store.Store implementation: an
// in-memory, copy-on-write map of tagged node records, with an optional
// read-only mode that memory-maps a previously flushed snapshot file for
// zero-copy queries. The concurrency shape — a single mutex serializing
// writers, immutable snapshots published through an atomic pointer so
// readers never block — keeps write and read paths fully decoupled.
package memstore

import (
	"iter"
	"sync"
	"sync/atomic"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/store"
)

type snapshot struct {
	tags map[core.Tag]map[core.NodeID][]byte
}

func emptySnapshot() *snapshot {
	return &snapshot{tags: make(map[core.Tag]map[core.NodeID][]byte)}
}

func (s *snapshot) clone() *snapshot {
	out := &snapshot{tags: make(map[core.Tag]map[core.NodeID][]byte, len(s.tags))}
	for tag, nodes := range s.tags {
		cloned := make(map[core.NodeID][]byte, len(nodes))
		for id, b := range nodes {
			cloned[id] = b
		}
		out.tags[tag] = cloned
	}
	return out
}

// Store is an in-memory, mutable store.Store.
type Store struct {
	snap    atomic.Pointer[snapshot]
	writeMu sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	s.snap.Store(emptySnapshot())
	return s
}

func (s *Store) BeginRead() store.ReadTx {
	return &readTx{snap: s.snap.Load()}
}

func (s *Store) BeginWrite() store.WriteTx {
	s.writeMu.Lock()
	return &writeTx{
		store: s,
		base:  s.snap.Load(),
		work:  s.snap.Load().clone(),
	}
}

func (s *Store) Close() error { return nil }

// current returns the store's current committed snapshot for use by
// Flush; it is not part of the store.Store interface.
func (s *Store) current() *snapshot {
	return s.snap.Load()
}

type readTx struct {
	snap *snapshot
}

func (r *readTx) Get(key store.Key) ([]byte, bool) {
	nodes, ok := r.snap.tags[key.Tag]
	if !ok {
		return nil, false
	}
	b, ok := nodes[key.Node]
	return b, ok
}

func (r *readTx) ScanInternal(tag core.Tag) iter.Seq2[core.NodeID, []byte] {
	return func(yield func(core.NodeID, []byte) bool) {
		nodes := r.snap.tags[tag]
		for id, b := range nodes {
			if !id.IsInternal() {
				continue
			}
			if !yield(id, b) {
				return
			}
		}
	}
}

func (r *readTx) Close() {}

type writeTx struct {
	store *Store
	base  *snapshot
	work  *snapshot
}

func (w *writeTx) Get(key store.Key) ([]byte, bool) {
	nodes, ok := w.work.tags[key.Tag]
	if !ok {
		return nil, false
	}
	b, ok := nodes[key.Node]
	return b, ok
}

func (w *writeTx) ScanInternal(tag core.Tag) iter.Seq2[core.NodeID, []byte] {
	return func(yield func(core.NodeID, []byte) bool) {
		nodes := w.work.tags[tag]
		for id, b := range nodes {
			if !id.IsInternal() {
				continue
			}
			if !yield(id, b) {
				return
			}
		}
	}
}

func (w *writeTx) Put(key store.Key, value []byte) {
	nodes, ok := w.work.tags[key.Tag]
	if !ok {
		nodes = make(map[core.NodeID][]byte)
		w.work.tags[key.Tag] = nodes
	}
	nodes[key.Node] = value
}

func (w *writeTx) Delete(key store.Key) {
	if nodes, ok := w.work.tags[key.Tag]; ok {
		delete(nodes, key.Node)
	}
}

func (w *writeTx) Commit() error {
	defer w.store.writeMu.Unlock()
	w.store.snap.Store(w.work)
	return nil
}

func (w *writeTx) Rollback() {
	w.store.writeMu.Unlock()
}
