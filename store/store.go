// Package store defines the storage abstraction spec §4.3 requires: point
// get/put/delete keyed by (tag, node id), range iteration over a tag's
// internal nodes, and transactional semantics distinguishing concurrent
// snapshot-isolated read transactions from a single serializable write
// transaction. Every other package — builder, writer, reader, search —
// reaches storage only through these interfaces; store/memstore is the
// reference implementation.
package store

import (
	"iter"

	"github.com/forestkv/forestkv/core"
)

// Key addresses one node record: a tag namespace and a node id within it.
// core.MetadataNodeID is the reserved key for a tag's metadata record.
type Key struct {
	Tag  core.Tag
	Node core.NodeID
}

// ReadTx is a snapshot-isolated read transaction. Multiple ReadTx values may
// be open concurrently, including concurrently with a WriteTx; none observe
// mutations committed after they began.
type ReadTx interface {
	// Get returns the bytes stored at key, and whether it exists.
	Get(key Key) ([]byte, bool)

	// ScanInternal iterates every internal (split or descendants) node
	// stored for tag, in unspecified order. Item nodes are not visited;
	// callers that need item ids use the tag's active item set instead.
	ScanInternal(tag core.Tag) iter.Seq2[core.NodeID, []byte]

	// Close releases the snapshot. Further use of the ReadTx is invalid.
	Close()
}

// WriteTx is the single outstanding write transaction. It sees its own
// uncommitted writes but, like a ReadTx, does not see concurrent commits
// (there are none, since only one WriteTx may be open at a time).
type WriteTx interface {
	ReadTx

	// Put writes or overwrites the bytes stored at key.
	Put(key Key, value []byte)

	// Delete removes key if present; a no-op otherwise.
	Delete(key Key)

	// Commit publishes all writes as a new snapshot visible to ReadTx
	// transactions begun after Commit returns. The WriteTx is invalid
	// afterward.
	Commit() error

	// Rollback discards all writes made in this transaction, leaving the
	// store's committed snapshot unchanged. The WriteTx is invalid
	// afterward.
	Rollback()
}

// Store opens transactions against a backing set of tagged node records.
type Store interface {
	BeginRead() ReadTx

	// BeginWrite blocks until any other open WriteTx has committed or
	// rolled back, then returns a fresh write transaction over the current
	// snapshot.
	BeginWrite() WriteTx

	// Close releases any resources (open files, mappings) held by the
	// store. No transaction may be open when Close is called.
	Close() error
}
