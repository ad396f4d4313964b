// Package reader implements the read-only query façade from spec §4.5/§4.7:
// opening a tag's committed snapshot, exposing its item vectors, and running
// nearest-neighbor search by query vector or by existing item id.
package reader

import (
	"errors"
	"fmt"

	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/internal/search"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/store"
)

// ErrNeedBuild is returned by Open when a tag has never had a metadata
// record written for it — spec §7's NeedBuild condition.
var ErrNeedBuild = errors.New("reader: index has not been built")

// ErrDimensionMismatch is returned when a query vector's length does not
// match the index's bound dimension.
var ErrDimensionMismatch = errors.New("reader: dimension mismatch")

// ErrItemNotFound is returned by NNSByItem when the given id is not in the
// index's active set.
var ErrItemNotFound = errors.New("reader: item not found")

// Reader is a read-only view of one tag's committed snapshot, bound to a
// single store.ReadTx for its whole lifetime.
type Reader struct {
	tx     store.ReadTx
	tag    core.Tag
	kernel distance.Kernel
	meta   codec.Metadata
	active *itemset.Set
	opts   Options
}

// Open resolves tag's metadata record and active item set within tx. It
// returns ErrNeedBuild if the tag has no metadata record yet.
func Open(tx store.ReadTx, tag core.Tag, opts Options) (*Reader, error) {
	opts = opts.withDefaults()

	buf, ok := tx.Get(store.Key{Tag: tag, Node: core.MetadataNodeID})
	if !ok {
		return nil, ErrNeedBuild
	}
	meta, err := codec.DecodeMetadata(buf)
	if err != nil {
		return nil, err
	}
	if meta.Version > codec.FormatVersion {
		return nil, fmt.Errorf("reader: tag %d was written by format version %d, newer than %d", tag, meta.Version, codec.FormatVersion)
	}
	kernel, err := distance.NewKernel(meta.Metric)
	if err != nil {
		return nil, err
	}

	for _, root := range meta.Roots {
		rootBuf, ok := tx.Get(store.Key{Tag: tag, Node: root})
		if !ok {
			return nil, fmt.Errorf("reader: root node %d missing for tag %d", root, tag)
		}
		_, rootMetric, err := codec.PeekHeader(rootBuf)
		if err != nil {
			return nil, err
		}
		if rootMetric != meta.Metric {
			return nil, fmt.Errorf("reader: root node %d has metric %v, metadata says %v", root, rootMetric, meta.Metric)
		}
	}

	active := itemset.New()
	if setBuf, ok := tx.Get(store.Key{Tag: tag, Node: core.ActiveSetNodeID}); ok {
		if err := active.UnmarshalBinary(setBuf); err != nil {
			return nil, err
		}
	}

	return &Reader{tx: tx, tag: tag, kernel: kernel, meta: meta, active: active, opts: opts}, nil
}

// Close releases the underlying read transaction.
func (r *Reader) Close() { r.tx.Close() }

// Dimensions returns the index's stored vector dimension.
func (r *Reader) Dimensions() int { return int(r.meta.Dimension) }

// Metric returns the index's distance metric.
func (r *Reader) Metric() distance.Metric { return r.meta.Metric }

// ItemCount returns the number of items in the active set.
func (r *Reader) ItemCount() int { return r.active.Cardinality() }

// ItemIDs returns every active item id, in ascending order.
func (r *Reader) ItemIDs() []core.ItemID { return r.active.ToSlice() }

// ItemVector returns a copy of id's stored vector, and whether id is active.
func (r *Reader) ItemVector(id core.ItemID) ([]float32, bool) {
	vec, _, ok := r.storedVector(id)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// NNSByVector runs spec §4.7's search for the k items nearest query. A
// searchK of 0 selects the SUPPLEMENTED FEATURES default of k times the
// number of trees.
func (r *Reader) NNSByVector(query []float32, k, searchK int, filter *itemset.Set) ([]search.Result, error) {
	if len(query) != r.Dimensions() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, r.Dimensions(), len(query))
	}
	working := r.kernel.PrepareQuery(query, r.meta.BachrachM)
	return search.Run(r.tx, search.Params{
		Tag:       r.tag,
		Kernel:    r.kernel,
		Dimension: r.Dimensions(),
		Roots:     r.meta.Roots,
		Query:     working,
		K:         k,
		SearchK:   r.resolveSearchK(k, searchK),
		Filter:    filter,
		VectorOf:  r.workingVector,
	})
}

// NNSByItem runs the same search using an existing active item as the
// query, per spec §4.7's "search by id" convenience.
func (r *Reader) NNSByItem(id core.ItemID, k, searchK int, filter *itemset.Set) ([]search.Result, error) {
	stored, norm, ok := r.storedVector(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrItemNotFound, id)
	}
	working := r.kernel.PrepareItem(stored, norm, r.meta.BachrachM)
	return search.Run(r.tx, search.Params{
		Tag:       r.tag,
		Kernel:    r.kernel,
		Dimension: r.Dimensions(),
		Roots:     r.meta.Roots,
		Query:     working,
		K:         k,
		SearchK:   r.resolveSearchK(k, searchK),
		Filter:    filter,
		VectorOf:  r.workingVector,
	})
}

func (r *Reader) resolveSearchK(k, searchK int) int {
	if searchK > 0 {
		return searchK
	}
	nTrees := len(r.meta.Roots)
	if nTrees == 0 {
		nTrees = 1
	}
	return k * nTrees
}

func (r *Reader) storedVector(id core.ItemID) (vector []float32, norm float32, ok bool) {
	if !r.active.Contains(id) {
		return nil, 0, false
	}
	buf, found := r.tx.Get(store.Key{Tag: r.tag, Node: core.ItemNodeID(id)})
	if !found {
		return nil, 0, false
	}
	vec, n, err := codec.DecodeItem(buf, r.meta.Metric, r.Dimensions())
	if err != nil {
		r.opts.Logger.Error("forestkv: corrupt item node", "tag", r.tag, "item", id, "error", err)
		return nil, 0, false
	}
	return vec, n, true
}

func (r *Reader) workingVector(id core.ItemID) ([]float32, bool) {
	stored, norm, ok := r.storedVector(id)
	if !ok {
		return nil, false
	}
	return r.kernel.PrepareItem(stored, norm, r.meta.BachrachM), true
}
