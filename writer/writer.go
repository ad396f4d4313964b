// Package writer implements the OPEN → POPULATED → BUILT → COMMITTED
// façade from spec §4.5: item ingest, forest construction via the builder
// package, and the transaction commit that publishes a new snapshot.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/forestkv/forestkv/builder"
	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/store"
)

// State is one of the façade's lifecycle stages.
type State uint8

const (
	StateOpen State = iota
	StatePopulated
	StateBuilt
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StatePopulated:
		return "populated"
	case StateBuilt:
		return "built"
	case StateCommitted:
		return "committed"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidState is returned when an operation is called from a state
	// that does not permit it.
	ErrInvalidState = errors.New("writer: invalid state for operation")
	// ErrInvalidVector is returned when a vector is empty or has a
	// non-finite component.
	ErrInvalidVector = errors.New("writer: invalid vector")
	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index's bound dimension.
	ErrDimensionMismatch = errors.New("writer: dimension mismatch")
	// ErrMetricMismatch is returned when Open is called with a metric
	// different from the one a tag's existing metadata record was built
	// with.
	ErrMetricMismatch = errors.New("writer: metric mismatch")
)

// Options configures a Writer.
type Options struct {
	Builder builder.Options
	Logger  *slog.Logger
}

// DefaultOptions mirrors builder.DefaultOptions.
var DefaultOptions = Options{
	Builder: builder.DefaultOptions,
	Logger:  slog.New(slog.DiscardHandler),
}

// Writer is the façade from spec §4.5, bound to one (store.WriteTx, tag)
// pair for its whole lifetime.
type Writer struct {
	tx     store.WriteTx
	tag    core.Tag
	metric distance.Metric
	kernel distance.Kernel
	opts   Options

	dimension      int
	dimensionBound bool

	active *itemset.Set
	state  State
}

// Open begins a writer façade for tag within tx. A non-empty persisted
// active set resumes the writer in POPULATED; the dimension is taken from
// the metadata record if one exists, else from a stored item node. A tag
// with neither starts OPEN and unbound.
func Open(tx store.WriteTx, tag core.Tag, metric distance.Metric, opts Options) (*Writer, error) {
	kernel, err := distance.NewKernel(metric)
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = DefaultOptions.Logger
	}

	w := &Writer{
		tx:     tx,
		tag:    tag,
		metric: metric,
		kernel: kernel,
		opts:   opts,
		active: itemset.New(),
		state:  StateOpen,
	}

	if buf, ok := tx.Get(store.Key{Tag: tag, Node: core.MetadataNodeID}); ok {
		meta, err := codec.DecodeMetadata(buf)
		if err != nil {
			return nil, err
		}
		if meta.Metric != metric {
			return nil, fmt.Errorf("%w: tag %d was built with metric %v, not %v", ErrMetricMismatch, tag, meta.Metric, metric)
		}
		w.dimension = int(meta.Dimension)
		w.dimensionBound = true
	}
	if buf, ok := tx.Get(store.Key{Tag: tag, Node: core.ActiveSetNodeID}); ok {
		if err := w.active.UnmarshalBinary(buf); err != nil {
			return nil, err
		}
	}
	if w.active.Cardinality() > 0 {
		w.state = StatePopulated
	}
	// Without a metadata record, recover the dimension bound by the first
	// AddItem from a stored item node: 4-byte header, D floats, and a 4-byte
	// norm trailer for Cosine/Dot.
	for id := range w.active.Iterator() {
		if w.dimensionBound {
			break
		}
		if buf, ok := tx.Get(store.Key{Tag: tag, Node: core.ItemNodeID(id)}); ok {
			body := len(buf) - 4
			if metric == distance.Cosine || metric == distance.Dot {
				body -= 4
			}
			w.dimension, w.dimensionBound = body/4, true
		}
	}
	return w, nil
}

// State returns the writer's current lifecycle stage.
func (w *Writer) State() State { return w.state }

// ItemCount returns the number of items currently in the active set.
func (w *Writer) ItemCount() int { return w.active.Cardinality() }

// AddItem validates and stores an item vector, requiring OPEN or POPULATED.
// The first call on an unbound writer fixes the index's dimension.
func (w *Writer) AddItem(id core.ItemID, vector []float32) error {
	if w.state != StateOpen && w.state != StatePopulated {
		return fmt.Errorf("%w: add_item in state %v", ErrInvalidState, w.state)
	}
	if err := validateVector(vector); err != nil {
		return err
	}
	if !w.dimensionBound {
		w.dimension = len(vector)
		w.dimensionBound = true
	} else if len(vector) != w.dimension {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, w.dimension, len(vector))
	}

	norm := w.kernel.Norm(vector)
	w.tx.Put(store.Key{Tag: w.tag, Node: core.ItemNodeID(id)}, codec.EncodeItem(w.metric, vector, norm))
	w.active.Add(id)
	w.persistActiveSet()
	w.state = StatePopulated
	return nil
}

// DelItem removes id from the active set and deletes its item node. If the
// index was BUILT, it drops back to POPULATED since the existing roots may
// now reference a removed item.
func (w *Writer) DelItem(id core.ItemID) error {
	if w.state == StateCommitted {
		return fmt.Errorf("%w: del_item in state %v", ErrInvalidState, w.state)
	}
	w.tx.Delete(store.Key{Tag: w.tag, Node: core.ItemNodeID(id)})
	w.active.Remove(id)
	w.persistActiveSet()
	if w.state == StateBuilt {
		w.state = StatePopulated
	}
	return nil
}

// Clear removes every item and internal node for this tag, resetting the
// writer to OPEN with its dimension unbound.
func (w *Writer) Clear() error {
	if w.state == StateCommitted {
		return fmt.Errorf("%w: clear in state %v", ErrInvalidState, w.state)
	}
	for id := range w.active.Iterator() {
		w.tx.Delete(store.Key{Tag: w.tag, Node: core.ItemNodeID(id)})
	}
	for id := range w.tx.ScanInternal(w.tag) {
		w.tx.Delete(store.Key{Tag: w.tag, Node: id})
	}
	w.tx.Delete(store.Key{Tag: w.tag, Node: core.MetadataNodeID})
	w.active = itemset.New()
	w.persistActiveSet()
	w.dimensionBound = false
	w.dimension = 0
	w.state = StateOpen
	return nil
}

// Build runs the builder over the active set and writes the resulting
// forest and metadata. Requires OPEN or POPULATED. seed is the build's
// master RNG seed; nTrees of 0 selects builder.DefaultNTrees(dimension).
func (w *Writer) Build(ctx context.Context, seed uint64, nTrees int) error {
	if w.state != StateOpen && w.state != StatePopulated {
		return fmt.Errorf("%w: build in state %v", ErrInvalidState, w.state)
	}

	for id := range w.tx.ScanInternal(w.tag) {
		w.tx.Delete(store.Key{Tag: w.tag, Node: id})
	}

	ids := w.active.ToSlice()
	opts := w.opts.Builder
	opts.Logger = w.opts.Logger
	if nTrees > 0 {
		opts.NTrees = nTrees
	}

	out, err := builder.Build(ctx, builder.Input{
		Kernel:      w.kernel,
		Dimension:   w.dimension,
		ActiveItems: ids,
		VectorOf:    w.storedVector,
		NormOf:      w.storedNorm,
		Seed:        seed,
	}, opts)
	if err != nil {
		return err
	}

	for _, nw := range out.Writes {
		w.tx.Put(store.Key{Tag: w.tag, Node: nw.Node}, nw.Bytes)
	}

	meta := codec.Metadata{
		Version:   codec.FormatVersion,
		Metric:    w.metric,
		Dimension: uint32(w.dimension),
		ItemCount: uint64(len(ids)),
		Seed:      seed,
		Roots:     out.Roots,
		BachrachM: out.BachrachM,
	}
	w.tx.Put(store.Key{Tag: w.tag, Node: core.MetadataNodeID}, codec.EncodeMetadata(meta))

	w.opts.Logger.Debug("forestkv: writer build", "tag", w.tag, "items", len(ids), "trees", len(out.Roots))
	w.state = StateBuilt
	return nil
}

// Commit finalizes the outer write transaction. Requires any state other
// than COMMITTED.
func (w *Writer) Commit() error {
	if w.state == StateCommitted {
		return fmt.Errorf("%w: commit in state %v", ErrInvalidState, w.state)
	}
	if err := w.tx.Commit(); err != nil {
		return err
	}
	w.state = StateCommitted
	return nil
}

// Rollback discards the write transaction without publishing it.
func (w *Writer) Rollback() {
	w.tx.Rollback()
}

func (w *Writer) persistActiveSet() {
	b, err := w.active.MarshalBinary()
	if err != nil {
		w.opts.Logger.Error("forestkv: failed to marshal active set", "tag", w.tag, "error", err)
		return
	}
	w.tx.Put(store.Key{Tag: w.tag, Node: core.ActiveSetNodeID}, b)
}

func (w *Writer) storedVector(id core.ItemID) []float32 {
	buf, ok := w.tx.Get(store.Key{Tag: w.tag, Node: core.ItemNodeID(id)})
	if !ok {
		return nil
	}
	vec, _, err := codec.DecodeItem(buf, w.metric, w.dimension)
	if err != nil {
		return nil
	}
	return vec
}

func (w *Writer) storedNorm(id core.ItemID) float32 {
	buf, ok := w.tx.Get(store.Key{Tag: w.tag, Node: core.ItemNodeID(id)})
	if !ok {
		return 0
	}
	_, norm, err := codec.DecodeItem(buf, w.metric, w.dimension)
	if err != nil {
		return 0
	}
	return norm
}

func validateVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrInvalidVector)
	}
	for _, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: non-finite component", ErrInvalidVector)
		}
	}
	return nil
}
