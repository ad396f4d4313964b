package forestkv

import (
	"context"

	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/diagnostic"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/internal/search"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/reader"
	"github.com/forestkv/forestkv/store"
	"github.com/forestkv/forestkv/writer"
)

// Result is one scored nearest-neighbor candidate.
type Result struct {
	ID       core.ItemID
	Distance float32
}

// Forest is the top-level façade over one (store.Store, tag, metric)
// index, wiring the writer, reader, and diagnostic packages through a
// single ergonomic surface.
type Forest struct {
	store  store.Store
	tag    core.Tag
	metric distance.Metric
	opts   options
}

// New returns a Forest bound to tag within s, using metric for every build
// and search against it.
func New(s store.Store, tag core.Tag, metric distance.Metric, optFns ...Option) *Forest {
	o := defaultOptions()
	for _, fn := range optFns {
		fn(&o)
	}
	return &Forest{store: s, tag: tag, metric: metric, opts: o}
}

// Writer opens the writer façade for this tag within a fresh write
// transaction. The caller must Commit or Rollback it.
func (f *Forest) Writer() (*writer.Writer, error) {
	tx := f.store.BeginWrite()
	w, err := writer.Open(tx, f.tag, f.metric, writer.Options{Builder: f.opts.builderOpts, Logger: f.opts.logger.Logger})
	if err != nil {
		tx.Rollback()
		return nil, translateError(err)
	}
	return w, nil
}

// Reader opens the reader façade for this tag within a fresh read
// transaction. The caller must Close it.
func (f *Forest) Reader() (*reader.Reader, error) {
	tx := f.store.BeginRead()
	r, err := reader.Open(tx, f.tag, reader.Options{Logger: f.opts.logger.Logger})
	if err != nil {
		tx.Close()
		return nil, translateError(err)
	}
	return r, nil
}

// AddItem adds a single item and commits, a convenience for callers that
// don't need to batch several AddItem calls into one write transaction.
// Use Writer directly for batched ingest.
func (f *Forest) AddItem(id core.ItemID, vector []float32) error {
	w, err := f.Writer()
	if err != nil {
		return err
	}
	if err := w.AddItem(id, vector); err != nil {
		w.Rollback()
		return translateError(err)
	}
	return translateError(w.Commit())
}

// DelItem removes a single item and commits.
func (f *Forest) DelItem(id core.ItemID) error {
	w, err := f.Writer()
	if err != nil {
		return err
	}
	if err := w.DelItem(id); err != nil {
		w.Rollback()
		return translateError(err)
	}
	return translateError(w.Commit())
}

// Clear removes every item and internal node for this tag and commits.
func (f *Forest) Clear() error {
	w, err := f.Writer()
	if err != nil {
		return err
	}
	if err := w.Clear(); err != nil {
		w.Rollback()
		return translateError(err)
	}
	return translateError(w.Commit())
}

// Build runs the forest construction over the active set and commits the
// resulting roots and metadata. nTrees of 0 selects builder.DefaultNTrees.
func (f *Forest) Build(ctx context.Context, seed uint64, nTrees int) error {
	w, err := f.Writer()
	if err != nil {
		return err
	}
	items := w.ItemCount()
	err = w.Build(ctx, seed, nTrees)
	f.opts.logger.logBuild(ctx, seed, nTrees, items, err)
	if err != nil {
		w.Rollback()
		return translateError(err)
	}
	return translateError(w.Commit())
}

// Diagnose opens a read transaction and walks every invariant spec §3
// describes, returning any violations found.
func (f *Forest) Diagnose() ([]diagnostic.Violation, error) {
	tx := f.store.BeginRead()
	defer tx.Close()
	violations, err := diagnostic.Walk(tx, f.tag)
	return violations, translateError(err)
}

// Dimensions returns the bound vector dimension, or ErrNeedBuild if the tag
// has never been built.
func (f *Forest) Dimensions() (int, error) {
	r, err := f.Reader()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.Dimensions(), nil
}

// ItemCount returns the number of active items, or ErrNeedBuild if the tag
// has never been built.
func (f *Forest) ItemCount() (int, error) {
	r, err := f.Reader()
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return r.ItemCount(), nil
}

// ItemIDs returns every active item id, or ErrNeedBuild if the tag has
// never been built.
func (f *Forest) ItemIDs() ([]core.ItemID, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ItemIDs(), nil
}

// ItemVector returns a copy of id's stored vector.
func (f *Forest) ItemVector(id core.ItemID) ([]float32, bool, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, false, err
	}
	defer r.Close()
	vec, ok := r.ItemVector(id)
	return vec, ok, nil
}

// NNSByVector returns the k nearest items to query, per spec §4.7. A
// searchK of 0 selects the k*n_trees default; filter, if non-nil, restricts
// candidates to the given id set.
func (f *Forest) NNSByVector(query []float32, k, searchK int, filter *itemset.Set) ([]Result, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	results, err := r.NNSByVector(query, k, searchK, filter)
	f.opts.logger.logSearch(context.Background(), k, len(results), err)
	if err != nil {
		return nil, translateError(err)
	}
	return toResults(results), nil
}

// NNSByItem returns the k nearest items to an existing active item,
// equivalent to looking up its stored vector and calling NNSByVector.
func (f *Forest) NNSByItem(id core.ItemID, k, searchK int, filter *itemset.Set) ([]Result, error) {
	r, err := f.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	results, err := r.NNSByItem(id, k, searchK, filter)
	f.opts.logger.logSearch(context.Background(), k, len(results), err)
	if err != nil {
		return nil, translateError(err)
	}
	return toResults(results), nil
}

func toResults(in []search.Result) []Result {
	out := make([]Result, len(in))
	for i, r := range in {
		out[i] = Result{ID: r.ID, Distance: r.Distance}
	}
	return out
}
