// Package diagnostic implements the invariant walk spec §3 and §4.6
// describe: traverse every tree in a tag's committed snapshot and report any
// node that violates the node-id, metric, or active-set invariants. It is
// deliberately narrow — no plotting or visualization, which stay out of
// scope — just the pass/fail structural check §4.6 calls "diagnostic mode".
package diagnostic

import (
	"errors"
	"fmt"

	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/store"
)

// ErrNeedBuild is returned when a tag has no metadata record to walk.
var ErrNeedBuild = errors.New("diagnostic: index has not been built")

// Violation describes one invariant breach found during a Walk.
type Violation struct {
	Node   core.NodeID
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("node %d: %s", v.Node, v.Detail)
}

// Walk checks every invariant spec §3 lists against tag's committed
// metadata, active set, and reachable tree nodes within tx. A nil/empty
// result means the snapshot is structurally sound.
func Walk(tx store.ReadTx, tag core.Tag) ([]Violation, error) {
	metaBuf, ok := tx.Get(store.Key{Tag: tag, Node: core.MetadataNodeID})
	if !ok {
		return nil, fmt.Errorf("%w: tag %d", ErrNeedBuild, tag)
	}
	meta, err := codec.DecodeMetadata(metaBuf)
	if err != nil {
		return nil, err
	}
	kernel, err := distance.NewKernel(meta.Metric)
	if err != nil {
		return nil, err
	}

	active := itemset.New()
	if setBuf, ok := tx.Get(store.Key{Tag: tag, Node: core.ActiveSetNodeID}); ok {
		if err := active.UnmarshalBinary(setBuf); err != nil {
			return nil, err
		}
	}

	var violations []Violation
	if (len(meta.Roots) == 0) != (active.Cardinality() == 0) {
		violations = append(violations, Violation{
			Detail: fmt.Sprintf("roots list has %d entries but active set has %d items", len(meta.Roots), active.Cardinality()),
		})
	}

	w := &walker{tx: tx, tag: tag, meta: meta, kernel: kernel, active: active, visited: map[core.NodeID]bool{}}
	for _, root := range meta.Roots {
		w.visit(root)
	}
	violations = append(violations, w.violations...)
	return violations, nil
}

type walker struct {
	tx         store.ReadTx
	tag        core.Tag
	meta       codec.Metadata
	kernel     distance.Kernel
	active     *itemset.Set
	visited    map[core.NodeID]bool
	violations []Violation
}

func (w *walker) fail(node core.NodeID, format string, args ...any) {
	w.violations = append(w.violations, Violation{Node: node, Detail: fmt.Sprintf(format, args...)})
}

func (w *walker) visit(node core.NodeID) {
	if w.visited[node] {
		return
	}
	w.visited[node] = true

	buf, ok := w.tx.Get(store.Key{Tag: w.tag, Node: node})
	if !ok {
		w.fail(node, "node missing from store")
		return
	}
	kind, metric, err := codec.PeekHeader(buf)
	if err != nil {
		w.fail(node, "corrupt header: %v", err)
		return
	}
	if metric != w.meta.Metric {
		w.fail(node, "header metric %v does not match index metric %v", metric, w.meta.Metric)
		return
	}

	if !node.IsInternal() {
		if kind != codec.KindItem {
			w.fail(node, "expected item node, got %v", kind)
			return
		}
		if _, _, err := codec.DecodeItem(buf, w.meta.Metric, int(w.meta.Dimension)); err != nil {
			w.fail(node, "corrupt item body: %v", err)
		}
		if !w.active.Contains(node.ItemID()) {
			w.fail(node, "item %d reachable via split but not in active set", node.ItemID())
		}
		return
	}

	switch kind {
	case codec.KindSplit:
		_, _, left, right, err := codec.DecodeSplit(buf, w.meta.Metric, w.kernel.WorkingDimension(int(w.meta.Dimension)))
		if err != nil {
			w.fail(node, "corrupt split body: %v", err)
			return
		}
		w.visit(left)
		w.visit(right)
	case codec.KindDescendants:
		set, err := codec.DecodeDescendants(buf, w.meta.Metric)
		if err != nil {
			w.fail(node, "corrupt descendants body: %v", err)
			return
		}
		for id := range set.Iterator() {
			if !w.active.Contains(id) {
				w.fail(node, "descendants item %d not in active set", id)
			}
		}
	default:
		w.fail(node, "unexpected node kind %v reachable from a root", kind)
	}
}
