// Package search implements the best-first traversal engine from spec §4.7:
// a max-priority frontier seeded with every tree root, walked until enough
// candidates have been collected, then exactly rescored and trimmed to k.
package search

import (
	"math"
	"sort"

	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/core"
	"github.com/forestkv/forestkv/distance"
	"github.com/forestkv/forestkv/internal/queue"
	"github.com/forestkv/forestkv/itemset"
	"github.com/forestkv/forestkv/store"
)

// NodeSource resolves a node id to its raw encoded bytes, the seam between
// search and whatever store transaction is backing a query.
type NodeSource interface {
	Get(key store.Key) ([]byte, bool)
}

// Result is one scored candidate.
type Result struct {
	ID       core.ItemID
	Distance float32
}

// Params bundles one query's inputs.
type Params struct {
	Tag       core.Tag
	Kernel    distance.Kernel
	Dimension int
	Roots     []core.NodeID
	// Query is the working-space query vector (already prepared via
	// Kernel.PrepareQuery by the caller).
	Query []float32
	K     int
	// SearchK bounds how many candidates are collected before exact
	// rescoring. Callers apply spec §4.7's default (k * n_trees) before
	// calling Run.
	SearchK int
	// Filter, if non-nil, restricts candidates to ids it contains;
	// descendants ids outside it are skipped before scoring.
	Filter *itemset.Set
	// VectorOf resolves an item id to its working-space vector for exact
	// rescoring.
	VectorOf func(core.ItemID) ([]float32, bool)
}

// Run executes the traversal described in spec §4.7 and returns the k
// nearest candidates, ascending by distance with ties broken by ascending
// id.
func Run(src NodeSource, p Params) ([]Result, error) {
	frontier := queue.NewMax(len(p.Roots) * 2)
	for _, root := range p.Roots {
		frontier.Push(queue.Item{Node: root, Priority: float32(math.Inf(1))})
	}

	candidates := itemset.New()
	for candidates.Cardinality() < p.SearchK {
		entry, ok := frontier.Pop()
		if !ok {
			break
		}
		buf, ok := src.Get(store.Key{Tag: p.Tag, Node: entry.Node})
		if !ok {
			continue
		}
		kind, _, err := codec.PeekHeader(buf)
		if err != nil {
			return nil, err
		}
		switch kind {
		case codec.KindDescendants:
			ids, err := codec.DecodeDescendants(buf, p.Kernel.Metric())
			if err != nil {
				return nil, err
			}
			for id := range ids.Iterator() {
				if p.Filter != nil && !p.Filter.Contains(id) {
					continue
				}
				candidates.Add(id)
			}
		case codec.KindSplit:
			normal, bias, left, right, err := codec.DecodeSplit(buf, p.Kernel.Metric(), p.Kernel.WorkingDimension(p.Dimension))
			if err != nil {
				return nil, err
			}
			margin := p.Kernel.Margin(normal, bias, p.Query)
			frontier.Push(queue.Item{Node: right, Priority: minf32(entry.Priority, margin)})
			frontier.Push(queue.Item{Node: left, Priority: minf32(entry.Priority, -margin)})
		case codec.KindItem:
			id := entry.Node.ItemID()
			if p.Filter != nil && !p.Filter.Contains(id) {
				continue
			}
			candidates.Add(id)
		default:
			return nil, codec.ErrCorrupt
		}
	}

	results := make([]Result, 0, candidates.Cardinality())
	for id := range candidates.Iterator() {
		vec, ok := p.VectorOf(id)
		if !ok {
			continue
		}
		results = append(results, Result{ID: id, Distance: p.Kernel.Distance(p.Query, vec)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > p.K {
		results = results[:p.K]
	}
	return results, nil
}

func minf32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
