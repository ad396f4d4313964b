// Package itemset provides the compressed id-set types used for an index's
// per-tag active item set and for the id sets stored in descendants nodes.
package itemset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/forestkv/forestkv/core"
)

// Set is a compressed, mutable set of item ids backed by a Roaring bitmap.
type Set struct {
	rb *roaring.Bitmap
}

// New returns an empty Set.
func New() *Set {
	return &Set{rb: roaring.New()}
}

// FromIDs returns a Set containing exactly the given ids.
func FromIDs(ids []core.ItemID) *Set {
	s := New()
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *Set) Add(id core.ItemID)      { s.rb.Add(uint32(id)) }
func (s *Set) Remove(id core.ItemID)   { s.rb.Remove(uint32(id)) }
func (s *Set) Contains(id core.ItemID) bool {
	if s == nil {
		return false
	}
	return s.rb.Contains(uint32(id))
}
func (s *Set) IsEmpty() bool    { return s == nil || s.rb.IsEmpty() }
func (s *Set) Cardinality() int { return int(s.rb.GetCardinality()) }

// Clone returns a deep copy of s.
func (s *Set) Clone() *Set {
	return &Set{rb: s.rb.Clone()}
}

// And intersects s with other in place.
func (s *Set) And(other *Set) { s.rb.And(other.rb) }

// Or unions s with other in place.
func (s *Set) Or(other *Set) { s.rb.Or(other.rb) }

// AndNot removes every id of other from s in place.
func (s *Set) AndNot(other *Set) { s.rb.AndNot(other.rb) }

// Iterator yields every id in ascending order.
func (s *Set) Iterator() iter.Seq[core.ItemID] {
	return func(yield func(core.ItemID) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(core.ItemID(it.Next())) {
				return
			}
		}
	}
}

// ToSlice materializes the set as an ascending slice of ids.
func (s *Set) ToSlice() []core.ItemID {
	out := make([]core.ItemID, 0, s.Cardinality())
	for id := range s.Iterator() {
		out = append(out, id)
	}
	return out
}

// MarshalBinary serializes the set to its Roaring on-disk representation.
func (s *Set) MarshalBinary() ([]byte, error) {
	if s == nil || s.rb == nil {
		return roaring.New().ToBytes()
	}
	return s.rb.ToBytes()
}

// UnmarshalBinary replaces s's contents with the set encoded in b. b may be a
// zero-copy view into mapped storage; Roaring's FromBuffer keeps referencing
// it rather than copying, so callers must not mutate or free b while s is in
// use.
func (s *Set) UnmarshalBinary(b []byte) error {
	rb := roaring.New()
	if _, err := rb.FromBuffer(b); err != nil {
		return err
	}
	s.rb = rb
	return nil
}
