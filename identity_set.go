package queue

import "fmt"

// IdentitySet is a set of items that relies only on item equality, not
// hashing, so every operation is a pairwise scan: O(n*m). This is fine for
// bucket-sized inputs. An equality error aborts the operation and is
// returned to the caller.
type IdentitySet struct {
	items []interface{}
	equal EqualFunc
}

// NewIdentitySet returns a set of the distinct given items, in first-seen
// order. A nil eq means DefaultEqual.
func NewIdentitySet(items []interface{}, eq EqualFunc) (*IdentitySet, error) {
	if eq == nil {
		eq = DefaultEqual
	}
	s := &IdentitySet{
		items: make([]interface{}, 0, len(items)),
		equal: eq,
	}
	for _, item := range items {
		present, err := s.Contains(item)
		if err != nil {
			return nil, fmt.Errorf("dedup: %w", err)
		}
		if !present {
			s.items = append(s.items, item)
		}
	}
	return s, nil
}

func (s *IdentitySet) subset(keep func(interface{}) (bool, error)) (*IdentitySet, error) {
	res := &IdentitySet{equal: s.equal}
	for _, item := range s.items {
		ok, err := keep(item)
		if err != nil {
			return nil, err
		}
		if ok {
			res.items = append(res.items, item)
		}
	}
	return res, nil
}

// Contains reports whether an item equal to the given one is in the set.
func (s *IdentitySet) Contains(item interface{}) (bool, error) {
	for _, mine := range s.items {
		equal, err := s.equal(mine, item)
		if err != nil {
			return false, err
		}
		if equal {
			return true, nil
		}
	}
	return false, nil
}

// Difference returns the items of s that are not in other.
func (s *IdentitySet) Difference(other *IdentitySet) (*IdentitySet, error) {
	return s.subset(func(item interface{}) (bool, error) {
		present, err := other.Contains(item)
		return !present, err
	})
}

// Intersection returns the items of s that are also in other.
func (s *IdentitySet) Intersection(other *IdentitySet) (*IdentitySet, error) {
	return s.subset(other.Contains)
}

// Len returns the number of distinct items.
func (s *IdentitySet) Len() int {
	return len(s.items)
}

func (s *IdentitySet) IsEmpty() bool {
	return len(s.items) == 0
}

// Items returns a copy of the set's items, in insertion order.
func (s *IdentitySet) Items() []interface{} {
	return append([]interface{}(nil), s.items...)
}
