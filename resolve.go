package queue

import (
	"errors"
	"fmt"
	"maps"
	"slices"
)

// Resolver performs a three-way merge of one sequence attribute of a
// container's state.
//
// Independent puts and pulls merge cleanly. Two transactions that pulled
// the same item, or put equal items, conflict: at most one claim on an
// item may win, and equal additions are not silently duplicated. Any other
// attribute that differs between committed and proposed state also
// conflicts, since only the sequence is understood.
//
// Resolve has no side effects, and identical inputs give identical results.
type Resolver struct {
	// Attr is the sequence attribute to merge. Empty means DataAttr.
	Attr string
	// Bucket enables the bucket policy: if the ancestor had items and
	// exactly one side emptied it, the merge is refused.
	Bucket bool
	// Equal compares items. nil means DefaultEqual.
	Equal EqualFunc
}

// ResolveQueueConflict resolves the "data" attribute of a Queue, or a
// Bucket if bucket is set.
func ResolveQueueConflict(ancestor, committed, proposed State, bucket bool) (State, error) {
	return Resolver{Attr: DataAttr, Bucket: bucket}.Resolve(ancestor, committed, proposed)
}

// Resolve returns the committed state with the proposed changes applied to
// it, or an error matching ErrConflict.
func (r Resolver) Resolve(ancestor, committed, proposed State) (State, error) {
	attr := r.Attr
	if attr == "" {
		attr = DataAttr
	}
	equal := r.Equal
	if equal == nil {
		equal = DefaultEqual
	}

	if err := checkOtherAttrs(attr, committed, proposed, equal); err != nil {
		return nil, err
	}

	var seqs [3][]interface{}
	var sets [3]*IdentitySet
	for i, s := range []State{ancestor, committed, proposed} {
		seq, err := sequenceAttr(s, attr)
		if err != nil {
			return nil, conflict(ReasonMalformed, err)
		}
		seqs[i] = seq
		sets[i], err = NewIdentitySet(seq, equal)
		if err != nil {
			return nil, comparisonConflict(err)
		}
	}
	oldSet, committedSet, newSet := sets[0], sets[1], sets[2]

	if r.Bucket && !oldSet.IsEmpty() && committedSet.IsEmpty() != newSet.IsEmpty() {
		return nil, conflict(ReasonBucketEmptied, nil)
	}

	committedAdded, err := committedSet.Difference(oldSet)
	if err != nil {
		return nil, comparisonConflict(err)
	}
	committedRemoved, err := oldSet.Difference(committedSet)
	if err != nil {
		return nil, comparisonConflict(err)
	}
	newAdded, err := newSet.Difference(oldSet)
	if err != nil {
		return nil, comparisonConflict(err)
	}
	newRemoved, err := oldSet.Difference(newSet)
	if err != nil {
		return nil, comparisonConflict(err)
	}

	both, err := newRemoved.Intersection(committedRemoved)
	if err != nil {
		return nil, comparisonConflict(err)
	}
	if !both.IsEmpty() {
		return nil, conflict(ReasonDoubleRemove, nil)
	}
	both, err = newAdded.Intersection(committedAdded)
	if err != nil {
		return nil, comparisonConflict(err)
	}
	if !both.IsEmpty() {
		return nil, conflict(ReasonDoubleAdd, nil)
	}

	merged := make([]interface{}, 0, len(seqs[1])+newAdded.Len())
	for _, v := range seqs[1] {
		removed, err := newRemoved.Contains(v)
		if err != nil {
			return nil, comparisonConflict(err)
		}
		if !removed {
			merged = append(merged, v)
		}
	}
	if !newAdded.IsEmpty() {
		for _, v := range seqs[2] {
			added, err := newAdded.Contains(v)
			if err != nil {
				return nil, comparisonConflict(err)
			}
			if added {
				merged = append(merged, v)
			}
		}
	}
	res := committed.Clone()
	res[attr] = merged
	return res, nil
}

func checkOtherAttrs(attr string, committed, proposed State, equal EqualFunc) error {
	if len(committed) != len(proposed) {
		return conflict(ReasonAttributes, fmt.Errorf("%d attributes vs %d", len(committed), len(proposed)))
	}
	for _, key := range slices.Sorted(maps.Keys(proposed)) {
		val := proposed[key]
		committedVal, ok := committed[key]
		if !ok {
			return conflict(ReasonAttributes, fmt.Errorf("%q only in proposed state", key))
		}
		if key == attr {
			continue
		}
		same, err := equal(val, committedVal)
		if err != nil {
			return comparisonConflict(fmt.Errorf("%q: %w", key, err))
		}
		if !same {
			return conflict(ReasonAttributes, fmt.Errorf("%q changed", key))
		}
	}
	return nil
}

func comparisonConflict(err error) error {
	if !errors.Is(err, ErrNotComparable) {
		err = fmt.Errorf("%w: %w", ErrNotComparable, err)
	}
	return conflict(ReasonNotComparable, err)
}
