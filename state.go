package queue

import "iter"

// Attribute names used in container snapshots.
const (
	DataAttr             = "data"
	BucketsAttr          = "buckets"
	TargetBucketSizeAttr = "targetBucketSize"
)

// State is a snapshot of one container: attribute name to value. Sequence
// attributes hold []interface{}.
type State map[string]interface{}

// Clone returns a copy of the state whose sequence attributes can be
// modified without affecting s.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	c := make(State, len(s))
	for k, v := range s {
		if seq, ok := v.([]interface{}); ok {
			v = append([]interface{}(nil), seq...)
		}
		c[k] = v
	}
	return c
}

// Sequence is the queue capability shared by the flat and composite
// containers.
type Sequence interface {
	// Put appends an item to the end of the queue.
	Put(item interface{})
	// Pull removes and returns the item at index; negative indices count
	// from the end.
	Pull(index int) (interface{}, error)
	// PullFront removes and returns the oldest item.
	PullFront() (interface{}, error)
	Len() int
	IsEmpty() bool
	// At returns the item at index without removing it.
	At(index int) (interface{}, error)
	// Slice returns items selected like a Python slice; Open marks an
	// omitted bound.
	Slice(start, stop, step int) ([]interface{}, error)
	All() iter.Seq[interface{}]
	Iter(f func(interface{}) error) error
}

// Persistent is implemented by containers that a host can snapshot,
// restore, and merge.
type Persistent interface {
	// Kind names the container type, for hosts that rebuild containers
	// from stored state.
	Kind() string
	State() State
	SetState(State) error
	// ResolveConflict merges independent changes made from a common
	// ancestor, or returns an error matching ErrConflict.
	ResolveConflict(ancestor, committed, proposed State) (State, error)
}
