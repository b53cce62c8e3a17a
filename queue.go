package queue

import (
	"fmt"
	"iter"
)

// Queue is a simple FIFO sequence. Its data is never modified in place:
// every Put and Pull installs a new slice, so snapshots are cheap and
// independent.
type Queue struct {
	data []interface{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Put appends item to the end of the queue.
func (q *Queue) Put(item interface{}) {
	q.data = append(q.data[:len(q.data):len(q.data)], item)
}

// Pull removes and returns the item at index. Negative indices count from
// the end, so -1 is the last item.
func (q *Queue) Pull(index int) (interface{}, error) {
	i, err := normalizeIndex(index, len(q.data))
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	res := q.data[i]
	data := make([]interface{}, 0, len(q.data)-1)
	data = append(data, q.data[:i]...)
	q.data = append(data, q.data[i+1:]...)
	return res, nil
}

// PullFront removes and returns the item at the front of the queue.
func (q *Queue) PullFront() (interface{}, error) {
	return q.Pull(0)
}

// Len returns the number of items in the queue.
func (q *Queue) Len() int {
	return len(q.data)
}

func (q *Queue) IsEmpty() bool {
	return len(q.data) == 0
}

// At returns the item at index without removing it.
func (q *Queue) At(index int) (interface{}, error) {
	i, err := normalizeIndex(index, len(q.data))
	if err != nil {
		return nil, err
	}
	return q.data[i], nil
}

// Slice returns the items selected by start:stop:step, with Python slice
// semantics.
func (q *Queue) Slice(start, stop, step int) ([]interface{}, error) {
	return sliceOf(q.data, start, stop, step)
}

func sliceOf(data []interface{}, start, stop, step int) ([]interface{}, error) {
	indices, err := sliceIndices(len(data), start, stop, step)
	if err != nil {
		return nil, err
	}
	res := make([]interface{}, len(indices))
	for i, j := range indices {
		res[i] = data[j]
	}
	return res, nil
}

// All returns an iterator over the items in queue order. It iterates over
// the items present when All was called.
func (q *Queue) All() iter.Seq[interface{}] {
	data := q.data
	return func(yield func(interface{}) bool) {
		for _, item := range data {
			if !yield(item) {
				return
			}
		}
	}
}

// Iter invokes f for every item in queue order, stopping at the first error.
func (q *Queue) Iter(f func(interface{}) error) error {
	for _, item := range q.data {
		if err := f(item); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) Kind() string {
	return "queue"
}

// State returns a snapshot of the queue.
func (q *Queue) State() State {
	return State{DataAttr: append([]interface{}(nil), q.data...)}
}

// SetState replaces the queue's contents with the given snapshot.
func (q *Queue) SetState(s State) error {
	data, err := sequenceAttr(s, DataAttr)
	if err != nil {
		return err
	}
	q.data = append([]interface{}(nil), data...)
	return nil
}

// ResolveConflict merges concurrent puts and pulls; see Resolver.
func (q *Queue) ResolveConflict(ancestor, committed, proposed State) (State, error) {
	return ResolveQueueConflict(ancestor, committed, proposed, false)
}

// Bucket is a Queue that is part of a CompositeQueue. It resolves conflicts
// more conservatively: if one side emptied a bucket that the other side
// did not, the composite may have dropped it, so the merge is refused.
type Bucket struct {
	Queue
}

// NewBucket returns an empty bucket.
func NewBucket() *Bucket {
	return &Bucket{}
}

func (b *Bucket) Kind() string {
	return "bucket"
}

func (b *Bucket) ResolveConflict(ancestor, committed, proposed State) (State, error) {
	return ResolveQueueConflict(ancestor, committed, proposed, true)
}

// PersistentQueue is the legacy name of Bucket.
type PersistentQueue = Bucket

func sequenceAttr(s State, attr string) ([]interface{}, error) {
	v, ok := s[attr]
	if !ok {
		return nil, fmt.Errorf("state has no %q", attr)
	}
	if v == nil {
		return nil, nil
	}
	seq, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("state %q is %T, not a sequence", attr, v)
	}
	return seq, nil
}
