package queue

import (
	"fmt"
	"iter"
)

// DefaultTargetBucketSize is the bucket size used by NewCompositeQueue
// unless WithTargetBucketSize says otherwise.
const DefaultTargetBucketSize = 15

// CompositeQueue is a queue made of a sequence of buckets, for queues that
// may become large. A Put only touches the last bucket, so committing it
// does not rewrite the whole queue.
//
// The target bucket size is a ballpark: concurrent puts that are merged
// can make a bucket grow to about twice the target.
//
// Equal items put concurrently are only detected as a conflict if they
// land in the same bucket. Use a Queue if that policy must always hold.
type CompositeQueue struct {
	buckets          []Sequence
	targetBucketSize int
	newBucket        func() Sequence
}

// CompositeOption configures a CompositeQueue.
type CompositeOption func(*CompositeQueue)

// WithTargetBucketSize sets the length at which Put starts a new bucket.
// Non-positive sizes are ignored.
func WithTargetBucketSize(n int) CompositeOption {
	return func(c *CompositeQueue) {
		if n > 0 {
			c.targetBucketSize = n
		}
	}
}

// WithBucketFactory sets the function that creates new buckets.
func WithBucketFactory(f func() Sequence) CompositeOption {
	return func(c *CompositeQueue) {
		if f != nil {
			c.newBucket = f
		}
	}
}

// NewCompositeQueue returns an empty composite queue whose buckets are
// Buckets of DefaultTargetBucketSize items, unless configured otherwise.
func NewCompositeQueue(opts ...CompositeOption) *CompositeQueue {
	c := &CompositeQueue{
		targetBucketSize: DefaultTargetBucketSize,
		newBucket:        func() Sequence { return NewBucket() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put appends item to the last bucket, starting a new bucket first if
// there is none or the last one is full.
func (c *CompositeQueue) Put(item interface{}) {
	if len(c.buckets) == 0 || c.buckets[len(c.buckets)-1].Len() >= c.targetBucketSize {
		c.buckets = append(c.buckets[:len(c.buckets):len(c.buckets)], c.newBucket())
	}
	c.buckets[len(c.buckets)-1].Put(item)
}

// Pull removes and returns the item at index, counting across buckets.
// Buckets left empty are dropped.
func (c *CompositeQueue) Pull(index int) (interface{}, error) {
	i, err := normalizeIndex(index, c.Len())
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	count := 0
	for _, b := range c.buckets {
		n := b.Len()
		if i < count+n {
			item, err := b.Pull(i - count)
			if err != nil {
				return nil, fmt.Errorf("pull bucket: %w", err)
			}
			c.compact()
			return item, nil
		}
		count += n
	}
	return nil, fmt.Errorf("pull: %w", indexError(index))
}

// PullFront removes and returns the item at the front of the queue.
func (c *CompositeQueue) PullFront() (interface{}, error) {
	return c.Pull(0)
}

// compact drops empty buckets, including ones introduced by merges.
func (c *CompositeQueue) compact() {
	kept := make([]Sequence, 0, len(c.buckets))
	for _, b := range c.buckets {
		if !b.IsEmpty() {
			kept = append(kept, b)
		}
	}
	c.buckets = kept
}

// Len returns the total number of items in all buckets.
func (c *CompositeQueue) Len() int {
	n := 0
	for _, b := range c.buckets {
		n += b.Len()
	}
	return n
}

func (c *CompositeQueue) IsEmpty() bool {
	for _, b := range c.buckets {
		if !b.IsEmpty() {
			return false
		}
	}
	return true
}

// At returns the item at index, counting across buckets.
func (c *CompositeQueue) At(index int) (interface{}, error) {
	i, err := normalizeIndex(index, c.Len())
	if err != nil {
		return nil, err
	}
	for _, b := range c.buckets {
		n := b.Len()
		if i < n {
			return b.At(i)
		}
		i -= n
	}
	return nil, indexError(index)
}

// Slice returns the items selected by start:stop:step over the
// concatenation of all buckets.
func (c *CompositeQueue) Slice(start, stop, step int) ([]interface{}, error) {
	return sliceOf(c.items(), start, stop, step)
}

func (c *CompositeQueue) items() []interface{} {
	res := make([]interface{}, 0, c.Len())
	for _, b := range c.buckets {
		for item := range b.All() {
			res = append(res, item)
		}
	}
	return res
}

// All returns an iterator over the items of every bucket, in order.
func (c *CompositeQueue) All() iter.Seq[interface{}] {
	buckets := c.buckets
	return func(yield func(interface{}) bool) {
		for _, b := range buckets {
			for item := range b.All() {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// Iter invokes f for every item in queue order, stopping at the first error.
func (c *CompositeQueue) Iter(f func(interface{}) error) error {
	for _, b := range c.buckets {
		if err := b.Iter(f); err != nil {
			return err
		}
	}
	return nil
}

// Buckets returns the current buckets. The buckets themselves are shared.
func (c *CompositeQueue) Buckets() []Sequence {
	return append([]Sequence(nil), c.buckets...)
}

// TargetBucketSize returns the length at which Put starts a new bucket.
func (c *CompositeQueue) TargetBucketSize() int {
	return c.targetBucketSize
}

func (c *CompositeQueue) Kind() string {
	return "composite"
}

// State returns a snapshot of the bucket list; the buckets are references,
// each with its own state.
func (c *CompositeQueue) State() State {
	buckets := make([]interface{}, len(c.buckets))
	for i, b := range c.buckets {
		buckets[i] = b
	}
	return State{
		BucketsAttr:          buckets,
		TargetBucketSizeAttr: c.targetBucketSize,
	}
}

// SetState replaces the bucket list. Every bucket in the state must be a
// Sequence.
func (c *CompositeQueue) SetState(s State) error {
	seq, err := sequenceAttr(s, BucketsAttr)
	if err != nil {
		return err
	}
	buckets := make([]Sequence, len(seq))
	for i, v := range seq {
		b, ok := v.(Sequence)
		if !ok {
			return fmt.Errorf("bucket %d is %T, not a Sequence", i, v)
		}
		buckets[i] = b
	}
	if v, ok := s[TargetBucketSizeAttr]; ok {
		n, err := toInt(v)
		if err != nil {
			return fmt.Errorf("%s: %w", TargetBucketSizeAttr, err)
		}
		if n > 0 {
			c.targetBucketSize = n
		}
	}
	c.buckets = buckets
	return nil
}

// ResolveConflict merges the bucket lists of concurrent transactions. The
// buckets' own contents are resolved separately, with the bucket policy.
func (c *CompositeQueue) ResolveConflict(ancestor, committed, proposed State) (State, error) {
	return Resolver{Attr: BucketsAttr}.Resolve(ancestor, committed, proposed)
}

// CompositePersistentQueue is the legacy name of CompositeQueue.
type CompositePersistentQueue = CompositeQueue

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case int32:
		return int(n), nil
	case uint32:
		return int(n), nil
	case uint:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("%v (%T) is not an integer", v, v)
}
