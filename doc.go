/*
Package queue provides FIFO queues whose concurrent versions can be
merged, for use under optimistic multi-version concurrency control
(MVCC).

Under MVCC, transactions read a shared snapshot, change private copies,
and try to commit later. When a transaction commits a queue that someone
else has committed since the transaction started, the host does not have
to give up: it can call ResolveConflict with the common ancestor state,
the committed state, and the state the transaction proposes. Puts and
pulls that don't overlap are merged; overlapping ones are reported as an
error matching ErrConflict, and the transaction must be retried.

# Containers

Queue is a flat sequence supporting Put, Pull (with negative indices
counting from the end), Len, At, Slice and iteration. Every change to a
Queue rewrites its whole state, which is fine for small queues.

CompositeQueue is made of Buckets of a target size, so a Put only
rewrites the last bucket. The composite's bucket list is merged like a
Queue's items; each Bucket is merged separately, with a stricter policy
that refuses merges where one side emptied the bucket.

# Merging

The merge works on sets of items, where items are compared with an
EqualFunc rather than hashed, so items need not be comparable in the Go
sense. Items may implement Equaler; an equality that fails (for example
Refs from different databases) makes the merge fail, rather than guessing
whether the items are the same.

	ancestor := queue.State{queue.DataAttr: []interface{}{}}
	committed := queue.State{queue.DataAttr: []interface{}{1}}
	proposed := queue.State{queue.DataAttr: []interface{}{2}}
	merged, err := queue.ResolveQueueConflict(ancestor, committed, proposed, false)
	// merged[queue.DataAttr] is []interface{}{1, 2}

# Concurrency

Containers are not safe for concurrent use; concurrency is expected to be
between independent copies, reconciled at commit time. The store
subpackage is a small MVCC object store that does exactly that.
*/
package queue
