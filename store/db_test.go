package store

import (
	"context"
	"errors"
	"testing"

	queue "github.com/jrhy/zqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, cfg Config) *DB {
	t.Helper()
	if cfg.Persist == nil {
		cfg.Persist = NewInMemoryStore()
	}
	db, err := Open(context.Background(), cfg, "")
	require.NoError(t, err)
	return db
}

func setRoot(t *testing.T, db *DB, name string, obj queue.Persistent) {
	t.Helper()
	require.NoError(t, db.Update(context.Background(), func(txn *Txn) error {
		return txn.SetRoot(name, obj)
	}))
}

func rootSequence(t *testing.T, txn *Txn, name string) queue.Sequence {
	t.Helper()
	obj, err := txn.Root(context.Background(), name)
	require.NoError(t, err)
	seq, ok := obj.(queue.Sequence)
	require.True(t, ok, "%T is not a sequence", obj)
	return seq
}

func rootItems(t *testing.T, db *DB, name string) []interface{} {
	t.Helper()
	txn := db.Begin()
	defer txn.Abort()
	res := []interface{}{}
	for item := range rootSequence(t, txn, name).All() {
		res = append(res, item)
	}
	return res
}

func requireReason(t *testing.T, err error, reason queue.ConflictReason) {
	t.Helper()
	require.ErrorIs(t, err, ErrConflict)
	var ce *queue.ConflictError
	require.True(t, errors.As(err, &ce), "%v", err)
	require.Equal(t, reason, ce.Reason, "%v", err)
}

func ints(values ...int64) []interface{} {
	res := []interface{}{}
	for _, v := range values {
		res = append(res, v)
	}
	return res
}

func filledQueue(values ...interface{}) *queue.Queue {
	q := queue.NewQueue()
	for _, v := range values {
		q.Put(v)
	}
	return q
}

func TestReopenFromHead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	persist := NewInMemoryStore()
	db := newTestDB(t, Config{Persist: persist})
	require.Equal(t, "", db.Head())
	setRoot(t, db, "q", filledQueue(1, "two"))
	head := db.Head()
	require.NotEmpty(t, head)

	reopened, err := Open(ctx, Config{Persist: persist}, head)
	require.NoError(t, err)
	require.Equal(t, head, reopened.Head())
	require.Equal(t, []interface{}{int64(1), "two"}, rootItems(t, reopened, "q"))

	_, err = Open(ctx, Config{Persist: persist}, "nonesuch")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = Open(ctx, Config{}, "")
	require.Error(t, err)
}

func TestConcurrentPutsMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	setRoot(t, db, "q", queue.NewQueue())

	t1, t2 := db.Begin(), db.Begin()
	rootSequence(t, t1, "q").Put(1)
	rootSequence(t, t2, "q").Put(2)
	require.NoError(t, t1.Commit(ctx))
	require.NoError(t, t2.Commit(ctx))
	require.Equal(t, ints(1, 2), rootItems(t, db, "q"))
}

func TestDoubleRemoveConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	db := newTestDB(t, Config{Registerer: reg})
	setRoot(t, db, "q", filledQueue(1))

	t1, t2 := db.Begin(), db.Begin()
	_, err := rootSequence(t, t1, "q").PullFront()
	require.NoError(t, err)
	_, err = rootSequence(t, t2, "q").PullFront()
	require.NoError(t, err)
	require.NoError(t, t1.Commit(ctx))
	head := db.Head()

	err = t2.Commit(ctx)
	requireReason(t, err, queue.ReasonDoubleRemove)
	require.Equal(t, head, db.Head(), "a failed commit must not publish")
	require.Equal(t, ints(), rootItems(t, db, "q"))
	require.ErrorIs(t, t2.Commit(ctx), ErrClosedTxn)

	assert.Equal(t, 1.0, testutil.ToFloat64(db.metrics.commits.WithLabelValues(outcomeConflict)))
	assert.Equal(t, 2.0, testutil.ToFloat64(db.metrics.commits.WithLabelValues(outcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(db.metrics.conflicts.WithLabelValues(resultUnresolvable)))
	n, err := testutil.GatherAndCount(reg, "zqueue_commits_total", "zqueue_conflicts_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIndependentPullsAndPuts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	setRoot(t, db, "q", filledQueue(1, 2, 3, 4))

	t1, t2 := db.Begin(), db.Begin()
	q1 := rootSequence(t, t1, "q")
	_, err := q1.Pull(0)
	require.NoError(t, err)
	q1.Put(5)
	q2 := rootSequence(t, t2, "q")
	_, err = q2.Pull(1)
	require.NoError(t, err)
	q2.Put(6)
	q2.Put(7)
	require.NoError(t, t1.Commit(ctx))
	require.NoError(t, t2.Commit(ctx))
	require.Equal(t, ints(3, 4, 5, 6, 7), rootItems(t, db, "q"))
	assert.Equal(t, 1.0, testutil.ToFloat64(db.metrics.conflicts.WithLabelValues(resultResolved)))
}

func TestCompositeMerge(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	c := queue.NewCompositeQueue(queue.WithTargetBucketSize(2))
	for i := 1; i <= 3; i++ {
		c.Put(i)
	}
	setRoot(t, db, "c", c)

	t1, t2 := db.Begin(), db.Begin()
	c1 := rootSequence(t, t1, "c")
	for i := 0; i < 2; i++ {
		_, err := c1.PullFront()
		require.NoError(t, err)
	}
	c2 := rootSequence(t, t2, "c")
	c2.Put(4)
	c2.Put(5)
	require.Len(t, c2.(*queue.CompositeQueue).Buckets(), 3)
	require.NoError(t, t1.Commit(ctx))
	require.NoError(t, t2.Commit(ctx))

	require.Equal(t, ints(3, 4, 5), rootItems(t, db, "c"))
	txn := db.Begin()
	merged := rootSequence(t, txn, "c").(*queue.CompositeQueue)
	require.Len(t, merged.Buckets(), 2)
	require.Equal(t, 2, merged.TargetBucketSize())
}

func TestCompositeBucketEmptiedConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	c := queue.NewCompositeQueue(queue.WithTargetBucketSize(2))
	c.Put(1)
	setRoot(t, db, "c", c)

	t1, t2 := db.Begin(), db.Begin()
	_, err := rootSequence(t, t1, "c").PullFront()
	require.NoError(t, err)
	rootSequence(t, t2, "c").Put(2)
	require.NoError(t, t1.Commit(ctx))
	requireReason(t, t2.Commit(ctx), queue.ReasonBucketEmptied)
	require.Equal(t, ints(), rootItems(t, db, "c"))
}

func TestUnchangedObjectsAreNotRewritten(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	persist := NewInMemoryStore().(*inMemoryStore)
	db := newTestDB(t, Config{Persist: persist})
	c := queue.NewCompositeQueue(queue.WithTargetBucketSize(2))
	for i := 1; i <= 5; i++ {
		c.Put(i)
	}
	setRoot(t, db, "c", c)
	stores := persist.stores
	head := db.Head()

	txn := db.Begin()
	_, err := rootSequence(t, txn, "c").At(4)
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx))
	require.Equal(t, stores, persist.stores)
	require.Equal(t, head, db.Head())
	assert.Equal(t, 1.0, testutil.ToFloat64(db.metrics.commits.WithLabelValues(outcomeEmpty)))

	// only the touched bucket and the table are written
	txn = db.Begin()
	rootSequence(t, txn, "c").Put(6)
	require.NoError(t, txn.Commit(ctx))
	require.Equal(t, stores+2, persist.stores)
}

func TestRootConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	t1, t2 := db.Begin(), db.Begin()
	require.NoError(t, t1.SetRoot("x", filledQueue("a")))
	require.NoError(t, t2.SetRoot("x", filledQueue("b")))
	require.NoError(t, t1.Commit(ctx))
	requireReason(t, t2.Commit(ctx), queue.ReasonAttributes)
	require.Equal(t, []interface{}{"a"}, rootItems(t, db, "x"))

	// replacing a root is fine when nobody else did
	setRoot(t, db, "x", filledQueue("c"))
	require.Equal(t, []interface{}{"c"}, rootItems(t, db, "x"))
}

func TestClosedTxn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	txn := db.Begin()
	_, err := txn.Root(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = txn.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	txn.Abort()
	_, err = txn.Root(ctx, "missing")
	require.ErrorIs(t, err, ErrClosedTxn)
	require.ErrorIs(t, txn.SetRoot("x", queue.NewQueue()), ErrClosedTxn)
	require.ErrorIs(t, txn.Commit(ctx), ErrClosedTxn)

	boom := errors.New("boom")
	require.ErrorIs(t, db.Update(ctx, func(*Txn) error { return boom }), boom)
	require.Equal(t, "", db.Head())
}

func TestIdentityWithinTxn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{Name: "jobs"})
	setRoot(t, db, "q", filledQueue(1))
	txn := db.Begin()
	a, err := txn.Root(ctx, "q")
	require.NoError(t, err)
	b, err := txn.Root(ctx, "q")
	require.NoError(t, err)
	require.Same(t, a, b)
	oid, ok := txn.OID(a)
	require.True(t, ok)
	require.Equal(t, queue.Ref{Database: "jobs", OID: oid}, txn.Ref(a))
	c, err := txn.Get(ctx, oid)
	require.NoError(t, err)
	require.Same(t, a, c)
}

func TestNestedObjects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	inner := filledQueue("x")
	outer := filledQueue(inner, inner, "y")
	setRoot(t, db, "outer", outer)

	txn := db.Begin()
	loaded := rootSequence(t, txn, "outer")
	first, err := loaded.At(0)
	require.NoError(t, err)
	second, err := loaded.At(1)
	require.NoError(t, err)
	require.Same(t, first, second)
	innerLoaded, ok := first.(*queue.Queue)
	require.True(t, ok)
	innerLoaded.Put("z")
	require.NoError(t, txn.Commit(ctx))

	txn = db.Begin()
	first, err = rootSequence(t, txn, "outer").At(0)
	require.NoError(t, err)
	require.Equal(t, 2, first.(queue.Sequence).Len())
}

func TestItemsLike(t *testing.T) {
	t.Parallel()
	persist := NewInMemoryStore()
	db := newTestDB(t, Config{Persist: persist, ItemsLike: 0})
	setRoot(t, db, "q", filledQueue(1, 2))
	require.Equal(t, []interface{}{1, 2}, rootItems(t, db, "q"))

	strs, err := Open(context.Background(), Config{Persist: persist, ItemsLike: ""}, db.Head())
	require.NoError(t, err)
	txn := strs.Begin()
	_, err = txn.Root(context.Background(), "q")
	require.Error(t, err)
}

type stack struct {
	queue.Queue
}

func (s *stack) Kind() string { return "stack" }

func TestKinds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	persist := NewInMemoryStore()
	db := newTestDB(t, Config{
		Persist: persist,
		Kinds:   map[string]func() queue.Persistent{"stack": func() queue.Persistent { return &stack{} }},
	})
	s := &stack{}
	s.Put("a")
	setRoot(t, db, "s", s)
	txn := db.Begin()
	obj, err := txn.Root(ctx, "s")
	require.NoError(t, err)
	require.IsType(t, &stack{}, obj)

	plain, err := Open(ctx, Config{Persist: persist}, db.Head())
	require.NoError(t, err)
	_, err = plain.Begin().Root(ctx, "s")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestForeignRefs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := newTestDB(t, Config{})
	setRoot(t, db, "q", filledQueue(queue.Ref{Database: "elsewhere", OID: "1"}))
	_, err := db.Begin().Root(ctx, "q")
	require.Error(t, err)
}
