package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	queue "github.com/jrhy/zqueue"
	"go.uber.org/zap"
)

// Txn is a transaction. Objects loaded through a Txn are private to it, and
// the same object id always yields the same instance. A Txn must not be
// used from more than one goroutine at a time.
//
// Persistent objects are tracked by identity, so they must be pointers (or
// otherwise comparable).
type Txn struct {
	db        *DB
	snapshot  *table
	objects   map[string]queue.Persistent
	oids      map[queue.Persistent]string
	ancestors map[string]string
	roots     map[string]queue.Persistent
	closed    bool
}

// pending is an object's proposed record.
type pending struct {
	obj     queue.Persistent
	kind    string
	encoded []byte
	rev     string
}

// Root returns the object stored under name.
func (t *Txn) Root(ctx context.Context, name string) (queue.Persistent, error) {
	if t.closed {
		return nil, ErrClosedTxn
	}
	if obj, ok := t.roots[name]; ok {
		return obj, nil
	}
	oid, ok := t.snapshot.roots[name]
	if !ok {
		return nil, fmt.Errorf("root %q: %w", name, ErrNotFound)
	}
	return t.Get(ctx, oid)
}

// SetRoot stores obj under name when the transaction commits, along with
// every object reachable from it.
func (t *Txn) SetRoot(name string, obj queue.Persistent) error {
	if t.closed {
		return ErrClosedTxn
	}
	t.roots[name] = obj
	return nil
}

// Get loads the object with the given id.
func (t *Txn) Get(ctx context.Context, oid string) (queue.Persistent, error) {
	if t.closed {
		return nil, ErrClosedTxn
	}
	if obj, ok := t.objects[oid]; ok {
		return obj, nil
	}
	rev, ok := t.snapshot.objects[oid]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", oid, ErrNotFound)
	}
	kind, state, err := t.db.loadRecord(ctx, rev)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", oid, err)
	}
	obj, err := t.db.newObject(kind)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", oid, err)
	}
	t.objects[oid] = obj
	t.oids[obj] = oid
	t.ancestors[oid] = rev
	for k, v := range state {
		state[k], err = t.fromRefs(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", oid, err)
		}
	}
	if err := obj.SetState(state); err != nil {
		return nil, fmt.Errorf("object %s: set state: %w", oid, err)
	}
	return obj, nil
}

func (t *Txn) fromRefs(ctx context.Context, v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case queue.Ref:
		if v.Database != t.db.name {
			return nil, fmt.Errorf("%v is not in database %q", v, t.db.name)
		}
		return t.Get(ctx, v.OID)
	case []interface{}:
		for i, item := range v {
			resolved, err := t.fromRefs(ctx, item)
			if err != nil {
				return nil, err
			}
			v[i] = resolved
		}
		return v, nil
	default:
		return v, nil
	}
}

// OID returns the id of obj, if it has been loaded or assigned one.
func (t *Txn) OID(obj queue.Persistent) (string, bool) {
	oid, ok := t.oids[obj]
	return oid, ok
}

// Ref returns a reference to obj, assigning it an id if it is new.
func (t *Txn) Ref(obj queue.Persistent) queue.Ref {
	return queue.Ref{Database: t.db.name, OID: t.assign(obj)}
}

func (t *Txn) assign(obj queue.Persistent) string {
	if oid, ok := t.oids[obj]; ok {
		return oid
	}
	oid := uuid.NewString()
	t.oids[obj] = oid
	t.objects[oid] = obj
	return oid
}

// Abort discards the transaction.
func (t *Txn) Abort() {
	t.closed = true
}

// Commit publishes the transaction's changes. Objects that were also
// changed by a transaction that committed since Begin are merged with their
// ResolveConflict; if any merge fails, nothing is published and the error
// matches ErrConflict. The transaction is closed either way.
func (t *Txn) Commit(ctx context.Context) error {
	if t.closed {
		return ErrClosedTxn
	}
	t.closed = true
	db := t.db
	start := time.Now()
	outcome := outcomeError
	defer func() {
		db.metrics.commits.WithLabelValues(outcome).Inc()
		db.metrics.commitDuration.Observe(time.Since(start).Seconds())
	}()

	proposed, err := t.prepare()
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	current := db.table
	next := current.clone()
	var writes []*pending
	for _, oid := range slices.Sorted(maps.Keys(proposed)) {
		p := proposed[oid]
		ancestor := t.ancestors[oid]
		if p.rev == ancestor {
			continue
		}
		if committed := current.objects[oid]; committed != ancestor {
			p, err = t.resolve(ctx, oid, p, ancestor, committed)
			if err != nil {
				if errors.Is(err, ErrConflict) {
					outcome = outcomeConflict
				}
				return fmt.Errorf("object %s: %w", oid, err)
			}
		}
		next.objects[oid] = p.rev
		writes = append(writes, p)
	}
	rootsChanged := false
	for _, name := range slices.Sorted(maps.Keys(t.roots)) {
		oid := t.oids[t.roots[name]]
		base, hadBase := t.snapshot.roots[name]
		if hadBase && base == oid {
			continue
		}
		if committed, ok := current.roots[name]; ok && committed != oid && (!hadBase || committed != base) {
			outcome = outcomeConflict
			return &queue.ConflictError{
				Reason: queue.ReasonAttributes,
				Err:    fmt.Errorf("root %q was replaced concurrently", name),
			}
		}
		next.roots[name] = oid
		rootsChanged = true
	}
	if len(writes) == 0 && !rootsChanged {
		outcome = outcomeEmpty
		return nil
	}

	for _, p := range writes {
		if err := db.store(ctx, p.rev, p.encoded); err != nil {
			return err
		}
	}
	next.version++
	encoded := next.marshal()
	head := revision(encoded)
	if err := db.store(ctx, head, encoded); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	db.table = next
	db.head = head
	outcome = outcomeCommitted
	db.log.Debug("committed",
		zap.String("head", head),
		zap.Uint64("version", next.version),
		zap.Int("written", len(writes)))
	return nil
}

// prepare encodes every object the transaction knows about and every new
// object reachable from them.
func (t *Txn) prepare() (map[string]*pending, error) {
	res := map[string]*pending{}
	var work []queue.Persistent
	for _, oid := range slices.Sorted(maps.Keys(t.objects)) {
		work = append(work, t.objects[oid])
	}
	for _, name := range slices.Sorted(maps.Keys(t.roots)) {
		work = append(work, t.roots[name])
	}
	refOf := func(obj queue.Persistent) queue.Ref {
		ref := t.Ref(obj)
		if _, seen := res[ref.OID]; !seen {
			work = append(work, obj)
		}
		return ref
	}
	for len(work) > 0 {
		obj := work[0]
		work = work[1:]
		oid := t.assign(obj)
		if _, seen := res[oid]; seen {
			continue
		}
		p := &pending{obj: obj, kind: obj.Kind()}
		res[oid] = p
		encoded, err := t.db.codec.encode(p.kind, obj.State(), refOf)
		if err != nil {
			return nil, fmt.Errorf("object %s: %w", oid, err)
		}
		p.encoded = encoded
		p.rev = revision(encoded)
	}
	return res, nil
}

// resolve merges a proposed record with the one committed since the
// transaction loaded the object.
func (t *Txn) resolve(ctx context.Context, oid string, p *pending, ancestorRev, committedRev string) (*pending, error) {
	db := t.db
	if ancestorRev == "" {
		return nil, fmt.Errorf("new object id already committed: %w", ErrConflict)
	}
	ancestorKind, ancestor, err := db.loadRecord(ctx, ancestorRev)
	if err != nil {
		return nil, fmt.Errorf("ancestor: %w", err)
	}
	committedKind, committed, err := db.loadRecord(ctx, committedRev)
	if err != nil {
		return nil, fmt.Errorf("committed: %w", err)
	}
	_, proposed, err := db.codec.decode(p.encoded)
	if err != nil {
		return nil, fmt.Errorf("proposed: %w", err)
	}
	log := db.log.With(zap.String("oid", oid), zap.String("kind", p.kind))
	if ancestorKind != p.kind || committedKind != p.kind {
		db.metrics.conflicts.WithLabelValues(resultUnresolvable).Inc()
		return nil, &queue.ConflictError{
			Reason: queue.ReasonAttributes,
			Err:    fmt.Errorf("kinds differ: ancestor %s, committed %s, proposed %s", ancestorKind, committedKind, p.kind),
		}
	}
	log.Debug("resolving conflict",
		zap.String("ancestor", ancestorRev),
		zap.String("committed", committedRev))
	merged, err := p.obj.ResolveConflict(ancestor, committed, proposed)
	if err != nil {
		db.metrics.conflicts.WithLabelValues(resultUnresolvable).Inc()
		log.Info("unresolvable conflict", zap.Error(err))
		return nil, err
	}
	db.metrics.conflicts.WithLabelValues(resultResolved).Inc()
	encoded, err := db.codec.encode(p.kind, merged, t.Ref)
	if err != nil {
		return nil, fmt.Errorf("merged: %w", err)
	}
	return &pending{obj: p.obj, kind: p.kind, encoded: encoded, rev: revision(encoded)}, nil
}
