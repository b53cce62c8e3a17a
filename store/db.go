// Package store persists queue containers and commits concurrent
// transactions against them with optimistic concurrency control.
//
// Every object is stored as an immutable record named by the hash of its
// encoding. A DB's head names an object table mapping object ids to their
// current records. A transaction works on the table as of Begin; at commit,
// any object that another transaction changed in the meantime is merged
// with the object's ResolveConflict, and the commit fails with ErrConflict
// if that is not possible.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	queue "github.com/jrhy/zqueue"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultName is the database name used in Refs when Config.Name is empty.
	DefaultName = "main"
	// DefaultCacheSize is the number of records cached when Config.Cache is nil.
	DefaultCacheSize = 1000
)

// Config controls how a DB persists and loads objects.
type Config struct {
	// Persist stores records and object tables. Required.
	Persist Persist

	// Name identifies the database in Refs to its objects.
	Name string

	// Cache caches encoded records. Defaults to NewRevisionCache(DefaultCacheSize).
	Cache RevisionCache

	// ItemsLike is an instance of the type sequence items will be
	// deserialized as. By default, integers come back as int64.
	ItemsLike interface{}

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Registerer, if set, receives the DB's commit and conflict metrics.
	Registerer prometheus.Registerer

	// Kinds adds constructors for object kinds beyond the built-in "queue",
	// "bucket" and "composite".
	Kinds map[string]func() queue.Persistent
}

// DB is a set of persistent objects that transactions read and update.
type DB struct {
	name    string
	persist Persist
	cache   RevisionCache
	codec   *codec
	kinds   map[string]func() queue.Persistent
	log     *zap.Logger
	metrics *metrics

	mu    sync.Mutex
	table *table
	head  string
}

// Open returns a DB whose contents are the object table named by head, or
// an empty DB if head is "".
func Open(ctx context.Context, cfg Config, head string) (*DB, error) {
	if cfg.Persist == nil {
		return nil, errors.New("no Persist configured")
	}
	c, err := newCodec(cfg.ItemsLike)
	if err != nil {
		return nil, err
	}
	db := &DB{
		name:    cfg.Name,
		persist: cfg.Persist,
		cache:   cfg.Cache,
		codec:   c,
		kinds: map[string]func() queue.Persistent{
			"queue":     func() queue.Persistent { return queue.NewQueue() },
			"bucket":    func() queue.Persistent { return queue.NewBucket() },
			"composite": func() queue.Persistent { return queue.NewCompositeQueue() },
		},
		log:     cfg.Logger,
		metrics: newMetrics(cfg.Registerer),
		table:   newTable(),
	}
	if db.name == "" {
		db.name = DefaultName
	}
	if db.cache == nil {
		db.cache = NewRevisionCache(DefaultCacheSize)
	}
	if db.log == nil {
		db.log = zap.NewNop()
	}
	for kind, f := range cfg.Kinds {
		db.kinds[kind] = f
	}
	if head != "" {
		b, err := db.load(ctx, head)
		if err != nil {
			return nil, fmt.Errorf("load head %s: %w", head, err)
		}
		t, err := unmarshalTable(b)
		if err != nil {
			return nil, fmt.Errorf("head %s: %w", head, err)
		}
		db.table = t
		db.head = head
	}
	db.log.Debug("opened",
		zap.String("db", db.name),
		zap.String("head", head),
		zap.Int("objects", len(db.table.objects)))
	return db, nil
}

// Name returns the database name carried by Refs to its objects.
func (db *DB) Name() string {
	return db.name
}

// Head names the most recently committed object table, for a later Open.
// It is "" until the first commit of a new DB.
func (db *DB) Head() string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.head
}

// Begin starts a transaction that sees the DB as of now.
func (db *DB) Begin() *Txn {
	db.mu.Lock()
	snapshot := db.table
	db.mu.Unlock()
	return &Txn{
		db:        db,
		snapshot:  snapshot,
		objects:   map[string]queue.Persistent{},
		oids:      map[queue.Persistent]string{},
		ancestors: map[string]string{},
		roots:     map[string]queue.Persistent{},
	}
}

// Update runs f in a new transaction and commits it, or aborts it if f
// fails.
func (db *DB) Update(ctx context.Context, f func(*Txn) error) error {
	txn := db.Begin()
	if err := f(txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Commit(ctx)
}

func (db *DB) newObject(kind string) (queue.Persistent, error) {
	f, ok := db.kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	return f(), nil
}

func (db *DB) load(ctx context.Context, rev string) ([]byte, error) {
	if cached, ok := db.cache.Get(rev); ok {
		return cached.([]byte), nil
	}
	b, err := db.persist.Load(ctx, rev)
	if err != nil {
		return nil, fmt.Errorf("persist load %s: %w", rev, err)
	}
	db.cache.Add(rev, b)
	return b, nil
}

func (db *DB) loadRecord(ctx context.Context, rev string) (string, queue.State, error) {
	b, err := db.load(ctx, rev)
	if err != nil {
		return "", nil, err
	}
	kind, state, err := db.codec.decode(b)
	if err != nil {
		return "", nil, fmt.Errorf("decode %s: %w", rev, err)
	}
	return kind, state, nil
}

func (db *DB) store(ctx context.Context, rev string, b []byte) error {
	if db.cache.Contains(rev) {
		return nil
	}
	if err := db.persist.Store(ctx, rev, b); err != nil {
		return fmt.Errorf("persist store %s: %w", rev, err)
	}
	db.cache.Add(rev, b)
	return nil
}
