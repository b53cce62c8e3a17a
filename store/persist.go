package store

import (
	"context"
	"fmt"
	"sync"
)

// Persist is the interface for loading and storing encoded records and
// object tables. A name always identifies the same content; stored blobs
// are never modified.
type Persist interface {
	// Store makes the given bytes accessible by the given name.
	Store(context.Context, string, []byte) error
	// Load retrieves the previously-stored bytes by the given name.
	Load(context.Context, string) ([]byte, error)
}

type inMemoryStore struct {
	entries map[string][]byte
	l       sync.Mutex
	stores  int
}

// NewInMemoryStore provides a Persist that keeps blobs in a map, usually for testing.
func NewInMemoryStore() Persist {
	return &inMemoryStore{}
}

func (ims *inMemoryStore) Store(ctx context.Context, name string, value []byte) error {
	ims.l.Lock()
	if ims.entries == nil {
		ims.entries = map[string][]byte{name: value}
	} else {
		ims.entries[name] = value
	}
	ims.stores++
	ims.l.Unlock()
	return nil
}

func (ims *inMemoryStore) Load(ctx context.Context, name string) ([]byte, error) {
	ims.l.Lock()
	value, ok := ims.entries[name]
	ims.l.Unlock()
	if !ok {
		return nil, fmt.Errorf("in-memory entry %s: %w", name, ErrNotFound)
	}
	return value, nil
}
