package store

import (
	"errors"

	queue "github.com/jrhy/zqueue"
)

var (
	// ErrConflict is matched by every commit that failed because of a
	// concurrent, unresolvable change.
	ErrConflict = queue.ErrConflict
	// ErrNotFound indicates a missing root, object or blob.
	ErrNotFound = errors.New("not found")
	// ErrClosedTxn is returned when using a transaction after Commit or Abort.
	ErrClosedTxn = errors.New("transaction is closed")
	// ErrUnknownKind is returned when loading a record whose kind has no
	// registered constructor.
	ErrUnknownKind = errors.New("unknown object kind")
)
