package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned when a normalized index does not lie in [0, Len()).
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrZeroStep is returned by Slice when the step is zero.
	ErrZeroStep = errors.New("slice step cannot be zero")
	// ErrConflict signifies that concurrent changes cannot be merged, and the
	// proposing transaction must be aborted.
	ErrConflict = errors.New("unresolvable conflict")
	// ErrNotComparable is returned by item equality when two items cannot be
	// safely compared.
	ErrNotComparable = errors.New("items not comparable")
)

// ConflictReason says which rule made a merge impossible.
type ConflictReason int

const (
	// ReasonAttributes means attributes other than the sequence differ, or
	// the attribute names differ.
	ReasonAttributes ConflictReason = iota
	// ReasonDoubleRemove means both sides removed the same item.
	ReasonDoubleRemove
	// ReasonDoubleAdd means both sides added an equal item.
	ReasonDoubleAdd
	// ReasonBucketEmptied means one side emptied a bucket the other side kept.
	ReasonBucketEmptied
	// ReasonNotComparable means item equality failed.
	ReasonNotComparable
	// ReasonMalformed means a snapshot is missing its sequence or has the wrong shape.
	ReasonMalformed
)

func (r ConflictReason) String() string {
	switch r {
	case ReasonAttributes:
		return "attributes differ"
	case ReasonDoubleRemove:
		return "both removed the same item"
	case ReasonDoubleAdd:
		return "both added the same item"
	case ReasonBucketEmptied:
		return "bucket emptied on one side"
	case ReasonNotComparable:
		return "items not comparable"
	case ReasonMalformed:
		return "malformed state"
	}
	return fmt.Sprintf("ConflictReason(%d)", int(r))
}

// ConflictError is returned by conflict resolution. It matches ErrConflict
// with errors.Is, and unwraps to its cause, if any.
type ConflictError struct {
	Reason ConflictReason
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrConflict, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrConflict, e.Reason)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func conflict(reason ConflictReason, err error) error {
	return &ConflictError{Reason: reason, Err: err}
}

func indexError(index int) error {
	return fmt.Errorf("index %d: %w", index, ErrIndexOutOfRange)
}
