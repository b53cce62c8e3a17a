package queue

import (
	"fmt"
	"reflect"
)

// EqualFunc reports whether two items are equal. It returns an error
// when the items cannot be safely compared.
type EqualFunc func(a, b interface{}) (bool, error)

// An Equaler supplies its own equality. Equal returns an error wrapping
// ErrNotComparable if the other item is related but cannot be compared.
type Equaler interface {
	Equal(other interface{}) (bool, error)
}

// DefaultEqual is the EqualFunc used unless another is configured. Items of
// different dynamic types are unequal. Equalers are consulted first, and
// their errors are returned as-is.
func DefaultEqual(a, b interface{}) (bool, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	if e, ok := a.(Equaler); ok {
		return e.Equal(b)
	}
	if e, ok := b.(Equaler); ok {
		return e.Equal(a)
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return false, nil
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b), nil
	}
	return comparableEqual(a, b)
}

// comparableEqual still panics for a comparable type whose interface
// field holds an uncomparable value.
func comparableEqual(a, b interface{}) (equal bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%T: %v: %w", a, r, ErrNotComparable)
		}
	}()
	return a == b, nil
}

// Ref refers to another managed object by its identifier, within a
// database. Hosts substitute Refs for nested objects in the snapshots they
// hand to conflict resolution.
type Ref struct {
	Database string
	OID      string
}

// Equal implements Equaler. Refs from different databases cannot be compared.
func (r Ref) Equal(other interface{}) (bool, error) {
	var o Ref
	switch v := other.(type) {
	case Ref:
		o = v
	case *Ref:
		if v == nil {
			return false, nil
		}
		o = *v
	default:
		return false, nil
	}
	if r.Database != o.Database {
		return false, fmt.Errorf("ref %s in %q vs %s in %q: %w",
			r.OID, r.Database, o.OID, o.Database, ErrNotComparable)
	}
	return r.OID == o.OID, nil
}

func (r Ref) String() string {
	if r.Database == "" {
		return "ref:" + r.OID
	}
	return "ref:" + r.Database + "/" + r.OID
}
