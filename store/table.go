package store

import (
	"fmt"
	"maps"
	"slices"

	"google.golang.org/protobuf/encoding/protowire"
)

// table maps object ids to their current revisions, and root names to
// object ids. A table is never modified once published; commits install a
// new one.
type table struct {
	version uint64
	objects map[string]string
	roots   map[string]string
}

func newTable() *table {
	return &table{objects: map[string]string{}, roots: map[string]string{}}
}

func (t *table) clone() *table {
	return &table{
		version: t.version,
		objects: maps.Clone(t.objects),
		roots:   maps.Clone(t.roots),
	}
}

// Wire format, as protobuf fields:
//
//	1: version (varint)
//	2: object entry (bytes: 1 oid, 2 revision)
//	3: root entry (bytes: 1 name, 2 oid)
const (
	tableVersionField = 1
	tableObjectField  = 2
	tableRootField    = 3
	entryKeyField     = 1
	entryValueField   = 2
)

func (t *table) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, tableVersionField, protowire.VarintType)
	b = protowire.AppendVarint(b, t.version)
	b = appendEntries(b, tableObjectField, t.objects)
	b = appendEntries(b, tableRootField, t.roots)
	return b
}

func appendEntries(b []byte, field protowire.Number, m map[string]string) []byte {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		var entry []byte
		entry = protowire.AppendTag(entry, entryKeyField, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, entryValueField, protowire.BytesType)
		entry = protowire.AppendString(entry, m[k])
		b = protowire.AppendTag(b, field, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func unmarshalTable(b []byte) (*table, error) {
	t := newTable()
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("table tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == tableVersionField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("table version: %w", protowire.ParseError(n))
			}
			t.version = v
			b = b[n:]
		case (num == tableObjectField || num == tableRootField) && typ == protowire.BytesType:
			entry, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("table entry: %w", protowire.ParseError(n))
			}
			k, v, err := unmarshalEntry(entry)
			if err != nil {
				return nil, err
			}
			if num == tableObjectField {
				t.objects[k] = v
			} else {
				t.roots[k] = v
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("table field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return t, nil
}

func unmarshalEntry(b []byte) (string, string, error) {
	var k, v string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", "", fmt.Errorf("entry tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		if typ != protowire.BytesType || (num != entryKeyField && num != entryValueField) {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return "", "", fmt.Errorf("entry field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		s, n := protowire.ConsumeString(b)
		if n < 0 {
			return "", "", fmt.Errorf("entry field %d: %w", num, protowire.ParseError(n))
		}
		if num == entryKeyField {
			k = s
		} else {
			v = s
		}
		b = b[n:]
	}
	if k == "" {
		return "", "", fmt.Errorf("table entry has no key")
	}
	return k, v, nil
}
