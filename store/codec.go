package store

import (
	"encoding/base64"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	queue "github.com/jrhy/zqueue"
	"github.com/minio/blake2b-simd"
)

// RefTag is the CBOR tag number that marks a reference to another stored
// object.
const RefTag = 1634103141

type record struct {
	Kind  string                 `cbor:"kind"`
	State map[string]interface{} `cbor:"state"`
}

type codec struct {
	enc      cbor.EncMode
	dec      cbor.DecMode
	itemType reflect.Type
}

func newCodec(itemsLike interface{}) (*codec, error) {
	tags := cbor.NewTagSet()
	err := tags.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(queue.Ref{}),
		RefTag,
	)
	if err != nil {
		return nil, fmt.Errorf("register ref tag: %w", err)
	}
	enc, err := cbor.CoreDetEncOptions().EncModeWithTags(tags)
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecModeWithTags(tags)
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	c := &codec{enc: enc, dec: dec}
	if itemsLike != nil {
		c.itemType = reflect.TypeOf(itemsLike)
	}
	return c, nil
}

// encode serializes an object's state, replacing every nested Persistent
// with the Ref that refOf assigns it. Nil and empty sequences encode the
// same.
func (c *codec) encode(kind string, state queue.State, refOf func(queue.Persistent) queue.Ref) ([]byte, error) {
	r := record{Kind: kind, State: make(map[string]interface{}, len(state))}
	for k, v := range state {
		r.State[k] = toRefs(v, refOf)
	}
	b, err := c.enc.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return b, nil
}

func toRefs(v interface{}, refOf func(queue.Persistent) queue.Ref) interface{} {
	switch v := v.(type) {
	case queue.Persistent:
		return refOf(v)
	case []interface{}:
		res := make([]interface{}, len(v))
		for i, item := range v {
			res[i] = toRefs(item, refOf)
		}
		return res
	default:
		return v
	}
}

// decode is the inverse of encode. Nested objects come back as queue.Ref;
// sequence items are converted to the configured item type.
func (c *codec) decode(b []byte) (string, queue.State, error) {
	var r record
	if err := c.dec.Unmarshal(b, &r); err != nil {
		return "", nil, fmt.Errorf("unmarshal: %w", err)
	}
	if r.Kind == "" {
		return "", nil, fmt.Errorf("record has no kind")
	}
	state := make(queue.State, len(r.State))
	for k, v := range r.State {
		seq, ok := v.([]interface{})
		if !ok || c.itemType == nil {
			state[k] = v
			continue
		}
		for i, item := range seq {
			typed, err := c.convert(item)
			if err != nil {
				return "", nil, fmt.Errorf("%s[%d]: %w", k, i, err)
			}
			seq[i] = typed
		}
		state[k] = seq
	}
	return r.Kind, state, nil
}

func (c *codec) convert(item interface{}) (interface{}, error) {
	if _, isRef := item.(queue.Ref); isRef || item == nil {
		return item, nil
	}
	b, err := c.enc.Marshal(item)
	if err != nil {
		return nil, err
	}
	aCopy := reflect.New(c.itemType)
	if err := c.dec.Unmarshal(b, aCopy.Interface()); err != nil {
		return nil, fmt.Errorf("cannot unmarshal item as %v: %w", c.itemType, err)
	}
	return aCopy.Elem().Interface(), nil
}

// revision names encoded content.
func revision(encoded []byte) string {
	hashBytes := blake2b.Sum256(encoded)
	return base64.RawURLEncoding.EncodeToString(hashBytes[:])
}
