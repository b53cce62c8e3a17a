package queue

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/arbitrary"
	"github.com/leanovate/gopter/gen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultGopterParameters = gopter.DefaultTestParameters()

func items(s Sequence) []interface{} {
	var res []interface{}
	for item := range s.All() {
		res = append(res, item)
	}
	return res
}

func TestNew(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	require.Equal(t, 0, q.Len())
	require.True(t, q.IsEmpty())
	_, err := q.PullFront()
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestPutPull(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.Put(1)
	q.Put("two")
	q.Put(3)
	require.Equal(t, 3, q.Len())
	require.False(t, q.IsEmpty())
	require.Equal(t, []interface{}{1, "two", 3}, items(q))

	v, err := q.Pull(1)
	require.NoError(t, err)
	require.Equal(t, "two", v)
	v, err = q.PullFront()
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.Equal(t, []interface{}{3}, items(q))
}

func TestPullNegative(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	for _, v := range []interface{}{"a", "b", "c", "d"} {
		q.Put(v)
	}
	v, err := q.Pull(-1)
	require.NoError(t, err)
	require.Equal(t, "d", v)
	v, err = q.Pull(-3)
	require.NoError(t, err)
	require.Equal(t, "a", v)

	_, err = q.Pull(-3)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = q.Pull(2)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	require.Equal(t, []interface{}{"b", "c"}, items(q))
}

func TestAt(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.Put("a")
	q.Put("b")
	v, err := q.At(0)
	require.NoError(t, err)
	assert.Equal(t, "a", v)
	v, err = q.At(-1)
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	_, err = q.At(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = q.At(-3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, 2, q.Len())
}

func TestSlice(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	for _, v := range []interface{}{"a", "b", "c", "d"} {
		q.Put(v)
	}
	cases := []struct {
		start, stop, step int
		expected          []interface{}
	}{
		{Open, Open, -1, []interface{}{"d", "c", "b", "a"}},
		{Open, 1, 1, []interface{}{"a"}},
		{1, Open, 1, []interface{}{"b", "c", "d"}},
		{Open, Open, 2, []interface{}{"a", "c"}},
		{-2, Open, 1, []interface{}{"c", "d"}},
		{Open, -2, -1, []interface{}{"d"}},
		{2, 0, -1, []interface{}{"c", "b"}},
		{-100, 100, 1, []interface{}{"a", "b", "c", "d"}},
		{100, -100, -1, []interface{}{"d", "c", "b", "a"}},
		{3, 1, 1, []interface{}{}},
		{1, Open, math.MaxInt, []interface{}{"b"}},
		{Open, Open, math.MaxInt, []interface{}{"a"}},
		{-2, Open, math.MinInt, []interface{}{"c"}},
		{Open, Open, math.MinInt, []interface{}{"d"}},
		{Open, Open, -3, []interface{}{"d", "a"}},
		{0, 4, 3, []interface{}{"a", "d"}},
	}
	for _, c := range cases {
		actual, err := q.Slice(c.start, c.stop, c.step)
		require.NoError(t, err)
		assert.Equal(t, c.expected, actual, "slice %d:%d:%d", c.start, c.stop, c.step)
	}
	_, err := q.Slice(Open, Open, 0)
	require.ErrorIs(t, err, ErrZeroStep)
}

func TestPullFrontThroughSequence(t *testing.T) {
	t.Parallel()
	for _, s := range []Sequence{NewQueue(), NewBucket(), NewCompositeQueue(WithTargetBucketSize(1))} {
		s.Put("a")
		s.Put("b")
		v, err := s.PullFront()
		require.NoError(t, err)
		require.Equal(t, "a", v)
		require.Equal(t, []interface{}{"b"}, items(s))
		_, err = s.PullFront()
		require.NoError(t, err)
		_, err = s.PullFront()
		require.ErrorIs(t, err, ErrIndexOutOfRange, "%T", s)
	}
}

func TestIterDone(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.Put(1)
	q.Put(2)
	q.Put(3)
	done := errors.New("done")
	var seen []interface{}
	err := q.Iter(func(item interface{}) error {
		seen = append(seen, item)
		if item == 2 {
			return done
		}
		return nil
	})
	require.ErrorIs(t, err, done)
	require.Equal(t, []interface{}{1, 2}, seen)
}

func TestAllIsRestartable(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.Put(1)
	q.Put(2)
	all := q.All()
	var first, second []interface{}
	for v := range all {
		first = append(first, v)
	}
	for v := range all {
		second = append(second, v)
	}
	require.Equal(t, first, second)
	for v := range all {
		require.Equal(t, 1, v)
		break
	}
}

func TestStateIsASnapshot(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.Put(1)
	s := q.State()
	q.Put(2)
	_, err := q.PullFront()
	require.NoError(t, err)
	require.Equal(t, State{DataAttr: []interface{}{1}}, s)

	q2 := NewQueue()
	require.NoError(t, q2.SetState(s))
	s[DataAttr].([]interface{})[0] = 100
	require.Equal(t, []interface{}{1}, items(q2))

	require.Error(t, q2.SetState(State{}))
	require.Error(t, q2.SetState(State{DataAttr: "nope"}))
}

func TestKinds(t *testing.T) {
	t.Parallel()
	var p Persistent = NewQueue()
	assert.Equal(t, "queue", p.Kind())
	p = NewBucket()
	assert.Equal(t, "bucket", p.Kind())
	p = &PersistentQueue{}
	assert.Equal(t, "bucket", p.Kind())
	p = NewCompositeQueue()
	assert.Equal(t, "composite", p.Kind())
	var _ Sequence = &CompositePersistentQueue{}
}

func TestFIFO(t *testing.T) {
	t.Parallel()
	properties := gopter.NewProperties(defaultGopterParameters)
	arbitraries := arbitrary.DefaultArbitraries()
	arbitraries.RegisterGen(gen.IntRange(-1000, 1000))

	properties.Property("pulls from the front return items in put order",
		arbitraries.ForAll(
			func(values []int) bool {
				q := NewQueue()
				for _, v := range values {
					q.Put(v)
				}
				for _, v := range values {
					pulled, err := q.PullFront()
					if err != nil || pulled != v {
						return false
					}
				}
				return q.IsEmpty()
			}))
	properties.Property("pull(-1) is pull(len-1), pull(-(len+1)) fails",
		arbitraries.ForAll(
			func(values []int) bool {
				if len(values) == 0 {
					return true
				}
				a, b := NewQueue(), NewQueue()
				for _, v := range values {
					a.Put(v)
					b.Put(v)
				}
				if _, err := a.Pull(-(len(values) + 1)); !errors.Is(err, ErrIndexOutOfRange) {
					return false
				}
				va, erra := a.Pull(-1)
				vb, errb := b.Pull(len(values) - 1)
				return erra == nil && errb == nil && va == vb &&
					assert.ObjectsAreEqual(items(a), items(b))
			}))
	properties.TestingRun(t)
}
