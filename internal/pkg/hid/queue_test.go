package hid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func move(i int) RawEvent {
	return RawEvent{
		Kind: MouseMove,
		Time: base.Add(time.Duration(i) * time.Millisecond),
		DX:   float64(i),
	}
}

func key(i int) RawEvent {
	return RawEvent{
		Kind:    KeyTransition,
		Time:    base.Add(time.Duration(i) * time.Millisecond),
		Pressed: true,
	}
}

func TestQueueBoundedDropOldest(t *testing.T) {
	q := NewQueue(4, DropOldest)

	for i := 0; i < 10; i++ {
		err := q.Push(move(i))
		assert.Equal(t, nil, err)
		assert.LessOrEqual(t, q.Len(), 4)
	}

	stats := q.Stats()
	assert.Equal(t, uint64(10), stats.Pushed)
	assert.Equal(t, uint64(6), stats.Dropped)

	// the oldest entries were discarded, the freshest survived
	out := q.PopBatch(nil, 10)
	assert.Equal(t, 4, len(out))
	for i, e := range out {
		assert.Equal(t, float64(6+i), e.DX)
	}
}

func TestQueueBoundedDropNewest(t *testing.T) {
	q := NewQueue(4, DropNewest)

	for i := 0; i < 4; i++ {
		assert.Equal(t, nil, q.Push(move(i)))
	}
	err := q.Push(move(4))
	assert.ErrorIs(t, err, ErrQueueFull)

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Dropped)

	out := q.PopBatch(nil, 10)
	assert.Equal(t, 4, len(out))
	for i, e := range out {
		assert.Equal(t, float64(i), e.DX)
	}
}

func TestQueueClassIsolation(t *testing.T) {
	q := NewQueue(8, DropOldest)

	assert.Equal(t, nil, q.Push(move(0)))
	assert.Equal(t, nil, q.Push(key(1)))
	assert.Equal(t, nil, q.Push(move(2)))

	assert.Equal(t, 2, q.ClassLen(MouseClass))
	assert.Equal(t, 1, q.ClassLen(KeyboardClass))

	// draining one class leaves the other untouched
	out := q.PopClass(MouseClass, nil, 10)
	assert.Equal(t, 2, len(out))
	assert.Equal(t, 0, q.ClassLen(MouseClass))
	assert.Equal(t, 1, q.ClassLen(KeyboardClass))
}

func TestQueuePopBatchMergesByTimestamp(t *testing.T) {
	q := NewQueue(8, DropOldest)

	assert.Equal(t, nil, q.Push(move(0)))
	assert.Equal(t, nil, q.Push(move(4)))
	assert.Equal(t, nil, q.Push(key(1)))
	assert.Equal(t, nil, q.Push(key(5)))

	out := q.PopBatch(nil, 10)
	assert.Equal(t, 4, len(out))
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i].Time.Before(out[i-1].Time))
	}
}

func TestQueueHighWater(t *testing.T) {
	q := NewQueue(8, DropOldest)

	for i := 0; i < 5; i++ {
		assert.Equal(t, nil, q.Push(move(i)))
	}
	q.PopBatch(nil, 5)

	stats := q.Stats()
	assert.Equal(t, 5, stats.HighWater)
	assert.Equal(t, 0, stats.Len)
	assert.Equal(t, uint64(5), stats.Popped)
}
