package hid

import (
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("queue full")

type OverflowPolicy int

const (
	// DropOldest discards the oldest queued event of the same class to make
	// room, the capture side never observes a failed push.
	DropOldest OverflowPolicy = iota
	// DropNewest rejects the incoming event instead.
	DropNewest
)

type QueueStats struct {
	Pushed    uint64
	Popped    uint64
	Dropped   uint64
	Len       int
	HighWater int
}

type ring struct {
	buf  []RawEvent
	head int
	size int
}

func (r *ring) push(e RawEvent, policy OverflowPolicy) (bool, bool) {
	if r.size == len(r.buf) {
		if policy == DropNewest {
			return false, true
		}
		r.buf[r.head] = e
		r.head = (r.head + 1) % len(r.buf)
		return true, true
	}
	r.buf[(r.head+r.size)%len(r.buf)] = e
	r.size++
	return true, false
}

func (r *ring) peek() (RawEvent, bool) {
	if r.size == 0 {
		return RawEvent{}, false
	}
	return r.buf[r.head], true
}

func (r *ring) pop() (RawEvent, bool) {
	e, ok := r.peek()
	if !ok {
		return RawEvent{}, false
	}
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return e, true
}

// Queue is the bounded buffer between the capture callback context and the
// polling scheduler. Push never blocks and is safe from any goroutine,
// popping is meant for the single scheduler goroutine.
//
// Events are kept FIFO per device class, each class bounded by the
// configured capacity. When both classes are dequeued together the
// interleaving is ordered by timestamp.
type Queue struct {
	mu       sync.Mutex
	mouse    ring
	keyboard ring

	policy OverflowPolicy

	pushed    uint64
	popped    uint64
	dropped   uint64
	highWater int
}

func NewQueue(capacity int, policy OverflowPolicy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		mouse:    ring{buf: make([]RawEvent, capacity)},
		keyboard: ring{buf: make([]RawEvent, capacity)},
		policy:   policy,
	}
}

func (q *Queue) classRing(class DeviceClass) *ring {
	if class == KeyboardClass {
		return &q.keyboard
	}
	return &q.mouse
}

func (q *Queue) Push(e RawEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, overflowed := q.classRing(e.Class()).push(e, q.policy)
	if overflowed {
		q.dropped++
	}
	if !stored {
		return ErrQueueFull
	}
	q.pushed++
	if n := q.mouse.size + q.keyboard.size; n > q.highWater {
		q.highWater = n
	}
	return nil
}

// PopClass appends up to max events of the given class to dst and returns
// the extended slice. It never blocks.
func (q *Queue) PopClass(class DeviceClass, dst []RawEvent, max int) []RawEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	r := q.classRing(class)
	for i := 0; i < max; i++ {
		e, ok := r.pop()
		if !ok {
			break
		}
		dst = append(dst, e)
		q.popped++
	}
	return dst
}

// PopBatch appends up to max events of any class to dst, merged in timestamp
// order across classes.
func (q *Queue) PopBatch(dst []RawEvent, max int) []RawEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := 0; i < max; i++ {
		m, mok := q.mouse.peek()
		k, kok := q.keyboard.peek()

		var r *ring
		switch {
		case mok && kok:
			if k.Time.Before(m.Time) {
				r = &q.keyboard
			} else {
				r = &q.mouse
			}
		case mok:
			r = &q.mouse
		case kok:
			r = &q.keyboard
		default:
			return dst
		}

		e, _ := r.pop()
		dst = append(dst, e)
		q.popped++
	}
	return dst
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mouse.size + q.keyboard.size
}

func (q *Queue) ClassLen(class DeviceClass) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.classRing(class).size
}

// Cap returns the per-class capacity.
func (q *Queue) Cap() int {
	return len(q.mouse.buf)
}

func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Pushed:    q.pushed,
		Popped:    q.popped,
		Dropped:   q.dropped,
		Len:       q.mouse.size + q.keyboard.size,
		HighWater: q.highWater,
	}
}
