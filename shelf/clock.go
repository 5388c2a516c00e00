package shelf

import (
	"sync"
	"time"
)

// Clock supplies nanosecond timestamps. Timestamps double as timeline sort
// keys, so an engine-level clock must be strictly increasing: two calls never
// return the same value even when the wall clock stalls.
type Clock interface {
	Now() uint64
}

// SystemClock reads the wall clock and bumps by one nanosecond on a repeat
// reading, so same-instant writes cannot collide on a timeline key.
type SystemClock struct {
	lock sync.Mutex
	last uint64
}

func (c *SystemClock) Now() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	ns := uint64(time.Now().UnixNano())
	if ns <= c.last {
		ns = c.last + 1
	}
	c.last = ns
	return ns
}

// LogicalClock counts up from a fixed origin. Test use.
type LogicalClock struct {
	lock sync.Mutex
	now  uint64
}

func NewLogicalClock(origin uint64) *LogicalClock {
	return &LogicalClock{now: origin}
}

func (c *LogicalClock) Now() uint64 {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now++
	return c.now
}
