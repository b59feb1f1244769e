package revision

import "sync/atomic"

// Counter is the process-wide ConfigVersion: a coarse "something changed"
// signal bumped by every store-level mutation.
type Counter struct {
	v atomic.Int64
}

func New() *Counter {
	return &Counter{}
}

// Bump increments and returns the new value.
func (c *Counter) Bump() int64 {
	if c == nil {
		return 0
	}
	return c.v.Add(1)
}

func (c *Counter) Current() int64 {
	if c == nil {
		return 0
	}
	return c.v.Load()
}

// Observe raises the counter to at least v. Used when restoring from a backend.
func (c *Counter) Observe(v int64) {
	if c == nil {
		return
	}
	for {
		cur := c.v.Load()
		if v <= cur || c.v.CompareAndSwap(cur, v) {
			return
		}
	}
}
