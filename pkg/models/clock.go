package models

import (
	"sync"
	"time"
)

// RoundClock measures time from the start of a round. Readings never go
// backwards, even if the underlying clock does.
type RoundClock struct {
	mu    sync.Mutex
	now   func() time.Time
	start time.Time
	last  time.Duration
}

// NewRoundClock starts a round at now(). A nil now uses time.Now.
func NewRoundClock(now func() time.Time) *RoundClock {
	if now == nil {
		now = time.Now
	}
	return &RoundClock{now: now, start: now()}
}

// Since returns the elapsed round time.
func (c *RoundClock) Since() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.now().Sub(c.start)
	if d < c.last {
		d = c.last
	}
	c.last = d
	return d
}
