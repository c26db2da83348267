// Package hlc provides a hybrid logical clock used to stamp sync envelopes
// and record update times. Stamps are informational: conflict resolution
// on the canvas stays receipt-order last-write-wins.
package hlc

import (
	"sync"
	"time"
)

// Timestamps pack into an int64: high 48 bits of physical milliseconds
// since the Unix epoch, low 16 bits of logical counter.
const (
	logicalBits = 16
	logicalMask = (1 << logicalBits) - 1
)

// Clock is a monotonic hybrid logical clock.
type Clock struct {
	mu     sync.Mutex
	latest int64
}

// New creates a clock.
func New() *Clock {
	return &Clock{}
}

// Now returns a timestamp strictly greater than any previously returned or
// observed one.
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := time.Now().UnixMilli()
	oldPhys := c.latest >> logicalBits
	oldLogical := c.latest & logicalMask

	var newPhys, newLogical int64
	if phys > oldPhys {
		newPhys, newLogical = phys, 0
	} else {
		newPhys, newLogical = oldPhys, oldLogical+1
	}
	// 逻辑计数溢出时借位到物理时间。
	if newLogical > logicalMask {
		newPhys, newLogical = newPhys+1, 0
	}

	c.latest = newPhys<<logicalBits | newLogical
	return c.latest
}

// Observe folds a remote timestamp into the clock so that the next Now is
// greater than anything already seen on the wire.
func (c *Clock) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if remote > c.latest {
		c.latest = remote
	}
}

// Physical extracts the physical milliseconds from a packed timestamp.
func Physical(ts int64) int64 {
	return ts >> logicalBits
}

// Logical extracts the logical counter from a packed timestamp.
func Logical(ts int64) int64 {
	return ts & logicalMask
}
