package hlc

import (
	"sync"
	"time"
)

// logicalBits is the number of low bits reserved for the logical counter
const logicalBits = 16

const logicalMask = 1<<logicalBits - 1

// Clock is a hybrid logical clock. Timestamps are physical milliseconds shifted
// left by 16 bits plus a logical counter, so they fit a uint64 write index and
// stay close to wall time.
//
// Thread-safety: all methods are safe for concurrent use
type Clock struct {
	mu   sync.Mutex
	last uint64
	now  func() time.Time
}

// New creates a clock reading the system time
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithSource creates a clock reading the given time source (used by tests)
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) physical() uint64 {
	return uint64(c.now().UnixMilli()) << logicalBits
}

// Now returns a timestamp strictly greater than every timestamp returned or observed before
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pt := c.physical(); pt > c.last {
		c.last = pt
	} else {
		c.last++
	}
	return c.last
}

// Observe advances the clock past a timestamp received from another Seed
func (c *Clock) Observe(remote uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.last {
		c.last = remote
	}
}

// Peek returns the last issued timestamp without advancing the clock
func (c *Clock) Peek() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Ticks converts a duration into write-index ticks. Durations below one
// millisecond round up to one millisecond; zero stays zero.
func Ticks(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms == 0 {
		ms = 1
	}
	return uint64(ms) << logicalBits
}

// Duration converts write-index ticks back into a duration
func Duration(ticks uint64) time.Duration {
	return time.Duration(ticks>>logicalBits) * time.Millisecond
}

// Physical returns the wall time encoded in a timestamp
func Physical(ts uint64) time.Time {
	return time.UnixMilli(int64(ts >> logicalBits))
}
