package gtest

import (
	"sync/atomic"
	"time"
)

// ManualClock is a monotonic clock whose reading only changes
// through calls to Advance or Set.
// It satisfies the clock interfaces used by the loop and watchdog packages.
type ManualClock struct {
	now atomic.Int64
}

func (c *ManualClock) Now() time.Duration {
	return time.Duration(c.now.Load())
}

// Advance moves the clock forward by d and returns the new reading.
func (c *ManualClock) Advance(d time.Duration) time.Duration {
	return time.Duration(c.now.Add(int64(d)))
}

func (c *ManualClock) Set(d time.Duration) {
	c.now.Store(int64(d))
}
