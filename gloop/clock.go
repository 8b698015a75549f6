package gloop

import "time"

// Clock returns a monotonic reading.
// Only the difference between two readings is meaningful.
type Clock interface {
	Now() time.Duration
}

var processStart = time.Now()

// SystemClock is a [Clock] backed by the runtime's monotonic clock.
type SystemClock struct{}

func (SystemClock) Now() time.Duration {
	return time.Since(processStart)
}
