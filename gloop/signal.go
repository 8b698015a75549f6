package gloop

import (
	"sync/atomic"
	"time"
)

// Signal records whether a loop is in the middle of an iteration,
// and when that iteration began.
//
// IterationBegin and IterationEnd must only be called from the loop goroutine.
// All other methods are safe to call from any goroutine.
type Signal struct {
	clock Clock

	running atomic.Bool

	// Readings from clock, stored as int64 nanoseconds.
	start, end atomic.Int64

	// Longest completed iteration since the last TakeLongestIteration call.
	longest atomic.Int64
}

// NewSignal returns a Signal stamped by the given clock.
func NewSignal(c Clock) *Signal {
	return &Signal{clock: c}
}

// IterationBegin marks the start of a loop iteration.
// The start time is only stamped when the loop was previously idle,
// so nested or repeated begin calls do not reset the stall timer.
func (s *Signal) IterationBegin() {
	if !s.running.Load() {
		// Publish the start before running,
		// so a reader who sees running=true also sees this start.
		s.start.Store(int64(s.clock.Now()))
	}
	s.running.Store(true)
}

// IterationEnd marks the end of a loop iteration.
func (s *Signal) IterationEnd() {
	now := int64(s.clock.Now())
	s.end.Store(now)

	if s.running.Load() {
		d := now - s.start.Load()
		for {
			cur := s.longest.Load()
			if d <= cur || s.longest.CompareAndSwap(cur, d) {
				break
			}
		}
	}

	s.running.Store(false)
}

// Snapshot reports whether the loop is currently inside an iteration,
// and the start time of the current (or most recent) iteration.
func (s *Signal) Snapshot() (running bool, start time.Duration) {
	running = s.running.Load()
	start = time.Duration(s.start.Load())
	return running, start
}

// LastEnd returns the clock reading of the most recent IterationEnd call,
// or zero if the loop has never completed an iteration.
func (s *Signal) LastEnd() time.Duration {
	return time.Duration(s.end.Load())
}

// TakeLongestIteration returns the longest completed iteration
// since the previous call, and resets the record.
func (s *Signal) TakeLongestIteration() time.Duration {
	return time.Duration(s.longest.Swap(0))
}
