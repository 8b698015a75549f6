package gloop_test

import (
	"testing"
	"time"

	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/internal/gtest"
	"github.com/stretchr/testify/require"
)

func TestSignal_beginEnd(t *testing.T) {
	t.Parallel()

	var clk gtest.ManualClock
	s := gloop.NewSignal(&clk)

	running, start := s.Snapshot()
	require.False(t, running)
	require.Zero(t, start)

	clk.Set(10 * time.Millisecond)
	s.IterationBegin()

	running, start = s.Snapshot()
	require.True(t, running)
	require.Equal(t, 10*time.Millisecond, start)

	clk.Set(30 * time.Millisecond)
	s.IterationEnd()

	running, _ = s.Snapshot()
	require.False(t, running)
	require.Equal(t, 30*time.Millisecond, s.LastEnd())
}

func TestSignal_repeatedBeginKeepsStart(t *testing.T) {
	t.Parallel()

	var clk gtest.ManualClock
	s := gloop.NewSignal(&clk)

	clk.Set(time.Second)
	s.IterationBegin()

	clk.Set(3 * time.Second)
	s.IterationBegin()

	running, start := s.Snapshot()
	require.True(t, running)
	require.Equal(t, time.Second, start, "second begin must not restamp the start")
}

func TestSignal_runningReflectsLatestCall(t *testing.T) {
	t.Parallel()

	var clk gtest.ManualClock
	s := gloop.NewSignal(&clk)

	calls := []bool{true, false, true, true, false, false, true}
	for _, begin := range calls {
		clk.Advance(time.Millisecond)
		if begin {
			s.IterationBegin()
		} else {
			s.IterationEnd()
		}
		running, _ := s.Snapshot()
		require.Equal(t, begin, running)
	}
}

func TestSignal_longestIteration(t *testing.T) {
	t.Parallel()

	var clk gtest.ManualClock
	s := gloop.NewSignal(&clk)

	for _, d := range []time.Duration{5, 300, 20} {
		s.IterationBegin()
		clk.Advance(d * time.Millisecond)
		s.IterationEnd()
	}

	require.Equal(t, 300*time.Millisecond, s.TakeLongestIteration())
	require.Zero(t, s.TakeLongestIteration())
}

func TestActivity_launch(t *testing.T) {
	t.Parallel()

	a := gloop.NewActivity(gloop.SystemClock{})
	require.True(t, a.Launching())
	require.False(t, a.BackgroundLaunch())

	a.MarkBackgroundLaunch()
	require.True(t, a.BackgroundLaunch())

	a.EndLaunch()
	require.False(t, a.Launching())
}

func TestSystemClock_monotonic(t *testing.T) {
	t.Parallel()

	var c gloop.SystemClock
	a := c.Now()
	time.Sleep(time.Millisecond)
	require.Greater(t, c.Now(), a)
}
