package gtest

import (
	"time"
)

// TestingFatalHelper is a subset of [testing.TB]
// sufficient for the channel helpers in this package.
type TestingFatalHelper interface {
	Helper()

	Fatalf(format string, args ...any)
}

// ReceiveSoon attempts to receive a value from ch.
// If the receive is blocked for a reasonable default timeout, tb.Fatal is called.
func ReceiveSoon[T any](tb TestingFatalHelper, ch <-chan T) T {
	tb.Helper()
	return ReceiveOrTimeout(tb, ch, ScaleMs(100))
}

// ReceiveOrTimeout attempts to receive a value from ch.
// If the value cannot be received within the given timeout, tb.Fatal is called.
//
// Watchdog tests frequently wait a full check cycle for an event,
// so they use ReceiveOrTimeout with a cycle-sized timeout
// where most other tests would use [ReceiveSoon].
func ReceiveOrTimeout[T any](tb TestingFatalHelper, ch <-chan T, timeout ScaledDuration) T {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("immediate failure to avoid blocking receive from nil channel %T %v", ch, ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(timeout))
	defer timer.Stop()

	select {
	case <-timer.C:
		tb.Fatalf(
			"timed out while blocked receiving from channel %T %v; if this is flaky on only one machine, set the environment variable GSTALL_TEST_TIME_FACTOR to a value greater than the current value of %g",
			ch, ch, TimeFactor,
		)
		// The fatal helper may be mocked in tests, so panic to avoid a return value.
		panic("unreachable")
	case x := <-ch:
		return x
	}
}

// NotSending asserts that a value is not immediately available to be read from ch.
func NotSending[T any](tb TestingFatalHelper, ch <-chan T) {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("immediate failure to check that a nil channel is not sending (%T %v)", ch, ch)
		panic("unreachable")
	}

	select {
	case x := <-ch:
		tb.Fatalf("no value should have been sent on channel %T %v; got %v", ch, ch, x)
	default:
		// Okay.
	}
}

// NotSendingSoon asserts that a read from ch is blocked for a short duration.
// Prefer [NotSending] when another synchronization point is available.
func NotSendingSoon[T any](tb TestingFatalHelper, ch <-chan T) {
	tb.Helper()
	NotSendingFor(tb, ch, ScaleMs(75))
}

// NotSendingFor asserts that a read from ch is blocked for the entire duration d.
func NotSendingFor[T any](tb TestingFatalHelper, ch <-chan T, d ScaledDuration) {
	tb.Helper()

	if ch == nil {
		tb.Fatalf("immediate failure to check that a nil channel is not sending (%T %v)", ch, ch)
		panic("unreachable")
	}

	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()

	select {
	case <-timer.C:
		// Okay.
	case x := <-ch:
		tb.Fatalf(
			"received value %v on channel %T %v, when it was expected not to send any values",
			x, ch, ch,
		)
		panic("unreachable")
	}
}
