// Package gwatchdog detects stalls of a monitored event loop
// and attributes each stall to the call site found most often in stack samples.
//
// A [Watchdog] runs a kernel goroutine that repeats one cycle:
// check the loop's activity signal, handle any detected stall,
// then sample the loop's stack for the rest of the cycle.
// Samples therefore accumulate continuously,
// so a history already exists when a stall is detected.
//
// A detected stall passes through an adaptive filter
// (see package gfilter) before it is handed to the dump pipeline.
// Observers receive every step as an [Event].
package gwatchdog
