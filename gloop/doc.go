// Package gloop contains the loop activity signal that a watchdog reads
// to decide whether a monitored event loop is making progress,
// and a concrete event loop ([Runner]) that publishes that signal.
//
// The monitored loop goroutine is the only writer of a [Signal].
// Every field is a word-sized atomic, so a reader on another goroutine
// observes each field without tearing;
// the pair of fields may be momentarily inconsistent,
// and readers are expected to re-validate on their next poll.
package gloop
