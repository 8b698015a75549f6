package glog

import "log/slog"

// Cycle returns a copy of log that includes the watchdog cycle number and event kind.
//
// Most log lines emitted while handling a detected stall carry both fields,
// so this saves repeating them at every call site.
func Cycle(log *slog.Logger, cycle uint64, kind string) *slog.Logger {
	return log.With("cycle", cycle, "kind", kind)
}
