// Package gstore declares the durable state the watchdog keeps across restarts:
// the per-day report quota and the list of launch-stall reports
// that were started but not confirmed written.
//
// Implementations live in the gmemstore and gsqlite subpackages,
// and both are checked against the suites in gstoretest.
package gstore
