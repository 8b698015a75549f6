package gstore

import (
	"context"
	"time"
)

// PendingLaunch is a launch-stall report that was started but not yet confirmed written.
type PendingLaunch struct {
	ID    string
	Kind  string
	Added time.Time
}

// LaunchStore is the durable side file of in-flight launch-stall reports.
//
// An entry is added before a launch report is written and removed after.
// Entries found at startup belong to a process that was killed mid-report.
type LaunchStore interface {
	// AddPendingLaunch records p.
	// Adding an ID that is already present returns [DuplicateLaunchError].
	AddPendingLaunch(ctx context.Context, p PendingLaunch) error

	// RemovePendingLaunch removes the entry with the given ID.
	// Removing an unknown ID is not an error.
	RemovePendingLaunch(ctx context.Context, id string) error

	// PendingLaunches returns every entry, ordered by Added then ID.
	PendingLaunches(ctx context.Context) ([]PendingLaunch, error)
}

// Store satisfies every store interface in this package.
type Store interface {
	QuotaStore
	LaunchStore
}
