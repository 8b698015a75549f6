package gstore

import "errors"

// ErrNoQuota is returned by [QuotaStore.LoadQuota] before any quota is saved.
var ErrNoQuota = errors.New("no quota saved")

// DuplicateLaunchError is returned by [LaunchStore.AddPendingLaunch]
// when the ID is already pending.
type DuplicateLaunchError struct {
	ID string
}

func (e DuplicateLaunchError) Error() string {
	return "pending launch already recorded: " + e.ID
}
