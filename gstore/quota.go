package gstore

import (
	"context"
	"time"
)

// DayLayout is the layout of [Quota.Day].
const DayLayout = time.DateOnly

// Quota is the number of reports written on one calendar day.
type Quota struct {
	Day   string
	Count int
}

// Today returns the day key for t.
func Today(t time.Time) string {
	return t.Format(DayLayout)
}

// QuotaStore persists a single [Quota] value.
type QuotaStore interface {
	// LoadQuota returns the stored quota,
	// or [ErrNoQuota] if nothing has been saved yet.
	LoadQuota(ctx context.Context) (Quota, error)

	SaveQuota(ctx context.Context, q Quota) error
}
