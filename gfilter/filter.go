// Package gfilter decides whether a detected stall should be reported.
//
// A stall is filtered when its point stack carries no signal,
// when it repeats the previously reported stall (annealing),
// or when the daily report quota is spent.
// Filtering never hides the detection itself; it only suppresses the report.
package gfilter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstore"
	"github.com/gordian-engine/gstall/gstore/gmemstore"
)

// Reason explains why a stall was or was not filtered.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonMeaningless
	ReasonAnnealing
	ReasonQuota
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMeaningless:
		return "meaningless"
	case ReasonAnnealing:
		return "annealing"
	case ReasonQuota:
		return "quota"
	default:
		return fmt.Sprintf("Reason(%d)", r)
	}
}

type Config struct {
	// Maximum reports per calendar day.
	DailyLimit int

	// Durable quota counter.
	// A nil store keeps the counter in memory for the life of the Filter.
	Quota gstore.QuotaStore

	// Wall clock for day keys. Defaults to time.Now.
	Now func() time.Time
}

// Filter holds the annealing state and applies the quota.
// It is owned by the watchdog goroutine and is not safe for concurrent use.
type Filter struct {
	log *slog.Logger

	limit int
	quota gstore.QuotaStore
	now   func() time.Time

	// Annealing interval in units of the check period.
	cur, prev int

	// Most recent stack that passed the annealing check.
	last gstack.Stack
}

func New(log *slog.Logger, cfg Config) (*Filter, error) {
	if cfg.DailyLimit <= 0 {
		return nil, fmt.Errorf("gfilter: DailyLimit must be positive; got %d", cfg.DailyLimit)
	}

	f := &Filter{
		log:   log,
		limit: cfg.DailyLimit,
		quota: cfg.Quota,
		now:   cfg.Now,
		cur:   1,
		prev:  1,
	}
	if f.now == nil {
		f.now = time.Now
	}
	if f.quota == nil {
		f.quota = gmemstore.NewStore()
	}
	return f, nil
}

// Check classifies a stall by its point stack.
//
// A stack equal to the last one that passed annealing grows the interval
// so that next = previous + current, and is filtered.
// Any other meaningful stack resets the interval, becomes the new baseline,
// and then consumes one unit of the daily quota if any remains.
func (f *Filter) Check(ctx context.Context, st gstack.Stack) Reason {
	if st.Depth() <= 1 {
		return ReasonMeaningless
	}

	if f.last != nil && f.last.Equal(st) {
		f.cur, f.prev = f.prev+f.cur, f.cur
		return ReasonAnnealing
	}

	f.cur, f.prev = 1, 1
	f.last = slices.Clone(st)

	if !f.takeQuota(ctx) {
		return ReasonQuota
	}
	return ReasonNone
}

// AllowAux applies only the quota, for reports not tied to a point stack.
func (f *Filter) AllowAux(ctx context.Context) bool {
	return f.takeQuota(ctx)
}

// ResetInterval restores the base interval after a cycle with no stall.
// The last reported stack is kept,
// so an identical stall after recovery is still annealed.
func (f *Filter) ResetInterval() {
	f.cur, f.prev = 1, 1
}

// IntervalUnits is the current annealing interval in units of the check period.
// The interval has no upper bound.
func (f *Filter) IntervalUnits() int {
	return f.cur
}

func (f *Filter) takeQuota(ctx context.Context) bool {
	today := gstore.Today(f.now())

	q, err := f.quota.LoadQuota(ctx)
	switch {
	case errors.Is(err, gstore.ErrNoQuota):
		q = gstore.Quota{Day: today}
	case err != nil:
		f.log.Warn("Failed to load quota; resetting", "err", err)
		q = gstore.Quota{Day: today}
	case q.Count < 0 || !validDay(q.Day):
		f.log.Warn("Corrupt quota state; resetting", "day", q.Day, "count", q.Count)
		q = gstore.Quota{Day: today}
	case q.Day != today:
		q = gstore.Quota{Day: today}
	}

	if q.Count >= f.limit {
		return false
	}

	q.Count++
	if err := f.quota.SaveQuota(ctx, q); err != nil {
		// Prefer reporting over strict accounting.
		f.log.Warn("Failed to save quota", "err", err)
	}
	return true
}

func validDay(day string) bool {
	_, err := time.Parse(gstore.DayLayout, day)
	return err == nil
}
