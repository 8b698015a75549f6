// Package gdump hands finalized stall and auxiliary reports
// to a report-writer collaborator.
//
// Launch-stall reports are bracketed by entries in a durable side file
// ([gstore.LaunchStore]), so that a process killed while writing one
// leaves evidence that the next run can reconcile.
package gdump

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gordian-engine/gstall/gstore"
)

// Writer is the report-writer collaborator.
type Writer interface {
	// WriteReport persists p and returns where it was written.
	WriteReport(ctx context.Context, p Payload) (path string, err error)
}

type Pipeline struct {
	log *slog.Logger

	w        Writer
	launches gstore.LaunchStore

	now func() time.Time
}

// NewPipeline returns a pipeline writing through w.
// A nil launch store disables launch side-file tracking.
func NewPipeline(log *slog.Logger, w Writer, launches gstore.LaunchStore) *Pipeline {
	return &Pipeline{
		log:      log,
		w:        w,
		launches: launches,
		now:      time.Now,
	}
}

// Dump writes p.
// For launch kinds, p's ID is recorded as pending before the write
// and cleared once the writer returns.
func (p *Pipeline) Dump(ctx context.Context, pl Payload) (string, error) {
	tracked := false
	if pl.Kind.IsLaunch() && p.launches != nil {
		err := p.launches.AddPendingLaunch(ctx, gstore.PendingLaunch{
			ID:    pl.ID.String(),
			Kind:  pl.Kind.String(),
			Added: p.now(),
		})
		if err != nil {
			// Still write the report; only the kill detection is lost.
			p.log.Warn("Failed to record pending launch report", "id", pl.ID, "err", err)
		} else {
			tracked = true
		}
	}

	path, err := p.w.WriteReport(ctx, pl)

	if tracked {
		if rmErr := p.launches.RemovePendingLaunch(ctx, pl.ID.String()); rmErr != nil {
			p.log.Warn("Failed to clear pending launch report", "id", pl.ID, "err", rmErr)
		}
	}

	if err != nil {
		return "", fmt.Errorf("failed to write %s report: %w", pl.Kind, err)
	}
	return path, nil
}

// Reconcile returns launch reports left pending by a previous process
// and clears them from the side file.
func (p *Pipeline) Reconcile(ctx context.Context) ([]gstore.PendingLaunch, error) {
	if p.launches == nil {
		return nil, nil
	}

	pending, err := p.launches.PendingLaunches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending launches: %w", err)
	}

	for _, pl := range pending {
		if err := p.launches.RemovePendingLaunch(ctx, pl.ID); err != nil {
			return nil, fmt.Errorf("failed to clear pending launch %s: %w", pl.ID, err)
		}
	}
	return pending, nil
}
