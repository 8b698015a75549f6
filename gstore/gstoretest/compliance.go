// Package gstoretest contains compliance suites that every gstore implementation must pass.
package gstoretest

import (
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/gstall/gstore"
	"github.com/stretchr/testify/require"
)

type QuotaStoreFactory func(cleanup func(func())) (gstore.QuotaStore, error)

func TestQuotaStoreCompliance(t *testing.T, f QuotaStoreFactory) {
	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		_, err = s.LoadQuota(ctx)
		require.ErrorIs(t, err, gstore.ErrNoQuota)
	})

	t.Run("round trip and overwrite", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		q := gstore.Quota{Day: "2024-03-01", Count: 4}
		require.NoError(t, s.SaveQuota(ctx, q))

		got, err := s.LoadQuota(ctx)
		require.NoError(t, err)
		require.Equal(t, q, got)

		q2 := gstore.Quota{Day: "2024-03-02", Count: 1}
		require.NoError(t, s.SaveQuota(ctx, q2))

		got, err = s.LoadQuota(ctx)
		require.NoError(t, err)
		require.Equal(t, q2, got)
	})

	t.Run("stores values it does not validate", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		// Consumers treat these as corrupt and reset them,
		// so the store itself must hand them back unchanged.
		q := gstore.Quota{Day: "not a day", Count: -3}
		require.NoError(t, s.SaveQuota(ctx, q))

		got, err := s.LoadQuota(ctx)
		require.NoError(t, err)
		require.Equal(t, q, got)
	})
}

type LaunchStoreFactory func(cleanup func(func())) (gstore.LaunchStore, error)

func TestLaunchStoreCompliance(t *testing.T, f LaunchStoreFactory) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty store", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		ps, err := s.PendingLaunches(ctx)
		require.NoError(t, err)
		require.Empty(t, ps)

		require.NoError(t, s.RemovePendingLaunch(ctx, "unknown"))
	})

	t.Run("add, list, remove", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		late := gstore.PendingLaunch{ID: "b", Kind: "launch_block", Added: base.Add(time.Second)}
		early := gstore.PendingLaunch{ID: "c", Kind: "launch_block", Added: base}
		tied := gstore.PendingLaunch{ID: "a", Kind: "launch_block", Added: base.Add(time.Second)}

		require.NoError(t, s.AddPendingLaunch(ctx, late))
		require.NoError(t, s.AddPendingLaunch(ctx, early))
		require.NoError(t, s.AddPendingLaunch(ctx, tied))

		ps, err := s.PendingLaunches(ctx)
		require.NoError(t, err)
		requireLaunches(t, []gstore.PendingLaunch{early, tied, late}, ps)

		require.NoError(t, s.RemovePendingLaunch(ctx, "a"))

		ps, err = s.PendingLaunches(ctx)
		require.NoError(t, err)
		requireLaunches(t, []gstore.PendingLaunch{early, late}, ps)
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, err := f(t.Cleanup)
		require.NoError(t, err)

		p := gstore.PendingLaunch{ID: "dup", Kind: "launch_block", Added: base}
		require.NoError(t, s.AddPendingLaunch(ctx, p))

		err = s.AddPendingLaunch(ctx, p)
		require.ErrorIs(t, err, gstore.DuplicateLaunchError{ID: "dup"})

		// The original entry is unaffected.
		ps, err := s.PendingLaunches(ctx)
		require.NoError(t, err)
		requireLaunches(t, []gstore.PendingLaunch{p}, ps)
	})
}

func requireLaunches(t *testing.T, want, got []gstore.PendingLaunch) {
	t.Helper()

	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].ID, got[i].ID)
		require.Equal(t, want[i].Kind, got[i].Kind)
		require.Truef(
			t, want[i].Added.Equal(got[i].Added),
			"entry %d: want added %s, got %s", i, want[i].Added, got[i].Added,
		)
	}
}
