package gstack_test

import (
	"testing"

	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstacktest"
	"github.com/gordian-engine/gstall/internal/gtest"
	"github.com/stretchr/testify/require"
)

const (
	watchdogThread gstack.ThreadID = 1
	mainThread     gstack.ThreadID = 2
	workerThread   gstack.ThreadID = 3
)

func newWalker(t *testing.T, cfg gstack.WalkerConfig) (*gstack.Walker, *gstacktest.Threads, *gstacktest.Memory) {
	t.Helper()

	threads := gstacktest.NewThreads(watchdogThread)
	mem := gstacktest.NewMemory()
	cfg.Threads = threads
	cfg.Memory = mem

	w, err := gstack.NewWalker(gtest.NewLogger(t), cfg)
	require.NoError(t, err)
	return w, threads, mem
}

func TestWalker_followsChain(t *testing.T) {
	t.Parallel()

	w, threads, mem := newWalker(t, gstack.WalkerConfig{})
	threads.Set(mainThread, mem.Chain(0x1000, 0xAA, 0xB1, 0xB2, 0xB3))

	st, err := w.Sample(mainThread, gstack.ModeCheap)
	require.NoError(t, err)
	require.Equal(t, gstack.Stack{0xAA, 0xB1, 0xB2, 0xB3}, st)

	// Cheap mode never suspends.
	s, r := threads.Calls(mainThread)
	require.Zero(t, s)
	require.Zero(t, r)
}

func TestWalker_stopConditions(t *testing.T) {
	t.Parallel()

	t.Run("null frame pointer", func(t *testing.T) {
		t.Parallel()

		w, threads, _ := newWalker(t, gstack.WalkerConfig{})
		threads.Set(mainThread, gstack.Registers{PC: 0xAA})

		st, err := w.Sample(mainThread, gstack.ModeCheap)
		require.NoError(t, err)
		require.Equal(t, gstack.Stack{0xAA}, st)
	})

	t.Run("null return address", func(t *testing.T) {
		t.Parallel()

		w, threads, mem := newWalker(t, gstack.WalkerConfig{})
		mem.Put(0x100, gstack.Frame{Prev: 0x110, Return: 0xB1})
		mem.Put(0x110, gstack.Frame{Prev: 0x120, Return: 0})
		mem.Put(0x120, gstack.Frame{Prev: 0x130, Return: 0xB3})
		threads.Set(mainThread, gstack.Registers{PC: 0xAA, FP: 0x100})

		st, err := w.Sample(mainThread, gstack.ModeCheap)
		require.NoError(t, err)
		require.Equal(t, gstack.Stack{0xAA, 0xB1}, st)
	})

	t.Run("null previous pointer", func(t *testing.T) {
		t.Parallel()

		w, threads, mem := newWalker(t, gstack.WalkerConfig{})
		mem.Put(0x100, gstack.Frame{Prev: 0x110, Return: 0xB1})
		mem.Put(0x110, gstack.Frame{Prev: 0, Return: 0xB2})
		threads.Set(mainThread, gstack.Registers{PC: 0xAA, FP: 0x100})

		st, err := w.Sample(mainThread, gstack.ModeCheap)
		require.NoError(t, err)
		require.Equal(t, gstack.Stack{0xAA, 0xB1}, st)
	})

	t.Run("faulting read", func(t *testing.T) {
		t.Parallel()

		w, threads, mem := newWalker(t, gstack.WalkerConfig{})
		regs := mem.Chain(0x100, 0xAA, 0xB1, 0xB2, 0xB3)
		mem.PanicAt(0x110)
		threads.Set(mainThread, regs)

		var st gstack.Stack
		require.NotPanics(t, func() {
			var err error
			st, err = w.Sample(mainThread, gstack.ModeCheap)
			require.NoError(t, err)
		})
		require.Equal(t, gstack.Stack{0xAA, 0xB1}, st)
	})

	t.Run("depth cap", func(t *testing.T) {
		t.Parallel()

		w, threads, mem := newWalker(t, gstack.WalkerConfig{MaxDepth: 3})
		threads.Set(mainThread, mem.Chain(0x100, 0xAA, 0xB1, 0xB2, 0xB3, 0xB4))

		st, err := w.Sample(mainThread, gstack.ModeCheap)
		require.NoError(t, err)
		require.Equal(t, gstack.Stack{0xAA, 0xB1, 0xB2}, st)
	})

	t.Run("default depth cap", func(t *testing.T) {
		t.Parallel()

		w, threads, mem := newWalker(t, gstack.WalkerConfig{})
		rets := make([]gstack.Addr, 2*gstack.DefaultMaxDepth)
		for i := range rets {
			rets[i] = gstack.Addr(0x5000 + i)
		}
		threads.Set(mainThread, mem.Chain(0x100, 0xAA, rets...))

		st, err := w.Sample(mainThread, gstack.ModeCheap)
		require.NoError(t, err)
		require.Len(t, st, gstack.DefaultMaxDepth)
	})
}

func TestWalker_addrMask(t *testing.T) {
	t.Parallel()

	w, threads, mem := newWalker(t, gstack.WalkerConfig{AddrMask: 0x0000_FFFF_FFFF_FFFF})
	threads.Set(mainThread, mem.Chain(0x100, 0xAB00_0000_0000_00AA, 0xCD00_0000_0000_00B1))

	st, err := w.Sample(mainThread, gstack.ModeCheap)
	require.NoError(t, err)
	require.Equal(t, gstack.Stack{0xAA, 0xB1}, st)
}

func TestWalker_unknownThread(t *testing.T) {
	t.Parallel()

	w, _, _ := newWalker(t, gstack.WalkerConfig{})

	_, err := w.Sample(mainThread, gstack.ModeCheap)
	var rse gstack.RegisterStateError
	require.ErrorAs(t, err, &rse)
	require.Equal(t, mainThread, rse.ID)
}

func TestWalker_suspendMode(t *testing.T) {
	t.Parallel()

	w, threads, mem := newWalker(t, gstack.WalkerConfig{})
	threads.Set(mainThread, mem.Chain(0x100, 0xAA, 0xB1))

	st, err := w.Sample(mainThread, gstack.ModeSuspend)
	require.NoError(t, err)
	require.Equal(t, gstack.Stack{0xAA, 0xB1}, st)

	s, r := threads.Calls(mainThread)
	require.Equal(t, 1, s)
	require.Equal(t, 1, r)
}

func TestWalker_neverSuspendsReserved(t *testing.T) {
	t.Parallel()

	w, threads, mem := newWalker(t, gstack.WalkerConfig{})
	threads.Set(watchdogThread, mem.Chain(0x100, 0xAA))
	threads.Set(workerThread, mem.Chain(0x200, 0xCC))

	_, err := w.Sample(watchdogThread, gstack.ModeSuspend)
	require.ErrorIs(t, err, gstack.ReservedThreadError{ID: watchdogThread})

	require.NoError(t, w.Reserve(workerThread))
	_, err = w.Sample(workerThread, gstack.ModeSuspend)
	require.ErrorAs(t, err, new(gstack.ReservedThreadError))

	s, _ := threads.Calls(watchdogThread)
	require.Zero(t, s)
	s, _ = threads.Calls(workerThread)
	require.Zero(t, s)
}

func TestWalker_reserveLimit(t *testing.T) {
	t.Parallel()

	w, _, _ := newWalker(t, gstack.WalkerConfig{})
	for i := range gstack.MaxReservedThreads {
		require.NoError(t, w.Reserve(gstack.ThreadID(100+i)))
	}

	// Reserving an already reserved thread is not an error.
	require.NoError(t, w.Reserve(100))

	require.ErrorIs(t, w.Reserve(999), gstack.ErrTooManyReserved)
}

func TestWalker_configValidation(t *testing.T) {
	t.Parallel()

	_, err := gstack.NewWalker(gtest.NewLogger(t), gstack.WalkerConfig{MaxDepth: -1})
	require.Error(t, err)
	require.ErrorContains(t, err, "Threads must not be nil")
	require.ErrorContains(t, err, "Memory must not be nil")
	require.ErrorContains(t, err, "MaxDepth")
}

func TestWalker_suspendAllRefCounted(t *testing.T) {
	t.Parallel()

	w, threads, mem := newWalker(t, gstack.WalkerConfig{})
	threads.Set(mainThread, mem.Chain(0x100, 0xAA, 0xB1))
	threads.Set(workerThread, mem.Chain(0x200, 0xCC))

	resume, err := w.SuspendAll()
	require.NoError(t, err)

	// Suspend-mode sample while everything is already suspended
	// must not suspend or resume the thread layer again.
	_, err = w.Sample(mainThread, gstack.ModeSuspend)
	require.NoError(t, err)

	s, r := threads.Calls(mainThread)
	require.Equal(t, 1, s)
	require.Zero(t, r)

	resume()
	resume()

	s, r = threads.Calls(mainThread)
	require.Equal(t, 1, s)
	require.Equal(t, 1, r)

	s, r = threads.Calls(workerThread)
	require.Equal(t, 1, s)
	require.Equal(t, 1, r)

	// The current thread was skipped entirely.
	s, _ = threads.Calls(watchdogThread)
	require.Zero(t, s)
}

func TestWalker_suspendAllSkipsFailures(t *testing.T) {
	t.Parallel()

	w, threads, mem := newWalker(t, gstack.WalkerConfig{})
	threads.Set(mainThread, mem.Chain(0x100, 0xAA))
	threads.Set(workerThread, mem.Chain(0x200, 0xCC))
	threads.FailSuspend(workerThread)

	resume, err := w.SuspendAll()
	require.NoError(t, err)
	resume()

	_, r := threads.Calls(workerThread)
	require.Zero(t, r, "a thread that failed to suspend must not be resumed")

	s, r := threads.Calls(mainThread)
	require.Equal(t, 1, s)
	require.Equal(t, 1, r)
}
