package gwatchdog_test

import (
	"context"
	"testing"
	"time"

	"github.com/gordian-engine/gstall/gdump"
	"github.com/gordian-engine/gstall/gdump/gdumptest"
	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstacktest"
	"github.com/gordian-engine/gstall/gstore/gmemstore"
	"github.com/gordian-engine/gstall/gwatchdog"
	"github.com/gordian-engine/gstall/internal/gtest"
	"github.com/stretchr/testify/require"
)

const mainThread gstack.ThreadID = 1

var busyStack = gstack.Stack{0x1010, 0x2020, 0x3030}

type fixture struct {
	Clock    *gtest.ManualClock
	Activity *gloop.Activity
	Source   *gstacktest.Source
	Writer   *gdumptest.Writer
	Store    *gmemstore.Store

	Events chan gwatchdog.Event

	Cfg gwatchdog.Config
}

// newFixture returns a fixture whose stall timing is driven by a manual clock.
// Sampling still runs on real timers, so cycles take about 200ms.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := new(gtest.ManualClock)
	act := gloop.NewActivity(clock)
	act.EndLaunch()

	src := gstacktest.NewSource()
	src.SetStack(mainThread, busyStack)

	w := gdumptest.NewWriter(64)
	store := gmemstore.NewStore()

	cfg := gwatchdog.DefaultConfig()
	cfg.Activity = act
	cfg.Source = src
	cfg.MainThread = mainThread
	cfg.Pipeline = gdump.NewPipeline(gtest.NewLogger(t), w, store)
	cfg.Quota = store
	cfg.HangTimeout = 400 * time.Millisecond
	cfg.LowTimeout = 600 * time.Millisecond
	cfg.SampleInterval = 20 * time.Millisecond
	cfg.SensitiveLoopHang = 0

	return &fixture{
		Clock:    clock,
		Activity: act,
		Source:   src,
		Writer:   w,
		Store:    store,

		Events: make(chan gwatchdog.Event, 1024),

		Cfg: cfg,
	}
}

func (f *fixture) Start(t *testing.T, opts ...gwatchdog.Opt) *gwatchdog.Watchdog {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	rec := gwatchdog.ObserverFunc(func(e gwatchdog.Event) {
		select {
		case f.Events <- e:
		default:
		}
	})
	opts = append([]gwatchdog.Opt{gwatchdog.WithObserver(rec)}, opts...)

	w, err := gwatchdog.New(ctx, gtest.NewLogger(t), f.Cfg, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		w.Wait()
	})

	return w
}

// WaitEvent discards events until one of type typ arrives.
func (f *fixture) WaitEvent(t *testing.T, typ gwatchdog.EventType) gwatchdog.Event {
	t.Helper()

	timeout := time.After(gtest.ScaleMs(3000).Duration())
	for {
		select {
		case e := <-f.Events:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
			return gwatchdog.Event{}
		}
	}
}

// WaitCheck discards events until a check of the given kind completes.
func (f *fixture) WaitCheck(t *testing.T, kind gdump.Kind) gwatchdog.Event {
	t.Helper()

	timeout := time.After(gtest.ScaleMs(3000).Duration())
	for {
		select {
		case e := <-f.Events:
			if e.Type == gwatchdog.EventEnterNextCheck && e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s check", kind)
			return gwatchdog.Event{}
		}
	}
}

func (f *fixture) Payload(t *testing.T) gdump.Payload {
	t.Helper()
	return gtest.ReceiveOrTimeout(t, f.Writer.Payloads, gtest.ScaleMs(3000))
}

// Stall begins an iteration and advances the clock by d.
func (f *fixture) Stall(d time.Duration) {
	f.Activity.Main.IterationBegin()
	f.Clock.Advance(d)
}

// Drain discards every buffered event.
func (f *fixture) Drain() {
	for {
		select {
		case <-f.Events:
		default:
			return
		}
	}
}
