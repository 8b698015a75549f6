package gloop_test

import (
	"context"
	"testing"

	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/internal/gtest"
	"github.com/stretchr/testify/require"
)

// recordingObserver sends on a channel for every notification.
type recordingObserver struct {
	ch chan string
}

func (o recordingObserver) IterationBegin() { o.ch <- "begin" }
func (o recordingObserver) IterationEnd()   { o.ch <- "end" }

func TestRunner_observersBracketTasks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gloop.NewRunner(gtest.NewLogger(t), "main", 1)
	go r.Run(ctx)
	defer r.Wait()
	defer cancel()

	initObs := recordingObserver{ch: make(chan string, 4)}
	mainObs := recordingObserver{ch: make(chan string, 4)}
	r.ObserveInit(initObs)
	unregister := r.Observe(mainObs)

	ran := make(chan string, 1)
	require.True(t, r.Submit(ctx, func() { ran <- "init task" }))
	require.Equal(t, "init task", gtest.ReceiveSoon(t, ran))
	require.Equal(t, "begin", gtest.ReceiveSoon(t, initObs.ch))
	require.Equal(t, "end", gtest.ReceiveSoon(t, initObs.ch))
	gtest.NotSending(t, mainObs.ch)

	r.EndLaunch()

	require.True(t, r.Submit(ctx, func() { ran <- "main task" }))
	require.Equal(t, "main task", gtest.ReceiveSoon(t, ran))
	require.Equal(t, "begin", gtest.ReceiveSoon(t, mainObs.ch))
	require.Equal(t, "end", gtest.ReceiveSoon(t, mainObs.ch))
	gtest.NotSending(t, initObs.ch)

	unregister()
	unregister()

	require.True(t, r.Submit(ctx, func() { ran <- "unobserved" }))
	require.Equal(t, "unobserved", gtest.ReceiveSoon(t, ran))
	gtest.NotSendingSoon(t, mainObs.ch)
}

func TestRunner_activityAttach(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := gloop.NewRunner(gtest.NewLogger(t), "main", 1)
	go r.Run(ctx)
	defer r.Wait()
	defer cancel()

	a := gloop.NewActivity(gloop.SystemClock{})
	detach := a.Attach(r)
	defer detach()

	observed := make(chan bool, 1)
	require.True(t, r.Submit(ctx, func() {
		running, _ := a.Init.Snapshot()
		observed <- running
	}))
	require.True(t, gtest.ReceiveSoon(t, observed))

	r.EndLaunch()
	require.True(t, r.Submit(ctx, func() {
		running, _ := a.Main.Snapshot()
		observed <- running
	}))
	require.True(t, gtest.ReceiveSoon(t, observed))
}

func TestRunner_submitCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Unbuffered and never run, so the send can only be canceled.
	r := gloop.NewRunner(gtest.NewLogger(t), "main", 0)
	require.False(t, r.Submit(ctx, func() {}))
}
