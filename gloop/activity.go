package gloop

import "sync/atomic"

// Activity bundles the signals a watchdog reads for one monitored loop:
// the steady-state signal, the signal for iterations during process launch,
// and whether the launch phase is still in progress.
type Activity struct {
	Main *Signal
	Init *Signal

	clock Clock

	launching  atomic.Bool
	background atomic.Bool
}

// NewActivity returns an Activity in the launching state.
func NewActivity(c Clock) *Activity {
	a := &Activity{
		Main:  NewSignal(c),
		Init:  NewSignal(c),
		clock: c,
	}
	a.launching.Store(true)
	return a
}

func (a *Activity) Clock() Clock {
	return a.clock
}

// Launching reports whether EndLaunch has not yet been called.
func (a *Activity) Launching() bool {
	return a.launching.Load()
}

// EndLaunch marks the end of the launch phase.
// Stalls detected after this call are steady-state stalls.
func (a *Activity) EndLaunch() {
	a.launching.Store(false)
}

// MarkBackgroundLaunch records that the process was launched
// without user-visible work, e.g. by a background fetch.
// Launch-phase stalls of a background launch are not reported as launch stalls.
func (a *Activity) MarkBackgroundLaunch() {
	a.background.Store(true)
}

func (a *Activity) BackgroundLaunch() bool {
	return a.background.Load()
}

// Attach registers a's signals with l.
// The returned function unregisters both signals.
func (a *Activity) Attach(l Loop) (detach func()) {
	offMain := l.Observe(a.Main)
	offInit := l.ObserveInit(a.Init)
	return func() {
		offMain()
		offInit()
	}
}
