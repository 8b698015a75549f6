package gloop

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/pprof"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gordian-engine/gstall/internal/gchan"
)

// LabelKey is the pprof label key set on a [Runner]'s goroutine.
// The label value is the runner's name.
// Goroutine-profile based stack samplers use the label to find the loop goroutine.
const LabelKey = "gstall.loop"

// Runner is an event loop that executes submitted tasks one at a time
// on a single goroutine locked to its OS thread.
// Each task is one loop iteration, bracketed by observer notifications.
type Runner struct {
	log  *slog.Logger
	name string

	tasks chan func()

	// Copy-on-write observer lists, so the loop goroutine
	// reads them without taking a lock.
	mu            sync.Mutex
	observers     atomic.Pointer[[]*observerEntry]
	initObservers atomic.Pointer[[]*observerEntry]

	launching atomic.Bool

	done chan struct{}
}

type observerEntry struct {
	o Observer
}

// NewRunner returns a Runner with the given name and task queue size.
// The runner starts in the launch phase; call [*Runner.EndLaunch]
// once startup work is complete.
func NewRunner(log *slog.Logger, name string, queueSize int) *Runner {
	r := &Runner{
		log:   log,
		name:  name,
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
	r.launching.Store(true)
	return r
}

func (r *Runner) Name() string {
	return r.name
}

func (r *Runner) Observe(o Observer) (unregister func()) {
	return r.register(&r.observers, o)
}

func (r *Runner) ObserveInit(o Observer) (unregister func()) {
	return r.register(&r.initObservers, o)
}

func (r *Runner) register(list *atomic.Pointer[[]*observerEntry], o Observer) func() {
	e := &observerEntry{o: o}

	r.mu.Lock()
	var next []*observerEntry
	if cur := list.Load(); cur != nil {
		next = slices.Clone(*cur)
	}
	next = append(next, e)
	list.Store(&next)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()

			cur := list.Load()
			if cur == nil {
				return
			}
			next := slices.DeleteFunc(slices.Clone(*cur), func(x *observerEntry) bool {
				return x == e
			})
			list.Store(&next)
		})
	}
}

// EndLaunch switches the runner from notifying init observers
// to notifying steady-state observers.
func (r *Runner) EndLaunch() {
	r.launching.Store(false)
}

// Submit enqueues task to run on the loop goroutine.
// It reports false if ctx is canceled before the task is enqueued.
func (r *Runner) Submit(ctx context.Context, task func()) bool {
	return gchan.SendC(ctx, r.log, r.tasks, task, "submitting loop task")
}

// Run executes tasks until ctx is canceled.
// Run must be called exactly once; it blocks the calling goroutine,
// which becomes the loop goroutine.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	pprof.Do(ctx, pprof.Labels(LabelKey, r.name), func(ctx context.Context) {
		r.log.Info("Loop starting", "name", r.name)
		for {
			select {
			case <-ctx.Done():
				r.log.Info("Loop stopping", "cause", context.Cause(ctx))
				return
			case task := <-r.tasks:
				r.iterate(task)
			}
		}
	})
}

// Wait blocks until Run returns.
func (r *Runner) Wait() {
	<-r.done
}

func (r *Runner) iterate(task func()) {
	list := &r.observers
	if r.launching.Load() {
		list = &r.initObservers
	}

	var obs []*observerEntry
	if p := list.Load(); p != nil {
		obs = *p
	}

	for _, e := range obs {
		e.o.IterationBegin()
	}
	defer func() {
		for _, e := range obs {
			e.o.IterationEnd()
		}
	}()

	task()
}
