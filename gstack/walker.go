package gstack

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

const (
	// DefaultMaxDepth bounds the number of addresses in one sample.
	DefaultMaxDepth = 100

	// MaxReservedThreads bounds the set of threads that are never suspended.
	MaxReservedThreads = 10
)

type WalkerConfig struct {
	Threads ThreadLayer
	Memory  Memory

	// Maximum addresses per sample. Defaults to DefaultMaxDepth when zero.
	MaxDepth int

	// Every address is ANDed with AddrMask before it is recorded,
	// which strips pointer-authentication bits on platforms that sign return addresses.
	// Zero means no masking.
	AddrMask Addr

	// Threads never to suspend, in addition to the thread calling into the Walker.
	Reserved []ThreadID
}

func (c WalkerConfig) validate() error {
	var err error
	if c.Threads == nil {
		err = errors.Join(err, errors.New("WalkerConfig.Threads must not be nil"))
	}
	if c.Memory == nil {
		err = errors.Join(err, errors.New("WalkerConfig.Memory must not be nil"))
	}
	if c.MaxDepth < 0 {
		err = errors.Join(err, errors.New("WalkerConfig.MaxDepth must not be negative"))
	}
	if len(c.Reserved) > MaxReservedThreads {
		err = errors.Join(err, fmt.Errorf(
			"WalkerConfig.Reserved has %d threads; at most %d allowed",
			len(c.Reserved), MaxReservedThreads,
		))
	}
	return err
}

// Walker samples threads by walking their frame-pointer chains.
type Walker struct {
	log *slog.Logger

	threads ThreadLayer
	mem     Memory

	maxDepth int
	mask     Addr

	mu        sync.Mutex
	reserved  []ThreadID
	suspended map[ThreadID]int
}

func NewWalker(log *slog.Logger, cfg WalkerConfig) (*Walker, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid walker config: %w", err)
	}

	w := &Walker{
		log:       log,
		threads:   cfg.Threads,
		mem:       cfg.Memory,
		maxDepth:  cfg.MaxDepth,
		mask:      cfg.AddrMask,
		reserved:  slices.Clone(cfg.Reserved),
		suspended: make(map[ThreadID]int),
	}
	if w.maxDepth == 0 {
		w.maxDepth = DefaultMaxDepth
	}
	if w.mask == 0 {
		w.mask = ^Addr(0)
	}
	return w, nil
}

// Reserve adds id to the set of threads that are never suspended.
func (w *Walker) Reserve(id ThreadID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if slices.Contains(w.reserved, id) {
		return nil
	}
	if len(w.reserved) >= MaxReservedThreads {
		return ErrTooManyReserved
	}
	w.reserved = append(w.reserved, id)
	return nil
}

func (w *Walker) Threads() ([]ThreadID, error) {
	return w.threads.Threads()
}

// Sample captures the stack of thread id.
//
// In [ModeSuspend], the thread is suspended for the duration of the walk.
// Asking to suspend a reserved thread or the calling thread
// returns a [ReservedThreadError].
func (w *Walker) Sample(id ThreadID, mode Mode) (Stack, error) {
	if mode == ModeSuspend {
		if err := w.suspend(id); err != nil {
			return nil, err
		}
		defer w.resume(id)
	}

	regs, err := w.threads.RegisterState(id)
	if err != nil {
		return nil, RegisterStateError{ID: id, Err: err}
	}

	return w.walk(regs), nil
}

func (w *Walker) walk(regs Registers) Stack {
	st := make(Stack, 0, 32)
	st = append(st, regs.PC&w.mask)

	fp := regs.FP
	for len(st) < w.maxDepth && fp != 0 {
		fr, ok := w.readFrame(fp)
		if !ok || fr.Prev == 0 || fr.Return == 0 {
			break
		}
		st = append(st, fr.Return&w.mask)
		fp = fr.Prev
	}

	return st
}

func (w *Walker) readFrame(fp Addr) (fr Frame, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Debug("Recovered from frame read", "fp", fp, "panic", r)
			fr, ok = Frame{}, false
		}
	}()
	return w.mem.ReadFrame(fp)
}

func (w *Walker) isReservedLocked(id ThreadID) bool {
	return id == w.threads.Current() || slices.Contains(w.reserved, id)
}

// suspend increments id's suspend count,
// calling through to the thread layer only on the first suspension.
func (w *Walker) suspend(id ThreadID) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.isReservedLocked(id) {
		return ReservedThreadError{ID: id}
	}

	if w.suspended[id] == 0 {
		if err := w.threads.Suspend(id); err != nil {
			return fmt.Errorf("failed to suspend thread %d: %w", id, err)
		}
	}
	w.suspended[id]++
	return nil
}

func (w *Walker) resume(id ThreadID) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n := w.suspended[id]
	if n == 0 {
		w.log.Warn("Resume without matching suspend", "thread", id)
		return
	}
	if n > 1 {
		w.suspended[id] = n - 1
		return
	}

	delete(w.suspended, id)
	if err := w.threads.Resume(id); err != nil {
		w.log.Warn("Failed to resume thread", "thread", id, "err", err)
	}
}

// SuspendAll suspends every thread except reserved threads and the caller.
// Threads that fail to suspend are logged and skipped.
func (w *Walker) SuspendAll() (resume func(), err error) {
	ids, err := w.threads.Threads()
	if err != nil {
		return func() {}, fmt.Errorf("failed to list threads: %w", err)
	}

	var stopped []ThreadID
	for _, id := range ids {
		if err := w.suspend(id); err != nil {
			var rte ReservedThreadError
			if !errors.As(err, &rte) {
				w.log.Debug("Skipping thread that failed to suspend", "thread", id, "err", err)
			}
			continue
		}
		stopped = append(stopped, id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, id := range stopped {
				w.resume(id)
			}
		})
	}, nil
}
