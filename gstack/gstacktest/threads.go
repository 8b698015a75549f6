// Package gstacktest contains in-memory fakes of the gstack collaborators.
package gstacktest

import (
	"errors"
	"slices"
	"sync"

	"github.com/gordian-engine/gstall/gstack"
)

// Threads is a fake [gstack.ThreadLayer].
// It records suspend and resume calls per thread.
type Threads struct {
	mu sync.Mutex

	current gstack.ThreadID
	regs    map[gstack.ThreadID]gstack.Registers

	suspends, resumes map[gstack.ThreadID]int

	failSuspend map[gstack.ThreadID]bool
}

func NewThreads(current gstack.ThreadID) *Threads {
	return &Threads{
		current:     current,
		regs:        make(map[gstack.ThreadID]gstack.Registers),
		suspends:    make(map[gstack.ThreadID]int),
		resumes:     make(map[gstack.ThreadID]int),
		failSuspend: make(map[gstack.ThreadID]bool),
	}
}

// Set adds or replaces the register state of id.
func (t *Threads) Set(id gstack.ThreadID, r gstack.Registers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regs[id] = r
}

// FailSuspend makes every future Suspend call for id return an error.
func (t *Threads) FailSuspend(id gstack.ThreadID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failSuspend[id] = true
}

func (t *Threads) Threads() ([]gstack.ThreadID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]gstack.ThreadID, 0, len(t.regs)+1)
	ids = append(ids, t.current)
	for id := range t.regs {
		if id != t.current {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (t *Threads) Current() gstack.ThreadID {
	return t.current
}

func (t *Threads) RegisterState(id gstack.ThreadID) (gstack.Registers, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.regs[id]
	if !ok {
		return gstack.Registers{}, errors.New("no such thread")
	}
	return r, nil
}

func (t *Threads) Suspend(id gstack.ThreadID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failSuspend[id] {
		return errors.New("suspend refused")
	}
	t.suspends[id]++
	return nil
}

func (t *Threads) Resume(id gstack.ThreadID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resumes[id]++
	return nil
}

// Calls returns the number of Suspend and Resume calls observed for id.
func (t *Threads) Calls(id gstack.ThreadID) (suspends, resumes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suspends[id], t.resumes[id]
}
