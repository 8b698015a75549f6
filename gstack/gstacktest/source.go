package gstacktest

import (
	"errors"
	"sync"

	"github.com/gordian-engine/gstall/gstack"
)

// Source is a scripted [gstack.Source].
// Every Sample of a thread returns the stack most recently set for it.
type Source struct {
	mu sync.Mutex

	stacks map[gstack.ThreadID]gstack.Stack

	samples        map[gstack.Mode]int
	suspendAlls    int
	outstandingAll int
}

func NewSource() *Source {
	return &Source{
		stacks:  make(map[gstack.ThreadID]gstack.Stack),
		samples: make(map[gstack.Mode]int),
	}
}

func (s *Source) SetStack(id gstack.ThreadID, st gstack.Stack) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stacks[id] = st
}

func (s *Source) Threads() ([]gstack.ThreadID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]gstack.ThreadID, 0, len(s.stacks))
	for id := range s.stacks {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Source) Sample(id gstack.ThreadID, mode gstack.Mode) (gstack.Stack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[mode]++
	st, ok := s.stacks[id]
	if !ok {
		return nil, errors.New("unknown thread")
	}
	return st, nil
}

func (s *Source) SuspendAll() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.suspendAlls++
	s.outstandingAll++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.outstandingAll--
		})
	}, nil
}

// Samples returns how many samples were taken in the given mode.
func (s *Source) Samples(mode gstack.Mode) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples[mode]
}

// SuspendAlls returns the number of SuspendAll calls,
// and how many of them have not yet been resumed.
func (s *Source) SuspendAlls() (total, outstanding int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suspendAlls, s.outstandingAll
}
