// Package gstackprof samples goroutine stacks from the Go runtime's goroutine profile.
//
// Go programs cannot read another goroutine's registers,
// so instead of walking frames this sampler collects a goroutine profile
// and selects the goroutine carrying the [gloop.LabelKey] label
// bound to the requested thread ID.
// Collecting the profile briefly stops the world,
// so every sample is effectively a suspend-mode sample.
package gstackprof

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"runtime/pprof"
	"slices"
	"sync"

	"github.com/google/pprof/profile"
	"github.com/gordian-engine/gstall/gloop"
	"github.com/gordian-engine/gstall/gstack"
)

// ErrNotBound is returned when sampling a thread ID that was never bound to a loop.
var ErrNotBound = errors.New("thread id not bound to a loop")

// LoopNotFoundError indicates that no goroutine in the profile
// carried the expected loop label.
type LoopNotFoundError struct {
	Loop string
}

func (e LoopNotFoundError) Error() string {
	return fmt.Sprintf("no goroutine labeled %s=%s in goroutine profile", gloop.LabelKey, e.Loop)
}

// Source is a [gstack.Source] backed by goroutine profiles.
type Source struct {
	log *slog.Logger

	mu       sync.Mutex
	bindings map[gstack.ThreadID]string

	// Function names for addresses seen in any collected profile.
	names map[gstack.Addr]string
}

func New(log *slog.Logger) *Source {
	return &Source{
		log:      log,
		bindings: make(map[gstack.ThreadID]string),
		names:    make(map[gstack.Addr]string),
	}
}

// Bind associates id with the loop whose goroutine is labeled with name.
func (s *Source) Bind(id gstack.ThreadID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[id] = name
}

func (s *Source) Threads() ([]gstack.ThreadID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]gstack.ThreadID, 0, len(s.bindings))
	for id := range s.bindings {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Sample returns the stack of the goroutine bound to id.
// The mode is ignored.
func (s *Source) Sample(id gstack.ThreadID, _ gstack.Mode) (gstack.Stack, error) {
	s.mu.Lock()
	name, ok := s.bindings[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotBound
	}

	p, err := collect()
	if err != nil {
		return nil, err
	}

	for _, smp := range p.Sample {
		if !slices.Contains(smp.Label[gloop.LabelKey], name) {
			continue
		}

		st := make(gstack.Stack, 0, len(smp.Location))
		s.mu.Lock()
		for _, loc := range smp.Location {
			a := gstack.Addr(loc.Address)
			st = append(st, a)
			if len(loc.Line) > 0 && loc.Line[0].Function != nil {
				s.names[a] = loc.Line[0].Function.Name
			}
		}
		s.mu.Unlock()
		return st, nil
	}

	return nil, LoopNotFoundError{Loop: name}
}

// SuspendAll is a no-op: goroutines cannot be suspended individually.
func (s *Source) SuspendAll() (func(), error) {
	return func() {}, nil
}

// Symbolize returns the function name of each address in st,
// as recorded from previously collected profiles.
// Unknown addresses are rendered in hex.
func (s *Source) Symbolize(st gstack.Stack) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(st))
	for i, a := range st {
		if n, ok := s.names[a]; ok {
			out[i] = n
		} else {
			out[i] = fmt.Sprintf("0x%x", uint64(a))
		}
	}
	return out
}

func collect() (*profile.Profile, error) {
	var buf bytes.Buffer
	if err := pprof.Lookup("goroutine").WriteTo(&buf, 0); err != nil {
		return nil, fmt.Errorf("failed to write goroutine profile: %w", err)
	}
	p, err := profile.Parse(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse goroutine profile: %w", err)
	}
	return p, nil
}
