package gstacktest

import (
	"sync"

	"github.com/gordian-engine/gstall/gstack"
)

// Memory is a fake [gstack.Memory] backed by a map of frame pointer to frame.
// Reads of unmapped addresses fail; reads of addresses marked with PanicAt panic.
type Memory struct {
	mu     sync.Mutex
	frames map[gstack.Addr]gstack.Frame
	panics map[gstack.Addr]bool
}

func NewMemory() *Memory {
	return &Memory{
		frames: make(map[gstack.Addr]gstack.Frame),
		panics: make(map[gstack.Addr]bool),
	}
}

func (m *Memory) Put(fp gstack.Addr, fr gstack.Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[fp] = fr
}

func (m *Memory) PanicAt(fp gstack.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[fp] = true
}

func (m *Memory) ReadFrame(fp gstack.Addr) (gstack.Frame, bool) {
	m.mu.Lock()
	p := m.panics[fp]
	fr, ok := m.frames[fp]
	m.mu.Unlock()

	if p {
		panic("simulated fault reading frame")
	}
	return fr, ok
}

// Chain lays out a frame chain in m for a thread currently executing at pc,
// whose callers' return addresses are rets, innermost first.
// Frame pointers are allocated upward from base in steps of 16.
// The returned registers point at the innermost frame.
func (m *Memory) Chain(base, pc gstack.Addr, rets ...gstack.Addr) gstack.Registers {
	fp := base
	for i, ret := range rets {
		next := fp + 16
		if i == len(rets)-1 {
			// A null previous pointer terminates the walk after this frame,
			// so point the outermost frame at an unmapped address instead.
			next = fp + 0x1000
		}
		m.Put(fp, gstack.Frame{Prev: next, Return: ret})
		fp += 16
	}
	return gstack.Registers{PC: pc, FP: base}
}
