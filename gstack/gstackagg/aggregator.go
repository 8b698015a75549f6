// Package gstackagg accumulates stack samples for one check cycle
// and infers the point stack: the sample most likely responsible for a stall.
//
// An [Aggregator] is owned by a single goroutine and is not safe for concurrent use.
package gstackagg

import (
	"github.com/gordian-engine/gstall/gstack"
)

type slot struct {
	stack  gstack.Stack
	hash   uint64
	repeat int

	// Insertion sequence number, for deterministic tie breaks.
	seq uint64
}

// Aggregator is a fixed-capacity ring of distinct stacks with repeat counts.
type Aggregator struct {
	slots []slot

	// Index of the next slot to overwrite once the ring is full.
	next int
	n    int

	seq uint64
}

// New returns an Aggregator holding at most capacity distinct stacks.
// A non-positive capacity is treated as 1.
func New(capacity int) *Aggregator {
	return &Aggregator{slots: make([]slot, max(capacity, 1))}
}

func (a *Aggregator) Cap() int {
	return len(a.slots)
}

// Len returns the number of distinct stacks currently held.
func (a *Aggregator) Len() int {
	return a.n
}

// Add records one sample.
// A stack already present has its repeat count incremented;
// otherwise it takes a new slot, evicting the oldest slot if the ring is full.
// Empty stacks are ignored.
func (a *Aggregator) Add(s gstack.Stack) {
	if len(s) == 0 {
		return
	}

	h := s.Hash()
	for i := 0; i < a.n; i++ {
		sl := &a.slots[i]
		if sl.hash == h && sl.stack.Equal(s) {
			sl.repeat++
			return
		}
	}

	a.seq++
	a.slots[a.next] = slot{
		stack:  s,
		hash:   h,
		repeat: 1,
		seq:    a.seq,
	}
	a.next = (a.next + 1) % len(a.slots)
	if a.n < len(a.slots) {
		a.n++
	}
}

// PointStack is the most repeated stack of a cycle.
type PointStack struct {
	Stack  gstack.Stack
	Repeat int

	// FrameRepeats[i] counts the samples, weighted by repeat,
	// whose stacks contain Stack[i].
	FrameRepeats []int
}

func (p PointStack) Empty() bool {
	return len(p.Stack) == 0
}

// PointStack returns the stack with the highest repeat count.
// Ties go to the stack inserted earliest.
// The returned value is empty if no samples have been added.
func (a *Aggregator) PointStack() PointStack {
	best := -1
	for i := 0; i < a.n; i++ {
		if best < 0 {
			best = i
			continue
		}
		sl, b := a.slots[i], a.slots[best]
		if sl.repeat > b.repeat || (sl.repeat == b.repeat && sl.seq < b.seq) {
			best = i
		}
	}
	if best < 0 {
		return PointStack{}
	}

	b := a.slots[best]
	return PointStack{
		Stack:        b.stack,
		Repeat:       b.repeat,
		FrameRepeats: a.frameRepeats(b.stack),
	}
}

func (a *Aggregator) frameRepeats(st gstack.Stack) []int {
	out := make([]int, len(st))
	for i, addr := range st {
		for j := 0; j < a.n; j++ {
			sl := a.slots[j]
			for _, x := range sl.stack {
				if x == addr {
					out[i] += sl.repeat
					break
				}
			}
		}
	}
	return out
}

// Profile merges every held stack into a call tree weighted by repeat count.
func (a *Aggregator) Profile() *gstack.Tree {
	t := new(gstack.Tree)
	for _, sl := range a.ordered() {
		t.Add(sl.stack, sl.repeat)
	}
	return t
}

// Samples returns the held stacks and their repeat counts, oldest first.
func (a *Aggregator) Samples() (stacks []gstack.Stack, repeats []int) {
	for _, sl := range a.ordered() {
		stacks = append(stacks, sl.stack)
		repeats = append(repeats, sl.repeat)
	}
	return stacks, repeats
}

func (a *Aggregator) ordered() []slot {
	out := make([]slot, 0, a.n)
	if a.n < len(a.slots) {
		return append(out, a.slots[:a.n]...)
	}
	out = append(out, a.slots[a.next:]...)
	return append(out, a.slots[:a.next]...)
}

// Reset discards every held sample, keeping the capacity.
func (a *Aggregator) Reset() {
	clear(a.slots)
	a.next = 0
	a.n = 0
}

// Resize discards every held sample and changes the capacity.
// Callers must only resize between check cycles.
func (a *Aggregator) Resize(capacity int) {
	capacity = max(capacity, 1)
	if capacity == len(a.slots) {
		a.Reset()
		return
	}
	a.slots = make([]slot, capacity)
	a.next = 0
	a.n = 0
}
