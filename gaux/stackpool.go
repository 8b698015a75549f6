package gaux

import (
	"math"

	"github.com/gordian-engine/gstall/gstack"
)

// DefaultStackPoolSize bounds the stacks kept between conclusions.
const DefaultStackPoolSize = 100

type pooledStack struct {
	stack      gstack.Stack
	cpu        float64
	background bool
}

// StackPool collects stacks of busy threads while CPU usage is tracked,
// to build a CPU-weighted call tree when sustained usage fires.
// Once full, the oldest stack is overwritten.
type StackPool struct {
	entries []pooledStack
	next    int
	full    bool
}

func NewStackPool(size int) *StackPool {
	return &StackPool{entries: make([]pooledStack, max(size, 1))}
}

// Add records the stack of a thread that used cpu percent of a core.
func (p *StackPool) Add(st gstack.Stack, cpu float64, background bool) {
	if len(st) == 0 || cpu <= 0 {
		return
	}
	p.entries[p.next] = pooledStack{stack: st, cpu: cpu, background: background}
	p.next++
	if p.next == len(p.entries) {
		p.next = 0
		p.full = true
	}
}

func (p *StackPool) Len() int {
	if p.full {
		return len(p.entries)
	}
	return p.next
}

// Conclude merges every held stack into a call tree,
// weighting each stack by its CPU usage rounded to the nearest percent,
// and empties the pool.
func (p *StackPool) Conclude() *gstack.Tree {
	t := new(gstack.Tree)
	for i := 0; i < p.Len(); i++ {
		e := p.entries[i]
		t.Add(e.stack, max(int(math.Round(e.cpu)), 1))
	}

	clear(p.entries)
	p.next = 0
	p.full = false
	return t
}
