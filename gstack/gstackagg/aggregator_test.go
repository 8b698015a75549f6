package gstackagg_test

import (
	"testing"

	"github.com/gordian-engine/gstall/gstack"
	"github.com/gordian-engine/gstall/gstack/gstackagg"
	"github.com/stretchr/testify/require"
)

var (
	stackA = gstack.Stack{0xA0, 0x20, 0x10}
	stackB = gstack.Stack{0xB0, 0x20, 0x10}
	stackC = gstack.Stack{0xC0, 0x30, 0x10}
)

func TestAggregator_pointStackMostRepeated(t *testing.T) {
	t.Parallel()

	a := gstackagg.New(8)
	for _, s := range []gstack.Stack{stackA, stackA, stackB, stackA} {
		a.Add(s)
	}

	ps := a.PointStack()
	require.Equal(t, stackA, ps.Stack)
	require.Equal(t, 3, ps.Repeat)
	require.Equal(t, 2, a.Len())
}

func TestAggregator_tieGoesToEarliest(t *testing.T) {
	t.Parallel()

	a := gstackagg.New(8)
	for _, s := range []gstack.Stack{stackB, stackA, stackA, stackB} {
		a.Add(s)
	}

	require.Equal(t, stackB, a.PointStack().Stack)
}

func TestAggregator_empty(t *testing.T) {
	t.Parallel()

	a := gstackagg.New(4)
	a.Add(nil)

	require.True(t, a.PointStack().Empty())
	require.Zero(t, a.Len())
}

func TestAggregator_evictsOldest(t *testing.T) {
	t.Parallel()

	a := gstackagg.New(2)
	a.Add(stackA)
	a.Add(stackA)
	a.Add(stackB)
	a.Add(stackC) // Evicts A despite its higher count.

	stacks, repeats := a.Samples()
	require.Equal(t, []gstack.Stack{stackB, stackC}, stacks)
	require.Equal(t, []int{1, 1}, repeats)

	// B was inserted before C.
	require.Equal(t, stackB, a.PointStack().Stack)

	// A returns as a new entry, evicting B.
	a.Add(stackA)
	stacks, _ = a.Samples()
	require.Equal(t, []gstack.Stack{stackC, stackA}, stacks)
	require.Equal(t, stackC, a.PointStack().Stack)
}

func TestAggregator_frameRepeats(t *testing.T) {
	t.Parallel()

	a := gstackagg.New(8)
	a.Add(stackA)
	a.Add(stackA)
	a.Add(stackB)
	a.Add(stackC)

	ps := a.PointStack()
	require.Equal(t, stackA, ps.Stack)
	// 0xA0 only in A (2); 0x20 in A and B (3); 0x10 everywhere (4).
	require.Equal(t, []int{2, 3, 4}, ps.FrameRepeats)
}

func TestAggregator_profile(t *testing.T) {
	t.Parallel()

	a := gstackagg.New(8)
	a.Add(stackA)
	a.Add(stackA)
	a.Add(stackB)

	p := a.Profile()
	require.Equal(t, 3, p.Total())
	require.Equal(t, stackA, p.Heaviest())
}

func TestAggregator_resetAndResize(t *testing.T) {
	t.Parallel()

	a := gstackagg.New(4)
	a.Add(stackA)
	a.Add(stackB)

	a.Reset()
	require.Zero(t, a.Len())
	require.Equal(t, 4, a.Cap())

	a.Add(stackC)
	a.Resize(12)
	require.Zero(t, a.Len())
	require.Equal(t, 12, a.Cap())

	a.Resize(0)
	require.Equal(t, 1, a.Cap())
}
