package gaux_test

import (
	"testing"

	"github.com/gordian-engine/gstall/gaux"
	"github.com/gordian-engine/gstall/gstack"
	"github.com/stretchr/testify/require"
)

func TestThermalMonitor(t *testing.T) {
	t.Parallel()

	var m gaux.ThermalMonitor
	require.False(t, m.Observe(gaux.ThermalFair))
	require.True(t, m.Observe(gaux.ThermalSerious))
	require.False(t, m.Observe(gaux.ThermalCritical), "already elevated")
	require.False(t, m.Observe(gaux.ThermalNominal))
	require.True(t, m.Observe(gaux.ThermalCritical))
}

func TestMemoryMonitor(t *testing.T) {
	t.Parallel()

	m := gaux.NewMemoryMonitor(1000)
	require.False(t, m.Observe(999))
	require.True(t, m.Observe(1001))
	require.False(t, m.Observe(5000))
	require.False(t, m.Observe(10))
	require.True(t, m.Observe(1001))
}

func TestStackPool(t *testing.T) {
	t.Parallel()

	p := gaux.NewStackPool(3)

	hot := gstack.Stack{0xA0, 0x10}
	warm := gstack.Stack{0xB0, 0x10}

	p.Add(hot, 70, false)
	p.Add(warm, 20, false)
	p.Add(nil, 90, false)
	p.Add(warm, 0, false)
	require.Equal(t, 2, p.Len())

	tr := p.Conclude()
	require.Equal(t, 90, tr.Total())
	require.Equal(t, hot, tr.Heaviest())
	require.Zero(t, p.Len())

	// Overflow keeps the most recent entries.
	p.Add(hot, 50, false)
	p.Add(warm, 10, true)
	p.Add(warm, 10, true)
	p.Add(warm, 10, true)
	require.Equal(t, 3, p.Len())
	tr = p.Conclude()
	require.Equal(t, 30, tr.Total())
	require.Equal(t, warm, tr.Heaviest())
}
