package gaux

// ThermalMonitor fires when the thermal state rises to [ThermalSerious] or above.
// It fires once per rise; it re-arms after the state falls below serious.
type ThermalMonitor struct {
	elevated bool
}

// Observe reports whether s is a new elevation.
func (m *ThermalMonitor) Observe(s ThermalState) bool {
	hot := s >= ThermalSerious
	fire := hot && !m.elevated
	m.elevated = hot
	return fire
}
