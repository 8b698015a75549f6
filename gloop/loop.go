package gloop

// Observer is notified synchronously on the loop goroutine
// around every loop iteration.
// Implementations must return quickly and must not allocate.
type Observer interface {
	IterationBegin()
	IterationEnd()
}

// Loop is an event loop that accepts iteration observers.
type Loop interface {
	// Observe registers o for steady-state iterations.
	// The returned function removes the registration.
	Observe(o Observer) (unregister func())

	// ObserveInit registers o for iterations that run
	// while the loop is still in its launch phase.
	ObserveInit(o Observer) (unregister func())
}
