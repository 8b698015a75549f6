package gstack

// Mode selects how a thread's register state is obtained.
type Mode uint8

const (
	// ModeCheap reads registers without stopping the thread.
	// Used for periodic sampling.
	ModeCheap Mode = iota

	// ModeSuspend stops the thread for the duration of the walk.
	// Used for the final capture of a detected stall.
	ModeSuspend
)

func (m Mode) String() string {
	switch m {
	case ModeCheap:
		return "cheap"
	case ModeSuspend:
		return "suspend"
	default:
		return "unknown"
	}
}

// ThreadLayer is the operating system threading collaborator.
type ThreadLayer interface {
	// Threads lists the threads of the current process.
	Threads() ([]ThreadID, error)

	// Current returns the ID of the calling thread.
	Current() ThreadID

	// RegisterState returns a snapshot of id's registers.
	// For a running thread, the snapshot may already be stale on return.
	RegisterState(id ThreadID) (Registers, error)

	Suspend(id ThreadID) error
	Resume(id ThreadID) error
}

// Memory reads saved frames from a thread's stack.
//
// ReadFrame must report false instead of faulting
// when fp does not point at readable memory.
// A panic is also tolerated by [Walker], but it is the slower path.
type Memory interface {
	ReadFrame(fp Addr) (Frame, bool)
}

// Source produces stack samples of threads.
// Both [*Walker] and the goroutine-profile sampler satisfy Source.
type Source interface {
	Threads() ([]ThreadID, error)

	Sample(id ThreadID, mode Mode) (Stack, error)

	// SuspendAll stops every thread that may be stopped safely,
	// and returns a function to resume them.
	SuspendAll() (resume func(), err error)
}
