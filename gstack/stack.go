package gstack

import (
	"encoding/binary"
	"log/slog"
	"slices"

	"github.com/cespare/xxhash/v2"
	"github.com/gordian-engine/gstall/internal/glog"
)

// Addr is a code address.
type Addr uint64

// Stack is a list of code addresses, innermost frame first.
// The first entry is the instruction pointer at the time of capture;
// the rest are return addresses.
type Stack []Addr

func (s Stack) Depth() int {
	return len(s)
}

// Hash returns the xxhash64 of the little-endian encoding of s.
// Equal stacks have equal hashes;
// callers must still use [Stack.Equal] to confirm a match.
func (s Stack) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, a := range s {
		binary.LittleEndian.PutUint64(buf[:], uint64(a))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

func (s Stack) Equal(o Stack) bool {
	return slices.Equal(s, o)
}

// Uint64s returns a copy of s as plain integers,
// for serialization outside this package.
func (s Stack) Uint64s() []uint64 {
	out := make([]uint64, len(s))
	for i, a := range s {
		out[i] = uint64(a)
	}
	return out
}

func (s Stack) LogValue() slog.Value {
	return glog.HexAddrs(s.Uint64s()).LogValue()
}

// ThreadID identifies a thread to a [ThreadLayer].
type ThreadID uint64

// Registers is the subset of a thread's register state needed to walk its stack.
type Registers struct {
	PC Addr
	FP Addr
}

// Frame is the pair of words saved at a frame pointer:
// the caller's frame pointer and the return address into the caller.
type Frame struct {
	Prev   Addr
	Return Addr
}
