// Package gstack captures call stacks of a live thread.
//
// The core type is [Walker], which reads a thread's registers
// through a [ThreadLayer] and follows the saved frame-pointer chain
// through a fault-tolerant [Memory] reader.
// The target thread keeps running while it is sampled in [ModeCheap],
// so any frame may be stale or torn;
// a failed or panicking read ends the walk rather than the process.
//
// Samplers that cannot walk raw frames (such as the goroutine-profile sampler
// in package gstackprof) implement the same [Source] interface.
package gstack
