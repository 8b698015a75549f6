// Package gdumptest contains test doubles for the gdump package.
package gdumptest

import (
	"context"
	"errors"
	"sync"

	"github.com/gordian-engine/gstall/gdump"
)

// Writer is a [gdump.Writer] that delivers every payload on a channel.
type Writer struct {
	Payloads chan gdump.Payload

	mu   sync.Mutex
	fail bool
}

// NewWriter returns a Writer whose channel buffers size payloads.
// WriteReport blocks once the buffer is full.
func NewWriter(size int) *Writer {
	return &Writer{Payloads: make(chan gdump.Payload, size)}
}

// Fail makes future writes return an error after delivering the payload.
func (w *Writer) Fail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fail = true
}

func (w *Writer) WriteReport(ctx context.Context, p gdump.Payload) (string, error) {
	select {
	case <-ctx.Done():
		return "", context.Cause(ctx)
	case w.Payloads <- p:
	}

	w.mu.Lock()
	fail := w.fail
	w.mu.Unlock()
	if fail {
		return "", errors.New("simulated write failure")
	}
	return "mem://" + p.ID.String(), nil
}
