package logger

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

const maxHeldBytes = 1 << 20

// HeldWriter keeps log output in memory while the terminal belongs to
// something else, then hands it to a real writer on Release. Whole writes
// beyond maxHeldBytes are dropped and counted.
type HeldWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	dropped int
	out     io.Writer
}

func (h *HeldWriter) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.out != nil {
		return h.out.Write(p)
	}
	if h.buf.Len()+len(p) > maxHeldBytes {
		h.dropped++
		return len(p), nil
	}
	return h.buf.Write(p)
}

// Release writes everything held to w. Later writes go straight to w.
func (h *HeldWriter) Release(w io.Writer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.out = w
	if _, err := h.buf.WriteTo(w); err != nil {
		return err
	}
	if h.dropped > 0 {
		_, err := fmt.Fprintf(w, "(%d log records dropped while held)\n", h.dropped)
		h.dropped = 0
		return err
	}
	return nil
}
