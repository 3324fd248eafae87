package logging

import (
	"os"
	"sync"
)

// RingBuffer keeps the last size bytes written to it. It backs crash dumps so
// the cycles leading up to a failure can be inspected without debug.log.
type RingBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
	pos  int
	full bool
}

// NewRingBuffer creates a ring buffer holding size bytes (1MB when size <= 0).
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1024 * 1024
	}
	return &RingBuffer{buf: make([]byte, size), size: size}
}

// Write implements io.Writer. It never fails; old bytes are overwritten.
func (rb *RingBuffer) Write(p []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(p)
	if n >= rb.size {
		copy(rb.buf, p[n-rb.size:])
		rb.pos = 0
		rb.full = true
		return n, nil
	}

	tail := rb.size - rb.pos
	if n < tail {
		copy(rb.buf[rb.pos:], p)
		rb.pos += n
		return n, nil
	}

	copy(rb.buf[rb.pos:], p[:tail])
	copy(rb.buf, p[tail:])
	rb.pos = n - tail
	rb.full = true
	return n, nil
}

// Len reports how many bytes are currently retained.
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.full {
		return rb.size
	}
	return rb.pos
}

// Bytes returns the retained bytes, oldest first.
func (rb *RingBuffer) Bytes() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if !rb.full {
		out := make([]byte, rb.pos)
		copy(out, rb.buf[:rb.pos])
		return out
	}

	out := make([]byte, 0, rb.size)
	out = append(out, rb.buf[rb.pos:]...)
	out = append(out, rb.buf[:rb.pos]...)
	return out
}

// DumpToFile writes the retained bytes to path, oldest first.
func (rb *RingBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, rb.Bytes(), 0o600)
}
