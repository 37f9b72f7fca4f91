package executor

import (
	"bytes"
	"sync"
)

// BoundedBuffer is an io.Writer that keeps the first Limit bytes and
// silently counts the rest. Writes never fail, so a chatty program cannot
// block on a full pipe or grow our memory without bound.
type BoundedBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	limit   int
	dropped int64
}

// NewBoundedBuffer returns a buffer keeping at most limit bytes.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{limit: limit}
}

func (b *BoundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.dropped += int64(len(p))
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.dropped += int64(len(p) - room)
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// String returns the kept bytes.
func (b *BoundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Truncated reports whether any bytes were dropped.
func (b *BoundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped > 0
}

// CaptureLimit converts a character limit into a byte limit large enough
// for any UTF-8 text of that many characters, plus one byte so that
// overflow is always detectable.
func CaptureLimit(chars int) int {
	return chars*4 + 1
}

// StderrLimit bounds stderr capture. The harness only writes a short report there.
const StderrLimit = 64 * 1024
