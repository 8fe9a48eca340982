package scrape

import "sync"

// ResponseBuffer is the bounded hand-off between the CDP network listener
// (producer) and the extraction pipeline (consumer). Payloads past the limit
// are dropped and counted rather than blocking the browser.
type ResponseBuffer struct {
	mu      sync.Mutex
	items   [][]byte
	limit   int
	dropped int
}

const defaultBufferLimit = 256

func NewResponseBuffer(limit int) *ResponseBuffer {
	if limit <= 0 {
		limit = defaultBufferLimit
	}
	return &ResponseBuffer{limit: limit}
}

// Push appends a payload; returns false when the buffer is full and the
// payload was dropped.
func (b *ResponseBuffer) Push(payload []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) >= b.limit {
		b.dropped++
		return false
	}
	b.items = append(b.items, payload)
	return true
}

// Len returns the number of buffered payloads.
func (b *ResponseBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns how many payloads were rejected because the buffer was full.
func (b *ResponseBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Snapshot returns a copy of the buffered payloads in arrival order.
func (b *ResponseBuffer) Snapshot() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.items))
	copy(out, b.items)
	return out
}
