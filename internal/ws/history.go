package ws

import (
	"sync"

	"github.com/musika/commerce/internal/protocol"
)

// MaxHistorySize is the number of recently broadcast envelopes retained for
// late-joiner replay. The buffer is a best-effort snapshot, not a durability
// guarantee.
const MaxHistorySize = 100

// History stores the last N broadcast envelopes in insertion order, oldest
// evicted first. It is goroutine-safe and uses a ring buffer internally.
type History struct {
	mu    sync.RWMutex
	items []protocol.Envelope
	pos   int
	count int
}

// NewHistory creates an empty History with capacity MaxHistorySize.
func NewHistory() *History {
	return &History{items: make([]protocol.Envelope, MaxHistorySize)}
}

// Append adds an envelope, overwriting the oldest entry when full.
func (h *History) Append(env protocol.Envelope) {
	h.mu.Lock()
	h.items[h.pos] = env
	h.pos = (h.pos + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
	h.mu.Unlock()
}

// Last returns up to n most recent envelopes in append order (oldest first).
func (h *History) Last(n int) []protocol.Envelope {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.count {
		n = h.count
	}
	out := make([]protocol.Envelope, n)
	// The newest entry sits just before pos; walk back n slots.
	start := (h.pos - n + len(h.items)) % len(h.items)
	for i := 0; i < n; i++ {
		out[i] = h.items[(start+i)%len(h.items)]
	}
	return out
}

// Len returns the number of buffered envelopes.
func (h *History) Len() int {
	h.mu.RLock()
	n := h.count
	h.mu.RUnlock()
	return n
}
