package gateway

import "sync"

type ringEntry struct {
	seq  int64
	data []byte // pre-built envelope JSON
}

// Ring is a fixed-size circular buffer of recent event envelopes,
// replayed to newly connected clients in broadcast order.
//
// Thread-safe for concurrent writes and reads.
type Ring struct {
	mu   sync.RWMutex
	buf  []ringEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 64
	}
	return &Ring{
		buf: make([]ringEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope. Overwrites the oldest entry when full.
func (r *Ring) Push(seq int64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy so the ring never aliases the caller's slice
	cp := make([]byte, len(data))
	copy(cp, data)

	r.buf[r.pos] = ringEntry{seq: seq, data: cp}
	r.pos = (r.pos + 1) % r.cap
	if r.pos == 0 && !r.full {
		r.full = true
	}
}

// Recent returns the buffered envelopes oldest-first.
func (r *Ring) Recent() [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.len()
	out := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, r.buf[r.index(i)].data)
	}
	return out
}

// Len returns the number of buffered envelopes.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

func (r *Ring) len() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// index converts a logical index (0 = oldest) to a physical one.
func (r *Ring) index(logical int) int {
	if r.full {
		return (r.pos + logical) % r.cap
	}
	return logical
}
