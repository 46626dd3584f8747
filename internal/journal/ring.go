package journal

import "github.com/charliek/forkvisor/internal/domain"

// ring is a fixed-size circular buffer of entries. Callers hold the
// journal lock.
type ring struct {
	entries []domain.Entry
	head    int // next write position
	count   int
}

func newRing(size int) *ring {
	return &ring{entries: make([]domain.Entry, size)}
}

func (r *ring) capacity() int {
	return len(r.entries)
}

func (r *ring) write(e domain.Entry) {
	r.entries[r.head] = e
	r.head = (r.head + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// read returns all entries oldest first
func (r *ring) read() []domain.Entry {
	if r.count == 0 {
		return nil
	}
	out := make([]domain.Entry, r.count)
	start := 0
	if r.count == len(r.entries) {
		start = r.head // oldest entry sits at head once full
	}
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(start+i)%len(r.entries)]
	}
	return out
}
