// Package journal keeps the recent history of supervisor events and worker
// output in memory and fans new entries out to subscribers.
package journal

import (
	"log"
	"sync"

	"github.com/charliek/forkvisor/internal/constants"
	"github.com/charliek/forkvisor/internal/domain"
	"github.com/rs/xid"
)

// Config holds configuration for a journal
type Config struct {
	Size               int // Number of entries kept in the ring
	SubscriptionBuffer int // Buffer size for subscription channels
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Size:               constants.DefaultJournalSize,
		SubscriptionBuffer: constants.DefaultSubscriptionBuffer,
	}
}

// Stats contains statistics about the journal
type Stats struct {
	TotalEntries int
	Capacity     int
	Subscribers  int
	Dropped      int
}

type subscription struct {
	ch     chan domain.Entry
	filter domain.Filter
}

// Journal is a fixed-size ring of entries plus filtered subscriptions.
// It is safe for concurrent use: output readers write from their own
// goroutines while the supervisor loop writes lifecycle events.
type Journal struct {
	mu      sync.Mutex
	ring    *ring
	subs    map[string]*subscription
	subBuf  int
	dropped int
	closed  bool
}

// New creates a journal
func New(cfg Config) *Journal {
	def := DefaultConfig()
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.SubscriptionBuffer <= 0 {
		cfg.SubscriptionBuffer = def.SubscriptionBuffer
	}
	return &Journal{
		ring:   newRing(cfg.Size),
		subs:   make(map[string]*subscription),
		subBuf: cfg.SubscriptionBuffer,
	}
}

// Write appends an entry and broadcasts it to matching subscribers.
// Subscribers that cannot keep up lose the entry.
func (j *Journal) Write(e domain.Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.ring.write(e)
	for id, sub := range j.subs {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			j.dropped++
			log.Printf("journal: subscription %s dropped entry from %s (channel full)", id, e.Process)
		}
	}
}

// Entries returns the buffered entries matching filter in chronological order
func (j *Journal) Entries(filter domain.Filter) []domain.Entry {
	j.mu.Lock()
	all := j.ring.read()
	j.mu.Unlock()

	if filter.IsEmpty() {
		return all
	}
	out := make([]domain.Entry, 0, len(all))
	for _, e := range all {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the last n entries matching filter
func (j *Journal) Last(filter domain.Filter, n int) []domain.Entry {
	entries := j.Entries(filter)
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// Subscribe returns an id and a channel receiving future entries that
// match filter. The channel is closed by Unsubscribe or Close.
func (j *Journal) Subscribe(filter domain.Filter) (string, <-chan domain.Entry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := xid.New().String()
	ch := make(chan domain.Entry, j.subBuf)
	if j.closed {
		close(ch)
		return id, ch
	}
	j.subs[id] = &subscription{ch: ch, filter: filter}
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel
func (j *Journal) Unsubscribe(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if sub, ok := j.subs[id]; ok {
		delete(j.subs, id)
		close(sub.ch)
	}
}

// Stats returns statistics about the journal
func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Stats{
		TotalEntries: j.ring.count,
		Capacity:     j.ring.capacity(),
		Subscribers:  len(j.subs),
		Dropped:      j.dropped,
	}
}

// Close closes every subscription. Entries written afterwards are kept but
// not broadcast.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	for id, sub := range j.subs {
		close(sub.ch)
		delete(j.subs, id)
	}
	j.closed = true
}
