package journal

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/charliek/forkvisor/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntry(process, line string) domain.Entry {
	return domain.Entry{
		Timestamp: time.Now(),
		Process:   process,
		Stream:    domain.StreamEvent,
		Kind:      domain.EventSpawned,
		Line:      line,
	}
}

func TestJournal_Write(t *testing.T) {
	j := New(Config{Size: 10})
	defer j.Close()

	j.Write(makeEntry("web", "hello"))
	j.Write(makeEntry("web", "world"))

	assert.Equal(t, 2, j.Stats().TotalEntries)
	entries := j.Entries(domain.Filter{})
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Line)
	assert.Equal(t, "world", entries[1].Line)
}

func TestJournal_RingWrapsAround(t *testing.T) {
	j := New(Config{Size: 5})
	defer j.Close()

	for i := 0; i < 12; i++ {
		j.Write(makeEntry("web", fmt.Sprint(i)))
	}

	entries := j.Entries(domain.Filter{})
	require.Len(t, entries, 5)
	assert.Equal(t, "7", entries[0].Line)
	assert.Equal(t, "11", entries[4].Line)
}

func TestJournal_Filtering(t *testing.T) {
	j := New(Config{Size: 100})
	defer j.Close()

	for i := 0; i < 5; i++ {
		j.Write(makeEntry("web", "line"))
	}
	for i := 0; i < 3; i++ {
		j.Write(makeEntry("api", "line"))
	}
	killed := makeEntry("api", "killed")
	killed.Kind = domain.EventKilled
	j.Write(killed)

	assert.Len(t, j.Entries(domain.Filter{Processes: []string{"web"}}), 5)
	assert.Len(t, j.Entries(domain.Filter{Processes: []string{"api"}}), 4)
	assert.Len(t, j.Entries(domain.Filter{Kinds: []domain.EventKind{domain.EventKilled}}), 1)

	last := j.Last(domain.Filter{}, 2)
	require.Len(t, last, 2)
	assert.Equal(t, "killed", last[1].Line)
}

func TestJournal_Subscribe(t *testing.T) {
	j := New(Config{Size: 10, SubscriptionBuffer: 10})
	defer j.Close()

	id, ch := j.Subscribe(domain.Filter{Processes: []string{"web"}})
	assert.NotEmpty(t, id)

	j.Write(makeEntry("api", "api message"))
	j.Write(makeEntry("web", "web message"))

	select {
	case e := <-ch:
		assert.Equal(t, "web message", e.Line)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected to receive web message")
	}

	select {
	case <-ch:
		t.Fatal("should not receive api message")
	default:
	}
}

func TestJournal_Unsubscribe(t *testing.T) {
	j := New(Config{Size: 10})
	defer j.Close()

	id, ch := j.Subscribe(domain.Filter{})
	j.Unsubscribe(id)
	j.Unsubscribe(id)

	j.Write(makeEntry("web", "after unsubscribe"))

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, j.Stats().Subscribers)
}

func TestJournal_SlowSubscriberDrops(t *testing.T) {
	j := New(Config{Size: 10, SubscriptionBuffer: 1})
	defer j.Close()

	j.Subscribe(domain.Filter{})
	j.Write(makeEntry("web", "one"))
	j.Write(makeEntry("web", "two"))

	assert.Equal(t, 1, j.Stats().Dropped)
	assert.Equal(t, 2, j.Stats().TotalEntries, "ring keeps entries subscribers missed")
}

func TestJournal_Close(t *testing.T) {
	j := New(Config{})
	_, ch := j.Subscribe(domain.Filter{})
	j.Close()

	_, ok := <-ch
	assert.False(t, ok)

	_, late := j.Subscribe(domain.Filter{})
	_, ok = <-late
	assert.False(t, ok, "subscriptions after close are closed immediately")

	j.Write(makeEntry("web", "kept"))
	assert.Len(t, j.Entries(domain.Filter{}), 1)
	assert.Equal(t, 1000, j.Stats().Capacity)
}

func TestJournal_Concurrent(t *testing.T) {
	j := New(Config{Size: 1000, SubscriptionBuffer: 100})
	defer j.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				j.Write(makeEntry("web", "concurrent write"))
			}
		}()
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 20; k++ {
				id, _ := j.Subscribe(domain.Filter{})
				j.Last(domain.Filter{}, 10)
				j.Unsubscribe(id)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 500, j.Stats().TotalEntries)
}
