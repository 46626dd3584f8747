package domain

import "time"

// Stream represents where a journal entry came from
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
	// StreamEvent marks entries written by the supervisor itself
	StreamEvent Stream = "event"
)

// String returns the string representation of Stream
func (s Stream) String() string {
	return string(s)
}

// EventKind classifies supervisor lifecycle entries
type EventKind string

const (
	EventSpawned   EventKind = "spawned"
	EventExited    EventKind = "exited"
	EventRestarted EventKind = "restarted"
	EventDropped   EventKind = "dropped"
	EventShutdown  EventKind = "shutdown"
	EventDeadline  EventKind = "deadline"
	EventKilled    EventKind = "killed"
	EventOutput    EventKind = "output"
)

// Entry is a single journal line: either a lifecycle event or a line of
// worker output
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Process   string    `json:"process"`
	PID       int       `json:"pid,omitempty"`
	Stream    Stream    `json:"stream"`
	Kind      EventKind `json:"kind"`
	Line      string    `json:"line"`
}

// Filter defines criteria for selecting journal entries
type Filter struct {
	Processes []string    // Restrict to these worker names
	Kinds     []EventKind // Restrict to these kinds
}

// IsEmpty returns true if no filters are set
func (f Filter) IsEmpty() bool {
	return len(f.Processes) == 0 && len(f.Kinds) == 0
}

// Matches returns true if the entry satisfies the filter
func (f Filter) Matches(e Entry) bool {
	return f.matchesProcess(e.Process) && f.matchesKind(e.Kind)
}

func (f Filter) matchesProcess(name string) bool {
	if len(f.Processes) == 0 {
		return true
	}
	for _, p := range f.Processes {
		if p == name {
			return true
		}
	}
	return false
}

func (f Filter) matchesKind(kind EventKind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
