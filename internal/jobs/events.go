package jobs

import (
	"sync"
	"time"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeLog      EventType = "log"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by API pollers.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"jobId"`
	Type      EventType `json:"type"`
	State     State     `json:"state,omitempty"`
	Message   string    `json:"message,omitempty"`
	Percent   float64   `json:"percent,omitempty"`
	Command   string    `json:"command,omitempty"`
	ExitCode  int       `json:"exitCode,omitempty"`
	Stderr    string    `json:"stderr,omitempty"`
	AudioPath string    `json:"audioPath,omitempty"`
	TextPath  string    `json:"textPath,omitempty"`
}

// EventBus stores recent events across all jobs and provides incremental
// per-job reads. Sequence numbers are global and strictly increasing.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 1000
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns the job's events with sequence strictly greater than seq.
func (b *EventBus) Since(jobID string, seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events {
		if event.JobID == jobID && event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}
