package ir

import "sync"

// Fields holds the payload of an event. Values are restricted to the types
// MarshalCanonical accepts: strings, integers, booleans, and nested
// []any / map[string]any of those.
type Fields map[string]any

// Event is a record emitted by a component when its state changes.
type Event struct {
	Emitter Address `json:"emitter"`
	Name    string  `json:"name"`
	Fields  Fields  `json:"fields"`
}

// EventSink receives emitted events. The ledger buffers them per submission
// and only persists them when the submission commits.
type EventSink interface {
	Emit(ev Event)
}

// EventLog is an in-memory EventSink. Safe for concurrent use.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewEventLog creates an empty log.
func NewEventLog() *EventLog {
	return &EventLog{}
}

// Emit appends ev.
func (l *EventLog) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// Events returns a copy of all events in emission order.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Named returns the events with the given name in emission order.
func (l *EventLog) Named(name string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, ev := range l.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// Len returns the number of events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Truncate drops events after position n. Used to discard the events of a
// reverted call.
func (l *EventLog) Truncate(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n < len(l.events) {
		l.events = l.events[:n]
	}
}

// Reset drops all events.
func (l *EventLog) Reset() {
	l.Truncate(0)
}

// Discard is an EventSink that drops everything.
var Discard EventSink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(Event) {}
