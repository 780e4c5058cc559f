package engine

import (
	"sort"

	"github.com/Readm/commit_sim/core"
)

// Event is an entry of the session event log.
type Event = core.Event

// EventLog is the ordered, append-only textual log of one session.
// Sequence numbers keep growing across Clear so pollers never see a
// number twice.
type EventLog struct {
	entries []Event
	nextSeq int64
	limit   int
}

// NewEventLog creates a log keeping at most limit entries; 0 keeps all.
func NewEventLog(limit int) *EventLog {
	return &EventLog{nextSeq: 1, limit: limit}
}

// Append stamps ev with the next sequence number and stores it.
func (l *EventLog) Append(ev Event) Event {
	ev.Seq = l.nextSeq
	l.nextSeq++
	l.entries = append(l.entries, ev)
	if l.limit > 0 && len(l.entries) > l.limit {
		l.entries = append([]Event(nil), l.entries[len(l.entries)-l.limit:]...)
	}
	return ev
}

// All returns a copy of the stored events.
func (l *EventLog) All() []Event {
	return append([]Event(nil), l.entries...)
}

// Since returns the events with a sequence number greater than seq.
func (l *EventLog) Since(seq int64) []Event {
	idx := sort.Search(len(l.entries), func(i int) bool { return l.entries[i].Seq > seq })
	return append([]Event(nil), l.entries[idx:]...)
}

// Last returns the most recent event.
func (l *EventLog) Last() (Event, bool) {
	if len(l.entries) == 0 {
		return Event{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Len returns the number of stored events.
func (l *EventLog) Len() int {
	return len(l.entries)
}

// Clear drops stored events but keeps the sequence counter.
func (l *EventLog) Clear() {
	l.entries = nil
}
