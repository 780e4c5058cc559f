package core

import "fmt"

// EventKind represents the category of an emitted log event.
type EventKind string

const (
	EventState       EventKind = "State"       // node state transition
	EventSend        EventKind = "Send"        // message put on a link
	EventDeliver     EventKind = "Deliver"     // message handed to its receiver
	EventLost        EventKind = "Lost"        // message suppressed or discarded
	EventFault       EventKind = "Fault"       // operator fault injection
	EventTimer       EventKind = "Timer"       // timeout fired
	EventTransaction EventKind = "Transaction" // transaction start/complete
	EventScenario    EventKind = "Scenario"    // grading result
	EventViolation   EventKind = "Violation"   // protocol invariant broken
	EventProtocol    EventKind = "Protocol"    // vote, ack and query bookkeeping
)

// Event is one entry of the textual event log emitted after every change.
type Event struct {
	Seq  int64     `json:"seq"`
	At   float64   `json:"at"`
	Kind EventKind `json:"kind"`
	Node *NodeID   `json:"node,omitempty"` // nil for session-level events
	Text string    `json:"text"`
}

func (e Event) String() string {
	return fmt.Sprintf("[%8.1f] %s", e.At, e.Text)
}
