package network

import (
	"fmt"

	"github.com/Readm/commit_sim/clock"
	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
	"github.com/Readm/commit_sim/queue"
)

// SendStatus reports what happened to a send request.
type SendStatus string

const (
	StatusSent       SendStatus = "sent"       // message is in flight
	StatusSuppressed SendStatus = "suppressed" // link down, never reached the wire
	StatusVetoed     SendStatus = "vetoed"     // a before-send hook discarded it
)

// SendResult describes the outcome of Send. Message is only meaningful for
// StatusSent; Reason is set for StatusVetoed.
type SendResult struct {
	Status  SendStatus
	Message core.Message
	Reason  error
}

// Transport owns the in-flight messages and hands each one out exactly once.
type Transport struct {
	topo      *Topology
	clock     *clock.Clock
	broker    *hooks.PluginBroker
	ids       *core.MessageIDAllocator
	seq       int64
	inFlight  *queue.TrackedQueue[*core.Message]
	delivered map[int64]struct{}
	sentCount int
}

// NewTransport creates a transport over topo driven by clk. broker may be nil.
func NewTransport(topo *Topology, clk *clock.Clock, broker *hooks.PluginBroker) *Transport {
	return &Transport{
		topo:   topo,
		clock:  clk,
		broker: broker,
		ids:    core.NewMessageIDAllocator(),
		inFlight: queue.NewOrderedQueue[*core.Message]("in_flight", queue.UnlimitedCapacity,
			func(a, b *core.Message) bool { return a.Before(b) },
			queue.QueueHooks[*core.Message]{}),
		delivered: make(map[int64]struct{}),
	}
}

// Topology returns the topology the transport sends over.
func (t *Transport) Topology() *Topology {
	return t.topo
}

// Send puts a message of type typ from sender to receiver on their link.
// A missing link returns ErrInvalidTopology; a down link is not an error,
// the message simply never exists.
func (t *Transport) Send(sender, receiver core.NodeID, typ core.MessageType) (SendResult, error) {
	link, err := t.topo.Link(sender, receiver)
	if err != nil {
		return SendResult{}, fmt.Errorf("send %s %s->%s: %w", typ, sender.Label(), receiver.Label(), err)
	}
	if !link.Up {
		return SendResult{Status: StatusSuppressed}, nil
	}

	now := t.clock.Now()
	t.seq++
	msg := &core.Message{
		ID:        t.ids.Allocate(),
		Seq:       t.seq,
		Type:      typ,
		Sender:    sender,
		Receiver:  receiver,
		SentAt:    now,
		ArrivalAt: now + link.Latency/t.clock.Speed(),
		Link:      link.Key,
	}

	ctx := &hooks.MessageContext{Message: *msg, Now: now}
	if err := t.broker.EmitBeforeSend(ctx); err != nil {
		return SendResult{Status: StatusVetoed, Message: *msg, Reason: err}, nil
	}

	t.inFlight.Enqueue(msg, now)
	t.sentCount++
	if err := t.broker.EmitAfterSend(ctx); err != nil {
		return SendResult{Status: StatusSent, Message: *msg}, fmt.Errorf("after-send hook: %w", err)
	}
	return SendResult{Status: StatusSent, Message: *msg}, nil
}

// PeekDue returns the earliest message that may be delivered at now: its
// arrival time has passed and its link is currently up. Messages held on a
// down link are skipped but stay in flight.
func (t *Transport) PeekDue(now float64) (core.Message, bool) {
	for _, m := range t.inFlight.Items() {
		if !m.Deliverable(now) {
			break
		}
		if t.topo.IsUp(m.Link) {
			return *m, true
		}
	}
	return core.Message{}, false
}

// Take removes the message with id from flight for delivery. Taking an id
// that was already delivered is a fatal invariant violation.
func (t *Transport) Take(id int64) (core.Message, error) {
	if _, dup := t.delivered[id]; dup {
		return core.Message{}, fmt.Errorf("message %d: %w", id, core.ErrDuplicateDelivery)
	}
	m, ok := t.inFlight.RemoveMatch(func(m *core.Message) bool { return m.ID == id }, t.clock.Now())
	if !ok {
		return core.Message{}, fmt.Errorf("message %d: %w", id, core.ErrUnknownMessage)
	}
	t.delivered[id] = struct{}{}
	return *m, nil
}

// Drop removes one in-flight message without delivering it.
func (t *Transport) Drop(id int64) (core.Message, error) {
	m, ok := t.inFlight.RemoveMatch(func(m *core.Message) bool { return m.ID == id }, t.clock.Now())
	if !ok {
		return core.Message{}, fmt.Errorf("message %d: %w", id, core.ErrUnknownMessage)
	}
	return *m, nil
}

// DropLink removes every message in flight on the given link.
func (t *Transport) DropLink(key core.LinkKey) []core.Message {
	removed := t.inFlight.RemoveAll(func(m *core.Message) bool { return m.Link == key }, t.clock.Now())
	out := make([]core.Message, len(removed))
	for i, m := range removed {
		out[i] = *m
	}
	return out
}

// Lookup returns a copy of the in-flight message with id.
func (t *Transport) Lookup(id int64) (core.Message, bool) {
	idx := t.inFlight.FindFirst(func(m *core.Message) bool { return m.ID == id })
	if idx < 0 {
		return core.Message{}, false
	}
	return *t.inFlight.Items()[idx], true
}

// InFlight returns the in-flight messages in delivery order with their progress at now.
func (t *Transport) InFlight(now float64) []core.MessageInfo {
	items := t.inFlight.Items()
	out := make([]core.MessageInfo, 0, len(items))
	for _, m := range items {
		out = append(out, core.MessageInfo{
			ID:       m.ID,
			Type:     m.Type,
			Sender:   m.Sender,
			Receiver: m.Receiver,
			Progress: m.Progress(now),
			LinkUp:   t.topo.IsUp(m.Link),
		})
	}
	return out
}

// InFlightCount returns the number of messages currently in flight.
func (t *Transport) InFlightCount() int {
	return t.inFlight.Len()
}

// DeliverableCount returns how many in-flight messages sit on links that are up.
func (t *Transport) DeliverableCount() int {
	n := 0
	for _, m := range t.inFlight.Items() {
		if t.topo.IsUp(m.Link) {
			n++
		}
	}
	return n
}

// SentCount returns how many messages made it onto a link.
func (t *Transport) SentCount() int {
	return t.sentCount
}

// WasDelivered reports whether the message with id has been taken for delivery.
func (t *Transport) WasDelivered(id int64) bool {
	_, ok := t.delivered[id]
	return ok
}
