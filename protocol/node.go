package protocol

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/timer"
)

// Env is everything a node needs from the session hosting it. All calls
// happen synchronously on the session goroutine.
type Env interface {
	Now() float64
	Send(from, to core.NodeID, typ core.MessageType) error
	ArmTimer(owner core.NodeID, kind timer.Kind, delay float64) timer.Handle
	CancelTimer(h timer.Handle) bool
	Emit(kind core.EventKind, node core.NodeID, text string)
	// Transitioned is called after every applied transition.
	Transitioned(node core.NodeID, from, to core.State, reason string)
	// Decide asks the transaction controller to make the global decision.
	Decide(outcome core.Outcome, reason string) error
}

// Timeouts holds timer durations in simulated ms.
type Timeouts struct {
	Vote     float64
	Decision float64
}

// Node is one 2PC process. Coordinator and participant share the type and
// differ in transition table and message handlers.
type Node struct {
	id       core.NodeID
	role     core.Role
	machine  *Machine
	env      Env
	timeouts Timeouts
	policy   VotePolicy

	state core.State
	alive bool
	log   []core.LogRecord
	timer timer.Handle

	// coordinator only
	participants []core.NodeID

	// volatile, lost on crash
	votes    map[core.NodeID]struct{}
	acks     map[core.NodeID]struct{}
	queries  map[core.NodeID]struct{}
	decision core.Outcome
}

// NewCoordinator creates the coordinator for the given participants.
func NewCoordinator(participants []core.NodeID, env Env, timeouts Timeouts) (*Node, error) {
	if env == nil {
		return nil, fmt.Errorf("coordinator: env is nil")
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("coordinator: no participants")
	}
	ps := append([]core.NodeID(nil), participants...)
	sort.Slice(ps, func(i, j int) bool { return ps[i] < ps[j] })
	for _, p := range ps {
		if p == core.CoordinatorID {
			return nil, fmt.Errorf("coordinator: participant id %d is reserved", p)
		}
	}
	n := newNode(core.CoordinatorID, core.RoleCoordinator, coordinatorMachine, env, timeouts)
	n.participants = ps
	return n, nil
}

// NewParticipant creates participant id answering PREPARE with policy.
func NewParticipant(id core.NodeID, env Env, timeouts Timeouts, policy VotePolicy) (*Node, error) {
	if env == nil {
		return nil, fmt.Errorf("participant %d: env is nil", id)
	}
	if id == core.CoordinatorID {
		return nil, fmt.Errorf("participant: id %d is reserved for the coordinator", id)
	}
	if policy == nil {
		policy = AlwaysCommit{}
	}
	n := newNode(id, core.RoleParticipant, participantMachine, env, timeouts)
	n.policy = policy
	return n, nil
}

func newNode(id core.NodeID, role core.Role, m *Machine, env Env, timeouts Timeouts) *Node {
	return &Node{
		id:       id,
		role:     role,
		machine:  m,
		env:      env,
		timeouts: timeouts,
		state:    m.DefaultState(),
		alive:    true,
		votes:    make(map[core.NodeID]struct{}),
		acks:     make(map[core.NodeID]struct{}),
		queries:  make(map[core.NodeID]struct{}),
	}
}

func (n *Node) ID() core.NodeID   { return n.id }
func (n *Node) Role() core.Role   { return n.role }
func (n *Node) State() core.State { return n.state }
func (n *Node) Alive() bool       { return n.alive }

// IsCoordinator reports whether the node plays the coordinator role.
func (n *Node) IsCoordinator() bool {
	return n.role == core.RoleCoordinator
}

// Decision returns the outcome the node knows about, if any.
func (n *Node) Decision() (core.Outcome, bool) {
	return n.decision, n.decision != ""
}

// Log returns a copy of the write-ahead log.
func (n *Node) Log() []core.LogRecord {
	return append([]core.LogRecord(nil), n.log...)
}

// Participants returns the participant ids known to the coordinator.
func (n *Node) Participants() []core.NodeID {
	return append([]core.NodeID(nil), n.participants...)
}

func (n *Node) Votes() []core.NodeID { return sortedIDs(n.votes) }
func (n *Node) PendingQueries() []core.NodeID { return sortedIDs(n.queries) }

// Info returns the status readout of the node.
func (n *Node) Info() core.NodeInfo {
	return core.NodeInfo{
		ID:    n.id,
		Label: n.id.Label(),
		Role:  n.role,
		State: n.state,
		Alive: n.alive,
	}
}

// Handle processes one delivered message. Delivery to a failed node is a
// caller error; the session discards such messages before calling Handle.
func (n *Node) Handle(msg core.Message) error {
	if !n.alive {
		return fmt.Errorf("%s is failed: %w", n.id.Label(), core.ErrInvalidCommand)
	}
	if msg.Receiver != n.id {
		return fmt.Errorf("%s got message for %s: %w", n.id.Label(), msg.Receiver.Label(), core.ErrInvalidCommand)
	}
	if n.IsCoordinator() {
		return n.coordinatorHandle(msg)
	}
	return n.participantHandle(msg)
}

// OnTimeout handles a fired timer. Timers that are no longer the node's
// pending one are ignored.
func (n *Node) OnTimeout(t timer.Timer) error {
	if !n.alive || t.Handle != n.timer {
		return nil
	}
	n.timer = timer.Handle{}
	if n.IsCoordinator() {
		return n.coordinatorTimeout(t.Kind)
	}
	return n.participantTimeout(t.Kind)
}

// Fail crashes the node: it stops receiving, loses its pending timer and
// every volatile set. State and log survive.
func (n *Node) Fail() error {
	if !n.alive {
		return fmt.Errorf("%s already failed: %w", n.id.Label(), core.ErrInvalidCommand)
	}
	n.alive = false
	n.cancelTimer()
	n.votes = make(map[core.NodeID]struct{})
	n.acks = make(map[core.NodeID]struct{})
	n.queries = make(map[core.NodeID]struct{})
	n.decision = ""
	return nil
}

// Recover restarts a failed node from its log and re-drives whatever the
// logged state implies.
func (n *Node) Recover() error {
	if n.alive {
		return fmt.Errorf("%s is not failed: %w", n.id.Label(), core.ErrInvalidCommand)
	}
	st, err := n.machine.Replay(n.log)
	if err != nil {
		return err
	}
	n.alive = true
	n.state = st
	if o, ok := st.Outcome(); ok {
		n.decision = o
	}
	n.env.Emit(core.EventProtocol, n.id, fmt.Sprintf("%s replayed log, state %s", n.id.Label(), st))
	if n.IsCoordinator() {
		return n.coordinatorRecover()
	}
	return n.participantRecover()
}

// apply runs one table transition and logs it. Nothing changes on error.
func (n *Node) apply(in Input, reason string) error {
	to, record, err := n.machine.Next(n.state, in)
	if err != nil {
		return err
	}
	from := n.state
	n.state = to
	if record != "" {
		n.log = append(n.log, core.LogRecord{At: n.env.Now(), Record: record})
	}
	n.env.Transitioned(n.id, from, to, reason)
	return nil
}

func (n *Node) arm(kind timer.Kind, delay float64) {
	n.cancelTimer()
	n.timer = n.env.ArmTimer(n.id, kind, delay)
}

func (n *Node) cancelTimer() {
	if n.timer.Valid() {
		n.env.CancelTimer(n.timer)
	}
	n.timer = timer.Handle{}
}

func (n *Node) send(to core.NodeID, typ core.MessageType) error {
	return n.env.Send(n.id, to, typ)
}

func (n *Node) note(format string, args ...interface{}) {
	n.env.Emit(core.EventProtocol, n.id, n.id.Label()+": "+fmt.Sprintf(format, args...))
}

func (n *Node) broadcast(typ core.MessageType) error {
	var errs []error
	for _, p := range n.participants {
		if err := n.send(p, typ); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortedIDs(set map[core.NodeID]struct{}) []core.NodeID {
	out := make([]core.NodeID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
