package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Readm/commit_sim/clock"
	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
	"github.com/Readm/commit_sim/network"
	"github.com/Readm/commit_sim/protocol"
	"github.com/Readm/commit_sim/scenario"
	"github.com/Readm/commit_sim/timer"
)

// Option customizes a Session.
type Option func(*Session)

// WithBroker routes session hooks through broker.
func WithBroker(b *hooks.PluginBroker) Option {
	return func(s *Session) {
		if b != nil {
			s.broker = b
		}
	}
}

// WithCatalog uses c for scenario lookup and unlocking.
func WithCatalog(c *scenario.Catalog) Option {
	return func(s *Session) {
		if c != nil {
			s.catalog = c
		}
	}
}

// WithVotePolicy overrides the vote policy derived from the config.
func WithVotePolicy(p protocol.VotePolicy) Option {
	return func(s *Session) { s.policy = p }
}

// DefaultTickBudget is the number of deliveries and timer firings one Tick
// may process.
const DefaultTickBudget = 100000

// WithTickBudget bounds the work done by a single Tick; n <= 0 keeps the default.
func WithTickBudget(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.tickBudget = n
		}
	}
}

// WithEventLimit bounds the number of retained events.
func WithEventLimit(n int) Option {
	return func(s *Session) { s.events = NewEventLog(n) }
}

type transaction struct {
	id          string
	seq         int
	startedAt   float64
	decidedAt   float64
	outcome     core.Outcome
	completed   bool
	completedAt float64
	summary     *core.TransactionSummary
}

// Session is one simulation: nodes, links, in-flight messages, clock,
// scenario and event log. It is not safe for concurrent use; the driver
// owns it on a single goroutine.
type Session struct {
	id      string
	cfg     Config
	broker  *hooks.PluginBroker
	catalog *scenario.Catalog
	policy  protocol.VotePolicy

	participants int
	clock        *clock.Clock
	topo         *network.Topology
	transport    *network.Transport
	timers       *timer.Wheel
	nodes        []*protocol.Node
	events       *EventLog
	tickBudget   int

	scenario scenario.Scenario
	budget   scenario.Budget
	result   scenario.Result
	faults   int

	tx    *transaction
	txSeq int
	stats Stats
	fatal error
}

// NewSession creates an uninitialized session. Call Initialize before any command.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Session{
		id:         uuid.NewString(),
		cfg:        cfg,
		broker:     hooks.NewPluginBroker(),
		events:     NewEventLog(0),
		tickBudget: DefaultTickBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.catalog == nil {
		s.catalog = scenario.DefaultCatalog()
	}
	sc, err := s.catalog.Get(0)
	if err != nil {
		return nil, err
	}
	s.scenario = sc
	return s, nil
}

// ID returns the session uuid.
func (s *Session) ID() string { return s.id }

// Config returns the active configuration.
func (s *Session) Config() Config { return s.cfg }

// Broker returns the hook broker the session emits through.
func (s *Session) Broker() *hooks.PluginBroker { return s.broker }

// Participants returns the participant count of the current topology.
func (s *Session) Participants() int { return s.participants }

// Catalog returns the scenario catalog.
func (s *Session) Catalog() *scenario.Catalog { return s.catalog }

// Initialize discards every node, link and message and builds a fresh
// complete mesh of one coordinator and participants participants.
func (s *Session) Initialize(participants int) error {
	const op = "initialize"
	if participants < 1 {
		return core.NewCommandError(op, fmt.Errorf("need at least one participant, got %d: %w", participants, core.ErrInvalidTopology))
	}
	clk := clock.New(s.cfg.ClockSpeed)
	topo, err := network.NewCompleteMesh(participants+1, s.cfg.LinkLatencyMs)
	if err != nil {
		return core.NewCommandError(op, err)
	}
	policy := s.policy
	if policy == nil {
		policy = protocol.PolicyFor(s.cfg.VoteYesProbability, s.cfg.Seed)
	}

	env := &nodeEnv{s: s}
	ids := make([]core.NodeID, participants)
	for i := range ids {
		ids[i] = core.NodeID(i + 1)
	}
	coord, err := protocol.NewCoordinator(ids, env, s.cfg.timeouts())
	if err != nil {
		return core.NewCommandError(op, err)
	}
	nodes := []*protocol.Node{coord}
	for _, id := range ids {
		p, err := protocol.NewParticipant(id, env, s.cfg.timeouts(), policy)
		if err != nil {
			return core.NewCommandError(op, err)
		}
		nodes = append(nodes, p)
	}

	s.participants = participants
	s.clock = clk
	s.topo = topo
	s.transport = network.NewTransport(topo, clk, s.broker)
	s.timers = timer.NewWheel()
	s.nodes = nodes
	s.budget = s.scenario.Budget
	s.result = scenario.Result{Verdict: core.VerdictPending}
	s.faults = 0
	s.tx = nil
	s.fatal = nil
	s.events.Clear()
	s.emit(core.EventTransaction, nil, fmt.Sprintf("Initialized coordinator and %d participants, scenario %q: %s",
		participants, s.scenario.Name, s.budget))
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (s *Session) Initialized() bool {
	return s.nodes != nil
}

// SetScenario selects an unlocked scenario by name or tier and re-initializes.
func (s *Session) SetScenario(key string) error {
	const op = "scenario"
	if s.active() {
		return core.NewCommandError(op, core.ErrTransactionActive)
	}
	sc, err := s.catalog.Lookup(key)
	if err != nil {
		return core.NewCommandError(op, err)
	}
	if !s.catalog.Unlocked(sc.Tier) {
		return core.NewCommandError(op, fmt.Errorf("scenario %q is locked: %w", sc.Name, core.ErrInvalidCommand))
	}
	s.scenario = sc
	if s.Initialized() {
		return s.Initialize(s.participants)
	}
	return nil
}

// SetConfig replaces the configuration and re-initializes.
func (s *Session) SetConfig(cfg Config) error {
	const op = "config"
	if err := cfg.Validate(); err != nil {
		return core.NewCommandError(op, fmt.Errorf("%v: %w", err, core.ErrInvalidCommand))
	}
	if s.active() {
		return core.NewCommandError(op, core.ErrTransactionActive)
	}
	s.cfg = cfg
	if s.Initialized() {
		return s.Initialize(s.participants)
	}
	return nil
}

// StartTransaction makes the coordinator broadcast PREPARE. Starting after a
// completed transaction first re-initializes the session.
func (s *Session) StartTransaction() error {
	const op = "start"
	if !s.Initialized() {
		return core.NewCommandError(op, core.ErrNoSession)
	}
	if s.tx != nil {
		if !s.tx.completed {
			return core.NewCommandError(op, core.ErrTransactionActive)
		}
		if err := s.Initialize(s.participants); err != nil {
			return err
		}
	}
	coord := s.coordinator()
	if !coord.Alive() {
		return core.NewCommandError(op, fmt.Errorf("coordinator is failed: %w", core.ErrInvalidCommand))
	}
	s.txSeq++
	s.tx = &transaction{id: uuid.NewString(), seq: s.txSeq, startedAt: s.clock.Now()}
	s.emit(core.EventTransaction, nil, fmt.Sprintf("Transaction %d started", s.tx.seq))
	if err := coord.Start(); err != nil {
		return core.NewCommandError(op, err)
	}
	return nil
}

// Tick advances simulated time by delta scaled by the clock speed and
// processes every message and timer that falls due, in time order. At equal
// times messages go before timers. A duplicate delivery is fatal: the
// session refuses further ticks. When the step budget runs out the clock
// stays at the last processed item and ErrTickOverrun is returned; the next
// Tick resumes from there.
func (s *Session) Tick(delta float64) error {
	const op = "tick"
	if s.fatal != nil {
		return s.fatal
	}
	if !s.Initialized() {
		return core.NewCommandError(op, core.ErrNoSession)
	}
	if delta < 0 {
		return core.NewCommandError(op, fmt.Errorf("negative delta %.1f: %w", delta, core.ErrInvalidCommand))
	}
	target := s.clock.Target(delta)
	for steps := 0; ; steps++ {
		m, hasMsg := s.transport.PeekDue(target)
		t, hasTimer := s.timers.Peek()
		hasTimer = hasTimer && t.Deadline <= target
		if !hasMsg && !hasTimer {
			break
		}
		if steps >= s.tickBudget {
			s.emit(core.EventProtocol, nil, fmt.Sprintf("Tick stopped at %.1f after %d steps, target %.1f", s.clock.Now(), steps, target))
			return core.NewCommandError(op, fmt.Errorf("%d steps before %.1f: %w", steps, target, core.ErrTickOverrun))
		}
		var err error
		if hasMsg && (!hasTimer || m.ArrivalAt <= t.Deadline) {
			s.clock.AdvanceTo(m.ArrivalAt)
			err = s.deliver(m)
		} else {
			s.clock.AdvanceTo(t.Deadline)
			s.timers.Cancel(t.Handle)
			err = s.fire(t)
		}
		if err != nil {
			if errors.Is(err, core.ErrDuplicateDelivery) {
				s.fatal = err
				s.emit(core.EventViolation, nil, fmt.Sprintf("Fatal: %v", err))
			}
			return core.NewCommandError(op, err)
		}
	}
	s.clock.AdvanceTo(target)
	return nil
}

// Fatal returns the invariant violation that stopped the session, if any.
func (s *Session) Fatal() error {
	return s.fatal
}

func (s *Session) deliver(m core.Message) error {
	msg, err := s.transport.Take(m.ID)
	if err != nil {
		return err
	}
	recv := msg.Receiver
	node := s.nodes[recv]
	ctx := &hooks.MessageContext{Message: msg, Now: s.clock.Now()}
	if err := s.broker.EmitBeforeDeliver(ctx); err != nil {
		s.emit(core.EventLost, &recv, fmt.Sprintf("%s %s→%s discarded: %v", msg.Type, msg.Sender.Label(), recv.Label(), err))
		return nil
	}
	if !node.Alive() {
		s.emit(core.EventLost, &recv, fmt.Sprintf("%s %s→%s lost, %s is down", msg.Type, msg.Sender.Label(), recv.Label(), recv.Label()))
		return nil
	}
	s.emit(core.EventDeliver, &recv, fmt.Sprintf("%s received %s from %s", recv.Label(), msg.Type, msg.Sender.Label()))
	if err := node.Handle(msg); err != nil {
		return err
	}
	s.afterStep()
	if err := s.broker.EmitAfterDeliver(ctx); err != nil {
		s.emit(core.EventProtocol, &recv, fmt.Sprintf("after-deliver hook: %v", err))
	}
	return nil
}

func (s *Session) fire(t timer.Timer) error {
	owner := t.Handle.Owner
	if int(owner) >= len(s.nodes) {
		return fmt.Errorf("timer owner %d: %w", owner, core.ErrUnknownNode)
	}
	s.emit(core.EventTimer, &owner, fmt.Sprintf("%s %s fired", owner.Label(), t.Kind))
	if err := s.nodes[owner].OnTimeout(t); err != nil {
		return err
	}
	s.afterStep()
	return nil
}

func (s *Session) coordinator() *protocol.Node {
	return s.nodes[core.CoordinatorID]
}

func (s *Session) node(id core.NodeID) (*protocol.Node, error) {
	if !s.Initialized() {
		return nil, core.ErrNoSession
	}
	if id < 0 || int(id) >= len(s.nodes) {
		return nil, fmt.Errorf("node %d: %w", id, core.ErrUnknownNode)
	}
	return s.nodes[id], nil
}

func (s *Session) active() bool {
	return s.tx != nil && !s.tx.completed
}

func (s *Session) emit(kind core.EventKind, node *core.NodeID, text string) {
	var at float64
	if s.clock != nil {
		at = s.clock.Now()
	}
	ev := s.events.Append(Event{At: at, Kind: kind, Node: node, Text: text})
	s.broker.EmitEvent(&hooks.EventContext{Event: ev})
}

// nodeEnv adapts the session to the protocol.Env the nodes call back into.
type nodeEnv struct {
	s *Session
}

func (e *nodeEnv) Now() float64 { return e.s.clock.Now() }

func (e *nodeEnv) Send(from, to core.NodeID, typ core.MessageType) error {
	s := e.s
	res, err := s.transport.Send(from, to, typ)
	if err != nil && res.Status == "" {
		return err
	}
	switch res.Status {
	case network.StatusSent:
		s.emit(core.EventSend, &from, fmt.Sprintf("%s sent %s to %s", from.Label(), typ, to.Label()))
	case network.StatusSuppressed:
		s.emit(core.EventLost, &from, fmt.Sprintf("%s %s→%s not sent, link down", typ, from.Label(), to.Label()))
	case network.StatusVetoed:
		s.emit(core.EventLost, &from, fmt.Sprintf("%s %s→%s lost: %v", typ, from.Label(), to.Label(), res.Reason))
	}
	if err != nil {
		s.emit(core.EventProtocol, &from, fmt.Sprintf("after-send hook: %v", err))
	}
	return nil
}

func (e *nodeEnv) ArmTimer(owner core.NodeID, kind timer.Kind, delay float64) timer.Handle {
	return e.s.timers.Arm(owner, kind, e.s.clock.Now()+delay)
}

func (e *nodeEnv) CancelTimer(h timer.Handle) bool {
	return e.s.timers.Cancel(h)
}

func (e *nodeEnv) Emit(kind core.EventKind, node core.NodeID, text string) {
	e.s.emit(kind, &node, text)
}

func (e *nodeEnv) Transitioned(node core.NodeID, from, to core.State, reason string) {
	s := e.s
	s.emit(core.EventState, &node, fmt.Sprintf("%s: %s → %s (%s)", node.Label(), from, to, reason))
	if err := s.broker.EmitStateChange(&hooks.StateContext{
		Node: node, From: from, To: to, Now: s.clock.Now(), Reason: reason,
	}); err != nil {
		s.emit(core.EventProtocol, &node, fmt.Sprintf("state-change hook: %v", err))
	}
}

func (e *nodeEnv) Decide(outcome core.Outcome, reason string) error {
	return e.s.decide(outcome, reason)
}
