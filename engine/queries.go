package engine

import (
	"sort"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/network"
	"github.com/Readm/commit_sim/scenario"
	"github.com/Readm/commit_sim/timer"
)

// TransactionView describes the current transaction.
type TransactionView struct {
	ID          string       `json:"id"`
	Sequence    int          `json:"sequence"`
	StartedAt   float64      `json:"startedAt"`
	Decision    core.Outcome `json:"decision,omitempty"`
	DecidedAt   float64      `json:"decidedAt,omitempty"`
	Terminal    bool         `json:"terminal"`
	CompletedAt float64      `json:"completedAt,omitempty"`
}

// TimerInfo describes a pending timer.
type TimerInfo struct {
	Node     core.NodeID `json:"node"`
	Kind     timer.Kind  `json:"kind"`
	Deadline float64     `json:"deadline"`
}

// Frame is a full snapshot of the session for renderers.
type Frame struct {
	SessionID   string              `json:"sessionID"`
	Now         float64             `json:"now"`
	Nodes       []core.NodeInfo     `json:"nodes"`
	Links       []network.LinkInfo  `json:"links"`
	Messages    []core.MessageInfo  `json:"messages"`
	Timers      []TimerInfo         `json:"timers"`
	Scenario    scenario.Status     `json:"scenario"`
	Transaction *TransactionView    `json:"transaction,omitempty"`
	Stats       Stats               `json:"stats"`
	LastEvent   int64               `json:"lastEvent"`
	Config      Config              `json:"config"`
	Logs        map[string][]string `json:"logs"`
}

// Now returns the current simulated time.
func (s *Session) Now() float64 {
	return s.clock.Now()
}

// NodeStates maps every node id to its state name.
func (s *Session) NodeStates() map[core.NodeID]core.State {
	out := make(map[core.NodeID]core.State, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID()] = n.State()
	}
	return out
}

// Nodes returns status readouts ordered by id.
func (s *Session) Nodes() []core.NodeInfo {
	out := make([]core.NodeInfo, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Info()
	}
	return out
}

// InFlightMessages returns in-flight messages in delivery order.
func (s *Session) InFlightMessages() []core.MessageInfo {
	if !s.Initialized() {
		return nil
	}
	return s.transport.InFlight(s.clock.Now())
}

// ScenarioStatus returns the remaining budget and grading state.
func (s *Session) ScenarioStatus() scenario.Status {
	return scenario.Status{
		Scenario:  s.scenario.Name,
		Tier:      s.scenario.Tier,
		Expect:    s.scenario.Expect,
		Remaining: s.budget.Map(),
		Verdict:   s.verdict(),
		Reason:    s.result.Reason,
		Summary:   s.budget.String(),
	}
}

func (s *Session) verdict() core.Verdict {
	if s.result.Verdict == "" {
		return core.VerdictPending
	}
	return s.result.Verdict
}

// Events returns the whole event log.
func (s *Session) Events() []Event {
	return s.events.All()
}

// EventsSince returns events with a sequence number above seq.
func (s *Session) EventsSince(seq int64) []Event {
	return s.events.Since(seq)
}

// Logs returns a copy of every node's write-ahead log.
func (s *Session) Logs() map[core.NodeID][]core.LogRecord {
	out := make(map[core.NodeID][]core.LogRecord, len(s.nodes))
	for _, n := range s.nodes {
		out[n.ID()] = n.Log()
	}
	return out
}

// Stats returns run statistics.
func (s *Session) Stats() Stats {
	return s.stats
}

// Transaction returns the current transaction, if one was started.
func (s *Session) Transaction() (TransactionView, bool) {
	if s.tx == nil {
		return TransactionView{}, false
	}
	return TransactionView{
		ID:          s.tx.id,
		Sequence:    s.tx.seq,
		StartedAt:   s.tx.startedAt,
		Decision:    s.tx.outcome,
		DecidedAt:   s.tx.decidedAt,
		Terminal:    s.tx.completed,
		CompletedAt: s.tx.completedAt,
	}, true
}

// Terminal reports whether the current transaction has completed.
func (s *Session) Terminal() bool {
	return s.tx != nil && s.tx.completed
}

// Quiescent reports whether the transaction is terminal and nothing can
// still be delivered. Messages held on down links do not count.
func (s *Session) Quiescent() bool {
	return s.Terminal() && s.transport.DeliverableCount() == 0
}

// Summary returns the archived summary of the last completed transaction.
func (s *Session) Summary() (*core.TransactionSummary, bool) {
	if s.tx == nil || s.tx.summary == nil {
		return nil, false
	}
	return s.tx.summary, true
}

// Frame builds a snapshot for renderers.
func (s *Session) Frame() Frame {
	f := Frame{
		SessionID: s.id,
		Scenario:  s.ScenarioStatus(),
		Stats:     s.stats,
		Config:    s.cfg,
		Logs:      map[string][]string{},
	}
	if last, ok := s.events.Last(); ok {
		f.LastEvent = last.Seq
	}
	if !s.Initialized() {
		return f
	}
	f.Now = s.clock.Now()
	f.Nodes = s.Nodes()
	f.Links = s.topo.Links()
	f.Messages = s.InFlightMessages()
	for _, n := range s.nodes {
		if t, ok := s.timers.Pending(n.ID()); ok {
			f.Timers = append(f.Timers, TimerInfo{Node: n.ID(), Kind: t.Kind, Deadline: t.Deadline})
		}
		records := make([]string, 0, len(n.Log()))
		for _, r := range n.Log() {
			records = append(records, r.Record)
		}
		f.Logs[n.ID().Label()] = records
	}
	sort.Slice(f.Timers, func(i, j int) bool { return f.Timers[i].Deadline < f.Timers[j].Deadline })
	if tv, ok := s.Transaction(); ok {
		f.Transaction = &tv
	}
	return f
}
