package engine

import (
	"fmt"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
	"github.com/Readm/commit_sim/scenario"
)

// decide is invoked by the coordinator on quorum, abort vote or vote timeout.
func (s *Session) decide(outcome core.Outcome, reason string) error {
	coord := s.coordinator()
	if !coord.Alive() {
		return nil
	}
	if _, decided := coord.Decision(); decided {
		return nil
	}
	s.emit(core.EventTransaction, nil, fmt.Sprintf("Coordinator decides %s: %s", outcome, reason))
	if err := coord.Decide(outcome, reason); err != nil {
		return err
	}
	if s.tx != nil {
		s.tx.decidedAt = s.clock.Now()
		s.tx.outcome = outcome
	}
	return nil
}

// afterStep runs after every delivery, timer and recovery: it detects the
// terminal state and finalizes participants that learn the decision late.
func (s *Session) afterStep() {
	if s.tx == nil {
		return
	}
	if !s.tx.completed {
		if s.coordinator().State().IsDone() {
			s.complete()
		}
		return
	}
	s.finalizeParticipants()
}

func (s *Session) finalizeParticipants() {
	outcome := s.tx.outcome
	for _, n := range s.nodes[1:] {
		if !n.Alive() || n.State() != outcome.Applied() {
			continue
		}
		if err := n.Finalize(outcome); err != nil {
			id := n.ID()
			s.emit(core.EventViolation, &id, fmt.Sprintf("%s finalize: %v", id.Label(), err))
		}
	}
}

func (s *Session) complete() {
	coord := s.coordinator()
	outcome, _ := coord.Decision()
	if outcome == "" {
		outcome, _ = coord.State().Outcome()
	}
	tx := s.tx
	tx.completed = true
	tx.completedAt = s.clock.Now()
	tx.outcome = outcome
	s.emit(core.EventTransaction, nil, fmt.Sprintf("Transaction %d terminal: %s", tx.seq, outcome))

	s.finalizeParticipants()

	s.result = scenario.Grade(s.scenario, s.budget, outcome, s.nodeReports())
	unlocked := s.catalog.Record(s.scenario.Tier, s.result.Verdict)
	text := fmt.Sprintf("Scenario %q %s", s.scenario.Name, s.result.Verdict)
	if s.result.Reason != "" {
		text += ": " + s.result.Reason
	}
	s.emit(core.EventScenario, nil, text)
	if unlocked {
		s.emit(core.EventScenario, nil, fmt.Sprintf("Scenario tier %d unlocked", s.scenario.Tier+1))
	}

	s.stats.record(outcome, s.result.Verdict)
	tx.summary = s.summary()
	if err := s.broker.EmitTxCompleted(&hooks.TxCompletedContext{Summary: tx.summary}); err != nil {
		s.emit(core.EventTransaction, nil, fmt.Sprintf("transaction-complete hook: %v", err))
	}
}

func (s *Session) nodeReports() []scenario.NodeReport {
	out := make([]scenario.NodeReport, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = scenario.NodeReport{
			ID:    n.ID(),
			Role:  n.Role(),
			State: n.State(),
			Alive: n.Alive(),
			Log:   n.Log(),
		}
	}
	return out
}

func (s *Session) summary() *core.TransactionSummary {
	tx := s.tx
	sum := &core.TransactionSummary{
		ID:          tx.id,
		SessionID:   s.id,
		Sequence:    tx.seq,
		Scenario:    s.scenario.Name,
		StartedAt:   tx.startedAt,
		CompletedAt: tx.completedAt,
		Outcome:     tx.outcome,
		Verdict:     s.result.Verdict,
		Reason:      s.result.Reason,
		States:      make(map[string]core.State, len(s.nodes)),
		Logs:        make(map[string][]core.LogRecord, len(s.nodes)),
		Remaining:   s.budget.Map(),
		Faults:      s.faults,
		Messages:    s.transport.SentCount(),
	}
	for _, n := range s.nodes {
		label := n.ID().Label()
		sum.States[label] = n.State()
		sum.Logs[label] = n.Log()
	}
	return sum
}
