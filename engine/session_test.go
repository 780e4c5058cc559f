package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
	"github.com/Readm/commit_sim/protocol"
	"github.com/Readm/commit_sim/scenario"
)

func newTestSession(t *testing.T, participants int, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Initialize(participants); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func runUntil(t *testing.T, s *Session, until float64) {
	t.Helper()
	for s.Now() < until {
		if err := s.Tick(100); err != nil {
			t.Fatalf("Tick at %.1f: %v", s.Now(), err)
		}
	}
}

func countEvents(s *Session, kind core.EventKind, substr string) int {
	n := 0
	for _, ev := range s.Events() {
		if ev.Kind == kind && strings.Contains(ev.Text, substr) {
			n++
		}
	}
	return n
}

func expectStates(t *testing.T, s *Session, want map[core.NodeID]core.State) {
	t.Helper()
	got := s.NodeStates()
	for id, st := range want {
		if got[id] != st {
			t.Fatalf("%s: state %s, want %s (all: %v)", id.Label(), got[id], st, got)
		}
	}
}

func TestHappyPathCommits(t *testing.T) {
	s := newTestSession(t, 4)
	if err := s.StartTransaction(); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	runUntil(t, s, 20000)

	expectStates(t, s, map[core.NodeID]core.State{
		0: core.StateDoneCommit, 1: core.StateDoneCommit, 2: core.StateDoneCommit,
		3: core.StateDoneCommit, 4: core.StateDoneCommit,
	})
	tv, _ := s.Transaction()
	if tv.DecidedAt != 5000 || tv.CompletedAt != 10000 {
		t.Fatalf("decided at %.1f, completed at %.1f; want 5000 and 10000", tv.DecidedAt, tv.CompletedAt)
	}
	st := s.ScenarioStatus()
	if st.Verdict != core.VerdictPassed {
		t.Fatalf("sandbox run should pass, got %s (%s)", st.Verdict, st.Reason)
	}
	if !s.Catalog().Unlocked(1) {
		t.Fatalf("passing the sandbox should unlock tier 1")
	}
	if stats := s.Stats(); stats.Total != 1 || stats.Committed != 1 || stats.Failures != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(s.InFlightMessages()) != 0 {
		t.Fatalf("no message should remain in flight")
	}
}

func TestParticipantCrashBeforeVoteAborts(t *testing.T) {
	catalog := scenario.DefaultCatalog()
	catalog.UnlockAll()
	s := newTestSession(t, 4, WithCatalog(catalog))
	if err := s.SetScenario("participant-crash"); err != nil {
		t.Fatalf("SetScenario: %v", err)
	}
	s.StartTransaction()
	if err := s.FailNode(1); err != nil {
		t.Fatalf("FailNode: %v", err)
	}
	runUntil(t, s, 20000)

	expectStates(t, s, map[core.NodeID]core.State{
		0: core.StateDoneAbort, 2: core.StateDoneAbort, 3: core.StateDoneAbort, 4: core.StateDoneAbort,
	})
	if countEvents(s, core.EventLost, "lost, P1 is down") == 0 {
		t.Fatalf("messages to the failed participant should be reported lost")
	}
	st := s.ScenarioStatus()
	if st.Verdict != core.VerdictPassed || st.Remaining["participant"] != 0 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestLinkCutThenRestoredAborts(t *testing.T) {
	s := newTestSession(t, 4)
	s.StartTransaction()
	if err := s.ToggleLink(0, 2); err != nil {
		t.Fatalf("ToggleLink down: %v", err)
	}
	runUntil(t, s, 6000)
	if st := s.NodeStates()[0]; st != core.StateDecidedAbort {
		t.Fatalf("vote timeout should have forced abort, got %s", st)
	}
	if err := s.ToggleLink(2, 0); err != nil {
		t.Fatalf("ToggleLink up: %v", err)
	}
	runUntil(t, s, 25000)

	expectStates(t, s, map[core.NodeID]core.State{
		0: core.StateDoneAbort, 1: core.StateDoneAbort, 2: core.StateDoneAbort,
		3: core.StateDoneAbort, 4: core.StateDoneAbort,
	})
	if countEvents(s, core.EventSend, "P2 sent QUERY_DECISION") == 0 {
		t.Fatalf("P2 should have queried the decision")
	}
	if countEvents(s, core.EventDeliver, "P2 received GLOBAL_ABORT") == 0 {
		t.Fatalf("P2 should have learned ABORT")
	}
}

func TestCoordinatorRestartRebroadcastsPrepareOnce(t *testing.T) {
	catalog := scenario.DefaultCatalog()
	catalog.UnlockAll()
	s := newTestSession(t, 4, WithCatalog(catalog))
	if err := s.SetScenario("coordinator-restart"); err != nil {
		t.Fatalf("SetScenario: %v", err)
	}
	s.StartTransaction()
	runUntil(t, s, 1000)
	if err := s.FailNode(0); err != nil {
		t.Fatalf("FailNode: %v", err)
	}
	runUntil(t, s, 3000)
	if err := s.RecoverNode(0); err != nil {
		t.Fatalf("RecoverNode: %v", err)
	}
	runUntil(t, s, 20000)

	if got := countEvents(s, core.EventSend, "C sent PREPARE"); got != 8 {
		t.Fatalf("expected 4 initial and 4 re-broadcast PREPAREs, got %d", got)
	}
	if got := countEvents(s, core.EventProtocol, "received VOTE_COMMIT from P1"); got != 1 {
		t.Fatalf("P1's vote should be counted once, got %d", got)
	}
	expectStates(t, s, map[core.NodeID]core.State{
		0: core.StateDoneCommit, 1: core.StateDoneCommit, 2: core.StateDoneCommit,
		3: core.StateDoneCommit, 4: core.StateDoneCommit,
	})
	if v := s.ScenarioStatus().Verdict; v != core.VerdictPassed {
		t.Fatalf("coordinator-restart should pass, got %s", v)
	}
}

func TestDroppedVoteForcesAbort(t *testing.T) {
	s := newTestSession(t, 3)
	s.StartTransaction()
	runUntil(t, s, 2600)

	var vote int64
	for _, m := range s.InFlightMessages() {
		if m.Type == core.MsgVoteCommit && m.Sender == 3 {
			vote = m.ID
		}
	}
	if vote == 0 {
		t.Fatalf("P3's vote should be in flight")
	}
	if err := s.DropMessage(vote); err != nil {
		t.Fatalf("DropMessage: %v", err)
	}
	if err := s.DropMessage(vote); !errors.Is(err, core.ErrUnknownMessage) {
		t.Fatalf("dropping twice should fail, got %v", err)
	}
	runUntil(t, s, 20000)
	if d, _ := s.Transaction(); d.Decision != core.OutcomeAbort {
		t.Fatalf("missing vote must force abort, got %s", d.Decision)
	}
	if s.Fatal() != nil {
		t.Fatalf("unexpected fatal error %v", s.Fatal())
	}
}

func TestAbortVoteDecidesAbort(t *testing.T) {
	s := newTestSession(t, 3, WithVotePolicy(protocol.FixedVotes{2: false}))
	s.StartTransaction()
	runUntil(t, s, 15000)
	tv, _ := s.Transaction()
	if tv.Decision != core.OutcomeAbort || tv.DecidedAt != 5000 {
		t.Fatalf("abort vote should decide abort on arrival, got %s at %.1f", tv.Decision, tv.DecidedAt)
	}
	expectStates(t, s, map[core.NodeID]core.State{0: core.StateDoneAbort, 2: core.StateDoneAbort})
}

func TestZeroYesProbabilityAborts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VoteYesProbability = 0
	s, _ := NewSession(cfg)
	s.Initialize(2)
	s.StartTransaction()
	runUntil(t, s, 15000)
	if tv, _ := s.Transaction(); tv.Decision != core.OutcomeAbort {
		t.Fatalf("expected abort, got %s", tv.Decision)
	}
}

func TestParticipantRecoversDecisionWithoutSecondPrepare(t *testing.T) {
	s := newTestSession(t, 4)
	plan, err := PresetPlan("participant_phase2", 4, s.Config())
	if err != nil {
		t.Fatalf("PresetPlan: %v", err)
	}
	res, err := RunPlan(s, plan, 100, 60000)
	if err != nil {
		t.Fatalf("RunPlan: %v", err)
	}
	if !res.Matches || res.States[1] != core.StateDoneCommit {
		t.Fatalf("P1 should reach DONE_COMMIT, got %+v", res)
	}
	if got := countEvents(s, core.EventSend, "C sent PREPARE"); got != 4 {
		t.Fatalf("recovery must not start a second PREPARE round, got %d", got)
	}
	if countEvents(s, core.EventSend, "P1 sent QUERY_DECISION") == 0 {
		t.Fatalf("P1 should have queried the decision")
	}
}

func TestBudgetExhaustionDoesNotMutate(t *testing.T) {
	catalog := scenario.DefaultCatalog()
	catalog.UnlockAll()
	s := newTestSession(t, 4, WithCatalog(catalog))
	s.SetScenario("participant-crash")

	if err := s.FailNode(0); !errors.Is(err, core.ErrBudgetExhausted) {
		t.Fatalf("coordinator budget is zero, got %v", err)
	}
	var cmdErr *core.CommandError
	if err := s.FailNode(0); !errors.As(err, &cmdErr) || cmdErr.Op != "fail" {
		t.Fatalf("expected a CommandError, got %v", err)
	}
	if !s.Nodes()[0].Alive {
		t.Fatalf("rejected fault must not crash the coordinator")
	}
	if err := s.FailNode(1); err != nil {
		t.Fatalf("FailNode: %v", err)
	}
	if err := s.RecoverNode(1); !errors.Is(err, core.ErrBudgetExhausted) {
		t.Fatalf("participant budget is spent, got %v", err)
	}
	if s.Nodes()[1].Alive {
		t.Fatalf("rejected recovery must leave P1 failed")
	}
	if err := s.ToggleLink(0, 1); !errors.Is(err, core.ErrBudgetExhausted) {
		t.Fatalf("link budget is zero, got %v", err)
	}
	if !s.Frame().Links[0].Up {
		t.Fatalf("rejected toggle must leave the link up")
	}
}

func TestInvalidCommands(t *testing.T) {
	empty, _ := NewSession(DefaultConfig())
	if err := empty.StartTransaction(); !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if err := empty.Tick(10); !errors.Is(err, core.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	s := newTestSession(t, 2)
	if err := s.FailNode(7); !errors.Is(err, core.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if err := s.ToggleLink(1, 1); !errors.Is(err, core.ErrInvalidTopology) {
		t.Fatalf("expected ErrInvalidTopology, got %v", err)
	}
	if err := s.DropMessage(99); !errors.Is(err, core.ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	if err := s.RecoverNode(1); !errors.Is(err, core.ErrInvalidCommand) {
		t.Fatalf("recovering an alive node should be invalid, got %v", err)
	}
	if err := s.Tick(-1); !errors.Is(err, core.ErrInvalidCommand) {
		t.Fatalf("negative tick should be invalid, got %v", err)
	}
	s.StartTransaction()
	if err := s.StartTransaction(); !errors.Is(err, core.ErrTransactionActive) {
		t.Fatalf("expected ErrTransactionActive, got %v", err)
	}
	if err := s.Initialize(0); !errors.Is(err, core.ErrInvalidTopology) {
		t.Fatalf("zero participants should be rejected, got %v", err)
	}
}

func TestStartAfterCompletionResets(t *testing.T) {
	s := newTestSession(t, 2)
	s.StartTransaction()
	runUntil(t, s, 20000)
	if !s.Terminal() {
		t.Fatalf("first transaction should be terminal")
	}
	if err := s.StartTransaction(); err != nil {
		t.Fatalf("second StartTransaction: %v", err)
	}
	if s.Now() != 0 {
		t.Fatalf("clock should reset, got %.1f", s.Now())
	}
	tv, _ := s.Transaction()
	if tv.Sequence != 2 {
		t.Fatalf("expected sequence 2, got %d", tv.Sequence)
	}
	if s.NodeStates()[1] != core.StateInit {
		t.Fatalf("participants should be fresh")
	}
}

func TestDropInFlightOnLinkDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DropInFlightOnLinkDown = true
	s, _ := NewSession(cfg)
	s.Initialize(2)
	s.StartTransaction()
	s.ToggleLink(0, 1)
	for _, m := range s.InFlightMessages() {
		if m.Receiver == 1 {
			t.Fatalf("PREPARE to P1 should be dropped with the link")
		}
	}
	if countEvents(s, core.EventLost, "Dropped PREPARE") != 1 {
		t.Fatalf("expected one dropped PREPARE event")
	}
}

func TestTxCompletedHookAndEvents(t *testing.T) {
	broker := hooks.NewPluginBroker()
	var summaries []*core.TransactionSummary
	broker.RegisterTxCompleted(func(ctx *hooks.TxCompletedContext) error {
		summaries = append(summaries, ctx.Summary)
		return nil
	})
	var streamed int
	broker.RegisterEvent(func(*hooks.EventContext) error {
		streamed++
		return nil
	})

	s := newTestSession(t, 2, WithBroker(broker))
	s.StartTransaction()
	runUntil(t, s, 20000)

	if len(summaries) != 1 {
		t.Fatalf("expected one completion, got %d", len(summaries))
	}
	sum := summaries[0]
	if sum.Outcome != core.OutcomeCommit || sum.SessionID != s.ID() || sum.States["P2"] != core.StateDoneCommit {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(sum.Logs["C"]) != 3 {
		t.Fatalf("coordinator log should hold PREPARE, COMMIT, DONE_COMMIT, got %v", sum.Logs["C"])
	}
	if streamed != len(s.Events()) {
		t.Fatalf("every event should be streamed, got %d of %d", streamed, len(s.Events()))
	}
	all := s.Events()
	since := s.EventsSince(all[len(all)-3].Seq)
	if len(since) != 2 {
		t.Fatalf("expected 2 events after cursor, got %d", len(since))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Seq <= all[i-1].Seq || all[i].At < all[i-1].At {
			t.Fatalf("events out of order at %d", i)
		}
	}
}

func TestPresetPlans(t *testing.T) {
	for _, mode := range FailureModes() {
		t.Run(mode, func(t *testing.T) {
			s := newTestSession(t, 4)
			plan, err := PresetPlan(mode, 4, s.Config())
			if err != nil {
				t.Fatalf("PresetPlan: %v", err)
			}
			res, err := RunPlan(s, plan, 250, 120000)
			if err != nil {
				t.Fatalf("RunPlan: %v", err)
			}
			if !res.Matches {
				t.Fatalf("plan %s expected %s, got %+v", mode, plan.Expect, res)
			}
			if res.Verdict != core.VerdictPassed {
				t.Fatalf("agreement must hold, got %s: %s", res.Verdict, res.Reason)
			}
		})
	}
	if _, err := PresetPlan("meteor", 4, DefaultConfig()); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
}

func TestClockSpeedScalesTime(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClockSpeed = 2
	s, _ := NewSession(cfg)
	s.Initialize(1)
	s.StartTransaction()
	s.Tick(100)
	if s.Now() != 200 {
		t.Fatalf("expected now 200, got %.1f", s.Now())
	}
	msgs := s.InFlightMessages()
	if len(msgs) != 1 || msgs[0].Progress != 0.16 {
		t.Fatalf("PREPARE should arrive after 1250ms, got %+v", msgs)
	}
}

func TestFailNodeCancelsOnlyItsOwnTimer(t *testing.T) {
	s := newTestSession(t, 2)
	s.StartTransaction()
	runUntil(t, s, 2600)
	if got := s.timers.Len(); got != 3 {
		t.Fatalf("expected timers for C, P1 and P2, got %d", got)
	}
	coordBefore, _ := s.timers.Pending(0)
	p2Before, _ := s.timers.Pending(2)

	if err := s.FailNode(1); err != nil {
		t.Fatalf("FailNode: %v", err)
	}
	if got := s.timers.Len(); got != 2 {
		t.Fatalf("expected 2 timers after failing P1, got %d", got)
	}
	if _, ok := s.timers.Pending(1); ok {
		t.Fatalf("P1 timer should be cancelled")
	}
	if coord, ok := s.timers.Pending(0); !ok || coord.Handle != coordBefore.Handle {
		t.Fatalf("coordinator timer changed: before %+v after %+v", coordBefore, coord)
	}
	if p2, ok := s.timers.Pending(2); !ok || p2.Handle != p2Before.Handle {
		t.Fatalf("P2 timer changed: before %+v after %+v", p2Before, p2)
	}
}

func TestTickStopsAtStepBudget(t *testing.T) {
	s := newTestSession(t, 1, WithTickBudget(50))
	s.StartTransaction()
	runUntil(t, s, 2600)
	expectStates(t, s, map[core.NodeID]core.State{1: core.StateReady})
	if err := s.FailNode(0); err != nil {
		t.Fatalf("FailNode: %v", err)
	}

	before := s.Events()
	err := s.Tick(1e12)
	if !errors.Is(err, core.ErrTickOverrun) {
		t.Fatalf("expected ErrTickOverrun, got %v", err)
	}
	if now := s.Now(); now <= 2600 || now >= 1e12 {
		t.Fatalf("clock should stop between 2600 and the target, got %.1f", now)
	}
	if added := len(s.Events()) - len(before); added > 200 {
		t.Fatalf("one Tick appended %d events", added)
	}
	expectStates(t, s, map[core.NodeID]core.State{1: core.StateReady})
	if err := s.Tick(100); err != nil {
		t.Fatalf("session should keep ticking after an overrun: %v", err)
	}
}

func TestEventLimitKeepsNewestEvents(t *testing.T) {
	s := newTestSession(t, 2, WithEventLimit(10))
	s.StartTransaction()
	runUntil(t, s, 20000)
	events := s.Events()
	if len(events) != 10 {
		t.Fatalf("expected 10 retained events, got %d", len(events))
	}
	last, _ := s.events.Last()
	if events[9].Seq != last.Seq || events[0].Seq != last.Seq-9 {
		t.Fatalf("expected the newest 10 events, got seq %d..%d", events[0].Seq, events[9].Seq)
	}
}
