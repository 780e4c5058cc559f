package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/visual"
)

type chanVisualizer struct {
	cmds   chan visual.ControlCommand
	frames chan *visual.Snapshot
}

func newChanVisualizer() *chanVisualizer {
	return &chanVisualizer{
		cmds:   make(chan visual.ControlCommand, 16),
		frames: make(chan *visual.Snapshot, 64),
	}
}

func (c *chanVisualizer) SetHeadless(bool) {}
func (c *chanVisualizer) IsHeadless() bool { return false }

func (c *chanVisualizer) PublishFrame(snap *visual.Snapshot) {
	select {
	case c.frames <- snap:
	default:
	}
}

func (c *chanVisualizer) NextCommand() (visual.ControlCommand, bool) {
	select {
	case cmd := <-c.cmds:
		return cmd, true
	default:
		return visual.ControlCommand{Type: visual.CommandNone}, false
	}
}

func (c *chanVisualizer) WaitCommand(ctx context.Context) (visual.ControlCommand, bool) {
	select {
	case cmd := <-c.cmds:
		return cmd, true
	case <-ctx.Done():
		return visual.ControlCommand{Type: visual.CommandNone}, false
	}
}

func newRunner(t *testing.T, cfg engine.Config) (*Runner, *chanVisualizer) {
	t.Helper()
	s, err := engine.NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Initialize(3); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	v := newChanVisualizer()
	return NewRunner(s, v, NewVisualBridge(v), Options{Participants: 3, TickInterval: time.Millisecond}), v
}

func TestStepDrivesTransactionToCompletion(t *testing.T) {
	r, _ := newRunner(t, engine.DefaultConfig())
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandStep, StepMs: 10000}); err != nil {
		t.Fatalf("step: %v", err)
	}
	tv, ok := r.Session().Transaction()
	if !ok || !tv.Terminal || tv.Decision != core.OutcomeCommit {
		t.Fatalf("expected committed terminal transaction, got %+v", tv)
	}
	if tv.CompletedAt != 10000 {
		t.Fatalf("expected completion at 10000, got %.1f", tv.CompletedAt)
	}
}

func TestFaultCommandsUseLabels(t *testing.T) {
	r, _ := newRunner(t, engine.DefaultConfig())
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandFail, Node: "P2"}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	for _, n := range r.Session().Nodes() {
		if n.ID == 2 && n.Alive {
			t.Fatalf("P2 should be failed")
		}
	}
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandToggle, Node: "C", Peer: "P1"}); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	err := r.Handle(visual.ControlCommand{Type: visual.CommandRecover, Node: "Q9"})
	if !errors.Is(err, core.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	err = r.Handle(visual.ControlCommand{Type: "teleport"})
	if !errors.Is(err, core.ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandConfig}); !errors.Is(err, core.ErrInvalidCommand) {
		t.Fatalf("config without body should be rejected, got %v", err)
	}
}

func TestPlanPlaysBackInRealTime(t *testing.T) {
	r, _ := newRunner(t, engine.DefaultConfig())
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandPlan, Plan: "participant_phase1"}); err != nil {
		t.Fatalf("plan: %v", err)
	}
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandStep, StepMs: 20000}); err != nil {
		t.Fatalf("step: %v", err)
	}
	tv, _ := r.Session().Transaction()
	if !tv.Terminal || tv.Decision != core.OutcomeAbort {
		t.Fatalf("expected abort, got %+v", tv)
	}
	if r.plan != nil {
		t.Fatalf("plan should be finished")
	}
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandPlan, Plan: "meteor"}); !errors.Is(err, core.ErrInvalidCommand) {
		t.Fatalf("unknown plan should be rejected, got %v", err)
	}
}

func TestResetChangesParticipantsAndConfig(t *testing.T) {
	r, _ := newRunner(t, engine.DefaultConfig())
	r.Handle(visual.ControlCommand{Type: visual.CommandStart})
	cfg := engine.DefaultConfig()
	cfg.LinkLatencyMs = 100
	if err := r.Handle(visual.ControlCommand{Type: visual.CommandReset, Participants: 5, Config: &cfg}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := r.Session().Participants(); got != 5 {
		t.Fatalf("expected 5 participants, got %d", got)
	}
	if r.Session().Config().LinkLatencyMs != 100 {
		t.Fatalf("config override not applied")
	}
	if _, ok := r.Session().Transaction(); ok {
		t.Fatalf("reset should discard the transaction")
	}
}

func TestPauseIsReflectedInSnapshot(t *testing.T) {
	r, _ := newRunner(t, engine.DefaultConfig())
	r.Handle(visual.ControlCommand{Type: visual.CommandPause})
	snap := r.Snapshot()
	if !snap.Paused || len(snap.Scenarios) == 0 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	r.Handle(visual.ControlCommand{Type: visual.CommandResume})
	if r.Paused() {
		t.Fatalf("resume should clear pause")
	}
}

func TestRunProcessesQueuedCommands(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.ClockSpeed = 100
	r, v := newRunner(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	v.cmds <- visual.ControlCommand{Type: visual.CommandStart}
	deadline := time.After(5 * time.Second)
	for finished := false; !finished; {
		select {
		case snap := <-v.frames:
			tx := snap.Frame.Transaction
			finished = tx != nil && tx.Terminal
		case <-deadline:
			cancel()
			t.Fatalf("transaction did not finish in time")
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestBridgeSkipsUnchangedSnapshots(t *testing.T) {
	v := newChanVisualizer()
	b := NewVisualBridge(v)
	snap := &visual.Snapshot{Frame: engine.Frame{Now: 10, LastEvent: 3}}
	if !b.Publish(snap) {
		t.Fatalf("first snapshot should publish")
	}
	if b.Publish(snap) {
		t.Fatalf("identical snapshot should be skipped")
	}
	b.Force(snap)
	if b.Published() != 2 {
		t.Fatalf("expected 2 published, got %d", b.Published())
	}
	if NewVisualBridge(nil).Publish(snap) {
		t.Fatalf("nil target is headless")
	}
}
