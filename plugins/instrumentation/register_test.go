package instrumentation

import (
	"testing"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/hooks"
)

func TestRegisterAndLoad(t *testing.T) {
	broker := hooks.NewPluginBroker()
	reg := hooks.NewRegistry(broker)

	called := false
	factories := map[string]Factory{
		"stub": func(*hooks.PluginBroker) error {
			called = true
			return nil
		},
	}
	if err := Register(reg, Options{Factories: factories}); err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if err := reg.LoadGlobal([]string{"instrumentation/stub"}); err != nil {
		t.Fatalf("load returned error: %v", err)
	}
	if !called {
		t.Fatalf("expected factory to be called")
	}
}

func TestCountersObserveHappyPath(t *testing.T) {
	broker := hooks.NewPluginBroker()
	reg := hooks.NewRegistry(broker)
	counters := NewCounters()
	if err := Register(reg, Options{Counters: counters}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.LoadGlobal([]string{CountersPluginName}); err != nil {
		t.Fatalf("load: %v", err)
	}
	s, err := engine.NewSession(engine.DefaultConfig(), engine.WithBroker(broker))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Initialize(3)
	if _, err := engine.RunPlan(s, engine.Plan{Name: "none"}, 1000, 60000); err != nil {
		t.Fatalf("RunPlan: %v", err)
	}

	snap := counters.Snapshot()
	for _, typ := range []core.MessageType{core.MsgPrepare, core.MsgVoteCommit, core.MsgGlobalCommit, core.MsgAckCommit} {
		if snap.Sent[typ] != 3 || snap.Delivered[typ] != 3 {
			t.Errorf("%s: sent %d delivered %d, want 3/3", typ, snap.Sent[typ], snap.Delivered[typ])
		}
	}
	if snap.Entered[core.StateReady] != 3 || snap.Completed != 1 {
		t.Fatalf("unexpected counters %+v", snap)
	}
}
