package archive

import (
	"testing"

	"github.com/Readm/commit_sim/archive"
	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/engine"
	"github.com/Readm/commit_sim/hooks"
)

func TestCompletedRunsAreArchived(t *testing.T) {
	store, err := archive.Open("", archive.Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	broker := hooks.NewPluginBroker()
	reg := hooks.NewRegistry(broker)
	var seen []string
	if err := Register(reg, Options{Store: store, OnArchived: func(r archive.RunReport) { seen = append(seen, r.ID) }}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.LoadGlobal([]string{PluginName}); err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}

	s, err := engine.NewSession(engine.DefaultConfig(), engine.WithBroker(broker))
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	s.Initialize(2)
	for i := 0; i < 2; i++ {
		if _, err := engine.RunPlan(s, engine.Plan{Name: "none"}, 1000, 60000); err != nil {
			t.Fatalf("RunPlan: %v", err)
		}
	}

	if len(seen) != 2 {
		t.Fatalf("expected 2 archived runs, got %d", len(seen))
	}
	runs, err := store.ListSession(s.ID())
	if err != nil {
		t.Fatalf("ListSession: %v", err)
	}
	if len(runs) != 2 || runs[0].Summary.Sequence != 1 || runs[1].Summary.Sequence != 2 {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if runs[1].Summary.Outcome != core.OutcomeCommit || runs[1].Summary.States["P2"] != core.StateDoneCommit {
		t.Fatalf("unexpected summary %+v", runs[1].Summary)
	}
}

func TestRegisterRequiresStore(t *testing.T) {
	if err := Register(hooks.NewRegistry(nil), Options{}); err == nil {
		t.Fatalf("missing store should be rejected")
	}
}
