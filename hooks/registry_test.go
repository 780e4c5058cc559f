package hooks

import (
	"errors"
	"testing"

	"github.com/Readm/commit_sim/core"
)

func TestRegistryLoadGlobalAndNode(t *testing.T) {
	broker := NewPluginBroker()
	reg := NewRegistry(broker)

	globalDesc := PluginDescriptor{
		Name:     "event-counter",
		Category: PluginCategoryInstrumentation,
	}

	if err := reg.RegisterGlobal("event-counter", globalDesc, func(b *PluginBroker) error {
		b.RegisterBundle(globalDesc, HookBundle{
			Event: []EventHook{
				func(ctx *EventContext) error { return nil },
			},
		})
		return nil
	}); err != nil {
		t.Fatalf("RegisterGlobal failed: %v", err)
	}

	nodeDesc := PluginDescriptor{
		Name:     "flaky-node",
		Category: PluginCategoryNetwork,
	}
	var capturedNodeID core.NodeID
	if err := reg.RegisterNode("flaky-node", nodeDesc, ScopeAnyNode, func(nodeID core.NodeID, b *PluginBroker) error {
		capturedNodeID = nodeID
		return nil
	}); err != nil {
		t.Fatalf("RegisterNode failed: %v", err)
	}

	if err := reg.LoadGlobal([]string{"event-counter"}); err != nil {
		t.Fatalf("LoadGlobal failed: %v", err)
	}
	if err := reg.LoadForNode(3, []string{"flaky-node"}); err != nil {
		t.Fatalf("LoadForNode failed: %v", err)
	}

	if capturedNodeID != 3 {
		t.Fatalf("expected node factory to receive id 3, got %d", capturedNodeID)
	}

	descs := broker.ListAllPlugins()
	if len(descs) != 2 {
		t.Fatalf("expected 2 plugin descriptors, got %d", len(descs))
	}

	global, node := reg.Available()
	if len(global) != 1 || global[0] != "event-counter" || len(node) != 1 || node[0] != "flaky-node" {
		t.Fatalf("unexpected available plugins global=%v node=%v", global, node)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	reg := NewRegistry(NewPluginBroker())

	desc := PluginDescriptor{Name: "dup", Category: PluginCategoryNetwork}
	err := reg.RegisterGlobal("dup", desc, func(b *PluginBroker) error { return nil })
	if err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	err = reg.RegisterGlobal("dup", desc, func(b *PluginBroker) error { return nil })
	if !errors.Is(err, ErrPluginExists) {
		t.Fatalf("expected duplicate registration to fail")
	}

	err = reg.RegisterNode("dup", desc, ScopeAnyNode, func(nodeID core.NodeID, b *PluginBroker) error { return nil })
	if err != nil {
		t.Fatalf("first node registration failed: %v", err)
	}
	err = reg.RegisterNode("dup", desc, ScopeAnyNode, func(nodeID core.NodeID, b *PluginBroker) error { return nil })
	if err == nil {
		t.Fatalf("expected duplicate node registration to fail")
	}
}

func TestRegistryUnknownPlugin(t *testing.T) {
	reg := NewRegistry(NewPluginBroker())

	if err := reg.LoadGlobal([]string{"missing"}); !errors.Is(err, ErrPluginNotFound) {
		t.Fatalf("expected error for missing global plugin")
	}

	if err := reg.LoadForNode(1, []string{"missing"}); !errors.Is(err, ErrPluginNotFound) {
		t.Fatalf("expected error for missing node plugin")
	}
}

func TestRegistryNodeScopeAndTopology(t *testing.T) {
	reg := NewRegistry(NewPluginBroker())
	reg.SetParticipants(3)
	desc := PluginDescriptor{Name: "slow-voter", Category: PluginCategoryNetwork}
	var loaded []core.NodeID
	if err := reg.RegisterNode("slow-voter", desc, ScopeParticipant, func(id core.NodeID, b *PluginBroker) error {
		loaded = append(loaded, id)
		return nil
	}); err != nil {
		t.Fatalf("RegisterNode: %v", err)
	}

	if err := reg.LoadForNode(core.CoordinatorID, []string{"slow-voter"}); !errors.Is(err, core.ErrInvalidCommand) {
		t.Fatalf("participant plugin on the coordinator: expected ErrInvalidCommand, got %v", err)
	}
	if err := reg.LoadForNode(4, []string{"slow-voter"}); !errors.Is(err, core.ErrUnknownNode) {
		t.Fatalf("P4 with 3 participants: expected ErrUnknownNode, got %v", err)
	}
	if err := reg.LoadForNode(2, []string{"slow-voter"}); err != nil {
		t.Fatalf("LoadForNode(P2): %v", err)
	}
	if err := reg.LoadForNode(2, []string{"slow-voter"}); !errors.Is(err, ErrPluginLoaded) {
		t.Fatalf("second load on P2: expected ErrPluginLoaded, got %v", err)
	}
	if err := reg.LoadForNode(3, []string{"slow-voter"}); err != nil {
		t.Fatalf("LoadForNode(P3): %v", err)
	}
	if len(loaded) != 2 || loaded[0] != 2 || loaded[1] != 3 {
		t.Fatalf("factory should run once per node, got %v", loaded)
	}
	got := reg.Loaded()
	if len(got) != 2 || got[0] != "slow-voter@P2" || got[1] != "slow-voter@P3" {
		t.Fatalf("unexpected loaded list %v", got)
	}
}

func TestRegistryGlobalLoadsOnce(t *testing.T) {
	reg := NewRegistry(NewPluginBroker())
	calls := 0
	reg.RegisterGlobal("counter", PluginDescriptor{Name: "counter"}, func(b *PluginBroker) error {
		calls++
		return nil
	})
	if err := reg.LoadGlobal([]string{"counter"}); err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if err := reg.LoadGlobal([]string{"counter"}); !errors.Is(err, ErrPluginLoaded) {
		t.Fatalf("expected ErrPluginLoaded, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("factory ran %d times", calls)
	}
}
