package instrumentation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
)

// CountersPluginName is the registry name of the built-in traffic counters.
const CountersPluginName = "instrumentation/counters"

// Factory installs instrumentation hooks into the broker.
type Factory func(broker *hooks.PluginBroker) error

// Options configure instrumentation plugin registration.
type Options struct {
	Factories map[string]Factory
	// Counters, when set, is registered under CountersPluginName.
	Counters *Counters
}

// Register registers one instrumentation plugin per factory.
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	factories := make(map[string]Factory, len(opts.Factories)+1)
	for name, f := range opts.Factories {
		if f != nil {
			factories[PluginName(name)] = f
		}
	}
	if opts.Counters != nil {
		factories[CountersPluginName] = opts.Counters.Install
	}
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		factory := factories[name]
		desc := hooks.PluginDescriptor{
			Name:        name,
			Category:    hooks.PluginCategoryInstrumentation,
			Description: fmt.Sprintf("%s instrumentation plugin", name),
		}
		if err := reg.RegisterGlobal(name, desc, func(b *hooks.PluginBroker) error {
			if b == nil {
				return fmt.Errorf("plugin broker is nil")
			}
			return factory(b)
		}); err != nil {
			return err
		}
	}
	return nil
}

// PluginName returns the registry name for an instrumentation plugin.
func PluginName(name string) string {
	return "instrumentation/" + name
}

// Counters tallies traffic and transitions seen through the broker.
type Counters struct {
	mu        sync.Mutex
	sent      map[core.MessageType]int
	delivered map[core.MessageType]int
	entered   map[core.State]int
	completed int
}

// NewCounters returns empty counters.
func NewCounters() *Counters {
	return &Counters{
		sent:      make(map[core.MessageType]int),
		delivered: make(map[core.MessageType]int),
		entered:   make(map[core.State]int),
	}
}

// Install registers the counting hooks.
func (c *Counters) Install(b *hooks.PluginBroker) error {
	b.RegisterBundle(hooks.PluginDescriptor{}, hooks.HookBundle{
		AfterSend: []hooks.AfterSendHook{func(ctx *hooks.MessageContext) error {
			c.mu.Lock()
			c.sent[ctx.Message.Type]++
			c.mu.Unlock()
			return nil
		}},
		AfterDeliver: []hooks.AfterDeliverHook{func(ctx *hooks.MessageContext) error {
			c.mu.Lock()
			c.delivered[ctx.Message.Type]++
			c.mu.Unlock()
			return nil
		}},
		StateChange: []hooks.StateChangeHook{func(ctx *hooks.StateContext) error {
			c.mu.Lock()
			c.entered[ctx.To]++
			c.mu.Unlock()
			return nil
		}},
		TxCompleted: []hooks.TxCompletedHook{func(*hooks.TxCompletedContext) error {
			c.mu.Lock()
			c.completed++
			c.mu.Unlock()
			return nil
		}},
	})
	return nil
}

// Snapshot is a copy of the counters.
type Snapshot struct {
	Sent      map[core.MessageType]int `json:"sent"`
	Delivered map[core.MessageType]int `json:"delivered"`
	Entered   map[core.State]int       `json:"entered"`
	Completed int                      `json:"completed"`
}

// Snapshot copies the current counts.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Snapshot{
		Sent:      make(map[core.MessageType]int, len(c.sent)),
		Delivered: make(map[core.MessageType]int, len(c.delivered)),
		Entered:   make(map[core.State]int, len(c.entered)),
		Completed: c.completed,
	}
	for k, v := range c.sent {
		out.Sent[k] = v
	}
	for k, v := range c.delivered {
		out.Delivered[k] = v
	}
	for k, v := range c.entered {
		out.Entered[k] = v
	}
	return out
}
