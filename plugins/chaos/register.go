package chaos

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/hooks"
)

const (
	DropPluginName  = "chaos/drop"
	FlakyPluginName = "chaos/flaky"
)

// ErrDropped is the veto returned for a message the link lost.
var ErrDropped = errors.New("dropped by lossy link")

// Options configure the lossy-link plugins.
type Options struct {
	// DropProbability is the chance in [0,1] that a send is lost.
	DropProbability float64
	Seed            int64
	// Types restricts loss to these message types. Empty means all.
	Types []core.MessageType
}

func (o Options) validate() error {
	if o.DropProbability < 0 || o.DropProbability > 1 {
		return fmt.Errorf("drop probability must be within [0,1], got %.3f", o.DropProbability)
	}
	return nil
}

// Dropper vetoes sends at random. It is safe for concurrent use.
type Dropper struct {
	mu      sync.Mutex
	rng     *rand.Rand
	p       float64
	types   map[core.MessageType]bool
	match   func(core.Message) bool
	dropped int
}

// NewDropper builds a dropper. match further restricts which messages are
// eligible; nil accepts every message.
func NewDropper(opts Options, match func(core.Message) bool) (*Dropper, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	d := &Dropper{rng: rand.New(rand.NewSource(opts.Seed)), p: opts.DropProbability, match: match}
	if len(opts.Types) > 0 {
		d.types = make(map[core.MessageType]bool, len(opts.Types))
		for _, t := range opts.Types {
			d.types[t] = true
		}
	}
	return d, nil
}

// BeforeSend is the hook handler.
func (d *Dropper) BeforeSend(ctx *hooks.MessageContext) error {
	m := ctx.Message
	if d.types != nil && !d.types[m.Type] {
		return nil
	}
	if d.match != nil && !d.match(m) {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.p <= 0 || d.rng.Float64() >= d.p {
		return nil
	}
	d.dropped++
	return fmt.Errorf("%s %s->%s: %w", m.Type, m.Sender.Label(), m.Receiver.Label(), ErrDropped)
}

// Dropped returns how many sends were vetoed.
func (d *Dropper) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Register adds the global lossy-link plugin and the node-scoped flaky
// plugin to reg. The returned dropper backs the global plugin once loaded.
func Register(reg *hooks.Registry, opts Options) (*Dropper, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	global, err := NewDropper(opts, nil)
	if err != nil {
		return nil, err
	}
	desc := hooks.PluginDescriptor{
		Name:        DropPluginName,
		Category:    hooks.PluginCategoryNetwork,
		Description: fmt.Sprintf("loses %.0f%% of sends", opts.DropProbability*100),
	}
	if err := reg.RegisterGlobal(desc.Name, desc, func(b *hooks.PluginBroker) error {
		if b == nil {
			return fmt.Errorf("plugin broker is nil")
		}
		b.RegisterBeforeSend(global.BeforeSend)
		return nil
	}); err != nil {
		return nil, err
	}

	flaky := hooks.PluginDescriptor{
		Name:        FlakyPluginName,
		Category:    hooks.PluginCategoryNetwork,
		Description: "loses sends to or from one node",
	}
	if err := reg.RegisterNode(flaky.Name, flaky, hooks.ScopeAnyNode, func(id core.NodeID, b *hooks.PluginBroker) error {
		if b == nil {
			return fmt.Errorf("plugin broker is nil")
		}
		nodeOpts := opts
		nodeOpts.Seed = opts.Seed + int64(id)
		d, err := NewDropper(nodeOpts, func(m core.Message) bool {
			return m.Sender == id || m.Receiver == id
		})
		if err != nil {
			return err
		}
		b.RegisterBeforeSend(d.BeforeSend)
		return nil
	}); err != nil {
		return nil, err
	}
	return global, nil
}
