package hooks

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Readm/commit_sim/core"
)

var (
	ErrPluginNotFound = errors.New("plugin not found")
	ErrPluginExists   = errors.New("plugin already registered")
	ErrPluginLoaded   = errors.New("plugin already loaded")
)

// GlobalPluginFactory installs global hooks into the broker.
type GlobalPluginFactory func(broker *PluginBroker) error

// NodePluginFactory installs hooks scoped to a specific node.
type NodePluginFactory func(nodeID core.NodeID, broker *PluginBroker) error

// NodeScope restricts which nodes a node plugin may be loaded for.
type NodeScope string

const (
	ScopeAnyNode     NodeScope = "any"
	ScopeCoordinator NodeScope = "coordinator"
	ScopeParticipant NodeScope = "participant"
)

func (s NodeScope) allows(id core.NodeID) bool {
	switch s {
	case ScopeCoordinator:
		return id == core.CoordinatorID
	case ScopeParticipant:
		return id != core.CoordinatorID
	default:
		return true
	}
}

type registryEntry struct {
	desc    PluginDescriptor
	factory GlobalPluginFactory
}

type nodeRegistryEntry struct {
	desc    PluginDescriptor
	scope   NodeScope
	factory NodePluginFactory
}

// Registry keeps plugin factories that can be activated via configuration.
// Each plugin loads at most once globally and at most once per node.
type Registry struct {
	mu           sync.RWMutex
	broker       *PluginBroker
	participants int

	global map[string]registryEntry
	node   map[string]nodeRegistryEntry
	loaded map[string]bool
}

// NewRegistry creates an empty plugin registry bound to a broker.
func NewRegistry(broker *PluginBroker) *Registry {
	if broker == nil {
		broker = NewPluginBroker()
	}
	return &Registry{
		broker: broker,
		global: make(map[string]registryEntry),
		node:   make(map[string]nodeRegistryEntry),
		loaded: make(map[string]bool),
	}
}

// Broker returns the underlying broker associated with the registry.
func (r *Registry) Broker() *PluginBroker {
	if r == nil {
		return nil
	}
	return r.broker
}

// SetParticipants bounds node plugins to ids C..Pn. Zero leaves ids unchecked.
func (r *Registry) SetParticipants(n int) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.participants = n
	r.mu.Unlock()
}

// RegisterGlobal registers a global plugin factory.
func (r *Registry) RegisterGlobal(name string, desc PluginDescriptor, factory GlobalPluginFactory) error {
	if err := checkRegistration(r, name, factory == nil); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.global[name]; exists {
		return fmt.Errorf("global %s: %w", name, ErrPluginExists)
	}
	r.global[name] = registryEntry{desc: desc, factory: factory}
	return nil
}

// RegisterNode registers a node-scoped plugin factory usable on the nodes
// scope admits.
func (r *Registry) RegisterNode(name string, desc PluginDescriptor, scope NodeScope, factory NodePluginFactory) error {
	if err := checkRegistration(r, name, factory == nil); err != nil {
		return err
	}
	if scope == "" {
		scope = ScopeAnyNode
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.node[name]; exists {
		return fmt.Errorf("node %s: %w", name, ErrPluginExists)
	}
	r.node[name] = nodeRegistryEntry{desc: desc, scope: scope, factory: factory}
	return nil
}

func checkRegistration(r *Registry, name string, nilFactory bool) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if name == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if nilFactory {
		return fmt.Errorf("plugin factory cannot be nil")
	}
	return nil
}

// LoadGlobal activates the requested global plugins.
func (r *Registry) LoadGlobal(names []string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	for _, name := range names {
		entry, err := r.getGlobal(name)
		if err != nil {
			return err
		}
		if err := r.markLoaded(name); err != nil {
			return err
		}
		if err := entry.factory(r.broker); err != nil {
			r.unmark(name)
			return fmt.Errorf("global plugin %s failed: %w", name, err)
		}
		r.broker.RegisterPluginMetadata(entry.desc)
	}
	return nil
}

// LoadForNode activates the requested node-scoped plugins for nodeID.
func (r *Registry) LoadForNode(nodeID core.NodeID, names []string) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	r.mu.RLock()
	n := r.participants
	r.mu.RUnlock()
	if nodeID < 0 || (n > 0 && int(nodeID) > n) {
		return fmt.Errorf("node plugin target %d: %w", nodeID, core.ErrUnknownNode)
	}
	for _, name := range names {
		entry, err := r.getNode(name)
		if err != nil {
			return err
		}
		if !entry.scope.allows(nodeID) {
			return fmt.Errorf("node plugin %s is %s-only, not for %s: %w", name, entry.scope, nodeID.Label(), core.ErrInvalidCommand)
		}
		key := name + "@" + nodeID.Label()
		if err := r.markLoaded(key); err != nil {
			return err
		}
		if err := entry.factory(nodeID, r.broker); err != nil {
			r.unmark(key)
			return fmt.Errorf("node plugin %s failed: %w", key, err)
		}
		r.broker.RegisterPluginMetadata(entry.desc)
	}
	return nil
}

// Descriptor returns metadata registered under the provided name.
func (r *Registry) Descriptor(name string) (PluginDescriptor, bool) {
	if r == nil {
		return PluginDescriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, ok := r.global[name]; ok {
		return entry.desc, true
	}
	if entry, ok := r.node[name]; ok {
		return entry.desc, true
	}
	return PluginDescriptor{}, false
}

// Available lists registered global and node plugin names, sorted.
func (r *Registry) Available() (global []string, node []string) {
	if r == nil {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name := range r.global {
		global = append(global, name)
	}
	for name := range r.node {
		node = append(node, name)
	}
	sort.Strings(global)
	sort.Strings(node)
	return global, node
}

// Loaded lists active plugins, node plugins as name@label, sorted.
func (r *Registry) Loaded() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.loaded))
	for key := range r.loaded {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) markLoaded(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded[key] {
		return fmt.Errorf("%s: %w", key, ErrPluginLoaded)
	}
	r.loaded[key] = true
	return nil
}

func (r *Registry) unmark(key string) {
	r.mu.Lock()
	delete(r.loaded, key)
	r.mu.Unlock()
}

func (r *Registry) getGlobal(name string) (registryEntry, error) {
	r.mu.RLock()
	entry, ok := r.global[name]
	r.mu.RUnlock()
	if !ok {
		return registryEntry{}, fmt.Errorf("global %s: %w", name, ErrPluginNotFound)
	}
	return entry, nil
}

func (r *Registry) getNode(name string) (nodeRegistryEntry, error) {
	r.mu.RLock()
	entry, ok := r.node[name]
	r.mu.RUnlock()
	if !ok {
		return nodeRegistryEntry{}, fmt.Errorf("node %s: %w", name, ErrPluginNotFound)
	}
	return entry, nil
}
