package hooks

import (
	"sync"

	"github.com/Readm/commit_sim/core"
)

// PluginCategory represents the high-level role of a plugin.
type PluginCategory string

const (
	// PluginCategoryNetwork covers link behaviour such as loss or delay.
	PluginCategoryNetwork PluginCategory = "network"
	// PluginCategoryVisualization covers UI, timeline, or monitoring plugins.
	PluginCategoryVisualization PluginCategory = "visualization"
	// PluginCategoryStorage covers archives of completed runs.
	PluginCategoryStorage PluginCategory = "storage"
	// PluginCategoryInstrumentation covers logging, tracing, and diagnostics.
	PluginCategoryInstrumentation PluginCategory = "instrumentation"
)

// PluginDescriptor describes a plugin registered with the broker.
type PluginDescriptor struct {
	Name        string
	Category    PluginCategory
	Description string
}

// HookBundle groups multiple hook handlers that belong to one plugin.
type HookBundle struct {
	BeforeSend    []BeforeSendHook
	AfterSend     []AfterSendHook
	BeforeDeliver []BeforeDeliverHook
	AfterDeliver  []AfterDeliverHook
	StateChange   []StateChangeHook
	Event         []EventHook
	TxCompleted   []TxCompletedHook
}

// MessageContext provides data for send and deliver hook handlers.
// Message is a copy; hooks cannot alter traffic already on the wire.
type MessageContext struct {
	Message core.Message
	Now     float64
}

// StateContext describes a node state transition.
type StateContext struct {
	Node   core.NodeID
	From   core.State
	To     core.State
	Now    float64
	Reason string
}

// EventContext carries one emitted log event.
type EventContext struct {
	Event core.Event
}

// TxCompletedContext carries the summary of a graded, terminal transaction.
type TxCompletedContext struct {
	Summary *core.TransactionSummary
}

// BeforeSendHook executes before a message is put on a link. A non-nil error
// vetoes the send: no message is created.
type BeforeSendHook func(ctx *MessageContext) error

// AfterSendHook executes after a message has been enqueued in flight.
type AfterSendHook func(ctx *MessageContext) error

// BeforeDeliverHook executes before a message reaches its receiver.
type BeforeDeliverHook func(ctx *MessageContext) error

// AfterDeliverHook executes after the receiver has handled a message.
type AfterDeliverHook func(ctx *MessageContext) error

// StateChangeHook executes after a node changed state.
type StateChangeHook func(ctx *StateContext) error

// EventHook executes for every event appended to the session log.
type EventHook func(ctx *EventContext) error

// TxCompletedHook executes once a transaction reached its terminal state and was graded.
type TxCompletedHook func(ctx *TxCompletedContext) error

// PluginBroker coordinates hook registration and triggering.
type PluginBroker struct {
	mu sync.RWMutex

	beforeSendHooks    []BeforeSendHook
	afterSendHooks     []AfterSendHook
	beforeDeliverHooks []BeforeDeliverHook
	afterDeliverHooks  []AfterDeliverHook
	stateChangeHooks   []StateChangeHook
	eventHooks         []EventHook
	txCompletedHooks   []TxCompletedHook

	pluginCatalog map[PluginCategory][]PluginDescriptor
	pluginIndex   map[string]PluginDescriptor
}

// NewPluginBroker creates an empty broker instance.
func NewPluginBroker() *PluginBroker {
	return &PluginBroker{
		pluginCatalog: make(map[PluginCategory][]PluginDescriptor),
		pluginIndex:   make(map[string]PluginDescriptor),
	}
}

// RegisterBeforeSend registers a hook for the OnBeforeSend stage.
func (p *PluginBroker) RegisterBeforeSend(h BeforeSendHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beforeSendHooks = append(p.beforeSendHooks, h)
}

// RegisterAfterSend registers a hook for the OnAfterSend stage.
func (p *PluginBroker) RegisterAfterSend(h AfterSendHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.afterSendHooks = append(p.afterSendHooks, h)
}

// RegisterBeforeDeliver registers a hook for the OnBeforeDeliver stage.
func (p *PluginBroker) RegisterBeforeDeliver(h BeforeDeliverHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.beforeDeliverHooks = append(p.beforeDeliverHooks, h)
}

// RegisterAfterDeliver registers a hook for the OnAfterDeliver stage.
func (p *PluginBroker) RegisterAfterDeliver(h AfterDeliverHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.afterDeliverHooks = append(p.afterDeliverHooks, h)
}

// RegisterStateChange registers a hook run after every node transition.
func (p *PluginBroker) RegisterStateChange(h StateChangeHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateChangeHooks = append(p.stateChangeHooks, h)
}

// RegisterEvent registers a subscriber of the event log stream.
func (p *PluginBroker) RegisterEvent(h EventHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventHooks = append(p.eventHooks, h)
}

// RegisterTxCompleted registers a hook executed when a transaction completes.
func (p *PluginBroker) RegisterTxCompleted(h TxCompletedHook) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.txCompletedHooks = append(p.txCompletedHooks, h)
}

// EmitBeforeSend triggers OnBeforeSend hooks. The first error stops the chain.
func (p *PluginBroker) EmitBeforeSend(ctx *MessageContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]BeforeSendHook, len(p.beforeSendHooks))
	copy(handlers, p.beforeSendHooks)
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EmitAfterSend triggers OnAfterSend hooks.
func (p *PluginBroker) EmitAfterSend(ctx *MessageContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]AfterSendHook, len(p.afterSendHooks))
	copy(handlers, p.afterSendHooks)
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EmitBeforeDeliver triggers OnBeforeDeliver hooks.
func (p *PluginBroker) EmitBeforeDeliver(ctx *MessageContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]BeforeDeliverHook, len(p.beforeDeliverHooks))
	copy(handlers, p.beforeDeliverHooks)
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EmitAfterDeliver triggers OnAfterDeliver hooks.
func (p *PluginBroker) EmitAfterDeliver(ctx *MessageContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]AfterDeliverHook, len(p.afterDeliverHooks))
	copy(handlers, p.afterDeliverHooks)
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EmitStateChange triggers state change hooks.
func (p *PluginBroker) EmitStateChange(ctx *StateContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]StateChangeHook, len(p.stateChangeHooks))
	copy(handlers, p.stateChangeHooks)
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EmitEvent pushes one log event to every subscriber.
func (p *PluginBroker) EmitEvent(ctx *EventContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]EventHook, len(p.eventHooks))
	copy(handlers, p.eventHooks)
	p.mu.RUnlock()
	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// EmitTxCompleted triggers all registered transaction completion hooks.
func (p *PluginBroker) EmitTxCompleted(ctx *TxCompletedContext) error {
	if p == nil || ctx == nil {
		return nil
	}
	p.mu.RLock()
	handlers := make([]TxCompletedHook, len(p.txCompletedHooks))
	copy(handlers, p.txCompletedHooks)
	p.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx); err != nil {
			return err
		}
	}
	return nil
}

// RegisterBundle registers a plugin descriptor together with all hook handlers.
func (p *PluginBroker) RegisterBundle(desc PluginDescriptor, bundle HookBundle) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.registerDescriptorLocked(desc)

	p.beforeSendHooks = append(p.beforeSendHooks, bundle.BeforeSend...)
	p.afterSendHooks = append(p.afterSendHooks, bundle.AfterSend...)
	p.beforeDeliverHooks = append(p.beforeDeliverHooks, bundle.BeforeDeliver...)
	p.afterDeliverHooks = append(p.afterDeliverHooks, bundle.AfterDeliver...)
	p.stateChangeHooks = append(p.stateChangeHooks, bundle.StateChange...)
	p.eventHooks = append(p.eventHooks, bundle.Event...)
	p.txCompletedHooks = append(p.txCompletedHooks, bundle.TxCompleted...)
}

// RegisterPluginMetadata stores plugin metadata without registering hooks.
func (p *PluginBroker) RegisterPluginMetadata(desc PluginDescriptor) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerDescriptorLocked(desc)
}

// ListPlugins returns descriptors for plugins in the requested category.
func (p *PluginBroker) ListPlugins(category PluginCategory) []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	catalog := p.pluginCatalog[category]
	if len(catalog) == 0 {
		return nil
	}
	out := make([]PluginDescriptor, len(catalog))
	copy(out, catalog)
	return out
}

// ListAllPlugins returns descriptors of every registered plugin.
func (p *PluginBroker) ListAllPlugins() []PluginDescriptor {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PluginDescriptor, 0, len(p.pluginIndex))
	for _, desc := range p.pluginIndex {
		out = append(out, desc)
	}
	return out
}

func (p *PluginBroker) registerDescriptorLocked(desc PluginDescriptor) {
	if desc.Name == "" {
		return
	}
	if _, exists := p.pluginIndex[desc.Name]; exists {
		return
	}
	p.pluginIndex[desc.Name] = desc
	category := desc.Category
	p.pluginCatalog[category] = append(p.pluginCatalog[category], desc)
}
