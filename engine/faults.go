package engine

import (
	"fmt"

	"github.com/Readm/commit_sim/core"
	"github.com/Readm/commit_sim/scenario"
)

// FailNode crashes node id, charging the coordinator or participant budget.
func (s *Session) FailNode(id core.NodeID) error {
	const op = "fail"
	n, err := s.node(id)
	if err != nil {
		return core.NewCommandError(op, err)
	}
	if !n.Alive() {
		return core.NewCommandError(op, fmt.Errorf("%s already failed: %w", id.Label(), core.ErrInvalidCommand))
	}
	if err := s.budget.Charge(scenario.CategoryOf(id)); err != nil {
		return core.NewCommandError(op, err)
	}
	if err := n.Fail(); err != nil {
		return core.NewCommandError(op, err)
	}
	s.countFault()
	s.emit(core.EventFault, &id, fmt.Sprintf("%s crashed", id.Label()))
	return nil
}

// RecoverNode restarts node id from its log, charging its budget category.
func (s *Session) RecoverNode(id core.NodeID) error {
	const op = "recover"
	n, err := s.node(id)
	if err != nil {
		return core.NewCommandError(op, err)
	}
	if n.Alive() {
		return core.NewCommandError(op, fmt.Errorf("%s is not failed: %w", id.Label(), core.ErrInvalidCommand))
	}
	if err := s.budget.Charge(scenario.CategoryOf(id)); err != nil {
		return core.NewCommandError(op, err)
	}
	s.countFault()
	s.emit(core.EventFault, &id, fmt.Sprintf("%s recovered", id.Label()))
	if err := n.Recover(); err != nil {
		return core.NewCommandError(op, err)
	}
	s.afterStep()
	return nil
}

// ToggleLink inverts the link between a and b, charging the link budget.
// Restoring a coordinator link makes a READY participant on it query the decision.
func (s *Session) ToggleLink(a, b core.NodeID) error {
	const op = "toggle"
	if !s.Initialized() {
		return core.NewCommandError(op, core.ErrNoSession)
	}
	link, err := s.topo.Link(a, b)
	if err != nil {
		return core.NewCommandError(op, fmt.Errorf("link %s-%s: %w", a.Label(), b.Label(), err))
	}
	if err := s.budget.Charge(scenario.CategoryLink); err != nil {
		return core.NewCommandError(op, err)
	}
	up, _ := s.topo.Toggle(a, b)
	s.countFault()
	key := link.Key
	state := "down"
	if up {
		state = "up"
	}
	s.emit(core.EventFault, nil, fmt.Sprintf("Link %s %s", key, state))

	if !up {
		if s.cfg.DropInFlightOnLinkDown {
			for _, m := range s.transport.DropLink(key) {
				s.emit(core.EventLost, nil, fmt.Sprintf("Dropped %s from %s→%s", m.Type, m.Sender.Label(), m.Receiver.Label()))
			}
		}
		return nil
	}
	if key.Touches(core.CoordinatorID) {
		p := s.nodes[key.Other(core.CoordinatorID)]
		if _, err := p.QueryDecision("link restored"); err != nil {
			return core.NewCommandError(op, err)
		}
	}
	return nil
}

// DropMessage removes one in-flight message, charging the link budget.
func (s *Session) DropMessage(id int64) error {
	const op = "drop"
	if !s.Initialized() {
		return core.NewCommandError(op, core.ErrNoSession)
	}
	if _, ok := s.transport.Lookup(id); !ok {
		return core.NewCommandError(op, fmt.Errorf("message %d: %w", id, core.ErrUnknownMessage))
	}
	if err := s.budget.Charge(scenario.CategoryLink); err != nil {
		return core.NewCommandError(op, err)
	}
	m, err := s.transport.Drop(id)
	if err != nil {
		return core.NewCommandError(op, err)
	}
	s.countFault()
	s.emit(core.EventFault, nil, fmt.Sprintf("Dropped %s from %s→%s", m.Type, m.Sender.Label(), m.Receiver.Label()))
	return nil
}

func (s *Session) countFault() {
	s.faults++
	s.stats.Failures++
}
