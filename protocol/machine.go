package protocol

import (
	"fmt"

	"github.com/Readm/commit_sim/core"
)

type transition struct {
	toState core.State
	record  string
}

// Machine is a compiled transition table. It holds no per-node state and may
// be shared between nodes of the same role.
type Machine struct {
	name         string
	defaultState core.State
	table        map[core.State]map[Input]transition
	replay       map[string]core.State
}

// NewMachine validates spec and compiles it into a lookup table.
func NewMachine(spec *MachineSpec) (*Machine, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("machine %q: %w", specName(spec), err)
	}
	m := &Machine{
		name:         spec.Name,
		defaultState: spec.DefaultState,
		table:        make(map[core.State]map[Input]transition),
		replay:       make(map[string]core.State),
	}
	if m.defaultState == "" {
		m.defaultState = spec.States[0].Name
	}
	for _, tr := range spec.Transitions {
		for _, from := range tr.FromStates {
			for _, in := range tr.Inputs {
				if m.table[from] == nil {
					m.table[from] = make(map[Input]transition)
				}
				m.table[from][in] = transition{toState: tr.ToState, record: tr.Record}
			}
		}
		if tr.Record != "" {
			m.replay[tr.Record] = tr.ToState
		}
	}
	return m, nil
}

func mustMachine(spec *MachineSpec) *Machine {
	m, err := NewMachine(spec)
	if err != nil {
		panic(err)
	}
	return m
}

func specName(spec *MachineSpec) string {
	if spec == nil {
		return ""
	}
	return spec.Name
}

var (
	coordinatorMachine = mustMachine(CoordinatorSpec())
	participantMachine = mustMachine(ParticipantSpec())
)

// Name returns the machine name.
func (m *Machine) Name() string {
	return m.name
}

// DefaultState returns the state of a freshly created node.
func (m *Machine) DefaultState() core.State {
	return m.defaultState
}

// Next looks up the transition for (from, in). Missing entries return
// ErrInvalidTransition and leave the caller free to not mutate anything.
func (m *Machine) Next(from core.State, in Input) (core.State, string, error) {
	tr, ok := m.table[from][in]
	if !ok {
		return from, "", fmt.Errorf("%s: %s on %s: %w", m.name, in, from, core.ErrInvalidTransition)
	}
	return tr.toState, tr.record, nil
}

// Allows reports whether in is accepted in state from.
func (m *Machine) Allows(from core.State, in Input) bool {
	_, ok := m.table[from][in]
	return ok
}

// Replay rebuilds the state implied by a write-ahead log: the state entered
// by the last record. An empty log yields the default state.
func (m *Machine) Replay(log []core.LogRecord) (core.State, error) {
	if len(log) == 0 {
		return m.defaultState, nil
	}
	last := log[len(log)-1].Record
	st, ok := m.replay[last]
	if !ok {
		return m.defaultState, fmt.Errorf("%s: unknown log record %q", m.name, last)
	}
	return st, nil
}
