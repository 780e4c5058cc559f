package protocol

import (
	"fmt"
	"strings"

	"github.com/Readm/commit_sim/core"
)

// Input names an event that may drive a node transition.
type Input string

const (
	InStart        Input = "start"         // coordinator opens phase 1
	InDecideCommit Input = "decide-commit" // coordinator quorum reached
	InDecideAbort  Input = "decide-abort"  // abort vote or vote timeout
	InComplete     Input = "complete"      // all acks or decision timeout
	InVoteYes      Input = "vote-yes"      // participant prepared
	InVoteNo       Input = "vote-no"       // participant unilateral abort
	InApplyCommit  Input = "apply-commit"  // GLOBAL_COMMIT received
	InApplyAbort   Input = "apply-abort"   // GLOBAL_ABORT received
	InFinalize     Input = "finalize"      // transaction terminal
)

// StateSpec describes a single protocol state.
type StateSpec struct {
	Name        core.State
	Description string
}

// InputSpec describes an input that may trigger transitions.
type InputSpec struct {
	Name        Input
	Description string
}

// TransitionSpec connects states and inputs with the log record written on entry.
type TransitionSpec struct {
	FromStates []core.State
	Inputs     []Input
	ToState    core.State
	Record     string
}

// MachineSpec contains the declarative description of one role.
type MachineSpec struct {
	Name         string
	DefaultState core.State
	States       []StateSpec
	Inputs       []InputSpec
	Transitions  []TransitionSpec
}

// Validate ensures the machine definition is self-consistent.
func (s *MachineSpec) Validate() error {
	if s == nil {
		return fmt.Errorf("machine spec is nil")
	}
	if s.Name == "" {
		return fmt.Errorf("machine spec name is empty")
	}
	stateSet := make(map[core.State]struct{})
	for _, st := range s.States {
		if st.Name == "" {
			return fmt.Errorf("state name cannot be empty")
		}
		stateSet[st.Name] = struct{}{}
	}
	if len(stateSet) == 0 {
		return fmt.Errorf("no states defined")
	}

	inputSet := make(map[Input]struct{})
	for _, in := range s.Inputs {
		if in.Name == "" {
			return fmt.Errorf("input name cannot be empty")
		}
		inputSet[in.Name] = struct{}{}
	}
	if len(inputSet) == 0 {
		return fmt.Errorf("no inputs defined")
	}

	defaultState := s.DefaultState
	if defaultState == "" {
		defaultState = s.States[0].Name
	}
	if _, ok := stateSet[defaultState]; !ok {
		return fmt.Errorf("default state %q not declared", defaultState)
	}

	if len(s.Transitions) == 0 {
		return fmt.Errorf("no transitions defined")
	}
	seen := make(map[core.State]map[Input]struct{})
	for i, tr := range s.Transitions {
		if len(tr.FromStates) == 0 {
			return fmt.Errorf("transition #%d missing fromStates", i)
		}
		if len(tr.Inputs) == 0 {
			return fmt.Errorf("transition #%d missing inputs", i)
		}
		if _, ok := stateSet[tr.ToState]; !ok {
			return fmt.Errorf("transition #%d has undefined target state %q", i, tr.ToState)
		}
		for _, st := range tr.FromStates {
			if _, ok := stateSet[st]; !ok {
				return fmt.Errorf("transition #%d references undefined state %q", i, st)
			}
			for _, in := range tr.Inputs {
				if _, ok := inputSet[in]; !ok {
					return fmt.Errorf("transition #%d references undefined input %q", i, in)
				}
				if seen[st] == nil {
					seen[st] = make(map[Input]struct{})
				}
				if _, dup := seen[st][in]; dup {
					return fmt.Errorf("transition #%d redefines %s on %s", i, st, in)
				}
				seen[st][in] = struct{}{}
			}
		}
	}
	return nil
}

// String lists the transitions one per line, for diagnostics.
func (s *MachineSpec) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, tr := range s.Transitions {
		for _, from := range tr.FromStates {
			for _, in := range tr.Inputs {
				fmt.Fprintf(&b, "\n  %s --%s--> %s", from, in, tr.ToState)
			}
		}
	}
	return b.String()
}

// CoordinatorSpec returns the coordinator transition table.
func CoordinatorSpec() *MachineSpec {
	return &MachineSpec{
		Name:         "2pc-coordinator",
		DefaultState: core.StateInit,
		States: []StateSpec{
			{Name: core.StateInit, Description: "no transaction yet"},
			{Name: core.StateWaitVotes, Description: "PREPARE sent, collecting votes"},
			{Name: core.StateDecidedCommit, Description: "commit decided, collecting acks"},
			{Name: core.StateDecidedAbort, Description: "abort decided, collecting acks"},
			{Name: core.StateDoneCommit, Description: "terminal, committed"},
			{Name: core.StateDoneAbort, Description: "terminal, aborted"},
		},
		Inputs: []InputSpec{
			{Name: InStart},
			{Name: InDecideCommit},
			{Name: InDecideAbort},
			{Name: InComplete},
		},
		Transitions: []TransitionSpec{
			{FromStates: []core.State{core.StateInit}, Inputs: []Input{InStart}, ToState: core.StateWaitVotes, Record: "PREPARE"},
			{FromStates: []core.State{core.StateWaitVotes}, Inputs: []Input{InDecideCommit}, ToState: core.StateDecidedCommit, Record: "COMMIT"},
			{FromStates: []core.State{core.StateWaitVotes}, Inputs: []Input{InDecideAbort}, ToState: core.StateDecidedAbort, Record: "ABORT"},
			{FromStates: []core.State{core.StateDecidedCommit}, Inputs: []Input{InComplete}, ToState: core.StateDoneCommit, Record: "DONE_COMMIT"},
			{FromStates: []core.State{core.StateDecidedAbort}, Inputs: []Input{InComplete}, ToState: core.StateDoneAbort, Record: "DONE_ABORT"},
		},
	}
}

// ParticipantSpec returns the participant transition table.
func ParticipantSpec() *MachineSpec {
	return &MachineSpec{
		Name:         "2pc-participant",
		DefaultState: core.StateInit,
		States: []StateSpec{
			{Name: core.StateInit, Description: "waiting for PREPARE"},
			{Name: core.StateReady, Description: "voted commit, blocked until decision"},
			{Name: core.StateCommit, Description: "applied commit"},
			{Name: core.StateAbort, Description: "applied or chose abort"},
			{Name: core.StateDoneCommit, Description: "terminal, committed"},
			{Name: core.StateDoneAbort, Description: "terminal, aborted"},
		},
		Inputs: []InputSpec{
			{Name: InVoteYes},
			{Name: InVoteNo},
			{Name: InApplyCommit},
			{Name: InApplyAbort},
			{Name: InFinalize},
		},
		Transitions: []TransitionSpec{
			{FromStates: []core.State{core.StateInit}, Inputs: []Input{InVoteYes}, ToState: core.StateReady, Record: "READY"},
			{FromStates: []core.State{core.StateInit}, Inputs: []Input{InVoteNo}, ToState: core.StateAbort, Record: "ABORT"},
			{FromStates: []core.State{core.StateReady}, Inputs: []Input{InApplyCommit}, ToState: core.StateCommit, Record: "COMMIT"},
			{FromStates: []core.State{core.StateInit, core.StateReady}, Inputs: []Input{InApplyAbort}, ToState: core.StateAbort, Record: "ABORT"},
			{FromStates: []core.State{core.StateCommit}, Inputs: []Input{InFinalize}, ToState: core.StateDoneCommit, Record: "DONE_COMMIT"},
			{FromStates: []core.State{core.StateAbort}, Inputs: []Input{InFinalize}, ToState: core.StateDoneAbort, Record: "DONE_ABORT"},
		},
	}
}
