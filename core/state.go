package core

import "strings"

// State represents the protocol state of a node.
type State string

const (
	StateInit          State = "INIT"
	StateWaitVotes     State = "WAIT_VOTES" // coordinator only
	StateReady         State = "READY"      // participant only
	StateCommit        State = "COMMIT"
	StateAbort         State = "ABORT"
	StateDecidedCommit State = "DECIDED_COMMIT" // coordinator only
	StateDecidedAbort  State = "DECIDED_ABORT"  // coordinator only
	StateDoneCommit    State = "DONE_COMMIT"
	StateDoneAbort     State = "DONE_ABORT"
)

// IsDone returns true for the terminal DONE_* states.
func (s State) IsDone() bool {
	return s == StateDoneCommit || s == StateDoneAbort
}

// IsDecided returns true for the coordinator DECIDED_* states.
func (s State) IsDecided() bool {
	return s == StateDecidedCommit || s == StateDecidedAbort
}

// Outcome maps a decision-derived state to the outcome it implies.
func (s State) Outcome() (Outcome, bool) {
	switch s {
	case StateCommit, StateDecidedCommit, StateDoneCommit:
		return OutcomeCommit, true
	case StateAbort, StateDecidedAbort, StateDoneAbort:
		return OutcomeAbort, true
	default:
		return "", false
	}
}

// Outcome is the global decision of a transaction.
type Outcome string

const (
	OutcomeCommit Outcome = "GLOBAL_COMMIT"
	OutcomeAbort  Outcome = "GLOBAL_ABORT"
)

// Short strips the GLOBAL_ prefix: "COMMIT" or "ABORT".
func (o Outcome) Short() string {
	return strings.TrimPrefix(string(o), "GLOBAL_")
}

// Message returns the decision message type carrying this outcome.
func (o Outcome) Message() MessageType {
	if o == OutcomeCommit {
		return MsgGlobalCommit
	}
	return MsgGlobalAbort
}

// Ack returns the acknowledgment message type for this outcome.
func (o Outcome) Ack() MessageType {
	if o == OutcomeCommit {
		return MsgAckCommit
	}
	return MsgAckAbort
}

// Decided returns the coordinator DECIDED_* state for this outcome.
func (o Outcome) Decided() State {
	if o == OutcomeCommit {
		return StateDecidedCommit
	}
	return StateDecidedAbort
}

// Applied returns the participant state after applying this outcome.
func (o Outcome) Applied() State {
	if o == OutcomeCommit {
		return StateCommit
	}
	return StateAbort
}

// Done returns the terminal DONE_* state for this outcome.
func (o Outcome) Done() State {
	if o == OutcomeCommit {
		return StateDoneCommit
	}
	return StateDoneAbort
}
