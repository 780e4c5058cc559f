package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTopology is returned for a send or toggle on a pair with no link.
	ErrInvalidTopology = errors.New("invalid topology: nodes are not adjacent")
	// ErrBudgetExhausted is returned when a fault injection exceeds the scenario allowance.
	ErrBudgetExhausted = errors.New("fault budget exhausted")
	// ErrUndecidedQuery marks a QUERY_DECISION received before the coordinator decided.
	ErrUndecidedQuery = errors.New("decision query before decision")
	// ErrDuplicateDelivery is a fatal invariant violation: a message was delivered twice.
	ErrDuplicateDelivery = errors.New("message delivered more than once")

	ErrUnknownNode       = errors.New("unknown node")
	ErrUnknownMessage    = errors.New("unknown or already delivered message")
	ErrNoSession         = errors.New("simulation not initialized")
	ErrTransactionActive = errors.New("transaction already started")
	ErrInvalidCommand    = errors.New("invalid command")
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTickOverrun is returned when one Tick hits its step budget before reaching its target time.
	ErrTickOverrun = errors.New("tick step budget exhausted")
)

// CommandError is the typed failure returned by commands. It unwraps to one of the sentinels above.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with the failing operation name.
func NewCommandError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Op: op, Err: err}
}
