package scenario

import (
	"fmt"

	"github.com/Readm/commit_sim/core"
)

// Unlimited marks a budget counter that is never charged.
const Unlimited = -1

// Category is the kind of fault a budget counter pays for.
type Category string

const (
	CategoryCoordinator Category = "coordinator"
	CategoryParticipant Category = "participant"
	CategoryLink        Category = "link"
)

// CategoryOf returns the budget category for faulting node id.
func CategoryOf(id core.NodeID) Category {
	if id == core.CoordinatorID {
		return CategoryCoordinator
	}
	return CategoryParticipant
}

// Budget is the number of fault injections a scenario still permits.
type Budget struct {
	Coordinator int `json:"coordinator"`
	Participant int `json:"participant"`
	Link        int `json:"link"`
}

// UnlimitedBudget allows any number of faults.
func UnlimitedBudget() Budget {
	return Budget{Coordinator: Unlimited, Participant: Unlimited, Link: Unlimited}
}

func (b *Budget) counter(cat Category) (*int, error) {
	switch cat {
	case CategoryCoordinator:
		return &b.Coordinator, nil
	case CategoryParticipant:
		return &b.Participant, nil
	case CategoryLink:
		return &b.Link, nil
	default:
		return nil, fmt.Errorf("unknown fault category %q: %w", cat, core.ErrInvalidCommand)
	}
}

// CanCharge reports whether one more fault of cat is permitted.
func (b *Budget) CanCharge(cat Category) error {
	c, err := b.counter(cat)
	if err != nil {
		return err
	}
	if *c == Unlimited {
		return nil
	}
	if *c <= 0 {
		return fmt.Errorf("%s faults: %w", cat, core.ErrBudgetExhausted)
	}
	return nil
}

// Charge spends one unit of cat. An exhausted counter is left untouched.
func (b *Budget) Charge(cat Category) error {
	if err := b.CanCharge(cat); err != nil {
		return err
	}
	c, _ := b.counter(cat)
	if *c != Unlimited {
		*c--
	}
	return nil
}

// Valid reports whether every counter is non-negative or Unlimited.
func (b Budget) Valid() bool {
	for _, v := range []int{b.Coordinator, b.Participant, b.Link} {
		if v < 0 && v != Unlimited {
			return false
		}
	}
	return true
}

// Map returns the counters keyed by category name.
func (b Budget) Map() map[string]int {
	return map[string]int{
		string(CategoryCoordinator): b.Coordinator,
		string(CategoryParticipant): b.Participant,
		string(CategoryLink):        b.Link,
	}
}

func (b Budget) String() string {
	f := func(v int) string {
		if v == Unlimited {
			return "unlimited"
		}
		return fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("%s coordinator, %s participant, and %s link toggles remaining",
		f(b.Coordinator), f(b.Participant), f(b.Link))
}
