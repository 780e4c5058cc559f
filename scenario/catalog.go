package scenario

import (
	"fmt"
	"strings"

	"github.com/Readm/commit_sim/core"
)

// Scenario is a fault budget plus the outcome the run must reach.
type Scenario struct {
	Tier        int         `json:"tier"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Budget      Budget      `json:"budget"`
	Expect      Expectation `json:"expect"`
}

// Status is the query view of the active scenario.
type Status struct {
	Scenario  string         `json:"scenario"`
	Tier      int            `json:"tier"`
	Expect    Expectation    `json:"expect"`
	Remaining map[string]int `json:"remaining"`
	Verdict   core.Verdict   `json:"verdict"`
	Reason    string         `json:"reason,omitempty"`
	Summary   string         `json:"summary"`
}

// Entry is one catalog row for listings.
type Entry struct {
	Scenario
	Unlocked bool         `json:"unlocked"`
	Best     core.Verdict `json:"best"`
}

// Catalog holds the scenario tiers. Passing a tier unlocks the next one.
type Catalog struct {
	scenarios []Scenario
	unlocked  int
	best      map[int]core.Verdict
}

// DefaultScenarios returns the built-in tiers.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Tier:        0,
			Name:        "sandbox",
			Description: "Free play: inject any faults, the run must end in agreement.",
			Budget:      UnlimitedBudget(),
			Expect:      ExpectAgreement,
		},
		{
			Tier:        1,
			Name:        "participant-crash",
			Description: "Crash one participant so that the transaction aborts.",
			Budget:      Budget{Coordinator: 0, Participant: 1, Link: 0},
			Expect:      ExpectAbort,
		},
		{
			Tier:        2,
			Name:        "link-cut",
			Description: "Cut one link so that the transaction aborts.",
			Budget:      Budget{Coordinator: 0, Participant: 0, Link: 1},
			Expect:      ExpectAbort,
		},
		{
			Tier:        3,
			Name:        "coordinator-restart",
			Description: "Crash and restart the coordinator; participants must still agree.",
			Budget:      Budget{Coordinator: 2, Participant: 0, Link: 0},
			Expect:      ExpectAgreement,
		},
	}
}

// NewCatalog creates a catalog over scenarios; only tier 0 starts unlocked.
func NewCatalog(scenarios []Scenario) (*Catalog, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("catalog needs at least one scenario")
	}
	for i, sc := range scenarios {
		if sc.Tier != i {
			return nil, fmt.Errorf("scenario %q has tier %d, want %d", sc.Name, sc.Tier, i)
		}
		if !sc.Budget.Valid() {
			return nil, fmt.Errorf("scenario %q has an invalid budget", sc.Name)
		}
	}
	return &Catalog{
		scenarios: append([]Scenario(nil), scenarios...),
		best:      make(map[int]core.Verdict),
	}, nil
}

// DefaultCatalog returns a catalog of the built-in tiers.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultScenarios())
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns the scenario of tier.
func (c *Catalog) Get(tier int) (Scenario, error) {
	if tier < 0 || tier >= len(c.scenarios) {
		return Scenario{}, fmt.Errorf("scenario tier %d: %w", tier, core.ErrInvalidCommand)
	}
	return c.scenarios[tier], nil
}

// Lookup resolves a scenario by name or tier number.
func (c *Catalog) Lookup(key string) (Scenario, error) {
	for _, sc := range c.scenarios {
		if strings.EqualFold(sc.Name, key) || fmt.Sprint(sc.Tier) == key {
			return sc, nil
		}
	}
	return Scenario{}, fmt.Errorf("scenario %q: %w", key, core.ErrInvalidCommand)
}

// Unlocked reports whether tier may be played.
func (c *Catalog) Unlocked(tier int) bool {
	return tier >= 0 && tier <= c.unlocked && tier < len(c.scenarios)
}

// UnlockAll opens every tier.
func (c *Catalog) UnlockAll() {
	c.unlocked = len(c.scenarios) - 1
}

// Record stores a graded result and reports whether it unlocked a new tier.
func (c *Catalog) Record(tier int, verdict core.Verdict) bool {
	if verdict == core.VerdictPassed || c.best[tier] == "" {
		c.best[tier] = verdict
	}
	if verdict == core.VerdictPassed && tier == c.unlocked && c.unlocked < len(c.scenarios)-1 {
		c.unlocked++
		return true
	}
	return false
}

// Entries lists every tier with its unlock state.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.scenarios))
	for i, sc := range c.scenarios {
		best := c.best[i]
		if best == "" {
			best = core.VerdictPending
		}
		out[i] = Entry{Scenario: sc, Unlocked: c.Unlocked(i), Best: best}
	}
	return out
}
