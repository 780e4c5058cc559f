package engine

import (
	"fmt"

	"github.com/Readm/commit_sim/protocol"
)

// Config holds the recognized simulation options. Times are simulated ms.
type Config struct {
	VoteTimeoutMs      float64 `json:"voteTimeoutMs"`
	DecisionTimeoutMs  float64 `json:"decisionTimeoutMs"`
	ClockSpeed         float64 `json:"clockSpeedMultiplier"`
	LinkLatencyMs      float64 `json:"linkLatencyMs"`
	VoteYesProbability float64 `json:"voteYesProbability"`
	Seed               int64   `json:"seed"`
	// DropInFlightOnLinkDown discards messages on a link when it is cut
	// instead of holding them until the link returns.
	DropInFlightOnLinkDown bool `json:"dropInFlightOnLinkDown"`
}

// DefaultConfig returns the stock timing: 5s vote and decision timeouts,
// 2.5s links, real-time clock, every participant votes commit.
func DefaultConfig() Config {
	return Config{
		VoteTimeoutMs:      5000,
		DecisionTimeoutMs:  5000,
		ClockSpeed:         1,
		LinkLatencyMs:      2500,
		VoteYesProbability: 1,
		Seed:               1,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	if c.VoteTimeoutMs <= 0 {
		return fmt.Errorf("voteTimeoutMs must be positive, got %.1f", c.VoteTimeoutMs)
	}
	if c.DecisionTimeoutMs <= 0 {
		return fmt.Errorf("decisionTimeoutMs must be positive, got %.1f", c.DecisionTimeoutMs)
	}
	if c.ClockSpeed <= 0 {
		return fmt.Errorf("clockSpeedMultiplier must be positive, got %.2f", c.ClockSpeed)
	}
	if c.LinkLatencyMs < 0 {
		return fmt.Errorf("linkLatencyMs must be non-negative, got %.1f", c.LinkLatencyMs)
	}
	if c.VoteYesProbability < 0 || c.VoteYesProbability > 1 {
		return fmt.Errorf("voteYesProbability must be within [0,1], got %.2f", c.VoteYesProbability)
	}
	return nil
}

func (c Config) timeouts() protocol.Timeouts {
	return protocol.Timeouts{Vote: c.VoteTimeoutMs, Decision: c.DecisionTimeoutMs}
}
