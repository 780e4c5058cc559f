package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Readm/commit_sim/engine"
)

const (
	DefaultParticipants = 3
	DefaultAddr         = "127.0.0.1:8080"
	DefaultUntilMs      = 60000
	DefaultStepMs       = 250
	DefaultTickInterval = 50 * time.Millisecond

	// MaxStepMs caps a single manual step so one command cannot stall the driver.
	MaxStepMs = 600000.0

	// ConfigHashLength is the length of the config hash in hex characters.
	ConfigHashLength = 16
)

// Config is the process-level configuration: engine timing plus how the
// simulator is driven and rendered.
type Config struct {
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Participants int           `json:"participants"`
	Scenario     string        `json:"scenario"`
	FailureMode  string        `json:"failureMode"`
	Engine       engine.Config `json:"engine"`

	Headless        bool     `json:"headless"`
	VisualMode      string   `json:"visualMode"`
	Addr            string   `json:"addr"`
	ArchiveDir      string   `json:"archiveDir,omitempty"`
	Plugins         []string `json:"plugins,omitempty"`
	DropProbability float64  `json:"dropProbability"`
	UntilMs         float64  `json:"untilMs"`
	StepMs          float64  `json:"stepMs"`
	TickIntervalMs  int      `json:"tickIntervalMs"`
	LogLevel        string   `json:"logLevel"`
}

// ValidateConfig applies structural checks to Config and populates defaults where required.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Participants < 0 {
		return fmt.Errorf("Participants must be non-negative, got %d", cfg.Participants)
	}
	if cfg.DropProbability < 0 || cfg.DropProbability > 1 {
		return fmt.Errorf("DropProbability must be within [0,1], got %.3f", cfg.DropProbability)
	}
	if cfg.StepMs > MaxStepMs {
		return fmt.Errorf("StepMs must not exceed %.0f, got %.1f", MaxStepMs, cfg.StepMs)
	}
	if cfg.UntilMs < 0 {
		return fmt.Errorf("UntilMs must be non-negative, got %.1f", cfg.UntilMs)
	}
	if cfg.FailureMode != "" && !knownFailureMode(cfg.FailureMode) {
		return fmt.Errorf("unknown failure mode %q (known: %s)", cfg.FailureMode, strings.Join(engine.FailureModes(), ", "))
	}
	if cfg.VisualMode != "" && cfg.VisualMode != "web" && cfg.VisualMode != "none" {
		return fmt.Errorf("VisualMode must be web or none, got %q", cfg.VisualMode)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	if cfg.Engine == (engine.Config{}) {
		cfg.Engine = engine.DefaultConfig()
	}
	if err := cfg.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if cfg.Participants == 0 {
		cfg.Participants = DefaultParticipants
	}
	if cfg.VisualMode == "" {
		cfg.VisualMode = "web"
	}
	if cfg.Headless {
		cfg.VisualMode = "none"
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.UntilMs == 0 {
		cfg.UntilMs = DefaultUntilMs
	}
	if cfg.StepMs <= 0 {
		cfg.StepMs = DefaultStepMs
	}
	if cfg.TickIntervalMs <= 0 {
		cfg.TickIntervalMs = int(DefaultTickInterval / time.Millisecond)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return nil
}

func knownFailureMode(mode string) bool {
	for _, m := range engine.FailureModes() {
		if m == mode {
			return true
		}
	}
	return false
}

// TickInterval returns the wall-clock interval between real-time ticks.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// computeConfigHash computes a hash of the engine configuration so that
// frontends can detect a config change between frames.
func computeConfigHash(cfg engine.Config) string {
	hashInput := fmt.Sprintf("%.3f-%.3f-%.3f-%.3f-%.3f-%d-%t",
		cfg.VoteTimeoutMs,
		cfg.DecisionTimeoutMs,
		cfg.ClockSpeed,
		cfg.LinkLatencyMs,
		cfg.VoteYesProbability,
		cfg.Seed,
		cfg.DropInFlightOnLinkDown)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])[:ConfigHashLength]
}
