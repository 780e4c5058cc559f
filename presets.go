package main

import "github.com/Readm/commit_sim/engine"

// NamedConfig is a predefined configuration selectable by name.
type NamedConfig struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Config      *Config `json:"-"`
}

// GetPredefinedConfigs returns all available predefined configurations.
func GetPredefinedConfigs() []NamedConfig {
	fast := engine.DefaultConfig()
	fast.ClockSpeed = 10

	lossy := engine.DefaultConfig()
	lossy.VoteYesProbability = 0.8
	lossy.Seed = 7

	slowLinks := engine.DefaultConfig()
	slowLinks.LinkLatencyMs = 4000
	slowLinks.DropInFlightOnLinkDown = true

	return []NamedConfig{
		{
			Name:        "classic",
			Description: "One coordinator, three participants, 2.5s links and 5s timeouts",
			Config:      &Config{Participants: 3, Engine: engine.DefaultConfig()},
		},
		{
			Name:        "fast_forward",
			Description: "Classic timing played ten times faster",
			Config:      &Config{Participants: 3, Engine: fast},
		},
		{
			Name:        "reluctant_participants",
			Description: "Five participants that each vote commit with probability 0.8",
			Config:      &Config{Participants: 5, Engine: lossy},
		},
		{
			Name:        "slow_links",
			Description: "4s links that lose in-flight messages when cut; links race the vote timeout",
			Config:      &Config{Participants: 3, Engine: slowLinks},
		},
		{
			Name:        "partition_drill",
			Description: "Headless replay of a partition that isolates half of the participants",
			Config:      &Config{Participants: 4, Engine: engine.DefaultConfig(), FailureMode: "network_partition", Headless: true},
		},
	}
}

// GetConfigByName returns a copy of a predefined configuration, or nil.
func GetConfigByName(name string) *Config {
	for _, nc := range GetPredefinedConfigs() {
		if nc.Name == name {
			cfg := *nc.Config
			cfg.Name = nc.Name
			cfg.Description = nc.Description
			return &cfg
		}
	}
	return nil
}
