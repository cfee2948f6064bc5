// Package config holds the typed simulation configuration.
// Every recognized option lives here and is validated once at load —
// no ad hoc key lookups with scattered fallback defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the villagers simulation.
type Config struct {
	// Network
	APIPort      int `yaml:"api_port"`
	ObserverPort int `yaml:"observer_port"`

	// Persistence
	DBPath string `yaml:"db_path"`

	// World
	Seed      int64 `yaml:"seed"`
	MaxAgents int   `yaml:"max_agents"`

	Sim      SimConfig      `yaml:"sim"`
	Social   SocialConfig   `yaml:"social"`
	Favors   FavorConfig    `yaml:"favors"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	API      APIConfig      `yaml:"api"`
}

// SimConfig tunes the per-tick behavioral pipeline.
type SimConfig struct {
	// BatchSize caps how many agents are processed per tick.
	BatchSize int `yaml:"batch_size"`

	// LODRadius is the distance from the observation point beyond which
	// agents are updated at reduced frequency.
	LODRadius float64 `yaml:"lod_radius"`

	// LODSkipTicks is how many ticks a far agent may be skipped before it
	// must be processed (it then receives the accumulated elapsed time).
	LODSkipTicks int `yaml:"lod_skip_ticks"`

	// UrgencyThreshold is the need level below which the corrective state
	// overrides the scheduler's suggestion.
	UrgencyThreshold float64 `yaml:"urgency_threshold"`

	// StuckEpsilon and StuckTimeoutSecs drive stuck detection in movement
	// states: net displacement under epsilon for longer than the timeout
	// forces a transition to idle.
	StuckEpsilon     float64 `yaml:"stuck_epsilon"`
	StuckTimeoutSecs float64 `yaml:"stuck_timeout_secs"`
}

// SocialConfig tunes the relationship graph.
type SocialConfig struct {
	// DecayRate is relationship points lost per elapsed day without
	// interaction (applied only after DecayGraceDays).
	DecayRate      float64 `yaml:"decay_rate"`
	DecayGraceDays float64 `yaml:"decay_grace_days"`

	// GiftDelta is the relationship gain from a player gift.
	GiftDelta float64 `yaml:"gift_delta"`

	// GiftTierGate is the minimum relationship value required to give a gift.
	GiftTierGate float64 `yaml:"gift_tier_gate"`

	// NPCGiftChance is the daily independent-trial probability that a
	// Best Friend generates a player-directed gift event.
	NPCGiftChance float64 `yaml:"npc_gift_chance"`

	// GrudgeThreshold: a single delta at or below this sets a grudge.
	GrudgeThreshold float64 `yaml:"grudge_threshold"`

	// DriftRate scales passive NPC-NPC edge drift per sim-day.
	DriftRate float64 `yaml:"drift_rate"`

	// InteractionRange bounds partner selection for socializing.
	InteractionRange float64 `yaml:"interaction_range"`
}

// FavorConfig tunes favor generation and rewards.
type FavorConfig struct {
	// GenerationChance is the per-agent trial probability, rolled once per
	// generation interval.
	GenerationChance       float64 `yaml:"generation_chance"`
	GenerationIntervalSecs float64 `yaml:"generation_interval_secs"`

	// TierGate is the minimum relationship value for favor generation.
	TierGate float64 `yaml:"tier_gate"`

	// CooldownSecs runs after any terminal favor status.
	CooldownSecs float64 `yaml:"cooldown_secs"`

	// DurationSecs is the countdown started on acceptance.
	DurationSecs float64 `yaml:"duration_secs"`

	// CompletionDelta and FailureDelta are the relationship rewards.
	CompletionDelta float64 `yaml:"completion_delta"`
	FailureDelta    float64 `yaml:"failure_delta"`
}

// SnapshotConfig tunes observer broadcasts.
type SnapshotConfig struct {
	// IntervalSecs is the periodic broadcast cadence in sim-seconds,
	// decoupled from the tick rate. Dirty mutations broadcast immediately.
	IntervalSecs float64 `yaml:"interval_secs"`
}

// APIConfig tunes the HTTP surface.
type APIConfig struct {
	// ActionRateLimit caps player mutation requests per client per window.
	// Read endpoints are not limited.
	ActionRateLimit      int     `yaml:"action_rate_limit"`
	ActionRateWindowSecs float64 `yaml:"action_rate_window_secs"`
}

// Default returns a Config with tuned defaults.
func Default() Config {
	return Config{
		APIPort:      8080,
		ObserverPort: 8081,
		DBPath:       "data/villagers.db",
		Seed:         42,
		MaxAgents:    64,
		Sim: SimConfig{
			BatchSize:        32,
			LODRadius:        250,
			LODSkipTicks:     5,
			UrgencyThreshold: 15,
			StuckEpsilon:     0.5,
			StuckTimeoutSecs: 120,
		},
		Social: SocialConfig{
			DecayRate:        0.5,
			DecayGraceDays:   2,
			GiftDelta:        8,
			GiftTierGate:     30,
			NPCGiftChance:    0.05,
			GrudgeThreshold:  -10,
			DriftRate:        1.5,
			InteractionRange: 40,
		},
		Favors: FavorConfig{
			GenerationChance:       0.15,
			GenerationIntervalSecs: 3600,
			TierGate:               25,
			CooldownSecs:           7200,
			DurationSecs:           5400,
			CompletionDelta:        15,
			FailureDelta:           -5,
		},
		Snapshot: SnapshotConfig{
			IntervalSecs: 5,
		},
		API: APIConfig{
			ActionRateLimit:      60,
			ActionRateWindowSecs: 60,
		},
	}
}

// Load reads a YAML config file, layering it over defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration once at load.
func (c Config) Validate() error {
	if c.MaxAgents <= 0 {
		return fmt.Errorf("config: max_agents must be positive, got %d", c.MaxAgents)
	}
	if c.Sim.BatchSize <= 0 {
		return fmt.Errorf("config: sim.batch_size must be positive, got %d", c.Sim.BatchSize)
	}
	if c.Sim.UrgencyThreshold < 0 || c.Sim.UrgencyThreshold > 100 {
		return fmt.Errorf("config: sim.urgency_threshold must be in [0,100], got %g", c.Sim.UrgencyThreshold)
	}
	if c.Favors.GenerationChance < 0 || c.Favors.GenerationChance > 1 {
		return fmt.Errorf("config: favors.generation_chance must be in [0,1], got %g", c.Favors.GenerationChance)
	}
	if c.Social.NPCGiftChance < 0 || c.Social.NPCGiftChance > 1 {
		return fmt.Errorf("config: social.npc_gift_chance must be in [0,1], got %g", c.Social.NPCGiftChance)
	}
	if c.Social.GrudgeThreshold >= 0 {
		return fmt.Errorf("config: social.grudge_threshold must be negative, got %g", c.Social.GrudgeThreshold)
	}
	if c.Snapshot.IntervalSecs <= 0 {
		return fmt.Errorf("config: snapshot.interval_secs must be positive, got %g", c.Snapshot.IntervalSecs)
	}
	if c.API.ActionRateLimit <= 0 {
		return fmt.Errorf("config: api.action_rate_limit must be positive, got %d", c.API.ActionRateLimit)
	}
	if c.API.ActionRateWindowSecs <= 0 {
		return fmt.Errorf("config: api.action_rate_window_secs must be positive, got %g", c.API.ActionRateWindowSecs)
	}
	return nil
}
