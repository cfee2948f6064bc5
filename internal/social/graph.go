// Package social maintains the relationship graph: scalar agent↔actor
// values with tiers, caps, decay, and grudges, plus agent↔agent edges with
// compatibility-driven passive drift.
package social

import (
	"errors"
	"log/slog"

	"github.com/talgya/villagers/internal/clock"
	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/entropy"
	"github.com/talgya/villagers/internal/npc"
)

// Rejection signals. Gameplay rejections are values, never panics; callers
// distinguish "not eligible" from "unknown agent" so the UI can react.
var (
	ErrUnknownAgent    = errors.New("unknown agent")
	ErrNotEligible     = errors.New("not eligible")
	ErrDailyCapReached = errors.New("daily interaction cap reached")
)

// Reason is the typed cause of a relationship change. An enum rather than a
// string tag: the daily cap is keyed on ReasonDailyInteraction and can no
// longer be defeated by inconsistent casing.
type Reason uint8

const (
	ReasonDailyInteraction Reason = iota
	ReasonGift
	ReasonFavorCompleted
	ReasonFavorFailed
	ReasonFavorAbandoned
	ReasonAdmin
)

// String returns a human-readable reason name.
func (r Reason) String() string {
	switch r {
	case ReasonDailyInteraction:
		return "daily_interaction"
	case ReasonGift:
		return "gift"
	case ReasonFavorCompleted:
		return "favor_completed"
	case ReasonFavorFailed:
		return "favor_failed"
	case ReasonFavorAbandoned:
		return "favor_abandoned"
	case ReasonAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Tier is a named band of the relationship scale.
type Tier uint8

const (
	TierHostile Tier = iota
	TierUnfriendly
	TierNeutral
	TierAcquaintance
	TierFriend
	TierCloseFriend
	TierBestFriend
)

// tierFloors holds each tier's inclusive lower bound, ascending.
var tierFloors = [...]struct {
	floor float64
	tier  Tier
	name  string
}{
	{0, TierHostile, "Hostile"},
	{10, TierUnfriendly, "Unfriendly"},
	{25, TierNeutral, "Neutral"},
	{40, TierAcquaintance, "Acquaintance"},
	{60, TierFriend, "Friend"},
	{75, TierCloseFriend, "Close Friend"},
	{90, TierBestFriend, "Best Friend"},
}

// TierFor is the single canonical value→tier lookup. Every display surface
// must go through it; a second mapping is a defect.
func TierFor(value float64) Tier {
	t := TierHostile
	for _, b := range tierFloors {
		if value >= b.floor {
			t = b.tier
		}
	}
	return t
}

// String returns the tier's display name.
func (t Tier) String() string {
	for _, b := range tierFloors {
		if b.tier == t {
			return b.name
		}
	}
	return "Unknown"
}

// Benefits describes what a tier unlocks, for the info query surface.
func (t Tier) Benefits() []string {
	switch t {
	case TierNeutral:
		return []string{"may request favors"}
	case TierAcquaintance:
		return []string{"may request favors", "accepts gifts"}
	case TierFriend:
		return []string{"may request favors", "accepts gifts", "shares plans"}
	case TierCloseFriend:
		return []string{"may request favors", "accepts gifts", "shares plans", "better favor rewards"}
	case TierBestFriend:
		return []string{"may request favors", "accepts gifts", "shares plans", "better favor rewards", "gives gifts back"}
	default:
		return nil
	}
}

// GiftEvent is an NPC-initiated, player-directed gift waiting to be
// acknowledged by the UI layer.
type GiftEvent struct {
	AgentID npc.AgentID `json:"agent_id"`
	Tick    uint64      `json:"tick"`
}

// Graph owns all relationship state. It runs on the simulation goroutine;
// ordering discipline replaces locking.
type Graph struct {
	cfg    config.SocialConfig
	agents map[npc.AgentID]*npc.Agent

	edges map[EdgeKey]*Edge

	// Sim-day on which the daily interaction cap was last consumed.
	capDay map[npc.AgentID]uint64

	// Sim-day of the last NPC gift trial, and pending gift events.
	giftTrialDay map[npc.AgentID]uint64
	pendingGifts []GiftEvent

	// Tick at which decay was last applied per agent, so repeated calls
	// within the same stretch of neglect only charge the interval since
	// the previous application.
	decayedAt map[npc.AgentID]uint64
}

// NewGraph creates an empty relationship graph.
func NewGraph(cfg config.SocialConfig) *Graph {
	return &Graph{
		cfg:          cfg,
		agents:       make(map[npc.AgentID]*npc.Agent),
		edges:        make(map[EdgeKey]*Edge),
		capDay:       make(map[npc.AgentID]uint64),
		giftTrialDay: make(map[npc.AgentID]uint64),
		decayedAt:    make(map[npc.AgentID]uint64),
	}
}

// Register adds an agent to the graph's index. The orchestrator owns the
// agent arena; the graph only points into it.
func (g *Graph) Register(a *npc.Agent) {
	g.agents[a.ID] = a
}

// Agent looks up a registered agent.
func (g *Graph) Agent(id npc.AgentID) (*npc.Agent, bool) {
	a, ok := g.agents[id]
	return a, ok
}

// UpdateRelationship applies delta to the agent's relationship with the
// actor, clamped to [0,100]. ReasonDailyInteraction is capped at once per
// sim-day; a rejected call leaves the value untouched.
func (g *Graph) UpdateRelationship(id npc.AgentID, delta float64, reason Reason, tick uint64) (float64, error) {
	a, ok := g.agents[id]
	if !ok {
		return 0, ErrUnknownAgent
	}

	day := tick / clock.TicksPerDay
	if reason == ReasonDailyInteraction {
		if last, seen := g.capDay[id]; seen && last == day {
			return a.RelationshipToActor, ErrDailyCapReached
		}
		g.capDay[id] = day
	}

	g.apply(a, delta, reason, tick)
	return a.RelationshipToActor, nil
}

// apply performs the actual mutation: grudge bookkeeping, dampening, clamp,
// memory record.
func (g *Graph) apply(a *npc.Agent, delta float64, reason Reason, tick uint64) {
	// A sufficiently negative single interaction plants a grudge.
	if delta <= g.cfg.GrudgeThreshold {
		a.Grudge += -delta
		slog.Debug("grudge set", "agent", a.ID, "magnitude", a.Grudge)
	}

	applied := delta
	if delta > 0 && a.Grudge > 0 {
		// Positive deltas are halved until the grudge is paid down.
		applied = delta / 2
		a.Grudge -= applied
		if a.Grudge < 0 {
			a.Grudge = 0
		}
	}

	a.RelationshipToActor = clampValue(a.RelationshipToActor + applied)
	a.LastInteractionTick = tick

	sentiment := 0.0
	switch {
	case delta > 0:
		sentiment = 1
	case delta < 0:
		sentiment = -1
	}
	a.Memory.Add(npc.InteractionRecord{
		Tick:      tick,
		Kind:      memoryKind(reason),
		Sentiment: sentiment,
	})
}

// SetRelationshipDirect is the administrative escape hatch: bypasses the
// daily cap (and grudge dampening) but still clamps, and reports the result.
func (g *Graph) SetRelationshipDirect(id npc.AgentID, delta float64) (float64, error) {
	a, ok := g.agents[id]
	if !ok {
		return 0, ErrUnknownAgent
	}
	a.RelationshipToActor = clampValue(a.RelationshipToActor + delta)
	return a.RelationshipToActor, nil
}

// GiveGift applies the configured gift delta if the agent's tier allows it.
func (g *Graph) GiveGift(id npc.AgentID, tick uint64) (float64, error) {
	a, ok := g.agents[id]
	if !ok {
		return 0, ErrUnknownAgent
	}
	if a.RelationshipToActor < g.cfg.GiftTierGate {
		return a.RelationshipToActor, ErrNotEligible
	}
	g.apply(a, g.cfg.GiftDelta, ReasonGift, tick)
	return a.RelationshipToActor, nil
}

// Decay erodes neglected relationships: after the grace period without
// interaction, lose DecayRate per elapsed day, but never below the Neutral
// floor. Safe to call every tick; each call only charges the interval since
// decay was last applied, so the total stays rate times days neglected.
func (g *Graph) Decay(a *npc.Agent, tick uint64) {
	if a.RelationshipToActor <= 25 {
		return
	}
	elapsedDays := float64(tick-a.LastInteractionTick) / clock.TicksPerDay
	if elapsedDays < g.cfg.DecayGraceDays {
		return
	}
	since := a.LastInteractionTick
	if prev, ok := g.decayedAt[a.ID]; ok && prev > since {
		since = prev
	}
	if tick <= since {
		return
	}
	g.decayedAt[a.ID] = tick

	chargedDays := float64(tick-since) / clock.TicksPerDay
	v := a.RelationshipToActor - g.cfg.DecayRate*chargedDays
	if v < 25 {
		v = 25
	}
	a.RelationshipToActor = v
}

// NPCGiftTrial runs the once-per-day independent trial for a Best Friend
// agent generating a player-directed gift. The relationship itself is
// untouched until the player acknowledges the gift.
func (g *Graph) NPCGiftTrial(a *npc.Agent, tick uint64, rng *entropy.Client) {
	if TierFor(a.RelationshipToActor) != TierBestFriend {
		return
	}
	day := tick / clock.TicksPerDay
	if last, seen := g.giftTrialDay[a.ID]; seen && last == day {
		return
	}
	g.giftTrialDay[a.ID] = day

	if entropy.FloatFromClient(rng) < g.cfg.NPCGiftChance {
		g.pendingGifts = append(g.pendingGifts, GiftEvent{AgentID: a.ID, Tick: tick})
		slog.Info("villager prepared a gift", "agent", a.ID, "name", a.Name)
	}
}

// PendingGifts returns unacknowledged NPC gift events.
func (g *Graph) PendingGifts() []GiftEvent {
	out := make([]GiftEvent, len(g.pendingGifts))
	copy(out, g.pendingGifts)
	return out
}

// AcknowledgeGift pops the oldest pending gift from the given agent and
// records the interaction.
func (g *Graph) AcknowledgeGift(id npc.AgentID, tick uint64) bool {
	for i, ev := range g.pendingGifts {
		if ev.AgentID != id {
			continue
		}
		g.pendingGifts = append(g.pendingGifts[:i], g.pendingGifts[i+1:]...)
		if a, ok := g.agents[id]; ok {
			a.Memory.Add(npc.InteractionRecord{Tick: tick, Kind: npc.InteractionNPCGift, Sentiment: 1})
			a.LastInteractionTick = tick
		}
		return true
	}
	return false
}

// Info is the read-only relationship summary for the query surface.
type Info struct {
	Value    float64  `json:"value"`
	Tier     Tier     `json:"tier"`
	TierName string   `json:"tier_name"`
	Benefits []string `json:"benefits"`
	Grudge   float64  `json:"grudge,omitempty"`
}

// RelationshipInfo returns the actor-facing summary for an agent.
func (g *Graph) RelationshipInfo(id npc.AgentID) (Info, error) {
	a, ok := g.agents[id]
	if !ok {
		return Info{}, ErrUnknownAgent
	}
	t := TierFor(a.RelationshipToActor)
	return Info{
		Value:    a.RelationshipToActor,
		Tier:     t,
		TierName: t.String(),
		Benefits: t.Benefits(),
		Grudge:   a.Grudge,
	}, nil
}

func memoryKind(r Reason) npc.InteractionKind {
	switch r {
	case ReasonGift:
		return npc.InteractionGift
	case ReasonFavorCompleted:
		return npc.InteractionFavorCompleted
	case ReasonFavorFailed:
		return npc.InteractionFavorFailed
	case ReasonFavorAbandoned:
		return npc.InteractionFavorAbandoned
	default:
		return npc.InteractionTalk
	}
}

func clampValue(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
