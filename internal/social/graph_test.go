package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/villagers/internal/clock"
	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/entropy"
	"github.com/talgya/villagers/internal/npc"
)

func testGraph() (*Graph, *npc.Agent) {
	g := NewGraph(config.Default().Social)
	a := &npc.Agent{
		ID:                  1,
		Name:                "Greta Holm",
		Personality:         npc.Generous,
		RelationshipToActor: 50,
	}
	g.Register(a)
	return g, a
}

func TestTierBoundaries(t *testing.T) {
	tests := []struct {
		value float64
		want  Tier
	}{
		{0, TierHostile},
		{9.99, TierHostile},
		{10, TierUnfriendly},
		{24.99, TierUnfriendly},
		{25, TierNeutral},
		{39.99, TierNeutral},
		{40, TierAcquaintance},
		{59.99, TierAcquaintance},
		{60, TierFriend},
		{74.99, TierFriend},
		{75, TierCloseFriend},
		{89.99, TierCloseFriend},
		{90, TierBestFriend},
		{100, TierBestFriend},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TierFor(tt.value), "value %.2f", tt.value)
	}
}

func TestUpdateRelationshipClampsAndRecords(t *testing.T) {
	g, a := testGraph()

	v, err := g.UpdateRelationship(a.ID, 2, ReasonDailyInteraction, 100)
	require.NoError(t, err)
	assert.Equal(t, 52.0, v)
	assert.Equal(t, 1, a.Memory.Len())
	assert.Equal(t, uint64(100), a.LastInteractionTick)

	a.RelationshipToActor = 99
	_, err = g.UpdateRelationship(a.ID, 50, ReasonGift, 101)
	require.NoError(t, err)
	assert.Equal(t, 100.0, a.RelationshipToActor)

	a.RelationshipToActor = 3
	_, err = g.UpdateRelationship(a.ID, -9, ReasonAdmin, 102)
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.RelationshipToActor)
}

func TestUpdateRelationshipUnknownAgent(t *testing.T) {
	g, _ := testGraph()
	_, err := g.UpdateRelationship(999, 2, ReasonDailyInteraction, 0)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

func TestDailyInteractionCap(t *testing.T) {
	g, a := testGraph()

	_, err := g.UpdateRelationship(a.ID, 2, ReasonDailyInteraction, 10)
	require.NoError(t, err)

	// Same sim-day: rejected, value untouched.
	v, err := g.UpdateRelationship(a.ID, 2, ReasonDailyInteraction, 500)
	assert.ErrorIs(t, err, ErrDailyCapReached)
	assert.Equal(t, 52.0, v)

	// Other reasons are not capped.
	_, err = g.UpdateRelationship(a.ID, 2, ReasonGift, 600)
	assert.NoError(t, err)

	// Next sim-day: allowed again.
	_, err = g.UpdateRelationship(a.ID, 2, ReasonDailyInteraction, clock.TicksPerDay+10)
	assert.NoError(t, err)
}

func TestGrudgeDampensPositiveDeltas(t *testing.T) {
	g, a := testGraph()

	// A -10 delta is at the grudge threshold and plants a grudge.
	_, err := g.UpdateRelationship(a.ID, -10, ReasonAdmin, 10)
	require.NoError(t, err)
	require.Equal(t, 10.0, a.Grudge)
	require.Equal(t, 40.0, a.RelationshipToActor)

	// Positive deltas are halved until paid down.
	v, err := g.UpdateRelationship(a.ID, 8, ReasonGift, 20)
	require.NoError(t, err)
	assert.Equal(t, 44.0, v)
	assert.Equal(t, 6.0, a.Grudge)

	v, err = g.UpdateRelationship(a.ID, 8, ReasonGift, 30)
	require.NoError(t, err)
	assert.Equal(t, 48.0, v)
	assert.Equal(t, 2.0, a.Grudge)

	// Grudge bottoms out at zero; later deltas apply in full.
	_, err = g.UpdateRelationship(a.ID, 8, ReasonGift, 40)
	require.NoError(t, err)
	assert.Equal(t, 0.0, a.Grudge)

	v, err = g.UpdateRelationship(a.ID, 8, ReasonGift, 50)
	require.NoError(t, err)
	assert.Equal(t, a.RelationshipToActor, v)
	assert.Equal(t, 0.0, a.Grudge)
}

func TestGiveGiftTierGate(t *testing.T) {
	g, a := testGraph()

	a.RelationshipToActor = 20 // below the 30 gate
	_, err := g.GiveGift(a.ID, 10)
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Equal(t, 20.0, a.RelationshipToActor)

	a.RelationshipToActor = 35
	v, err := g.GiveGift(a.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 43.0, v) // +8 gift delta
}

func TestDecayGracePeriodAndFloor(t *testing.T) {
	g, a := testGraph()
	a.RelationshipToActor = 60
	a.LastInteractionTick = 0

	// One day since interaction: inside the grace period, no decay.
	g.Decay(a, clock.TicksPerDay)
	assert.Equal(t, 60.0, a.RelationshipToActor)

	// Four days: -0.5 × 4.
	g.Decay(a, 4*clock.TicksPerDay)
	assert.InDelta(t, 58.0, a.RelationshipToActor, 1e-9)

	// Long neglect floors at the Neutral boundary, never below.
	g.Decay(a, 400*clock.TicksPerDay)
	assert.Equal(t, 25.0, a.RelationshipToActor)

	// At or below the floor decay is a no-op.
	a.RelationshipToActor = 20
	g.Decay(a, 800*clock.TicksPerDay)
	assert.Equal(t, 20.0, a.RelationshipToActor)
}

func TestDecayPerTickCallsChargeOnlyElapsedInterval(t *testing.T) {
	g, a := testGraph()
	a.RelationshipToActor = 60
	a.LastInteractionTick = 0

	// Call once per tick for a full sim-hour just past the grace period,
	// the cadence the orchestrator uses. The total must equal the rate
	// applied to the days actually neglected, not compound per call.
	start := uint64(2 * clock.TicksPerDay)
	for tick := start; tick < start+clock.TicksPerHour; tick++ {
		g.Decay(a, tick)
	}

	elapsedDays := float64(start+clock.TicksPerHour-1) / clock.TicksPerDay
	want := 60 - 0.5*elapsedDays
	assert.InDelta(t, want, a.RelationshipToActor, 1e-9)
	assert.Greater(t, a.RelationshipToActor, 58.0)

	// The same span charged in one call lands on the same value.
	g2, b := testGraph()
	b.RelationshipToActor = 60
	b.LastInteractionTick = 0
	g2.Decay(b, start+clock.TicksPerHour-1)
	assert.InDelta(t, b.RelationshipToActor, a.RelationshipToActor, 1e-9)
}

func TestDecayResetsAfterInteraction(t *testing.T) {
	g, a := testGraph()
	a.RelationshipToActor = 60
	a.LastInteractionTick = 0

	g.Decay(a, 4*clock.TicksPerDay)
	assert.InDelta(t, 58.0, a.RelationshipToActor, 1e-9)

	// A fresh interaction restarts the grace window; decay measures from
	// the interaction, not from the previous decay application.
	_, err := g.UpdateRelationship(a.ID, 2, ReasonDailyInteraction, 5*clock.TicksPerDay)
	require.NoError(t, err)

	g.Decay(a, 6*clock.TicksPerDay)
	assert.InDelta(t, 60.0, a.RelationshipToActor, 1e-9)

	g.Decay(a, 9*clock.TicksPerDay)
	assert.InDelta(t, 58.0, a.RelationshipToActor, 1e-9)
}

func TestNPCGiftTrialRequiresBestFriend(t *testing.T) {
	cfg := config.Default().Social
	cfg.NPCGiftChance = 1.0 // always fires when eligible
	g := NewGraph(cfg)
	a := &npc.Agent{ID: 1, Name: "Greta Holm", RelationshipToActor: 80}
	g.Register(a)

	// Close Friend, not Best Friend: no gift.
	g.NPCGiftTrial(a, 100, nil)
	assert.Empty(t, g.PendingGifts())

	a.RelationshipToActor = 95
	g.NPCGiftTrial(a, 200, nil)
	require.Len(t, g.PendingGifts(), 1)

	// Second trial the same sim-day is skipped.
	g.NPCGiftTrial(a, 300, nil)
	assert.Len(t, g.PendingGifts(), 1)

	// Next day another gift can fire.
	g.NPCGiftTrial(a, clock.TicksPerDay+200, nil)
	assert.Len(t, g.PendingGifts(), 2)
}

func TestAcknowledgeGift(t *testing.T) {
	cfg := config.Default().Social
	cfg.NPCGiftChance = 1.0
	g := NewGraph(cfg)
	a := &npc.Agent{ID: 1, Name: "Greta Holm", RelationshipToActor: 95}
	g.Register(a)

	g.NPCGiftTrial(a, 100, nil)
	require.Len(t, g.PendingGifts(), 1)

	assert.True(t, g.AcknowledgeGift(a.ID, 150))
	assert.Empty(t, g.PendingGifts())
	assert.Equal(t, 1, a.Memory.Len())
	assert.Equal(t, npc.InteractionNPCGift, a.Memory.Records[0].Kind)

	assert.False(t, g.AcknowledgeGift(a.ID, 160), "nothing left to acknowledge")
}

func TestRelationshipInfo(t *testing.T) {
	g, a := testGraph()
	a.RelationshipToActor = 65

	info, err := g.RelationshipInfo(a.ID)
	require.NoError(t, err)
	assert.Equal(t, TierFriend, info.Tier)
	assert.Equal(t, "Friend", info.TierName)
	assert.Contains(t, info.Benefits, "shares plans")

	_, err = g.RelationshipInfo(999)
	assert.ErrorIs(t, err, ErrUnknownAgent)
}

// Entropy fallback: a nil client must still produce usable draws.
func TestNPCGiftTrialNilClientFallback(t *testing.T) {
	for i := 0; i < 10; i++ {
		v := entropy.FloatFromClient(nil)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}
