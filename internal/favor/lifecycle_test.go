package favor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/entropy"
	"github.com/talgya/villagers/internal/npc"
	"github.com/talgya/villagers/internal/social"
)

func testLifecycle(seed int64) (*Lifecycle, *social.Graph, *npc.Agent, config.FavorConfig) {
	cfg := config.Default()
	cfg.Favors.GenerationChance = 1.0 // trials always succeed when gates pass
	g := social.NewGraph(cfg.Social)
	a := &npc.Agent{
		ID:                  1,
		Name:                "Bram Okafor",
		Personality:         npc.Hardworking,
		RelationshipToActor: 50,
		Needs:               npc.Needs{Energy: 70, Social: 70, Hunger: 70, WorkSatisfaction: 70},
	}
	g.Register(a)
	lc := NewLifecycle(cfg.Favors, g, entropy.NewSource(seed))
	return lc, g, a, cfg.Favors
}

// advancePastTrial runs Tick until one generation interval has elapsed.
func advancePastTrial(lc *Lifecycle, a *npc.Agent, cfg config.FavorConfig, tick uint64) {
	lc.Tick(a, cfg.GenerationIntervalSecs, tick)
}

func TestGenerationProducesRequestedFavor(t *testing.T) {
	lc, _, a, cfg := testLifecycle(1)

	advancePastTrial(lc, a, cfg, 100)

	f, ok := lc.ActiveFavor(a.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRequested, f.Status)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, f.ID, a.ActiveFavorID)
	assert.True(t, f.Type.Valid())
	assert.Equal(t, moneyRewards[f.Type], f.Reward.Money)
}

func TestGenerationGates(t *testing.T) {
	t.Run("relationship below tier gate", func(t *testing.T) {
		lc, _, a, cfg := testLifecycle(2)
		a.RelationshipToActor = 20 // below Neutral
		advancePastTrial(lc, a, cfg, 100)
		_, ok := lc.ActiveFavor(a.ID)
		assert.False(t, ok)
	})

	t.Run("cooldown running", func(t *testing.T) {
		lc, _, a, cfg := testLifecycle(3)
		a.FavorCooldownRemaining = cfg.CooldownSecs * 10
		advancePastTrial(lc, a, cfg, 100)
		_, ok := lc.ActiveFavor(a.ID)
		assert.False(t, ok)
	})

	t.Run("interval not yet elapsed", func(t *testing.T) {
		lc, _, a, cfg := testLifecycle(4)
		lc.Tick(a, cfg.GenerationIntervalSecs/2, 100)
		_, ok := lc.ActiveFavor(a.ID)
		assert.False(t, ok)
	})
}

// One active favor per agent is the hard invariant: while any favor is
// non-terminal, no trial can produce a second.
func TestSingleActiveFavorInvariant(t *testing.T) {
	lc, _, a, cfg := testLifecycle(5)

	advancePastTrial(lc, a, cfg, 100)
	f, ok := lc.ActiveFavor(a.ID)
	require.True(t, ok)

	// Many more intervals pass; the active favor blocks generation.
	for i := 0; i < 10; i++ {
		lc.Tick(a, cfg.GenerationIntervalSecs, uint64(200+i))
	}
	assert.Len(t, lc.ActiveFavors(), 1)

	got, _ := lc.ActiveFavor(a.ID)
	assert.Equal(t, f.ID, got.ID)
}

func TestAcceptStartsCountdown(t *testing.T) {
	lc, _, a, cfg := testLifecycle(6)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)

	require.NoError(t, lc.Accept(f.ID))
	assert.Equal(t, StatusAccepted, f.Status)
	assert.Equal(t, cfg.DurationSecs, f.TimeRemaining)

	// Accepting twice is an invalid transition.
	assert.ErrorIs(t, lc.Accept(f.ID), ErrBadTransition)
}

func TestRequestedFavorNeverExpires(t *testing.T) {
	lc, _, a, cfg := testLifecycle(7)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)

	// Unaccepted requests neither count down nor progress.
	lc.Tick(a, cfg.DurationSecs*5, 200)
	assert.Equal(t, StatusRequested, f.Status)
	assert.Equal(t, cfg.DurationSecs, f.TimeRemaining)
}

func TestWorkStrategyProgressesWhileWorking(t *testing.T) {
	lc, _, a, cfg := testLifecycle(8)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)
	f.Type = HarvestHelp
	f.Reward.Money = moneyRewards[HarvestHelp]
	require.NoError(t, lc.Accept(f.ID))

	a.State = npc.StateIdle
	lc.Tick(a, 600, 200)
	assert.Equal(t, 0.0, f.Progress, "no progress while idle")
	assert.Equal(t, StatusAccepted, f.Status)

	a.State = npc.StateWorking
	lc.Tick(a, 1800, 300) // half an hour at 80/hour
	assert.InDelta(t, 40.0, f.Progress, 1e-9)
	assert.Equal(t, StatusInProgress, f.Status)

	// Enough work completes the favor and pays out.
	lc.Tick(a, 2700, 400)
	assert.Equal(t, StatusCompleted, f.Status)

	resolved := lc.ConsumeResolved()
	require.Len(t, resolved, 1)
	assert.Equal(t, moneyRewards[HarvestHelp], resolved[0].Earned)
	assert.Empty(t, lc.ConsumeResolved(), "terminal records destroyed once reported")

	_, stillActive := lc.ActiveFavor(a.ID)
	assert.False(t, stillActive)
	assert.Equal(t, cfg.CooldownSecs, a.FavorCooldownRemaining)
}

func TestCompletionRaisesRelationship(t *testing.T) {
	lc, _, a, cfg := testLifecycle(9)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)
	require.NoError(t, lc.Accept(f.ID))

	before := a.RelationshipToActor
	require.NoError(t, lc.ReportProgress(f.ID, 100, 200))
	assert.Equal(t, StatusCompleted, f.Status)
	assert.Equal(t, before+cfg.CompletionDelta, a.RelationshipToActor)
}

func TestExpiryPenalizes(t *testing.T) {
	lc, _, a, cfg := testLifecycle(10)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)
	require.NoError(t, lc.Accept(f.ID))

	before := a.RelationshipToActor
	a.State = npc.StateIdle
	lc.Tick(a, cfg.DurationSecs+1, 200)

	assert.Equal(t, StatusExpired, f.Status)
	assert.Equal(t, before+cfg.FailureDelta, a.RelationshipToActor)

	resolved := lc.ConsumeResolved()
	require.Len(t, resolved, 1)
	assert.Equal(t, 0, resolved[0].Earned)
}

func TestAbandonIsImmediate(t *testing.T) {
	lc, _, a, cfg := testLifecycle(11)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)
	require.NoError(t, lc.Accept(f.ID))

	before := a.RelationshipToActor
	require.NoError(t, lc.Abandon(f.ID, 200))

	assert.Equal(t, StatusAbandoned, f.Status)
	assert.Equal(t, before+cfg.FailureDelta, a.RelationshipToActor)
	assert.Equal(t, cfg.CooldownSecs, a.FavorCooldownRemaining)

	// Abandoning a terminal favor fails: it is no longer active.
	assert.ErrorIs(t, lc.Abandon(f.ID, 300), ErrUnknownFavor)
}

func TestCompleteRequiresFullProgress(t *testing.T) {
	lc, _, a, cfg := testLifecycle(12)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)
	require.NoError(t, lc.Accept(f.ID))

	require.NoError(t, lc.ReportProgress(f.ID, 50, 200))
	assert.ErrorIs(t, lc.Complete(f.ID, 200), ErrNotEligible)

	// Hitting the threshold through ReportProgress completes on its own.
	require.NoError(t, lc.ReportProgress(f.ID, 50, 300))
	assert.Equal(t, StatusCompleted, f.Status)
}

func TestCooldownBlocksNextGeneration(t *testing.T) {
	lc, _, a, cfg := testLifecycle(13)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)
	require.NoError(t, lc.Accept(f.ID))
	require.NoError(t, lc.Abandon(f.ID, 200))

	// Cooldown still running: a full interval passes with no new favor.
	advancePastTrial(lc, a, cfg, 300)
	_, ok := lc.ActiveFavor(a.ID)
	assert.False(t, ok)

	// Burn the cooldown down, then the next trial can fire.
	lc.Tick(a, cfg.CooldownSecs, 400)
	advancePastTrial(lc, a, cfg, 500)
	_, ok = lc.ActiveFavor(a.ID)
	assert.True(t, ok)
}

func TestEscortStrategyProgressesWhileMoving(t *testing.T) {
	lc, _, a, cfg := testLifecycle(15)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)
	f.Type = Delivery
	require.NoError(t, lc.Accept(f.ID))

	a.State = npc.StateSocializing
	lc.Tick(a, 900, 200)
	assert.Equal(t, 0.0, f.Progress)

	a.State = npc.StateDriving
	lc.Tick(a, 900, 300) // quarter hour at 120/hour
	assert.InDelta(t, 30.0, f.Progress, 1e-9)

	a.State = npc.StateWalking
	lc.Tick(a, 900, 400)
	assert.InDelta(t, 60.0, f.Progress, 1e-9)
}

func TestReportProgressRejectsNegativeDelta(t *testing.T) {
	lc, _, a, cfg := testLifecycle(16)
	advancePastTrial(lc, a, cfg, 100)
	f, _ := lc.ActiveFavor(a.ID)

	// Requested favors take no progress at all.
	assert.ErrorIs(t, lc.ReportProgress(f.ID, 10, 200), ErrBadTransition)

	require.NoError(t, lc.Accept(f.ID))
	assert.ErrorIs(t, lc.ReportProgress(f.ID, -1, 300), ErrNotEligible)
	assert.ErrorIs(t, lc.ReportProgress("no-such-favor", 10, 300), ErrUnknownFavor)
}

func TestRestoreDropsInvalidRecords(t *testing.T) {
	lc, _, a, _ := testLifecycle(14)

	assert.False(t, lc.Restore(Favor{ID: "x", AgentID: 999, Type: Repair}), "unknown agent")
	assert.False(t, lc.Restore(Favor{ID: "x", AgentID: a.ID, Type: Type(42)}), "unknown type")
	assert.False(t, lc.Restore(Favor{ID: "x", AgentID: a.ID, Type: Repair, Status: StatusCompleted}), "terminal")

	require.True(t, lc.Restore(Favor{ID: "keep", AgentID: a.ID, Type: Repair, Status: StatusAccepted, TimeRemaining: 60}))
	assert.Equal(t, "keep", a.ActiveFavorID)

	assert.False(t, lc.Restore(Favor{ID: "dup", AgentID: a.ID, Type: Delivery, Status: StatusAccepted}), "duplicate")
}
