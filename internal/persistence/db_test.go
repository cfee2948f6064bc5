package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/villagers/internal/clock"
	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/engine"
	"github.com/talgya/villagers/internal/entropy"
	"github.com/talgya/villagers/internal/favor"
	"github.com/talgya/villagers/internal/npc"
	"github.com/talgya/villagers/internal/social"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "villagers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleAgent(id npc.AgentID) *npc.Agent {
	a := &npc.Agent{
		ID:                     id,
		Name:                   "Greta Holst",
		Personality:            npc.Generous,
		Needs:                  npc.Needs{Energy: 61, Social: 72, Hunger: 83, WorkSatisfaction: 44},
		RelationshipToActor:    58.5,
		Grudge:                 3.5,
		State:                  npc.StateWorking,
		Position:               npc.Point{X: 12, Y: -7},
		Home:                   npc.Point{X: 1, Y: 2},
		Workplace:              npc.Point{X: 200, Y: 40},
		Meeting:                npc.Point{X: 8, Y: 8},
		FieldAssigned:          true,
		FavorCooldownRemaining: 1200,
		LastInteractionTick:    4200,
	}
	a.Memory.Add(npc.InteractionRecord{Tick: 100, Kind: npc.InteractionTalk, Sentiment: 0.5})
	a.Memory.Add(npc.InteractionRecord{Tick: 200, Kind: npc.InteractionGift, Sentiment: 1})
	return a
}

func TestAgentsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveAgents([]*npc.Agent{sampleAgent(1), sampleAgent(2)}))

	loaded, err := db.LoadAgents()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	want := sampleAgent(1)
	got := loaded[0]
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Personality, got.Personality)
	assert.Equal(t, want.Needs, got.Needs)
	assert.Equal(t, want.RelationshipToActor, got.RelationshipToActor)
	assert.Equal(t, want.Grudge, got.Grudge)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.Position, got.Position)
	assert.Equal(t, want.Home, got.Home)
	assert.Equal(t, want.Workplace, got.Workplace)
	assert.Equal(t, want.Meeting, got.Meeting)
	assert.True(t, got.FieldAssigned)
	assert.Equal(t, want.FavorCooldownRemaining, got.FavorCooldownRemaining)
	assert.Equal(t, want.LastInteractionTick, got.LastInteractionTick)
	assert.Equal(t, want.Memory.Timeline(), got.Memory.Timeline())

	// Stuck detection restarts from the restored position.
	assert.Equal(t, got.Position, got.StuckAnchor)
	assert.Zero(t, got.StuckSeconds)
}

func TestLoadAgentsSanitizesBadRows(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveAgents([]*npc.Agent{sampleAgent(1)}))

	_, err := db.conn.Exec("UPDATE agents SET state = 99, needs_json = 'not json'")
	require.NoError(t, err)

	loaded, err := db.LoadAgents()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, npc.StateIdle, loaded[0].State)
	assert.Equal(t, npc.Needs{Energy: 70, Social: 70, Hunger: 70, WorkSatisfaction: 70}, loaded[0].Needs)
}

func TestEdgesRoundTripDropsOrphans(t *testing.T) {
	db := openTestDB(t)

	edges := map[social.EdgeKey]*social.Edge{
		social.MakeEdgeKey(1, 2): {Value: 48, Compatibility: 0.6, Grudge: 2},
		social.MakeEdgeKey(1, 9): {Value: 80, Compatibility: 0.9},
	}
	require.NoError(t, db.SaveEdges(edges))

	graph := social.NewGraph(config.Default().Social)
	graph.Register(sampleAgent(1))
	graph.Register(sampleAgent(2))

	require.NoError(t, db.LoadEdges(graph))

	restored := graph.Edges()
	require.Contains(t, restored, social.MakeEdgeKey(1, 2))
	e := restored[social.MakeEdgeKey(1, 2)]
	assert.Equal(t, 48.0, e.Value)
	assert.Equal(t, 0.6, e.Compatibility)
	assert.Equal(t, 2.0, e.Grudge)

	assert.NotContains(t, restored, social.MakeEdgeKey(1, 9), "edge to unknown agent is dropped")
}

func TestFavorsRoundTripRestoresOnlyValid(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveFavors([]*favor.Favor{
		{ID: "keep", AgentID: 1, Type: favor.Repair, Status: favor.StatusAccepted,
			Progress: 40, TimeRemaining: 3000, Reward: favor.Reward{Money: 220, RelationshipDelta: 15}},
		{ID: "orphan", AgentID: 9, Type: favor.Delivery, Status: favor.StatusAccepted},
	}))

	cfg := config.Default()
	graph := social.NewGraph(cfg.Social)
	a := sampleAgent(1)
	graph.Register(a)
	lc := favor.NewLifecycle(cfg.Favors, graph, entropy.NewSource(1))

	restored, err := db.LoadFavors(lc)
	require.NoError(t, err)
	assert.Equal(t, 1, restored)

	f, ok := lc.ActiveFavor(1)
	require.True(t, ok)
	assert.Equal(t, "keep", f.ID)
	assert.Equal(t, favor.Repair, f.Type)
	assert.Equal(t, favor.StatusAccepted, f.Status)
	assert.Equal(t, 40.0, f.Progress)
	assert.Equal(t, 3000.0, f.TimeRemaining)
	assert.Equal(t, 220, f.Reward.Money)
	assert.Equal(t, "keep", a.ActiveFavorID)
}

func TestEventsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveEvents([]engine.Event{
		{Tick: 10, Description: "repair favor for Greta Holst ended: completed", Category: "favor"},
		{Tick: 20, Description: "Greta Holst has a gift waiting", Category: "gift"},
	}))

	events, err := db.LoadEvents()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(10), events[0].Tick)
	assert.Equal(t, "gift", events[1].Category)
}

func TestMetaLookups(t *testing.T) {
	db := openTestDB(t)

	assert.Zero(t, db.LoadTick())
	assert.Zero(t, db.LoadWallet())

	require.NoError(t, db.SaveMeta("last_tick", "12345"))
	require.NoError(t, db.SaveMeta("wallet", "990"))

	assert.Equal(t, uint64(12345), db.LoadTick())
	assert.Equal(t, 990, db.LoadWallet())

	// Overwrite keeps a single row per key.
	require.NoError(t, db.SaveMeta("wallet", "1000"))
	assert.Equal(t, 1000, db.LoadWallet())
}

func TestHasVillageState(t *testing.T) {
	db := openTestDB(t)
	assert.False(t, db.HasVillageState())

	require.NoError(t, db.SaveAgents([]*npc.Agent{sampleAgent(1)}))
	assert.True(t, db.HasVillageState())
}

func TestSaveWorldState(t *testing.T) {
	db := openTestDB(t)

	cfg := config.Default()
	clk, err := clock.New(clock.NewWeatherSource(cfg.Seed, nil))
	require.NoError(t, err)

	sim := engine.NewSimulation(cfg, clk, []*npc.Agent{sampleAgent(1), sampleAgent(2)}, nil)
	sim.LastTick = 777
	sim.Wallet = 450
	sim.Graph.EnsureEdge(1, 2)
	sim.EmitEvent(engine.Event{Tick: 777, Description: "test event", Category: "state"})

	require.NoError(t, db.SaveWorldState(sim))

	assert.Equal(t, uint64(777), db.LoadTick())
	assert.Equal(t, 450, db.LoadWallet())
	assert.True(t, db.HasVillageState())

	agents, err := db.LoadAgents()
	require.NoError(t, err)
	assert.Len(t, agents, 2)

	events, err := db.LoadEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
