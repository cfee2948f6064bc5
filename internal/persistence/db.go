// Package persistence provides SQLite-based village state storage.
// Saves are full-replace per table; restores are additive toward the live
// simulation (records for missing agents are dropped with a diagnostic).
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/villagers/internal/engine"
	"github.com/talgya/villagers/internal/favor"
	"github.com/talgya/villagers/internal/npc"
	"github.com/talgya/villagers/internal/social"
)

// DB wraps a SQLite connection for village state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		personality INTEGER NOT NULL,
		relationship REAL NOT NULL,
		grudge REAL NOT NULL,
		state INTEGER NOT NULL,
		pos_x REAL NOT NULL,
		pos_y REAL NOT NULL,
		home_x REAL NOT NULL,
		home_y REAL NOT NULL,
		work_x REAL NOT NULL,
		work_y REAL NOT NULL,
		meet_x REAL NOT NULL,
		meet_y REAL NOT NULL,
		field_assigned INTEGER NOT NULL,
		favor_cooldown REAL NOT NULL,
		last_interaction_tick INTEGER NOT NULL,
		needs_json TEXT NOT NULL,
		memory_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS edges (
		agent_a INTEGER NOT NULL,
		agent_b INTEGER NOT NULL,
		value REAL NOT NULL,
		compatibility REAL NOT NULL,
		grudge REAL NOT NULL,
		PRIMARY KEY (agent_a, agent_b)
	);

	CREATE TABLE IF NOT EXISTS favors (
		id TEXT PRIMARY KEY,
		agent_id INTEGER NOT NULL,
		type INTEGER NOT NULL,
		status INTEGER NOT NULL,
		progress REAL NOT NULL,
		time_remaining REAL NOT NULL,
		reward_money INTEGER NOT NULL,
		reward_relationship REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS village_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(tick);
	CREATE INDEX IF NOT EXISTS idx_favors_agent ON favors(agent_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveAgents writes all agents to the database (full replace).
func (db *DB) SaveAgents(agents []*npc.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(id, name, personality, relationship, grudge, state,
		 pos_x, pos_y, home_x, home_y, work_x, work_y, meet_x, meet_y,
		 field_assigned, favor_cooldown, last_interaction_tick,
		 needs_json, memory_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range agents {
		needsJSON, _ := json.Marshal(a.Needs)
		memoryJSON, _ := json.Marshal(a.Memory)

		fieldAssigned := 0
		if a.FieldAssigned {
			fieldAssigned = 1
		}

		_, err := stmt.Exec(
			a.ID, a.Name, a.Personality, a.RelationshipToActor, a.Grudge, a.State,
			a.Position.X, a.Position.Y, a.Home.X, a.Home.Y,
			a.Workplace.X, a.Workplace.Y, a.Meeting.X, a.Meeting.Y,
			fieldAssigned, a.FavorCooldownRemaining, a.LastInteractionTick,
			string(needsJSON), string(memoryJSON),
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// LoadAgents reads all agents from the database. Mood is never stored —
// it is derived from needs on demand.
func (db *DB) LoadAgents() ([]*npc.Agent, error) {
	type agentRow struct {
		ID                  uint64  `db:"id"`
		Name                string  `db:"name"`
		Personality         uint8   `db:"personality"`
		Relationship        float64 `db:"relationship"`
		Grudge              float64 `db:"grudge"`
		State               uint8   `db:"state"`
		PosX                float64 `db:"pos_x"`
		PosY                float64 `db:"pos_y"`
		HomeX               float64 `db:"home_x"`
		HomeY               float64 `db:"home_y"`
		WorkX               float64 `db:"work_x"`
		WorkY               float64 `db:"work_y"`
		MeetX               float64 `db:"meet_x"`
		MeetY               float64 `db:"meet_y"`
		FieldAssigned       int     `db:"field_assigned"`
		FavorCooldown       float64 `db:"favor_cooldown"`
		LastInteractionTick uint64  `db:"last_interaction_tick"`
		NeedsJSON           string  `db:"needs_json"`
		MemoryJSON          string  `db:"memory_json"`
	}

	var rows []agentRow
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load agents: %w", err)
	}

	agents := make([]*npc.Agent, 0, len(rows))
	for _, r := range rows {
		a := &npc.Agent{
			ID:                     npc.AgentID(r.ID),
			Name:                   r.Name,
			Personality:            npc.Personality(r.Personality),
			RelationshipToActor:    r.Relationship,
			Grudge:                 r.Grudge,
			State:                  npc.State(r.State),
			Position:               npc.Point{X: r.PosX, Y: r.PosY},
			Home:                   npc.Point{X: r.HomeX, Y: r.HomeY},
			Workplace:              npc.Point{X: r.WorkX, Y: r.WorkY},
			Meeting:                npc.Point{X: r.MeetX, Y: r.MeetY},
			FieldAssigned:          r.FieldAssigned != 0,
			FavorCooldownRemaining: r.FavorCooldown,
			LastInteractionTick:    r.LastInteractionTick,
		}
		if !a.State.Valid() {
			slog.Warn("restored agent with invalid state, defaulting to idle", "agent", a.ID, "state", r.State)
			a.State = npc.StateIdle
		}
		if err := json.Unmarshal([]byte(r.NeedsJSON), &a.Needs); err != nil {
			slog.Warn("restored agent with bad needs payload, using defaults", "agent", a.ID, "error", err)
			a.Needs = npc.Needs{Energy: 70, Social: 70, Hunger: 70, WorkSatisfaction: 70}
		}
		a.Needs.Clamp()
		if err := json.Unmarshal([]byte(r.MemoryJSON), &a.Memory); err != nil {
			slog.Warn("restored agent with bad memory payload, starting empty", "agent", a.ID, "error", err)
		}
		a.StuckAnchor = a.Position
		agents = append(agents, a)
	}

	return agents, nil
}

// SaveEdges writes the NPC-NPC edge map (full replace).
func (db *DB) SaveEdges(edges map[social.EdgeKey]*social.Edge) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM edges"); err != nil {
		return err
	}

	for key, e := range edges {
		_, err := tx.Exec(
			"INSERT INTO edges (agent_a, agent_b, value, compatibility, grudge) VALUES (?, ?, ?, ?, ?)",
			key.A, key.B, e.Value, e.Compatibility, e.Grudge,
		)
		if err != nil {
			return fmt.Errorf("insert edge %d-%d: %w", key.A, key.B, err)
		}
	}

	return tx.Commit()
}

// LoadEdges restores NPC-NPC edges into the graph. Edges referencing
// unknown agents are dropped with a diagnostic; load continues.
func (db *DB) LoadEdges(graph *social.Graph) error {
	type edgeRow struct {
		AgentA        uint64  `db:"agent_a"`
		AgentB        uint64  `db:"agent_b"`
		Value         float64 `db:"value"`
		Compatibility float64 `db:"compatibility"`
		Grudge        float64 `db:"grudge"`
	}

	var rows []edgeRow
	if err := db.conn.Select(&rows, "SELECT * FROM edges"); err != nil {
		return fmt.Errorf("load edges: %w", err)
	}

	for _, r := range rows {
		a, b := npc.AgentID(r.AgentA), npc.AgentID(r.AgentB)
		if _, ok := graph.Agent(a); !ok {
			slog.Warn("dropping edge for unknown agent", "agent", a)
			continue
		}
		if _, ok := graph.Agent(b); !ok {
			slog.Warn("dropping edge for unknown agent", "agent", b)
			continue
		}
		graph.RestoreEdge(social.MakeEdgeKey(a, b), social.Edge{
			Value:         r.Value,
			Compatibility: r.Compatibility,
			Grudge:        r.Grudge,
		})
	}

	return nil
}

// SaveFavors writes all active favors (full replace).
func (db *DB) SaveFavors(favors []*favor.Favor) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM favors"); err != nil {
		return err
	}

	for _, f := range favors {
		_, err := tx.Exec(
			`INSERT INTO favors (id, agent_id, type, status, progress, time_remaining, reward_money, reward_relationship)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.AgentID, f.Type, f.Status, f.Progress, f.TimeRemaining,
			f.Reward.Money, f.Reward.RelationshipDelta,
		)
		if err != nil {
			return fmt.Errorf("insert favor %s: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// LoadFavors restores favors into the lifecycle. Restoration is additive:
// it reconstructs each record and re-attaches it to its agent by stable id;
// agents not mentioned are untouched. Invalid records are dropped inside
// Restore with a diagnostic.
func (db *DB) LoadFavors(lc *favor.Lifecycle) (int, error) {
	type favorRow struct {
		ID            string  `db:"id"`
		AgentID       uint64  `db:"agent_id"`
		Type          uint8   `db:"type"`
		Status        uint8   `db:"status"`
		Progress      float64 `db:"progress"`
		TimeRemaining float64 `db:"time_remaining"`
		RewardMoney   int     `db:"reward_money"`
		RewardRel     float64 `db:"reward_relationship"`
	}

	var rows []favorRow
	if err := db.conn.Select(&rows, "SELECT * FROM favors"); err != nil {
		return 0, fmt.Errorf("load favors: %w", err)
	}

	restored := 0
	for _, r := range rows {
		ok := lc.Restore(favor.Favor{
			ID:            r.ID,
			AgentID:       npc.AgentID(r.AgentID),
			Type:          favor.Type(r.Type),
			Status:        favor.Status(r.Status),
			Progress:      r.Progress,
			TimeRemaining: r.TimeRemaining,
			Reward:        favor.Reward{Money: r.RewardMoney, RelationshipDelta: r.RewardRel},
		})
		if ok {
			restored++
		}
	}

	return restored, nil
}

// SaveWorldState writes the complete village state in one pass: agents,
// NPC-NPC edges, active favors, and run metadata.
func (db *DB) SaveWorldState(sim *engine.Simulation) error {
	if err := db.SaveAgents(sim.Agents); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveEdges(sim.Graph.Edges()); err != nil {
		return fmt.Errorf("save edges: %w", err)
	}
	if err := db.SaveFavors(sim.Favors.ActiveFavors()); err != nil {
		return fmt.Errorf("save favors: %w", err)
	}
	if err := db.SaveEvents(sim.RecentEvents(500)); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveMeta("last_tick", strconv.FormatUint(sim.CurrentTick(), 10)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	if err := db.SaveMeta("wallet", strconv.Itoa(sim.Wallet)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}
	return nil
}

// LoadTick returns the last saved tick, or 0 when no save exists.
func (db *DB) LoadTick() uint64 {
	v, err := db.GetMeta("last_tick")
	if err != nil {
		return 0
	}
	tick, _ := strconv.ParseUint(v, 10, 64)
	return tick
}

// LoadWallet returns the saved wallet balance, or 0 when no save exists.
func (db *DB) LoadWallet() int {
	v, err := db.GetMeta("wallet")
	if err != nil {
		return 0
	}
	wallet, _ := strconv.Atoi(v)
	return wallet
}

// SaveEvents writes the recent event log (full replace).
func (db *DB) SaveEvents(events []engine.Event) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return err
	}

	for _, e := range events {
		_, err := tx.Exec(
			"INSERT INTO events (tick, description, category) VALUES (?, ?, ?)",
			e.Tick, e.Description, e.Category,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LoadEvents reads the persisted event log in tick order.
func (db *DB) LoadEvents() ([]engine.Event, error) {
	type eventRow struct {
		ID          int64  `db:"id"`
		Tick        uint64 `db:"tick"`
		Description string `db:"description"`
		Category    string `db:"category"`
	}

	var rows []eventRow
	if err := db.conn.Select(&rows, "SELECT * FROM events ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	events := make([]engine.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, engine.Event{Tick: r.Tick, Description: r.Description, Category: r.Category})
	}
	return events, nil
}

// SaveMeta stores a key-value pair in village metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO village_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM village_meta WHERE key = ?", key)
	return value, err
}

// HasVillageState reports whether a previous save exists.
func (db *DB) HasVillageState() bool {
	var count int
	if err := db.conn.Get(&count, "SELECT COUNT(*) FROM agents"); err != nil {
		return false
	}
	return count > 0
}
