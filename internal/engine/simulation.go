// Simulation ties the behavioral systems together and runs them in the
// fixed per-agent order: needs → scheduler → state machine → favors.
package engine

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/talgya/villagers/internal/clock"
	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/entropy"
	"github.com/talgya/villagers/internal/favor"
	"github.com/talgya/villagers/internal/npc"
	"github.com/talgya/villagers/internal/snapshot"
	"github.com/talgya/villagers/internal/social"
)

// Simulation holds the complete village state and wires systems together.
// It is the sole writer of agent, relationship, and favor state; observers
// only ever see snapshots.
type Simulation struct {
	cfg config.Config

	Clock      *clock.Clock
	Agents     []*npc.Agent
	AgentIndex map[npc.AgentID]*npc.Agent
	Graph      *social.Graph
	Favors     *favor.Lifecycle
	Machine    *npc.Machine

	Events   []Event
	LastTick uint64

	// Wallet accumulates favor payouts to the player.
	Wallet int

	// Observation is the point LOD distances are measured from.
	Observation npc.Point

	rng     *entropy.Source
	giftRNG *entropy.Client

	// pending accumulates sim-seconds for agents skipped by batching/LOD;
	// they receive the full amount on their next processed tick.
	pending map[npc.AgentID]float64
	cursor  int

	// rainSpell counts transitions into rain so each agent's shelter
	// decision holds for the whole front instead of re-rolling per tick.
	rainSpell   uint64
	lastWeather clock.WeatherKind

	// commands queued by the API layer, drained at tick start so all
	// mutation happens on the simulation goroutine.
	commands chan func()

	dirty         bool
	sinceSnapshot float64

	Stats SimStats
}

// SimStats tracks aggregate village statistics.
type SimStats struct {
	Population    int     `json:"population"`
	AvgRelation   float64 `json:"avg_relation"`
	AvgNeedFloor  float64 `json:"avg_need_floor"`
	ActiveFavors  int     `json:"active_favors"`
	PendingGifts  int     `json:"pending_gifts"`
	WalletBalance int     `json:"wallet_balance"`
}

// NewSimulation wires a Simulation from its components.
func NewSimulation(cfg config.Config, clk *clock.Clock, agents []*npc.Agent, giftRNG *entropy.Client) *Simulation {
	index := make(map[npc.AgentID]*npc.Agent, len(agents))
	graph := social.NewGraph(cfg.Social)
	for _, a := range agents {
		index[a.ID] = a
		graph.Register(a)
	}

	rng := entropy.NewSource(cfg.Seed + 100)

	sim := &Simulation{
		cfg:        cfg,
		Clock:      clk,
		Agents:     agents,
		AgentIndex: index,
		Graph:      graph,
		Machine:    npc.NewMachine(cfg.Sim.UrgencyThreshold, cfg.Sim.StuckEpsilon, cfg.Sim.StuckTimeoutSecs),
		rng:        rng,
		giftRNG:    giftRNG,
		pending:    make(map[npc.AgentID]float64, len(agents)),
		commands:   make(chan func(), 64),
	}
	sim.Favors = favor.NewLifecycle(cfg.Favors, graph, rng)
	sim.updateStats()
	return sim
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 { return s.LastTick }

// AddAgent registers a late-spawned agent, respecting the population cap.
func (s *Simulation) AddAgent(a *npc.Agent) error {
	if len(s.Agents) >= s.cfg.MaxAgents {
		return fmt.Errorf("population cap reached (%d)", s.cfg.MaxAgents)
	}
	s.Agents = append(s.Agents, a)
	s.AgentIndex[a.ID] = a
	s.Graph.Register(a)
	return nil
}

// Enqueue schedules a mutation to run on the simulation goroutine at the
// start of the next tick. Used by the API layer for all commands.
func (s *Simulation) Enqueue(cmd func()) {
	select {
	case s.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command")
	}
}

// TickMinute runs every tick. Batching caps work per tick and far agents
// update less often, but skipped agents accumulate elapsed time, so every
// rate × elapsed computation is unaffected by scheduling.
func (s *Simulation) TickMinute(tick uint64) {
	s.LastTick = tick
	s.drainCommands()

	wt := s.Clock.Now(tick)
	s.trackWeather(wt.Weather.Kind)

	for _, a := range s.Agents {
		s.pending[a.ID] += clock.SecondsPerTick
	}

	n := len(s.Agents)
	if n == 0 {
		return
	}

	lodWindow := float64(s.cfg.Sim.LODSkipTicks) * clock.SecondsPerTick
	processed := 0
	for scanned := 0; scanned < n && processed < s.cfg.Sim.BatchSize; scanned++ {
		a := s.Agents[(s.cursor+scanned)%n]

		far := a.Position.DistTo(s.Observation) > s.cfg.Sim.LODRadius
		if far && s.pending[a.ID] < lodWindow {
			continue
		}

		s.processAgent(a, s.pending[a.ID], wt, tick)
		s.pending[a.ID] = 0
		processed++
	}
	s.cursor = (s.cursor + processed) % n

	s.collectResolvedFavors(tick)
	s.sinceSnapshot += clock.SecondsPerTick
}

// trackWeather advances the rain-spell counter on each transition into
// rain. A storm break and the rain after it count as separate spells;
// storms send everyone home regardless, so the fresh draw is harmless.
func (s *Simulation) trackWeather(kind clock.WeatherKind) {
	if kind == clock.WeatherRain && s.lastWeather != clock.WeatherRain {
		s.rainSpell++
	}
	s.lastWeather = kind
}

// rainRoll derives a uniform [0,1) value fixed for one agent across one
// rain spell.
func (s *Simulation) rainRoll(id npc.AgentID) float64 {
	h := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(id))
	binary.LittleEndian.PutUint64(buf[8:], s.rainSpell)
	h.Write(buf[:])
	return float64(h.Sum64()>>11) / float64(1<<53)
}

// processAgent runs the full pipeline for one agent. A panic here is
// recovered and logged so one agent's bad data cannot block the rest of the
// population.
func (s *Simulation) processAgent(a *npc.Agent, elapsed float64, wt clock.WorldTime, tick uint64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("agent processing panicked", "agent", a.ID, "panic", r)
		}
	}()

	prevState := a.State

	// Order matters: the state machine's urgency override must see
	// already-advanced needs, and favor gating must see this tick's
	// relationship value.
	npc.AdvanceNeeds(a, elapsed)

	// The roll only matters during rain; keying it to the agent and the
	// current spell keeps the shelter decision stable while the rain lasts.
	roll := 1.0
	if wt.Weather.Kind == clock.WeatherRain {
		roll = s.rainRoll(a.ID)
	}
	desired := npc.DesiredActivity(a.Personality, wt, roll)

	s.Machine.Step(a, elapsed, desired, s.rng)

	if a.State == npc.StateSocializing {
		if partner := s.Graph.PartnerFor(a, s.Agents); partner != nil {
			t := partner.Position
			a.Target = &t
			s.Graph.RecordMeeting(a, partner)
		}
	}

	s.moveAgent(a, elapsed)

	s.Graph.Decay(a, tick)
	s.Graph.NPCGiftTrial(a, tick, s.giftRNG)
	s.Favors.Tick(a, elapsed, tick)

	if a.State != prevState {
		s.dirty = true
	}
}

// baseSpeed is units per sim-second before the mood modifier.
const baseSpeed = 1.4

// moveAgent is the stand-in for the spatial collaborator: it advances the
// agent toward its target at mood-modified speed. The core itself only ever
// reads the logical target it set, never an interpolated position mid-tick.
func (s *Simulation) moveAgent(a *npc.Agent, elapsed float64) {
	if a.Target == nil {
		return
	}
	speed := baseSpeed * npc.SpeedModifier(npc.DeriveMood(a))
	step := speed * elapsed

	d := a.Position.DistTo(*a.Target)
	if d <= step {
		a.Position = *a.Target
		return
	}
	frac := step / d
	a.Position.X += (a.Target.X - a.Position.X) * frac
	a.Position.Y += (a.Target.Y - a.Position.Y) * frac
}

// collectResolvedFavors credits rewards and records events for favors that
// hit a terminal status this tick.
func (s *Simulation) collectResolvedFavors(tick uint64) {
	for _, r := range s.Favors.ConsumeResolved() {
		name := ""
		if a, ok := s.AgentIndex[r.Favor.AgentID]; ok {
			name = a.Name
		}
		s.Wallet += r.Earned
		s.EmitEvent(Event{
			Tick:        tick,
			Description: fmt.Sprintf("%s favor for %s ended: %s", r.Favor.Type, name, r.Favor.Status),
			Category:    "favor",
		})
		s.dirty = true
	}
}

// TickHour runs every sim-hour: passive NPC-NPC drift.
func (s *Simulation) TickHour(tick uint64) {
	s.Graph.DriftEdges(clock.TicksPerHour * clock.SecondsPerTick)
	s.seedEdges()
}

// seedEdges makes sure near neighbors have an edge to drift on, so
// friendships and rivalries can emerge without an explicit meeting.
func (s *Simulation) seedEdges() {
	for i, a := range s.Agents {
		for _, b := range s.Agents[i+1:] {
			if a.Position.DistTo(b.Position) <= s.cfg.Social.InteractionRange {
				s.Graph.EnsureEdge(a.ID, b.ID)
			}
		}
	}
}

// TickDay runs every sim-day: statistics and the daily report.
func (s *Simulation) TickDay(tick uint64) {
	s.updateStats()

	slog.Info("daily report",
		"tick", tick,
		"time", clock.SimTime(tick),
		"population", s.Stats.Population,
		"avg_relation", fmt.Sprintf("%.1f", s.Stats.AvgRelation),
		"avg_need_floor", fmt.Sprintf("%.1f", s.Stats.AvgNeedFloor),
		"active_favors", s.Stats.ActiveFavors,
		"pending_gifts", s.Stats.PendingGifts,
		"wallet", s.Stats.WalletBalance,
	)
}

func (s *Simulation) drainCommands() {
	for {
		select {
		case cmd := <-s.commands:
			cmd()
		default:
			return
		}
	}
}

func (s *Simulation) updateStats() {
	totalRel := 0.0
	totalFloor := 0.0
	for _, a := range s.Agents {
		totalRel += a.RelationshipToActor
		totalFloor += a.Needs.Min()
	}
	n := len(s.Agents)
	s.Stats = SimStats{
		Population:    n,
		ActiveFavors:  len(s.Favors.ActiveFavors()),
		PendingGifts:  len(s.Graph.PendingGifts()),
		WalletBalance: s.Wallet,
	}
	if n > 0 {
		s.Stats.AvgRelation = totalRel / float64(n)
		s.Stats.AvgNeedFloor = totalFloor / float64(n)
	}
}

// CollectSnapshot builds the observer projection of the current state.
func (s *Simulation) CollectSnapshot(dirty bool) snapshot.Frame {
	frame := snapshot.Frame{
		Tick:    s.LastTick,
		SimTime: clock.SimTime(s.LastTick),
		Dirty:   dirty,
		Agents:  make([]snapshot.AgentProjection, 0, len(s.Agents)),
	}
	for _, a := range s.Agents {
		frame.Agents = append(frame.Agents, snapshot.AgentProjection{
			ID:           a.ID,
			Name:         a.Name,
			Position:     a.Position,
			State:        a.State.String(),
			Action:       a.ActionLabel(),
			Mood:         npc.DeriveMood(a).String(),
			Relationship: a.RelationshipToActor,
			TierName:     social.TierFor(a.RelationshipToActor).String(),
		})
	}
	return frame
}

// SnapshotDue reports whether a broadcast should go out now: either the
// periodic interval elapsed or a mutation was flagged dirty. Calling it
// consumes both conditions.
func (s *Simulation) SnapshotDue() (periodic, dirty bool) {
	if s.sinceSnapshot >= s.cfg.Snapshot.IntervalSecs {
		s.sinceSnapshot = 0
		periodic = true
	}
	if s.dirty {
		s.dirty = false
		dirty = true
	}
	return periodic, dirty
}
