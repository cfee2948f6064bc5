// Favor lifecycle management: generation trials gated by relationship tier
// and cooldown, status transitions, per-type completion strategies, and
// reward application.
package favor

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/villagers/internal/config"
	"github.com/talgya/villagers/internal/entropy"
	"github.com/talgya/villagers/internal/npc"
	"github.com/talgya/villagers/internal/social"
)

// Rejection signals across the core boundary.
var (
	ErrUnknownFavor  = errors.New("unknown favor")
	ErrBadTransition = errors.New("invalid status transition")
	ErrNotEligible   = errors.New("not eligible")
	ErrUnknownType   = errors.New("unknown favor type")
)

// Strategy judges completion for a favor type each tick by reading the
// requesting agent's current state. AdvanceProgress returns the progress
// delta earned over the elapsed time.
type Strategy interface {
	AdvanceProgress(f *Favor, a *npc.Agent, elapsedSeconds float64) float64
}

// workStrategy: progress accrues while the requesting agent is working —
// the player's help shows up as the agent's field task moving.
type workStrategy struct{ ratePerHour float64 }

func (s workStrategy) AdvanceProgress(f *Favor, a *npc.Agent, elapsedSeconds float64) float64 {
	if a.State != npc.StateWorking {
		return 0
	}
	return s.ratePerHour * elapsedSeconds / 3600
}

// escortStrategy: progress accrues while the agent is en route with the
// goods (driving or traveling).
type escortStrategy struct{ ratePerHour float64 }

func (s escortStrategy) AdvanceProgress(f *Favor, a *npc.Agent, elapsedSeconds float64) float64 {
	switch a.State {
	case npc.StateDriving, npc.StateTraveling, npc.StateWalking:
		return s.ratePerHour * elapsedSeconds / 3600
	default:
		return 0
	}
}

// manualStrategy is the generic fallback for types without wired detection:
// progress only moves through explicit ReportProgress calls from the
// interaction layer, completing at the threshold.
type manualStrategy struct{}

func (manualStrategy) AdvanceProgress(*Favor, *npc.Agent, float64) float64 { return 0 }

// defaultStrategies wires detection for the types that have it; the rest
// fall back to the generic progress-threshold rule.
func defaultStrategies() map[Type]Strategy {
	m := make(map[Type]Strategy, NumTypes)
	m[HarvestHelp] = workStrategy{ratePerHour: 80}
	m[Repair] = workStrategy{ratePerHour: 60}
	m[GoodsTransport] = escortStrategy{ratePerHour: 90}
	m[Delivery] = escortStrategy{ratePerHour: 120}
	generic := manualStrategy{}
	m[EquipmentLoan] = generic
	m[MoneyLoan] = generic
	m[PropertyWatch] = generic
	return m
}

// Resolved reports a favor that reached a terminal status this tick,
// for the orchestrator to credit rewards and broadcast.
type Resolved struct {
	Favor  Favor
	Earned int // money credited (completions only)
}

// Lifecycle owns every favor record. Single simulation goroutine; no locks.
type Lifecycle struct {
	cfg        config.FavorConfig
	graph      *social.Graph
	rng        *entropy.Source
	strategies map[Type]Strategy

	// active holds at most one non-terminal favor per agent — the hard
	// concurrency invariant of the workflow.
	active map[npc.AgentID]*Favor

	// sinceTrial accumulates sim-seconds toward the next generation trial.
	sinceTrial map[npc.AgentID]float64

	resolved []Resolved
}

// NewLifecycle creates a favor lifecycle with default completion strategies.
func NewLifecycle(cfg config.FavorConfig, graph *social.Graph, rng *entropy.Source) *Lifecycle {
	return &Lifecycle{
		cfg:        cfg,
		graph:      graph,
		rng:        rng,
		strategies: defaultStrategies(),
		active:     make(map[npc.AgentID]*Favor),
		sinceTrial: make(map[npc.AgentID]float64),
	}
}

// SetStrategy overrides the completion strategy for a type.
func (l *Lifecycle) SetStrategy(t Type, s Strategy) {
	if t.Valid() {
		l.strategies[t] = s
	}
}

// Tick advances one agent's favor bookkeeping: cooldown, countdown and
// expiry, completion detection, then the generation trial. Called by the
// orchestrator after the state machine has run, so gating reads this tick's
// relationship value, not a stale one.
func (l *Lifecycle) Tick(a *npc.Agent, elapsedSeconds float64, tick uint64) {
	if a.FavorCooldownRemaining > 0 {
		a.FavorCooldownRemaining -= elapsedSeconds
		if a.FavorCooldownRemaining < 0 {
			a.FavorCooldownRemaining = 0
		}
	}

	if f, ok := l.active[a.ID]; ok {
		l.advance(f, a, elapsedSeconds, tick)
		return
	}

	l.generationTrial(a, elapsedSeconds, tick)
}

func (l *Lifecycle) advance(f *Favor, a *npc.Agent, elapsedSeconds float64, tick uint64) {
	if f.Status != StatusAccepted && f.Status != StatusInProgress {
		return // requested favors neither count down nor progress
	}

	f.TimeRemaining -= elapsedSeconds
	if f.TimeRemaining <= 0 {
		f.TimeRemaining = 0
		l.finish(f, a, StatusExpired, tick)
		return
	}

	delta := l.strategies[f.Type].AdvanceProgress(f, a, elapsedSeconds)
	if delta > 0 {
		l.bumpProgress(f, a, delta, tick)
	}
}

// bumpProgress applies a progress delta, promoting accepted → in_progress
// on first movement and completing at 100.
func (l *Lifecycle) bumpProgress(f *Favor, a *npc.Agent, delta float64, tick uint64) {
	if f.Status == StatusAccepted {
		f.Status = StatusInProgress
	}
	f.Progress += delta
	if f.Progress >= 100 {
		f.Progress = 100
		l.finish(f, a, StatusCompleted, tick)
	}
}

// generationTrial rolls for a new favor request. Hard gates: relationship
// tier at least Neutral, no other active favor, no cooldown. Exhaustion of
// any gate is a silent rejection, not an error.
func (l *Lifecycle) generationTrial(a *npc.Agent, elapsedSeconds float64, tick uint64) {
	l.sinceTrial[a.ID] += elapsedSeconds
	if l.sinceTrial[a.ID] < l.cfg.GenerationIntervalSecs {
		return
	}
	l.sinceTrial[a.ID] = 0

	if a.RelationshipToActor < l.cfg.TierGate {
		return
	}
	if a.FavorCooldownRemaining > 0 {
		return
	}
	if _, busy := l.active[a.ID]; busy {
		return
	}
	if l.rng.Float() >= l.cfg.GenerationChance {
		return
	}

	t := Type(l.rng.Intn(NumTypes))
	f := &Favor{
		ID:            uuid.NewString(),
		AgentID:       a.ID,
		Type:          t,
		Status:        StatusRequested,
		TimeRemaining: l.cfg.DurationSecs,
		Reward: Reward{
			Money:             moneyRewards[t],
			RelationshipDelta: l.cfg.CompletionDelta,
		},
	}
	l.active[a.ID] = f
	a.ActiveFavorID = f.ID

	slog.Info("favor requested", "agent", a.ID, "name", a.Name, "type", t, "favor", f.ID)
}

// Accept moves a requested favor into accepted and starts its countdown.
func (l *Lifecycle) Accept(favorID string) error {
	f, a, err := l.lookup(favorID)
	if err != nil {
		return err
	}
	if f.Status != StatusRequested {
		return ErrBadTransition
	}
	f.Status = StatusAccepted
	f.TimeRemaining = l.cfg.DurationSecs
	slog.Info("favor accepted", "agent", a.ID, "favor", f.ID, "type", f.Type)
	return nil
}

// ReportProgress applies externally detected progress (the interaction
// layer's completion signal for types without wired detection).
func (l *Lifecycle) ReportProgress(favorID string, delta float64, tick uint64) error {
	f, a, err := l.lookup(favorID)
	if err != nil {
		return err
	}
	if f.Status != StatusAccepted && f.Status != StatusInProgress {
		return ErrBadTransition
	}
	if delta < 0 {
		return ErrNotEligible
	}
	l.bumpProgress(f, a, delta, tick)
	return nil
}

// Complete finishes a favor if its progress has reached the threshold.
func (l *Lifecycle) Complete(favorID string, tick uint64) error {
	f, a, err := l.lookup(favorID)
	if err != nil {
		return err
	}
	if f.Status != StatusAccepted && f.Status != StatusInProgress {
		return ErrBadTransition
	}
	if f.Progress < 100 {
		return ErrNotEligible
	}
	l.finish(f, a, StatusCompleted, tick)
	return nil
}

// Abandon is the player-initiated cancel: allowed any time while accepted
// or in progress, immediate, no queuing.
func (l *Lifecycle) Abandon(favorID string, tick uint64) error {
	f, a, err := l.lookup(favorID)
	if err != nil {
		return err
	}
	if f.Status != StatusAccepted && f.Status != StatusInProgress {
		return ErrBadTransition
	}
	l.finish(f, a, StatusAbandoned, tick)
	return nil
}

// finish moves a favor to a terminal status, applies relationship and
// cooldown effects, and queues it for the orchestrator to report.
func (l *Lifecycle) finish(f *Favor, a *npc.Agent, terminal Status, tick uint64) {
	f.Status = terminal
	a.FavorCooldownRemaining = l.cfg.CooldownSecs
	a.ActiveFavorID = ""
	delete(l.active, a.ID)

	res := Resolved{Favor: *f}
	switch terminal {
	case StatusCompleted:
		res.Earned = f.Reward.Money
		if _, err := l.graph.UpdateRelationship(a.ID, f.Reward.RelationshipDelta, social.ReasonFavorCompleted, tick); err != nil {
			slog.Warn("favor reward relationship update failed", "agent", a.ID, "error", err)
		}
	case StatusExpired, StatusFailed:
		if _, err := l.graph.UpdateRelationship(a.ID, l.cfg.FailureDelta, social.ReasonFavorFailed, tick); err != nil {
			slog.Warn("favor failure relationship update failed", "agent", a.ID, "error", err)
		}
	case StatusAbandoned:
		if _, err := l.graph.UpdateRelationship(a.ID, l.cfg.FailureDelta, social.ReasonFavorAbandoned, tick); err != nil {
			slog.Warn("favor abandon relationship update failed", "agent", a.ID, "error", err)
		}
	}
	l.resolved = append(l.resolved, res)

	slog.Info("favor resolved", "agent", a.ID, "favor", f.ID, "type", f.Type, "status", terminal)
}

// ConsumeResolved drains favors that reached a terminal status since the
// last call. Terminal records are destroyed once reported.
func (l *Lifecycle) ConsumeResolved() []Resolved {
	out := l.resolved
	l.resolved = nil
	return out
}

// ActiveFavor returns the agent's single active favor, if any.
func (l *Lifecycle) ActiveFavor(id npc.AgentID) (*Favor, bool) {
	f, ok := l.active[id]
	return f, ok
}

// ActiveFavors returns all non-terminal favors, for queries and saves.
func (l *Lifecycle) ActiveFavors() []*Favor {
	out := make([]*Favor, 0, len(l.active))
	for _, f := range l.active {
		out = append(out, f)
	}
	return out
}

// Restore reattaches a persisted favor to its agent by stable id. Additive:
// agents not mentioned keep their state; records for unknown agents or with
// invalid data are dropped with a diagnostic.
func (l *Lifecycle) Restore(f Favor) bool {
	a, ok := l.graph.Agent(f.AgentID)
	if !ok {
		slog.Warn("dropping favor for unknown agent", "favor", f.ID, "agent", f.AgentID)
		return false
	}
	if !f.Type.Valid() {
		slog.Warn("dropping favor with unknown type", "favor", f.ID, "type", uint8(f.Type))
		return false
	}
	if f.Status.Terminal() {
		return false // terminal favors are not restored
	}
	if _, busy := l.active[f.AgentID]; busy {
		slog.Warn("dropping duplicate favor for agent", "favor", f.ID, "agent", f.AgentID)
		return false
	}

	stored := f
	l.active[f.AgentID] = &stored
	a.ActiveFavorID = f.ID
	return true
}

func (l *Lifecycle) lookup(favorID string) (*Favor, *npc.Agent, error) {
	for _, f := range l.active {
		if f.ID == favorID {
			if a, ok := l.graph.Agent(f.AgentID); ok {
				return f, a, nil
			}
			return nil, nil, ErrUnknownFavor
		}
	}
	return nil, nil, ErrUnknownFavor
}
