// Package npc provides the agent data model, needs system, daily scheduler,
// and the per-tick behavior state machine.
package npc

import "math"

// AgentID is a unique identifier for an agent, stable for process lifetime.
type AgentID uint64

// Personality is an agent's immutable temperament, fixed at spawn.
type Personality uint8

const (
	Hardworking Personality = iota
	Lazy
	Social
	Generous
	Grumpy
)

// NumPersonalities is the size of the personality set.
const NumPersonalities = 5

// String returns a human-readable personality name.
func (p Personality) String() string {
	switch p {
	case Hardworking:
		return "hardworking"
	case Lazy:
		return "lazy"
	case Social:
		return "social"
	case Generous:
		return "generous"
	case Grumpy:
		return "grumpy"
	default:
		return "unknown"
	}
}

// Mood is derived from needs every tick, never stored as independent truth.
type Mood uint8

const (
	MoodHappy Mood = iota
	MoodNeutral
	MoodStressed
	MoodTired
)

// String returns a human-readable mood name.
func (m Mood) String() string {
	switch m {
	case MoodHappy:
		return "happy"
	case MoodNeutral:
		return "neutral"
	case MoodStressed:
		return "stressed"
	case MoodTired:
		return "tired"
	default:
		return "unknown"
	}
}

// State is the agent's current behavior state. Initial state is idle; there
// is no terminal state — agents cycle indefinitely.
type State uint8

const (
	StateIdle State = iota
	StateWalking
	StateWorking
	StateDriving
	StateResting
	StateSocializing
	StateTraveling
	StateGathering
)

// NumStates is the size of the closed state set.
const NumStates = 8

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWalking:
		return "walking"
	case StateWorking:
		return "working"
	case StateDriving:
		return "driving"
	case StateResting:
		return "resting"
	case StateSocializing:
		return "socializing"
	case StateTraveling:
		return "traveling"
	case StateGathering:
		return "gathering"
	default:
		return "unknown"
	}
}

// Valid reports whether s is a member of the declared state set.
func (s State) Valid() bool { return s < NumStates }

// Activity is the scheduler's advisory recommendation — input to the state
// machine, never authoritative.
type Activity uint8

const (
	ActivitySleep Activity = iota
	ActivityMeal
	ActivityWork
	ActivityLeisure
	ActivitySocial
	ActivityReturnHome
)

// String returns a human-readable activity name.
func (a Activity) String() string {
	switch a {
	case ActivitySleep:
		return "sleep"
	case ActivityMeal:
		return "meal"
	case ActivityWork:
		return "work"
	case ActivityLeisure:
		return "leisure"
	case ActivitySocial:
		return "social"
	case ActivityReturnHome:
		return "return_home"
	default:
		return "unknown"
	}
}

// WorkPattern is the nested movement pattern used during a work session.
// Chosen once when the session starts and held until the session ends.
type WorkPattern uint8

const (
	PatternNone WorkPattern = iota
	PatternRows
	PatternSpiral
	PatternPerimeter
	PatternSpotCheck
)

// String returns a human-readable pattern name.
func (p WorkPattern) String() string {
	switch p {
	case PatternRows:
		return "rows"
	case PatternSpiral:
		return "spiral"
	case PatternPerimeter:
		return "perimeter"
	case PatternSpotCheck:
		return "spot_check"
	default:
		return "none"
	}
}

// Point is an opaque spatial handle. The core reads and writes points but
// never interprets them geometrically beyond straight-line distance.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistTo returns the straight-line distance to another point.
func (p Point) DistTo(o Point) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Needs is the agent's internal drive vector. Higher means better satisfied;
// every value is clamped to [0,100] after every mutation.
type Needs struct {
	Energy           float64 `json:"energy"`
	Social           float64 `json:"social"`
	Hunger           float64 `json:"hunger"` // Satiety: 0 starving, 100 full
	WorkSatisfaction float64 `json:"work_satisfaction"`
}

// Clamp bounds every need to [0,100].
func (n *Needs) Clamp() {
	n.Energy = clamp(n.Energy)
	n.Social = clamp(n.Social)
	n.Hunger = clamp(n.Hunger)
	n.WorkSatisfaction = clamp(n.WorkSatisfaction)
}

// Min returns the lowest need value.
func (n *Needs) Min() float64 {
	lo := n.Energy
	if n.Social < lo {
		lo = n.Social
	}
	if n.Hunger < lo {
		lo = n.Hunger
	}
	if n.WorkSatisfaction < lo {
		lo = n.WorkSatisfaction
	}
	return lo
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Agent is one simulated villager.
type Agent struct {
	ID          AgentID     `json:"id"`
	Name        string      `json:"name"`
	Personality Personality `json:"personality"`

	Needs Needs `json:"needs"`

	// Relationship to the human actor, [0,100]. Mutated only through the
	// social graph.
	RelationshipToActor float64 `json:"relationship_to_actor"`

	// Grudge magnitude still to be paid down by positive interactions.
	// While positive, incoming positive deltas are dampened.
	Grudge float64 `json:"grudge"`

	State           State    `json:"state"`
	DesiredActivity Activity `json:"desired_activity"`

	Position Point  `json:"position"`
	Target   *Point `json:"target,omitempty"`

	// Fixed locations assigned at spawn.
	Home      Point `json:"home"`
	Workplace Point `json:"workplace"`
	Meeting   Point `json:"meeting"`

	// FieldAssigned marks agents with a work field; only they run the
	// nested movement patterns while working.
	FieldAssigned bool        `json:"field_assigned"`
	WorkPattern   WorkPattern `json:"work_pattern"`

	// Favor bookkeeping. ActiveFavorID is a weak back-reference for lookup
	// only; the favor lifecycle owns the records.
	FavorCooldownRemaining float64 `json:"favor_cooldown_remaining"` // sim-seconds
	ActiveFavorID          string  `json:"active_favor_id,omitempty"`

	Memory              MemoryRing `json:"memory"`
	LastInteractionTick uint64     `json:"last_interaction_tick"`

	// Stuck-detection window, managed by the state machine.
	StuckAnchor  Point   `json:"-"`
	StuckSeconds float64 `json:"-"`
}

// ActionLabel is a short human-readable description of what the agent is
// doing, shown in rosters and snapshots.
func (a *Agent) ActionLabel() string {
	switch a.State {
	case StateWorking:
		if a.FieldAssigned && a.WorkPattern != PatternNone {
			return "working the field (" + a.WorkPattern.String() + ")"
		}
		return "working"
	case StateResting:
		return "resting at home"
	case StateSocializing:
		return "chatting"
	case StateGathering:
		return "gathering"
	case StateDriving:
		return "driving"
	case StateWalking, StateTraveling:
		return "on the move"
	default:
		return "idling"
	}
}
