// Behavior state machine. Each tick combines needs urgency, the scheduler's
// desired activity, and Markov fallback sampling into the next state and a
// movement target. Explicit need overrides beat the schedule; the schedule
// beats the fallback.
package npc

import (
	"log/slog"

	"github.com/talgya/villagers/internal/entropy"
)

// Machine evaluates state transitions for agents. One Machine serves the
// whole population; all per-agent state lives on the Agent.
type Machine struct {
	UrgencyThreshold float64 // need level below which overrides fire
	StuckEpsilon     float64 // displacement considered "not moving"
	StuckTimeout     float64 // sim-seconds of no movement before forcing idle
	Matrix           *Matrix
}

// NewMachine creates a state machine with the default Markov matrix.
func NewMachine(urgencyThreshold, stuckEpsilon, stuckTimeoutSecs float64) *Machine {
	return &Machine{
		UrgencyThreshold: urgencyThreshold,
		StuckEpsilon:     stuckEpsilon,
		StuckTimeout:     stuckTimeoutSecs,
		Matrix:           DefaultMatrix(),
	}
}

// nearDist is how close an agent must be to a point to count as "there".
const nearDist = 2.0

// workCommuteDist is the workplace distance beyond which agents drive
// rather than walk to work.
const workCommuteDist = 120.0

// Step advances the agent's behavior state for this tick. Returns true when
// the state changed. The desired activity must come from the scheduler this
// tick and needs must already be advanced.
func (m *Machine) Step(a *Agent, elapsedSeconds float64, desired Activity, rng *entropy.Source) bool {
	a.DesiredActivity = desired
	prev := a.State

	// A movement state without a target cannot make progress; degrade to
	// idle rather than error.
	if hasMovementTarget(a) && a.Target == nil {
		slog.Debug("movement state with no target, degrading to idle",
			"agent", a.ID, "state", a.State)
		m.forceIdle(a)
		return prev != a.State
	}

	// Stuck detection runs only for states with an active movement target.
	// Stationary states (working, resting, socializing, idle) are exempt:
	// zero displacement is their normal condition.
	if hasMovementTarget(a) {
		if m.stuckCheck(a, elapsedSeconds) {
			slog.Debug("stuck timeout, forcing idle", "agent", a.ID, "state", prev)
			m.forceIdle(a)
			return prev != a.State
		}
	} else {
		a.StuckAnchor = a.Position
		a.StuckSeconds = 0
	}

	next, confident := m.chooseState(a, desired)
	if !confident {
		next = m.Matrix.Sample(a.State, rng.Float())
	}

	m.applyState(a, next, rng)
	return prev != a.State
}

// chooseState resolves urgency override (strongest) then the schedule.
// The second return is false when neither yields a confident choice and the
// Markov fallback should decide.
func (m *Machine) chooseState(a *Agent, desired Activity) (State, bool) {
	if s, ok := m.urgentState(a); ok {
		return s, true
	}

	// Leisure is the schedule declining to recommend anything; the
	// fallback adds idle variation. Every other activity pins the state,
	// so a scheduled commute cannot be sampled away mid-walk.
	if desired == ActivityLeisure {
		return a.State, false
	}
	return m.stateForActivity(a, desired), true
}

// urgentState returns the corrective state for the most deficient need
// below the critical threshold, if any.
func (m *Machine) urgentState(a *Agent) (State, bool) {
	type needCase struct {
		value float64
		state State
	}
	cases := []needCase{
		{a.Needs.Energy, StateResting},
		{a.Needs.Hunger, StateResting}, // eat at home
		{a.Needs.Social, StateSocializing},
		{a.Needs.WorkSatisfaction, StateWorking},
	}

	best := -1
	for i, c := range cases {
		if c.value >= m.UrgencyThreshold {
			continue
		}
		if best == -1 || c.value < cases[best].value {
			best = i
		}
	}
	if best == -1 {
		return StateIdle, false
	}
	return cases[best].state, true
}

// stateForActivity maps the scheduler's advisory tag to a concrete state,
// taking the agent's position into account.
func (m *Machine) stateForActivity(a *Agent, desired Activity) State {
	switch desired {
	case ActivitySleep, ActivityMeal:
		if a.Position.DistTo(a.Home) > nearDist {
			return StateWalking
		}
		return StateResting
	case ActivityWork:
		d := a.Position.DistTo(a.Workplace)
		switch {
		case d > workCommuteDist:
			return StateDriving
		case d > nearDist:
			return StateWalking
		default:
			return StateWorking
		}
	case ActivitySocial:
		return StateSocializing
	case ActivityReturnHome:
		if a.Position.DistTo(a.Home) > nearDist {
			return StateWalking
		}
		return StateResting
	default: // leisure
		return StateIdle
	}
}

// applyState commits the transition: sets the target for the new state and
// manages the work-pattern session.
func (m *Machine) applyState(a *Agent, next State, rng *entropy.Source) {
	entering := next != a.State
	a.State = next

	// Work pattern persists for the whole session; ends with it.
	if next == StateWorking {
		if a.FieldAssigned && a.WorkPattern == PatternNone {
			a.WorkPattern = WorkPattern(1 + rng.Intn(4))
		}
	} else if a.WorkPattern != PatternNone {
		a.WorkPattern = PatternNone
	}

	// Keep the existing target when staying in the same state, so
	// wander-style targets are not re-rolled every tick.
	if !entering && a.Target != nil {
		return
	}

	switch next {
	case StateWalking:
		// Walking serves whichever anchor the schedule points at.
		switch a.DesiredActivity {
		case ActivityWork:
			t := a.Workplace
			a.Target = &t
		case ActivitySocial:
			t := a.Meeting
			a.Target = &t
		default:
			t := a.Home
			a.Target = &t
		}
	case StateDriving, StateWorking:
		t := a.Workplace
		a.Target = &t
	case StateTraveling, StateSocializing:
		t := a.Meeting
		a.Target = &t
	case StateResting:
		t := a.Home
		a.Target = &t
	case StateGathering:
		// Wander to a nearby spot; the spatial layer resolves the route.
		t := Point{
			X: a.Position.X + rng.Range(-30, 30),
			Y: a.Position.Y + rng.Range(-30, 30),
		}
		a.Target = &t
	default:
		a.Target = nil
	}

	if entering {
		a.StuckAnchor = a.Position
		a.StuckSeconds = 0
	}
}

// stuckCheck accumulates the no-progress window and reports whether the
// timeout has been exceeded.
func (m *Machine) stuckCheck(a *Agent, elapsedSeconds float64) bool {
	if a.Position.DistTo(a.StuckAnchor) >= m.StuckEpsilon {
		a.StuckAnchor = a.Position
		a.StuckSeconds = 0
		return false
	}
	a.StuckSeconds += elapsedSeconds
	return a.StuckSeconds > m.StuckTimeout
}

// forceIdle clears the target and drops the agent back to idle. The only
// non-voluntary interruption in the machine.
func (m *Machine) forceIdle(a *Agent) {
	a.State = StateIdle
	a.Target = nil
	a.WorkPattern = PatternNone
	a.StuckAnchor = a.Position
	a.StuckSeconds = 0
}

// hasMovementTarget reports whether the agent is in a state where lack of
// displacement indicates a problem: walking, traveling, or driving. Working,
// resting, socializing, and idle are stationary states; an agent laboring in
// place at the workplace is making progress even though it never moves.
func hasMovementTarget(a *Agent) bool {
	switch a.State {
	case StateWalking, StateTraveling, StateDriving:
		return true
	default:
		return false
	}
}
