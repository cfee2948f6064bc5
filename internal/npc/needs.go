// Needs model — per-agent internal drives decaying and recovering as
// rate × elapsed time, so batching or skipping ticks cannot change long-run
// behavior.
package npc

// needRates holds decay rates in points per sim-hour. Recovery rates apply
// while the agent is in the corresponding corrective state.
type needRates struct {
	energy, social, hunger, work float64
}

// personalityRates is the personality-specific rate table. Hardworking
// agents lose work satisfaction fastest while idle; social agents bleed
// social need fastest; lazy agents tire slowly.
var personalityRates = [NumPersonalities]needRates{
	Hardworking: {energy: 4.5, social: 2.0, hunger: 5.0, work: 7.0},
	Lazy:        {energy: 2.5, social: 2.5, hunger: 4.5, work: 1.5},
	Social:      {energy: 3.5, social: 6.0, hunger: 4.5, work: 3.0},
	Generous:    {energy: 3.5, social: 3.5, hunger: 4.5, work: 3.5},
	Grumpy:      {energy: 3.5, social: 1.5, hunger: 5.0, work: 3.0},
}

// neutralRates backs unknown personality data instead of erroring.
var neutralRates = needRates{energy: 3.5, social: 3.0, hunger: 4.5, work: 3.0}

// Recovery rates in points per sim-hour while in the corrective state.
const (
	energyRecovery = 12.0 // resting
	socialRecovery = 15.0 // socializing
	hungerRecovery = 25.0 // eating (resting at home)
	workRecovery   = 10.0 // working
)

// ratesFor returns the rate set for a personality, falling back to the
// neutral set on invalid data.
func ratesFor(p Personality) needRates {
	if int(p) < len(personalityRates) {
		return personalityRates[p]
	}
	return neutralRates
}

// AdvanceNeeds mutates needs in place for elapsed sim-seconds. Decay is
// personality-driven; the agent's current state determines which need
// recovers instead of decaying.
func AdvanceNeeds(a *Agent, elapsedSeconds float64) {
	hours := elapsedSeconds / 3600
	r := ratesFor(a.Personality)

	// Work satisfaction only erodes while not working; hardworking agents
	// feel it most when idle.
	switch a.State {
	case StateResting:
		a.Needs.Energy += energyRecovery * hours
		// Resting happens at home where meals are; satiety recovers too,
		// slower than sleep restores energy.
		a.Needs.Hunger += hungerRecovery * hours
		a.Needs.Social -= r.social * hours
		a.Needs.WorkSatisfaction -= r.work * 0.5 * hours
	case StateSocializing:
		a.Needs.Social += socialRecovery * hours
		a.Needs.Energy -= r.energy * 0.5 * hours
		a.Needs.Hunger -= r.hunger * hours
		a.Needs.WorkSatisfaction -= r.work * 0.5 * hours
	case StateWorking:
		a.Needs.WorkSatisfaction += workRecovery * hours
		a.Needs.Energy -= r.energy * 1.5 * hours
		a.Needs.Hunger -= r.hunger * 1.5 * hours
		a.Needs.Social -= r.social * hours
	default:
		a.Needs.Energy -= r.energy * hours
		a.Needs.Social -= r.social * hours
		a.Needs.Hunger -= r.hunger * hours
		a.Needs.WorkSatisfaction -= r.work * hours
	}

	a.Needs.Clamp()
}

// DeriveMood recomputes mood from weighted need deficits. Mood is never
// persisted — callers always recompute, so needs and displayed mood cannot
// drift apart.
func DeriveMood(a *Agent) Mood {
	if a.Needs.Energy < 25 {
		return MoodTired
	}

	deficit := 0.35*(100-a.Needs.Hunger) +
		0.30*(100-a.Needs.WorkSatisfaction) +
		0.20*(100-a.Needs.Social) +
		0.15*(100-a.Needs.Energy)

	switch {
	case deficit >= 55:
		return MoodStressed
	case deficit <= 25:
		return MoodHappy
	default:
		return MoodNeutral
	}
}

// SpeedModifier returns the movement-speed multiplier for a mood (±20%).
// Consumed by the spatial collaborator; never stored on the agent.
func SpeedModifier(m Mood) float64 {
	switch m {
	case MoodHappy:
		return 1.2
	case MoodTired:
		return 0.8
	case MoodStressed:
		return 0.9
	default:
		return 1.0
	}
}

// SocialWillingness is a read-only [0,1] signal for the interaction UI:
// how receptive the agent is to a greeting right now.
func SocialWillingness(a *Agent) float64 {
	base := 0.5
	switch a.Personality {
	case Social:
		base = 0.8
	case Generous:
		base = 0.65
	case Grumpy:
		base = 0.25
	case Lazy:
		base = 0.45
	case Hardworking:
		base = 0.4
	}

	switch DeriveMood(a) {
	case MoodHappy:
		base += 0.15
	case MoodStressed:
		base -= 0.2
	case MoodTired:
		base -= 0.1
	}

	// Lonely agents welcome company.
	if a.Needs.Social < 30 {
		base += 0.15
	}

	if base < 0 {
		return 0
	}
	if base > 1 {
		return 1
	}
	return base
}
