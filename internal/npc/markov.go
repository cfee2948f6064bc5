// Markov fallback — a square transition matrix over the closed state set,
// sampled when neither urgent needs nor the schedule determine the next
// state. Unlisted transitions default to "stay".
package npc

// Matrix is a state×state probability table. Row weights need not sum to 1;
// the remaining mass is the implicit "stay" probability.
type Matrix [NumStates][NumStates]float64

// DefaultMatrix returns the tuned fallback table. Twelve populated entries;
// everything else stays put. The values introduce idle variation without
// making agents visibly restless.
func DefaultMatrix() *Matrix {
	var m Matrix
	m[StateIdle][StateWalking] = 0.30
	m[StateIdle][StateSocializing] = 0.15
	m[StateIdle][StateResting] = 0.10
	m[StateWalking][StateIdle] = 0.40
	m[StateWalking][StateGathering] = 0.10
	m[StateWorking][StateIdle] = 0.05
	m[StateResting][StateIdle] = 0.30
	m[StateSocializing][StateIdle] = 0.25
	m[StateGathering][StateWalking] = 0.20
	m[StateGathering][StateIdle] = 0.15
	m[StateTraveling][StateIdle] = 0.10
	m[StateDriving][StateIdle] = 0.15
	return &m
}

// Sample picks the next state from the current row with a single uniform
// draw against cumulative weights. A row summing to zero means "stay"; a
// row summing above 1 is re-normalized.
func (m *Matrix) Sample(current State, roll float64) State {
	if !current.Valid() {
		return StateIdle
	}

	row := m[current]
	total := 0.0
	for _, w := range row {
		total += w
	}
	if total == 0 {
		return current
	}

	scale := 1.0
	stay := 1 - total
	if total > 1 {
		scale = 1 / total
		stay = 0
	}

	cum := 0.0
	for next, w := range row {
		if w <= 0 {
			continue
		}
		cum += w * scale
		if roll < cum {
			return State(next)
		}
	}
	_ = stay // remainder of the draw lands on "stay"
	return current
}
