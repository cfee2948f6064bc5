// Agent spawning — creates the village population with personalities,
// home/work/meeting anchors, and starting needs.
package npc

import "math/rand"

// Spawner creates agents for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// SpawnPopulation creates count agents scattered around the village center.
func (s *Spawner) SpawnPopulation(count int, center Point) []*Agent {
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, s.spawnOne(center))
	}
	return out
}

func (s *Spawner) spawnOne(center Point) *Agent {
	id := s.nextID
	s.nextID++

	personality := Personality(s.rng.Intn(NumPersonalities))

	home := s.scatter(center, 200)
	work := s.scatter(center, 350)
	meeting := s.scatter(center, 60)

	// Starting needs are mostly met: the village begins in a stable state.
	needs := Needs{
		Energy:           70 + s.rng.Float64()*30,
		Social:           50 + s.rng.Float64()*40,
		Hunger:           60 + s.rng.Float64()*35,
		WorkSatisfaction: 40 + s.rng.Float64()*40,
	}

	return &Agent{
		ID:          id,
		Name:        s.generateName(),
		Personality: personality,
		Needs:       needs,
		// New acquaintances start somewhere between wary and warm.
		RelationshipToActor: 5 + s.rng.Float64()*30,
		State:               StateIdle,
		Position:            home,
		Home:                home,
		Workplace:           work,
		Meeting:             meeting,
		// Roughly two thirds of the village works an assigned field.
		FieldAssigned: s.rng.Float64() < 0.66,
		StuckAnchor:   home,
	}
}

// scatter returns a point uniformly offset from center by at most radius in
// each axis.
func (s *Spawner) scatter(center Point, radius float64) Point {
	return Point{
		X: center.X + (s.rng.Float64()*2-1)*radius,
		Y: center.Y + (s.rng.Float64()*2-1)*radius,
	}
}

var firstNames = []string{
	"Alma", "Bert", "Clara", "Dirk", "Edda", "Falk", "Greta", "Hans",
	"Ida", "Jorg", "Karin", "Lars", "Mette", "Nils", "Oda", "Piet",
	"Runa", "Sven", "Tilda", "Ulf", "Vera", "Wim",
}

var surnames = []string{
	"Achterberg", "Bauer", "Dahl", "Eikeland", "Fuchs", "Grove",
	"Holst", "Kron", "Lindt", "Moen", "Nyberg", "Oster", "Ploog",
	"Ryen", "Solheim", "Thorn", "Vik", "Wester",
}

func (s *Spawner) generateName() string {
	return firstNames[s.rng.Intn(len(firstNames))] + " " + surnames[s.rng.Intn(len(surnames))]
}
