// Agent↔agent edges — keyed by a canonical sorted id pair into a flat
// agent arena, so no cyclic ownership pointers exist between agents.
package social

import (
	"github.com/talgya/villagers/internal/npc"
)

// EdgeKey identifies an unordered agent pair; A < B always.
type EdgeKey struct {
	A, B npc.AgentID
}

// MakeEdgeKey canonicalizes an id pair.
func MakeEdgeKey(a, b npc.AgentID) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}

// Edge is one symmetric agent↔agent relationship.
type Edge struct {
	Value float64 `json:"value"` // [0,100]
	// Compatibility is derived once from the personality pair and drives
	// the sign and magnitude of passive drift.
	Compatibility float64 `json:"compatibility"`
	// Grudge dampens positive deltas between the pair while positive.
	Grudge float64 `json:"grudge"`
}

// compatibilityTable maps personality pairs to [-1,1]. Symmetric by
// construction: lookups canonicalize the pair order.
var compatibilityTable = map[[2]npc.Personality]float64{
	{npc.Hardworking, npc.Hardworking}: 0.5,
	{npc.Hardworking, npc.Lazy}:        -0.8,
	{npc.Hardworking, npc.Social}:      0.1,
	{npc.Hardworking, npc.Generous}:    0.7,
	{npc.Hardworking, npc.Grumpy}:      0.2,
	{npc.Lazy, npc.Lazy}:               0.4,
	{npc.Lazy, npc.Social}:             0.3,
	{npc.Lazy, npc.Generous}:           0.2,
	{npc.Lazy, npc.Grumpy}:             -0.3,
	{npc.Social, npc.Social}:           0.9,
	{npc.Social, npc.Generous}:         0.6,
	{npc.Social, npc.Grumpy}:           -0.7,
	{npc.Generous, npc.Generous}:       0.5,
	{npc.Generous, npc.Grumpy}:         0.1,
	{npc.Grumpy, npc.Grumpy}:           -0.4,
}

// Compatibility returns the static score for a personality pair.
// Unknown personalities score 0 (no drift) rather than erroring.
func Compatibility(a, b npc.Personality) float64 {
	if a > b {
		a, b = b, a
	}
	return compatibilityTable[[2]npc.Personality{a, b}]
}

// edgeStartValue is where fresh acquaintances begin, just inside Neutral.
const edgeStartValue = 35

// EnsureEdge returns the edge for a pair, creating it on first contact.
func (g *Graph) EnsureEdge(a, b npc.AgentID) *Edge {
	key := MakeEdgeKey(a, b)
	if e, ok := g.edges[key]; ok {
		return e
	}

	comp := 0.0
	if agentA, okA := g.agents[key.A]; okA {
		if agentB, okB := g.agents[key.B]; okB {
			comp = Compatibility(agentA.Personality, agentB.Personality)
		}
	}
	e := &Edge{Value: edgeStartValue, Compatibility: comp}
	g.edges[key] = e
	return e
}

// EdgeValue reports the current edge value, or the start value if the pair
// has never met.
func (g *Graph) EdgeValue(a, b npc.AgentID) float64 {
	if e, ok := g.edges[MakeEdgeKey(a, b)]; ok {
		return e.Value
	}
	return edgeStartValue
}

// Edges returns the raw edge map for persistence. Callers must not mutate
// it off the simulation goroutine.
func (g *Graph) Edges() map[EdgeKey]*Edge { return g.edges }

// RestoreEdge reattaches a persisted edge. Records referencing unknown
// agents are the caller's problem to filter.
func (g *Graph) RestoreEdge(key EdgeKey, e Edge) {
	stored := e
	g.edges[key] = &stored
}

// DriftEdges moves every edge toward 100 (compatible) or 0 (incompatible)
// at a rate proportional to |compatibility|. This is how friendships and
// rivalries emerge without any explicit interaction event.
func (g *Graph) DriftEdges(elapsedSeconds float64) {
	days := elapsedSeconds / 86400
	for _, e := range g.edges {
		if e.Compatibility == 0 {
			continue
		}
		step := g.cfg.DriftRate * abs(e.Compatibility) * days
		if e.Compatibility > 0 {
			e.Value = clampValue(e.Value + step)
		} else {
			e.Value = clampValue(e.Value - step)
		}
	}
}

// PartnerFor picks a socializing partner: among candidates within
// interaction range, the one with the highest existing edge value. Greedy
// affinity pairing, never random.
func (g *Graph) PartnerFor(a *npc.Agent, candidates []*npc.Agent) *npc.Agent {
	var best *npc.Agent
	bestValue := -1.0
	for _, c := range candidates {
		if c.ID == a.ID {
			continue
		}
		if a.Position.DistTo(c.Position) > g.cfg.InteractionRange {
			continue
		}
		v := g.EdgeValue(a.ID, c.ID)
		if v > bestValue {
			best, bestValue = c, v
		}
	}
	return best
}

// RecordMeeting strengthens (or, between incompatible pairs, sours) an edge
// when two agents actually socialize. Positive gains are dampened while the
// pair holds a grudge.
func (g *Graph) RecordMeeting(a, b *npc.Agent) {
	e := g.EnsureEdge(a.ID, b.ID)
	delta := 1.0 + e.Compatibility
	if delta > 0 && e.Grudge > 0 {
		delta /= 2
		e.Grudge -= delta
		if e.Grudge < 0 {
			e.Grudge = 0
		}
	}
	e.Value = clampValue(e.Value + delta)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
