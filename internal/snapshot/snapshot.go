// Package snapshot defines the reduced agent projection broadcast to
// observers. Deliberately small: observers render state, they never own it.
package snapshot

import "github.com/talgya/villagers/internal/npc"

// AgentProjection is the per-agent slice of authoritative state an observer
// needs to render — not the full agent record.
type AgentProjection struct {
	ID           npc.AgentID `json:"id"`
	Name         string      `json:"name"`
	Position     npc.Point   `json:"position"`
	State        string      `json:"state"`
	Action       string      `json:"action"`
	Mood         string      `json:"mood"`
	Relationship float64     `json:"relationship"`
	TierName     string      `json:"tier_name"`
}

// Frame is one broadcast unit.
type Frame struct {
	Tick    uint64            `json:"tick"`
	SimTime string            `json:"sim_time"`
	Dirty   bool              `json:"dirty"` // out-of-band broadcast after a flagged mutation
	Agents  []AgentProjection `json:"agents"`
}
