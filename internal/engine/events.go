// Event log — notable occurrences kept in a bounded list for the query
// surface and the daily report.
package engine

// Event is a notable occurrence in the village.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "favor", "social", "gift", "state", etc.
}

// maxEvents bounds the in-memory event list.
const maxEvents = 1000

// EmitEvent appends an event, trimming the oldest past the bound.
func (s *Simulation) EmitEvent(e Event) {
	s.Events = append(s.Events, e)
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

// RecentEvents returns up to limit most recent events, oldest first.
func (s *Simulation) RecentEvents(limit int) []Event {
	start := 0
	if len(s.Events) > limit {
		start = len(s.Events) - limit
	}
	out := make([]Event, len(s.Events)-start)
	copy(out, s.Events[start:])
	return out
}
