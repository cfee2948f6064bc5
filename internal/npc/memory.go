// Bounded memory of recent interactions. Recorded but not consulted by any
// decision yet — exposed only as a read-only timeline.
package npc

// MemoryCapacity is the fixed ring size; the oldest record is evicted.
const MemoryCapacity = 10

// InteractionKind classifies a remembered interaction.
type InteractionKind uint8

const (
	InteractionTalk InteractionKind = iota
	InteractionGift
	InteractionNPCGift
	InteractionFavorCompleted
	InteractionFavorFailed
	InteractionFavorAbandoned
)

// String returns a human-readable interaction name.
func (k InteractionKind) String() string {
	switch k {
	case InteractionTalk:
		return "talk"
	case InteractionGift:
		return "gift"
	case InteractionNPCGift:
		return "npc_gift"
	case InteractionFavorCompleted:
		return "favor_completed"
	case InteractionFavorFailed:
		return "favor_failed"
	case InteractionFavorAbandoned:
		return "favor_abandoned"
	default:
		return "unknown"
	}
}

// InteractionRecord is one remembered interaction.
type InteractionRecord struct {
	Tick      uint64          `json:"tick"`
	Kind      InteractionKind `json:"kind"`
	Sentiment float64         `json:"sentiment"` // -1 negative … +1 positive
}

// MemoryRing is a fixed-capacity ring buffer of interaction records.
type MemoryRing struct {
	Records []InteractionRecord `json:"records,omitempty"`
}

// Add appends a record, evicting the oldest when full.
func (m *MemoryRing) Add(rec InteractionRecord) {
	if len(m.Records) >= MemoryCapacity {
		copy(m.Records, m.Records[1:])
		m.Records[len(m.Records)-1] = rec
		return
	}
	m.Records = append(m.Records, rec)
}

// Len returns the number of stored records.
func (m *MemoryRing) Len() int { return len(m.Records) }

// Timeline returns a copy of the records, oldest first. Callers cannot
// mutate the ring through it.
func (m *MemoryRing) Timeline() []InteractionRecord {
	out := make([]InteractionRecord, len(m.Records))
	copy(out, m.Records)
	return out
}
