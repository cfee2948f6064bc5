// Package favor implements the bounded task-request workflow between
// villagers and the player: generation trials, the status graph, completion
// strategies, rewards, and cooldowns.
package favor

import "github.com/talgya/villagers/internal/npc"

// Type enumerates the seven favor kinds.
type Type uint8

const (
	HarvestHelp Type = iota
	GoodsTransport
	Repair
	Delivery
	EquipmentLoan
	MoneyLoan
	PropertyWatch
)

// NumTypes is the size of the favor type set.
const NumTypes = 7

// String returns a human-readable favor type name.
func (t Type) String() string {
	switch t {
	case HarvestHelp:
		return "harvest_help"
	case GoodsTransport:
		return "goods_transport"
	case Repair:
		return "repair"
	case Delivery:
		return "delivery"
	case EquipmentLoan:
		return "equipment_loan"
	case MoneyLoan:
		return "money_loan"
	case PropertyWatch:
		return "property_watch"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a declared favor type.
func (t Type) Valid() bool { return t < NumTypes }

// Status is a favor's lifecycle position.
// requested → accepted → in_progress → {completed | failed | expired};
// accepted/in_progress → abandoned. Terminal states are sinks.
type Status uint8

const (
	StatusRequested Status = iota
	StatusAccepted
	StatusInProgress
	StatusCompleted
	StatusFailed
	StatusExpired
	StatusAbandoned
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusRequested:
		return "requested"
	case StatusAccepted:
		return "accepted"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusExpired:
		return "expired"
	case StatusAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is a sink.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Reward is what completing a favor pays out.
type Reward struct {
	Money             int     `json:"money"`
	RelationshipDelta float64 `json:"relationship_delta"`
}

// Favor is one outstanding task request. The lifecycle exclusively creates,
// mutates, and destroys these records; agents hold only a weak
// back-reference and a cooldown.
type Favor struct {
	ID            string      `json:"id"`
	AgentID       npc.AgentID `json:"agent_id"`
	Type          Type        `json:"type"`
	Status        Status      `json:"status"`
	Progress      float64     `json:"progress"`       // [0,100]
	TimeRemaining float64     `json:"time_remaining"` // sim-seconds; counts down once accepted
	Reward        Reward      `json:"reward"`
}

// Active reports whether the favor still occupies its agent's single slot.
func (f *Favor) Active() bool { return !f.Status.Terminal() }

// moneyRewards is the base payout per favor type.
var moneyRewards = [NumTypes]int{
	HarvestHelp:    250,
	GoodsTransport: 180,
	Repair:         220,
	Delivery:       120,
	EquipmentLoan:  90,
	MoneyLoan:      60,
	PropertyWatch:  150,
}
