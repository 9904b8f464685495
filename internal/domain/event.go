package domain

import "time"

type EventKind string

const (
	EventCreated     EventKind = "CREATED"
	EventStarted     EventKind = "STARTED"
	EventExecuted    EventKind = "EXECUTED"
	EventStopped     EventKind = "STOPPED"
	EventCompleted   EventKind = "COMPLETED"
	EventError       EventKind = "ERROR"
	EventOpportunity EventKind = "OPPORTUNITY"
	EventArbExecuted EventKind = "ARB_EXECUTED"
	EventStats       EventKind = "STATS_UPDATED"
)

// Event is the closed union carried on the event bus. Kind decides which of
// the payload pointers is set; consumers switch on Kind rather than sniffing
// fields.
type Event struct {
	Kind       EventKind             `json:"kind"`
	StrategyID string                `json:"strategy_id,omitempty"`
	Time       time.Time             `json:"time"`
	Message    string                `json:"message,omitempty"`
	Status     *StrategyStatus       `json:"status,omitempty"`
	Order      *OrderResult          `json:"order,omitempty"`
	Opp        *ArbitrageOpportunity `json:"opportunity,omitempty"`
}
