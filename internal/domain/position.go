package domain

import "time"

// Position is the risk authority's view of one open exposure.
// At most one position exists per token.
type Position struct {
	Token           string    `json:"token"`
	EntryPrice      float64   `json:"entry_price"`
	CurrentPrice    float64   `json:"current_price"`
	Amount          float64   `json:"amount"`      // token units held
	Value           float64   `json:"value"`       // SOL value at CurrentPrice
	StopLossPrice   float64   `json:"stop_loss"`   // only ever moves up (trailing)
	TakeProfitPrice float64   `json:"take_profit"` // 0 = disabled
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	OpenedAt        time.Time `json:"opened_at"`
}

type PositionActionKind string

const (
	ActionHold       PositionActionKind = "HOLD"
	ActionClose      PositionActionKind = "CLOSE"
	ActionUpdateStop PositionActionKind = "UPDATE_STOP"
)

// PositionAction is what the risk authority wants done with a position
// after a price update.
type PositionAction struct {
	Token   string             `json:"token"`
	Action  PositionActionKind `json:"action"`
	Reason  string             `json:"reason,omitempty"`
	NewStop float64            `json:"new_stop,omitempty"`
	Price   float64            `json:"price"`
}
