package domain

import (
	"fmt"
	"time"
)

type StrategyKind string

const (
	KindDCA           StrategyKind = "DCA"
	KindGrid          StrategyKind = "GRID"
	KindMomentum      StrategyKind = "MOMENTUM"
	KindMeanReversion StrategyKind = "MEAN_REVERSION"
)

// DCAParams splits the total amount evenly across Intervals buys spaced Spacing apart.
type DCAParams struct {
	Intervals int           `json:"intervals" yaml:"intervals"`
	Spacing   time.Duration `json:"spacing" yaml:"spacing"`
}

// GridParams places Levels buy levels below the price observed at start,
// each StepPct percent under the previous one.
type GridParams struct {
	Levels  int     `json:"levels" yaml:"levels"`
	StepPct float64 `json:"step_pct" yaml:"step_pct"`
}

// MomentumParams fires a single full-size buy once price rises ThresholdPct
// percent above its rolling moving average.
type MomentumParams struct {
	ThresholdPct float64 `json:"threshold_pct" yaml:"threshold_pct"`
}

// ReversionParams fires a single full-size buy once price drops DropPct
// percent below its rolling moving average.
type ReversionParams struct {
	DropPct float64 `json:"drop_pct" yaml:"drop_pct"`
}

// TradingStrategy is immutable after creation. Exactly one of the kind-specific
// parameter blocks must be set, matching Kind.
type TradingStrategy struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Kind        StrategyKind `json:"kind"`
	Token       string       `json:"token"`
	TotalAmount float64      `json:"total_amount"` // allocation in SOL

	DCA       *DCAParams       `json:"dca,omitempty"`
	Grid      *GridParams      `json:"grid,omitempty"`
	Momentum  *MomentumParams  `json:"momentum,omitempty"`
	Reversion *ReversionParams `json:"reversion,omitempty"`

	StopLossPct   float64 `json:"stop_loss_pct,omitempty"`   // e.g. 0.05 for 5%
	TakeProfitPct float64 `json:"take_profit_pct,omitempty"` // e.g. 0.1 for 10%
	RiskTier      string  `json:"risk_tier,omitempty"`
	Enabled       bool    `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *TradingStrategy) Validate() error {
	if s.Token == "" {
		return fmt.Errorf("strategy token is required")
	}
	if s.TotalAmount <= 0 {
		return fmt.Errorf("total amount must be positive, got %f", s.TotalAmount)
	}
	switch s.Kind {
	case KindDCA:
		if s.DCA == nil {
			return fmt.Errorf("DCA strategy requires dca params")
		}
		if s.DCA.Intervals <= 0 {
			return fmt.Errorf("DCA intervals must be positive, got %d", s.DCA.Intervals)
		}
		if s.DCA.Spacing <= 0 {
			return fmt.Errorf("DCA spacing must be positive, got %v", s.DCA.Spacing)
		}
	case KindGrid:
		if s.Grid == nil {
			return fmt.Errorf("GRID strategy requires grid params")
		}
		if s.Grid.Levels <= 0 {
			return fmt.Errorf("grid levels must be positive, got %d", s.Grid.Levels)
		}
		if s.Grid.StepPct <= 0 {
			return fmt.Errorf("grid step must be positive, got %f", s.Grid.StepPct)
		}
	case KindMomentum:
		if s.Momentum == nil || s.Momentum.ThresholdPct <= 0 {
			return fmt.Errorf("MOMENTUM strategy requires a positive threshold")
		}
	case KindMeanReversion:
		if s.Reversion == nil || s.Reversion.DropPct <= 0 {
			return fmt.Errorf("MEAN_REVERSION strategy requires a positive drop percentage")
		}
	default:
		return fmt.Errorf("unknown strategy kind: %s", s.Kind)
	}
	return nil
}

type StrategyState string

const (
	StateIdle      StrategyState = "IDLE"
	StateRunning   StrategyState = "RUNNING"
	StatePaused    StrategyState = "PAUSED"
	StateCompleted StrategyState = "COMPLETED"
	StateError     StrategyState = "ERROR"
)

// Terminal reports whether the run can no longer be resumed.
func (s StrategyState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// StrategyStatus is the mutable run-state of one strategy. Outside of an
// in-flight order, ExecutedAmount+RemainingAmount always equals the
// strategy's TotalAmount.
type StrategyStatus struct {
	StrategyID       string        `json:"strategy_id"`
	State            StrategyState `json:"state"`
	Progress         float64       `json:"progress"` // 0..100
	ExecutedAmount   float64       `json:"executed_amount"`
	RemainingAmount  float64       `json:"remaining_amount"`
	EntryPrice       float64       `json:"entry_price"` // first fill, never overwritten
	CurrentPrice     float64       `json:"current_price"`
	UnrealizedPnL    float64       `json:"unrealized_pnl"`
	UnrealizedPnLPct float64       `json:"unrealized_pnl_pct"`
	LastError        string        `json:"last_error,omitempty"`
	LastExecution    time.Time     `json:"last_execution"`
	NextExecution    time.Time     `json:"next_execution"`
}
