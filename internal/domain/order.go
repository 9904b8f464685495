package domain

import "time"

type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// Pipeline failure kinds carried in OrderResult.Err. These are expected
// outcomes, not panics: the pipeline never lets an execution error escape.
const (
	OrderErrQuoteFailed    = "QuoteFailed"
	OrderErrBuildFailed    = "TransactionBuildFailed"
	OrderErrSubmitFailed   = "SubmissionFailed"
	OrderErrBundleTimeout  = "BundleTimeout"
	OrderErrBundleRejected = "BundleRejected"
)

// Quote is the venue quote collaborator's answer for a swap.
type Quote struct {
	TokenIn     string  `json:"token_in"`
	TokenOut    string  `json:"token_out"`
	InAmount    float64 `json:"in_amount"`
	OutAmount   float64 `json:"out_amount"`
	Route       string  `json:"route"`
	FeeEstimate float64 `json:"fee_estimate"`
}

// OrderResult is the terminal outcome of one pipeline invocation.
// AmountAtRisk is non-zero when a submission failed (or timed out) after a
// successful quote: the caller must treat it as a potential partial loss.
type OrderResult struct {
	ID           string        `json:"id"`
	Token        string        `json:"token"`
	Direction    Direction     `json:"direction"`
	Success      bool          `json:"success"`
	FilledAmount float64       `json:"filled_amount"` // SOL
	FilledPrice  float64       `json:"filled_price"`
	BundleID     string        `json:"bundle_id,omitempty"`
	Err          string        `json:"error,omitempty"`
	AmountAtRisk float64       `json:"amount_at_risk,omitempty"`
	Elapsed      time.Duration `json:"elapsed"`
	CreatedAt    time.Time     `json:"created_at"`
}

// BundleStatus is the relay's view of a submitted bundle.
type BundleStatus struct {
	Confirmed bool   `json:"confirmed"`
	Slot      uint64 `json:"slot,omitempty"`
	Err       string `json:"error,omitempty"`
}
