package domain

import "time"

type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// VenuePrice is one venue's quote for a token.
type VenuePrice struct {
	Venue     string    `json:"venue"`
	Price     float64   `json:"price"`
	Liquidity float64   `json:"liquidity"` // SOL depth around the quoted price
	Timestamp time.Time `json:"timestamp"`
}

// ArbitrageOpportunity is ephemeral scanner output. It is consumed once by
// the orchestrator; only a bounded ring of recent ones is kept for display.
type ArbitrageOpportunity struct {
	Token      string     `json:"token"`
	BuyVenue   string     `json:"buy_venue"`
	BuyPrice   float64    `json:"buy_price"`
	SellVenue  string     `json:"sell_venue"`
	SellPrice  float64    `json:"sell_price"`
	SpreadPct  float64    `json:"spread_pct"`
	EstProfit  float64    `json:"est_profit"`
	Liquidity  float64    `json:"liquidity"` // average across responding venues
	Confidence Confidence `json:"confidence"`
	DetectedAt time.Time  `json:"detected_at"`
}
