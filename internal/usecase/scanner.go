package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

// PriceSource is what the scanner needs from the venue layer. Satisfied by
// venue.MultiVenueClient.
type PriceSource interface {
	GetPrices(ctx context.Context, token string) []*domain.VenuePrice
}

type ScannerConfig struct {
	MinProfitPct        float64 `json:"min_profit_pct" yaml:"min_profit_pct"`
	MinLiquidity        float64 `json:"min_liquidity" yaml:"min_liquidity"`
	TradingCostFraction float64 `json:"trading_cost_fraction" yaml:"trading_cost_fraction"`
}

// OpportunityScanner compares venue quotes for a token and reports the best
// buy/sell pair when the spread clears the configured filters. It has no side
// effects beyond reading through the venue cache.
type OpportunityScanner struct {
	prices PriceSource
	logger *zap.Logger

	mu  sync.RWMutex
	cfg ScannerConfig
}

func NewOpportunityScanner(prices PriceSource, cfg ScannerConfig, logger *zap.Logger) *OpportunityScanner {
	return &OpportunityScanner{prices: prices, cfg: cfg, logger: logger}
}

// UpdateConfig hot-swaps the filter thresholds. A scan already in flight
// keeps the settings it started with.
func (s *OpportunityScanner) UpdateConfig(cfg ScannerConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *OpportunityScanner) Config() ScannerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Scan returns nil when there is no opportunity — fewer than two venues
// responding, thin spread, or thin liquidity are all ordinary outcomes, not
// errors.
func (s *OpportunityScanner) Scan(ctx context.Context, token string) *domain.ArbitrageOpportunity {
	cfg := s.Config()
	quotes := s.prices.GetPrices(ctx, token)
	if len(quotes) < 2 {
		return nil
	}

	buy, sell := quotes[0], quotes[0]
	totalLiquidity := 0.0
	for _, q := range quotes {
		if q.Price < buy.Price {
			buy = q
		}
		if q.Price > sell.Price {
			sell = q
		}
		totalLiquidity += q.Liquidity
	}
	if buy.Venue == sell.Venue || buy.Price <= 0 {
		return nil
	}

	spread := (sell.Price - buy.Price) / buy.Price * 100
	if spread < cfg.MinProfitPct {
		return nil
	}

	avgLiquidity := totalLiquidity / float64(len(quotes))
	if avgLiquidity < cfg.MinLiquidity {
		return nil
	}

	opp := &domain.ArbitrageOpportunity{
		Token:      token,
		BuyVenue:   buy.Venue,
		BuyPrice:   buy.Price,
		SellVenue:  sell.Venue,
		SellPrice:  sell.Price,
		SpreadPct:  spread,
		EstProfit:  buy.Price * spread / 100 * (1 - cfg.TradingCostFraction),
		Liquidity:  avgLiquidity,
		Confidence: Classify(spread, avgLiquidity),
		DetectedAt: time.Now(),
	}

	s.logger.Info("Opportunity detected",
		zap.String("token", token),
		zap.String("buy", opp.BuyVenue),
		zap.String("sell", opp.SellVenue),
		zap.Float64("spread_pct", opp.SpreadPct),
		zap.String("confidence", string(opp.Confidence)))
	return opp
}

// ScanBatch scans every token and returns hits sorted by estimated profit,
// best first.
func (s *OpportunityScanner) ScanBatch(ctx context.Context, tokens []string) []*domain.ArbitrageOpportunity {
	var opps []*domain.ArbitrageOpportunity
	for _, token := range tokens {
		if opp := s.Scan(ctx, token); opp != nil {
			opps = append(opps, opp)
		}
	}
	sort.Slice(opps, func(i, j int) bool {
		return opps[i].EstProfit > opps[j].EstProfit
	})
	return opps
}

// Classify is a pure function of spread and liquidity.
func Classify(spreadPct, liquidity float64) domain.Confidence {
	switch {
	case spreadPct > 1.0 && liquidity > 100:
		return domain.ConfidenceHigh
	case spreadPct > 0.5 && liquidity > 50:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
