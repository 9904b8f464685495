package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
	"github.com/avel/solana_strategy_bot/internal/usecase"
)

type stubPriceSource struct {
	quotes map[string][]*domain.VenuePrice
}

func (s *stubPriceSource) GetPrices(ctx context.Context, token string) []*domain.VenuePrice {
	return s.quotes[token]
}

func venuePrice(venue string, price, liquidity float64) *domain.VenuePrice {
	return &domain.VenuePrice{Venue: venue, Price: price, Liquidity: liquidity, Timestamp: time.Now()}
}

func newTestScanner(quotes map[string][]*domain.VenuePrice) *usecase.OpportunityScanner {
	cfg := usecase.ScannerConfig{
		MinProfitPct:        0.3,
		MinLiquidity:        50,
		TradingCostFraction: 0.3,
	}
	return usecase.NewOpportunityScanner(&stubPriceSource{quotes: quotes}, cfg, zap.NewNop())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		spread    float64
		liquidity float64
		want      domain.Confidence
	}{
		{1.5, 150, domain.ConfidenceHigh},
		{1.01, 100.5, domain.ConfidenceHigh},
		{0.6, 60, domain.ConfidenceMedium},
		{1.5, 80, domain.ConfidenceMedium}, // wide spread but not enough depth
		{0.6, 40, domain.ConfidenceLow},
		{0.35, 20, domain.ConfidenceLow},
		{0.35, 200, domain.ConfidenceLow},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, usecase.Classify(c.spread, c.liquidity),
			"spread=%.2f liquidity=%.0f", c.spread, c.liquidity)
	}
}

func TestScan_DetectsSpread(t *testing.T) {
	scanner := newTestScanner(map[string][]*domain.VenuePrice{
		"BONK": {
			venuePrice("dexscreener", 100.0, 120),
			venuePrice("geckoterminal", 101.2, 120),
		},
	})

	opp := scanner.Scan(context.Background(), "BONK")
	require.NotNil(t, opp)

	assert.Equal(t, "dexscreener", opp.BuyVenue)
	assert.Equal(t, "geckoterminal", opp.SellVenue)
	assert.InDelta(t, 1.2, opp.SpreadPct, 0.001)
	assert.InDelta(t, 120, opp.Liquidity, 0.001)
	assert.Equal(t, domain.ConfidenceHigh, opp.Confidence)
	// buy price * spread fraction, minus 30% trading cost
	assert.InDelta(t, 100.0*0.012*0.7, opp.EstProfit, 0.001)
}

func TestScan_NoOpportunityIsNil(t *testing.T) {
	cases := map[string]map[string][]*domain.VenuePrice{
		"single venue": {
			"BONK": {venuePrice("dexscreener", 100, 500)},
		},
		"thin spread": {
			"BONK": {
				venuePrice("dexscreener", 100.0, 500),
				venuePrice("geckoterminal", 100.2, 500),
			},
		},
		"thin liquidity": {
			"BONK": {
				venuePrice("dexscreener", 100.0, 30),
				venuePrice("geckoterminal", 102.0, 40),
			},
		},
		"no venues": {},
	}
	for name, quotes := range cases {
		t.Run(name, func(t *testing.T) {
			scanner := newTestScanner(quotes)
			assert.Nil(t, scanner.Scan(context.Background(), "BONK"))
		})
	}
}

func TestScanner_UpdateConfigTightensThreshold(t *testing.T) {
	scanner := newTestScanner(map[string][]*domain.VenuePrice{
		"BONK": {
			venuePrice("dexscreener", 100.0, 120),
			venuePrice("geckoterminal", 101.2, 120),
		},
	})

	require.NotNil(t, scanner.Scan(context.Background(), "BONK"))

	cfg := scanner.Config()
	cfg.MinProfitPct = 2.0
	scanner.UpdateConfig(cfg)

	assert.Nil(t, scanner.Scan(context.Background(), "BONK"),
		"a 1.2%% spread must not pass a 2%% threshold")
	assert.Equal(t, 2.0, scanner.Config().MinProfitPct)
}

func TestScanBatch_SortedByProfit(t *testing.T) {
	scanner := newTestScanner(map[string][]*domain.VenuePrice{
		"BONK": {
			venuePrice("dexscreener", 100.0, 500),
			venuePrice("geckoterminal", 100.8, 500),
		},
		"WIF": {
			venuePrice("dexscreener", 100.0, 500),
			venuePrice("geckoterminal", 102.0, 500),
		},
		"SOL": {
			venuePrice("dexscreener", 100.0, 500),
			venuePrice("geckoterminal", 100.1, 500), // below threshold
		},
	})

	opps := scanner.ScanBatch(context.Background(), []string{"BONK", "WIF", "SOL"})
	require.Len(t, opps, 2)
	assert.Equal(t, "WIF", opps[0].Token)
	assert.Equal(t, "BONK", opps[1].Token)
	assert.GreaterOrEqual(t, opps[0].EstProfit, opps[1].EstProfit)
}
