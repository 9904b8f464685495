package tests

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
	"github.com/avel/solana_strategy_bot/internal/usecase"
)

// MockMarket plays both sides of the trade: it answers price lookups and
// fills orders at its current price.
type MockMarket struct {
	mu        sync.Mutex
	Price     float64
	FailOrder bool
	Orders    []*domain.OrderResult
}

func (m *MockMarket) SetPrice(price float64) {
	m.mu.Lock()
	m.Price = price
	m.mu.Unlock()
}

func (m *MockMarket) GetPrice(ctx context.Context, token string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Price, nil
}

func (m *MockMarket) GetPrices(ctx context.Context, token string) []*domain.VenuePrice {
	m.mu.Lock()
	defer m.mu.Unlock()
	return []*domain.VenuePrice{
		{Venue: "mock-a", Price: m.Price, Liquidity: 500, Timestamp: time.Now()},
		{Venue: "mock-b", Price: m.Price * 1.012, Liquidity: 500, Timestamp: time.Now()},
	}
}

func (m *MockMarket) Execute(ctx context.Context, token string, amount float64, direction domain.Direction) *domain.OrderResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := &domain.OrderResult{
		ID:        "mock-order",
		Token:     token,
		Direction: direction,
		CreatedAt: time.Now(),
	}
	if m.FailOrder {
		res.Err = domain.OrderErrSubmitFailed
		res.AmountAtRisk = amount
	} else {
		res.Success = true
		res.FilledAmount = amount
		res.FilledPrice = m.Price
	}
	m.Orders = append(m.Orders, res)
	return res
}

func (m *MockMarket) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// BotHarness wires the full service stack against a MockMarket.
type BotHarness struct {
	Market *MockMarket
	Risk   *usecase.RiskAuthority
	Engine *usecase.StrategyEngine
	Bus    *usecase.EventBus
}

func NewBotHarness() *BotHarness {
	logger := zap.NewNop()
	market := &MockMarket{Price: 100}

	riskCfg := usecase.DefaultRiskConfig()
	riskCfg.CooldownPeriod = 0
	riskCfg.MaxTradesPerHour = 1000
	riskCfg.MaxTradesPerDay = 10000
	risk := usecase.NewRiskAuthority(riskCfg, logger)

	bus := usecase.NewEventBus(logger)
	engineCfg := usecase.EngineConfig{
		TriggerPollInterval:  2 * time.Millisecond,
		PriceMonitorInterval: 2 * time.Millisecond,
		MomentumWindow:       60,
		MinWindowSamples:     3,
	}
	engine := usecase.NewStrategyEngine(risk, market, market, bus, engineCfg, logger)

	return &BotHarness{Market: market, Risk: risk, Engine: engine, Bus: bus}
}
