package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

type scriptedScanner struct {
	mu   sync.Mutex
	opps []*domain.ArbitrageOpportunity
	cfg  ScannerConfig
}

func (s *scriptedScanner) ScanBatch(ctx context.Context, tokens []string) []*domain.ArbitrageOpportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opps
}

func (s *scriptedScanner) UpdateConfig(cfg ScannerConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *scriptedScanner) lastConfig() ScannerConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// configurableExecutor is a fakeExecutor that also accepts pipeline config
// swaps, the way the real pipeline does.
type configurableExecutor struct {
	fakeExecutor
	cfgMu sync.Mutex
	cfg   PipelineConfig
}

func (c *configurableExecutor) UpdateConfig(cfg PipelineConfig) {
	c.cfgMu.Lock()
	c.cfg = cfg
	c.cfgMu.Unlock()
}

func (c *configurableExecutor) lastConfig() PipelineConfig {
	c.cfgMu.Lock()
	defer c.cfgMu.Unlock()
	return c.cfg
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func testOpportunity(token string, profit float64) *domain.ArbitrageOpportunity {
	return &domain.ArbitrageOpportunity{
		Token:      token,
		BuyVenue:   "dexscreener",
		BuyPrice:   100,
		SellVenue:  "geckoterminal",
		SellPrice:  101.2,
		SpreadPct:  1.2,
		EstProfit:  profit,
		Liquidity:  150,
		Confidence: domain.ConfidenceHigh,
		DetectedAt: time.Now(),
	}
}

func newTestOrchestrator(scanner Scanner, exec *fakeExecutor, feed *fakeFeed, cfg OrchestratorConfig) (*Orchestrator, *RiskAuthority, *recordingNotifier) {
	riskCfg := DefaultRiskConfig()
	riskCfg.CooldownPeriod = 0
	riskCfg.MaxTradesPerHour = 1000
	riskCfg.MaxTradesPerDay = 10000
	risk := NewRiskAuthority(riskCfg, zap.NewNop())

	bus := NewEventBus(zap.NewNop())
	engine := NewStrategyEngine(risk, exec, feed, bus, DefaultEngineConfig(), zap.NewNop())
	notifier := &recordingNotifier{}
	o := NewOrchestrator(scanner, risk, exec, engine, feed, bus, notifier, cfg, zap.NewNop())
	return o, risk, notifier
}

func TestScanTick_AutoExecute(t *testing.T) {
	scanner := &scriptedScanner{opps: []*domain.ArbitrageOpportunity{testOpportunity("BONK", 0.84)}}
	exec := &fakeExecutor{price: 100}
	cfg := DefaultOrchestratorConfig()
	cfg.Tokens = []string{"BONK"}
	cfg.AutoExecute = true
	cfg.AlertOnly = false

	o, risk, notifier := newTestOrchestrator(scanner, exec, &fakeFeed{price: 100}, cfg)

	opps := o.ScanTick(context.Background())
	if len(opps) != 1 {
		t.Fatalf("expected 1 opportunity, got %d", len(opps))
	}
	if exec.callCount() != 1 {
		t.Fatalf("expected 1 execution, got %d", exec.callCount())
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 alert, got %d", notifier.count())
	}

	stats := o.Stats()
	if stats.Executions != 1 || stats.Successes != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.SuccessRate != 100 {
		t.Fatalf("expected 100%% success rate, got %f", stats.SuccessRate)
	}
	if stats.TotalProfit != 0.84 {
		t.Fatalf("expected profit from the opportunity estimate, got %f", stats.TotalProfit)
	}
	if stats.OpportunitiesFound != 1 {
		t.Fatalf("expected 1 opportunity counted, got %d", stats.OpportunitiesFound)
	}

	if _, held := risk.Position("BONK"); !held {
		t.Fatal("successful arbitrage entry should open a position")
	}
	if len(o.History()) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(o.History()))
	}
}

func TestScanTick_AlertOnlySuppressesExecution(t *testing.T) {
	scanner := &scriptedScanner{opps: []*domain.ArbitrageOpportunity{testOpportunity("BONK", 0.84)}}
	exec := &fakeExecutor{price: 100}
	cfg := DefaultOrchestratorConfig()
	cfg.AutoExecute = true
	cfg.AlertOnly = true // alert-only wins over auto-execute

	o, _, notifier := newTestOrchestrator(scanner, exec, &fakeFeed{price: 100}, cfg)

	o.ScanTick(context.Background())
	if exec.callCount() != 0 {
		t.Fatalf("alert-only mode must not execute, got %d calls", exec.callCount())
	}
	if notifier.count() != 1 {
		t.Fatalf("expected the alert to still fire, got %d", notifier.count())
	}
	if len(o.Opportunities()) != 1 {
		t.Fatal("opportunity should still be recorded")
	}
}

func TestScanTick_RiskRejectionSkipsExecution(t *testing.T) {
	scanner := &scriptedScanner{opps: []*domain.ArbitrageOpportunity{testOpportunity("BONK", 0.84)}}
	exec := &fakeExecutor{price: 100}
	cfg := DefaultOrchestratorConfig()
	cfg.AutoExecute = true
	cfg.AlertOnly = false
	cfg.TradeSize = 0.001 // below the minimum trade size

	o, _, _ := newTestOrchestrator(scanner, exec, &fakeFeed{price: 100}, cfg)

	o.ScanTick(context.Background())
	if exec.callCount() != 0 {
		t.Fatal("rejected trade must not reach the pipeline")
	}
	if o.Stats().Executions != 0 {
		t.Fatal("rejections are not executions")
	}
}

func TestHistoryAndOpportunityCaps(t *testing.T) {
	scanner := &scriptedScanner{opps: []*domain.ArbitrageOpportunity{testOpportunity("BONK", 0.84)}}
	exec := &fakeExecutor{price: 100}
	cfg := DefaultOrchestratorConfig()
	cfg.AutoExecute = true
	cfg.AlertOnly = false
	cfg.HistoryLimit = 3
	cfg.OpportunityLimit = 2

	o, _, _ := newTestOrchestrator(scanner, exec, &fakeFeed{price: 100}, cfg)

	for i := 0; i < 5; i++ {
		o.ScanTick(context.Background())
	}

	if got := len(o.History()); got != 3 {
		t.Fatalf("history should be capped at 3, got %d", got)
	}
	if got := len(o.Opportunities()); got != 2 {
		t.Fatalf("opportunities should be capped at 2, got %d", got)
	}
	// The caps evict, they do not reset the aggregates.
	if o.Stats().Executions != 5 {
		t.Fatalf("expected 5 executions, got %d", o.Stats().Executions)
	}
}

func TestUpdateConfig_PreservesStats(t *testing.T) {
	scanner := &scriptedScanner{opps: []*domain.ArbitrageOpportunity{testOpportunity("BONK", 0.84)}}
	exec := &fakeExecutor{price: 100}
	cfg := DefaultOrchestratorConfig()
	cfg.AutoExecute = true
	cfg.AlertOnly = false

	o, _, _ := newTestOrchestrator(scanner, exec, &fakeFeed{price: 100}, cfg)
	o.ScanTick(context.Background())

	next := o.Config()
	next.TradeSize = 0.2
	next.AlertOnly = true
	o.UpdateConfig(next)

	if o.Config().TradeSize != 0.2 || !o.Config().AlertOnly {
		t.Fatalf("config update not applied: %+v", o.Config())
	}
	if o.Stats().Executions != 1 {
		t.Fatal("stats must survive a config swap")
	}
	if len(o.History()) != 1 {
		t.Fatal("history must survive a config swap")
	}
}

func TestUpdateConfig_ForwardsScannerAndPipeline(t *testing.T) {
	scanner := &scriptedScanner{}
	exec := &configurableExecutor{}
	risk := NewRiskAuthority(DefaultRiskConfig(), zap.NewNop())
	bus := NewEventBus(zap.NewNop())
	engine := NewStrategyEngine(risk, exec, &fakeFeed{}, bus, DefaultEngineConfig(), zap.NewNop())
	o := NewOrchestrator(scanner, risk, exec, engine, &fakeFeed{}, bus,
		&recordingNotifier{}, DefaultOrchestratorConfig(), zap.NewNop())

	next := o.Config()
	next.Scanner = ScannerConfig{MinProfitPct: 1.5, MinLiquidity: 80, TradingCostFraction: 0.25}
	next.Pipeline = DefaultPipelineConfig()
	next.Pipeline.TipLamports = 250_000
	o.UpdateConfig(next)

	if scanner.lastConfig() != next.Scanner {
		t.Fatalf("scanner thresholds not forwarded: %+v", scanner.lastConfig())
	}
	if exec.lastConfig().TipLamports != 250_000 {
		t.Fatalf("pipeline parameters not forwarded: %+v", exec.lastConfig())
	}

	// A swap that omits the sub-configs keeps the previous values.
	blank := next
	blank.Scanner = ScannerConfig{}
	blank.Pipeline = PipelineConfig{}
	o.UpdateConfig(blank)
	if o.Config().Scanner != next.Scanner {
		t.Fatal("omitted scanner config must not wipe the thresholds")
	}
	if o.Config().Pipeline != next.Pipeline {
		t.Fatal("omitted pipeline config must not wipe the parameters")
	}
}

func TestRiskTick_ClosesBreachedPosition(t *testing.T) {
	exec := &fakeExecutor{price: 90}
	feed := &fakeFeed{price: 90}
	cfg := DefaultOrchestratorConfig()

	o, risk, _ := newTestOrchestrator(&scriptedScanner{}, exec, feed, cfg)

	// Open at 100 with the default 5% stop, then reprice at 90.
	risk.OpenPosition("BONK", 1.0, 100, 0, 0)
	o.riskTick(context.Background())

	if exec.callCount() != 1 {
		t.Fatalf("expected one exit sell, got %d", exec.callCount())
	}
	if _, held := risk.Position("BONK"); held {
		t.Fatal("breached position should be closed")
	}
	// The realized loss lands in the daily P&L, and the bypassed exit still
	// consumes the trade budget.
	snap := risk.Snapshot()
	if snap.DailyPnL >= 0 {
		t.Fatalf("expected a realized loss, got %f", snap.DailyPnL)
	}
	if snap.TradesThisHour != 1 {
		t.Fatalf("expected the exit counted against the hourly budget, got %d", snap.TradesThisHour)
	}
	if len(o.History()) != 1 {
		t.Fatalf("the exit should be recorded, got %d entries", len(o.History()))
	}
}

func TestStartStop_Idempotent(t *testing.T) {
	cfg := DefaultOrchestratorConfig()
	cfg.ScanInterval = time.Hour
	cfg.RiskMonitorInterval = time.Hour

	o, _, _ := newTestOrchestrator(&scriptedScanner{}, &fakeExecutor{}, &fakeFeed{}, cfg)

	if err := o.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := o.Start(); err == nil {
		t.Fatal("double start should fail")
	}
	o.Stop()
	o.Stop() // second stop is a no-op
	if o.Running() {
		t.Fatal("orchestrator should be stopped")
	}
	if err := o.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	o.Stop()
}
