package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

// Scanner is what the orchestrator needs from the opportunity scanner.
type Scanner interface {
	ScanBatch(ctx context.Context, tokens []string) []*domain.ArbitrageOpportunity
}

// Optional capabilities: collaborators that accept hot config swaps.
type scannerConfigurer interface{ UpdateConfig(ScannerConfig) }
type pipelineConfigurer interface{ UpdateConfig(PipelineConfig) }

type OrchestratorConfig struct {
	Tokens              []string      `json:"tokens" yaml:"tokens"`
	ScanInterval        time.Duration `json:"scan_interval" yaml:"scan_interval"`
	RiskMonitorInterval time.Duration `json:"risk_monitor_interval" yaml:"risk_monitor_interval"`
	AutoExecute         bool          `json:"auto_execute" yaml:"auto_execute"`
	AlertOnly           bool          `json:"alert_only" yaml:"alert_only"`
	TradeSize           float64       `json:"trade_size" yaml:"trade_size"` // SOL per arbitrage attempt
	HistoryLimit        int           `json:"history_limit" yaml:"history_limit"`
	OpportunityLimit    int           `json:"opportunity_limit" yaml:"opportunity_limit"`

	// Forwarded to the scanner and the pipeline on every config swap.
	Scanner  ScannerConfig  `json:"scanner" yaml:"scanner"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ScanInterval:        30 * time.Second,
		RiskMonitorInterval: 15 * time.Second,
		AutoExecute:         false,
		AlertOnly:           true,
		TradeSize:           0.1,
		HistoryLimit:        100,
		OpportunityLimit:    50,
	}
}

// Stats are rolling aggregates over every pipeline invocation the
// orchestrator has seen. They survive config hot-swaps.
type Stats struct {
	Executions         int       `json:"executions"`
	Successes          int       `json:"successes"`
	SuccessRate        float64   `json:"success_rate"`
	TotalProfit        float64   `json:"total_profit"`
	TotalLoss          float64   `json:"total_loss"`
	AvgLatencyMs       float64   `json:"avg_latency_ms"`
	OpportunitiesFound int       `json:"opportunities_found"`
	LastScan           time.Time `json:"last_scan"`
}

// Orchestrator owns the scan loop, routes opportunities to notification and
// (when enabled) execution, and aggregates stats and history. It owns and
// injects all of its collaborators; nothing here is a package-level
// singleton.
type Orchestrator struct {
	scanner  Scanner
	risk     *RiskAuthority
	pipeline OrderExecutor
	engine   *StrategyEngine
	prices   PriceFeed
	bus      *EventBus
	notifier domain.Notifier
	logger   *zap.Logger

	mu            sync.Mutex
	cfg           OrchestratorConfig
	running       bool
	cancel        context.CancelFunc
	stats         Stats
	history       []*domain.OrderResult
	opportunities []*domain.ArbitrageOpportunity
}

func NewOrchestrator(
	scanner Scanner,
	risk *RiskAuthority,
	pipeline OrderExecutor,
	engine *StrategyEngine,
	prices PriceFeed,
	bus *EventBus,
	notifier domain.Notifier,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		scanner:  scanner,
		risk:     risk,
		pipeline: pipeline,
		engine:   engine,
		prices:   prices,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

func (o *Orchestrator) Engine() *StrategyEngine { return o.engine }

// Start launches the scan loop and the position risk monitor.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return fmt.Errorf("orchestrator already running")
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.running = true

	go o.scanLoop(ctx, o.cfg.ScanInterval)
	go o.riskLoop(ctx, o.cfg.RiskMonitorInterval)

	o.logger.Info("Orchestrator started",
		zap.Duration("scan_interval", o.cfg.ScanInterval),
		zap.Bool("auto_execute", o.cfg.AutoExecute),
		zap.Bool("alert_only", o.cfg.AlertOnly))
	return nil
}

// Stop is idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return
	}
	o.cancel()
	o.running = false
	o.logger.Info("Orchestrator stopped")
}

func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) scanLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.ScanTick(ctx)
		}
	}
}

// ScanTick runs one scan pass. Exported so the control surface can trigger a
// manual scan with identical semantics.
func (o *Orchestrator) ScanTick(ctx context.Context) []*domain.ArbitrageOpportunity {
	o.mu.Lock()
	tokens := o.cfg.Tokens
	autoExecute := o.cfg.AutoExecute && !o.cfg.AlertOnly
	tradeSize := o.cfg.TradeSize
	o.mu.Unlock()

	opps := o.scanner.ScanBatch(ctx, tokens)

	o.mu.Lock()
	o.stats.LastScan = time.Now()
	o.stats.OpportunitiesFound += len(opps)
	for _, opp := range opps {
		o.opportunities = append(o.opportunities, opp)
		if len(o.opportunities) > o.cfg.OpportunityLimit {
			o.opportunities = o.opportunities[1:]
		}
	}
	o.mu.Unlock()

	for _, opp := range opps {
		o.bus.Publish(domain.Event{Kind: domain.EventOpportunity, Opp: opp})
		// Fire-and-forget; a dead chat hook must never block trading.
		o.notifier.Notify(fmt.Sprintf("%s: buy %s @ %.6f, sell %s @ %.6f, spread %.2f%% (%s)",
			opp.Token, opp.BuyVenue, opp.BuyPrice, opp.SellVenue, opp.SellPrice,
			opp.SpreadPct, opp.Confidence))

		if autoExecute {
			o.executeOpportunity(ctx, opp, tradeSize)
		}
	}
	return opps
}

func (o *Orchestrator) executeOpportunity(ctx context.Context, opp *domain.ArbitrageOpportunity, size float64) {
	decision := o.risk.CheckTrade(opp.Token, size, true)
	if !decision.Approved {
		o.logger.Info("RISK: arbitrage rejected",
			zap.String("token", opp.Token),
			zap.String("reason", decision.Reason))
		return
	}

	res := o.pipeline.Execute(ctx, opp.Token, decision.AdjustedSize, domain.DirectionBuy)
	if res.Success {
		o.risk.OpenPosition(opp.Token, res.FilledAmount, res.FilledPrice, 0, 0)
	}
	o.recordResult(res, opp)

	o.bus.Publish(domain.Event{Kind: domain.EventArbExecuted, Order: res, Opp: opp})
}

// recordResult folds one terminal order into history and the rolling stats.
func (o *Orchestrator) recordResult(res *domain.OrderResult, opp *domain.ArbitrageOpportunity) {
	o.mu.Lock()

	o.history = append(o.history, res)
	if len(o.history) > o.cfg.HistoryLimit {
		o.history = o.history[1:]
	}

	o.stats.Executions++
	if res.Success {
		o.stats.Successes++
		if opp != nil {
			o.stats.TotalProfit += opp.EstProfit
		}
	} else {
		o.stats.TotalLoss += res.AmountAtRisk
	}
	o.stats.SuccessRate = float64(o.stats.Successes) / float64(o.stats.Executions) * 100
	// Running mean, no window.
	n := float64(o.stats.Executions)
	o.stats.AvgLatencyMs += (float64(res.Elapsed.Milliseconds()) - o.stats.AvgLatencyMs) / n

	stats := o.stats
	o.mu.Unlock()

	o.bus.Publish(domain.Event{
		Kind:    domain.EventStats,
		Message: fmt.Sprintf("executions=%d success_rate=%.1f%%", stats.Executions, stats.SuccessRate),
	})
}

// riskLoop periodically reprices open positions and executes whatever the
// risk authority orders (stop-loss / take-profit closes, trailing-stop
// raises).
func (o *Orchestrator) riskLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.riskTick(ctx)
		}
	}
}

func (o *Orchestrator) riskTick(ctx context.Context) {
	tokens := o.risk.OpenTokens()
	if len(tokens) == 0 {
		return
	}

	prices := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		price, err := o.prices.GetPrice(ctx, token)
		if err != nil {
			o.logger.Debug("Risk monitor price fetch failed",
				zap.String("token", token), zap.Error(err))
			continue
		}
		prices[token] = price
	}

	for _, action := range o.risk.UpdatePositions(prices) {
		switch action.Action {
		case domain.ActionClose:
			pos, ok := o.risk.Position(action.Token)
			if !ok {
				continue
			}
			o.logger.Info("Closing position",
				zap.String("token", action.Token),
				zap.String("reason", action.Reason))
			res := o.pipeline.Execute(ctx, action.Token, pos.Amount, domain.DirectionSell)
			o.risk.RecordTrade()
			exitPrice := action.Price
			if res.Success && res.FilledPrice > 0 {
				exitPrice = res.FilledPrice
			}
			o.risk.ClosePosition(action.Token, exitPrice)
			o.recordResult(res, nil)
		case domain.ActionUpdateStop:
			o.logger.Info("Trailing stop raised",
				zap.String("token", action.Token),
				zap.Float64("new_stop", action.NewStop))
		}
	}
}

// UpdateConfig hot-swaps the orchestrator settings and forwards the scanner
// thresholds and pipeline parameters to their owners. A scan-interval change
// restarts the loop; accumulated statistics and history are preserved.
func (o *Orchestrator) UpdateConfig(cfg OrchestratorConfig) {
	o.mu.Lock()
	restart := o.running && cfg.ScanInterval != o.cfg.ScanInterval
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = o.cfg.HistoryLimit
	}
	if cfg.OpportunityLimit <= 0 {
		cfg.OpportunityLimit = o.cfg.OpportunityLimit
	}
	if cfg.Scanner == (ScannerConfig{}) {
		cfg.Scanner = o.cfg.Scanner
	}
	if cfg.Pipeline == (PipelineConfig{}) {
		cfg.Pipeline = o.cfg.Pipeline
	}
	o.cfg = cfg
	o.mu.Unlock()

	if cfg.Scanner != (ScannerConfig{}) {
		if sc, ok := o.scanner.(scannerConfigurer); ok {
			sc.UpdateConfig(cfg.Scanner)
		}
	}
	if cfg.Pipeline != (PipelineConfig{}) {
		if pl, ok := o.pipeline.(pipelineConfigurer); ok {
			pl.UpdateConfig(cfg.Pipeline)
		}
	}

	if restart {
		o.Stop()
		if err := o.Start(); err != nil {
			o.logger.Error("Failed to restart scan loop", zap.Error(err))
		}
	}
	o.logger.Info("Config updated",
		zap.Duration("scan_interval", cfg.ScanInterval),
		zap.Bool("auto_execute", cfg.AutoExecute))
}

func (o *Orchestrator) Config() OrchestratorConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) History() []*domain.OrderResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*domain.OrderResult, len(o.history))
	copy(out, o.history)
	return out
}

func (o *Orchestrator) Opportunities() []*domain.ArbitrageOpportunity {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*domain.ArbitrageOpportunity, len(o.opportunities))
	copy(out, o.opportunities)
	return out
}
