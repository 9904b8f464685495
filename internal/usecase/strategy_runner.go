package usecase

import (
	"context"
	"sync"
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

// completionThreshold: a strategy counts as fully executed at 99% of its
// allocation, since risk clamps and venue fees shave fills.
const completionThreshold = 0.99

type gridLevel struct {
	price  float64
	size   float64
	filled bool
}

// strategyRunner is one strategy's whole runtime: the kind-specific trigger
// and the price monitor share a single goroutine, so status mutations never
// race within a strategy.
type strategyRunner struct {
	engine *StrategyEngine
	strat  domain.TradingStrategy
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once

	window         []float64 // momentum / mean-reversion samples
	gridLevels     []gridLevel
	firedIntervals int
	triggered      bool // single-shot kinds
}

func (r *strategyRunner) stop() {
	r.stopOnce.Do(r.cancel)
}

func (r *strategyRunner) run(ctx context.Context) {
	defer close(r.done)
	defer r.engine.clearRunner(r.strat.ID, r)

	triggerEvery := r.engine.cfg.TriggerPollInterval
	if r.strat.Kind == domain.KindDCA {
		triggerEvery = r.strat.DCA.Spacing
	}
	trigger := time.NewTicker(triggerEvery)
	defer trigger.Stop()
	monitor := time.NewTicker(r.engine.cfg.PriceMonitorInterval)
	defer monitor.Stop()

	if r.strat.Kind == domain.KindGrid {
		if !r.placeGrid(ctx) {
			return
		}
	}

	// First action fires immediately on start; DCA's first buy does not wait
	// out a full spacing interval.
	if !r.onTrigger(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-trigger.C:
			if !r.onTrigger(ctx) {
				return
			}
		case <-monitor.C:
			if !r.onMonitor(ctx) {
				return
			}
		}
	}
}

// onTrigger runs one kind-specific evaluation. Returns false when the run is
// over (completed, errored, or cancelled).
func (r *strategyRunner) onTrigger(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	switch r.strat.Kind {
	case domain.KindDCA:
		return r.dcaTick(ctx)
	case domain.KindGrid:
		return r.gridTick(ctx)
	case domain.KindMomentum, domain.KindMeanReversion:
		return r.windowTick(ctx)
	}
	return false
}

func (r *strategyRunner) dcaTick(ctx context.Context) bool {
	if r.firedIntervals >= r.strat.DCA.Intervals {
		return false
	}

	status, _ := r.engine.Status(r.strat.ID)
	size := r.strat.TotalAmount / float64(r.strat.DCA.Intervals)
	if r.firedIntervals == r.strat.DCA.Intervals-1 || size > status.RemainingAmount {
		size = status.RemainingAmount
	}
	r.firedIntervals++

	if size > 0 {
		// A failed interval logs and moves on; the remaining intervals still
		// fire on schedule.
		r.executeBuy(ctx, size)
	}

	next := time.Now().Add(r.strat.DCA.Spacing)
	status = r.engine.updateStatus(r.strat.ID, func(st *domain.StrategyStatus) {
		st.NextExecution = next
	})

	if status.ExecutedAmount >= completionThreshold*r.strat.TotalAmount {
		r.complete()
		return false
	}
	if r.firedIntervals >= r.strat.DCA.Intervals {
		r.fail("allocation incomplete after all intervals")
		return false
	}
	return true
}

// placeGrid computes the buy levels below the price observed at start. Level
// sizes come out of the unspent allocation, so a resumed strategy re-places
// only what it still has to spend.
func (r *strategyRunner) placeGrid(ctx context.Context) bool {
	status, _ := r.engine.Status(r.strat.ID)
	if status.ExecutedAmount >= completionThreshold*r.strat.TotalAmount {
		r.complete()
		return false
	}

	startPrice, err := r.engine.prices.GetPrice(ctx, r.strat.Token)
	if err != nil {
		r.fail("no start price for grid: " + err.Error())
		return false
	}

	n := r.strat.Grid.Levels
	size := status.RemainingAmount / float64(n)
	step := r.strat.Grid.StepPct / 100
	r.gridLevels = make([]gridLevel, n)
	for i := 0; i < n; i++ {
		r.gridLevels[i] = gridLevel{
			price: startPrice * (1 - step*float64(i+1)),
			size:  size,
		}
	}

	r.engine.logger.Info("Grid placed",
		zap.String("id", r.strat.ID),
		zap.Float64("start_price", startPrice),
		zap.Float64("budget", status.RemainingAmount),
		zap.Int("levels", n))
	return true
}

func (r *strategyRunner) gridTick(ctx context.Context) bool {
	price, err := r.engine.prices.GetPrice(ctx, r.strat.Token)
	if err != nil {
		r.engine.logger.Debug("Grid price poll failed",
			zap.String("id", r.strat.ID), zap.Error(err))
		return true
	}

	allFilled := true
	for i := range r.gridLevels {
		lv := &r.gridLevels[i]
		if lv.filled {
			continue
		}
		// Each level fires once, the first time price touches it or below.
		if price <= lv.price {
			r.engine.logger.Info("Grid level hit",
				zap.String("id", r.strat.ID),
				zap.Int("level", i+1),
				zap.Float64("level_price", lv.price),
				zap.Float64("price", price))
			r.executeBuy(ctx, lv.size)
			lv.filled = true
		} else {
			allFilled = false
		}
	}

	if allFilled {
		r.complete()
		return false
	}
	return true
}

// windowTick drives the momentum and mean-reversion kinds: both keep a
// bounded rolling window and fire one full-size buy when price deviates far
// enough from its moving average.
func (r *strategyRunner) windowTick(ctx context.Context) bool {
	price, err := r.engine.prices.GetPrice(ctx, r.strat.Token)
	if err != nil {
		return true
	}

	r.window = append(r.window, price)
	if max := r.engine.cfg.MomentumWindow; len(r.window) > max {
		r.window = r.window[len(r.window)-max:]
	}
	if len(r.window) < r.engine.cfg.MinWindowSamples {
		return true
	}

	sma := talib.Sma(r.window, len(r.window))
	ma := sma[len(sma)-1]
	if ma <= 0 {
		return true
	}
	deviation := (price - ma) / ma * 100

	fire := false
	switch r.strat.Kind {
	case domain.KindMomentum:
		fire = deviation >= r.strat.Momentum.ThresholdPct
	case domain.KindMeanReversion:
		fire = deviation <= -r.strat.Reversion.DropPct
	}
	if !fire || r.triggered {
		return true
	}
	r.triggered = true

	r.engine.logger.Info("Window trigger fired",
		zap.String("id", r.strat.ID),
		zap.String("kind", string(r.strat.Kind)),
		zap.Float64("price", price),
		zap.Float64("moving_avg", ma),
		zap.Float64("deviation_pct", deviation))

	status, _ := r.engine.Status(r.strat.ID)
	filled := r.executeBuy(ctx, status.RemainingAmount)
	if filled > 0 {
		r.complete()
	} else {
		r.fail("trigger fired but order did not fill")
	}
	return false
}

// onMonitor recomputes unrealized P&L and checks the strategy's own
// stop-loss / take-profit. A breach exits the position and pauses the
// strategy (stopped-by-risk).
func (r *strategyRunner) onMonitor(ctx context.Context) bool {
	price, err := r.engine.prices.GetPrice(ctx, r.strat.Token)
	if err != nil {
		return true
	}

	status := r.engine.updateStatus(r.strat.ID, func(st *domain.StrategyStatus) {
		st.CurrentPrice = price
		if st.EntryPrice > 0 && st.ExecutedAmount > 0 {
			st.UnrealizedPnL = st.ExecutedAmount * (price/st.EntryPrice - 1)
			st.UnrealizedPnLPct = (price - st.EntryPrice) / st.EntryPrice * 100
		}
	})
	if status.EntryPrice <= 0 || status.ExecutedAmount <= 0 {
		return true
	}

	breach := ""
	if r.strat.StopLossPct > 0 && price <= status.EntryPrice*(1-r.strat.StopLossPct) {
		breach = "stop-loss"
	} else if r.strat.TakeProfitPct > 0 && price >= status.EntryPrice*(1+r.strat.TakeProfitPct) {
		breach = "take-profit"
	}
	if breach == "" {
		return true
	}

	r.engine.logger.Info("Exit breach",
		zap.String("id", r.strat.ID),
		zap.String("reason", breach),
		zap.Float64("entry", status.EntryPrice),
		zap.Float64("price", price))

	// Exit the whole holding. This close is risk-originated, so it does not
	// re-enter CheckTrade: a cooldown must never trap us in a losing position.
	// It still counts against the trade budget.
	tokenUnits := status.ExecutedAmount / status.EntryPrice
	res := r.engine.pipeline.Execute(ctx, r.strat.Token, tokenUnits, domain.DirectionSell)
	r.engine.risk.RecordTrade()
	exitPrice := price
	if res.Success && res.FilledPrice > 0 {
		exitPrice = res.FilledPrice
	}
	r.engine.risk.ClosePosition(r.strat.Token, exitPrice)

	status = r.engine.updateStatus(r.strat.ID, func(st *domain.StrategyStatus) {
		st.State = domain.StatePaused
		st.LastExecution = time.Now()
	})
	r.engine.bus.Publish(domain.Event{
		Kind:       domain.EventStopped,
		StrategyID: r.strat.ID,
		Message:    "stopped-by-risk: " + breach,
		Status:     &status,
		Order:      res,
	})
	return false
}

// executeBuy funnels one buy attempt through the risk authority and the
// pipeline. Rejections and failed orders are logged, surfaced as events and
// otherwise ignored: the schedule continues. Returns the filled amount.
func (r *strategyRunner) executeBuy(ctx context.Context, amount float64) float64 {
	// Whatever the trigger asked for, never spend past the allocation.
	status, _ := r.engine.Status(r.strat.ID)
	if amount > status.RemainingAmount {
		amount = status.RemainingAmount
	}
	if amount <= 0 {
		return 0
	}

	decision := r.engine.risk.CheckTrade(r.strat.Token, amount, true)
	if !decision.Approved {
		r.engine.logger.Info("RISK: trade rejected",
			zap.String("id", r.strat.ID),
			zap.String("token", r.strat.Token),
			zap.Float64("size", amount),
			zap.String("reason", decision.Reason))
		return 0
	}

	res := r.engine.pipeline.Execute(ctx, r.strat.Token, decision.AdjustedSize, domain.DirectionBuy)
	if !res.Success {
		status := r.engine.updateStatus(r.strat.ID, func(st *domain.StrategyStatus) {
			st.LastError = res.Err
		})
		r.engine.logger.Warn("Order failed",
			zap.String("id", r.strat.ID),
			zap.String("error", res.Err),
			zap.Float64("amount_at_risk", res.AmountAtRisk))
		r.engine.bus.Publish(domain.Event{
			Kind:       domain.EventError,
			StrategyID: r.strat.ID,
			Message:    res.Err,
			Status:     &status,
			Order:      res,
		})
		return 0
	}

	r.engine.risk.OpenPosition(r.strat.Token, res.FilledAmount, res.FilledPrice,
		r.strat.StopLossPct, r.strat.TakeProfitPct)

	status = r.engine.updateStatus(r.strat.ID, func(st *domain.StrategyStatus) {
		st.ExecutedAmount += res.FilledAmount
		st.RemainingAmount = r.strat.TotalAmount - st.ExecutedAmount
		if st.RemainingAmount < 0 {
			st.RemainingAmount = 0
		}
		st.Progress = st.ExecutedAmount / r.strat.TotalAmount * 100
		if st.EntryPrice == 0 {
			st.EntryPrice = res.FilledPrice
		}
		st.CurrentPrice = res.FilledPrice
		st.LastExecution = time.Now()
		st.LastError = ""
	})
	r.engine.bus.Publish(domain.Event{
		Kind:       domain.EventExecuted,
		StrategyID: r.strat.ID,
		Status:     &status,
		Order:      res,
	})
	return res.FilledAmount
}

func (r *strategyRunner) complete() {
	status := r.engine.updateStatus(r.strat.ID, func(st *domain.StrategyStatus) {
		st.State = domain.StateCompleted
	})
	r.engine.logger.Info("Strategy completed",
		zap.String("id", r.strat.ID),
		zap.Float64("executed", status.ExecutedAmount))
	r.engine.bus.Publish(domain.Event{
		Kind:       domain.EventCompleted,
		StrategyID: r.strat.ID,
		Status:     &status,
	})
}

func (r *strategyRunner) fail(reason string) {
	status := r.engine.updateStatus(r.strat.ID, func(st *domain.StrategyStatus) {
		st.State = domain.StateError
		st.LastError = reason
	})
	r.engine.logger.Error("Strategy errored",
		zap.String("id", r.strat.ID),
		zap.String("reason", reason))
	r.engine.bus.Publish(domain.Event{
		Kind:       domain.EventError,
		StrategyID: r.strat.ID,
		Message:    reason,
		Status:     &status,
	})
}
