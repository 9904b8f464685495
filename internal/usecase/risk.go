package usecase

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

type RiskConfig struct {
	MaxPositionSize  float64       `json:"max_position_size" yaml:"max_position_size"`   // SOL per trade
	MaxTotalPosition float64       `json:"max_total_position" yaml:"max_total_position"` // SOL across all positions
	MinTradeSize     float64       `json:"min_trade_size" yaml:"min_trade_size"`
	CooldownPeriod   time.Duration `json:"cooldown_period" yaml:"cooldown_period"`
	MaxTradesPerHour int           `json:"max_trades_per_hour" yaml:"max_trades_per_hour"`
	MaxTradesPerDay  int           `json:"max_trades_per_day" yaml:"max_trades_per_day"`
	MaxDailyLoss     float64       `json:"max_daily_loss" yaml:"max_daily_loss"` // SOL, positive
	MaxDrawdownPct   float64       `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	MaxOpenPositions int           `json:"max_open_positions" yaml:"max_open_positions"`

	DefaultStopLossPct   float64 `json:"default_stop_loss_pct" yaml:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64 `json:"default_take_profit_pct" yaml:"default_take_profit_pct"`
	TrailingActivatePct  float64 `json:"trailing_activate_pct" yaml:"trailing_activate_pct"` // gain before trailing kicks in
	TrailingDistancePct  float64 `json:"trailing_distance_pct" yaml:"trailing_distance_pct"` // stop trails this far below price
}

func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		MaxPositionSize:      0.5,
		MaxTotalPosition:     2.0,
		MinTradeSize:         0.01,
		CooldownPeriod:       30 * time.Second,
		MaxTradesPerHour:     10,
		MaxTradesPerDay:      50,
		MaxDailyLoss:         0.5,
		MaxDrawdownPct:       0.15,
		MaxOpenPositions:     5,
		DefaultStopLossPct:   0.05,
		DefaultTakeProfitPct: 0.15,
		TrailingActivatePct:  0.05,
		TrailingDistancePct:  0.03,
	}
}

// TradeDecision is a value, not an error: rejections are expected, frequent
// control outcomes.
type TradeDecision struct {
	Approved     bool    `json:"approved"`
	AdjustedSize float64 `json:"adjusted_size,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// RiskSnapshot is a read-only copy for the control surface.
type RiskSnapshot struct {
	Positions      []domain.Position `json:"positions"`
	TotalValue     float64           `json:"total_value"`
	DailyPnL       float64           `json:"daily_pnl"`
	TradesThisHour int               `json:"trades_this_hour"`
	TradesToday    int               `json:"trades_today"`
	PeakEquity     float64           `json:"peak_equity"`
	CurrentEquity  float64           `json:"current_equity"`
	DrawdownPct    float64           `json:"drawdown_pct"`
}

// RiskAuthority is the single gate in front of every order. All state lives
// behind one mutex because strategy runners, the orchestrator's scan loop and
// the risk monitor all call in concurrently; an approval commits the cooldown
// and rate counters before it returns, so a second caller sees them even
// while the first trade's network round-trip is still in flight.
type RiskAuthority struct {
	cfg    RiskConfig
	logger *zap.Logger

	mu            sync.Mutex
	positions     map[string]*domain.Position
	lastTradeTime time.Time
	hourStart     time.Time
	tradesHour    int
	dayStart      time.Time
	tradesDay     int
	dailyPnL      float64
	peakEquity    float64
	currentEquity float64
	timeNow       func() time.Time // For testing
}

func NewRiskAuthority(cfg RiskConfig, logger *zap.Logger) *RiskAuthority {
	return &RiskAuthority{
		cfg:       cfg,
		logger:    logger,
		positions: make(map[string]*domain.Position),
		timeNow:   time.Now,
	}
}

// CheckTrade runs the ordered checks, short-circuiting on the first failure.
// On approval the cooldown and rate counters are already committed when the
// call returns.
func (r *RiskAuthority) CheckTrade(token string, size float64, isBuy bool) TradeDecision {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()

	// 1. Cooldown
	if !r.lastTradeTime.IsZero() {
		elapsed := now.Sub(r.lastTradeTime)
		if elapsed < r.cfg.CooldownPeriod {
			remaining := r.cfg.CooldownPeriod - elapsed
			return reject(fmt.Sprintf("cooldown active: %ds remaining", int(remaining.Seconds())+1))
		}
	}

	// 2. Rolling hour / day trade counts
	if now.Sub(r.hourStart) >= time.Hour {
		r.hourStart = now
		r.tradesHour = 0
	}
	if r.cfg.MaxTradesPerHour > 0 && r.tradesHour >= r.cfg.MaxTradesPerHour {
		return reject(fmt.Sprintf("hourly trade limit reached (%d)", r.cfg.MaxTradesPerHour))
	}
	if now.Sub(r.dayStart) >= 24*time.Hour {
		r.dayStart = now
		r.tradesDay = 0
		r.dailyPnL = 0
	}
	if r.cfg.MaxTradesPerDay > 0 && r.tradesDay >= r.cfg.MaxTradesPerDay {
		return reject(fmt.Sprintf("daily trade limit reached (%d)", r.cfg.MaxTradesPerDay))
	}

	// 3. Daily realized-loss ceiling blocks new buys
	if isBuy && r.cfg.MaxDailyLoss > 0 && r.dailyPnL <= -r.cfg.MaxDailyLoss {
		return reject(fmt.Sprintf("daily loss limit reached: %.4f SOL", r.dailyPnL))
	}

	// 4. Drawdown ceiling
	if r.peakEquity > 0 {
		drawdown := (r.peakEquity - r.currentEquity) / r.peakEquity
		if r.cfg.MaxDrawdownPct > 0 && drawdown > r.cfg.MaxDrawdownPct {
			return reject(fmt.Sprintf("drawdown %.1f%% exceeds maximum %.1f%%",
				drawdown*100, r.cfg.MaxDrawdownPct*100))
		}
	}

	// 5. Minimum size
	if size < r.cfg.MinTradeSize {
		return reject(fmt.Sprintf("trade size %.4f below minimum %.4f", size, r.cfg.MinTradeSize))
	}

	// 6. Clamp to per-trade max, then to the aggregate ceiling. A clamp that
	// lands below the minimum is a rejection, not a silent dust order.
	adjusted := size
	if adjusted > r.cfg.MaxPositionSize {
		adjusted = r.cfg.MaxPositionSize
	}
	if isBuy {
		open := r.totalValueLocked()
		if open+adjusted > r.cfg.MaxTotalPosition {
			adjusted = r.cfg.MaxTotalPosition - open
		}
		if adjusted < r.cfg.MinTradeSize {
			return reject(fmt.Sprintf("total position ceiling reached (%.4f/%.4f SOL)",
				open, r.cfg.MaxTotalPosition))
		}

		// 7. Open-position slots, unless we already hold this token
		if _, held := r.positions[token]; !held && len(r.positions) >= r.cfg.MaxOpenPositions {
			return reject(fmt.Sprintf("max open positions reached (%d)", r.cfg.MaxOpenPositions))
		}
	}

	// Commit counters before any network I/O happens upstream.
	r.lastTradeTime = now
	r.tradesHour++
	r.tradesDay++

	if adjusted != size {
		r.logger.Info("Trade size clamped",
			zap.String("token", token),
			zap.Float64("requested", size),
			zap.Float64("adjusted", adjusted))
	}
	return TradeDecision{Approved: true, AdjustedSize: adjusted}
}

// RecordTrade counts a trade that bypassed CheckTrade. Risk-originated exits
// are exempt from the gates, not from the ledger: they still consume the
// hourly and daily trade budget.
func (r *RiskAuthority) RecordTrade() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	if now.Sub(r.hourStart) >= time.Hour {
		r.hourStart = now
		r.tradesHour = 0
	}
	if now.Sub(r.dayStart) >= 24*time.Hour {
		r.dayStart = now
		r.tradesDay = 0
		r.dailyPnL = 0
	}
	r.tradesHour++
	r.tradesDay++
}

func reject(reason string) TradeDecision {
	return TradeDecision{Approved: false, Reason: reason}
}

// totalValueLocked sums open position values. Caller holds the lock.
func (r *RiskAuthority) totalValueLocked() float64 {
	total := 0.0
	for _, p := range r.positions {
		total += p.Value
	}
	return total
}

// OpenPosition records a fill. A second fill for a held token merges into the
// existing position with a weighted average entry; the stop never moves down.
func (r *RiskAuthority) OpenPosition(token string, valueSol, price, stopLossPct, takeProfitPct float64) {
	if price <= 0 || valueSol <= 0 {
		return
	}
	if stopLossPct <= 0 {
		stopLossPct = r.cfg.DefaultStopLossPct
	}
	if takeProfitPct <= 0 {
		takeProfitPct = r.cfg.DefaultTakeProfitPct
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	amount := valueSol / price
	if pos, ok := r.positions[token]; ok {
		newAmount := pos.Amount + amount
		pos.EntryPrice = (pos.EntryPrice*pos.Amount + price*amount) / newAmount
		pos.Amount = newAmount
		pos.CurrentPrice = price
		pos.Value = pos.Amount * price
		r.logger.Info("Position increased",
			zap.String("token", token),
			zap.Float64("amount", pos.Amount),
			zap.Float64("avg_entry", pos.EntryPrice))
		return
	}

	pos := &domain.Position{
		Token:           token,
		EntryPrice:      price,
		CurrentPrice:    price,
		Amount:          amount,
		Value:           valueSol,
		StopLossPrice:   price * (1 - stopLossPct),
		TakeProfitPrice: price * (1 + takeProfitPct),
		OpenedAt:        r.timeNow(),
	}
	r.positions[token] = pos
	r.logger.Info("Position opened",
		zap.String("token", token),
		zap.Float64("value_sol", valueSol),
		zap.Float64("entry", price),
		zap.Float64("stop", pos.StopLossPrice))
}

// ClosePosition removes the position and folds its realized P&L into the
// daily accumulator and equity curve. Returns the realized P&L.
func (r *RiskAuthority) ClosePosition(token string, exitPrice float64) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	pos, ok := r.positions[token]
	if !ok {
		return 0
	}
	delete(r.positions, token)

	realized := (exitPrice - pos.EntryPrice) * pos.Amount
	r.dailyPnL += realized
	r.currentEquity += realized
	if r.currentEquity > r.peakEquity {
		r.peakEquity = r.currentEquity
	}

	r.logger.Info("Position closed",
		zap.String("token", token),
		zap.Float64("exit", exitPrice),
		zap.Float64("realized_pnl", realized),
		zap.Float64("daily_pnl", r.dailyPnL))
	return realized
}

// UpdatePositions recomputes unrealized P&L for every open position and
// returns what should be done with each: CLOSE on a stop/take-profit breach,
// UPDATE_STOP when the trailing logic raised the stop, otherwise HOLD.
// The stop price is monotonically non-decreasing for a given position.
func (r *RiskAuthority) UpdatePositions(currentPrices map[string]float64) []domain.PositionAction {
	r.mu.Lock()
	defer r.mu.Unlock()

	var actions []domain.PositionAction
	for token, pos := range r.positions {
		price, ok := currentPrices[token]
		if !ok || price <= 0 {
			continue
		}

		pos.CurrentPrice = price
		pos.Value = pos.Amount * price
		pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Amount

		switch {
		case price <= pos.StopLossPrice:
			actions = append(actions, domain.PositionAction{
				Token: token, Action: domain.ActionClose, Reason: "stop-loss", Price: price,
			})
		case pos.TakeProfitPrice > 0 && price >= pos.TakeProfitPrice:
			actions = append(actions, domain.PositionAction{
				Token: token, Action: domain.ActionClose, Reason: "take-profit", Price: price,
			})
		default:
			gain := (price - pos.EntryPrice) / pos.EntryPrice
			if gain >= r.cfg.TrailingActivatePct {
				newStop := price * (1 - r.cfg.TrailingDistancePct)
				if newStop > pos.StopLossPrice {
					pos.StopLossPrice = newStop
					actions = append(actions, domain.PositionAction{
						Token: token, Action: domain.ActionUpdateStop, NewStop: newStop, Price: price,
					})
					continue
				}
			}
			actions = append(actions, domain.PositionAction{
				Token: token, Action: domain.ActionHold, Price: price,
			})
		}
	}
	return actions
}

// RecordEquity updates the equity curve. Peak equity only ever increases.
func (r *RiskAuthority) RecordEquity(current float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentEquity = current
	if current > r.peakEquity {
		r.peakEquity = current
	}
}

func (r *RiskAuthority) Position(token string) (domain.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.positions[token]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

func (r *RiskAuthority) OpenTokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens := make([]string, 0, len(r.positions))
	for t := range r.positions {
		tokens = append(tokens, t)
	}
	return tokens
}

func (r *RiskAuthority) Snapshot() RiskSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RiskSnapshot{
		DailyPnL:       r.dailyPnL,
		TradesThisHour: r.tradesHour,
		TradesToday:    r.tradesDay,
		PeakEquity:     r.peakEquity,
		CurrentEquity:  r.currentEquity,
	}
	for _, p := range r.positions {
		snap.Positions = append(snap.Positions, *p)
		snap.TotalValue += p.Value
	}
	if r.peakEquity > 0 {
		snap.DrawdownPct = (r.peakEquity - r.currentEquity) / r.peakEquity
	}
	return snap
}
