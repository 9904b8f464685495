package usecase

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

// riskFixture wires a RiskAuthority to a controllable clock.
type riskFixture struct {
	risk *RiskAuthority
	now  time.Time
}

func newRiskFixture(cfg RiskConfig) *riskFixture {
	f := &riskFixture{
		risk: NewRiskAuthority(cfg, zap.NewNop()),
		now:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.risk.timeNow = func() time.Time { return f.now }
	return f
}

func (f *riskFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestCheckTrade_Cooldown(t *testing.T) {
	f := newRiskFixture(DefaultRiskConfig())

	first := f.risk.CheckTrade("BONK", 0.1, true)
	if !first.Approved {
		t.Fatalf("first trade should be approved, got: %s", first.Reason)
	}

	f.advance(10 * time.Second)
	second := f.risk.CheckTrade("BONK", 0.1, true)
	if second.Approved {
		t.Fatal("trade inside cooldown should be rejected")
	}
	if !strings.Contains(second.Reason, "cooldown") {
		t.Fatalf("expected cooldown reason, got: %s", second.Reason)
	}

	f.advance(21 * time.Second)
	third := f.risk.CheckTrade("BONK", 0.1, true)
	if !third.Approved {
		t.Fatalf("trade after cooldown should be approved, got: %s", third.Reason)
	}
}

func TestCheckTrade_ClampsToMaxPositionSize(t *testing.T) {
	f := newRiskFixture(DefaultRiskConfig())

	d := f.risk.CheckTrade("BONK", 0.6, true)
	if !d.Approved {
		t.Fatalf("oversized trade should be clamped, not rejected: %s", d.Reason)
	}
	if d.AdjustedSize != 0.5 {
		t.Fatalf("expected clamp to 0.5, got %f", d.AdjustedSize)
	}
}

func TestCheckTrade_RejectsBelowMinimum(t *testing.T) {
	f := newRiskFixture(DefaultRiskConfig())

	d := f.risk.CheckTrade("BONK", 0.001, true)
	if d.Approved {
		t.Fatal("dust trade should be rejected")
	}
	if !strings.Contains(d.Reason, "below minimum") {
		t.Fatalf("expected minimum size reason, got: %s", d.Reason)
	}
}

// Total open value never exceeds the aggregate ceiling no matter how the
// trade sequence is shaped: every approval is either full size, clamped to
// the remainder, or a rejection once the remainder dips below the minimum.
func TestCheckTrade_AggregateCeiling(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.CooldownPeriod = 0
	f := newRiskFixture(cfg)

	tokens := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	requested := []float64{0.5, 0.5, 0.5, 0.4, 0.3}
	for i, size := range requested {
		d := f.risk.CheckTrade(tokens[i], size, true)
		total := f.risk.Snapshot().TotalValue
		if d.Approved {
			if total+d.AdjustedSize > cfg.MaxTotalPosition+1e-9 {
				t.Fatalf("approval %d would breach ceiling: open=%f adjusted=%f", i, total, d.AdjustedSize)
			}
			f.risk.OpenPosition(tokens[i], d.AdjustedSize, 1.0, 0, 0)
		}
		f.advance(time.Second)
	}

	if total := f.risk.Snapshot().TotalValue; total > cfg.MaxTotalPosition+1e-9 {
		t.Fatalf("total value %f exceeds ceiling %f", total, cfg.MaxTotalPosition)
	}

	// Ceiling is now fully consumed, the next buy must be rejected.
	d := f.risk.CheckTrade("FFF", 0.2, true)
	if d.Approved {
		t.Fatalf("trade past the ceiling should be rejected, adjusted=%f", d.AdjustedSize)
	}
	if !strings.Contains(d.Reason, "ceiling") {
		t.Fatalf("expected ceiling reason, got: %s", d.Reason)
	}
}

func TestCheckTrade_OpenPositionSlots(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.CooldownPeriod = 0
	cfg.MaxTotalPosition = 100 // keep the ceiling out of the way
	f := newRiskFixture(cfg)

	tokens := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	for _, token := range tokens {
		d := f.risk.CheckTrade(token, 0.1, true)
		if !d.Approved {
			t.Fatalf("trade for %s should be approved: %s", token, d.Reason)
		}
		f.risk.OpenPosition(token, d.AdjustedSize, 1.0, 0, 0)
	}

	if d := f.risk.CheckTrade("FFF", 0.1, true); d.Approved {
		t.Fatal("sixth token should be rejected, all slots taken")
	}
	// But adding to a token we already hold is fine.
	if d := f.risk.CheckTrade("AAA", 0.1, true); !d.Approved {
		t.Fatalf("top-up of held token should be approved: %s", d.Reason)
	}
}

func TestCheckTrade_HourlyLimit(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.CooldownPeriod = 0
	f := newRiskFixture(cfg)

	for i := 0; i < cfg.MaxTradesPerHour; i++ {
		if d := f.risk.CheckTrade("BONK", 0.1, true); !d.Approved {
			t.Fatalf("trade %d should be approved: %s", i, d.Reason)
		}
		f.advance(time.Minute)
	}
	if d := f.risk.CheckTrade("BONK", 0.1, true); d.Approved {
		t.Fatal("trade past hourly limit should be rejected")
	}

	// A fresh rolling hour resets the counter.
	f.advance(time.Hour)
	if d := f.risk.CheckTrade("BONK", 0.1, true); !d.Approved {
		t.Fatalf("trade in fresh hour should be approved: %s", d.Reason)
	}
}

func TestRecordTrade_CountsBypassedExits(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.CooldownPeriod = 0
	f := newRiskFixture(cfg)

	if d := f.risk.CheckTrade("BONK", 0.1, true); !d.Approved {
		t.Fatalf("entry should be approved: %s", d.Reason)
	}
	f.risk.RecordTrade() // a stop-loss exit that skipped CheckTrade

	snap := f.risk.Snapshot()
	if snap.TradesThisHour != 2 {
		t.Fatalf("expected both trades counted, got %d", snap.TradesThisHour)
	}
	if snap.TradesToday != 2 {
		t.Fatalf("expected both trades in the daily count, got %d", snap.TradesToday)
	}

	// The counter still rolls over with the clock.
	f.advance(time.Hour)
	f.risk.RecordTrade()
	if got := f.risk.Snapshot().TradesThisHour; got != 1 {
		t.Fatalf("expected a fresh hourly count, got %d", got)
	}
}

func TestCheckTrade_DailyLossBlocksBuys(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.CooldownPeriod = 0
	f := newRiskFixture(cfg)

	// Realize a loss past the daily ceiling: 1 unit bought at 1.0, sold at 0.4.
	f.risk.OpenPosition("BONK", 1.0, 1.0, 0, 0)
	realized := f.risk.ClosePosition("BONK", 0.4)
	if realized >= -cfg.MaxDailyLoss {
		t.Fatalf("fixture should realize a loss past the limit, got %f", realized)
	}

	if d := f.risk.CheckTrade("WIF", 0.1, true); d.Approved {
		t.Fatal("buy after daily loss limit should be rejected")
	}
	// Sells stay allowed so positions can still be exited.
	if d := f.risk.CheckTrade("WIF", 0.1, false); !d.Approved {
		t.Fatalf("sell after daily loss limit should be approved: %s", d.Reason)
	}
}

func TestCheckTrade_Drawdown(t *testing.T) {
	cfg := DefaultRiskConfig()
	cfg.CooldownPeriod = 0
	cfg.MaxDailyLoss = 0 // isolate the drawdown check
	f := newRiskFixture(cfg)

	f.risk.RecordEquity(100)
	f.risk.RecordEquity(80)

	d := f.risk.CheckTrade("BONK", 0.1, true)
	if d.Approved {
		t.Fatal("trade during 20% drawdown should be rejected")
	}
	if !strings.Contains(d.Reason, "drawdown") {
		t.Fatalf("expected drawdown reason, got: %s", d.Reason)
	}

	// Recovery clears the gate.
	f.risk.RecordEquity(95)
	if d := f.risk.CheckTrade("BONK", 0.1, true); !d.Approved {
		t.Fatalf("trade after recovery should be approved: %s", d.Reason)
	}
}

func TestUpdatePositions_TrailingStopIsMonotonic(t *testing.T) {
	cfg := DefaultRiskConfig()
	f := newRiskFixture(cfg)

	f.risk.OpenPosition("BONK", 1.0, 100, 0, 0)
	pos, _ := f.risk.Position("BONK")
	if pos.StopLossPrice != 95 {
		t.Fatalf("expected default stop at 95, got %f", pos.StopLossPrice)
	}

	// Gain past activation raises the stop.
	actions := f.risk.UpdatePositions(map[string]float64{"BONK": 110})
	if len(actions) != 1 || actions[0].Action != domain.ActionUpdateStop {
		t.Fatalf("expected UPDATE_STOP, got %+v", actions)
	}
	raised := actions[0].NewStop
	if raised <= 95 {
		t.Fatalf("stop should have been raised above 95, got %f", raised)
	}

	// Pullback that would imply a lower stop must not move it.
	actions = f.risk.UpdatePositions(map[string]float64{"BONK": 108})
	if len(actions) != 1 || actions[0].Action != domain.ActionHold {
		t.Fatalf("expected HOLD on pullback, got %+v", actions)
	}
	pos, _ = f.risk.Position("BONK")
	if pos.StopLossPrice != raised {
		t.Fatalf("stop moved down from %f to %f", raised, pos.StopLossPrice)
	}

	// Falling through the raised stop closes the position.
	actions = f.risk.UpdatePositions(map[string]float64{"BONK": raised - 1})
	if len(actions) != 1 || actions[0].Action != domain.ActionClose || actions[0].Reason != "stop-loss" {
		t.Fatalf("expected stop-loss CLOSE, got %+v", actions)
	}
}

func TestUpdatePositions_TakeProfit(t *testing.T) {
	f := newRiskFixture(DefaultRiskConfig())

	f.risk.OpenPosition("BONK", 1.0, 100, 0.05, 0.15)
	actions := f.risk.UpdatePositions(map[string]float64{"BONK": 116})
	if len(actions) != 1 || actions[0].Action != domain.ActionClose || actions[0].Reason != "take-profit" {
		t.Fatalf("expected take-profit CLOSE, got %+v", actions)
	}
}

func TestOpenPosition_MergesWithWeightedEntry(t *testing.T) {
	f := newRiskFixture(DefaultRiskConfig())

	f.risk.OpenPosition("BONK", 1.0, 100, 0, 0) // 0.01 units @ 100
	f.risk.OpenPosition("BONK", 1.0, 200, 0, 0) // 0.005 units @ 200

	pos, ok := f.risk.Position("BONK")
	if !ok {
		t.Fatal("position should exist")
	}
	want := (100*0.01 + 200*0.005) / 0.015
	if diff := pos.EntryPrice - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected weighted entry %f, got %f", want, pos.EntryPrice)
	}
}
