package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

type PipelineConfig struct {
	BaseToken          string        `json:"base_token" yaml:"base_token"` // what we spend on buys
	QuoteTimeout       time.Duration `json:"quote_timeout" yaml:"quote_timeout"`
	UseMEVProtection   bool          `json:"use_mev_protection" yaml:"use_mev_protection"`
	TipLamports        uint64        `json:"tip_lamports" yaml:"tip_lamports"`
	MaxConfirmAttempts int           `json:"max_confirm_attempts" yaml:"max_confirm_attempts"`
	PollInterval       time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BaseToken:          "SOL",
		QuoteTimeout:       5 * time.Second,
		UseMEVProtection:   true,
		TipLamports:        100_000,
		MaxConfirmAttempts: 10,
		PollInterval:       2 * time.Second,
	}
}

// OrderPipeline runs quote -> build -> sign -> submit -> confirm for one
// order. It never returns an error: every failure mode is folded into a
// failed OrderResult so a strategy's scheduling loop cannot be crashed by a
// flaky network. Retry policy belongs to the caller, which must re-enter the
// risk authority before trying again.
type OrderPipeline struct {
	quotes domain.QuoteProvider
	signer domain.TransactionSigner
	relay  domain.BundleRelay
	logger *zap.Logger

	mu  sync.RWMutex
	cfg PipelineConfig
}

func NewOrderPipeline(
	quotes domain.QuoteProvider,
	signer domain.TransactionSigner,
	relay domain.BundleRelay,
	cfg PipelineConfig,
	logger *zap.Logger,
) *OrderPipeline {
	return &OrderPipeline{
		quotes: quotes,
		signer: signer,
		relay:  relay,
		cfg:    cfg,
		logger: logger,
	}
}

// UpdateConfig hot-swaps the execution parameters. An order already in flight
// finishes under the settings it started with.
func (p *OrderPipeline) UpdateConfig(cfg PipelineConfig) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *OrderPipeline) Config() PipelineConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Execute swaps amount SOL into token (BUY) or token back into SOL (SELL) and
// waits for confirmation within the attempt budget.
func (p *OrderPipeline) Execute(ctx context.Context, token string, amount float64, direction domain.Direction) *domain.OrderResult {
	cfg := p.Config()
	start := time.Now()
	res := &domain.OrderResult{
		ID:        uuid.NewString(),
		Token:     token,
		Direction: direction,
		CreatedAt: start,
	}
	finish := func() *domain.OrderResult {
		res.Elapsed = time.Since(start)
		return res
	}

	tokenIn, tokenOut := cfg.BaseToken, token
	if direction == domain.DirectionSell {
		tokenIn, tokenOut = token, cfg.BaseToken
	}

	// (a) Quote, fail fast on timeout.
	qctx, cancel := context.WithTimeout(ctx, cfg.QuoteTimeout)
	quote, err := p.quotes.GetQuote(qctx, tokenIn, tokenOut, amount)
	cancel()
	if err != nil {
		res.Err = fmt.Sprintf("%s: %v", domain.OrderErrQuoteFailed, err)
		p.logger.Warn("Quote failed", zap.String("order", res.ID), zap.Error(err))
		return finish()
	}

	// (b) Build.
	tx, err := p.quotes.BuildSwapTransaction(ctx, quote)
	if err != nil {
		res.Err = fmt.Sprintf("%s: %v", domain.OrderErrBuildFailed, err)
		p.logger.Warn("Transaction build failed", zap.String("order", res.ID), zap.Error(err))
		return finish()
	}

	// (c) Sign.
	signed, err := p.signer.Sign(tx)
	if err != nil {
		res.Err = fmt.Sprintf("%s: sign: %v", domain.OrderErrBuildFailed, err)
		return finish()
	}

	// (d) Submit, with a tip when MEV protection is on. From here on a
	// failure is a potential partial loss, not a clean no-op.
	tip := uint64(0)
	if cfg.UseMEVProtection {
		tip = cfg.TipLamports
	}
	bundleID, err := p.relay.SubmitBundle(ctx, []string{signed}, tip)
	if err != nil {
		res.Err = fmt.Sprintf("%s: %v", domain.OrderErrSubmitFailed, err)
		res.AmountAtRisk = amount
		p.logger.Error("Submission failed after successful quote",
			zap.String("order", res.ID),
			zap.Float64("amount_at_risk", amount),
			zap.Error(err))
		return finish()
	}
	res.BundleID = bundleID

	// (e) Poll for confirmation with a bounded attempt budget.
	for attempt := 0; attempt < cfg.MaxConfirmAttempts; attempt++ {
		select {
		case <-ctx.Done():
			res.Err = fmt.Sprintf("%s: %v", domain.OrderErrBundleTimeout, ctx.Err())
			res.AmountAtRisk = amount
			return finish()
		case <-time.After(cfg.PollInterval):
		}

		status, err := p.relay.GetBundleStatus(ctx, bundleID)
		if err != nil {
			p.logger.Debug("Bundle status poll failed",
				zap.String("bundle", bundleID), zap.Error(err))
			continue
		}
		if status.Err != "" {
			res.Err = fmt.Sprintf("%s: %s", domain.OrderErrBundleRejected, status.Err)
			res.AmountAtRisk = amount
			return finish()
		}
		if status.Confirmed {
			res.Success = true
			res.FilledAmount = amount
			res.FilledPrice = fillPrice(quote, direction)
			p.logger.Info("Order confirmed",
				zap.String("order", res.ID),
				zap.String("bundle", bundleID),
				zap.Uint64("slot", status.Slot),
				zap.Float64("price", res.FilledPrice))
			return finish()
		}
	}

	res.Err = domain.OrderErrBundleTimeout
	res.AmountAtRisk = amount
	p.logger.Error("Bundle unconfirmed after attempt budget",
		zap.String("order", res.ID),
		zap.String("bundle", bundleID),
		zap.Int("attempts", cfg.MaxConfirmAttempts))
	return finish()
}

// fillPrice derives the effective token price from the quote: SOL paid per
// token on a buy, SOL received per token on a sell.
func fillPrice(q *domain.Quote, direction domain.Direction) float64 {
	if direction == domain.DirectionBuy {
		if q.OutAmount <= 0 {
			return 0
		}
		return q.InAmount / q.OutAmount
	}
	if q.InAmount <= 0 {
		return 0
	}
	return q.OutAmount / q.InAmount
}
