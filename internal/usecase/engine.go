package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

// OrderExecutor is what the engine needs from the order pipeline.
type OrderExecutor interface {
	Execute(ctx context.Context, token string, amount float64, direction domain.Direction) *domain.OrderResult
}

// PriceFeed is the single-price view of the venue layer. Satisfied by
// venue.MultiVenueClient.
type PriceFeed interface {
	GetPrice(ctx context.Context, token string) (float64, error)
}

type EngineConfig struct {
	TriggerPollInterval  time.Duration `json:"trigger_poll_interval" yaml:"trigger_poll_interval"`
	PriceMonitorInterval time.Duration `json:"price_monitor_interval" yaml:"price_monitor_interval"`
	MomentumWindow       int           `json:"momentum_window" yaml:"momentum_window"`
	MinWindowSamples     int           `json:"min_window_samples" yaml:"min_window_samples"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TriggerPollInterval:  5 * time.Second,
		PriceMonitorInterval: 10 * time.Second,
		MomentumWindow:       60,
		MinWindowSamples:     5,
	}
}

// StrategyEngine owns every strategy's state machine and drives order
// attempts through the risk authority and the pipeline. One runner goroutine
// per running strategy (never one per timer): stopping a strategy cancels its
// context, which tears down all of its triggers at once.
type StrategyEngine struct {
	risk     *RiskAuthority
	pipeline OrderExecutor
	prices   PriceFeed
	bus      *EventBus
	cfg      EngineConfig
	logger   *zap.Logger

	mu         sync.Mutex
	strategies map[string]*domain.TradingStrategy
	statuses   map[string]*domain.StrategyStatus
	runners    map[string]*strategyRunner
}

func NewStrategyEngine(
	risk *RiskAuthority,
	pipeline OrderExecutor,
	prices PriceFeed,
	bus *EventBus,
	cfg EngineConfig,
	logger *zap.Logger,
) *StrategyEngine {
	return &StrategyEngine{
		risk:       risk,
		pipeline:   pipeline,
		prices:     prices,
		bus:        bus,
		cfg:        cfg,
		logger:     logger,
		strategies: make(map[string]*domain.TradingStrategy),
		statuses:   make(map[string]*domain.StrategyStatus),
		runners:    make(map[string]*strategyRunner),
	}
}

// Create registers a strategy in IDLE state. The strategy is immutable after
// this point.
func (e *StrategyEngine) Create(s *domain.TradingStrategy) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now

	e.mu.Lock()
	if _, exists := e.strategies[s.ID]; exists {
		e.mu.Unlock()
		return fmt.Errorf("strategy %s already exists", s.ID)
	}
	e.strategies[s.ID] = s
	e.statuses[s.ID] = &domain.StrategyStatus{
		StrategyID:      s.ID,
		State:           domain.StateIdle,
		RemainingAmount: s.TotalAmount,
	}
	e.mu.Unlock()

	e.logger.Info("Strategy created",
		zap.String("id", s.ID),
		zap.String("kind", string(s.Kind)),
		zap.String("token", s.Token),
		zap.Float64("total", s.TotalAmount))
	e.bus.Publish(domain.Event{Kind: domain.EventCreated, StrategyID: s.ID, Message: string(s.Kind)})
	return nil
}

// Start launches the runner. Starting a PAUSED strategy resumes it; a
// COMPLETED or ERROR run is terminal until the strategy is recreated.
func (e *StrategyEngine) Start(id string) error {
	e.mu.Lock()
	strat, ok := e.strategies[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("strategy not found: %s", id)
	}
	if !strat.Enabled {
		e.mu.Unlock()
		return fmt.Errorf("strategy %s is disabled", id)
	}
	if _, running := e.runners[id]; running {
		e.mu.Unlock()
		return fmt.Errorf("strategy %s already running", id)
	}
	status := e.statuses[id]
	if status.State.Terminal() {
		e.mu.Unlock()
		return fmt.Errorf("strategy %s run is %s", id, status.State)
	}
	status.State = domain.StateRunning
	status.LastError = ""

	ctx, cancel := context.WithCancel(context.Background())
	runner := &strategyRunner{
		engine: e,
		strat:  *strat,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.runners[id] = runner
	e.mu.Unlock()

	go runner.run(ctx)

	e.logger.Info("Strategy started", zap.String("id", id), zap.String("kind", string(strat.Kind)))
	e.bus.Publish(domain.Event{Kind: domain.EventStarted, StrategyID: id})
	return nil
}

// Stop cancels the runner and all of its triggers. It is idempotent: calling
// it on an already-stopped strategy is a no-op, never an error. An order that
// is already past submission finishes asynchronously and its result is still
// recorded, but no further triggers fire.
func (e *StrategyEngine) Stop(id string) error {
	e.mu.Lock()
	if _, ok := e.strategies[id]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("strategy not found: %s", id)
	}
	runner, running := e.runners[id]
	if running {
		delete(e.runners, id)
	}
	status := e.statuses[id]
	wasRunning := status.State == domain.StateRunning
	if wasRunning {
		status.State = domain.StatePaused
	}
	e.mu.Unlock()

	if running {
		runner.stop()
		<-runner.done
	}
	if wasRunning {
		e.logger.Info("Strategy stopped", zap.String("id", id))
		e.bus.Publish(domain.Event{Kind: domain.EventStopped, StrategyID: id})
	}
	return nil
}

// Delete stops the strategy first, then removes all of its state.
func (e *StrategyEngine) Delete(id string) error {
	if err := e.Stop(id); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.strategies, id)
	delete(e.statuses, id)
	e.mu.Unlock()

	e.logger.Info("Strategy deleted", zap.String("id", id))
	return nil
}

func (e *StrategyEngine) Get(id string) (domain.TradingStrategy, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.strategies[id]
	if !ok {
		return domain.TradingStrategy{}, fmt.Errorf("strategy not found: %s", id)
	}
	return *s, nil
}

func (e *StrategyEngine) List() []domain.TradingStrategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.TradingStrategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (e *StrategyEngine) Status(id string) (domain.StrategyStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.statuses[id]
	if !ok {
		return domain.StrategyStatus{}, fmt.Errorf("strategy not found: %s", id)
	}
	return *st, nil
}

// updateStatus runs fn under the engine lock and returns a copy of the
// result. Runners use it so every status invariant holds after each callback,
// not just at quiet moments.
func (e *StrategyEngine) updateStatus(id string, fn func(*domain.StrategyStatus)) domain.StrategyStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.statuses[id]
	if !ok {
		return domain.StrategyStatus{}
	}
	fn(st)
	return *st
}

// clearRunner forgets a runner that exited on its own (completed or errored).
func (e *StrategyEngine) clearRunner(id string, r *strategyRunner) {
	e.mu.Lock()
	if e.runners[id] == r {
		delete(e.runners, id)
	}
	e.mu.Unlock()
}
