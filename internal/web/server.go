package web

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/usecase"
)

type Server struct {
	router       *http.ServeMux
	server       *http.Server
	engine       *usecase.StrategyEngine
	orchestrator *usecase.Orchestrator
	risk         *usecase.RiskAuthority
	bus          *usecase.EventBus
	logger       *zap.Logger
}

func NewServer(
	port int,
	engine *usecase.StrategyEngine,
	orchestrator *usecase.Orchestrator,
	risk *usecase.RiskAuthority,
	bus *usecase.EventBus,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:       http.NewServeMux(),
		engine:       engine,
		orchestrator: orchestrator,
		risk:         risk,
		bus:          bus,
		logger:       logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Strategies
	s.router.HandleFunc("GET /api/strategies", s.handleListStrategies)
	s.router.HandleFunc("POST /api/strategies", s.handleCreateStrategy)
	s.router.HandleFunc("GET /api/strategies/{id}", s.handleGetStrategy)
	s.router.HandleFunc("DELETE /api/strategies/{id}", s.handleDeleteStrategy)
	s.router.HandleFunc("POST /api/strategies/{id}/start", s.handleStartStrategy)
	s.router.HandleFunc("POST /api/strategies/{id}/stop", s.handleStopStrategy)
	s.router.HandleFunc("GET /api/strategies/{id}/status", s.handleStrategyStatus)

	// Scanner
	s.router.HandleFunc("POST /api/scan", s.handleScan)
	s.router.HandleFunc("GET /api/opportunities", s.handleOpportunities)

	// Executions
	s.router.HandleFunc("GET /api/history", s.handleHistory)
	s.router.HandleFunc("GET /api/stats", s.handleStats)

	// Risk
	s.router.HandleFunc("GET /api/positions", s.handlePositions)
	s.router.HandleFunc("GET /api/risk", s.handleRiskSnapshot)

	// Config
	s.router.HandleFunc("GET /api/config", s.handleGetConfig)
	s.router.HandleFunc("PUT /api/config", s.handleUpdateConfig)

	// Event stream
	s.router.HandleFunc("GET /ws/events", s.handleEventStream)

	// Status
	s.router.HandleFunc("GET /status", s.handleStatus)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
