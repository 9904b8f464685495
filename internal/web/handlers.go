package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/avel/solana_strategy_bot/internal/domain"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.List())
}

func (s *Server) handleCreateStrategy(w http.ResponseWriter, r *http.Request) {
	var strat domain.TradingStrategy
	if err := json.NewDecoder(r.Body).Decode(&strat); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.Create(&strat); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"success": true, "strategy": strat})
}

func (s *Server) handleGetStrategy(w http.ResponseWriter, r *http.Request) {
	strat, err := s.engine.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, strat)
}

func (s *Server) handleDeleteStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleStartStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Start(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleStopStrategy(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Stop(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleStrategyStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	opps := s.orchestrator.ScanTick(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "opportunities": opps})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orchestrator.Opportunities())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orchestrator.History())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orchestrator.Stats())
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.risk.Snapshot().Positions)
}

func (s *Server) handleRiskSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.risk.Snapshot())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.orchestrator.Config())
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.orchestrator.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.orchestrator.UpdateConfig(cfg)
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": s.orchestrator.Config()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	running := 0
	for _, strat := range s.engine.List() {
		if status, err := s.engine.Status(strat.ID); err == nil && status.State == domain.StateRunning {
			running++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"scanning":   s.orchestrator.Running(),
		"strategies": len(s.engine.List()),
		"running":    running,
	})
}
