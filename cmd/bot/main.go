package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/avel/solana_strategy_bot/internal/domain"
	"github.com/avel/solana_strategy_bot/internal/infrastructure/logger"
	"github.com/avel/solana_strategy_bot/internal/infrastructure/notify"
	"github.com/avel/solana_strategy_bot/internal/infrastructure/relay"
	"github.com/avel/solana_strategy_bot/internal/infrastructure/venue"
	"github.com/avel/solana_strategy_bot/internal/usecase"
	"github.com/avel/solana_strategy_bot/internal/web"
)

type Config struct {
	Venues struct {
		DexScreenerURL   string `yaml:"dexscreener_url"`
		GeckoTerminalURL string `yaml:"geckoterminal_url"`
		PriceCacheTTLMs  int    `yaml:"price_cache_ttl_ms"`
	} `yaml:"venues"`
	Jupiter struct {
		BaseURL     string `yaml:"base_url"`
		SlippageBps int    `yaml:"slippage_bps"`
	} `yaml:"jupiter"`
	Relay struct {
		JitoURL   string `yaml:"jito_url"`
		WalletKey string `yaml:"wallet_key"`
		PublicKey string `yaml:"public_key"`
	} `yaml:"relay"`
	Scanner usecase.ScannerConfig `yaml:"scanner"`
	Risk    struct {
		MaxPositionSize      float64 `yaml:"max_position_size"`
		MaxTotalPosition     float64 `yaml:"max_total_position"`
		MinTradeSize         float64 `yaml:"min_trade_size"`
		CooldownSec          int     `yaml:"cooldown_sec"`
		MaxTradesPerHour     int     `yaml:"max_trades_per_hour"`
		MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
		MaxDailyLoss         float64 `yaml:"max_daily_loss"`
		MaxDrawdownPct       float64 `yaml:"max_drawdown_pct"`
		MaxOpenPositions     int     `yaml:"max_open_positions"`
		DefaultStopLossPct   float64 `yaml:"default_stop_loss_pct"`
		DefaultTakeProfitPct float64 `yaml:"default_take_profit_pct"`
		TrailingActivatePct  float64 `yaml:"trailing_activate_pct"`
		TrailingDistancePct  float64 `yaml:"trailing_distance_pct"`
	} `yaml:"risk"`
	Pipeline struct {
		BaseToken          string `yaml:"base_token"`
		QuoteTimeoutMs     int    `yaml:"quote_timeout_ms"`
		UseMEVProtection   bool   `yaml:"use_mev_protection"`
		TipLamports        uint64 `yaml:"tip_lamports"`
		MaxConfirmAttempts int    `yaml:"max_confirm_attempts"`
		PollIntervalMs     int    `yaml:"poll_interval_ms"`
	} `yaml:"pipeline"`
	Engine struct {
		TriggerPollMs    int `yaml:"trigger_poll_ms"`
		PriceMonitorMs   int `yaml:"price_monitor_ms"`
		MomentumWindow   int `yaml:"momentum_window"`
		MinWindowSamples int `yaml:"min_window_samples"`
	} `yaml:"engine"`
	Orchestrator struct {
		Tokens           []string `yaml:"tokens"`
		ScanIntervalSec  int      `yaml:"scan_interval_sec"`
		RiskMonitorSec   int      `yaml:"risk_monitor_sec"`
		AutoExecute      bool     `yaml:"auto_execute"`
		AlertOnly        bool     `yaml:"alert_only"`
		TradeSize        float64  `yaml:"trade_size"`
		HistoryLimit     int      `yaml:"history_limit"`
		OpportunityLimit int      `yaml:"opportunity_limit"`
	} `yaml:"orchestrator"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// buildRiskConfig overlays the yaml values on the defaults so an omitted
// field keeps its safe value instead of becoming zero.
func buildRiskConfig(cfg *Config) usecase.RiskConfig {
	out := usecase.DefaultRiskConfig()
	if cfg.Risk.MaxPositionSize > 0 {
		out.MaxPositionSize = cfg.Risk.MaxPositionSize
	}
	if cfg.Risk.MaxTotalPosition > 0 {
		out.MaxTotalPosition = cfg.Risk.MaxTotalPosition
	}
	if cfg.Risk.MinTradeSize > 0 {
		out.MinTradeSize = cfg.Risk.MinTradeSize
	}
	if cfg.Risk.CooldownSec > 0 {
		out.CooldownPeriod = time.Duration(cfg.Risk.CooldownSec) * time.Second
	}
	if cfg.Risk.MaxTradesPerHour > 0 {
		out.MaxTradesPerHour = cfg.Risk.MaxTradesPerHour
	}
	if cfg.Risk.MaxTradesPerDay > 0 {
		out.MaxTradesPerDay = cfg.Risk.MaxTradesPerDay
	}
	if cfg.Risk.MaxDailyLoss > 0 {
		out.MaxDailyLoss = cfg.Risk.MaxDailyLoss
	}
	if cfg.Risk.MaxDrawdownPct > 0 {
		out.MaxDrawdownPct = cfg.Risk.MaxDrawdownPct
	}
	if cfg.Risk.MaxOpenPositions > 0 {
		out.MaxOpenPositions = cfg.Risk.MaxOpenPositions
	}
	if cfg.Risk.DefaultStopLossPct > 0 {
		out.DefaultStopLossPct = cfg.Risk.DefaultStopLossPct
	}
	if cfg.Risk.DefaultTakeProfitPct > 0 {
		out.DefaultTakeProfitPct = cfg.Risk.DefaultTakeProfitPct
	}
	if cfg.Risk.TrailingActivatePct > 0 {
		out.TrailingActivatePct = cfg.Risk.TrailingActivatePct
	}
	if cfg.Risk.TrailingDistancePct > 0 {
		out.TrailingDistancePct = cfg.Risk.TrailingDistancePct
	}
	return out
}

func buildPipelineConfig(cfg *Config) usecase.PipelineConfig {
	out := usecase.DefaultPipelineConfig()
	if cfg.Pipeline.BaseToken != "" {
		out.BaseToken = cfg.Pipeline.BaseToken
	}
	if cfg.Pipeline.QuoteTimeoutMs > 0 {
		out.QuoteTimeout = time.Duration(cfg.Pipeline.QuoteTimeoutMs) * time.Millisecond
	}
	out.UseMEVProtection = cfg.Pipeline.UseMEVProtection
	if cfg.Pipeline.TipLamports > 0 {
		out.TipLamports = cfg.Pipeline.TipLamports
	}
	if cfg.Pipeline.MaxConfirmAttempts > 0 {
		out.MaxConfirmAttempts = cfg.Pipeline.MaxConfirmAttempts
	}
	if cfg.Pipeline.PollIntervalMs > 0 {
		out.PollInterval = time.Duration(cfg.Pipeline.PollIntervalMs) * time.Millisecond
	}
	return out
}

func buildEngineConfig(cfg *Config) usecase.EngineConfig {
	out := usecase.DefaultEngineConfig()
	if cfg.Engine.TriggerPollMs > 0 {
		out.TriggerPollInterval = time.Duration(cfg.Engine.TriggerPollMs) * time.Millisecond
	}
	if cfg.Engine.PriceMonitorMs > 0 {
		out.PriceMonitorInterval = time.Duration(cfg.Engine.PriceMonitorMs) * time.Millisecond
	}
	if cfg.Engine.MomentumWindow > 0 {
		out.MomentumWindow = cfg.Engine.MomentumWindow
	}
	if cfg.Engine.MinWindowSamples > 0 {
		out.MinWindowSamples = cfg.Engine.MinWindowSamples
	}
	return out
}

func buildOrchestratorConfig(cfg *Config) usecase.OrchestratorConfig {
	out := usecase.DefaultOrchestratorConfig()
	out.Tokens = cfg.Orchestrator.Tokens
	if cfg.Orchestrator.ScanIntervalSec > 0 {
		out.ScanInterval = time.Duration(cfg.Orchestrator.ScanIntervalSec) * time.Second
	}
	if cfg.Orchestrator.RiskMonitorSec > 0 {
		out.RiskMonitorInterval = time.Duration(cfg.Orchestrator.RiskMonitorSec) * time.Second
	}
	out.AutoExecute = cfg.Orchestrator.AutoExecute
	out.AlertOnly = cfg.Orchestrator.AlertOnly
	if cfg.Orchestrator.TradeSize > 0 {
		out.TradeSize = cfg.Orchestrator.TradeSize
	}
	if cfg.Orchestrator.HistoryLimit > 0 {
		out.HistoryLimit = cfg.Orchestrator.HistoryLimit
	}
	if cfg.Orchestrator.OpportunityLimit > 0 {
		out.OpportunityLimit = cfg.Orchestrator.OpportunityLimit
	}
	// The control surface reads and hot-swaps these through the orchestrator.
	out.Scanner = cfg.Scanner
	out.Pipeline = buildPipelineConfig(cfg)
	return out
}

func main() {
	// 1. Load Config
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Venues
	ttl := time.Duration(cfg.Venues.PriceCacheTTLMs) * time.Millisecond
	venues := []domain.VenueClient{
		venue.NewDexScreenerClient(cfg.Venues.DexScreenerURL),
		venue.NewGeckoTerminalClient(cfg.Venues.GeckoTerminalURL),
	}
	multiVenue := venue.NewMultiVenueClient(venues, ttl, log)

	// 4. Init Execution Path (Jupiter quotes, local signer, Jito relay)
	walletKey := cfg.Relay.WalletKey
	if env := os.Getenv("BOT_WALLET_KEY"); env != "" {
		walletKey = env
	}
	var signer domain.TransactionSigner = relay.NoWallet{}
	if walletKey != "" {
		wallet, err := relay.NewWallet(walletKey)
		if err != nil {
			log.Fatal("Failed to load wallet", zap.Error(err))
		}
		signer = wallet
	} else {
		// Without a key the bot can only watch the market.
		log.Warn("No wallet key configured, forcing alert-only mode")
		cfg.Orchestrator.AlertOnly = true
		cfg.Orchestrator.AutoExecute = false
	}
	jupiterClient := venue.NewJupiterClient(cfg.Jupiter.BaseURL, cfg.Relay.PublicKey, cfg.Jupiter.SlippageBps)
	jitoClient := relay.NewJitoClient(cfg.Relay.JitoURL, log)

	// 5. Init Core Services
	bus := usecase.NewEventBus(log)
	risk := usecase.NewRiskAuthority(buildRiskConfig(cfg), log)
	scanner := usecase.NewOpportunityScanner(multiVenue, cfg.Scanner, log)
	pipeline := usecase.NewOrderPipeline(jupiterClient, signer, jitoClient, buildPipelineConfig(cfg), log)
	engine := usecase.NewStrategyEngine(risk, pipeline, multiVenue, bus, buildEngineConfig(cfg), log)
	notifier := notify.NewLogNotifier(log)

	orchestrator := usecase.NewOrchestrator(
		scanner, risk, pipeline, engine, multiVenue, bus, notifier, buildOrchestratorConfig(cfg), log)

	// 6. Start Scan Loop
	if err := orchestrator.Start(); err != nil {
		log.Fatal("Failed to start orchestrator", zap.Error(err))
	}

	// 7. Init Web Server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080 // Default
	}
	server := web.NewServer(port, engine, orchestrator, risk, bus, log)

	// 8. Start Server
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 9. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	orchestrator.Stop()
	for _, strat := range engine.List() {
		if err := engine.Stop(strat.ID); err != nil {
			log.Error("Failed to stop strategy", zap.String("id", strat.ID), zap.Error(err))
		}
	}
	server.Shutdown(context.Background())
}
