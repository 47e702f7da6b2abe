// Copybot - Autonomous on-chain copy-trade execution bot
//
// Watches a set of followed wallets, buffers their trades behind a
// confirmation delay, and replays the survivors through a two-stage
// risk gate into the best execution venue.
//
// Pipeline:
// 1. Poll transfer logs for followed-wallet activity
// 2. Promote signals after the copy delay, evict stale ones
// 3. Hard gate (safety guardian), then soft gate (Kelly sizing)
// 4. Queue the order, execute by priority, confirm on-chain
// 5. Fold fills back into positions, stop-loss watches the drawdown
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/bot"
	"github.com/web3guy0/copybot/chain"
	"github.com/web3guy0/copybot/core"
	"github.com/web3guy0/copybot/execution"
	"github.com/web3guy0/copybot/feeds"
	"github.com/web3guy0/copybot/gas"
	"github.com/web3guy0/copybot/internal/config"
	"github.com/web3guy0/copybot/risk"
	"github.com/web3guy0/copybot/router"
	"github.com/web3guy0/copybot/safety"
	"github.com/web3guy0/copybot/storage"
	"github.com/web3guy0/copybot/types"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Str("mode", string(cfg.Mode)).
		Int("wallets", len(cfg.FollowedWallets)).
		Msg("⚡ Copybot starting...")

	// Process state: mode is fixed here, the latch is shared everywhere
	state := types.NewState(cfg.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ====== CHAIN ADAPTER ======
	// Picked once at startup; nothing downstream knows which one it got.
	var client chain.Client
	var quoter chain.Quoter
	var simRand *rand.Rand

	if cfg.Mode.Live() {
		ethClient, err := chain.NewEthClient(cfg.RPCURL, cfg.PrivateKey, cfg.SubmitRetries)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect chain client")
		}
		client = ethClient
		quoter = router.NewHTTPQuoter(cfg.VenueBaseURL)
		log.Info().Str("rpc", cfg.RPCURL).Msg("⛓️ Chain client connected")
	} else {
		sim := chain.NewSimClient(cfg.SimSeed)
		sim.SetBalance(cfg.WalletAddress, cfg.InitialBalance)
		sim.SetPrice(core.StableToken(), decimal.NewFromInt(1))
		client = sim
		quoter = sim
		simRand = rand.New(rand.NewSource(cfg.SimSeed))
		log.Info().Int64("seed", cfg.SimSeed).Msg("🧪 Simulation chain client ready")
	}

	// ====== CORE COMPONENTS ======

	db, err := storage.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open trade archive")
	}

	// A halt survives a restart: restore today's latch from the archive
	if row, err := db.LoadRiskState(time.Now().Format("2006-01-02")); err == nil && row != nil && row.Halted {
		state.TripEmergencyStop("restored from archive: " + row.StopReason)
	}

	history := storage.NewHistory()

	gasCalc := gas.NewCalculator(client, cfg.GasCeilingGwei)
	optimizer := router.NewOptimizer(quoter, cfg.Venues)

	engine := execution.NewEngine(state, client, optimizer, gasCalc, execution.Config{
		Wallet:         cfg.WalletAddress,
		ReceiptTimeout: cfg.ReceiptTimeout,
		OrderDeadline:  cfg.OrderDeadline,
		SimRand:        simRand,
	})

	pipeline := feeds.NewPipeline(client, cfg.FollowedWallets, feeds.PipelineConfig{
		CopyDelayBlocks:    cfg.CopyDelayBlocks,
		MaxAgeBlocks:       cfg.SignalMaxAgeBlocks,
		MinConfidence:      cfg.MinConfidence,
		ConsensusThreshold: cfg.ConsensusThreshold,
		ConsensusWindow:    cfg.ConsensusWindow,
	})

	riskMgr := risk.NewManager(risk.Limits{
		MaxPositionSize:     cfg.MaxPositionSize,
		MaxRiskPerTrade:     cfg.MaxRiskPerTrade,
		MaxCorrelatedExpo:   cfg.MaxCorrelatedExpo,
		KellySafetyFraction: cfg.KellySafetyFraction,
		VaRConfidence:       cfg.VaRConfidence,
		Categories:          cfg.TokenCategories,
	}, cfg.InitialBalance)

	guardian := safety.NewGuardian(state, safety.Limits{
		InitialBalance:  cfg.InitialBalance,
		StopLossPercent: cfg.StopLossPercent,
		MaxDailyTrades:  cfg.MaxDailyTrades,
		MaxTradeValue:   cfg.MaxTradeValue,
		MaxLossStreak:   cfg.MaxLossStreak,
	}, cfg.Blacklist)

	// ====== PRICE FEED ======
	priceFeed := feeds.NewPriceFeed(cfg.PriceFeedURL, cfg.PriceFeedPairs)
	priceFeed.OnPrice(func(symbol string, price decimal.Decimal) {
		riskMgr.UpdatePrice(symbol, price)
	})
	priceFeed.Start()

	// ====== ORCHESTRATION ======
	c := core.New(cfg, state, client, pipeline, engine, riskMgr, guardian, history, db, nil)

	var telegram *bot.TelegramBot
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegram, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, c)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram disabled")
		} else {
			telegram.SetControlCallbacks(
				func() { state.TripEmergencyStop("paused by operator") },
				func() { guardian.Resume() },
			)
			telegram.Start()
			c.SetNotifier(telegram)
			telegram.NotifyStartup(cfg.Mode, riskMgr.PortfolioValue())
		}
	}

	c.Start(ctx)

	// ====== STARTUP COMPLETE ======
	log.Info().Msg("✅ All systems online")
	log.Info().Msg("")
	log.Info().Msg("╔══════════════════════════════════════════╗")
	log.Info().Msg("║        COPY-TRADE ENGINE ACTIVE          ║")
	log.Info().Msg("║                                          ║")
	log.Info().Msg("║  → Watch followed wallets on-chain       ║")
	log.Info().Msg("║  → Copy after confirmation delay         ║")
	log.Info().Msg("║  → Kelly-sized, hard-capped orders       ║")
	log.Info().Msg("║  → Stop-loss latch guards the account    ║")
	log.Info().Msg("╚══════════════════════════════════════════╝")
	log.Info().Msg("")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Received shutdown signal")

	// Graceful shutdown
	log.Info().Msg("Shutting down...")

	cancel()
	c.Stop()
	priceFeed.Stop()
	if telegram != nil {
		telegram.Stop()
	}

	// Final history export
	if cfg.HistoryPath != "" {
		if err := history.WriteFile(cfg.HistoryPath); err != nil {
			log.Warn().Err(err).Msg("Final history export failed")
		}
	}

	log.Info().Msg("👋 Goodbye!")
}
