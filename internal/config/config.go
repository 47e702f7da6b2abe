package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/types"
)

// Config holds all configuration for the bot. Static at process start;
// risk/safety limits change only through explicit setter calls on the
// components that own them.
type Config struct {
	// Mode
	Mode  types.Mode
	Debug bool

	// Chain access
	RPCURL        string
	WalletAddress string
	PrivateKey    string // hex, optional in simulation mode

	// Venues (route optimizer)
	Venues       []string
	VenueBaseURL string

	// Execution
	MaxSlippage     decimal.Decimal // 0..1
	OrderDeadline   time.Duration
	ReceiptTimeout  time.Duration
	SubmitRetries   int
	QueueDrainEvery time.Duration

	// Gas
	GasCeilingGwei decimal.Decimal

	// Copy-trade pipeline
	FollowedWallets    map[string]float64 // address → backtested confidence
	CopyDelayBlocks    uint64
	SignalMaxAgeBlocks uint64
	MinConfidence      float64
	ConsensusThreshold int
	ConsensusWindow    time.Duration
	ReconcileEvery     time.Duration

	// Risk
	MaxPositionSize     decimal.Decimal // fraction of portfolio
	MaxRiskPerTrade     decimal.Decimal // fraction of portfolio
	MaxCorrelatedExpo   decimal.Decimal
	KellySafetyFraction decimal.Decimal
	VaRConfidence       float64
	TokenCategories     map[string]string // token → correlation bucket

	// Safety guardian
	InitialBalance  decimal.Decimal
	StopLossPercent decimal.Decimal
	MaxDailyTrades  int
	MaxTradeValue   decimal.Decimal // absolute ceiling per trade
	MaxLossStreak   int
	Blacklist       []string
	StopLossEvery   time.Duration

	// Price feed
	PriceFeedURL   string
	PriceFeedPairs []string
	ReportEvery    time.Duration
	HistoryPath    string

	// Persistence (optional; empty DSN disables)
	DatabaseDSN string

	// Telegram (optional; empty token disables)
	TelegramToken  string
	TelegramChatID int64

	// Simulation
	SimSeed int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Mode:  types.Mode(getEnv("TRADING_MODE", string(types.ModeSimulation))),
		Debug: getEnvBool("DEBUG", false),

		RPCURL:        getEnv("RPC_URL", "https://polygon-rpc.com"),
		WalletAddress: os.Getenv("WALLET_ADDRESS"),
		PrivateKey:    os.Getenv("WALLET_PRIVATE_KEY"),

		Venues:       getEnvList("VENUES", []string{"uniswap", "sushiswap", "quickswap"}),
		VenueBaseURL: getEnv("VENUE_QUOTE_URL", "https://quote.copybot.dev"),

		MaxSlippage:     getEnvDecimal("MAX_SLIPPAGE", decimal.NewFromFloat(0.02)),
		OrderDeadline:   getEnvDuration("ORDER_DEADLINE", 5*time.Minute),
		ReceiptTimeout:  getEnvDuration("RECEIPT_TIMEOUT", 90*time.Second),
		SubmitRetries:   getEnvInt("SUBMIT_RETRIES", 3),
		QueueDrainEvery: getEnvDuration("QUEUE_DRAIN_EVERY", 2*time.Second),

		GasCeilingGwei: getEnvDecimal("GAS_CEILING_GWEI", decimal.NewFromInt(300)),

		CopyDelayBlocks:    uint64(getEnvInt("COPY_DELAY_BLOCKS", 2)),
		SignalMaxAgeBlocks: uint64(getEnvInt("SIGNAL_MAX_AGE_BLOCKS", 100)),
		MinConfidence:      getEnvFloat("MIN_CONFIDENCE", 0.6),
		ConsensusThreshold: getEnvInt("CONSENSUS_THRESHOLD", 3),
		ConsensusWindow:    getEnvDuration("CONSENSUS_WINDOW", 5*time.Minute),
		ReconcileEvery:     getEnvDuration("SIGNAL_RECONCILE_EVERY", 5*time.Second),

		MaxPositionSize:     getEnvDecimal("MAX_POSITION_SIZE", decimal.NewFromFloat(0.20)),
		MaxRiskPerTrade:     getEnvDecimal("MAX_RISK_PER_TRADE", decimal.NewFromFloat(0.05)),
		MaxCorrelatedExpo:   getEnvDecimal("MAX_CORRELATED_EXPOSURE", decimal.NewFromFloat(0.40)),
		KellySafetyFraction: getEnvDecimal("KELLY_SAFETY_FRACTION", decimal.NewFromFloat(0.25)),
		VaRConfidence:       getEnvFloat("VAR_CONFIDENCE", 0.95),

		InitialBalance:  getEnvDecimal("INITIAL_BALANCE", decimal.NewFromInt(1000)),
		StopLossPercent: getEnvDecimal("STOP_LOSS_PCT", decimal.NewFromFloat(0.10)),
		MaxDailyTrades:  getEnvInt("MAX_DAILY_TRADES", 50),
		MaxTradeValue:   getEnvDecimal("MAX_TRADE_VALUE", decimal.NewFromInt(500)),
		MaxLossStreak:   getEnvInt("MAX_LOSS_STREAK", 5),
		Blacklist:       getEnvList("TOKEN_BLACKLIST", nil),
		StopLossEvery:   getEnvDuration("STOP_LOSS_CHECK_EVERY", 30*time.Second),

		PriceFeedURL:   getEnv("PRICE_FEED_URL", "wss://stream.binance.com:9443/ws"),
		PriceFeedPairs: getEnvList("PRICE_FEED_PAIRS", []string{"ethusdt", "maticusdt"}),
		ReportEvery:    getEnvDuration("REPORT_EVERY", 5*time.Minute),
		HistoryPath:    getEnv("HISTORY_PATH", "data/trades.json"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		SimSeed: int64(getEnvInt("SIM_SEED", 1)),
	}

	// Followed wallets: "0xabc:0.8,0xdef:0.65"
	cfg.FollowedWallets = make(map[string]float64)
	for _, entry := range getEnvList("FOLLOWED_WALLETS", nil) {
		parts := strings.SplitN(entry, ":", 2)
		conf := 0.5
		if len(parts) == 2 {
			if f, err := strconv.ParseFloat(parts[1], 64); err == nil {
				conf = f
			}
		}
		cfg.FollowedWallets[strings.ToLower(parts[0])] = conf
	}

	// Token categories: "WETH:l1,ARB:l2,OP:l2". Uncategorized tokens are
	// exempt from the correlated-exposure cap.
	cfg.TokenCategories = make(map[string]string)
	for _, entry := range getEnvList("TOKEN_CATEGORIES", nil) {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) == 2 && parts[1] != "" {
			cfg.TokenCategories[strings.ToUpper(parts[0])] = parts[1]
		}
	}

	// Parse chat ID
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	switch cfg.Mode {
	case types.ModeSimulation, types.ModeTestnet, types.ModeMainnet:
	default:
		return nil, fmt.Errorf("invalid TRADING_MODE: %q", cfg.Mode)
	}

	if cfg.Mode.Live() && cfg.PrivateKey == "" {
		return nil, fmt.Errorf("WALLET_PRIVATE_KEY is required in %s mode", cfg.Mode)
	}

	if cfg.MaxSlippage.IsNegative() || cfg.MaxSlippage.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("MAX_SLIPPAGE must be within [0,1]")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
