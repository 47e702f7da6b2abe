package bot

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Operator notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   📡 Copy-signal and fill notifications
//   🚨 Emergency-stop alerts (latch trips are loud)
//   🎛️ Control commands (/status, /pause, /resume, /positions, /trades)
//
// Resume over Telegram is the operator action that clears the latch.
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatusProvider feeds the bot's reporting commands
type StatusProvider interface {
	Snapshot() types.StatusSnapshot
	Positions() map[string]*types.Position
	RecentTrades(limit int) []types.TradeRecord
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	chatID  int64
	running bool
	stopCh  chan struct{}

	provider StatusProvider

	onPause  func()
	onResume func()
}

// NewTelegramBot creates a bot from an existing token/chat pair
func NewTelegramBot(token string, chatID int64, provider StatusProvider) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	bot := &TelegramBot{
		api:      api,
		chatID:   chatID,
		stopCh:   make(chan struct{}),
		provider: provider,
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")

	return bot, nil
}

// SetControlCallbacks sets pause/resume handlers
func (b *TelegramBot) SetControlCallbacks(onPause, onResume func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPause = onPause
	b.onResume = onResume
}

// Start begins listening for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.commandLoop()
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return
	}

	b.running = false
	close(b.stopCh)
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifySignal sends a copy-signal alert
func (b *TelegramBot) NotifySignal(candidate types.CandidateTrade) {
	emoji := "🟢"
	if candidate.Action == types.OrderSell {
		emoji = "🔴"
	}

	consensus := ""
	if candidate.Consensus {
		consensus = "\n🤝 *Consensus* — multiple wallets agree"
	}

	msg := fmt.Sprintf(`%s *COPY SIGNAL*

📊 *%s* — %s
━━━━━━━━━━━━━━━━
👛 Wallet: `+"`%s`"+`
📦 Amount: *%s*
🎯 Confidence: *%.0f%%*%s`,
		emoji,
		candidate.Token, candidate.Action,
		shortAddr(candidate.SourceWallet),
		candidate.Amount.StringFixed(4),
		candidate.Confidence*100,
		consensus,
	)

	b.sendMarkdown(msg)
}

// NotifyFill sends a terminal-order alert
func (b *TelegramBot) NotifyFill(order *types.Order, result types.ExecutionResult, pnl decimal.Decimal) {
	if !result.Success {
		msg := fmt.Sprintf("❌ *ORDER FAILED*\n\n📊 %s %s→%s\n`%s`",
			order.Type, order.TokenIn, order.TokenOut, result.Error)
		b.sendMarkdown(msg)
		return
	}

	pnlLine := ""
	if order.Type == types.OrderSell {
		sign := "+"
		if pnl.IsNegative() {
			sign = ""
		}
		pnlLine = fmt.Sprintf("\n💵 P&L: *%s$%s*", sign, pnl.StringFixed(2))
	}

	msg := fmt.Sprintf(`✅ *ORDER FILLED*

📊 %s %s→%s
📦 In: *%s* | Out: *%s*
📉 Slippage: *%s%%*%s`,
		order.Type, order.TokenIn, order.TokenOut,
		order.AmountIn.StringFixed(4), result.AmountOut.StringFixed(4),
		result.Slippage.Mul(decimal.NewFromInt(100)).StringFixed(2),
		pnlLine,
	)

	b.sendMarkdown(msg)
}

// NotifyEmergencyStop loudly surfaces a latch trip
func (b *TelegramBot) NotifyEmergencyStop(reason string) {
	msg := fmt.Sprintf(`🚨🚨🚨 *EMERGENCY STOP* 🚨🚨🚨
━━━━━━━━━━━━━━━━━━━━

All submissions blocked.

📝 Reason:
`+"`%s`"+`

Use /resume after manual review.`, reason)

	b.sendMarkdown(msg)
}

// NotifyWarning sends a non-blocking warning (loss streaks etc.)
func (b *TelegramBot) NotifyWarning(warning string) {
	b.sendMarkdown(fmt.Sprintf("⚠️ *WARNING*\n\n%s", warning))
}

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup(mode types.Mode, balance decimal.Decimal) {
	msg := fmt.Sprintf(`🚀 *COPYBOT STARTED*
━━━━━━━━━━━━━━━━━━━━

🎯 Strategy: *Copy-Trade*
📊 Mode: *%s*
💰 Balance: *$%s*

Use /help for commands`, strings.ToUpper(string(mode)), balance.StringFixed(2))

	b.sendMarkdown(msg)
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message)
		}
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "positions":
		b.cmdPositions()
	case "trades":
		b.cmdTrades()
	case "pause":
		b.cmdPause()
	case "resume":
		b.cmdResume()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := `🤖 *COPYBOT COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status — Bot status
💼 /positions — Open positions
📜 /trades — Last 10 trades
⏸️ /pause — Trip emergency stop
▶️ /resume — Clear emergency stop
🏓 /ping — Test connection`

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdStatus() {
	if b.provider == nil {
		b.send("❌ Status not available")
		return
	}

	snap := b.provider.Snapshot()

	status := "🟢 RUNNING"
	if snap.Halted {
		status = "🚨 HALTED"
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

%s
📊 Mode: *%s*
⏱️ Uptime: *%s*
💰 Balance: *$%s*
💵 Total P&L: *$%s*
📈 Win Rate: *%s%%*
💼 Positions: *%d*
📋 Queued: *%d*`,
		status,
		strings.ToUpper(string(snap.Mode)),
		snap.Uptime.Round(time.Second),
		snap.Balance.StringFixed(2),
		snap.TotalPnL.StringFixed(2),
		snap.WinRate.StringFixed(1),
		snap.OpenPositions,
		snap.QueuedOrders,
	)

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPositions() {
	if b.provider == nil {
		b.send("❌ Positions not available")
		return
	}

	positions := b.provider.Positions()
	if len(positions) == 0 {
		b.send("📭 No open positions")
		return
	}

	msg := "💼 *OPEN POSITIONS*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	i := 0
	for _, pos := range positions {
		pnl := pos.UnrealizedPnL()
		emoji := "📈"
		if pnl.IsNegative() {
			emoji = "📉"
		}
		duration := time.Since(pos.OpenedAt).Round(time.Second)

		msg += fmt.Sprintf(`%s *%s*
💵 Entry: %s | Now: %s
📦 Amount: %s | PnL: $%s
⏱️ Held: %v

`,
			emoji, pos.Token,
			pos.EntryPrice.StringFixed(6), pos.CurrentPrice.StringFixed(6),
			pos.Amount.StringFixed(4), pnl.StringFixed(2),
			duration,
		)

		i++
		if i >= 5 {
			msg += fmt.Sprintf("_... and %d more_", len(positions)-5)
			break
		}
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdTrades() {
	if b.provider == nil {
		b.send("❌ Trades not available")
		return
	}

	trades := b.provider.RecentTrades(10)
	if len(trades) == 0 {
		b.send("📭 No trade history yet")
		return
	}

	msg := "📜 *LAST TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n"

	for _, t := range trades {
		emoji := "✅"
		if !t.Success {
			emoji = "❌"
		}

		pnlStr := ""
		if !t.PnL.IsZero() {
			sign := "+"
			if t.PnL.IsNegative() {
				sign = ""
			}
			pnlStr = fmt.Sprintf(" | P&L: %s$%s", sign, t.PnL.StringFixed(2))
		}

		msg += fmt.Sprintf("%s %s %s %s%s\n   _%s_\n\n",
			emoji, t.Action, t.Token,
			t.AmountIn.StringFixed(4), pnlStr,
			t.Timestamp.Format("Jan 2 15:04"),
		)
	}

	b.sendMarkdown(msg)
}

func (b *TelegramBot) cmdPause() {
	b.mu.RLock()
	cb := b.onPause
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("⏸️ Emergency stop tripped")
	log.Info().Msg("Trading paused via Telegram")
}

func (b *TelegramBot) cmdResume() {
	b.mu.RLock()
	cb := b.onResume
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("▶️ Trading resumed")
	log.Info().Msg("Trading resumed via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func shortAddr(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}
