package safety

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SAFETY GUARDIAN - Absolute ceilings above the risk manager
// ═══════════════════════════════════════════════════════════════════════════════
//
// The guardian enforces hard limits regardless of what the risk manager
// approved: daily trade cap, token blacklist, per-trade size ceiling and
// the stop-loss latch. A tripped latch blocks every submission across
// every component until an explicit Resume call; it never auto-clears.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	ErrEmergencyStop     = errors.New("emergency stop is latched")
	ErrDailyLimitReached = errors.New("daily trade cap reached")
	ErrBlacklisted       = errors.New("token is blacklisted")
	ErrTradeTooLarge     = errors.New("trade exceeds hard size ceiling")
)

// Limits are the guardian's absolute limits, mutated only via setters
type Limits struct {
	InitialBalance     decimal.Decimal
	StopLossPercent    decimal.Decimal // drawdown fraction that trips the latch
	MaxDailyTrades     int
	MaxTradeValue      decimal.Decimal // absolute per-trade ceiling
	MaxBalanceFraction decimal.Decimal // per-trade cap as fraction of balance
	MaxLossStreak      int             // consecutive losses before warning
}

// Guardian gates every trade after risk approval
type Guardian struct {
	mu sync.Mutex

	state     *types.State
	limits    Limits
	blacklist map[string]bool

	dailyTrades  int
	lastResetDay int
	lossStreak   int

	onWarning func(msg string)
}

// NewGuardian creates a guardian bound to the process state
func NewGuardian(state *types.State, limits Limits, blacklist []string) *Guardian {
	if limits.MaxBalanceFraction.IsZero() {
		limits.MaxBalanceFraction = decimal.NewFromFloat(0.5)
	}

	g := &Guardian{
		state:     state,
		limits:    limits,
		blacklist: make(map[string]bool, len(blacklist)),
	}
	for _, token := range blacklist {
		g.blacklist[strings.ToLower(token)] = true
	}

	log.Info().
		Str("stop_loss", limits.StopLossPercent.String()).
		Int("max_daily_trades", limits.MaxDailyTrades).
		Str("max_trade_value", limits.MaxTradeValue.String()).
		Int("blacklisted", len(g.blacklist)).
		Msg("🛡️ Safety guardian armed")

	return g
}

// OnWarning sets the non-blocking warning callback
func (g *Guardian) OnWarning(fn func(msg string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onWarning = fn
}

// SetLimits replaces the hard limits
func (g *Guardian) SetLimits(limits Limits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limits = limits
}

// Blacklist adds a token to the blacklist
func (g *Guardian) Blacklist(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blacklist[strings.ToLower(token)] = true
}

// Unblacklist removes a token from the blacklist
func (g *Guardian) Unblacklist(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.blacklist, strings.ToLower(token))
}

// IsBlacklisted reports whether a token is blocked
func (g *Guardian) IsBlacklisted(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blacklist[strings.ToLower(token)]
}

// ═══════════════════════════════════════════════════════════════════════════════
// HARD GATE
// ═══════════════════════════════════════════════════════════════════════════════

// ValidateTrade applies every hard check. A nil return also consumes one
// slot of the daily trade budget.
func (g *Guardian) ValidateTrade(token string, value, balance decimal.Decimal) error {
	if g.state.EmergencyStopped() {
		return fmt.Errorf("%w: %s", ErrEmergencyStop, g.state.StopReason())
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkDayResetLocked()

	if g.blacklist[strings.ToLower(token)] {
		return fmt.Errorf("%w: %s", ErrBlacklisted, token)
	}

	if g.limits.MaxDailyTrades > 0 && g.dailyTrades >= g.limits.MaxDailyTrades {
		return fmt.Errorf("%w (%d)", ErrDailyLimitReached, g.limits.MaxDailyTrades)
	}

	if err := g.validateSizeLocked(value, balance); err != nil {
		return err
	}

	g.dailyTrades++
	return nil
}

// ValidateTradeSize checks only the size ceilings
func (g *Guardian) ValidateTradeSize(value, balance decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.validateSizeLocked(value, balance)
}

func (g *Guardian) validateSizeLocked(value, balance decimal.Decimal) error {
	if g.limits.MaxTradeValue.IsPositive() && value.GreaterThan(g.limits.MaxTradeValue) {
		return fmt.Errorf("%w: %s > ceiling %s",
			ErrTradeTooLarge, value.StringFixed(2), g.limits.MaxTradeValue.StringFixed(2))
	}

	fractionCap := balance.Mul(g.limits.MaxBalanceFraction)
	if value.GreaterThan(fractionCap) {
		return fmt.Errorf("%w: %s > %s%% of balance",
			ErrTradeTooLarge, value.StringFixed(2),
			g.limits.MaxBalanceFraction.Mul(decimal.NewFromInt(100)).StringFixed(0))
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STOP-LOSS & STREAKS
// ═══════════════════════════════════════════════════════════════════════════════

// CheckStopLoss trips the global latch when drawdown from the initial
// balance exceeds the stop-loss threshold. Returns true when tripped.
func (g *Guardian) CheckStopLoss(currentBalance decimal.Decimal) bool {
	g.mu.Lock()
	initial := g.limits.InitialBalance
	threshold := g.limits.StopLossPercent
	g.mu.Unlock()

	if !initial.IsPositive() {
		return false
	}

	drawdown := initial.Sub(currentBalance).Div(initial)
	if drawdown.LessThanOrEqual(threshold) {
		return false
	}

	g.state.TripEmergencyStop(fmt.Sprintf(
		"stop-loss: balance %s is %s%% below initial %s",
		currentBalance.StringFixed(2),
		drawdown.Mul(decimal.NewFromInt(100)).StringFixed(1),
		initial.StringFixed(2)))
	return true
}

// RecordTradeOutcome tracks the consecutive-loss streak; past the
// threshold it raises a non-blocking warning
func (g *Guardian) RecordTradeOutcome(pnl decimal.Decimal) {
	g.mu.Lock()
	if pnl.IsNegative() {
		g.lossStreak++
	} else {
		g.lossStreak = 0
	}
	streak := g.lossStreak
	maxStreak := g.limits.MaxLossStreak
	cb := g.onWarning
	g.mu.Unlock()

	if maxStreak > 0 && streak >= maxStreak {
		msg := fmt.Sprintf("%d consecutive losing trades", streak)
		log.Warn().Int("streak", streak).Msg("⚠️ Loss streak warning")
		if cb != nil {
			cb(msg)
		}
	}
}

// Resume clears the emergency latch (operator action)
func (g *Guardian) Resume() {
	g.state.ResumeTrading()
}

// LossStreak returns the current consecutive-loss count
func (g *Guardian) LossStreak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lossStreak
}

// DailyTrades returns today's consumed trade budget
func (g *Guardian) DailyTrades() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkDayResetLocked()
	return g.dailyTrades
}

// checkDayResetLocked rolls the daily counter at midnight
func (g *Guardian) checkDayResetLocked() {
	today := time.Now().YearDay()
	if g.lastResetDay != today {
		g.dailyTrades = 0
		g.lastResetDay = today
		log.Info().Msg("📅 Daily trade budget reset")
	}
}
