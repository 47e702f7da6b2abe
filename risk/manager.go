package risk

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK MANAGER - Position set, portfolio metrics, sizing & approval
// ═══════════════════════════════════════════════════════════════════════════════
//
// Owns the Position map. Positions change only on price ticks and on
// confirmed execution fills; fully sold positions are removed.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Limits are the soft risk limits, mutated only via SetLimits
type Limits struct {
	MaxPositionSize     decimal.Decimal   // fraction of portfolio per position
	MaxRiskPerTrade     decimal.Decimal   // fraction of portfolio at risk per trade
	MaxCorrelatedExpo   decimal.Decimal   // fraction per high-risk category
	KellySafetyFraction decimal.Decimal   // e.g. 0.25 of full Kelly
	MinTradeValue       decimal.Decimal   // liquidity floor
	VaRConfidence       float64           // e.g. 0.95
	Categories          map[string]string // token → correlation bucket
}

// Manager maintains positions and derives portfolio risk metrics
type Manager struct {
	mu sync.RWMutex

	limits    Limits
	positions map[string]*types.Position
	cash      decimal.Decimal

	// Portfolio value samples for return-based metrics
	history  []float64
	peak     float64
	maxDraw  float64
	realized decimal.Decimal
}

// NewManager creates a risk manager with starting cash
func NewManager(limits Limits, initialCash decimal.Decimal) *Manager {
	if limits.MinTradeValue.IsZero() {
		limits.MinTradeValue = decimal.NewFromInt(1)
	}

	m := &Manager{
		limits:    limits,
		positions: make(map[string]*types.Position),
		cash:      initialCash,
	}
	m.recordSampleLocked()

	log.Info().
		Str("max_position", limits.MaxPositionSize.String()).
		Str("max_risk_per_trade", limits.MaxRiskPerTrade.String()).
		Str("cash", initialCash.StringFixed(2)).
		Msg("🛡️ Risk manager initialized")

	return m
}

// SetLimits replaces the soft limits
func (m *Manager) SetLimits(limits Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = limits
}

// Limits returns the active limits
func (m *Manager) Limits() Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION UPDATES
// ═══════════════════════════════════════════════════════════════════════════════

// UpdatePrice marks a position to the latest price and advances the
// trailing profit watermark
func (m *Manager) UpdatePrice(token string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[token]
	if !ok {
		return
	}

	pos.CurrentPrice = price
	if pnl := pos.UnrealizedPnL(); pnl.GreaterThan(pos.HighestPnL) {
		pos.HighestPnL = pnl
	}

	m.recordSampleLocked()
}

// ApplyFill folds a confirmed order into the position set.
// Buys extend (average entry); sells reduce and realize PnL. Returns the
// realized PnL, zero for buys.
func (m *Manager) ApplyFill(order *types.Order, result types.ExecutionResult, confidence float64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !result.Success {
		return decimal.Zero
	}

	switch order.Type {
	case types.OrderBuy, types.OrderSwap:
		m.applyBuyLocked(order, result, confidence)
		return decimal.Zero
	case types.OrderSell:
		return m.applySellLocked(order, result)
	}
	return decimal.Zero
}

func (m *Manager) applyBuyLocked(order *types.Order, result types.ExecutionResult, confidence float64) {
	token := order.TokenOut
	price := decimal.Zero
	if result.AmountOut.IsPositive() {
		price = order.AmountIn.Div(result.AmountOut)
	}

	pos, ok := m.positions[token]
	if !ok {
		m.positions[token] = &types.Position{
			Token:        token,
			Category:     m.categoryLocked(token),
			Amount:       result.AmountOut,
			EntryPrice:   price,
			CurrentPrice: price,
			RiskScore:    1,
			Confidence:   confidence,
			Strategy:     order.Strategy,
			OpenedAt:     time.Now(),
		}
	} else {
		// Weighted average entry across fills
		totalCost := pos.EntryPrice.Mul(pos.Amount).Add(order.AmountIn)
		pos.Amount = pos.Amount.Add(result.AmountOut)
		if pos.Amount.IsPositive() {
			pos.EntryPrice = totalCost.Div(pos.Amount)
		}
		pos.CurrentPrice = price
	}

	m.cash = m.cash.Sub(order.AmountIn)
	m.recordSampleLocked()

	log.Info().
		Str("token", token).
		Str("amount", result.AmountOut.String()).
		Str("entry", price.StringFixed(6)).
		Msg("📥 Position opened/extended")
}

func (m *Manager) applySellLocked(order *types.Order, result types.ExecutionResult) decimal.Decimal {
	token := order.TokenIn
	pos, ok := m.positions[token]
	if !ok {
		// Sell with no tracked position: proceeds are pure cash
		m.cash = m.cash.Add(result.AmountOut)
		return decimal.Zero
	}

	sold := order.AmountIn
	if sold.GreaterThan(pos.Amount) {
		sold = pos.Amount
	}

	cost := pos.EntryPrice.Mul(sold)
	pnl := result.AmountOut.Sub(cost)

	// Selling fraction x of the remainder sells (1-soldFraction)*x of the
	// original stake
	if pos.Amount.IsPositive() {
		one := decimal.NewFromInt(1)
		pos.SoldFraction = pos.SoldFraction.Add(
			one.Sub(pos.SoldFraction).Mul(sold.Div(pos.Amount)))
	}
	pos.Amount = pos.Amount.Sub(sold)
	m.cash = m.cash.Add(result.AmountOut)
	m.realized = m.realized.Add(pnl)

	if !pos.Amount.IsPositive() {
		delete(m.positions, token)
		log.Info().Str("token", token).Str("pnl", pnl.StringFixed(2)).Msg("📤 Position closed")
	} else {
		log.Info().
			Str("token", token).
			Str("remaining", pos.Amount.String()).
			Str("pnl", pnl.StringFixed(2)).
			Msg("📤 Position reduced")
	}

	m.recordSampleLocked()
	return pnl
}

// ═══════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ═══════════════════════════════════════════════════════════════════════════════

// PortfolioValue returns cash plus marked position value
func (m *Manager) PortfolioValue() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolioValueLocked()
}

func (m *Manager) portfolioValueLocked() decimal.Decimal {
	total := m.cash
	for _, pos := range m.positions {
		total = total.Add(pos.Value())
	}
	return total
}

// Cash returns the uninvested balance
func (m *Manager) Cash() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cash
}

// RealizedPnL returns cumulative realized profit
func (m *Manager) RealizedPnL() decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.realized
}

// Positions returns a copy of the open position set
func (m *Manager) Positions() map[string]*types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*types.Position, len(m.positions))
	for k, v := range m.positions {
		cp := *v
		out[k] = &cp
	}
	return out
}

// OpenPositions returns the number of open positions
func (m *Manager) OpenPositions() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// categoryLocked resolves a token's correlation bucket, "" when unmapped
func (m *Manager) categoryLocked(token string) string {
	return m.limits.Categories[strings.ToUpper(token)]
}

// recordSampleLocked appends a portfolio value sample, bounded window
func (m *Manager) recordSampleLocked() {
	v, _ := m.portfolioValueLocked().Float64()
	m.history = append(m.history, v)
	if len(m.history) > 1000 {
		m.history = m.history[1:]
	}
	if v > m.peak {
		m.peak = v
	}
	if m.peak > 0 {
		if dd := (m.peak - v) / m.peak; dd > m.maxDraw {
			m.maxDraw = dd
		}
	}
}
