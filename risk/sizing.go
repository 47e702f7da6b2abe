package risk

import (
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION SIZING - Fractional Kelly
// ═══════════════════════════════════════════════════════════════════════════════
//
//   f = (p*b - (1-p)) / b      where b = expectedReturn - 1
//
// b <= 0 means no positive edge: the fraction is forced to zero, never
// negative-sized or shorted around. The raw fraction is then scaled by the
// safety fraction (quarter Kelly by default) and clamped to the smaller of
// maxPositionSize and maxRiskPerTrade.
//
// ═══════════════════════════════════════════════════════════════════════════════

// KellyFraction returns the raw (pre-safety) Kelly fraction
func KellyFraction(expectedReturn, winProbability float64) float64 {
	b := expectedReturn - 1
	if b <= 0 {
		return 0
	}
	f := (winProbability*b - (1 - winProbability)) / b
	if f < 0 {
		return 0
	}
	return f
}

// OptimalPositionSize converts edge and odds into a position size in
// portfolio currency. riskScore > 1 shrinks the clamp proportionally.
func (m *Manager) OptimalPositionSize(expectedReturn, winProbability, riskScore float64, portfolioValue decimal.Decimal) decimal.Decimal {
	m.mu.RLock()
	limits := m.limits
	m.mu.RUnlock()

	raw := KellyFraction(expectedReturn, winProbability)
	if raw == 0 || !portfolioValue.IsPositive() {
		return decimal.Zero
	}

	fraction := decimal.NewFromFloat(raw).Mul(limits.KellySafetyFraction)

	cap := limits.MaxPositionSize
	if limits.MaxRiskPerTrade.LessThan(cap) {
		cap = limits.MaxRiskPerTrade
	}
	if riskScore > 1 {
		cap = cap.Div(decimal.NewFromFloat(riskScore))
	}

	if fraction.GreaterThan(cap) {
		fraction = cap
	}
	if fraction.IsNegative() {
		return decimal.Zero
	}

	return fraction.Mul(portfolioValue)
}
