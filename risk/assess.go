package risk

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE ASSESSMENT - Soft gate: score, size, approve or itemize rejection
// ═══════════════════════════════════════════════════════════════════════════════
//
// Conjunctive policy: any hard violation rejects. A lone informational
// "position size" warning does not. Approval additionally requires a
// positive recommended size.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Assessment is the outcome of the soft risk gate
type Assessment struct {
	Approved        bool
	RecommendedSize decimal.Decimal // portfolio currency
	Warnings        []string        // informational, do not block
	Reasons         []string        // hard violations, any one rejects
}

// consensusMultiplier scales size when multiple wallets agree
var consensusMultiplier = decimal.NewFromFloat(1.5)

// AssessTrade sizes and scores a candidate. tradeValue is the proposed
// outlay in portfolio currency (the copied wallet's outlay, pre-sizing).
func (m *Manager) AssessTrade(candidate types.CandidateTrade, tradeValue decimal.Decimal) Assessment {
	m.mu.RLock()
	limits := m.limits
	m.mu.RUnlock()

	var a Assessment
	portfolio := m.PortfolioValue()
	metrics := m.ComputeMetrics()

	if !portfolio.IsPositive() {
		a.Reasons = append(a.Reasons, "portfolio value is zero")
		return a
	}

	fraction := tradeValue.Div(portfolio)

	// Position-size checks: exceeding the limit is a hard violation,
	// crossing half of it is only a warning
	if fraction.GreaterThan(limits.MaxPositionSize) {
		a.Reasons = append(a.Reasons, fmt.Sprintf(
			"position fraction %s exceeds max %s",
			fraction.StringFixed(4), limits.MaxPositionSize.StringFixed(4)))
	} else if fraction.GreaterThan(limits.MaxPositionSize.Div(decimal.NewFromInt(2))) {
		a.Warnings = append(a.Warnings, "position size above half of limit")
	}

	// Correlated exposure: adding this fraction to the heaviest category
	// must stay under the cap
	maxCorr, _ := limits.MaxCorrelatedExpo.Float64()
	if frac, _ := fraction.Float64(); metrics.CorrelatedExposure+frac > maxCorr {
		a.Reasons = append(a.Reasons, fmt.Sprintf(
			"correlated exposure %.4f would exceed max %.4f",
			metrics.CorrelatedExposure+frac, maxCorr))
	}

	// Liquidity floor
	if tradeValue.LessThan(limits.MinTradeValue) {
		a.Reasons = append(a.Reasons, fmt.Sprintf(
			"trade value %s below liquidity floor %s",
			tradeValue.StringFixed(2), limits.MinTradeValue.StringFixed(2)))
	}

	// Size from the candidate's edge: confidence doubles as win
	// probability, the payoff target scales with conviction (2x at full
	// confidence)
	expectedReturn := 1 + 2*candidate.Confidence
	size := m.OptimalPositionSize(expectedReturn, candidate.Confidence, 1, portfolio)

	if candidate.Consensus {
		size = size.Mul(consensusMultiplier)
		ceiling := portfolio.Mul(limits.MaxPositionSize)
		if size.GreaterThan(ceiling) {
			size = ceiling
		}
	}

	// Never recommend more than the copied outlay
	if size.GreaterThan(tradeValue) {
		size = tradeValue
	}

	if !size.IsPositive() {
		a.Reasons = append(a.Reasons, "recommended size is zero (no positive edge)")
	}

	a.RecommendedSize = size
	a.Approved = len(a.Reasons) == 0

	evt := log.Info()
	if !a.Approved {
		evt = log.Debug()
	}
	evt.
		Str("token", candidate.Token).
		Str("action", string(candidate.Action)).
		Bool("approved", a.Approved).
		Bool("consensus", candidate.Consensus).
		Str("size", size.StringFixed(2)).
		Strs("reasons", a.Reasons).
		Msg("⚖️ Trade assessed")

	return a
}
