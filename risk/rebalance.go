package risk

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PORTFOLIO REBALANCING
// ═══════════════════════════════════════════════════════════════════════════════

// RebalanceAction is one proposed weight adjustment
type RebalanceAction struct {
	Token       string
	Action      types.OrderType // BUY to add weight, SELL to shed
	DeltaWeight decimal.Decimal // signed target minus current
	Priority    types.OrderPriority
}

// rebalanceThreshold: weight drift below 2% is left alone
var rebalanceThreshold = decimal.NewFromFloat(0.02)

// OptimizePortfolio scores every position, derives capped target weights
// and emits an action for each |Δweight| above the threshold, sorted by
// priority then magnitude.
func (m *Manager) OptimizePortfolio() []RebalanceAction {
	m.mu.RLock()
	limits := m.limits
	positions := make([]*types.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		positions = append(positions, pos)
	}
	total := m.portfolioValueLocked()
	m.mu.RUnlock()

	if len(positions) == 0 || !total.IsPositive() {
		return nil
	}

	// Score: max(0, confidence * unrealizedPnL / riskScore)
	scores := make(map[string]decimal.Decimal, len(positions))
	var scoreSum decimal.Decimal
	for _, pos := range positions {
		rs := pos.RiskScore
		if rs <= 0 {
			rs = 1
		}
		score := decimal.NewFromFloat(pos.Confidence).
			Mul(pos.UnrealizedPnL()).
			Div(decimal.NewFromFloat(rs))
		if score.IsNegative() {
			score = decimal.Zero
		}
		scores[pos.Token] = score
		scoreSum = scoreSum.Add(score)
	}

	if scoreSum.IsZero() {
		return nil
	}

	// Normalize to target weights, each capped at the position limit
	targets := make(map[string]decimal.Decimal, len(positions))
	for token, score := range scores {
		w := score.Div(scoreSum)
		if w.GreaterThan(limits.MaxPositionSize) {
			w = limits.MaxPositionSize
		}
		targets[token] = w
	}

	var actions []RebalanceAction
	for _, pos := range positions {
		current := pos.Value().Div(total)
		delta := targets[pos.Token].Sub(current)
		if delta.Abs().LessThanOrEqual(rebalanceThreshold) {
			continue
		}

		action := types.OrderSell
		if delta.IsPositive() {
			action = types.OrderBuy
		}

		priority := types.PriorityMedium
		if delta.Abs().GreaterThan(decimal.NewFromFloat(0.10)) {
			priority = types.PriorityHigh
		}

		actions = append(actions, RebalanceAction{
			Token:       pos.Token,
			Action:      action,
			DeltaWeight: delta,
			Priority:    priority,
		})
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Priority != actions[j].Priority {
			return actions[i].Priority > actions[j].Priority
		}
		return actions[i].DeltaWeight.Abs().GreaterThan(actions[j].DeltaWeight.Abs())
	})

	if len(actions) > 0 {
		log.Info().Int("actions", len(actions)).Msg("♻️ Rebalance proposed")
	}
	return actions
}
