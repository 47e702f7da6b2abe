package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/copybot/types"
)

func TestOptimizePortfolioEmptyAndFlat(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))
	require.Empty(t, m.OptimizePortfolio())

	// A position with no positive score yields no actions
	m.ApplyFill(buyOrder("WETH", 100), fill(2), 0.8)
	m.UpdatePrice("WETH", decimal.NewFromInt(40)) // underwater, score 0
	require.Empty(t, m.OptimizePortfolio())
}

func TestOptimizePortfolioShedsWeakPositions(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))

	// Winner: 300 @ 1, marked to 1.2 → +60 unrealized, confidence 0.8
	m.ApplyFill(buyOrder("WETH", 300), fill(300), 0.8)
	m.UpdatePrice("WETH", decimal.NewFromFloat(1.2))

	// Loser: 200 @ 1, marked to 0.9 → -20 unrealized, score 0
	m.ApplyFill(buyOrder("LINK", 200), fill(200), 0.5)
	m.UpdatePrice("LINK", decimal.NewFromFloat(0.9))

	actions := m.OptimizePortfolio()
	require.Len(t, actions, 2)

	// Both positions are overweight against their targets:
	// the loser's target is 0, the winner's is capped at maxPositionSize
	for _, a := range actions {
		require.Equal(t, types.OrderSell, a.Action)
		require.True(t, a.DeltaWeight.IsNegative())
		require.Equal(t, types.PriorityHigh, a.Priority)
	}

	// Largest drift drains first within equal priority
	require.Equal(t, "LINK", actions[0].Token)
	require.Equal(t, "WETH", actions[1].Token)
}

func TestOptimizePortfolioBuysUnderweightWinner(t *testing.T) {
	limits := testLimits()
	limits.MaxPositionSize = decimal.NewFromFloat(0.95)
	m := NewManager(limits, decimal.NewFromInt(1000))

	// Single profitable position: target weight is its own normalized
	// score (1.0, capped 0.95); current weight ~0.11 → big drift, BUY
	m.ApplyFill(buyOrder("WETH", 100), fill(100), 0.8)
	m.UpdatePrice("WETH", decimal.NewFromFloat(1.1))

	actions := m.OptimizePortfolio()
	require.Len(t, actions, 1)
	require.Equal(t, types.OrderBuy, actions[0].Action)
	require.True(t, actions[0].DeltaWeight.IsPositive())
}
