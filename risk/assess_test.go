package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/copybot/types"
)

func candidate(confidence float64) types.CandidateTrade {
	return types.CandidateTrade{
		Token:      "WETH",
		Action:     types.OrderBuy,
		Amount:     decimal.NewFromInt(100),
		Confidence: confidence,
		Strategy:   "copy-trade",
	}
}

func TestAssessApprovesWithinLimits(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))

	a := m.AssessTrade(candidate(0.6), decimal.NewFromInt(100))
	require.True(t, a.Approved)
	require.Empty(t, a.Reasons)
	// Quarter-Kelly at 0.6 confidence clamps to maxRiskPerTrade: $50
	require.True(t, a.RecommendedSize.Equal(decimal.NewFromInt(50)), "got %s", a.RecommendedSize)
}

func TestAssessPositionSizeBoundary(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))

	// Exactly at the 20% limit passes
	a := m.AssessTrade(candidate(0.6), decimal.NewFromInt(200))
	require.True(t, a.Approved)
	// Above half the limit carries an informational warning
	require.NotEmpty(t, a.Warnings)

	// One cent over the limit is a hard violation
	a = m.AssessTrade(candidate(0.6), decimal.NewFromFloat(200.01))
	require.False(t, a.Approved)
	require.NotEmpty(t, a.Reasons)
}

func TestAssessNoEdgeRejects(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))

	// Confidence 0.5 is exactly break-even: zero size, rejected
	a := m.AssessTrade(candidate(0.5), decimal.NewFromInt(100))
	require.False(t, a.Approved)
	require.True(t, a.RecommendedSize.IsZero())
}

func TestAssessLiquidityFloor(t *testing.T) {
	limits := testLimits()
	limits.MinTradeValue = decimal.NewFromInt(10)
	m := NewManager(limits, decimal.NewFromInt(1000))

	a := m.AssessTrade(candidate(0.6), decimal.NewFromInt(5))
	require.False(t, a.Approved)
}

func TestAssessConsensusScalesSize(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))

	solo := m.AssessTrade(candidate(0.6), decimal.NewFromInt(150))
	require.True(t, solo.Approved)

	agreed := candidate(0.6)
	agreed.Consensus = true
	consensus := m.AssessTrade(agreed, decimal.NewFromInt(150))
	require.True(t, consensus.Approved)

	// 1.5x the solo size, still under the position ceiling
	require.True(t, consensus.RecommendedSize.Equal(
		solo.RecommendedSize.Mul(decimal.NewFromFloat(1.5))),
		"solo %s consensus %s", solo.RecommendedSize, consensus.RecommendedSize)
}

func TestAssessSizeCappedAtCopiedOutlay(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))

	// Copied outlay of $20 is below the $50 Kelly size
	a := m.AssessTrade(candidate(0.6), decimal.NewFromInt(20))
	require.True(t, a.Approved)
	require.True(t, a.RecommendedSize.Equal(decimal.NewFromInt(20)), "got %s", a.RecommendedSize)
}

func TestAssessCorrelatedExposureRejects(t *testing.T) {
	limits := testLimits()
	limits.Categories = map[string]string{"WETH": "l1", "ARB": "l1"}
	m := NewManager(limits, decimal.NewFromInt(1000))

	// 350 WETH at $1 → the l1 bucket carries 35% of the portfolio
	m.ApplyFill(buyOrder("WETH", 350), fill(350), 0.8)
	require.Equal(t, "l1", m.Positions()["WETH"].Category)

	// Adding 10% on top of 35% breaches the 40% cap
	arb := candidate(0.6)
	arb.Token = "ARB"
	a := m.AssessTrade(arb, decimal.NewFromInt(100))
	require.False(t, a.Approved)
	require.Contains(t, a.Reasons[0], "correlated exposure")

	// A smaller add stays under the cap and passes
	a = m.AssessTrade(arb, decimal.NewFromInt(40))
	require.True(t, a.Approved, "reasons: %v", a.Reasons)
}

func TestAssessZeroPortfolioRejects(t *testing.T) {
	m := NewManager(testLimits(), decimal.Zero)

	a := m.AssessTrade(candidate(0.6), decimal.NewFromInt(100))
	require.False(t, a.Approved)
	require.True(t, a.RecommendedSize.IsZero())
}
