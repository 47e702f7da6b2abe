package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxPositionSize:     decimal.NewFromFloat(0.20),
		MaxRiskPerTrade:     decimal.NewFromFloat(0.05),
		MaxCorrelatedExpo:   decimal.NewFromFloat(0.40),
		KellySafetyFraction: decimal.NewFromFloat(0.25),
		VaRConfidence:       0.95,
	}
}

func TestKellyFraction(t *testing.T) {
	// Break-even: p=0.5 at even odds has no edge
	require.Zero(t, KellyFraction(2.0, 0.5))

	// No payoff edge: b <= 0 always sizes zero
	require.Zero(t, KellyFraction(1.0, 0.9))
	require.Zero(t, KellyFraction(0.8, 0.9))

	// Positive edge: f = (0.6*1 - 0.4) / 1 = 0.2
	require.InDelta(t, 0.2, KellyFraction(2.0, 0.6), 1e-9)

	// Negative edge clamps to zero, never short-sizes
	require.Zero(t, KellyFraction(2.0, 0.3))
}

func TestOptimalPositionSizeClamps(t *testing.T) {
	m := NewManager(testLimits(), decimal.NewFromInt(1000))
	portfolio := decimal.NewFromInt(1000)

	// Raw quarter-Kelly 0.2 exceeds min(maxPos, maxRisk)=0.05 → clamp → $50
	size := m.OptimalPositionSize(2.0, 0.9, 1, portfolio)
	require.True(t, size.Equal(decimal.NewFromInt(50)), "got %s", size)

	// riskScore 2 halves the clamp
	size = m.OptimalPositionSize(2.0, 0.9, 2, portfolio)
	require.True(t, size.Equal(decimal.NewFromInt(25)), "got %s", size)

	// No edge, no size
	require.True(t, m.OptimalPositionSize(1.0, 0.9, 1, portfolio).IsZero())

	// No portfolio, no size
	require.True(t, m.OptimalPositionSize(2.0, 0.9, 1, decimal.Zero).IsZero())
}

func TestOptimalPositionSizeBelowClamp(t *testing.T) {
	limits := testLimits()
	limits.MaxRiskPerTrade = decimal.NewFromFloat(0.50)
	limits.MaxPositionSize = decimal.NewFromFloat(0.50)
	m := NewManager(limits, decimal.NewFromInt(1000))

	// Quarter of f=0.2 is 0.05, under the 0.5 clamp → $50 of $1000
	size := m.OptimalPositionSize(2.0, 0.6, 1, decimal.NewFromInt(1000))
	require.InDelta(t, 50, size.InexactFloat64(), 0.01)
}
