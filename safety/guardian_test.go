package safety

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/copybot/types"
)

func testGuardian(limits Limits, blacklist []string) (*Guardian, *types.State) {
	state := types.NewState(types.ModeSimulation)
	return NewGuardian(state, limits, blacklist), state
}

func defaultLimits() Limits {
	return Limits{
		InitialBalance:     decimal.NewFromInt(1000),
		StopLossPercent:    decimal.NewFromFloat(0.10),
		MaxDailyTrades:     3,
		MaxTradeValue:      decimal.NewFromInt(500),
		MaxBalanceFraction: decimal.NewFromFloat(0.5),
		MaxLossStreak:      3,
	}
}

func TestValidateTradeConsumesDailyBudget(t *testing.T) {
	g, _ := testGuardian(defaultLimits(), nil)
	balance := decimal.NewFromInt(1000)
	value := decimal.NewFromInt(100)

	for i := 0; i < 3; i++ {
		require.NoError(t, g.ValidateTrade("WETH", value, balance))
	}
	require.Equal(t, 3, g.DailyTrades())

	err := g.ValidateTrade("WETH", value, balance)
	require.ErrorIs(t, err, ErrDailyLimitReached)
}

func TestRejectedTradeKeepsBudget(t *testing.T) {
	g, _ := testGuardian(defaultLimits(), []string{"SCAM"})
	balance := decimal.NewFromInt(1000)

	// A blacklisted rejection must not consume a slot
	err := g.ValidateTrade("SCAM", decimal.NewFromInt(10), balance)
	require.ErrorIs(t, err, ErrBlacklisted)
	require.Equal(t, 0, g.DailyTrades())
}

func TestBlacklistIsCaseInsensitive(t *testing.T) {
	g, _ := testGuardian(defaultLimits(), []string{"0xBAD"})

	require.True(t, g.IsBlacklisted("0xbad"))
	require.True(t, g.IsBlacklisted("0xBAD"))

	g.Unblacklist("0xBad")
	require.False(t, g.IsBlacklisted("0xbad"))

	g.Blacklist("0xother")
	require.True(t, g.IsBlacklisted("0xOTHER"))
}

func TestTradeSizeCeilings(t *testing.T) {
	g, _ := testGuardian(defaultLimits(), nil)
	balance := decimal.NewFromInt(1000)

	// Absolute ceiling: 501 > 500
	err := g.ValidateTradeSize(decimal.NewFromInt(501), balance)
	require.ErrorIs(t, err, ErrTradeTooLarge)

	// Balance fraction: 400 > 50% of 600
	err = g.ValidateTradeSize(decimal.NewFromInt(400), decimal.NewFromInt(600))
	require.ErrorIs(t, err, ErrTradeTooLarge)

	// Exactly at both limits passes
	require.NoError(t, g.ValidateTradeSize(decimal.NewFromInt(500), balance))
}

func TestStopLossTripsPastThreshold(t *testing.T) {
	g, state := testGuardian(defaultLimits(), nil)

	// 9% drawdown: under the 10% threshold
	require.False(t, g.CheckStopLoss(decimal.NewFromInt(910)))
	require.False(t, state.EmergencyStopped())

	// Exactly 10% still holds: the trip requires strictly more
	require.False(t, g.CheckStopLoss(decimal.NewFromInt(900)))
	require.False(t, state.EmergencyStopped())

	// 11% drawdown trips the latch
	require.True(t, g.CheckStopLoss(decimal.NewFromInt(890)))
	require.True(t, state.EmergencyStopped())
	require.Contains(t, state.StopReason(), "stop-loss")
}

func TestLatchBlocksUntilResume(t *testing.T) {
	g, state := testGuardian(defaultLimits(), nil)
	balance := decimal.NewFromInt(1000)
	value := decimal.NewFromInt(100)

	require.True(t, g.CheckStopLoss(decimal.NewFromInt(850)))

	// Every validation fails while latched, and the latch never
	// clears on its own
	err := g.ValidateTrade("WETH", value, balance)
	require.ErrorIs(t, err, ErrEmergencyStop)
	require.True(t, state.EmergencyStopped())

	g.Resume()
	require.False(t, state.EmergencyStopped())
	require.NoError(t, g.ValidateTrade("WETH", value, balance))
}

func TestLossStreakWarning(t *testing.T) {
	g, _ := testGuardian(defaultLimits(), nil)

	var warned string
	g.OnWarning(func(msg string) { warned = msg })

	loss := decimal.NewFromInt(-10)
	g.RecordTradeOutcome(loss)
	g.RecordTradeOutcome(loss)
	require.Empty(t, warned)
	require.Equal(t, 2, g.LossStreak())

	g.RecordTradeOutcome(loss)
	require.NotEmpty(t, warned)
	require.Equal(t, 3, g.LossStreak())

	// A win resets the streak
	g.RecordTradeOutcome(decimal.NewFromInt(5))
	require.Equal(t, 0, g.LossStreak())
}
