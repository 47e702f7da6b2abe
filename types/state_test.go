package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestEmergencyStopLatch(t *testing.T) {
	s := NewState(ModeSimulation)
	require.False(t, s.EmergencyStopped())

	var fired []string
	s.OnEmergencyStop(func(reason string) { fired = append(fired, reason) })

	s.TripEmergencyStop("first")
	require.True(t, s.EmergencyStopped())
	require.Equal(t, "first", s.StopReason())

	// Idempotent: the first reason wins, listeners fire once
	s.TripEmergencyStop("second")
	require.Equal(t, "first", s.StopReason())
	require.Equal(t, []string{"first"}, fired)

	s.ResumeTrading()
	require.False(t, s.EmergencyStopped())
	require.Empty(t, s.StopReason())

	// Re-tripping after a resume works and notifies again
	s.TripEmergencyStop("second")
	require.Equal(t, "second", s.StopReason())
	require.Equal(t, []string{"first", "second"}, fired)
}

func TestModeLive(t *testing.T) {
	require.False(t, ModeSimulation.Live())
	require.True(t, ModeTestnet.Live())
	require.True(t, ModeMainnet.Live())
}

func TestOrderStatusTerminal(t *testing.T) {
	require.False(t, StatusPending.Terminal())
	require.False(t, StatusSubmitted.Terminal())
	require.True(t, StatusConfirmed.Terminal())
	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusCancelled.Terminal())
}

func TestWinRate(t *testing.T) {
	require.True(t, TradingStats{}.WinRate().IsZero())

	stats := TradingStats{Trades: 4, Wins: 3, Losses: 1}
	require.True(t, stats.WinRate().Equal(decimal.NewFromInt(75)))
}
