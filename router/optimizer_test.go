package router

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// mapQuoter returns canned quotes per venue
type mapQuoter struct {
	quotes map[string]decimal.Decimal
	errs   map[string]error
}

func (m *mapQuoter) Quote(_ context.Context, venue, _, _ string, _ decimal.Decimal) (decimal.Decimal, error) {
	if err := m.errs[venue]; err != nil {
		return decimal.Zero, err
	}
	return m.quotes[venue], nil
}

func TestBestRoutePicksHighestOutput(t *testing.T) {
	quoter := &mapQuoter{quotes: map[string]decimal.Decimal{
		"uniswap":   decimal.NewFromInt(98),
		"sushiswap": decimal.NewFromInt(101),
		"quickswap": decimal.NewFromInt(100),
	}}
	opt := NewOptimizer(quoter, []string{"uniswap", "sushiswap", "quickswap"})

	route := opt.BestRoute(context.Background(), "USDC", "WETH", decimal.NewFromInt(100))
	require.True(t, route.Viable())
	require.Equal(t, "sushiswap", route.Venue)
	require.True(t, route.ExpectedOut.Equal(decimal.NewFromInt(101)))
}

func TestBestRouteToleratesVenueFailure(t *testing.T) {
	quoter := &mapQuoter{
		quotes: map[string]decimal.Decimal{"quickswap": decimal.NewFromInt(95)},
		errs:   map[string]error{"uniswap": errors.New("venue down")},
	}
	opt := NewOptimizer(quoter, []string{"uniswap", "quickswap"})

	route := opt.BestRoute(context.Background(), "USDC", "WETH", decimal.NewFromInt(100))
	require.True(t, route.Viable())
	require.Equal(t, "quickswap", route.Venue)
}

func TestBestRouteAllVenuesFail(t *testing.T) {
	quoter := &mapQuoter{errs: map[string]error{
		"uniswap":   errors.New("down"),
		"quickswap": errors.New("down"),
	}}
	opt := NewOptimizer(quoter, []string{"uniswap", "quickswap"})

	route := opt.BestRoute(context.Background(), "USDC", "WETH", decimal.NewFromInt(100))
	require.False(t, route.Viable())
	require.Empty(t, route.Venue)
	require.True(t, route.ExpectedOut.IsZero())
}

func TestBestRouteZeroQuoteNotViable(t *testing.T) {
	// A venue that quotes zero (unknown token) must not win
	quoter := &mapQuoter{quotes: map[string]decimal.Decimal{"uniswap": decimal.Zero}}
	opt := NewOptimizer(quoter, []string{"uniswap"})

	route := opt.BestRoute(context.Background(), "USDC", "UNKNOWN", decimal.NewFromInt(100))
	require.False(t, route.Viable())
}
