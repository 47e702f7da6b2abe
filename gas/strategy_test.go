package gas

import (
	"context"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/copybot/chain"
	"github.com/web3guy0/copybot/types"
)

// feeClient stubs the one chain call the calculator makes
type feeClient struct {
	chain.Client
	hist *chain.FeeHistory
	err  error
}

func (f *feeClient) GetFeeHistory(context.Context) (*chain.FeeHistory, error) {
	return f.hist, f.err
}

func gweiInt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func TestEstimateMedianAndMultiplier(t *testing.T) {
	client := &feeClient{hist: &chain.FeeHistory{
		BaseFee: gweiInt(10),
		Rewards: []*big.Int{gweiInt(1), gweiInt(3), gweiInt(2)},
	}}
	calc := NewCalculator(client, decimal.NewFromInt(300))

	// Median tip 2 gwei, MEDIUM multiplier 1.2x → 2.4 gwei tip, 12.4 max
	plan, err := calc.Estimate(context.Background(), types.PriorityMedium)
	require.NoError(t, err)
	require.Equal(t, "2400000000", plan.PriorityFee.String())
	require.True(t, plan.MaxFeeGwei().Equal(decimal.NewFromFloat(12.4)))

	// CRITICAL doubles the median tip
	plan, err = calc.Estimate(context.Background(), types.PriorityCritical)
	require.NoError(t, err)
	require.Equal(t, gweiInt(4).String(), plan.PriorityFee.String())
	require.True(t, plan.MaxFeeGwei().Equal(decimal.NewFromInt(14)))

	// LOW uses the median unchanged
	plan, err = calc.Estimate(context.Background(), types.PriorityLow)
	require.NoError(t, err)
	require.Equal(t, gweiInt(2).String(), plan.PriorityFee.String())
}

func TestEstimateCeilingExceeded(t *testing.T) {
	client := &feeClient{hist: &chain.FeeHistory{
		BaseFee: gweiInt(200),
		Rewards: []*big.Int{gweiInt(50)},
	}}
	calc := NewCalculator(client, decimal.NewFromInt(100))

	_, err := calc.Estimate(context.Background(), types.PriorityHigh)
	require.ErrorIs(t, err, ErrCeilingExceeded)

	// Raising the ceiling lets the same plan through
	calc.SetCeiling(decimal.NewFromInt(500))
	plan, err := calc.Estimate(context.Background(), types.PriorityHigh)
	require.NoError(t, err)
	require.Equal(t, gweiInt(275).String(), plan.MaxFee.String()) // 200 base + 50*1.5 tip
}

func TestMedianRewardFloor(t *testing.T) {
	// Empty and zero samples both floor at 1 gwei
	require.Equal(t, gweiInt(1).String(), medianReward(nil).String())
	require.Equal(t, gweiInt(1).String(), medianReward([]*big.Int{big.NewInt(0)}).String())
}
