package gas

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/chain"
	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// GAS STRATEGY - Fee parameters from recent fee history
// ═══════════════════════════════════════════════════════════════════════════════
//
//   priorityFee = median(recent tips) * multiplier(priority)
//   maxFee      = baseFee + priorityFee
//
// The ceiling is a hard floor for the caller: when maxFee exceeds it the
// submission is aborted this cycle, never silently clamped.
//
// ═══════════════════════════════════════════════════════════════════════════════

// ErrCeilingExceeded means the computed fee is above the configured ceiling
var ErrCeilingExceeded = errors.New("gas fee exceeds configured ceiling")

var gwei = big.NewInt(1_000_000_000)

// Plan is a ready-to-use fee parameter pair
type Plan struct {
	MaxFee      *big.Int // wei
	PriorityFee *big.Int // wei
}

// MaxFeeGwei returns the fee cap in gwei for logging and comparison
func (p Plan) MaxFeeGwei() decimal.Decimal {
	return decimal.NewFromBigInt(p.MaxFee, -9)
}

// Calculator derives fee plans from the chain's fee history
type Calculator struct {
	client      chain.Client
	ceilingGwei decimal.Decimal
}

// NewCalculator creates a calculator with a ceiling in gwei
func NewCalculator(client chain.Client, ceilingGwei decimal.Decimal) *Calculator {
	return &Calculator{client: client, ceilingGwei: ceilingGwei}
}

// SetCeiling replaces the gas ceiling (explicit setter, not ambient)
func (c *Calculator) SetCeiling(ceilingGwei decimal.Decimal) {
	c.ceilingGwei = ceilingGwei
}

// Estimate computes the fee plan for a priority level.
// Returns ErrCeilingExceeded when the plan breaches the ceiling.
func (c *Calculator) Estimate(ctx context.Context, priority types.OrderPriority) (Plan, error) {
	hist, err := c.client.GetFeeHistory(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("fee history: %w", err)
	}
	if hist.BaseFee == nil {
		return Plan{}, fmt.Errorf("fee history missing base fee")
	}

	median := medianReward(hist.Rewards)
	tip := applyMultiplier(median, priority)
	maxFee := new(big.Int).Add(hist.BaseFee, tip)

	plan := Plan{MaxFee: maxFee, PriorityFee: tip}

	if plan.MaxFeeGwei().GreaterThan(c.ceilingGwei) {
		log.Warn().
			Str("max_fee_gwei", plan.MaxFeeGwei().StringFixed(1)).
			Str("ceiling_gwei", c.ceilingGwei.StringFixed(1)).
			Str("priority", priority.String()).
			Msg("⛽ Gas above ceiling, submission aborted")
		return Plan{}, ErrCeilingExceeded
	}

	log.Debug().
		Str("base_gwei", decimal.NewFromBigInt(hist.BaseFee, -9).StringFixed(1)).
		Str("tip_gwei", decimal.NewFromBigInt(tip, -9).StringFixed(1)).
		Str("priority", priority.String()).
		Msg("⛽ Gas plan")

	return plan, nil
}

// medianReward returns the median tip of the sampled blocks, 1 gwei floor
func medianReward(rewards []*big.Int) *big.Int {
	if len(rewards) == 0 {
		return new(big.Int).Set(gwei)
	}

	sorted := make([]*big.Int, len(rewards))
	copy(sorted, rewards)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	mid := sorted[len(sorted)/2]
	if mid.Sign() <= 0 {
		return new(big.Int).Set(gwei)
	}
	return new(big.Int).Set(mid)
}

// applyMultiplier scales the tip by priority: 1x, 1.2x, 1.5x, 2x
func applyMultiplier(tip *big.Int, priority types.OrderPriority) *big.Int {
	num, den := int64(10), int64(10)
	switch priority {
	case types.PriorityCritical:
		num = 20
	case types.PriorityHigh:
		num = 15
	case types.PriorityMedium:
		num = 12
	}

	out := new(big.Int).Mul(tip, big.NewInt(num))
	return out.Div(out, big.NewInt(den))
}
