package chain

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIMULATION ADAPTER - Deterministic chain for simulation mode and tests
// ═══════════════════════════════════════════════════════════════════════════════
//
// All randomness comes from a single seeded source so a run with the same
// seed and the same call sequence produces identical results.
//
// ═══════════════════════════════════════════════════════════════════════════════

// SimClient implements Client and Quoter in memory
type SimClient struct {
	mu  sync.Mutex
	rng *rand.Rand

	block      uint64
	balances   map[string]decimal.Decimal
	allowances map[string]decimal.Decimal // token|spender
	events     []TransferEvent
	receipts   map[string]*Receipt
	prices     map[string]decimal.Decimal // token → mid price
	txSeq      int64

	failRate float64 // fraction of submits that revert
}

// NewSimClient creates a simulated chain seeded for reproducibility
func NewSimClient(seed int64) *SimClient {
	c := &SimClient{
		rng:        rand.New(rand.NewSource(seed)),
		block:      1,
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]decimal.Decimal),
		receipts:   make(map[string]*Receipt),
		prices:     make(map[string]decimal.Decimal),
		failRate:   0.05,
	}
	log.Info().Int64("seed", seed).Msg("🧪 Simulated chain ready")
	return c
}

// SetBalance seeds an account balance
func (c *SimClient) SetBalance(addr string, balance decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = balance
}

// SetPrice fixes a token mid price used for quoting
func (c *SimClient) SetPrice(token string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[token] = price
}

// SetFailRate overrides the simulated revert probability
func (c *SimClient) SetFailRate(rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failRate = rate
}

// AdvanceBlock moves the head forward by n blocks
func (c *SimClient) AdvanceBlock(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block += n
}

// AddTransfer injects a transfer event visible to GetLogs at the current block
func (c *SimClient) AddTransfer(ev TransferEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Block == 0 {
		ev.Block = c.block
	}
	c.events = append(c.events, ev)
}

func (c *SimClient) GetBalance(_ context.Context, addr string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balances[addr], nil
}

func (c *SimClient) GetBlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block, nil
}

func (c *SimClient) GetFeeHistory(_ context.Context) (*FeeHistory, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Stable 30 gwei base, tips 1-3 gwei from the seeded source
	rewards := make([]*big.Int, 10)
	for i := range rewards {
		rewards[i] = new(big.Int).Mul(
			big.NewInt(1+c.rng.Int63n(3)),
			big.NewInt(1_000_000_000),
		)
	}
	return &FeeHistory{
		BaseFee: new(big.Int).Mul(big.NewInt(30), big.NewInt(1_000_000_000)),
		Rewards: rewards,
	}, nil
}

func (c *SimClient) GetLogs(_ context.Context, filter LogFilter) ([]TransferEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []TransferEvent
	for _, ev := range c.events {
		if ev.Block < filter.FromBlock {
			continue
		}
		if filter.ToBlock > 0 && ev.Block > filter.ToBlock {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (c *SimClient) Allowance(_ context.Context, token, spender string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allowances[token+"|"+spender], nil
}

func (c *SimClient) Approve(_ context.Context, token, spender string, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowances[token+"|"+spender] = amount
	return nil
}

// Submit simulates a swap: bounded outcome around the expected output,
// occasional reverts per failRate, receipt available immediately
func (c *SimClient) Submit(_ context.Context, tx *SwapTx) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.txSeq++
	hash := fmt.Sprintf("0xSIM%016d", c.txSeq)

	success := c.rng.Float64() >= c.failRate

	// Realized output lands between minOut and minOut*1.05
	amountOut := decimal.Zero
	if success {
		bonus := decimal.NewFromFloat(1 + c.rng.Float64()*0.05)
		amountOut = tx.MinAmountOut.Mul(bonus)
	}

	c.receipts[hash] = &Receipt{
		TxHash:    hash,
		Success:   success,
		GasUsed:   150_000 + uint64(c.rng.Intn(100_000)),
		AmountOut: amountOut,
		Block:     c.block,
	}
	c.block++

	return hash, nil
}

func (c *SimClient) WaitForReceipt(_ context.Context, txHash string) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.receipts[txHash]
	if !ok {
		return nil, fmt.Errorf("unknown tx %s", txHash)
	}
	return r, nil
}

// Quote returns amountIn * price(out)/price(in) with a small seeded spread
// per venue. Unknown tokens quote zero, which callers treat as no route.
func (c *SimClient) Quote(_ context.Context, venue, tokenIn, tokenOut string, amountIn decimal.Decimal) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	priceIn, okIn := c.prices[tokenIn]
	priceOut, okOut := c.prices[tokenOut]
	if !okIn || !okOut || priceOut.IsZero() {
		return decimal.Zero, nil
	}

	mid := amountIn.Mul(priceIn).Div(priceOut)
	spread := decimal.NewFromFloat(1 - c.rng.Float64()*0.01) // venue takes up to 1%
	return mid.Mul(spread), nil
}
