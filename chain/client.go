package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAIN CAPABILITY - What the core needs from a blockchain
// ═══════════════════════════════════════════════════════════════════════════════
//
// One interface, two adapters: EthClient (go-ethereum, testnet/mainnet) and
// SimClient (deterministic, seedable, for simulation mode and tests). The
// adapter is selected once at startup; nothing downstream inspects which
// one it got.
//
// ═══════════════════════════════════════════════════════════════════════════════

// TransferEvent is a decoded ERC-20 Transfer log
type TransferEvent struct {
	Token  string
	From   string
	To     string
	Amount decimal.Decimal
	Block  uint64
	TxHash string
}

// LogFilter bounds a GetLogs query
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64 // 0 = latest
}

// FeeHistory summarizes recent fee market data.
// Rewards holds the median priority reward per sampled block.
type FeeHistory struct {
	BaseFee *big.Int   // latest base fee, wei
	Rewards []*big.Int // median tip per block, wei
}

// SwapTx is a venue swap ready for submission
type SwapTx struct {
	Venue        string
	TokenIn      string
	TokenOut     string
	AmountIn     decimal.Decimal
	MinAmountOut decimal.Decimal
	Deadline     time.Time
	GasFeeCap    *big.Int
	GasTipCap    *big.Int
}

// Receipt is a confirmed transaction outcome
type Receipt struct {
	TxHash    string
	Success   bool
	GasUsed   uint64
	AmountOut decimal.Decimal
	Block     uint64
}

// Client is the read/write chain capability consumed by the core
type Client interface {
	GetBalance(ctx context.Context, addr string) (decimal.Decimal, error)
	GetFeeHistory(ctx context.Context) (*FeeHistory, error)
	GetLogs(ctx context.Context, filter LogFilter) ([]TransferEvent, error)
	GetBlockNumber(ctx context.Context) (uint64, error)
	Submit(ctx context.Context, tx *SwapTx) (string, error)
	WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error)

	// Allowance/Approve support idempotent token approval before a swap
	Allowance(ctx context.Context, token, spender string) (decimal.Decimal, error)
	Approve(ctx context.Context, token, spender string, amount decimal.Decimal) error
}

// Quoter is the per-venue quoting capability
type Quoter interface {
	Quote(ctx context.Context, venue, tokenIn, tokenOut string, amountIn decimal.Decimal) (decimal.Decimal, error)
}
