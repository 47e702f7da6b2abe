package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// OrderType classifies what an order does on-chain
type OrderType string

const (
	OrderBuy  OrderType = "BUY"
	OrderSell OrderType = "SELL"
	OrderSwap OrderType = "SWAP"
)

// OrderPriority controls dequeue order; higher drains first
type OrderPriority int

const (
	PriorityLow OrderPriority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p OrderPriority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// OrderStatus is the lifecycle state of an order.
// Legal transitions: pending → submitted → {confirmed, failed}
// and pending → cancelled. Terminal states are immutable.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status can never change again
func (s OrderStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusCancelled
}

// Order is a swap request owned by the execution engine after creation
type Order struct {
	ID           string          `json:"id"`
	Type         OrderType       `json:"type"`
	TokenIn      string          `json:"token_in"`
	TokenOut     string          `json:"token_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	MinAmountOut decimal.Decimal `json:"min_amount_out"`
	ExpectedOut  decimal.Decimal `json:"expected_out"`
	MaxSlippage  decimal.Decimal `json:"max_slippage"`
	Deadline     time.Time       `json:"deadline"`
	Strategy     string          `json:"strategy"`
	Priority     OrderPriority   `json:"priority"`
	Status       OrderStatus     `json:"status"`
	Venue        string          `json:"venue"`
	CreatedAt    time.Time       `json:"created_at"`
	SubmittedAt  *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	TxHash       string          `json:"tx_hash,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ExecutionResult is the per-order outcome reported to callers
type ExecutionResult struct {
	OrderID   string          `json:"order_id"`
	Success   bool            `json:"success"`
	TxHash    string          `json:"tx_hash,omitempty"`
	AmountOut decimal.Decimal `json:"amount_out"`
	GasUsed   uint64          `json:"gas_used,omitempty"`
	Slippage  decimal.Decimal `json:"slippage"`
	Error     string          `json:"error,omitempty"`
}

// PendingTrade is a copy-trade signal waiting out its promotion delay.
// Exactly-once consumption: promoted to a CandidateTrade or evicted, never both.
type PendingTrade struct {
	ID            string          `json:"id"`
	Wallet        string          `json:"wallet"`
	Token         string          `json:"token"`
	Action        OrderType       `json:"action"`
	Amount        decimal.Decimal `json:"amount"`
	ObservedBlock uint64          `json:"observed_block"`
	Confidence    float64         `json:"confidence"`
	ObservedAt    time.Time       `json:"observed_at"`
}

// CandidateTrade is a promoted signal headed for the risk/safety gate
type CandidateTrade struct {
	Token        string          `json:"token"`
	Action       OrderType       `json:"action"`
	Amount       decimal.Decimal `json:"amount"`
	Confidence   float64         `json:"confidence"`
	Consensus    bool            `json:"consensus"`
	SourceWallet string          `json:"source_wallet"`
	Strategy     string          `json:"strategy"`
}

// Position is an open holding, owned by the risk manager
type Position struct {
	Token        string          `json:"token"`
	Amount       decimal.Decimal `json:"amount"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	HighestPnL   decimal.Decimal `json:"highest_pnl"` // trailing watermark
	SoldFraction decimal.Decimal `json:"sold_fraction"`
	RiskScore    float64         `json:"risk_score"`
	Confidence   float64         `json:"confidence"`
	Category     string          `json:"category"` // correlated-exposure bucket
	Strategy     string          `json:"strategy"`
	OpenedAt     time.Time       `json:"opened_at"`
}

// Value returns the current mark value of the position
func (p *Position) Value() decimal.Decimal {
	return p.Amount.Mul(p.CurrentPrice)
}

// UnrealizedPnL returns mark value minus cost basis
func (p *Position) UnrealizedPnL() decimal.Decimal {
	return p.CurrentPrice.Sub(p.EntryPrice).Mul(p.Amount)
}

// TradingStats are cumulative process-lifetime counters.
// Mutated only when an order reaches a terminal state.
type TradingStats struct {
	Trades      int             `json:"trades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	PeakBalance decimal.Decimal `json:"peak_balance"`
	MaxDrawdown decimal.Decimal `json:"max_drawdown"`
}

// WinRate returns wins / trades as a percentage
func (s TradingStats) WinRate() decimal.Decimal {
	if s.Trades == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Wins)).
		Div(decimal.NewFromInt(int64(s.Trades))).
		Mul(decimal.NewFromInt(100))
}

// TradeRecord is one entry of the JSON-exportable trade history
type TradeRecord struct {
	OrderID   string          `json:"order_id"`
	Token     string          `json:"token"`
	Action    OrderType       `json:"action"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	PnL       decimal.Decimal `json:"pnl"`
	TxHash    string          `json:"tx_hash,omitempty"`
	Strategy  string          `json:"strategy"`
	Success   bool            `json:"success"`
	Timestamp time.Time       `json:"timestamp"`
}

// StatusSnapshot is the periodic health report
type StatusSnapshot struct {
	Uptime        time.Duration   `json:"uptime"`
	Mode          Mode            `json:"mode"`
	Balance       decimal.Decimal `json:"balance"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	WinRate       decimal.Decimal `json:"win_rate"`
	OpenPositions int             `json:"open_positions"`
	QueuedOrders  int             `json:"queued_orders"`
	Halted        bool            `json:"halted"`
}
