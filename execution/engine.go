package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/chain"
	"github.com/web3guy0/copybot/gas"
	"github.com/web3guy0/copybot/router"
	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION ENGINE - Order state machine & priority queue
// ═══════════════════════════════════════════════════════════════════════════════
//
// State machine: pending → submitted → {confirmed, failed}
//                pending → cancelled
// No other transition exists. Terminal orders are immutable and retained
// for reporting.
//
// ExecuteNext runs exactly one order to a terminal state before returning.
// The engine never executes two orders concurrently; that single-active-
// order invariant is what keeps balance and nonce handling race-free. Any
// caller parallelizing execution must add per-token locking first.
//
// ═══════════════════════════════════════════════════════════════════════════════

var (
	ErrEmptyQueue          = errors.New("order queue is empty")
	ErrInvalidState        = errors.New("order is not in a cancellable state")
	ErrHalted              = errors.New("emergency stop is latched")
	ErrNoViableRoute       = errors.New("no venue returned a usable quote")
	ErrInsufficientBalance = errors.New("wallet balance below order amount")
	ErrConfirmationTimeout = errors.New("receipt did not arrive in time")
)

// OrderParams are the caller-supplied inputs to CreateOrder
type OrderParams struct {
	Type        types.OrderType
	TokenIn     string
	TokenOut    string
	AmountIn    decimal.Decimal
	MaxSlippage decimal.Decimal
	Priority    types.OrderPriority
	Strategy    string
	Deadline    time.Time
}

// Config holds engine settings
type Config struct {
	Wallet         string
	ReceiptTimeout time.Duration
	OrderDeadline  time.Duration
	SimRand        *rand.Rand // seeded source for simulated outcomes
}

// Engine owns every Order after creation and is the only mutator
type Engine struct {
	mu sync.Mutex

	state     *types.State
	client    chain.Client
	optimizer *router.Optimizer
	gasCalc   *gas.Calculator
	cfg       Config
	rng       *rand.Rand

	orders map[string]*types.Order
	queue  *orderQueue
	idSeq  uint64

	stats types.TradingStats

	onResult func(*types.Order, types.ExecutionResult)
}

// NewEngine creates an execution engine bound to the process state
func NewEngine(state *types.State, client chain.Client, optimizer *router.Optimizer, gasCalc *gas.Calculator, cfg Config) *Engine {
	rng := cfg.SimRand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	e := &Engine{
		state:     state,
		client:    client,
		optimizer: optimizer,
		gasCalc:   gasCalc,
		cfg:       cfg,
		rng:       rng,
		orders:    make(map[string]*types.Order),
		queue:     newOrderQueue(),
	}

	log.Info().
		Str("mode", string(state.Mode())).
		Dur("receipt_timeout", cfg.ReceiptTimeout).
		Msg("⚡ Execution engine initialized")

	return e
}

// OnResult sets the callback fired after every terminal order
func (e *Engine) OnResult(fn func(*types.Order, types.ExecutionResult)) {
	e.onResult = fn
}

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER CREATION
// ═══════════════════════════════════════════════════════════════════════════════

// CreateOrder validates params, quotes the best route and enqueues.
// The order is pending until ExecuteNext picks it up.
func (e *Engine) CreateOrder(ctx context.Context, params OrderParams) (*types.Order, error) {
	if !params.AmountIn.IsPositive() {
		return nil, fmt.Errorf("amountIn must be positive, got %s", params.AmountIn)
	}
	if params.MaxSlippage.IsNegative() || params.MaxSlippage.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("maxSlippage must be within [0,1], got %s", params.MaxSlippage)
	}
	if params.TokenIn == "" || params.TokenOut == "" {
		return nil, fmt.Errorf("tokenIn and tokenOut are required")
	}

	route := e.optimizer.BestRoute(ctx, params.TokenIn, params.TokenOut, params.AmountIn)
	if !route.Viable() {
		return nil, ErrNoViableRoute
	}

	minOut := route.ExpectedOut.Mul(decimal.NewFromInt(1).Sub(params.MaxSlippage))

	deadline := params.Deadline
	if deadline.IsZero() {
		deadline = time.Now().Add(e.cfg.OrderDeadline)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.idSeq++
	order := &types.Order{
		ID:           fmt.Sprintf("ORD_%d_%d", time.Now().Unix(), e.idSeq),
		Type:         params.Type,
		TokenIn:      params.TokenIn,
		TokenOut:     params.TokenOut,
		AmountIn:     params.AmountIn,
		MinAmountOut: minOut,
		ExpectedOut:  route.ExpectedOut,
		MaxSlippage:  params.MaxSlippage,
		Deadline:     deadline,
		Strategy:     params.Strategy,
		Priority:     params.Priority,
		Status:       types.StatusPending,
		Venue:        route.Venue,
		CreatedAt:    time.Now(),
	}

	e.orders[order.ID] = order
	e.queue.push(order.ID, order.Priority)

	log.Info().
		Str("id", order.ID).
		Str("type", string(order.Type)).
		Str("token_in", order.TokenIn).
		Str("token_out", order.TokenOut).
		Str("amount_in", order.AmountIn.String()).
		Str("min_out", order.MinAmountOut.String()).
		Str("venue", order.Venue).
		Str("priority", order.Priority.String()).
		Msg("📝 Order queued")

	return order, nil
}

// CancelOrder cancels a pending order. Submitted and terminal orders
// cannot be cancelled; in-flight orders must be awaited.
func (e *Engine) CancelOrder(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("unknown order %s", id)
	}
	if order.Status != types.StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrInvalidState, id, order.Status)
	}

	e.finishLocked(order, types.StatusCancelled, types.ExecutionResult{
		OrderID: id,
		Success: false,
		Error:   "cancelled by caller",
	})
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ═══════════════════════════════════════════════════════════════════════════════

// ExecuteNext pops the highest-priority pending order and runs it to a
// terminal state. Gas-ceiling aborts and the emergency latch leave the
// order pending and requeued for a later cycle.
func (e *Engine) ExecuteNext(ctx context.Context) (*types.ExecutionResult, error) {
	e.mu.Lock()
	var order *types.Order
	var item queueItem
	for {
		var ok bool
		item, ok = e.queue.pop()
		if !ok {
			e.mu.Unlock()
			return nil, ErrEmptyQueue
		}
		// Cancelled entries stay in the heap until popped; skip them
		if o := e.orders[item.orderID]; o != nil && o.Status == types.StatusPending {
			order = o
			break
		}
	}

	if e.state.EmergencyStopped() {
		e.queue.requeue(item)
		e.mu.Unlock()
		return nil, ErrHalted
	}

	if time.Now().After(order.Deadline) {
		result := types.ExecutionResult{
			OrderID: order.ID,
			Success: false,
			Error:   "deadline passed before submission",
		}
		e.finishLocked(order, types.StatusCancelled, result)
		e.mu.Unlock()
		return &result, nil
	}
	e.mu.Unlock()

	// Fee plan comes before the submitted transition so a ceiling breach
	// aborts the cycle with the order still pending.
	var plan gas.Plan
	if e.state.Mode().Live() {
		var err error
		plan, err = e.gasCalc.Estimate(ctx, order.Priority)
		if err != nil {
			e.mu.Lock()
			e.queue.requeue(item)
			e.mu.Unlock()
			return nil, fmt.Errorf("order %s: %w", order.ID, err)
		}

		balance, err := e.client.GetBalance(ctx, e.cfg.Wallet)
		if err == nil && balance.LessThan(order.AmountIn) {
			result := types.ExecutionResult{
				OrderID: order.ID,
				Success: false,
				Error:   ErrInsufficientBalance.Error(),
			}
			e.mu.Lock()
			e.finishLocked(order, types.StatusFailed, result)
			e.mu.Unlock()
			return &result, nil
		}
	}

	e.mu.Lock()
	// The lock was dropped for the fee plan; a cancel may have landed in
	// that window. Terminal is immutable, so the order must not be revived.
	if order.Status != types.StatusPending {
		result := types.ExecutionResult{
			OrderID: order.ID,
			Success: false,
			Error:   order.Error,
		}
		e.mu.Unlock()
		return &result, nil
	}
	now := time.Now()
	order.Status = types.StatusSubmitted
	order.SubmittedAt = &now
	e.mu.Unlock()

	log.Info().
		Str("id", order.ID).
		Str("venue", order.Venue).
		Msg("📤 Order submitted")

	var result types.ExecutionResult
	if e.state.Mode().Live() {
		result = e.executeLive(ctx, order, plan)
	} else {
		result = e.simulateSwap(order)
	}

	status := types.StatusFailed
	if result.Success {
		status = types.StatusConfirmed
	}

	e.mu.Lock()
	e.finishLocked(order, status, result)
	e.mu.Unlock()

	return &result, nil
}

// executeLive runs the real-chain path: idempotent approval, submit,
// await receipt, decode realized output
func (e *Engine) executeLive(ctx context.Context, order *types.Order, plan gas.Plan) types.ExecutionResult {
	fail := func(err error) types.ExecutionResult {
		log.Error().Err(err).Str("id", order.ID).Msg("❌ Order failed")
		return types.ExecutionResult{OrderID: order.ID, Success: false, Error: err.Error()}
	}

	// Skip approval when the existing allowance already covers the amount
	spender := order.Venue
	allowance, err := e.client.Allowance(ctx, order.TokenIn, spender)
	if err != nil {
		return fail(fmt.Errorf("allowance check: %w", err))
	}
	if allowance.LessThan(order.AmountIn) {
		if err := e.client.Approve(ctx, order.TokenIn, spender, order.AmountIn); err != nil {
			return fail(fmt.Errorf("approval: %w", err))
		}
	}

	txHash, err := e.client.Submit(ctx, &chain.SwapTx{
		Venue:        order.Venue,
		TokenIn:      order.TokenIn,
		TokenOut:     order.TokenOut,
		AmountIn:     order.AmountIn,
		MinAmountOut: order.MinAmountOut,
		Deadline:     order.Deadline,
		GasFeeCap:    plan.MaxFee,
		GasTipCap:    plan.PriorityFee,
	})
	if err != nil {
		return fail(fmt.Errorf("submission: %w", err))
	}

	e.mu.Lock()
	order.TxHash = txHash
	e.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := e.client.WaitForReceipt(waitCtx, txHash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(fmt.Errorf("%w: %s", ErrConfirmationTimeout, txHash))
		}
		return fail(fmt.Errorf("await receipt: %w", err))
	}
	if !receipt.Success {
		return fail(fmt.Errorf("transaction %s reverted", txHash))
	}

	return types.ExecutionResult{
		OrderID:   order.ID,
		Success:   true,
		TxHash:    txHash,
		AmountOut: receipt.AmountOut,
		GasUsed:   receipt.GasUsed,
		Slippage:  realizedSlippage(order.ExpectedOut, receipt.AmountOut),
	}
}

// simulateSwap produces an internally consistent synthetic result from
// the engine's seeded random source
func (e *Engine) simulateSwap(order *types.Order) types.ExecutionResult {
	e.mu.Lock()
	roll := e.rng.Float64()
	spread := e.rng.Float64()
	e.mu.Unlock()

	// 10% synthetic failure rate
	if roll < 0.10 {
		return types.ExecutionResult{
			OrderID: order.ID,
			Success: false,
			Error:   "simulated execution failure",
		}
	}

	// Realized output between minOut and expected*1.02 (bounded profit)
	ceiling := order.ExpectedOut.Mul(decimal.NewFromFloat(1.02))
	span := ceiling.Sub(order.MinAmountOut)
	amountOut := order.MinAmountOut.Add(span.Mul(decimal.NewFromFloat(spread)))

	return types.ExecutionResult{
		OrderID:   order.ID,
		Success:   true,
		TxHash:    fmt.Sprintf("0xSIM_%s", order.ID),
		AmountOut: amountOut,
		GasUsed:   180_000,
		Slippage:  realizedSlippage(order.ExpectedOut, amountOut),
	}
}

// finishLocked moves an order to a terminal state exactly once and is the
// only place the shared counters change. Callers hold e.mu.
func (e *Engine) finishLocked(order *types.Order, status types.OrderStatus, result types.ExecutionResult) {
	if order.Status.Terminal() {
		return
	}

	now := time.Now()
	order.Status = status
	order.CompletedAt = &now
	// A failure after broadcast carries no result hash; keep the one
	// recorded at submission
	if result.TxHash != "" {
		order.TxHash = result.TxHash
	}
	order.Error = result.Error

	if status != types.StatusCancelled {
		e.stats.Trades++
		if result.Success {
			e.stats.Wins++
			e.stats.TotalPnL = e.stats.TotalPnL.Add(result.AmountOut.Sub(order.ExpectedOut))
		} else {
			e.stats.Losses++
		}
	}

	evt := log.Info()
	if !result.Success && status != types.StatusCancelled {
		evt = log.Warn()
	}
	evt.
		Str("id", order.ID).
		Str("status", string(status)).
		Str("amount_out", result.AmountOut.String()).
		Str("tx", result.TxHash).
		Msg("🏁 Order terminal")

	if e.onResult != nil {
		// Callback runs outside the lock to avoid re-entrancy deadlocks
		go e.onResult(order, result)
	}
}

// realizedSlippage returns (expected - actual) / expected, zero floor
func realizedSlippage(expected, actual decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		return decimal.Zero
	}
	s := expected.Sub(actual).Div(expected)
	if s.IsNegative() {
		return decimal.Zero
	}
	return s
}

// ═══════════════════════════════════════════════════════════════════════════════
// ACCESSORS
// ═══════════════════════════════════════════════════════════════════════════════

// GetOrder returns an order by ID
func (e *Engine) GetOrder(id string) (*types.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[id]
	return o, ok
}

// QueueLen returns the number of queued entries
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.len()
}

// Stats returns a copy of the cumulative counters
func (e *Engine) Stats() types.TradingStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}
