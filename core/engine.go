package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/chain"
	"github.com/web3guy0/copybot/execution"
	"github.com/web3guy0/copybot/feeds"
	"github.com/web3guy0/copybot/internal/config"
	"github.com/web3guy0/copybot/risk"
	"github.com/web3guy0/copybot/safety"
	"github.com/web3guy0/copybot/storage"
	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CORE - Signal-to-order orchestration
// ═══════════════════════════════════════════════════════════════════════════════
//
// Candidates pass a two-stage gate before becoming orders:
//
//   1. HARD (safety guardian): latch, blacklist, daily cap, size ceilings.
//      Fast reject, no sizing.
//   2. SOFT (risk manager): Kelly sizing, exposure and liquidity scoring.
//
// Only a candidate that clears both stages reaches the execution engine.
// Terminal results fan back into the risk manager, the guardian's streak
// counter and the trade history.
//
// ═══════════════════════════════════════════════════════════════════════════════

// stableToken is the quote asset every copied trade settles against
const stableToken = "USDC"

// StableToken returns the quote asset symbol
func StableToken() string {
	return stableToken
}

// Notifier is the optional operator channel; nil disables notifications
type Notifier interface {
	NotifySignal(candidate types.CandidateTrade)
	NotifyFill(order *types.Order, result types.ExecutionResult, pnl decimal.Decimal)
	NotifyEmergencyStop(reason string)
	NotifyWarning(warning string)
}

// Core wires the pipeline, gates, engine and reporting together
type Core struct {
	mu sync.Mutex

	cfg      *config.Config
	state    *types.State
	client   chain.Client
	pipeline *feeds.Pipeline
	engine   *execution.Engine
	riskMgr  *risk.Manager
	guardian *safety.Guardian
	history  *storage.History
	db       *storage.Database
	notifier Notifier

	// Order confidence survives until the result callback needs it
	confidence map[string]float64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles the core. db and notifier may be disabled/nil.
func New(
	cfg *config.Config,
	state *types.State,
	client chain.Client,
	pipeline *feeds.Pipeline,
	engine *execution.Engine,
	riskMgr *risk.Manager,
	guardian *safety.Guardian,
	history *storage.History,
	db *storage.Database,
	notifier Notifier,
) *Core {
	c := &Core{
		cfg:        cfg,
		state:      state,
		client:     client,
		pipeline:   pipeline,
		engine:     engine,
		riskMgr:    riskMgr,
		guardian:   guardian,
		history:    history,
		db:         db,
		notifier:   notifier,
		confidence: make(map[string]float64),
	}

	engine.OnResult(c.handleResult)

	guardian.OnWarning(func(msg string) {
		if n := c.notify(); n != nil {
			n.NotifyWarning(msg)
		}
	})

	state.OnEmergencyStop(func(reason string) {
		if n := c.notify(); n != nil {
			n.NotifyEmergencyStop(reason)
		}
	})

	return c
}

// SetNotifier attaches the operator channel after construction.
// The Telegram bot needs the core as its status provider, so the two
// are wired in this order.
func (c *Core) SetNotifier(n Notifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifier = n
}

func (c *Core) notify() Notifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notifier
}

// Start launches the background loops
func (c *Core) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	c.loop(ctx, c.cfg.ReconcileEvery, c.signalCycle)
	c.loop(ctx, c.cfg.QueueDrainEvery, c.drainCycle)
	c.loop(ctx, c.cfg.StopLossEvery, c.stopLossCycle)
	c.loop(ctx, c.cfg.ReportEvery, c.reportCycle)

	log.Info().
		Str("mode", string(c.state.Mode())).
		Dur("reconcile", c.cfg.ReconcileEvery).
		Dur("drain", c.cfg.QueueDrainEvery).
		Msg("🧠 Core started")
}

// Stop cancels the loops and waits for them to drain
func (c *Core) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	log.Info().Msg("Core stopped")
}

func (c *Core) loop(ctx context.Context, every time.Duration, cycle func(context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cycle(ctx)
			}
		}
	}()
}

// ═══════════════════════════════════════════════════════════════════════════════
// CYCLES
// ═══════════════════════════════════════════════════════════════════════════════

// signalCycle polls the chain, promotes ready signals and gates each one
func (c *Core) signalCycle(ctx context.Context) {
	if err := c.pipeline.Poll(ctx); err != nil {
		log.Warn().Err(err).Msg("Signal poll failed")
		return
	}

	block, err := c.client.GetBlockNumber(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Block number fetch failed")
		return
	}

	for _, candidate := range c.pipeline.Reconcile(block) {
		if n := c.notify(); n != nil {
			n.NotifySignal(candidate)
		}
		c.ProcessCandidate(ctx, candidate)
	}
}

// drainCycle runs queued orders to terminal one at a time
func (c *Core) drainCycle(ctx context.Context) {
	for {
		_, err := c.engine.ExecuteNext(ctx)
		if err == nil {
			continue
		}
		if !errors.Is(err, execution.ErrEmptyQueue) && !errors.Is(err, execution.ErrHalted) {
			// Requeued order (gas ceiling etc.); retry next cycle
			log.Warn().Err(err).Msg("Execution deferred")
		}
		return
	}
}

// stopLossCycle checks portfolio drawdown against the stop-loss
func (c *Core) stopLossCycle(context.Context) {
	c.guardian.CheckStopLoss(c.riskMgr.PortfolioValue())
}

// reportCycle logs a status snapshot, persists state and rebalances
func (c *Core) reportCycle(ctx context.Context) {
	snap := c.Snapshot()

	log.Info().
		Str("uptime", snap.Uptime.Round(time.Second).String()).
		Str("balance", snap.Balance.StringFixed(2)).
		Str("pnl", snap.TotalPnL.StringFixed(2)).
		Str("win_rate", snap.WinRate.StringFixed(1)).
		Int("positions", snap.OpenPositions).
		Int("queued", snap.QueuedOrders).
		Bool("halted", snap.Halted).
		Msg("📊 Status report")

	if c.cfg.HistoryPath != "" {
		if err := c.history.WriteFile(c.cfg.HistoryPath); err != nil {
			log.Warn().Err(err).Msg("History export failed")
		}
	}

	c.persistRiskState()
	c.rebalance(ctx)
}

// ═══════════════════════════════════════════════════════════════════════════════
// GATE
// ═══════════════════════════════════════════════════════════════════════════════

// ProcessCandidate runs the two-stage gate and creates the order when both
// stages pass. The hard gate consumes a daily-budget slot only on success.
func (c *Core) ProcessCandidate(ctx context.Context, candidate types.CandidateTrade) {
	tradeValue := c.candidateValue(candidate)
	balance := c.riskMgr.PortfolioValue()

	// Stage 1: hard limits, fast reject
	if err := c.guardian.ValidateTrade(candidate.Token, tradeValue, balance); err != nil {
		log.Debug().
			Err(err).
			Str("token", candidate.Token).
			Str("action", string(candidate.Action)).
			Msg("⛔ Candidate rejected by guardian")
		return
	}

	// Stage 2: soft scoring and sizing
	assessment := c.riskMgr.AssessTrade(candidate, tradeValue)
	if !assessment.Approved {
		return
	}

	params := execution.OrderParams{
		Type:        candidate.Action,
		AmountIn:    assessment.RecommendedSize,
		MaxSlippage: c.cfg.MaxSlippage,
		Priority:    types.PriorityMedium,
		Strategy:    candidate.Strategy,
	}
	if candidate.Consensus {
		params.Priority = types.PriorityHigh
	}

	switch candidate.Action {
	case types.OrderSell:
		params.TokenIn = candidate.Token
		params.TokenOut = stableToken
		// Sells are denominated in token units, capped at the holding
		params.AmountIn = c.sellAmount(candidate)
		if !params.AmountIn.IsPositive() {
			log.Debug().Str("token", candidate.Token).Msg("Nothing held to sell, skipped")
			return
		}
	default:
		params.TokenIn = stableToken
		params.TokenOut = candidate.Token
	}

	order, err := c.engine.CreateOrder(ctx, params)
	if err != nil {
		log.Warn().Err(err).Str("token", candidate.Token).Msg("Order creation failed")
		return
	}

	c.mu.Lock()
	c.confidence[order.ID] = candidate.Confidence
	c.mu.Unlock()
}

// candidateValue estimates the outlay of a candidate in quote currency
func (c *Core) candidateValue(candidate types.CandidateTrade) decimal.Decimal {
	if candidate.Action != types.OrderSell {
		return candidate.Amount
	}
	if pos, ok := c.riskMgr.Positions()[candidate.Token]; ok {
		amount := decimal.Min(candidate.Amount, pos.Amount)
		return amount.Mul(pos.CurrentPrice)
	}
	return candidate.Amount
}

// sellAmount caps the copied sell at what we actually hold
func (c *Core) sellAmount(candidate types.CandidateTrade) decimal.Decimal {
	pos, ok := c.riskMgr.Positions()[candidate.Token]
	if !ok {
		return decimal.Zero
	}
	return decimal.Min(candidate.Amount, pos.Amount)
}

// ═══════════════════════════════════════════════════════════════════════════════
// RESULT FAN-BACK
// ═══════════════════════════════════════════════════════════════════════════════

// handleResult folds a terminal order back into risk, safety and history
func (c *Core) handleResult(order *types.Order, result types.ExecutionResult) {
	c.mu.Lock()
	confidence, ok := c.confidence[order.ID]
	delete(c.confidence, order.ID)
	c.mu.Unlock()
	if !ok {
		confidence = 0.5
	}

	if order.Status == types.StatusCancelled {
		return
	}

	pnl := c.riskMgr.ApplyFill(order, result, confidence)

	// Only realized outcomes move the loss streak
	if order.Type == types.OrderSell && result.Success {
		c.guardian.RecordTradeOutcome(pnl)
	}

	rec := types.TradeRecord{
		OrderID:   order.ID,
		Token:     tradeToken(order),
		Action:    order.Type,
		AmountIn:  order.AmountIn,
		AmountOut: result.AmountOut,
		PnL:       pnl,
		TxHash:    result.TxHash,
		Strategy:  order.Strategy,
		Success:   result.Success,
		Timestamp: time.Now(),
	}

	c.history.Append(rec)
	if err := c.db.SaveTrade(rec); err != nil {
		log.Warn().Err(err).Msg("Trade archive failed")
	}

	if n := c.notify(); n != nil {
		n.NotifyFill(order, result, pnl)
	}
}

// tradeToken returns the non-quote leg of the order
func tradeToken(order *types.Order) string {
	if order.Type == types.OrderSell {
		return order.TokenIn
	}
	return order.TokenOut
}

// ═══════════════════════════════════════════════════════════════════════════════
// REBALANCING & PERSISTENCE
// ═══════════════════════════════════════════════════════════════════════════════

// rebalance turns drifted weights into orders through the hard gate.
// Sizing is already decided by the optimizer, so the soft gate is skipped.
func (c *Core) rebalance(ctx context.Context) {
	actions := c.riskMgr.OptimizePortfolio()
	if len(actions) == 0 {
		return
	}

	portfolio := c.riskMgr.PortfolioValue()
	positions := c.riskMgr.Positions()

	for _, action := range actions {
		value := action.DeltaWeight.Abs().Mul(portfolio)

		if err := c.guardian.ValidateTrade(action.Token, value, portfolio); err != nil {
			log.Debug().Err(err).Str("token", action.Token).Msg("Rebalance rejected by guardian")
			continue
		}

		params := execution.OrderParams{
			Type:        action.Action,
			AmountIn:    value,
			MaxSlippage: c.cfg.MaxSlippage,
			Priority:    action.Priority,
			Strategy:    "rebalance",
		}

		if action.Action == types.OrderSell {
			pos, ok := positions[action.Token]
			if !ok || !pos.CurrentPrice.IsPositive() {
				continue
			}
			params.TokenIn = action.Token
			params.TokenOut = stableToken
			params.AmountIn = decimal.Min(value.Div(pos.CurrentPrice), pos.Amount)
		} else {
			params.TokenIn = stableToken
			params.TokenOut = action.Token
		}

		if _, err := c.engine.CreateOrder(ctx, params); err != nil {
			log.Warn().Err(err).Str("token", action.Token).Msg("Rebalance order failed")
		}
	}
}

// persistRiskState snapshots today's counters into the archive
func (c *Core) persistRiskState() {
	if !c.db.Enabled() {
		return
	}

	err := c.db.SaveRiskState(storage.RiskStateRow{
		Date:        time.Now().Format("2006-01-02"),
		Balance:     c.riskMgr.PortfolioValue(),
		RealizedPnL: c.riskMgr.RealizedPnL(),
		LossStreak:  c.guardian.LossStreak(),
		Halted:      c.state.EmergencyStopped(),
		StopReason:  c.state.StopReason(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Risk state persist failed")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// REPORTING
// ═══════════════════════════════════════════════════════════════════════════════

// Snapshot builds the current status report
func (c *Core) Snapshot() types.StatusSnapshot {
	stats := c.engine.Stats()
	return types.StatusSnapshot{
		Uptime:        c.state.Uptime(),
		Mode:          c.state.Mode(),
		Balance:       c.riskMgr.PortfolioValue(),
		TotalPnL:      stats.TotalPnL,
		WinRate:       stats.WinRate(),
		OpenPositions: c.riskMgr.OpenPositions(),
		QueuedOrders:  c.engine.QueueLen(),
		Halted:        c.state.EmergencyStopped(),
	}
}

// Positions exposes the risk manager's position set
func (c *Core) Positions() map[string]*types.Position {
	return c.riskMgr.Positions()
}

// RecentTrades returns the newest history entries, newest first
func (c *Core) RecentTrades(limit int) []types.TradeRecord {
	records := c.history.Records()
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records
}
