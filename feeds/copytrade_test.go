package feeds

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/copybot/chain"
	"github.com/web3guy0/copybot/types"
)

const (
	walletA = "0xaaa0000000000000000000000000000000000001"
	walletB = "0xbbb0000000000000000000000000000000000002"
	walletC = "0xccc0000000000000000000000000000000000003"
)

func newTestPipeline(sim *chain.SimClient, cfg PipelineConfig) *Pipeline {
	wallets := map[string]float64{
		walletA: 0.8,
		walletB: 0.7,
		walletC: 0.65,
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = 0.6
	}
	if cfg.ConsensusThreshold == 0 {
		cfg.ConsensusThreshold = 3
	}
	if cfg.ConsensusWindow == 0 {
		cfg.ConsensusWindow = 5 * time.Minute
	}
	return NewPipeline(sim, wallets, cfg)
}

func buyEvent(wallet string, block uint64) chain.TransferEvent {
	return chain.TransferEvent{
		Token:  "WETH",
		From:   "0xsomebody",
		To:     wallet,
		Amount: decimal.NewFromInt(10),
		Block:  block,
	}
}

func TestDelayGatesPromotion(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 2, MaxAgeBlocks: 100})
	ctx := context.Background()

	sim.AdvanceBlock(99) // head at 100
	sim.AddTransfer(buyEvent(walletA, 100))

	require.NoError(t, p.Poll(ctx))
	require.Equal(t, 1, p.Buffered())

	// Observed at 100, delay 2: ready only once the head reaches 102
	require.Empty(t, p.Reconcile(100))
	require.Empty(t, p.Reconcile(101))

	candidates := p.Reconcile(102)
	require.Len(t, candidates, 1)
	require.Equal(t, "WETH", candidates[0].Token)
	require.Equal(t, types.OrderBuy, candidates[0].Action)
	require.Equal(t, walletA, candidates[0].SourceWallet)
	require.InDelta(t, 0.8, candidates[0].Confidence, 1e-9)
	require.Equal(t, 0, p.Buffered())
}

func TestSellDetection(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 1, MaxAgeBlocks: 100})
	ctx := context.Background()

	sim.AdvanceBlock(9) // head at 10
	sim.AddTransfer(chain.TransferEvent{
		Token:  "WETH",
		From:   walletB,
		To:     "0xsomebody",
		Amount: decimal.NewFromInt(5),
		Block:  10,
	})

	require.NoError(t, p.Poll(ctx))

	candidates := p.Reconcile(11)
	require.Len(t, candidates, 1)
	require.Equal(t, types.OrderSell, candidates[0].Action)
	require.Equal(t, walletB, candidates[0].SourceWallet)
}

func TestUnfollowedWalletIgnored(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 1, MaxAgeBlocks: 100})
	ctx := context.Background()

	sim.AddTransfer(buyEvent("0xdead000000000000000000000000000000000000", 1))
	require.NoError(t, p.Poll(ctx))
	require.Equal(t, 0, p.Buffered())
}

func TestConfidenceFloor(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 1, MaxAgeBlocks: 100, MinConfidence: 0.75})
	ctx := context.Background()

	// walletB's backtested confidence 0.7 is below the 0.75 floor
	sim.AddTransfer(buyEvent(walletB, 1))
	sim.AddTransfer(buyEvent(walletA, 1))
	require.NoError(t, p.Poll(ctx))
	require.Equal(t, 1, p.Buffered())
}

func TestMaxAgeEviction(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 2, MaxAgeBlocks: 5})
	ctx := context.Background()

	sim.AdvanceBlock(99)
	sim.AddTransfer(buyEvent(walletA, 100))
	require.NoError(t, p.Poll(ctx))

	// 106 > 100+5: the signal is evicted, never promoted
	candidates := p.Reconcile(106)
	require.Empty(t, candidates)
	require.Equal(t, 0, p.Buffered())

	_, promoted, evicted := p.Stats()
	require.Equal(t, 0, promoted)
	require.Equal(t, 1, evicted)
}

func TestFIFOPerWallet(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 2, MaxAgeBlocks: 100})
	ctx := context.Background()

	sim.AdvanceBlock(99)
	sim.AddTransfer(buyEvent(walletA, 100))
	require.NoError(t, p.Poll(ctx))
	sim.AdvanceBlock(3) // head at 103
	sim.AddTransfer(buyEvent(walletA, 103))
	require.NoError(t, p.Poll(ctx))
	require.Equal(t, 2, p.Buffered())

	// At 103 only the first signal is past its delay; the second waits
	candidates := p.Reconcile(103)
	require.Len(t, candidates, 1)
	require.Equal(t, 1, p.Buffered())

	candidates = p.Reconcile(105)
	require.Len(t, candidates, 1)
	require.Equal(t, 0, p.Buffered())
}

func TestConsensusRequiresDistinctWallets(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 1, MaxAgeBlocks: 100, ConsensusThreshold: 3})
	ctx := context.Background()

	// Two wallets agreeing is below K=3
	sim.AddTransfer(buyEvent(walletA, 1))
	sim.AddTransfer(buyEvent(walletB, 1))
	require.NoError(t, p.Poll(ctx))

	candidates := p.Reconcile(2)
	require.Len(t, candidates, 2)
	for _, c := range candidates {
		require.False(t, c.Consensus)
	}

	// A third distinct wallet tips it over
	sim.AdvanceBlock(1)
	sim.AddTransfer(buyEvent(walletC, 2))
	require.NoError(t, p.Poll(ctx))

	candidates = p.Reconcile(3)
	require.Len(t, candidates, 1)
	require.True(t, candidates[0].Consensus)
}

// filterRecorder captures the block ranges the pipeline queries
type filterRecorder struct {
	*chain.SimClient
	filters []chain.LogFilter
}

func (f *filterRecorder) GetLogs(ctx context.Context, filter chain.LogFilter) ([]chain.TransferEvent, error) {
	f.filters = append(f.filters, filter)
	return f.SimClient.GetLogs(ctx, filter)
}

func TestFirstPollAnchorsAtHead(t *testing.T) {
	sim := chain.NewSimClient(1)
	sim.AdvanceBlock(4999) // head at 5000
	sim.AddTransfer(buyEvent(walletA, 3))
	rec := &filterRecorder{SimClient: sim}
	p := NewPipeline(rec, map[string]float64{walletA: 0.8}, PipelineConfig{
		CopyDelayBlocks: 1,
		MaxAgeBlocks:    100,
		MinConfidence:   0.6,
	})
	ctx := context.Background()

	// The first poll scans only the head block, never back to genesis,
	// so the ancient transfer is not replayed
	require.NoError(t, p.Poll(ctx))
	require.Len(t, rec.filters, 1)
	require.Equal(t, uint64(5000), rec.filters[0].FromBlock)
	require.Equal(t, 0, p.Buffered())

	// New activity past the anchor is picked up normally
	sim.AdvanceBlock(1)
	sim.AddTransfer(buyEvent(walletA, 5001))
	require.NoError(t, p.Poll(ctx))
	require.Equal(t, uint64(5001), rec.filters[1].FromBlock)
	require.Equal(t, 1, p.Buffered())
}

func TestRepeatSignalsFromOneWalletNoConsensus(t *testing.T) {
	sim := chain.NewSimClient(1)
	p := newTestPipeline(sim, PipelineConfig{CopyDelayBlocks: 1, MaxAgeBlocks: 100, ConsensusThreshold: 2})
	ctx := context.Background()

	// Same wallet, same token, three times: still one distinct wallet
	sim.AddTransfer(buyEvent(walletA, 1))
	sim.AddTransfer(buyEvent(walletA, 1))
	sim.AddTransfer(buyEvent(walletA, 1))
	require.NoError(t, p.Poll(ctx))

	candidates := p.Reconcile(2)
	require.Len(t, candidates, 3)
	for _, c := range candidates {
		require.False(t, c.Consensus)
	}
}
