package feeds

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/copybot/chain"
	"github.com/web3guy0/copybot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// COPY-TRADE PIPELINE - Followed-wallet signal detection & delayed promotion
// ═══════════════════════════════════════════════════════════════════════════════
//
// Poll scans transfer logs for followed wallets and buffers a PendingTrade
// per match. A signal only becomes ready once
//
//   currentBlock >= observedBlock + copyDelayBlocks
//
// so we never front-run the confirmation of the trade we are copying.
// Reconcile promotes ready signals per wallet in FIFO order and evicts
// anything older than maxAgeBlocks; without eviction the buffer grows
// unboundedly on wallets that never settle.
//
// Consensus: when >=K distinct wallets signal the same (token, action)
// inside the window, the promoted candidate is marked so the risk manager
// may scale it up.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PipelineConfig tunes the signal pipeline
type PipelineConfig struct {
	CopyDelayBlocks    uint64
	MaxAgeBlocks       uint64
	MinConfidence      float64
	ConsensusThreshold int
	ConsensusWindow    time.Duration
}

type consensusEntry struct {
	wallet string
	seenAt time.Time
}

// Pipeline watches transfer events and promotes copy-trade signals
type Pipeline struct {
	mu sync.Mutex

	client  chain.Client
	wallets map[string]float64 // lowercase address → backtested confidence
	cfg     PipelineConfig

	lastBlock uint64
	anchored  bool                                 // lastBlock initialized from the head
	buffers   map[string][]*types.PendingTrade     // per-wallet FIFO
	consensus map[string][]consensusEntry          // "token|action" → sightings
	idSeq     uint64

	// Counters for reporting
	observed int
	promoted int
	evicted  int
}

// NewPipeline creates a pipeline over the followed-wallet set
func NewPipeline(client chain.Client, wallets map[string]float64, cfg PipelineConfig) *Pipeline {
	normalized := make(map[string]float64, len(wallets))
	for addr, conf := range wallets {
		normalized[strings.ToLower(addr)] = conf
	}

	log.Info().
		Int("wallets", len(normalized)).
		Uint64("copy_delay_blocks", cfg.CopyDelayBlocks).
		Uint64("max_age_blocks", cfg.MaxAgeBlocks).
		Int("consensus_k", cfg.ConsensusThreshold).
		Msg("👀 Copy-trade pipeline initialized")

	return &Pipeline{
		client:    client,
		wallets:   normalized,
		cfg:       cfg,
		buffers:   make(map[string][]*types.PendingTrade),
		consensus: make(map[string][]consensusEntry),
	}
}

// Poll scans new blocks for followed-wallet transfers and buffers signals
func (p *Pipeline) Poll(ctx context.Context) error {
	block, err := p.client.GetBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("block number: %w", err)
	}

	p.mu.Lock()
	// The first poll anchors at the head: scanning from genesis would be
	// an unbounded log query no public RPC serves
	if !p.anchored {
		if block > 0 {
			p.lastBlock = block - 1
		}
		p.anchored = true
	}
	from := p.lastBlock + 1
	p.mu.Unlock()

	if from > block {
		return nil
	}

	events, err := p.client.GetLogs(ctx, chain.LogFilter{FromBlock: from, ToBlock: block})
	if err != nil {
		return fmt.Errorf("get logs: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastBlock = block

	for _, ev := range events {
		p.observeLocked(ev)
	}
	return nil
}

// observeLocked turns a matching transfer into a buffered PendingTrade.
// A followed wallet receiving the token is a buy; sending it is a sell.
func (p *Pipeline) observeLocked(ev chain.TransferEvent) {
	var wallet string
	var action types.OrderType
	if _, ok := p.wallets[strings.ToLower(ev.To)]; ok {
		wallet, action = strings.ToLower(ev.To), types.OrderBuy
	} else if _, ok := p.wallets[strings.ToLower(ev.From)]; ok {
		wallet, action = strings.ToLower(ev.From), types.OrderSell
	} else {
		return
	}

	confidence := p.wallets[wallet]
	if confidence < p.cfg.MinConfidence {
		log.Debug().
			Str("wallet", wallet).
			Float64("confidence", confidence).
			Msg("Signal below confidence floor, ignored")
		return
	}

	p.idSeq++
	signal := &types.PendingTrade{
		ID:            fmt.Sprintf("SIG_%d", p.idSeq),
		Wallet:        wallet,
		Token:         ev.Token,
		Action:        action,
		Amount:        ev.Amount,
		ObservedBlock: ev.Block,
		Confidence:    confidence,
		ObservedAt:    time.Now(),
	}

	p.buffers[wallet] = append(p.buffers[wallet], signal)
	p.observed++

	// Consensus sightings are recorded at observation, not promotion
	key := consensusKey(signal.Token, signal.Action)
	p.consensus[key] = append(p.consensus[key], consensusEntry{wallet: wallet, seenAt: signal.ObservedAt})

	log.Info().
		Str("id", signal.ID).
		Str("wallet", wallet).
		Str("token", signal.Token).
		Str("action", string(action)).
		Str("amount", signal.Amount.String()).
		Uint64("block", signal.ObservedBlock).
		Msg("📡 Copy signal observed")
}

// Reconcile evicts stale signals and promotes ready ones in FIFO order
// per wallet. Each signal is consumed exactly once: promoted or evicted.
func (p *Pipeline) Reconcile(currentBlock uint64) []types.CandidateTrade {
	p.mu.Lock()
	defer p.mu.Unlock()

	var promoted []*types.PendingTrade

	for wallet, buf := range p.buffers {
		i := 0
		for ; i < len(buf); i++ {
			signal := buf[i]

			// Max-age eviction: a signal that sat unpromoted too long is dead
			if currentBlock > signal.ObservedBlock+p.cfg.MaxAgeBlocks {
				p.evicted++
				log.Warn().
					Str("id", signal.ID).
					Str("wallet", wallet).
					Uint64("observed", signal.ObservedBlock).
					Uint64("current", currentBlock).
					Msg("🗑️ Signal evicted past max age")
				continue
			}

			// Buffers are block-ascending per wallet: first not-ready
			// signal means everything behind it waits too (FIFO).
			if currentBlock < signal.ObservedBlock+p.cfg.CopyDelayBlocks {
				break
			}

			promoted = append(promoted, signal)
		}
		p.buffers[wallet] = buf[i:]
	}

	// Stale consensus sightings roll out of the window
	cutoff := time.Now().Add(-p.cfg.ConsensusWindow)
	for key, entries := range p.consensus {
		kept := entries[:0]
		for _, e := range entries {
			if e.seenAt.After(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(p.consensus, key)
		} else {
			p.consensus[key] = kept
		}
	}

	// Promote in block-observation order across wallets
	sort.Slice(promoted, func(i, j int) bool {
		return promoted[i].ObservedBlock < promoted[j].ObservedBlock
	})

	candidates := make([]types.CandidateTrade, 0, len(promoted))
	for _, signal := range promoted {
		p.promoted++
		candidate := types.CandidateTrade{
			Token:        signal.Token,
			Action:       signal.Action,
			Amount:       signal.Amount,
			Confidence:   signal.Confidence,
			Consensus:    p.hasConsensusLocked(signal.Token, signal.Action),
			SourceWallet: signal.Wallet,
			Strategy:     "copy-trade",
		}
		candidates = append(candidates, candidate)

		log.Info().
			Str("id", signal.ID).
			Str("token", signal.Token).
			Str("action", string(signal.Action)).
			Bool("consensus", candidate.Consensus).
			Msg("🚀 Signal promoted")
	}

	return candidates
}

// hasConsensusLocked counts distinct wallets for (token, action) in window
func (p *Pipeline) hasConsensusLocked(token string, action types.OrderType) bool {
	entries := p.consensus[consensusKey(token, action)]
	distinct := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		distinct[e.wallet] = struct{}{}
	}
	return len(distinct) >= p.cfg.ConsensusThreshold
}

// Buffered returns the number of signals awaiting promotion
func (p *Pipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, buf := range p.buffers {
		n += len(buf)
	}
	return n
}

// Stats returns observed/promoted/evicted counters
func (p *Pipeline) Stats() (observed, promoted, evicted int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observed, p.promoted, p.evicted
}

func consensusKey(token string, action types.OrderType) string {
	return token + "|" + string(action)
}
