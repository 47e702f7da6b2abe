package router

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/copybot/chain"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ROUTE OPTIMIZER - Best execution venue for a swap
// ═══════════════════════════════════════════════════════════════════════════════
//
// Every enabled venue is quoted in parallel. A venue failure contributes no
// candidate and never aborts the others. If all venues fail the optimizer
// returns a zero route; callers must treat a zero expected output as
// "no viable route", not an error.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Route is the winning venue and its expected output
type Route struct {
	Venue       string
	ExpectedOut decimal.Decimal
}

// Viable reports whether the route can actually be executed
func (r Route) Viable() bool {
	return r.Venue != "" && r.ExpectedOut.IsPositive()
}

// Optimizer fans quote requests out to all venues
type Optimizer struct {
	quoter       chain.Quoter
	venues       []string
	quoteTimeout time.Duration
}

// NewOptimizer creates an optimizer over the enabled venues
func NewOptimizer(quoter chain.Quoter, venues []string) *Optimizer {
	return &Optimizer{
		quoter:       quoter,
		venues:       venues,
		quoteTimeout: 5 * time.Second,
	}
}

// BestRoute quotes all venues concurrently and picks the highest output
func (o *Optimizer) BestRoute(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) Route {
	ctx, cancel := context.WithTimeout(ctx, o.quoteTimeout)
	defer cancel()

	type quote struct {
		venue string
		out   decimal.Decimal
	}

	results := make(chan quote, len(o.venues))
	var wg sync.WaitGroup

	for _, venue := range o.venues {
		wg.Add(1)
		go func(venue string) {
			defer wg.Done()
			out, err := o.quoter.Quote(ctx, venue, tokenIn, tokenOut, amountIn)
			if err != nil {
				log.Debug().
					Err(err).
					Str("venue", venue).
					Msg("Venue quote failed, skipping")
				return
			}
			results <- quote{venue: venue, out: out}
		}(venue)
	}

	wg.Wait()
	close(results)

	var best Route
	for q := range results {
		if q.out.GreaterThan(best.ExpectedOut) {
			best = Route{Venue: q.venue, ExpectedOut: q.out}
		}
	}

	if !best.Viable() {
		log.Warn().
			Str("token_in", tokenIn).
			Str("token_out", tokenOut).
			Msg("🚫 No viable route from any venue")
		return Route{}
	}

	log.Debug().
		Str("venue", best.Venue).
		Str("expected_out", best.ExpectedOut.String()).
		Int("venues_tried", len(o.venues)).
		Msg("🗺️ Route selected")

	return best
}
