package chain

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Retry runs fn up to attempts times with exponential backoff.
// Every external call in the core goes through this so timeout and
// retry behavior is uniform: base, 2*base, 4*base between attempts.
func Retry(ctx context.Context, attempts int, base time.Duration, op string, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		backoff := base * time.Duration(1<<i)
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", i+1).
			Dur("backoff", backoff).
			Msg("⚠️ Call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
