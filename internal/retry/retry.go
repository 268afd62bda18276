// Package retry retries store connection attempts with a pluggable delay
// strategy. Facade calls themselves are never retried.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/juju/clock"
	"github.com/surrealdb/migrator/pkg/logger"
)

// Strategy decides how long to wait before the next attempt.
type Strategy interface {
	// NextDelay is called after failed attempt number attempt (0-based).
	// It returns false to give up.
	NextDelay(attempt int, lastErr error) (time.Duration, bool)
}

// Backoff grows the delay exponentially, with optional jitter.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts bounds the number of retries; zero retries forever.
	MaxAttempts int
	// JitterFactor is the fraction of the delay added or removed at random.
	JitterFactor float64
}

// NewBackoff returns the strategy used for store connections.
func NewBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		Multiplier:   2,
		MaxAttempts:  8,
		JitterFactor: 0.2,
	}
}

func (b *Backoff) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
		return 0, false
	}

	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if b.JitterFactor > 0 {
		//nolint:gosec // jitter only
		delay += delay * b.JitterFactor * (2*rand.Float64() - 1)
		if delay < 0 {
			delay = float64(b.InitialDelay)
		}
	}
	return time.Duration(delay), true
}

// Fixed waits the same delay between attempts.
type Fixed struct {
	Delay       time.Duration
	MaxAttempts int
}

func (f Fixed) NextDelay(attempt int, _ error) (time.Duration, bool) {
	if f.MaxAttempts > 0 && attempt >= f.MaxAttempts {
		return 0, false
	}
	return f.Delay, true
}

// Do calls fn until it succeeds, the strategy gives up or ctx ends.
func Do(ctx context.Context, clk clock.Clock, s Strategy, log logger.Logger, what string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		delay, ok := s.NextDelay(attempt, err)
		if !ok {
			return fmt.Errorf("%s: giving up after %d attempts: %w", what, attempt+1, err)
		}
		log.Warn("attempt failed, retrying", "what", what, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-clk.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w (last error: %v)", what, context.Cause(ctx), err)
		}
	}
}
