package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/migrator/internal/retry"
	"github.com/surrealdb/migrator/pkg/logger"
)

func TestBackoff(t *testing.T) {
	t.Run("without jitter", func(t *testing.T) {
		b := &retry.Backoff{
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		}

		want := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			time.Second,
			time.Second,
		}
		for attempt, w := range want {
			d, ok := b.NextDelay(attempt, nil)
			assert.True(t, ok)
			assert.Equal(t, w, d, "attempt %d", attempt)
		}
	})

	t.Run("with jitter", func(t *testing.T) {
		b := retry.NewBackoff()
		d, ok := b.NextDelay(1, nil)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	})

	t.Run("max attempts", func(t *testing.T) {
		b := &retry.Backoff{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2, MaxAttempts: 2}
		_, ok := b.NextDelay(1, nil)
		assert.True(t, ok)
		_, ok = b.NextDelay(2, nil)
		assert.False(t, ok)
	})
}

func TestFixed(t *testing.T) {
	f := retry.Fixed{Delay: 50 * time.Millisecond, MaxAttempts: 1}
	d, ok := f.NextDelay(0, nil)
	assert.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, d)
	_, ok = f.NextDelay(1, nil)
	assert.False(t, ok)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	clk := testclock.NewClock(time.Now())
	calls := 0
	done := make(chan error, 1)

	go func() {
		done <- retry.Do(context.Background(), clk, retry.Fixed{Delay: time.Second}, logger.Nop(), "connect", func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
	}()

	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not finish")
	}
}

type giveUp struct{}

func (giveUp) NextDelay(int, error) (time.Duration, bool) {
	return 0, false
}

func TestDoGivesUp(t *testing.T) {
	refused := errors.New("connection refused")
	err := retry.Do(context.Background(), testclock.NewClock(time.Now()), giveUp{}, logger.Nop(), "connect", func(context.Context) error {
		return refused
	})
	require.ErrorIs(t, err, refused)
	assert.Contains(t, err.Error(), "giving up after 1 attempts")
}

func TestDoStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.Do(ctx, testclock.NewClock(time.Now()), retry.Fixed{Delay: time.Hour}, logger.Nop(), "connect", func(context.Context) error {
		return errors.New("connection refused")
	})
	require.ErrorIs(t, err, context.Canceled)
}
