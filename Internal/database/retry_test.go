package datafeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ReturnsLastError(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(2), func() error {
		calls++
		return errors.New("down")
	})
	assert.EqualError(t, err, "down")
	assert.Equal(t, 2, calls)
}

func TestRetryWithBackoff_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad symbol")
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(5), func() error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}
	err := RetryWithBackoff(ctx, cfg, func() error { return errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}
