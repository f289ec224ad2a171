package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDelayProgression(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{10, 60 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, cfg.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestDelayClampsBelowOne(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1*time.Second, cfg.Delay(0))
	assert.Equal(t, 1*time.Second, cfg.Delay(-3))
}

func TestWithExponentialBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), testConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithExponentialBackoffRecoversAfterFailure(t *testing.T) {
	calls := 0
	err := WithExponentialBackoff(context.Background(), testConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoffExhaustsAttempts(t *testing.T) {
	lastErr := errors.New("still broken")
	calls := 0
	err := WithExponentialBackoff(context.Background(), testConfig(), func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return lastErr
	})

	assert.Equal(t, lastErr, err)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoffStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &Config{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
			calls++
			return errors.New("transient")
		})
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("WithExponentialBackoff did not return after context cancellation")
	}
}
