package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vecstore/pkg/utils/httpclient"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		if calls < 3 {
			return &httpclient.StatusError{StatusCode: 503}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	cause := &httpclient.StatusError{StatusCode: 502}
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return cause
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid model")
	err := Retry(context.Background(), fastRetry(), func() error {
		calls++
		return permanent
	})
	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	cfg := fastRetry()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, cfg, func() error {
		calls++
		cancel()
		return &httpclient.StatusError{StatusCode: 500}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	calls = 0
	err = Retry(ctx, cfg, func() error { calls++; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestRetryCustomPredicate(t *testing.T) {
	cfg := fastRetry()
	cfg.Retryable = func(error) bool { return true }

	calls := 0
	_ = Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("boom")
	})
	assert.Equal(t, cfg.MaxAttempts, calls)
}

func TestBackoff(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	plain := errors.New("x")

	assert.Equal(t, 100*time.Millisecond, cfg.backoff(1, plain))
	assert.Equal(t, 200*time.Millisecond, cfg.backoff(2, plain))
	assert.Equal(t, 400*time.Millisecond, cfg.backoff(3, plain))
	assert.Equal(t, time.Second, cfg.backoff(10, plain))

	limited := &httpclient.StatusError{StatusCode: 429, RetryAfter: 700 * time.Millisecond}
	assert.Equal(t, 700*time.Millisecond, cfg.backoff(1, limited))
	limited.RetryAfter = time.Minute
	assert.Equal(t, time.Second, cfg.backoff(1, limited))
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.NotNil(t, cfg.Retryable)
}
