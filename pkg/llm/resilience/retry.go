package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/pkg/utils/httpclient"
)

// RetryConfig 重试配置。
type RetryConfig struct {
	// MaxAttempts 最大尝试次数，包括首次调用。
	MaxAttempts int
	// InitialDelay 首次重试前的等待时间。
	InitialDelay time.Duration
	// MaxDelay 单次等待上限，同样约束服务端的 Retry-After。
	MaxDelay time.Duration
	// Multiplier 指数退避因子。
	Multiplier float64
	// Retryable 判断错误是否值得重试，为空时使用 IsRetryableError。
	Retryable func(error) bool
}

// DefaultRetryConfig 返回默认重试配置。
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Retryable:    IsRetryableError,
	}
}

// backoff 返回第 attempt 次失败后的等待时间。
func (c *RetryConfig) backoff(attempt int, err error) time.Duration {
	d := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= c.Multiplier
	}
	wait := time.Duration(d)

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > wait {
		wait = statusErr.RetryAfter
	}
	if c.MaxDelay > 0 && wait > c.MaxDelay {
		wait = c.MaxDelay
	}
	return wait
}

// Retry 执行 fn，遇到可重试错误时按退避等待后再次执行。
// ctx 结束时立即返回 ctx.Err()。
func Retry(ctx context.Context, cfg *RetryConfig, fn func() error) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryableError
	}
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		if attempt >= attempts {
			logger.Warnw("embedding retries exhausted", "attempts", attempt, "error", err.Error())
			return fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		wait := cfg.backoff(attempt, err)
		logger.Debugw("retrying embedding call",
			"attempt", attempt,
			"delay", wait.String(),
			"error", err.Error(),
		)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
