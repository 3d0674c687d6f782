// Package resilience 为 Embedding 调用提供可选的重试与熔断。
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/kart-io/logger"
)

// ErrBreakerOpen 熔断器打开时直接返回，不调用供应商。
var ErrBreakerOpen = errors.New("embedding circuit breaker is open")

// BreakerConfig 熔断器配置。
type BreakerConfig struct {
	// Threshold 连续瞬时失败达到该次数后打开。
	Threshold int
	// Cooldown 打开后经过该时长允许一次探测调用。
	Cooldown time.Duration
}

// DefaultBreakerConfig 返回默认熔断器配置。
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
	}
}

// State 熔断器状态。
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker 按连续瞬时失败次数熔断。
// 只有 trips 判定为瞬时的失败计数；供应商明确拒绝（如 4xx）说明服务可达，按成功处理。
// 半开状态同一时刻只放行一个探测调用。
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker 创建熔断器，cfg 为空时使用默认配置。
func NewBreaker(cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	c := *cfg
	if c.Threshold <= 0 {
		c.Threshold = DefaultBreakerConfig().Threshold
	}
	return &Breaker{cfg: c, now: time.Now}
}

// Do 在熔断器允许时执行 fn，并按 trips 记录结果。
func (b *Breaker) Do(fn func() error, trips func(error) bool) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err != nil && trips(err))
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen
		}
		logger.Infow("embedding circuit breaker half-open")
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrBreakerOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if !failed {
		if b.state != StateClosed {
			logger.Infow("embedding circuit breaker closed")
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.Threshold {
		if b.state != StateOpen {
			logger.Warnw("embedding circuit breaker opened",
				"consecutive_failures", b.failures,
				"threshold", b.cfg.Threshold,
				"cooldown", b.cfg.Cooldown.String(),
			)
		}
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// State 返回当前状态。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats 熔断器快照。
type BreakerStats struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
}

// Stats 返回当前快照。
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:               b.state.String(),
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}
