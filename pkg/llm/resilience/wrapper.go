package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/pkg/llm"
	errs "github.com/kart-io/vecstore/pkg/utils/errors"
)

// ResilientEmbeddingProvider 在重试循环内经由熔断器调用底层供应商。
// 返回的错误已按错误码归类。
type ResilientEmbeddingProvider struct {
	provider llm.EmbeddingProvider
	retry    *RetryConfig
	breaker  *Breaker
}

// NewResilientEmbeddingProvider 创建带重试与熔断的 Embedding Provider，配置为空时使用默认值。
func NewResilientEmbeddingProvider(provider llm.EmbeddingProvider, retry *RetryConfig, breaker *BreakerConfig) *ResilientEmbeddingProvider {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &ResilientEmbeddingProvider{
		provider: provider,
		retry:    retry,
		breaker:  NewBreaker(breaker),
	}
}

// Embed 为多个文本生成向量嵌入。
func (r *ResilientEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := Retry(ctx, r.retry, func() error {
		return r.breaker.Do(func() error {
			var err error
			vectors, err = r.provider.Embed(ctx, texts)
			return err
		}, IsRetryableError)
	})
	if err != nil {
		return nil, classify(err)
	}
	return vectors, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (r *ResilientEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Name 返回被包装供应商的名称。
func (r *ResilientEmbeddingProvider) Name() string {
	return r.provider.Name()
}

// Model 透传被包装供应商的模型名称。
func (r *ResilientEmbeddingProvider) Model() string {
	if m, ok := r.provider.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// Breaker 返回熔断器，供健康检查读取状态。
func (r *ResilientEmbeddingProvider) Breaker() *Breaker {
	return r.breaker
}

func classify(err error) error {
	if errors.Is(err, ErrBreakerOpen) {
		return errs.ErrEmbeddingUnavailable.WithCause(err)
	}
	return llm.ClassifyError(err)
}

// IsRetryableError 判断错误是否可重试。
// 限流、5xx、网络与连接中断可重试；上下文取消、熔断打开和 4xx 不重试。
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrBreakerOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		logger.Debugw("connection error, retryable", "error", err.Error())
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		logger.Debugw("network error, retryable", "error", err.Error())
		return true
	}

	if llm.ClassifyError(err).Retryable() {
		logger.Debugw("transient provider error, retryable", "error", err.Error())
		return true
	}

	logger.Debugw("error not retryable", "error", err.Error())
	return false
}

var _ llm.EmbeddingProvider = (*ResilientEmbeddingProvider)(nil)
