package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vecstore/pkg/utils/errors"
	"github.com/kart-io/vecstore/pkg/utils/httpclient"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%04d", i)
	}
	return out
}

func TestBatchEmbedderSplitsAndPreservesOrder(t *testing.T) {
	mock := &mockProvider{name: "mock"}
	embedder := NewBatchEmbedder(mock, 4)

	input := texts(10)
	vectors, err := embedder.Embed(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []int{4, 4, 2}, mock.batchSizes())
	require.Len(t, vectors, len(input))
	for i, text := range input {
		assert.Equal(t, vectorFor(text), vectors[i], "index %d", i)
	}
}

func TestBatchEmbedderDefaultCap(t *testing.T) {
	mock := &mockProvider{name: "mock"}
	embedder := NewBatchEmbedder(mock, 0)
	assert.Equal(t, DefaultMaxEmbeddingBatch, embedder.MaxBatch())

	_, err := embedder.Embed(context.Background(), texts(DefaultMaxEmbeddingBatch+1))
	require.NoError(t, err)
	assert.Equal(t, []int{DefaultMaxEmbeddingBatch, 1}, mock.batchSizes())
}

func TestBatchEmbedderSingleMatchesBatch(t *testing.T) {
	embedder := NewBatchEmbedder(&mockProvider{name: "mock"}, 3)

	for _, text := range []string{"hello", "向量检索", ""} {
		single, err := embedder.EmbedSingle(context.Background(), text)
		require.NoError(t, err)

		batch, err := embedder.Embed(context.Background(), []string{text})
		require.NoError(t, err)
		assert.Equal(t, batch[0], single)
	}
}

func TestBatchEmbedderEmptyInput(t *testing.T) {
	mock := &mockProvider{name: "mock"}
	vectors, err := NewBatchEmbedder(mock, 3).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Empty(t, mock.batchSizes())
}

func TestBatchEmbedderAbortsOnSubBatchFailure(t *testing.T) {
	mock := &mockProvider{name: "mock", failAt: 2}
	vectors, err := NewBatchEmbedder(mock, 2).Embed(context.Background(), texts(6))

	require.Error(t, err)
	assert.Nil(t, vectors)
	assert.True(t, stderrors.Is(err, errors.ErrEmbeddingFailed))
	// 第二批失败后不再继续
	assert.Equal(t, []int{2, 2}, mock.batchSizes())
}

func TestBatchEmbedderRejectsShortResult(t *testing.T) {
	mock := &mockProvider{name: "mock", short: true}
	_, err := NewBatchEmbedder(mock, 8).Embed(context.Background(), texts(3))

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrEmbeddingFailed))
}

func TestBatchEmbedderRateLimitIsTyped(t *testing.T) {
	mock := &mockProvider{
		name:    "mock",
		failAt:  1,
		failErr: &httpclient.StatusError{StatusCode: http.StatusTooManyRequests},
	}
	_, err := NewBatchEmbedder(mock, 8).Embed(context.Background(), texts(3))

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrEmbeddingRateLimited))
	assert.True(t, errors.FromError(err).Retryable())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *errors.Errno
	}{
		{name: "限流", err: &httpclient.StatusError{StatusCode: 429}, want: errors.ErrEmbeddingRateLimited},
		{name: "服务端错误", err: &httpclient.StatusError{StatusCode: 503}, want: errors.ErrEmbeddingUnavailable},
		{name: "请求错误", err: &httpclient.StatusError{StatusCode: 400}, want: errors.ErrEmbeddingFailed},
		{name: "超时", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: errors.ErrTimeout},
		{name: "取消", err: context.Canceled, want: errors.ErrCanceled},
		{name: "已有错误码", err: errors.ErrInvalidInput, want: errors.ErrInvalidInput},
		{name: "其他", err: fmt.Errorf("boom"), want: errors.ErrEmbeddingFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want.Code, ClassifyError(tt.err).Code)
		})
	}
	assert.Nil(t, ClassifyError(nil))
}

type modelProvider struct {
	mockProvider
	model string
}

func (p *modelProvider) Model() string { return p.model }

func TestBatchEmbedderModel(t *testing.T) {
	assert.Equal(t, "bge-m3", NewBatchEmbedder(&modelProvider{mockProvider: mockProvider{name: "mock"}, model: "bge-m3"}, 2).Model())
	assert.Empty(t, NewBatchEmbedder(&mockProvider{name: "mock"}, 2).Model())
}
