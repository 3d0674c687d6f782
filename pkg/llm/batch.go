package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// DefaultMaxEmbeddingBatch 单次外部调用允许的最大文本数。
const DefaultMaxEmbeddingBatch = 2048

// BatchEmbedder 将任意长度的输入拆分为不超过 maxBatch 的子批次依次调用底层供应商，
// 并按原顺序拼接结果。任一子批次失败则整体失败，不返回部分结果。
// 不做重试，重试策略由调用方决定。
type BatchEmbedder struct {
	provider EmbeddingProvider
	maxBatch int
}

// NewBatchEmbedder 创建分批 Embedding 包装器。maxBatch <= 0 时使用 DefaultMaxEmbeddingBatch。
func NewBatchEmbedder(provider EmbeddingProvider, maxBatch int) *BatchEmbedder {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxEmbeddingBatch
	}
	return &BatchEmbedder{provider: provider, maxBatch: maxBatch}
}

// Embed 为多个文本生成向量嵌入，result[i] 对应 texts[i]。
func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	result := make([][]float32, 0, len(texts))

	for offset := 0; offset < len(texts); offset += b.maxBatch {
		end := min(offset+b.maxBatch, len(texts))

		vectors, err := b.provider.Embed(ctx, texts[offset:end])
		if err != nil {
			logger.Warnw("embedding sub-batch failed",
				"provider", b.provider.Name(),
				"offset", offset,
				"size", end-offset,
				"total", len(texts),
				"error", err.Error(),
			)
			return nil, ClassifyError(err)
		}
		if len(vectors) != end-offset {
			return nil, errors.ErrEmbeddingFailed.WithCause(fmt.Errorf(
				"provider %s returned %d embeddings for %d texts", b.provider.Name(), len(vectors), end-offset))
		}
		for i, v := range vectors {
			if len(v) == 0 {
				return nil, errors.ErrEmbeddingFailed.WithCause(fmt.Errorf(
					"provider %s returned an empty embedding at index %d", b.provider.Name(), offset+i))
			}
		}

		result = append(result, vectors...)
	}

	logger.Debugw("embedded texts",
		"provider", b.provider.Name(),
		"count", len(texts),
		"sub_batches", (len(texts)+b.maxBatch-1)/b.maxBatch,
		"duration", time.Since(start).String(),
	)
	return result, nil
}

// EmbedSingle 为单个文本生成向量嵌入，与 Embed([]string{text})[0] 一致。
func (b *BatchEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Name 返回底层供应商名称。
func (b *BatchEmbedder) Name() string {
	return b.provider.Name()
}

// Model 返回底层供应商的模型名称，供应商未报告时为空。
func (b *BatchEmbedder) Model() string {
	if m, ok := b.provider.(modelNamer); ok {
		return m.Model()
	}
	return ""
}

// MaxBatch 返回子批次上限。
func (b *BatchEmbedder) MaxBatch() int {
	return b.maxBatch
}

var _ EmbeddingProvider = (*BatchEmbedder)(nil)
