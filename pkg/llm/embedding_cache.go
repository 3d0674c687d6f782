package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/vecstore/pkg/utils/errors"
	"github.com/kart-io/vecstore/pkg/utils/json"
)

// EmbeddingCacheConfig Embedding 缓存配置。
type EmbeddingCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// DefaultEmbeddingCacheConfig 返回默认的 Embedding 缓存配置。
func DefaultEmbeddingCacheConfig() *EmbeddingCacheConfig {
	return &EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       24 * time.Hour,
		KeyPrefix: "emb:",
	}
}

// CachedEmbeddingProvider 基于 Redis 的 Embedding 缓存包装器。
// 缓存键包含供应商名称，不同模型的向量不会互相命中。
// Redis 故障只记录日志，不影响向量生成。
type CachedEmbeddingProvider struct {
	provider EmbeddingProvider
	redis    goredis.UniversalClient
	config   *EmbeddingCacheConfig
}

// NewCachedEmbeddingProvider 创建带缓存的 Embedding Provider。
func NewCachedEmbeddingProvider(
	provider EmbeddingProvider,
	redis goredis.UniversalClient,
	config *EmbeddingCacheConfig,
) *CachedEmbeddingProvider {
	if config == nil {
		config = DefaultEmbeddingCacheConfig()
	}
	return &CachedEmbeddingProvider{
		provider: provider,
		redis:    redis,
		config:   config,
	}
}

// modelNamer 由能报告具体模型名称的供应商实现。
type modelNamer interface {
	Model() string
}

// cacheKey 基于供应商名称、模型与文本生成缓存键（SHA256）。
func (c *CachedEmbeddingProvider) cacheKey(text string) string {
	id := c.provider.Name()
	if m, ok := c.provider.(modelNamer); ok && m.Model() != "" {
		id += "/" + m.Model()
	}
	hash := sha256.Sum256([]byte(id + "|" + text))
	return c.config.KeyPrefix + hex.EncodeToString(hash[:])
}

func (c *CachedEmbeddingProvider) enabled() bool {
	return c.config.Enabled && c.redis != nil
}

// EmbedSingle 生成单个文本的 Embedding（带缓存）。
func (c *CachedEmbeddingProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// Embed 批量生成 Embedding（带缓存）。
// 一次 MGET 查询全部键，只对未命中的文本调用底层供应商，结果保持输入顺序。
func (c *CachedEmbeddingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.enabled() || len(texts) == 0 {
		return c.provider.Embed(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.cacheKey(text)
	}

	embeddings := make([][]float32, len(texts))
	var missIdx []int

	cached, err := c.redis.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warnw("redis mget error, falling back to provider", "error", err.Error())
		cached = make([]interface{}, len(texts))
	}

	for i, val := range cached {
		raw, ok := val.(string)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		var embedding []float32
		if err := json.Unmarshal([]byte(raw), &embedding); err != nil || len(embedding) == 0 {
			logger.Warnw("discarding corrupted cached embedding", "key", keys[i])
			_ = c.redis.Del(ctx, keys[i]).Err()
			missIdx = append(missIdx, i)
			continue
		}
		embeddings[i] = embedding
	}

	if len(missIdx) == 0 {
		logger.Debugw("all embeddings from cache", "total", len(texts))
		return embeddings, nil
	}

	missTexts := make([]string, len(missIdx))
	for i, idx := range missIdx {
		missTexts[i] = texts[idx]
	}

	logger.Debugw("embedding cache miss", "total", len(texts), "uncached", len(missTexts))
	fresh, err := c.provider.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, errors.ErrEmbeddingFailed.WithMessagef(
			"provider %s returned %d embeddings for %d texts", c.provider.Name(), len(fresh), len(missTexts))
	}

	pipe := c.redis.Pipeline()
	for i, idx := range missIdx {
		embeddings[idx] = fresh[i]

		data, err := json.Marshal(fresh[i])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[idx], data, c.config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warnw("failed to cache embeddings", "error", err.Error(), "count", len(missIdx))
	}

	return embeddings, nil
}

// Name 返回底层 provider 的名称。
func (c *CachedEmbeddingProvider) Name() string {
	return c.provider.Name()
}

// ClearCache 清除所有 Embedding 缓存。
func (c *CachedEmbeddingProvider) ClearCache(ctx context.Context) (int, error) {
	if !c.enabled() {
		return 0, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 0).Iterator()
	deleted := 0
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warnw("failed to delete cache key", "error", err.Error(), "key", iter.Val())
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}

	logger.Infow("cleared embedding cache", "deleted_count", deleted)
	return deleted, nil
}

var _ EmbeddingProvider = (*CachedEmbeddingProvider)(nil)
