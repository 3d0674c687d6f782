// Package llm 提供统一的 Embedding 供应商抽象层。
//
// 具体供应商（openai、ollama）在各自包的 init 中注册工厂，调用方只依赖
// EmbeddingProvider 接口，通过名称在启动时选择后端。
package llm

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// EmbeddingProvider 定义 Embedding 供应商接口。
type EmbeddingProvider interface {
	// Embed 为多个文本生成向量嵌入，结果与输入一一对应。
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedSingle 为单个文本生成向量嵌入。
	EmbedSingle(ctx context.Context, text string) ([]float32, error)

	// Name 返回供应商名称。
	Name() string
}

// EmbeddingProviderFactory Embedding 供应商工厂函数类型。
type EmbeddingProviderFactory func(config map[string]any) (EmbeddingProvider, error)

var registry = &providerRegistry{
	embeddingProviders: make(map[string]EmbeddingProviderFactory),
}

type providerRegistry struct {
	mu                 sync.RWMutex
	embeddingProviders map[string]EmbeddingProviderFactory
}

// RegisterEmbeddingProvider 注册 Embedding 供应商工厂。重复注册时后者覆盖前者。
func RegisterEmbeddingProvider(name string, factory EmbeddingProviderFactory) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.embeddingProviders[name] = factory
}

// NewEmbeddingProvider 根据名称创建 Embedding 供应商实例。
// 未注册的名称返回 ErrUnsupportedProvider。
func NewEmbeddingProvider(name string, config map[string]any) (EmbeddingProvider, error) {
	registry.mu.RLock()
	factory, ok := registry.embeddingProviders[name]
	registry.mu.RUnlock()

	if !ok {
		return nil, errors.ErrUnsupportedProvider.WithMessagef("unknown embedding provider: %s", name)
	}

	provider, err := factory(config)
	if err != nil {
		return nil, errors.Wrap(errors.ErrVectorInvalidConfig, err)
	}
	return provider, nil
}

// ListEmbeddingProviders 列出所有已注册的 Embedding 供应商名称（已排序）。
func ListEmbeddingProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.embeddingProviders))
	for name := range registry.embeddingProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
