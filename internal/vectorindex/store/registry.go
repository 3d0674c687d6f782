package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/vecstore/pkg/component/milvus"
	"github.com/kart-io/vecstore/pkg/component/opensearch"
	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// 内置后端名称。
const (
	ProviderMilvus     = "milvus"
	ProviderOpenSearch = "opensearch"
	ProviderMemory     = "memory"
)

// Deps 是构造后端所需的依赖。只需填充所选后端用到的客户端。
type Deps struct {
	// IndexName 索引或集合名称。
	IndexName string
	// Dimension 向量维度。
	Dimension int

	Milvus     *milvus.Client
	OpenSearch *opensearch.Client
}

// Factory 根据依赖创建后端。
type Factory func(deps *Deps) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册后端工厂，重复注册会覆盖旧值。
func Register(provider string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(provider)] = factory
}

// New 创建指定名称的后端。
func New(provider string, deps *Deps) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(strings.TrimSpace(provider))]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.ErrUnsupportedProvider.WithMessagef("unsupported vector provider %q, available: %v", provider, Providers())
	}
	if deps == nil || deps.IndexName == "" || deps.Dimension <= 0 {
		return nil, errors.ErrVectorInvalidConfig.WithMessage("index name and dimension are required")
	}
	return factory(deps)
}

// Providers 返回已注册的后端名称（已排序）。
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
