package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kart-io/vecstore/internal/pkg/vector/textutil"
)

func init() {
	Register(ProviderMemory, func(deps *Deps) (Backend, error) {
		return NewMemory(deps.IndexName, deps.Dimension), nil
	})
}

// Memory 是进程内暴力检索后端，用于测试与本地开发。
type Memory struct {
	name       string
	dimension  int
	readyAfter int

	mu          sync.RWMutex
	state       IndexState
	polls       int
	createCalls int
	namespaces  map[string]map[string]*Record
}

var _ Backend = (*Memory)(nil)

// MemoryOption 配置内存后端。
type MemoryOption func(*Memory)

// WithReadyAfter 使索引在创建后需要 n 次 DescribeIndex 才变为就绪，
// 用于模拟异步建索引。
func WithReadyAfter(n int) MemoryOption {
	return func(m *Memory) {
		m.readyAfter = n
	}
}

// NewMemory 创建内存后端。
func NewMemory(indexName string, dimension int, opts ...MemoryOption) *Memory {
	m := &Memory{
		name:       indexName,
		dimension:  dimension,
		namespaces: make(map[string]map[string]*Record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name 返回后端标识。
func (m *Memory) Name() string {
	return ProviderMemory
}

// CreateCalls 返回 CreateIndex 实际创建索引的次数。
func (m *Memory) CreateCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.createCalls
}

// DescribeIndex 返回索引状态。
func (m *Memory) DescribeIndex(context.Context) (IndexState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == IndexCreating {
		m.polls++
		if m.polls >= m.readyAfter {
			m.state = IndexReady
		}
	}
	return m.state, nil
}

// CreateIndex 创建索引。
func (m *Memory) CreateIndex(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != IndexAbsent {
		return nil
	}
	m.createCalls++
	m.state = IndexCreating
	if m.readyAfter <= 0 {
		m.state = IndexReady
	}
	return nil
}

// Upsert 写入记录，向量与元数据均被拷贝。
func (m *Memory) Upsert(_ context.Context, namespace string, records []*Record) error {
	for _, r := range records {
		if len(r.Values) != m.dimension {
			return fmt.Errorf("index %s: record %s has dimension %d, want %d", m.name, r.ID, len(r.Values), m.dimension)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]*Record)
		m.namespaces[namespace] = ns
	}
	for _, r := range records {
		ns[r.ID] = copyRecord(r)
	}
	return nil
}

// Query 计算命名空间内全部匹配记录的余弦相似度并返回前 TopK 条。
func (m *Memory) Query(_ context.Context, req *QueryRequest) ([]*Match, error) {
	if len(req.Vector) != m.dimension {
		return nil, fmt.Errorf("index %s: query vector has dimension %d, want %d", m.name, len(req.Vector), m.dimension)
	}
	conds, err := req.Filter.conditions()
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Match, 0)
	for _, r := range m.namespaces[req.Namespace] {
		if !matches(conds, r.Metadata) {
			continue
		}
		out = append(out, &Match{
			ID:       r.ID,
			Score:    float32(textutil.CosineSimilarity(req.Vector, r.Values)),
			Metadata: r.Metadata.Clone(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if req.TopK > 0 && len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

// Fetch 按 ID 读取记录，结果顺序与 ids 一致。
func (m *Memory) Fetch(_ context.Context, namespace string, ids []string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Record, 0, len(ids))
	ns := m.namespaces[namespace]
	for _, id := range ids {
		if r, ok := ns[id]; ok {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

// DeleteByFilter 删除匹配的记录。
func (m *Memory) DeleteByFilter(_ context.Context, namespace string, filter Filter) (int64, error) {
	conds, err := filter.conditions()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	ns := m.namespaces[namespace]
	for id, r := range ns {
		if matches(conds, r.Metadata) {
			delete(ns, id)
			deleted++
		}
	}
	return deleted, nil
}

// Count 返回命名空间内的记录数。
func (m *Memory) Count(_ context.Context, namespace string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.namespaces[namespace])), nil
}

// Close 是空操作。
func (m *Memory) Close() error {
	return nil
}

func copyRecord(r *Record) *Record {
	values := make([]float32, len(r.Values))
	copy(values, r.Values)
	return &Record{ID: r.ID, Values: values, Metadata: r.Metadata.Clone()}
}
