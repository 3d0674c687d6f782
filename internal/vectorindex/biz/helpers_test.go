package biz

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kart-io/vecstore/internal/vectorindex/metrics"
	"github.com/kart-io/vecstore/internal/vectorindex/store"
)

const testDimension = 8

// fakeEmbedder 确定性嵌入：优先使用 vectors 中的固定向量，否则由文本哈希推导。
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	fail    error
	panics  bool
	calls   int
}

func (f *fakeEmbedder) Name() string {
	return "fake"
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	fail, panics := f.fail, f.panics
	f.mu.Unlock()

	if panics {
		panic("embedder exploded")
	}
	if fail != nil {
		return nil, fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectorFor(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	v, err := f.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEmbedder) vectorFor(text string) []float32 {
	f.mu.Lock()
	v, ok := f.vectors[text]
	f.mu.Unlock()
	if ok {
		return v
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	out := make([]float32, testDimension)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(seed>>40)/float32(1<<24) - 0.5
	}
	return out
}

// trackingBackend 包装内存后端，统计调用次数并可注入写入失败。
type trackingBackend struct {
	*store.Memory

	describeCalls atomic.Int32
	createCalls   atomic.Int32
	upsertCalls   atomic.Int32

	// failChunk 非空时，包含该块文本的批次写入失败。
	failChunk string
}

func (b *trackingBackend) DescribeIndex(ctx context.Context) (store.IndexState, error) {
	b.describeCalls.Add(1)
	return b.Memory.DescribeIndex(ctx)
}

func (b *trackingBackend) CreateIndex(ctx context.Context) error {
	b.createCalls.Add(1)
	// 放大并发初始化的竞争窗口
	time.Sleep(5 * time.Millisecond)
	return b.Memory.CreateIndex(ctx)
}

func (b *trackingBackend) Upsert(ctx context.Context, namespace string, records []*store.Record) error {
	b.upsertCalls.Add(1)
	if b.failChunk != "" {
		for _, r := range records {
			if strings.Contains(r.Metadata.String(store.MetadataChunk), b.failChunk) {
				return fmt.Errorf("backend rejected record %s", r.ID)
			}
		}
	}
	return b.Memory.Upsert(ctx, namespace, records)
}

func newTrackingBackend(opts ...store.MemoryOption) *trackingBackend {
	return &trackingBackend{Memory: store.NewMemory("test_index", testDimension, opts...)}
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.IndexName = "test_index"
	cfg.Namespace = "tenant-a"
	cfg.Dimension = testDimension
	cfg.ChunkSize = 100
	cfg.ChunkOverlap = 10
	cfg.MinScore = -1
	cfg.ReadyPollInterval = time.Millisecond
	cfg.ReadyTimeout = time.Second
	return cfg
}

type testEnv struct {
	client   *Client
	backend  *trackingBackend
	embedder *fakeEmbedder
	metrics  *metrics.VectorMetrics
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...store.MemoryOption) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	env := &testEnv{
		backend:  newTrackingBackend(opts...),
		embedder: &fakeEmbedder{vectors: map[string][]float32{}},
		metrics:  metrics.New(),
	}
	c, err := NewClient(cfg, env.backend, env.embedder, WithMetrics(env.metrics))
	require.NoError(t, err)
	env.client = c
	return env
}

func summaryOf(t *testing.T, resp *Response) *UpsertSummary {
	t.Helper()
	s, ok := resp.Data.(*UpsertSummary)
	require.True(t, ok, "response data is %T", resp.Data)
	return s
}
