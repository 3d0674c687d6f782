package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/internal/pkg/vector/splitter"
	"github.com/kart-io/vecstore/internal/vectorindex/metrics"
	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/infra/tracing"
	"github.com/kart-io/vecstore/pkg/llm"
	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// QueryResult 是一条过滤后的检索结果。
type QueryResult struct {
	ID       string         `json:"id"`
	Chunk    string         `json:"chunk"`
	Metadata store.Metadata `json:"metadata"`
	Score    float32        `json:"score"`
}

// DeleteResult 是删除操作的结果数据。
type DeleteResult struct {
	Deleted int64 `json:"deleted"`
}

// Client 向量索引客户端。在进程启动时创建一次并注入调用方，可并发使用。
type Client struct {
	cfg      *Config
	backend  store.Backend
	embedder llm.EmbeddingProvider
	splitter *splitter.Splitter
	metrics  *metrics.VectorMetrics

	orchestrator *Orchestrator

	initMu sync.Mutex
	ready  atomic.Bool
}

// ClientOption 配置客户端。
type ClientOption func(*Client)

// WithMetrics 设置指标收集器。
func WithMetrics(m *metrics.VectorMetrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient 创建向量索引客户端。索引在首次操作或显式调用 Initialize 时初始化。
func NewClient(cfg *Config, backend store.Backend, embedder llm.EmbeddingProvider, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil || embedder == nil {
		return nil, errors.ErrVectorInvalidConfig.WithMessage("backend and embedder are required")
	}

	s, err := splitter.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		backend:  backend,
		embedder: embedder,
		splitter: s,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.orchestrator = newOrchestrator(c)
	return c, nil
}

// Config 返回客户端配置。
func (c *Client) Config() *Config {
	return c.cfg
}

// Backend 返回底层后端。
func (c *Client) Backend() store.Backend {
	return c.backend
}

// Ready 报告索引是否已初始化。
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// Initialize 确保索引存在且可用：不存在时创建，然后轮询直到就绪。
// 并发调用至多触发一次创建；失败后可重试。
// 等待超时返回 *store.IndexNotReadyError。
func (c *Client) Initialize(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.ready.Load() {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "vectorindex.Initialize",
		tracing.String(tracing.AttrIndexName, c.cfg.IndexName),
		tracing.String(tracing.AttrProvider, c.backend.Name()),
	)
	defer span.End()

	start := time.Now()
	err := c.initialize(ctx)
	c.metrics.ObserveOperation(metrics.OpInitialize, start, err)
	if err != nil {
		tracing.RecordError(ctx, err)
		logger.Errorw("vector index initialization failed",
			"index", c.cfg.IndexName,
			"provider", c.backend.Name(),
			"error", err.Error(),
		)
		return err
	}

	c.ready.Store(true)
	tracing.SetSpanOK(ctx)
	logger.Infow("vector index ready",
		"index", c.cfg.IndexName,
		"provider", c.backend.Name(),
		"duration", time.Since(start).String(),
	)
	return nil
}

func (c *Client) initialize(ctx context.Context) error {
	state, err := c.backend.DescribeIndex(ctx)
	if err != nil {
		return classify(err, errors.ErrIndexNetwork)
	}

	switch state {
	case store.IndexReady:
		return nil
	case store.IndexAbsent:
		logger.Infow("creating vector index",
			"index", c.cfg.IndexName,
			"dimension", c.cfg.Dimension,
			"provider", c.backend.Name(),
		)
		c.metrics.RecordIndexCreate()
		if err := c.backend.CreateIndex(ctx); err != nil {
			return classify(err, errors.ErrIndexCreateFailed)
		}
	}
	return c.waitReady(ctx)
}

// waitReady 按固定间隔轮询索引状态，超过 ReadyTimeout 或 ReadyMaxAttempts 后放弃。
func (c *Client) waitReady(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(c.cfg.ReadyPollInterval)
	defer ticker.Stop()

	var (
		attempts int
		state    = store.IndexCreating
		lastErr  error
	)
	for {
		select {
		case <-ctx.Done():
			return &store.IndexNotReadyError{
				Index:    c.cfg.IndexName,
				State:    state,
				Attempts: attempts,
				Waited:   time.Since(start),
				Cause:    ctx.Err(),
			}
		case <-ticker.C:
		}

		attempts++
		state, lastErr = c.backend.DescribeIndex(ctx)
		if lastErr == nil && state == store.IndexReady {
			return nil
		}
		if lastErr != nil {
			logger.Warnw("failed to describe vector index", "index", c.cfg.IndexName, "attempt", attempts, "error", lastErr.Error())
		} else {
			logger.Debugw("waiting for vector index", "index", c.cfg.IndexName, "state", state.String(), "attempt", attempts)
		}

		waited := time.Since(start)
		if waited >= c.cfg.ReadyTimeout || (c.cfg.ReadyMaxAttempts > 0 && attempts >= c.cfg.ReadyMaxAttempts) {
			return &store.IndexNotReadyError{
				Index:    c.cfg.IndexName,
				State:    state,
				Attempts: attempts,
				Waited:   waited,
				Cause:    lastErr,
			}
		}
	}
}

type queryOptions struct {
	topK     int
	minScore float64
}

// QueryOption 配置单次查询。
type QueryOption func(*queryOptions)

// WithTopK 设置返回条数。
func WithTopK(k int) QueryOption {
	return func(o *queryOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithMinScore 设置分数阈值，分数不高于该值的命中被丢弃。
func WithMinScore(score float64) QueryOption {
	return func(o *queryOptions) {
		o.minScore = score
	}
}

// Query 在配置的命名空间内检索与 text 相似的记录。
// 结果保持后端的相似度降序。无匹配时返回空切片。错误均为 *errors.Errno。
func (c *Client) Query(ctx context.Context, filter store.Filter, text string, opts ...QueryOption) (results []*QueryResult, err error) {
	o := &queryOptions{topK: c.cfg.TopK, minScore: c.cfg.MinScore}
	for _, opt := range opts {
		opt(o)
	}

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "vectorindex.Query",
		tracing.String(tracing.AttrIndexName, c.cfg.IndexName),
		tracing.String(tracing.AttrNamespace, c.cfg.Namespace),
		tracing.Int(tracing.AttrTopK, o.topK),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("vector query panicked", "panic", fmt.Sprint(r))
			results, err = nil, errors.ErrInternal.WithCause(fmt.Errorf("panic in query: %v", r))
		}
		c.metrics.ObserveOperation(metrics.OpQuery, start, err)
		if err != nil {
			tracing.RecordError(ctx, err)
		} else {
			tracing.SetSpanOK(ctx)
		}
		span.End()
	}()

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.ErrInvalidInput.WithMessage("query text is empty")
	}
	if err := c.Initialize(ctx); err != nil {
		return nil, classify(err, errors.ErrIndexNotReady)
	}

	vector, err := c.embedder.EmbedSingle(ctx, text)
	if err != nil {
		return nil, classify(err, errors.ErrEmbeddingFailed)
	}
	c.metrics.RecordEmbedding(1)

	matches, err := c.backend.Query(ctx, &store.QueryRequest{
		Namespace: c.cfg.Namespace,
		Vector:    vector,
		TopK:      o.topK,
		Filter:    filter,
	})
	if err != nil {
		return nil, classify(err, errors.ErrQueryFailed)
	}

	results = make([]*QueryResult, 0, len(matches))
	for _, m := range matches {
		if float64(m.Score) <= o.minScore {
			continue
		}
		results = append(results, &QueryResult{
			ID:       m.ID,
			Chunk:    m.Metadata.String(store.MetadataChunk),
			Metadata: m.Metadata,
			Score:    m.Score,
		})
	}
	c.metrics.RecordQueryMatches(len(results))

	logger.Debugw("vector query finished",
		"namespace", c.cfg.Namespace,
		"top_k", o.topK,
		"matches", len(matches),
		"returned", len(results),
	)
	return results, nil
}

// Upsert 切分、嵌入并写入一段文本。相同输入重复调用产生相同记录 ID。
func (c *Client) Upsert(ctx context.Context, metadata store.Metadata, text string) *Response {
	return c.BatchUpsert(ctx, []Entry{{Text: text, Metadata: metadata}}, nil)
}

// BatchUpsert 批量写入。strategy 为 nil 时使用 BoundedConcurrencyUpsert。
func (c *Client) BatchUpsert(ctx context.Context, entries []Entry, strategy UpsertStrategy) (resp *Response) {
	defer recoverResponse("batch_upsert", &resp)

	if err := c.Initialize(ctx); err != nil {
		return fail(classify(err, errors.ErrIndexNotReady), nil)
	}
	if strategy == nil {
		strategy = c.DefaultStrategy()
	}
	return c.orchestrator.Upsert(ctx, entries, strategy)
}

// DefaultStrategy 返回按配置构造的有界并发策略。
func (c *Client) DefaultStrategy() UpsertStrategy {
	return BoundedConcurrencyUpsert{BatchSize: c.cfg.UpsertBatchSize, Concurrency: c.cfg.UpsertConcurrency}
}

// DeleteByFilter 删除命名空间内匹配 filter 的记录。filter 不能为空。
func (c *Client) DeleteByFilter(ctx context.Context, filter store.Filter) (resp *Response) {
	defer recoverResponse("delete_by_filter", &resp)

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "vectorindex.DeleteByFilter",
		tracing.String(tracing.AttrIndexName, c.cfg.IndexName),
		tracing.String(tracing.AttrNamespace, c.cfg.Namespace),
	)
	defer span.End()

	deleted, err := c.deleteByFilter(ctx, filter)
	c.metrics.ObserveOperation(metrics.OpDelete, start, err)
	if err != nil {
		tracing.RecordError(ctx, err)
		logger.Warnw("vector delete failed", append([]any{"namespace", c.cfg.Namespace}, errors.FromError(err).LogFields()...)...)
		return fail(err, nil)
	}

	tracing.SetSpanOK(ctx)
	logger.Infow("vector records deleted", "namespace", c.cfg.Namespace, "deleted", deleted)
	return succeed(&DeleteResult{Deleted: deleted})
}

func (c *Client) deleteByFilter(ctx context.Context, filter store.Filter) (int64, error) {
	if len(filter) == 0 {
		return 0, errors.ErrInvalidFilter.WithMessage("delete filter must not be empty")
	}
	if err := filter.Validate(); err != nil {
		return 0, err
	}
	if err := c.Initialize(ctx); err != nil {
		return 0, classify(err, errors.ErrIndexNotReady)
	}

	deleted, err := c.backend.DeleteByFilter(ctx, c.cfg.Namespace, filter)
	if err != nil {
		return 0, classify(err, errors.ErrDeleteFailed)
	}
	return deleted, nil
}

// DeleteByAccountIDs 删除 account_id 属于 ids 的记录。
func (c *Client) DeleteByAccountIDs(ctx context.Context, ids []string) *Response {
	if len(ids) == 0 {
		return fail(errors.ErrInvalidInput.WithMessage("account ids must not be empty"), nil)
	}
	return c.DeleteByFilter(ctx, store.Filter{MetadataAccountID: ids})
}

// FetchRecordsByIDs 按 ID 直接读取记录，Data 为 []*store.Record。
func (c *Client) FetchRecordsByIDs(ctx context.Context, ids []string) (resp *Response) {
	defer recoverResponse("fetch", &resp)

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "vectorindex.Fetch",
		tracing.String(tracing.AttrIndexName, c.cfg.IndexName),
		tracing.String(tracing.AttrNamespace, c.cfg.Namespace),
		tracing.Int(tracing.AttrCount, len(ids)),
	)
	defer span.End()

	records, err := c.fetch(ctx, ids)
	c.metrics.ObserveOperation(metrics.OpFetch, start, err)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fail(err, nil)
	}
	tracing.SetSpanOK(ctx)
	return succeed(records)
}

func (c *Client) fetch(ctx context.Context, ids []string) ([]*store.Record, error) {
	if len(ids) == 0 {
		return []*store.Record{}, nil
	}
	if err := c.Initialize(ctx); err != nil {
		return nil, classify(err, errors.ErrIndexNotReady)
	}
	records, err := c.backend.Fetch(ctx, c.cfg.Namespace, ids)
	if err != nil {
		return nil, classify(err, errors.ErrFetchFailed)
	}
	return records, nil
}

// Count 返回命名空间内的记录数。
func (c *Client) Count(ctx context.Context) (int64, error) {
	if err := c.Initialize(ctx); err != nil {
		return 0, classify(err, errors.ErrIndexNotReady)
	}
	n, err := c.backend.Count(ctx, c.cfg.Namespace)
	if err != nil {
		return 0, classify(err, errors.ErrQueryFailed)
	}
	return n, nil
}

// Close 关闭后端。
func (c *Client) Close() error {
	return c.backend.Close()
}
