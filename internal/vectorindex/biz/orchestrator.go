package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/vecstore/internal/pkg/vector/textutil"
	"github.com/kart-io/vecstore/internal/vectorindex/metrics"
	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/infra/tracing"
	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// Entry 是一条待写入的文本及其元数据。
type Entry struct {
	Text     string         `json:"text"`
	Metadata store.Metadata `json:"metadata,omitempty"`
}

// UpsertSummary 是批量写入的结果数据。
type UpsertSummary struct {
	Entries       int      `json:"entries"`
	Chunks        int      `json:"chunks"`
	Records       int      `json:"records"`
	Batches       int      `json:"batches"`
	FailedBatches int      `json:"failed_batches"`
	Strategy      string   `json:"strategy"`
	IDs           []string `json:"ids"`
	Errors        []error  `json:"-"`
}

// Orchestrator 将多条文本切分、一次性嵌入并按策略分批写入。
type Orchestrator struct {
	client *Client
}

func newOrchestrator(c *Client) *Orchestrator {
	return &Orchestrator{client: c}
}

// pendingChunk 是展平后的块，保留对来源条目的引用。
type pendingChunk struct {
	entry   int
	content string
	patch   map[string]any
}

// Upsert 执行切分、展平、单次批量嵌入、组装记录和分批写入。
// 嵌入失败导致整体失败；写入批次失败被记录且不影响其他批次，
// 仅当没有批次失败时 Success 为 true。
func (o *Orchestrator) Upsert(ctx context.Context, entries []Entry, strategy UpsertStrategy) *Response {
	c := o.client
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "vectorindex.BatchUpsert",
		tracing.String(tracing.AttrIndexName, c.cfg.IndexName),
		tracing.String(tracing.AttrNamespace, c.cfg.Namespace),
		tracing.Int(tracing.AttrCount, len(entries)),
	)
	defer span.End()

	summary := &UpsertSummary{Entries: len(entries), Strategy: strategy.Name(), IDs: []string{}}

	chunks := o.split(entries)
	summary.Chunks = len(chunks)
	if len(chunks) == 0 {
		c.metrics.ObserveOperation(metrics.OpUpsert, start, nil)
		tracing.SetSpanOK(ctx)
		return succeed(summary)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.content
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	if err != nil {
		e := classify(err, errors.ErrEmbeddingFailed)
		c.metrics.ObserveOperation(metrics.OpUpsert, start, e)
		tracing.RecordError(ctx, e)
		logger.Errorw("embedding failed, upsert aborted",
			append([]any{"entries", len(entries), "chunks", len(chunks)}, e.LogFields()...)...,
		)
		return fail(e, summary)
	}
	c.metrics.RecordEmbedding(len(texts))

	records := o.assemble(entries, chunks, vectors)

	outcomes := strategy.Write(ctx, records, func(ctx context.Context, batch []*store.Record) error {
		err := c.backend.Upsert(ctx, c.cfg.Namespace, batch)
		c.metrics.RecordBatch(len(batch), err)
		return err
	})

	summary.Batches = len(outcomes)
	for _, out := range outcomes {
		if out.Err != nil {
			summary.FailedBatches++
			summary.Errors = append(summary.Errors, fmt.Errorf("batch %d (%d records): %w", out.Index, len(out.Records), out.Err))
			logger.Warnw("upsert batch failed",
				append([]any{"batch", out.Index, "records", len(out.Records), "namespace", c.cfg.Namespace},
					classify(out.Err, errors.ErrUpsertFailed).LogFields()...)...,
			)
			continue
		}
		summary.Records += len(out.Records)
		for _, r := range out.Records {
			summary.IDs = append(summary.IDs, r.ID)
		}
	}

	logger.Infow("upsert finished",
		"namespace", c.cfg.Namespace,
		"strategy", strategy.Name(),
		"entries", summary.Entries,
		"chunks", summary.Chunks,
		"records", summary.Records,
		"batches", summary.Batches,
		"failed_batches", summary.FailedBatches,
		"duration", time.Since(start).String(),
	)

	if summary.FailedBatches > 0 {
		e := errors.ErrUpsertFailed.
			WithMessagef("%d of %d upsert batches failed", summary.FailedBatches, summary.Batches).
			WithCause(stderrors.Join(summary.Errors...))
		c.metrics.ObserveOperation(metrics.OpUpsert, start, e)
		tracing.RecordError(ctx, e)
		return fail(e, summary)
	}

	c.metrics.ObserveOperation(metrics.OpUpsert, start, nil)
	tracing.SetSpanOK(ctx)
	return succeed(summary)
}

func (o *Orchestrator) split(entries []Entry) []pendingChunk {
	var chunks []pendingChunk
	for i, e := range entries {
		for _, ch := range o.client.splitter.Split(e.Text) {
			chunks = append(chunks, pendingChunk{entry: i, content: ch.Content, patch: ch.MetadataPatch})
		}
	}
	return chunks
}

// assemble 组装记录。记录 ID 为块内容与盐值的哈希，盐值由条目元数据中的 SaltKey 与
// account_id 字段组成，不同账户写入相同文本得到不同记录。
// 同一调用内 ID 重复的记录只保留最后一条，位置取首次出现处。
func (o *Orchestrator) assemble(entries []Entry, chunks []pendingChunk, vectors [][]float32) []*store.Record {
	cfg := o.client.cfg
	records := make([]*store.Record, 0, len(chunks))
	positions := make(map[string]int, len(chunks))

	for i, ch := range chunks {
		src := entries[ch.entry].Metadata
		id := textutil.HashContent(ch.content, saltOf(src, cfg.SaltKey, MetadataAccountID))

		md := src.Clone()
		for k, v := range ch.patch {
			md[k] = v
		}
		md[store.MetadataChunk] = textutil.TruncateStringByBytes(ch.content, textutil.MaxChunkBytes)
		md[store.MetadataHash] = id

		r := &store.Record{ID: id, Values: vectors[i], Metadata: md}
		if pos, ok := positions[id]; ok {
			records[pos] = r
			continue
		}
		positions[id] = len(records)
		records = append(records, r)
	}
	return records
}

// saltOf 按 keys 顺序拼接元数据取值，重复或为空的键跳过，缺失的值记为空串。
func saltOf(md store.Metadata, keys ...string) string {
	var (
		parts []string
		seen  = make(map[string]bool, len(keys))
	)
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		switch v := md[key].(type) {
		case nil:
			parts = append(parts, "")
		case string:
			parts = append(parts, v)
		default:
			parts = append(parts, fmt.Sprint(v))
		}
	}
	return strings.Join(parts, "|")
}
