package biz

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/vecstore/internal/pkg/vector/docutil"
	"github.com/kart-io/vecstore/internal/vectorindex/metrics"
	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/infra/pool"
	"github.com/kart-io/vecstore/pkg/infra/tracing"
	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// 处理器默认值。
const (
	DefaultProcessBatchSize     = 50
	DefaultMaxConcurrentBatches = 3

	// MetadataFilename 是 ProcessFiles 写入的文件名元数据键。
	MetadataFilename = "filename"
)

// TextItem 是携带文本与元数据的条目。
type TextItem struct {
	Text     string         `json:"text"`
	Metadata store.Metadata `json:"metadata,omitempty"`
}

// FileItem 是类文件条目。内容依次取自 Content、Reader、Path。
type FileItem struct {
	Name     string
	Path     string
	Content  []byte
	Reader   io.Reader
	Metadata store.Metadata
}

// Filename 返回文件名，Name 为空时取 Path 的最后一段。
func (f *FileItem) Filename() string {
	if f.Name != "" {
		return f.Name
	}
	if f.Path != "" {
		return filepath.Base(f.Path)
	}
	return ""
}

// ReadText 读取文件文本内容。
func (f *FileItem) ReadText() (string, error) {
	switch {
	case f.Content != nil:
		return string(f.Content), nil
	case f.Reader != nil:
		data, err := io.ReadAll(f.Reader)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case f.Path != "":
		return docutil.ReadFileContent(f.Path)
	default:
		return "", fmt.Errorf("file item %q has no content", f.Filename())
	}
}

// ProcessConfig 批处理配置。
type ProcessConfig struct {
	// BatchSize 每批条目数。
	BatchSize int
	// MaxConcurrentBatches 同时处理的批次数。
	MaxConcurrentBatches int
	// Strategy 写入策略，nil 时使用客户端默认策略。
	Strategy UpsertStrategy
	// GetTextContent 从条目提取文本，nil 时使用默认提取。
	GetTextContent func(item any, index int) (string, error)
	// GetMetadata 从条目提取元数据，与基础元数据合并，nil 时使用默认提取。
	GetMetadata func(item any, index int) store.Metadata
}

// DefaultProcessConfig 返回默认配置。
func DefaultProcessConfig() *ProcessConfig {
	return &ProcessConfig{
		BatchSize:            DefaultProcessBatchSize,
		MaxConcurrentBatches: DefaultMaxConcurrentBatches,
	}
}

func (c *ProcessConfig) complete() *ProcessConfig {
	out := DefaultProcessConfig()
	if c != nil {
		*out = *c
	}
	if out.BatchSize <= 0 {
		out.BatchSize = DefaultProcessBatchSize
	}
	if out.MaxConcurrentBatches <= 0 {
		out.MaxConcurrentBatches = DefaultMaxConcurrentBatches
	}
	if out.GetTextContent == nil {
		out.GetTextContent = DefaultTextContent
	}
	if out.GetMetadata == nil {
		out.GetMetadata = DefaultMetadata
	}
	return out
}

// BatchResult 是一个处理批次的结果。
type BatchResult struct {
	Index   int            `json:"index"`
	Items   int            `json:"items"`
	Records int            `json:"records"`
	Success bool           `json:"success"`
	Summary *UpsertSummary `json:"summary,omitempty"`
	Error   error          `json:"-"`
}

// ProcessResult 是一次批处理的汇总结果。
type ProcessResult struct {
	RunID        string         `json:"run_id"`
	Success      bool           `json:"success"`
	TotalRecords int            `json:"total_records"`
	BatchResults []*BatchResult `json:"batch_results"`
	Errors       []error        `json:"-"`
}

// ErrorMessages 返回全部错误的文本。
func (r *ProcessResult) ErrorMessages() []string {
	msgs := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		msgs[i] = err.Error()
	}
	return msgs
}

// Processor 将大量异构条目分组，并以有界并发交给客户端批量写入。
// 不做自动重试，调用方根据 Errors 决定补救措施。
type Processor struct {
	client  *Client
	metrics *metrics.VectorMetrics
}

// NewProcessor 创建批处理器。
func NewProcessor(client *Client) *Processor {
	return &Processor{client: client, metrics: client.metrics}
}

// ProcessTexts 处理条目。所有批次都会执行，错误被收集而不提前终止。
func (p *Processor) ProcessTexts(ctx context.Context, items []any, base store.Metadata, cfg *ProcessConfig) *ProcessResult {
	cfg = cfg.complete()
	runID := ulid.Make().String()
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "vectorindex.ProcessTexts",
		tracing.String(tracing.AttrRunID, runID),
		tracing.Int(tracing.AttrCount, len(items)),
	)
	defer span.End()

	groups := groupItems(len(items), cfg.BatchSize)
	result := &ProcessResult{
		RunID:        runID,
		BatchResults: make([]*BatchResult, len(groups)),
	}
	logger.Infow("batch processing started",
		"run_id", runID,
		"items", len(items),
		"batches", len(groups),
		"batch_size", cfg.BatchSize,
		"max_concurrent_batches", cfg.MaxConcurrentBatches,
	)

	itemErrs := make([][]error, len(groups))
	run := func(i int) {
		br, errs := p.processBatch(ctx, runID, i, items, groups[i], base, cfg)
		result.BatchResults[i] = br
		itemErrs[i] = errs
	}

	g, err := pool.NewGroup("vector-process", min(cfg.MaxConcurrentBatches, max(len(groups), 1)))
	if err != nil {
		for i := range groups {
			result.BatchResults[i] = &BatchResult{Index: i, Items: groups[i].size(), Error: err}
		}
	} else {
		for i := range groups {
			if err := g.Go(ctx, func() { run(i) }); err != nil {
				result.BatchResults[i] = &BatchResult{
					Index: i,
					Items: groups[i].size(),
					Error: fmt.Errorf("batch %d not scheduled: %w", i, err),
				}
			}
		}
		g.Wait()
	}

	for i, br := range result.BatchResults {
		result.Errors = append(result.Errors, itemErrs[i]...)
		if br.Error != nil {
			result.Errors = append(result.Errors, br.Error)
		}
		result.TotalRecords += br.Records
	}
	result.Success = len(result.Errors) == 0

	var runErr error
	if !result.Success {
		runErr = errors.ErrUpsertFailed.WithMessagef("%d errors in run %s", len(result.Errors), runID)
		tracing.RecordError(ctx, runErr)
	} else {
		tracing.SetSpanOK(ctx)
	}
	p.metrics.ObserveOperation(metrics.OpProcess, start, runErr)

	logger.Infow("batch processing finished",
		"run_id", runID,
		"success", result.Success,
		"total_records", result.TotalRecords,
		"errors", len(result.Errors),
		"duration", time.Since(start).String(),
	)
	return result
}

// processBatch 提取一组条目并写入。条目级提取错误单独返回，其余条目照常写入。
func (p *Processor) processBatch(ctx context.Context, runID string, index int, items []any, r itemRange, base store.Metadata, cfg *ProcessConfig) (br *BatchResult, itemErrs []error) {
	br = &BatchResult{Index: index, Items: r.size()}
	defer func() {
		if rec := recover(); rec != nil {
			br.Success = false
			br.Error = errors.ErrInternal.WithCause(fmt.Errorf("panic in batch %d: %v", index, rec))
		}
	}()

	entries := make([]Entry, 0, r.size())
	for idx := r.start; idx < r.end; idx++ {
		text, err := cfg.GetTextContent(items[idx], idx)
		if err != nil {
			itemErrs = append(itemErrs, fmt.Errorf("item %d: %w", idx, err))
			continue
		}
		md := base.Clone()
		for k, v := range cfg.GetMetadata(items[idx], idx) {
			md[k] = v
		}
		entries = append(entries, Entry{Text: text, Metadata: md})
	}
	if len(entries) == 0 {
		return br, itemErrs
	}

	resp := p.client.BatchUpsert(ctx, entries, cfg.Strategy)
	if summary, ok := resp.Data.(*UpsertSummary); ok {
		br.Summary = summary
		br.Records = summary.Records
	}
	br.Success = resp.Success && len(itemErrs) == 0
	if !resp.Success {
		br.Error = fmt.Errorf("batch %d: %w", index, resp.Error)
		logger.Warnw("process batch failed", "run_id", runID, "batch", index, "error", resp.Error.Error())
	}
	return br, itemErrs
}

// ProcessFiles 读取文件内容并附加 filename 元数据后交给 ProcessTexts。
// 读取失败的文件计入 Errors。
func (p *Processor) ProcessFiles(ctx context.Context, files []FileItem, base store.Metadata, cfg *ProcessConfig) *ProcessResult {
	items := make([]any, 0, len(files))
	var readErrs []error
	for i := range files {
		f := &files[i]
		text, err := f.ReadText()
		if err != nil {
			readErrs = append(readErrs, fmt.Errorf("file %q: %w", f.Filename(), err))
			continue
		}
		md := f.Metadata.Clone()
		if name := f.Filename(); name != "" {
			md[MetadataFilename] = name
		}
		items = append(items, TextItem{Text: text, Metadata: md})
	}

	result := p.ProcessTexts(ctx, items, base, cfg)
	if len(readErrs) > 0 {
		result.Errors = append(readErrs, result.Errors...)
		result.Success = false
	}
	return result
}

// DefaultTextContent 支持 string、TextItem、FileItem、带 "text" 键的 map
// 以及实现 Text() string 的类型。
func DefaultTextContent(item any, index int) (string, error) {
	switch v := item.(type) {
	case string:
		return v, nil
	case TextItem:
		return v.Text, nil
	case *TextItem:
		if v == nil {
			return "", fmt.Errorf("item %d is nil", index)
		}
		return v.Text, nil
	case FileItem:
		return v.ReadText()
	case *FileItem:
		if v == nil {
			return "", fmt.Errorf("item %d is nil", index)
		}
		return v.ReadText()
	case map[string]any:
		if s, ok := v["text"].(string); ok {
			return s, nil
		}
		return "", fmt.Errorf("item %d has no text field", index)
	case interface{ Text() string }:
		return v.Text(), nil
	default:
		return "", fmt.Errorf("item %d: unsupported type %T", index, item)
	}
}

// DefaultMetadata 返回条目自带的元数据。
func DefaultMetadata(item any, _ int) store.Metadata {
	switch v := item.(type) {
	case TextItem:
		return v.Metadata
	case *TextItem:
		if v != nil {
			return v.Metadata
		}
	case FileItem:
		return fileMetadata(&v)
	case *FileItem:
		if v != nil {
			return fileMetadata(v)
		}
	case map[string]any:
		if md, ok := v["metadata"].(map[string]any); ok {
			return md
		}
	}
	return nil
}

func fileMetadata(f *FileItem) store.Metadata {
	md := f.Metadata.Clone()
	if name := f.Filename(); name != "" {
		md[MetadataFilename] = name
	}
	return md
}

type itemRange struct {
	start, end int
}

func (r itemRange) size() int {
	return r.end - r.start
}

func groupItems(n, size int) []itemRange {
	groups := make([]itemRange, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		groups = append(groups, itemRange{start: start, end: min(start+size, n)})
	}
	return groups
}
