package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"
	"golang.org/x/sync/errgroup"

	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/infra/pool"
)

// WriteFunc 写入一个批次。
type WriteFunc func(ctx context.Context, batch []*store.Record) error

// BatchOutcome 是单个写入批次的结果。
type BatchOutcome struct {
	Index   int
	Records []*store.Record
	Err     error
}

// UpsertStrategy 决定记录如何分批以及批次如何并发写入。
// 实现必须为每个批次返回一个结果，单个批次失败不得影响其他批次。
type UpsertStrategy interface {
	Name() string
	Write(ctx context.Context, records []*store.Record, write WriteFunc) []BatchOutcome
}

// BoundedConcurrencyUpsert 按 BatchSize 分批，最多 Concurrency 个批次同时写入。
// 适用于存在外部限流的场景，是默认策略。
type BoundedConcurrencyUpsert struct {
	BatchSize   int
	Concurrency int
}

var _ UpsertStrategy = BoundedConcurrencyUpsert{}

// Name 返回策略名称。
func (s BoundedConcurrencyUpsert) Name() string {
	return "bounded"
}

// Write 通过有界 worker 池写入全部批次。
// ctx 取消后尚未调度的批次直接记为失败。
func (s BoundedConcurrencyUpsert) Write(ctx context.Context, records []*store.Record, write WriteFunc) []BatchOutcome {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultUpsertConcurrency
	}

	batches := splitRecords(records, batchSize)
	outcomes := make([]BatchOutcome, len(batches))
	for i, b := range batches {
		outcomes[i] = BatchOutcome{Index: i, Records: b}
	}
	if len(batches) == 0 {
		return outcomes
	}

	g, err := pool.NewGroup("vector-upsert", min(concurrency, len(batches)))
	if err != nil {
		for i := range outcomes {
			outcomes[i].Err = fmt.Errorf("create upsert pool: %w", err)
		}
		return outcomes
	}

	for i := range batches {
		if err := g.Go(ctx, func() {
			outcomes[i].Err = safeWrite(ctx, write, batches[i])
		}); err != nil {
			for j := i; j < len(batches); j++ {
				outcomes[j].Err = fmt.Errorf("batch %d not scheduled: %w", j, err)
			}
			break
		}
	}
	g.Wait()
	return outcomes
}

// FullyParallelUpsert 同时发起全部批次写入，仅在确认限流余量充足时使用。
type FullyParallelUpsert struct {
	BatchSize int
}

var _ UpsertStrategy = FullyParallelUpsert{}

// Name 返回策略名称。
func (s FullyParallelUpsert) Name() string {
	return "parallel"
}

// Write 为每个批次启动一个 goroutine。批次间互不取消。
func (s FullyParallelUpsert) Write(ctx context.Context, records []*store.Record, write WriteFunc) []BatchOutcome {
	batchSize := s.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultUpsertBatchSize
	}

	batches := splitRecords(records, batchSize)
	outcomes := make([]BatchOutcome, len(batches))

	var g errgroup.Group
	for i, b := range batches {
		outcomes[i] = BatchOutcome{Index: i, Records: b}
		g.Go(func() error {
			outcomes[i].Err = safeWrite(ctx, write, b)
			return outcomes[i].Err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Debugw("parallel upsert finished with errors", "batches", len(batches), "first_error", err.Error())
	}
	return outcomes
}

// safeWrite 调用 write 并将 panic 转换为错误。
func safeWrite(ctx context.Context, write WriteFunc, batch []*store.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("upsert batch panicked: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return write(ctx, batch)
}

func splitRecords(records []*store.Record, size int) [][]*store.Record {
	batches := make([][]*store.Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		batches = append(batches, records[start:min(start+size, len(records))])
	}
	return batches
}
