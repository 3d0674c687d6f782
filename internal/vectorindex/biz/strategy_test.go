package biz

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vecstore/internal/vectorindex/store"
)

func makeRecords(n int) []*store.Record {
	records := make([]*store.Record, n)
	for i := range records {
		records[i] = &store.Record{ID: fmt.Sprintf("r%d", i)}
	}
	return records
}

func TestSplitRecords(t *testing.T) {
	assert.Empty(t, splitRecords(nil, 2))

	batches := splitRecords(makeRecords(5), 2)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 2)
	assert.Len(t, batches[2], 1)
	assert.Equal(t, "r4", batches[2][0].ID)
}

func TestBoundedConcurrencyLimit(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
	)
	write := func(context.Context, []*store.Record) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}

	outcomes := BoundedConcurrencyUpsert{BatchSize: 1, Concurrency: 2}.Write(context.Background(), makeRecords(6), write)
	require.Len(t, outcomes, 6)
	for i, out := range outcomes {
		assert.Equal(t, i, out.Index)
		assert.NoError(t, out.Err)
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestStrategiesIsolateFailuresAndPanics(t *testing.T) {
	write := func(_ context.Context, batch []*store.Record) error {
		switch batch[0].ID {
		case "r1":
			return fmt.Errorf("rejected")
		case "r2":
			panic("backend bug")
		}
		return nil
	}

	for _, s := range []UpsertStrategy{
		BoundedConcurrencyUpsert{BatchSize: 1, Concurrency: 3},
		FullyParallelUpsert{BatchSize: 1},
	} {
		t.Run(s.Name(), func(t *testing.T) {
			outcomes := s.Write(context.Background(), makeRecords(4), write)
			require.Len(t, outcomes, 4)
			assert.NoError(t, outcomes[0].Err)
			assert.EqualError(t, outcomes[1].Err, "rejected")
			assert.ErrorContains(t, outcomes[2].Err, "panicked")
			assert.NoError(t, outcomes[3].Err)
		})
	}
}

func TestStrategiesCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls sync.Map
	write := func(_ context.Context, batch []*store.Record) error {
		calls.Store(batch[0].ID, true)
		return nil
	}

	for _, s := range []UpsertStrategy{
		BoundedConcurrencyUpsert{BatchSize: 2, Concurrency: 1},
		FullyParallelUpsert{BatchSize: 2},
	} {
		outcomes := s.Write(ctx, makeRecords(3), write)
		require.Len(t, outcomes, 2)
		for _, out := range outcomes {
			assert.ErrorIs(t, out.Err, context.Canceled, s.Name())
		}
	}
	_, called := calls.Load("r0")
	assert.False(t, called)
}

func TestStrategyDefaults(t *testing.T) {
	outcomes := BoundedConcurrencyUpsert{}.Write(context.Background(), makeRecords(DefaultUpsertBatchSize+1),
		func(context.Context, []*store.Record) error { return nil })
	assert.Len(t, outcomes, 2)

	outcomes = FullyParallelUpsert{}.Write(context.Background(), makeRecords(3),
		func(context.Context, []*store.Record) error { return nil })
	assert.Len(t, outcomes, 1)
}
