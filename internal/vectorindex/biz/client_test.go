package biz

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/utils/errors"
	"github.com/kart-io/vecstore/pkg/utils/json"
)

func unit(i int) []float32 {
	v := make([]float32, testDimension)
	v[i] = 1
	return v
}

func seedVectors(e *fakeEmbedder) {
	beta := make([]float32, testDimension)
	beta[0], beta[1] = 0.6, 0.8
	e.vectors["alpha doc"] = unit(0)
	e.vectors["beta doc"] = beta
	e.vectors["gamma doc"] = unit(1)
	e.vectors["alpha"] = unit(0)
}

func TestUpsertQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	seedVectors(env.embedder)

	resp := env.client.Upsert(ctx, store.Metadata{"owner_id": "u1", "account_id": "acc-1"}, "alpha doc")
	require.True(t, resp.Success, "upsert failed: %v", resp.Error)
	summary := summaryOf(t, resp)
	assert.Equal(t, 1, summary.Records)
	require.Len(t, summary.IDs, 1)

	results, err := env.client.Query(ctx, store.Filter{"owner_id": "u1"}, "alpha")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, summary.IDs[0], results[0].ID)
	assert.Equal(t, "alpha doc", results[0].Chunk)
	assert.Equal(t, "acc-1", results[0].Metadata.String("account_id"))
	assert.Equal(t, summary.IDs[0], results[0].Metadata.String(store.MetadataHash))
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.True(t, env.client.Ready())
}

func TestUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	md := store.Metadata{"owner_id": "u1"}

	first := env.client.Upsert(ctx, md, "the same text")
	require.True(t, first.Success)
	second := env.client.Upsert(ctx, md, "the same text")
	require.True(t, second.Success)

	assert.Equal(t, summaryOf(t, first).IDs, summaryOf(t, second).IDs)
	count, err := env.client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 不同盐值产生不同记录
	third := env.client.Upsert(ctx, store.Metadata{"owner_id": "u2"}, "the same text")
	require.True(t, third.Success)
	assert.NotEqual(t, summaryOf(t, first).IDs, summaryOf(t, third).IDs)
	count, err = env.client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestQueryNoMatchesReturnsEmptySlice(t *testing.T) {
	env := newTestEnv(t, nil)

	results, err := env.client.Query(context.Background(), nil, "anything")
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestQueryMinScoreAndOrdering(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	seedVectors(env.embedder)

	resp := env.client.BatchUpsert(ctx, []Entry{
		{Text: "gamma doc"},
		{Text: "alpha doc"},
		{Text: "beta doc"},
	}, nil)
	require.True(t, resp.Success)

	results, err := env.client.Query(ctx, nil, "alpha")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "alpha doc", results[0].Chunk)
	assert.Equal(t, "beta doc", results[1].Chunk)
	assert.Equal(t, "gamma doc", results[2].Chunk)

	results, err = env.client.Query(ctx, nil, "alpha", WithMinScore(0.5))
	require.NoError(t, err)
	require.Len(t, results, 2)

	results, err = env.client.Query(ctx, nil, "alpha", WithMinScore(0.7))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha doc", results[0].Chunk)

	results, err = env.client.Query(ctx, nil, "alpha", WithTopK(1))
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestQueryRejectsInvalidFilterBeforeBackend(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.client.Query(context.Background(), store.Filter{"owner id": "u1"}, "text")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidFilter))
	assert.Zero(t, env.backend.describeCalls.Load())
	assert.Zero(t, env.embedder.Calls())

	_, err = env.client.Query(context.Background(), nil, "   ")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidInput))
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	cfgB := testConfig()
	cfgB.Namespace = "tenant-b"
	clientB, err := NewClient(cfgB, env.backend, env.embedder)
	require.NoError(t, err)

	resp := env.client.Upsert(ctx, store.Metadata{"owner_id": "u1"}, "tenant a secret")
	require.True(t, resp.Success)

	results, err := clientB.Query(ctx, nil, "tenant a secret")
	require.NoError(t, err)
	assert.Empty(t, results)

	count, err := clientB.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	fetched := clientB.FetchRecordsByIDs(ctx, summaryOf(t, resp).IDs)
	require.True(t, fetched.Success)
	assert.Empty(t, fetched.Data)
}

func TestSameTextFromTwoAccountsKeepsBothRecords(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	a := env.client.Upsert(ctx, store.Metadata{MetadataAccountID: "acc-A"}, "shared onboarding guide")
	require.True(t, a.Success, "upsert failed: %v", a.Error)
	b := env.client.Upsert(ctx, store.Metadata{MetadataAccountID: "acc-B"}, "shared onboarding guide")
	require.True(t, b.Success, "upsert failed: %v", b.Error)
	assert.NotEqual(t, summaryOf(t, a).IDs, summaryOf(t, b).IDs)

	count, err := env.client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	results, err := env.client.Query(ctx, store.Filter{MetadataAccountID: "acc-A"}, "shared onboarding guide")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, summaryOf(t, a).IDs[0], results[0].ID)

	del := env.client.DeleteByAccountIDs(ctx, []string{"acc-B"})
	require.True(t, del.Success, "delete failed: %v", del.Error)

	results, err = env.client.Query(ctx, store.Filter{MetadataAccountID: "acc-A"}, "shared onboarding guide")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acc-A", results[0].Metadata.String(MetadataAccountID))

	count, err = env.client.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSaltOf(t *testing.T) {
	md := store.Metadata{"owner_id": "u1", MetadataAccountID: "acc-1", "page": 3}

	assert.Equal(t, "u1|acc-1", saltOf(md, "owner_id", MetadataAccountID))
	assert.Equal(t, "acc-1", saltOf(md, MetadataAccountID, MetadataAccountID))
	assert.Equal(t, "|acc-1", saltOf(store.Metadata{MetadataAccountID: "acc-1"}, "owner_id", MetadataAccountID))
	assert.Equal(t, "3", saltOf(md, "page", ""))
	assert.NotEqual(t,
		saltOf(store.Metadata{"owner_id": "a|b"}, "owner_id", MetadataAccountID),
		saltOf(store.Metadata{"owner_id": "a", MetadataAccountID: "b"}, "owner_id", MetadataAccountID),
	)
}

func TestInitializeCreatesIndexOnce(t *testing.T) {
	env := newTestEnv(t, nil, store.WithReadyAfter(3))

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = env.client.Initialize(context.Background())
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), env.backend.createCalls.Load())
	assert.Equal(t, 1, env.backend.CreateCalls())
	assert.True(t, env.client.Ready())

	// 就绪后不再访问后端
	before := env.backend.describeCalls.Load()
	require.NoError(t, env.client.Initialize(context.Background()))
	assert.Equal(t, before, env.backend.describeCalls.Load())

	out, err := env.metrics.Export()
	require.NoError(t, err)
	assert.Contains(t, out, "vector_index_index_creates_total 1")
}

func TestInitializeReadyTimeout(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.ReadyMaxAttempts = 3
	}, store.WithReadyAfter(1000))

	err := env.client.Initialize(context.Background())
	require.Error(t, err)

	var notReady *store.IndexNotReadyError
	require.True(t, stderrors.As(err, &notReady))
	assert.Equal(t, 3, notReady.Attempts)
	assert.Equal(t, store.IndexCreating, notReady.State)
	assert.True(t, stderrors.Is(err, errors.ErrIndexNotReady))
	assert.False(t, env.client.Ready())

	// 操作层面映射为 ErrIndexNotReady
	resp := env.client.Upsert(context.Background(), nil, "text")
	assert.False(t, resp.Success)
	assert.Equal(t, errors.ErrIndexNotReady.Code, resp.Code())
}

func TestInitializeHonoursContext(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.ReadyPollInterval = time.Hour
	}, store.WithReadyAfter(1000))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := env.client.Initialize(ctx)
	var notReady *store.IndexNotReadyError
	require.True(t, stderrors.As(err, &notReady))
	assert.ErrorIs(t, notReady.Cause, context.DeadlineExceeded)
}

func TestBatchUpsertSplitsIntoBatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	resp := env.client.BatchUpsert(ctx, []Entry{{Text: "a"}, {Text: "b"}, {Text: "c"}},
		BoundedConcurrencyUpsert{BatchSize: 2, Concurrency: 2})
	require.True(t, resp.Success)

	summary := summaryOf(t, resp)
	assert.Equal(t, 3, summary.Entries)
	assert.Equal(t, 3, summary.Chunks)
	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, "bounded", summary.Strategy)
	assert.Equal(t, int32(2), env.backend.upsertCalls.Load())
	// 所有块一次性嵌入
	assert.Equal(t, 1, env.embedder.Calls())
}

func TestBatchUpsertDeduplicatesWithinCall(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.client.BatchUpsert(context.Background(), []Entry{
		{Text: "dup", Metadata: store.Metadata{"v": 1}},
		{Text: "other"},
		{Text: "dup", Metadata: store.Metadata{"v": 2}},
	}, nil)
	require.True(t, resp.Success)
	summary := summaryOf(t, resp)
	assert.Equal(t, 2, summary.Records)

	fetched := env.client.FetchRecordsByIDs(context.Background(), summary.IDs[:1])
	require.True(t, fetched.Success)
	records := fetched.Data.([]*store.Record)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Metadata["v"])
}

func TestBatchUpsertPartialFailure(t *testing.T) {
	ctx := context.Background()
	for _, strategy := range []UpsertStrategy{
		BoundedConcurrencyUpsert{BatchSize: 1, Concurrency: 2},
		FullyParallelUpsert{BatchSize: 1},
	} {
		t.Run(strategy.Name(), func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.backend.failChunk = "poison"

			resp := env.client.BatchUpsert(ctx, []Entry{
				{Text: "first"}, {Text: "poison pill"}, {Text: "third"},
			}, strategy)
			assert.False(t, resp.Success)
			assert.True(t, stderrors.Is(resp.Error, errors.ErrUpsertFailed))

			summary := summaryOf(t, resp)
			assert.Equal(t, 3, summary.Batches)
			assert.Equal(t, 1, summary.FailedBatches)
			assert.Equal(t, 2, summary.Records)
			assert.Len(t, summary.Errors, 1)

			count, err := env.client.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})
	}
}

func TestBatchUpsertEmbeddingFailureIsFatal(t *testing.T) {
	env := newTestEnv(t, nil)
	env.embedder.fail = stderrors.New("provider down")

	resp := env.client.BatchUpsert(context.Background(), []Entry{{Text: "a"}, {Text: "b"}}, nil)
	assert.False(t, resp.Success)
	assert.True(t, stderrors.Is(resp.Error, errors.ErrEmbeddingFailed))
	assert.Zero(t, env.backend.upsertCalls.Load())

	count, err := env.client.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBatchUpsertEmptyInput(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.client.BatchUpsert(context.Background(), []Entry{{Text: ""}}, nil)
	require.True(t, resp.Success)
	assert.Zero(t, summaryOf(t, resp).Records)
	assert.Zero(t, env.embedder.Calls())
}

func TestPanicsBecomeErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.embedder.panics = true

	resp := env.client.Upsert(context.Background(), nil, "boom")
	assert.False(t, resp.Success)
	assert.True(t, stderrors.Is(resp.Error, errors.ErrInternal))

	_, err := env.client.Query(context.Background(), nil, "boom")
	assert.True(t, stderrors.Is(err, errors.ErrInternal))
}

func TestDeleteByFilterAndAccountIDs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	resp := env.client.BatchUpsert(ctx, []Entry{
		{Text: "one", Metadata: store.Metadata{MetadataAccountID: "acc-1"}},
		{Text: "two", Metadata: store.Metadata{MetadataAccountID: "acc-2"}},
		{Text: "three", Metadata: store.Metadata{MetadataAccountID: "acc-3"}},
	}, nil)
	require.True(t, resp.Success)

	resp = env.client.DeleteByFilter(ctx, nil)
	assert.False(t, resp.Success)
	assert.True(t, stderrors.Is(resp.Error, errors.ErrInvalidFilter))

	resp = env.client.DeleteByAccountIDs(ctx, nil)
	assert.False(t, resp.Success)
	assert.True(t, stderrors.Is(resp.Error, errors.ErrInvalidInput))

	resp = env.client.DeleteByAccountIDs(ctx, []string{"acc-1", "acc-3"})
	require.True(t, resp.Success)
	assert.Equal(t, int64(2), resp.Data.(*DeleteResult).Deleted)

	resp = env.client.DeleteByFilter(ctx, store.Filter{MetadataAccountID: "acc-2"})
	require.True(t, resp.Success)
	assert.Equal(t, int64(1), resp.Data.(*DeleteResult).Deleted)

	count, err := env.client.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestFetchRecordsByIDs(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	resp := env.client.FetchRecordsByIDs(ctx, nil)
	require.True(t, resp.Success)
	assert.Empty(t, resp.Data)
	assert.Zero(t, env.backend.describeCalls.Load())

	up := env.client.BatchUpsert(ctx, []Entry{{Text: "x"}, {Text: "y"}}, nil)
	require.True(t, up.Success)
	ids := summaryOf(t, up).IDs

	resp = env.client.FetchRecordsByIDs(ctx, []string{ids[1], "missing", ids[0]})
	require.True(t, resp.Success)
	records := resp.Data.([]*store.Record)
	require.Len(t, records, 2)
	assert.Equal(t, ids[1], records[0].ID)
	assert.Equal(t, ids[0], records[1].ID)
	assert.Len(t, records[0].Values, testDimension)
}

func TestResponseJSON(t *testing.T) {
	data, err := json.Marshal(fail(errors.ErrInvalidInput.WithMessage("bad"), nil))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success":false`)
	assert.Contains(t, string(data), `"code":`)
	assert.Contains(t, string(data), `bad`)

	ok := succeed(&DeleteResult{Deleted: 3})
	assert.Zero(t, ok.Code())
	data, err = json.Marshal(ok)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"deleted":3`)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil, errors.ErrQueryFailed))

	e := classify(stderrors.New("boom"), errors.ErrQueryFailed)
	assert.Equal(t, errors.ErrQueryFailed.Code, e.Code)

	e = classify(context.DeadlineExceeded, errors.ErrQueryFailed)
	assert.Equal(t, errors.ErrIndexTimeout.Code, e.Code)

	e = classify(&store.IndexNotReadyError{Index: "i", Cause: errors.ErrIndexNetwork}, errors.ErrQueryFailed)
	assert.Equal(t, errors.ErrIndexNotReady.Code, e.Code)

	e = classify(errors.ErrInvalidFilter, errors.ErrQueryFailed)
	assert.Equal(t, errors.ErrInvalidFilter.Code, e.Code)
}
