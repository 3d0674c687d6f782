package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("docs", 2, WithReadyAfter(2))

	state, err := m.DescribeIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, IndexAbsent, state)

	require.NoError(t, m.CreateIndex(ctx))
	require.NoError(t, m.CreateIndex(ctx))
	assert.Equal(t, 1, m.CreateCalls())

	state, _ = m.DescribeIndex(ctx)
	assert.Equal(t, IndexCreating, state)
	state, _ = m.DescribeIndex(ctx)
	assert.Equal(t, IndexReady, state)
	assert.Equal(t, "ready", state.String())
}

func TestMemoryQueryOrderAndNamespaces(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("docs", 2)
	require.NoError(t, m.CreateIndex(ctx))

	require.NoError(t, m.Upsert(ctx, "ns1", []*Record{
		{ID: "x", Values: []float32{1, 0}, Metadata: Metadata{"owner_id": "u1"}},
		{ID: "y", Values: []float32{0.6, 0.8}, Metadata: Metadata{"owner_id": "u1"}},
		{ID: "z", Values: []float32{0, 1}, Metadata: Metadata{"owner_id": "u2"}},
	}))
	require.NoError(t, m.Upsert(ctx, "ns2", []*Record{
		{ID: "x", Values: []float32{1, 0}, Metadata: Metadata{"owner_id": "u1"}},
	}))

	matches, err := m.Query(ctx, &QueryRequest{Namespace: "ns1", Vector: []float32{1, 0}, TopK: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "x", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "y", matches[1].ID)
	assert.InDelta(t, 0.6, matches[1].Score, 1e-6)

	matches, err = m.Query(ctx, &QueryRequest{Namespace: "ns1", Vector: []float32{1, 0}, TopK: 5, Filter: Filter{"owner_id": "u2"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "z", matches[0].ID)

	count, err := m.Count(ctx, "ns2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	matches, err = m.Query(ctx, &QueryRequest{Namespace: "ns3", Vector: []float32{1, 0}, TopK: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.NotNil(t, matches)
}

func TestMemoryFetchAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("docs", 2)

	require.NoError(t, m.Upsert(ctx, "ns", []*Record{
		{ID: "a", Values: []float32{1, 0}, Metadata: Metadata{"account_id": "acc1"}},
		{ID: "b", Values: []float32{0, 1}, Metadata: Metadata{"account_id": "acc2"}},
		{ID: "c", Values: []float32{1, 1}, Metadata: Metadata{"account_id": "acc3"}},
	}))

	records, err := m.Fetch(ctx, "ns", []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].ID)
	assert.Equal(t, "a", records[1].ID)

	records[0].Metadata["account_id"] = "mutated"
	again, _ := m.Fetch(ctx, "ns", []string{"c"})
	assert.Equal(t, "acc3", again[0].Metadata["account_id"])

	deleted, err := m.DeleteByFilter(ctx, "ns", Filter{"account_id": []string{"acc1", "acc2"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, _ := m.Count(ctx, "ns")
	assert.Equal(t, int64(1), count)
}

func TestMemoryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("docs", 3)

	assert.Error(t, m.Upsert(ctx, "ns", []*Record{{ID: "a", Values: []float32{1}}}))

	_, err := m.Query(ctx, &QueryRequest{Namespace: "ns", Vector: []float32{1, 0}, TopK: 1})
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	assert.Subset(t, Providers(), []string{ProviderMemory, ProviderMilvus, ProviderOpenSearch})

	b, err := New(" Memory ", &Deps{IndexName: "docs", Dimension: 4})
	require.NoError(t, err)
	assert.Equal(t, ProviderMemory, b.Name())

	_, err = New("pinecone", &Deps{IndexName: "docs", Dimension: 4})
	assert.Error(t, err)

	_, err = New(ProviderMilvus, &Deps{IndexName: "docs", Dimension: 4})
	assert.Error(t, err)

	_, err = New(ProviderMemory, &Deps{IndexName: "docs"})
	assert.Error(t, err)
}

func TestCompositeID(t *testing.T) {
	key := compositeID("tenant/a", "id1")
	assert.Equal(t, "id1", splitCompositeID("tenant/a", key))
	assert.Equal(t, "other", splitCompositeID("tenant/a", "other"))
}
