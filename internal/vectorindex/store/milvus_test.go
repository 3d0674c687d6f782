package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vecstore/pkg/component/milvus"
)

func TestMilvusExpr(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{
			name: "namespace only",
			want: `namespace == "ns"`,
		},
		{
			name:   "equality",
			filter: Filter{"owner_id": "u1"},
			want:   `namespace == "ns" and metadata["owner_id"] == "u1"`,
		},
		{
			name:   "membership and scalars",
			filter: Filter{"account_id": []string{"a", `b"c`}, "page": 2, "public": false, "score": 0.25},
			want:   `namespace == "ns" and metadata["account_id"] in ["a", "b\"c"] and metadata["page"] == 2 and metadata["public"] == false and metadata["score"] == 0.25`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conds, err := tt.filter.conditions()
			require.NoError(t, err)
			assert.Equal(t, tt.want, milvusExpr("ns", conds))
		})
	}
}

func TestMilvusIndexStateOf(t *testing.T) {
	tests := []struct {
		state     entity.LoadStateCode
		want      IndexState
		needsLoad bool
	}{
		{state: entity.LoadStateLoaded, want: IndexReady},
		{state: entity.LoadStateLoading, want: IndexCreating},
		{state: entity.LoadStateNotLoad, want: IndexCreating, needsLoad: true},
		{state: entity.LoadStateUnloading, want: IndexAbsent},
	}
	for _, tt := range tests {
		got, needsLoad := indexStateOf(tt.state)
		assert.Equal(t, tt.want, got, "state %d", tt.state)
		assert.Equal(t, tt.needsLoad, needsLoad, "state %d", tt.state)
	}
}

func TestMilvusRejectsInvalidFilterBeforeCall(t *testing.T) {
	// 客户端为 nil，任何网络调用都会 panic。
	m := NewMilvus(nil, "docs", 2)

	_, err := m.Query(context.Background(), &QueryRequest{Namespace: "ns", Vector: []float32{1, 0}, TopK: 1, Filter: Filter{"bad key": 1}})
	assert.Error(t, err)

	_, err = m.DeleteByFilter(context.Background(), "ns", Filter{"k": map[string]any{}})
	assert.Error(t, err)

	assert.Error(t, m.Upsert(context.Background(), "ns", []*Record{{ID: "a", Values: []float32{1}}}))
}

func TestMilvusBackendAgainstServer(t *testing.T) {
	addr := os.Getenv("MILVUS_ADDRESS")
	if addr == "" {
		t.Skip("MILVUS_ADDRESS 未设置，跳过测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	opts := milvus.NewOptions()
	opts.Address = addr
	opts.Timeout = 10 * time.Second
	client, err := milvus.New(ctx, opts)
	require.NoError(t, err)
	defer client.Close()

	name := "vecstore_backend_test"
	_ = client.DropCollection(ctx, name)
	defer client.DropCollection(ctx, name)

	b := NewMilvus(client, name, 2)
	require.NoError(t, b.CreateIndex(ctx))
	require.Eventually(t, func() bool {
		state, err := b.DescribeIndex(ctx)
		return err == nil && state == IndexReady
	}, time.Minute, 500*time.Millisecond)

	require.NoError(t, b.Upsert(ctx, "ns1", []*Record{
		{ID: "a", Values: []float32{1, 0}, Metadata: Metadata{"account_id": "acc1"}},
		{ID: "b", Values: []float32{0, 1}, Metadata: Metadata{"account_id": "acc2"}},
	}))
	require.NoError(t, b.Upsert(ctx, "ns2", []*Record{
		{ID: "a", Values: []float32{1, 0}, Metadata: Metadata{"account_id": "acc1"}},
	}))

	matches, err := b.Query(ctx, &QueryRequest{Namespace: "ns1", Vector: []float32{1, 0}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ID)

	records, err := b.Fetch(ctx, "ns1", []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)

	_, err = b.DeleteByFilter(ctx, "ns1", Filter{"account_id": []string{"acc1"}})
	require.NoError(t, err)

	count, err := b.Count(ctx, "ns2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
