package milvus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVectorSchema(t *testing.T) {
	schema := NewVectorSchema(&CollectionSchema{Name: "docs", Dimension: 8})

	assert.Equal(t, "docs", schema.CollectionName)
	require.Len(t, schema.Fields, 4)

	byName := make(map[string]*entity.Field, len(schema.Fields))
	for _, f := range schema.Fields {
		byName[f.Name] = f
	}

	id := byName[FieldID]
	require.NotNil(t, id)
	assert.True(t, id.PrimaryKey)
	assert.False(t, id.AutoID)
	assert.Equal(t, entity.FieldTypeVarChar, id.DataType)

	ns := byName[FieldNamespace]
	require.NotNil(t, ns)
	assert.True(t, ns.IsPartitionKey)

	vec := byName[FieldEmbedding]
	require.NotNil(t, vec)
	assert.Equal(t, entity.FieldTypeFloatVector, vec.DataType)
	assert.Equal(t, "8", vec.TypeParams[entity.TypeParamDim])

	assert.Equal(t, entity.FieldTypeJSON, byName[FieldMetadata].DataType)
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)

	opts := NewOptions()
	opts.Address = ""
	_, err = New(context.Background(), opts)
	assert.Error(t, err)
}

func TestClientAgainstMilvus(t *testing.T) {
	addr := os.Getenv("MILVUS_ADDRESS")
	if addr == "" {
		t.Skip("MILVUS_ADDRESS 未设置，跳过测试")
	}

	opts := NewOptions()
	opts.Address = addr
	opts.Timeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := New(ctx, opts)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Ping(ctx))

	name := "vecstore_component_test"
	_ = client.DropCollection(ctx, name)
	require.NoError(t, client.CreateCollection(ctx, &CollectionSchema{Name: name, Dimension: 2}))
	defer client.DropCollection(ctx, name)

	exists, err := client.HasCollection(ctx, name)
	require.NoError(t, err)
	assert.True(t, exists)

	require.Eventually(t, func() bool {
		state, err := client.LoadState(ctx, name)
		return err == nil && state == entity.LoadStateLoaded
	}, 30*time.Second, 200*time.Millisecond)

	require.NoError(t, client.Upsert(ctx, name, []Row{
		{ID: "a", Namespace: "ns", Embedding: []float32{1, 0}, Metadata: []byte(`{"k":"v"}`)},
	}))

	hits, err := client.Search(ctx, name, []float32{1, 0}, 1, `namespace == "ns"`)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].ID)

	rows, err := client.Query(ctx, name, `id in ["a"]`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.JSONEq(t, `{"k":"v"}`, string(rows[0].Metadata))
}
