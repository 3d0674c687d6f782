// Package milvus wraps the Milvus SDK for vector collections keyed by string ids.
package milvus

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/vecstore/pkg/component/storage"
	milvusopts "github.com/kart-io/vecstore/pkg/options/milvus"
)

// Field names of a vector collection.
const (
	FieldID        = "id"
	FieldNamespace = "namespace"
	FieldEmbedding = "embedding"
	FieldMetadata  = "metadata"
)

const (
	idMaxLength        = 512
	namespaceMaxLength = 256
	minSearchEf        = 64
	countField         = "count(*)"
)

// Options re-exports the Milvus option group.
type Options = milvusopts.Options

// NewOptions creates Milvus options with defaults.
func NewOptions() *Options { return milvusopts.NewOptions() }

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

var _ storage.Client = (*Client)(nil)

// New creates a new Milvus client.
func New(ctx context.Context, opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}
	if errs := opts.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid milvus options: %v", errs[0])
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Name returns the client name used in health reports.
func (c *Client) Name() string {
	return "milvus"
}

// Ping lists collections to verify the server answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption()); err != nil {
		return fmt.Errorf("milvus ping failed: %w", err)
	}
	return nil
}

// Close closes the Milvus client connection.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()
	return c.client.Close(ctx)
}

// RawClient returns the underlying Milvus client.
func (c *Client) RawClient() *milvusclient.Client {
	return c.client
}

// Options returns the options the client was created with.
func (c *Client) Options() *milvusopts.Options {
	return c.opts
}

// CollectionSchema defines a vector collection.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
}

// NewVectorSchema builds the collection schema: a VarChar primary key, a
// namespace partition key, the float vector and a JSON metadata column.
func NewVectorSchema(schema *CollectionSchema) *entity.Schema {
	return entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description).
		WithAutoID(false).
		WithField(entity.NewField().
			WithName(FieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithIsPrimaryKey(true).
			WithMaxLength(idMaxLength)).
		WithField(entity.NewField().
			WithName(FieldNamespace).
			WithDataType(entity.FieldTypeVarChar).
			WithIsPartitionKey(true).
			WithMaxLength(namespaceMaxLength)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension))).
		WithField(entity.NewField().
			WithName(FieldMetadata).
			WithDataType(entity.FieldTypeJSON))
}

// HasCollection reports whether the collection exists.
func (c *Client) HasCollection(ctx context.Context, name string) (bool, error) {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return false, fmt.Errorf("failed to check collection existence: %w", err)
	}
	return exists, nil
}

// CreateCollection creates the collection with an HNSW cosine index and
// requests loading. Loading is not awaited; callers poll LoadState.
// An existing collection is left untouched.
func (c *Client) CreateCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.HasCollection(ctx, schema.Name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	opt := milvusclient.NewCreateCollectionOption(schema.Name, NewVectorSchema(schema)).
		WithShardNum(c.opts.ShardsNum)
	if err := c.client.CreateCollection(ctx, opt); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewHNSWIndex(entity.COSINE, c.opts.HNSWM, c.opts.HNSWEfConstruction)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, FieldEmbedding, idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	return c.Load(ctx, schema.Name)
}

// Load requests the collection to be loaded into memory without waiting.
func (c *Client) Load(ctx context.Context, name string) error {
	if _, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name)); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

// LoadState returns the load state of the collection. The SDK has no
// "not exist" constant; the server reports a missing collection with the
// code the SDK names LoadStateUnloading.
func (c *Client) LoadState(ctx context.Context, name string) (entity.LoadStateCode, error) {
	state, err := c.client.GetLoadState(ctx, milvusclient.NewGetLoadStateOption(name))
	if err != nil {
		return state.State, fmt.Errorf("failed to get load state: %w", err)
	}
	return state.State, nil
}

// Row is one entity of a vector collection. Metadata holds raw JSON.
type Row struct {
	ID        string
	Namespace string
	Embedding []float32
	Metadata  []byte
}

// Upsert inserts or replaces rows by primary key.
func (c *Client) Upsert(ctx context.Context, collectionName string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	ids := make([]string, len(rows))
	namespaces := make([]string, len(rows))
	embeddings := make([][]float32, len(rows))
	metadata := make([][]byte, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		namespaces[i] = r.Namespace
		embeddings[i] = r.Embedding
		metadata[i] = r.Metadata
	}

	opt := milvusclient.NewColumnBasedInsertOption(collectionName,
		column.NewColumnVarChar(FieldID, ids),
		column.NewColumnVarChar(FieldNamespace, namespaces),
		column.NewColumnFloatVector(FieldEmbedding, len(embeddings[0]), embeddings),
		column.NewColumnJSONBytes(FieldMetadata, metadata),
	)
	if _, err := c.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("failed to upsert data: %w", err)
	}
	return nil
}

// SearchResult represents a single search hit.
type SearchResult struct {
	ID       string
	Score    float32
	Metadata []byte
}

// Search performs a cosine similarity search restricted by expr.
func (c *Client) Search(ctx context.Context, collectionName string, vector []float32, topK int, expr string) ([]SearchResult, error) {
	opt := milvusclient.NewSearchOption(collectionName, topK, []entity.Vector{entity.FloatVector(vector)}).
		WithANNSField(FieldEmbedding).
		WithSearchParam("ef", strconv.Itoa(max(minSearchEf, topK))).
		WithOutputFields(FieldMetadata).
		WithConsistencyLevel(entity.ClStrong)
	if expr != "" {
		opt = opt.WithFilter(expr)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	rs := results[0]
	searchResults := make([]SearchResult, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		id, err := rs.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read result id: %w", err)
		}
		result := SearchResult{ID: id, Score: rs.Scores[i]}
		if col, ok := rs.GetColumn(FieldMetadata).(*column.ColumnJSONBytes); ok {
			result.Metadata = col.Data()[i]
		}
		searchResults = append(searchResults, result)
	}
	return searchResults, nil
}

// Query returns all rows matching expr.
func (c *Client) Query(ctx context.Context, collectionName, expr string) ([]Row, error) {
	rs, err := c.client.Query(ctx, milvusclient.NewQueryOption(collectionName).
		WithFilter(expr).
		WithOutputFields(FieldID, FieldNamespace, FieldEmbedding, FieldMetadata).
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}

	ids, _ := rs.GetColumn(FieldID).(*column.ColumnVarChar)
	if ids == nil {
		return []Row{}, nil
	}
	namespaces, _ := rs.GetColumn(FieldNamespace).(*column.ColumnVarChar)
	embeddings, _ := rs.GetColumn(FieldEmbedding).(*column.ColumnFloatVector)
	metadata, _ := rs.GetColumn(FieldMetadata).(*column.ColumnJSONBytes)

	rows := make([]Row, ids.Len())
	for i := range rows {
		rows[i].ID = ids.Data()[i]
		if namespaces != nil {
			rows[i].Namespace = namespaces.Data()[i]
		}
		if embeddings != nil {
			rows[i].Embedding = embeddings.Data()[i]
		}
		if metadata != nil {
			rows[i].Metadata = metadata.Data()[i]
		}
	}
	return rows, nil
}

// Delete removes every row matching expr and returns the deleted count.
func (c *Client) Delete(ctx context.Context, collectionName, expr string) (int64, error) {
	result, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collectionName).WithExpr(expr))
	if err != nil {
		return 0, fmt.Errorf("failed to delete by expr: %w", err)
	}
	return result.DeleteCount, nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, collectionName string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collectionName)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// GetCollectionStats returns the number of entities in a collection.
func (c *Client) GetCollectionStats(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}

// Count returns the number of rows matching expr.
func (c *Client) Count(ctx context.Context, collectionName, expr string) (int64, error) {
	rs, err := c.client.Query(ctx, milvusclient.NewQueryOption(collectionName).
		WithFilter(expr).
		WithOutputFields(countField).
		WithConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}

	col := rs.GetColumn(countField)
	if col == nil || col.Len() == 0 {
		return 0, nil
	}
	return col.GetAsInt64(0)
}
