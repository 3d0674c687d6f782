package store

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kart-io/logger"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/kart-io/vecstore/internal/pkg/vector/textutil"
	"github.com/kart-io/vecstore/pkg/component/opensearch"
	"github.com/kart-io/vecstore/pkg/utils/json"
)

func init() {
	Register(ProviderOpenSearch, func(deps *Deps) (Backend, error) {
		if deps.OpenSearch == nil {
			return nil, fmt.Errorf("opensearch client is required for provider %q", ProviderOpenSearch)
		}
		return NewOpenSearch(deps.OpenSearch, deps.IndexName, deps.Dimension), nil
	})
}

// 文档字段名。
const (
	osFieldRecordID  = "record_id"
	osFieldNamespace = "namespace"
	osFieldEmbedding = "embedding"
	osFieldMetadata  = "metadata"
)

// OpenSearch 基于 k-NN 插件（lucene 引擎、cosinesimil）实现 Backend。
// 文档 _id 为 "<namespace>/<id>"。
type OpenSearch struct {
	client    *opensearch.Client
	index     string
	dimension int
}

var _ Backend = (*OpenSearch)(nil)

// NewOpenSearch 创建绑定到索引的 OpenSearch 后端。
func NewOpenSearch(client *opensearch.Client, index string, dimension int) *OpenSearch {
	return &OpenSearch{client: client, index: index, dimension: dimension}
}

// Name 返回后端标识。
func (o *OpenSearch) Name() string {
	return ProviderOpenSearch
}

type osDocument struct {
	RecordID  string    `json:"record_id"`
	Namespace string    `json:"namespace"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata"`
}

// DescribeIndex 索引存在且健康状态不为 red 时视为就绪。
func (o *OpenSearch) DescribeIndex(ctx context.Context) (IndexState, error) {
	exists, err := o.client.Exists(ctx, opensearchapi.IndicesExistsRequest{Index: []string{o.index}})
	if err != nil {
		return IndexAbsent, err
	}
	if !exists {
		return IndexAbsent, nil
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := o.client.Do(ctx, opensearchapi.ClusterHealthRequest{Index: []string{o.index}}, &health); err != nil {
		return IndexCreating, err
	}
	if health.Status == "red" || health.Status == "" {
		return IndexCreating, nil
	}
	return IndexReady, nil
}

// CreateIndex 创建 k-NN 索引，已存在时返回 nil。
func (o *OpenSearch) CreateIndex(ctx context.Context) error {
	body, err := json.Marshal(o.indexBody())
	if err != nil {
		return err
	}

	err = o.client.Do(ctx, opensearchapi.IndicesCreateRequest{Index: o.index, Body: bytes.NewReader(body)}, nil)
	if isAlreadyExists(err) {
		logger.Debugw("索引已存在", "index", o.index)
		return nil
	}
	return err
}

func (o *OpenSearch) indexBody() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"index": map[string]any{"knn": true},
		},
		"mappings": map[string]any{
			"dynamic_templates": []any{
				map[string]any{
					"metadata_strings": map[string]any{
						"path_match":         osFieldMetadata + ".*",
						"match_mapping_type": "string",
						"mapping":            map[string]any{"type": "keyword", "ignore_above": 8191},
					},
				},
			},
			"properties": map[string]any{
				osFieldRecordID:  map[string]any{"type": "keyword"},
				osFieldNamespace: map[string]any{"type": "keyword"},
				osFieldEmbedding: map[string]any{
					"type":      "knn_vector",
					"dimension": o.dimension,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     "lucene",
					},
				},
				osFieldMetadata: map[string]any{
					"type": "object",
					"properties": map[string]any{
						MetadataChunk: map[string]any{"type": "text", "index": false},
						MetadataHash:  map[string]any{"type": "keyword"},
					},
				},
			},
		},
	}
}

func isAlreadyExists(err error) bool {
	var re *opensearch.ResponseError
	if !stderrors.As(err, &re) {
		return false
	}
	return re.StatusCode == http.StatusBadRequest && strings.Contains(re.Body, "resource_already_exists_exception")
}

// Upsert 通过 _bulk 写入，刷新策略为 wait_for 以保证写后可读。
func (o *OpenSearch) Upsert(ctx context.Context, namespace string, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if len(r.Values) != o.dimension {
			return fmt.Errorf("record %s has dimension %d, want %d", r.ID, len(r.Values), o.dimension)
		}
		action := map[string]any{"index": map[string]any{"_index": o.index, "_id": compositeID(namespace, r.ID)}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		doc := osDocument{RecordID: r.ID, Namespace: namespace, Embedding: r.Values, Metadata: r.Metadata}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode record %s: %w", r.ID, err)
		}
	}

	var resp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	req := opensearchapi.BulkRequest{Index: o.index, Body: &buf, Refresh: "wait_for"}
	if err := o.client.Do(ctx, req, &resp); err != nil {
		return err
	}
	if !resp.Errors {
		return nil
	}

	failed := 0
	var first string
	for _, item := range resp.Items {
		for _, res := range item {
			if res.Error != nil {
				failed++
				if first == "" {
					first = fmt.Sprintf("%s: %s: %s", res.ID, res.Error.Type, res.Error.Reason)
				}
			}
		}
	}
	return fmt.Errorf("bulk upsert: %d of %d records failed, first: %s", failed, len(records), first)
}

// Query 执行带过滤的 k-NN 检索。
// lucene 引擎的 cosinesimil 分数为 (1+cos)/2，此处换算回余弦相似度。
func (o *OpenSearch) Query(ctx context.Context, req *QueryRequest) ([]*Match, error) {
	filter, err := o.filterClauses(req.Namespace, req.Filter)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"size":    req.TopK,
		"_source": map[string]any{"excludes": []string{osFieldEmbedding}},
		"query": map[string]any{
			"knn": map[string]any{
				osFieldEmbedding: map[string]any{
					"vector": req.Vector,
					"k":      req.TopK,
					"filter": map[string]any{"bool": map[string]any{"filter": filter}},
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float32    `json:"_score"`
				Source osDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := o.client.Do(ctx, opensearchapi.SearchRequest{Index: []string{o.index}, Body: bytes.NewReader(body)}, &resp); err != nil {
		return nil, err
	}

	out := make([]*Match, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		id := h.Source.RecordID
		if id == "" {
			id = splitCompositeID(req.Namespace, h.ID)
		}
		md := h.Source.Metadata
		if md == nil {
			md = Metadata{}
		}
		out = append(out, &Match{ID: id, Score: float32(textutil.CosineFromUnitScore(float64(h.Score))), Metadata: md})
	}
	return out, nil
}

// Fetch 通过 _mget 读取记录，结果顺序与 ids 一致。
func (o *OpenSearch) Fetch(ctx context.Context, namespace string, ids []string) ([]*Record, error) {
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = compositeID(namespace, id)
	}
	body, err := json.Marshal(map[string]any{"ids": keys})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Docs []struct {
			ID     string     `json:"_id"`
			Found  bool       `json:"found"`
			Source osDocument `json:"_source"`
		} `json:"docs"`
	}
	if err := o.client.Do(ctx, opensearchapi.MgetRequest{Index: o.index, Body: bytes.NewReader(body)}, &resp); err != nil {
		return nil, err
	}

	out := make([]*Record, 0, len(resp.Docs))
	for _, d := range resp.Docs {
		if !d.Found || d.Source.Namespace != namespace {
			continue
		}
		md := d.Source.Metadata
		if md == nil {
			md = Metadata{}
		}
		out = append(out, &Record{ID: splitCompositeID(namespace, d.ID), Values: d.Source.Embedding, Metadata: md})
	}
	return out, nil
}

// DeleteByFilter 通过 _delete_by_query 删除并立即刷新。
func (o *OpenSearch) DeleteByFilter(ctx context.Context, namespace string, filter Filter) (int64, error) {
	body, err := o.boolQuery(namespace, filter)
	if err != nil {
		return 0, err
	}

	refresh := true
	var resp struct {
		Deleted int64 `json:"deleted"`
	}
	req := opensearchapi.DeleteByQueryRequest{Index: []string{o.index}, Body: bytes.NewReader(body), Refresh: &refresh}
	if err := o.client.Do(ctx, req, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

// Count 返回命名空间内的文档数。
func (o *OpenSearch) Count(ctx context.Context, namespace string) (int64, error) {
	body, err := o.boolQuery(namespace, nil)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Count int64 `json:"count"`
	}
	if err := o.client.Do(ctx, opensearchapi.CountRequest{Index: []string{o.index}, Body: bytes.NewReader(body)}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// Close 是空操作，底层客户端由创建方关闭。
func (o *OpenSearch) Close() error {
	return nil
}

func (o *OpenSearch) boolQuery(namespace string, filter Filter) ([]byte, error) {
	clauses, err := o.filterClauses(namespace, filter)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{
		"query": map[string]any{"bool": map[string]any{"filter": clauses}},
	})
}

// filterClauses 将命名空间与过滤条件转换为 term/terms 子句。
func (o *OpenSearch) filterClauses(namespace string, filter Filter) ([]any, error) {
	conds, err := filter.conditions()
	if err != nil {
		return nil, err
	}

	clauses := make([]any, 0, len(conds)+1)
	clauses = append(clauses, map[string]any{"term": map[string]any{osFieldNamespace: namespace}})
	for _, c := range conds {
		field := osFieldMetadata + "." + c.key
		if c.in {
			clauses = append(clauses, map[string]any{"terms": map[string]any{field: c.values}})
		} else {
			clauses = append(clauses, map[string]any{"term": map[string]any{field: c.values[0]}})
		}
	}
	return clauses, nil
}
