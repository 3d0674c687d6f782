package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/vecstore/pkg/component/milvus"
	"github.com/kart-io/vecstore/pkg/utils/json"
)

func init() {
	Register(ProviderMilvus, func(deps *Deps) (Backend, error) {
		if deps.Milvus == nil {
			return nil, fmt.Errorf("milvus client is required for provider %q", ProviderMilvus)
		}
		return NewMilvus(deps.Milvus, deps.IndexName, deps.Dimension), nil
	})
}

// Milvus 基于 Milvus 集合实现 Backend。
// 命名空间字段作为分区键，主键为 "<namespace>/<id>"。
type Milvus struct {
	client     *milvus.Client
	collection string
	dimension  int
}

var _ Backend = (*Milvus)(nil)

// NewMilvus 创建绑定到集合的 Milvus 后端。
func NewMilvus(client *milvus.Client, collection string, dimension int) *Milvus {
	return &Milvus{client: client, collection: collection, dimension: dimension}
}

// Name 返回后端标识。
func (m *Milvus) Name() string {
	return ProviderMilvus
}

// DescribeIndex 将集合加载状态映射为索引状态。
// 已存在但未加载的集合会被重新请求加载。
func (m *Milvus) DescribeIndex(ctx context.Context) (IndexState, error) {
	exists, err := m.client.HasCollection(ctx, m.collection)
	if err != nil {
		return IndexAbsent, err
	}
	if !exists {
		return IndexAbsent, nil
	}

	state, err := m.client.LoadState(ctx, m.collection)
	if err != nil {
		return IndexCreating, err
	}

	idx, needsLoad := indexStateOf(state)
	if needsLoad {
		logger.Debugw("集合未加载，请求加载", "collection", m.collection)
		if err := m.client.Load(ctx, m.collection); err != nil {
			return IndexCreating, err
		}
	}
	return idx, nil
}

// indexStateOf 将加载状态映射为索引状态，needsLoad 表示需要请求加载。
// LoadStateUnloading 与服务端的 "集合不存在" 状态码相同。
func indexStateOf(state entity.LoadStateCode) (idx IndexState, needsLoad bool) {
	switch state {
	case entity.LoadStateLoaded:
		return IndexReady, false
	case entity.LoadStateUnloading:
		return IndexAbsent, false
	case entity.LoadStateNotLoad:
		return IndexCreating, true
	default:
		return IndexCreating, false
	}
}

// CreateIndex 创建集合、HNSW 索引并请求加载。
func (m *Milvus) CreateIndex(ctx context.Context) error {
	return m.client.CreateCollection(ctx, &milvus.CollectionSchema{
		Name:        m.collection,
		Description: "vector index records",
		Dimension:   m.dimension,
	})
}

// Upsert 写入记录。
func (m *Milvus) Upsert(ctx context.Context, namespace string, records []*Record) error {
	rows := make([]milvus.Row, len(records))
	for i, r := range records {
		if len(r.Values) != m.dimension {
			return fmt.Errorf("record %s has dimension %d, want %d", r.ID, len(r.Values), m.dimension)
		}
		md, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata of %s: %w", r.ID, err)
		}
		rows[i] = milvus.Row{
			ID:        compositeID(namespace, r.ID),
			Namespace: namespace,
			Embedding: r.Values,
			Metadata:  md,
		}
	}
	return m.client.Upsert(ctx, m.collection, rows)
}

// Query 在命名空间内检索。
func (m *Milvus) Query(ctx context.Context, req *QueryRequest) ([]*Match, error) {
	conds, err := req.Filter.conditions()
	if err != nil {
		return nil, err
	}

	hits, err := m.client.Search(ctx, m.collection, req.Vector, req.TopK, milvusExpr(req.Namespace, conds))
	if err != nil {
		return nil, err
	}

	out := make([]*Match, 0, len(hits))
	for _, h := range hits {
		md, err := decodeMetadata(h.Metadata)
		if err != nil {
			return nil, err
		}
		out = append(out, &Match{
			ID:       splitCompositeID(req.Namespace, h.ID),
			Score:    h.Score,
			Metadata: md,
		})
	}
	return out, nil
}

// Fetch 按 ID 读取记录，结果顺序与 ids 一致。
func (m *Milvus) Fetch(ctx context.Context, namespace string, ids []string) ([]*Record, error) {
	if len(ids) == 0 {
		return []*Record{}, nil
	}

	keys := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = compositeID(namespace, id)
	}
	expr := milvusExpr(namespace, nil) + " and " + milvus.FieldID + " in " + milvusList(keys)

	rows, err := m.client.Query(ctx, m.collection, expr)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Record, len(rows))
	for _, row := range rows {
		md, err := decodeMetadata(row.Metadata)
		if err != nil {
			return nil, err
		}
		id := splitCompositeID(namespace, row.ID)
		byID[id] = &Record{ID: id, Values: row.Embedding, Metadata: md}
	}

	out := make([]*Record, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
			delete(byID, id)
		}
	}
	return out, nil
}

// DeleteByFilter 删除匹配的记录。
func (m *Milvus) DeleteByFilter(ctx context.Context, namespace string, filter Filter) (int64, error) {
	conds, err := filter.conditions()
	if err != nil {
		return 0, err
	}
	return m.client.Delete(ctx, m.collection, milvusExpr(namespace, conds))
}

// Count 返回命名空间内的记录数。
func (m *Milvus) Count(ctx context.Context, namespace string) (int64, error) {
	return m.client.Count(ctx, m.collection, milvusExpr(namespace, nil))
}

// Close 是空操作，底层客户端由创建方关闭。
func (m *Milvus) Close() error {
	return nil
}

// milvusExpr 生成布尔表达式：命名空间相等，且每个元数据条件成立。
func milvusExpr(namespace string, conds []condition) string {
	parts := make([]string, 0, len(conds)+1)
	parts = append(parts, milvus.FieldNamespace+" == "+strconv.Quote(namespace))
	for _, c := range conds {
		field := milvus.FieldMetadata + "[" + strconv.Quote(c.key) + "]"
		if c.in {
			parts = append(parts, field+" in "+milvusList(c.values))
		} else {
			parts = append(parts, field+" == "+milvusLiteral(c.values[0]))
		}
	}
	return strings.Join(parts, " and ")
}

func milvusList(values []any) string {
	lits := make([]string, len(values))
	for i, v := range values {
		lits[i] = milvusLiteral(v)
	}
	return "[" + strings.Join(lits, ", ") + "]"
}

func milvusLiteral(v any) string {
	switch vv := v.(type) {
	case string:
		return strconv.Quote(vv)
	case bool:
		return strconv.FormatBool(vv)
	case int64:
		return strconv.FormatInt(vv, 10)
	case float64:
		return strconv.FormatFloat(vv, 'g', -1, 64)
	default:
		return strconv.Quote(fmt.Sprint(vv))
	}
}

func decodeMetadata(raw []byte) (Metadata, error) {
	md := Metadata{}
	if len(raw) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}
