// Package store 定义向量索引后端抽象及其实现。
//
// 后端按命名空间隔离记录，并在构造时绑定到一个索引（集合）。
// 支持的后端：milvus（默认）、opensearch 与进程内 memory。
package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kart-io/vecstore/pkg/utils/errors"
)

// 元数据中由索引客户端写入的保留字段。
const (
	MetadataChunk = "chunk"
	MetadataHash  = "hash"
)

// IndexState 表示索引生命周期状态。
type IndexState int

const (
	// IndexAbsent 索引不存在。
	IndexAbsent IndexState = iota
	// IndexCreating 索引已创建但尚不可用。
	IndexCreating
	// IndexReady 索引可读写。
	IndexReady
)

func (s IndexState) String() string {
	switch s {
	case IndexAbsent:
		return "absent"
	case IndexCreating:
		return "creating"
	case IndexReady:
		return "ready"
	default:
		return fmt.Sprintf("IndexState(%d)", int(s))
	}
}

// Metadata 是记录附带的任意键值。
type Metadata map[string]any

// Clone 返回浅拷贝。
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String 返回 key 对应的字符串值，不存在或类型不符时返回空串。
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Record 是写入索引的一条向量记录。
type Record struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values,omitempty"`
	Metadata Metadata  `json:"metadata"`
}

// Match 是一条相似度检索命中。Score 为余弦相似度。
type Match struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// QueryRequest 描述一次检索。
type QueryRequest struct {
	Namespace string
	Vector    []float32
	TopK      int
	Filter    Filter
}

// Backend 是向量索引后端。实现必须可并发使用。
type Backend interface {
	// Name 返回后端标识。
	Name() string

	// DescribeIndex 返回绑定索引的当前状态。
	DescribeIndex(ctx context.Context) (IndexState, error)

	// CreateIndex 创建绑定索引。索引已存在时返回 nil。
	CreateIndex(ctx context.Context) error

	// Upsert 按 ID 写入或覆盖记录。
	Upsert(ctx context.Context, namespace string, records []*Record) error

	// Query 返回按相似度降序排列的至多 TopK 条命中。
	Query(ctx context.Context, req *QueryRequest) ([]*Match, error)

	// Fetch 按 ID 读取记录，缺失的 ID 被忽略。
	Fetch(ctx context.Context, namespace string, ids []string) ([]*Record, error)

	// DeleteByFilter 删除命名空间内匹配过滤条件的记录，返回删除数量。
	DeleteByFilter(ctx context.Context, namespace string, filter Filter) (int64, error)

	// Count 返回命名空间内的记录数。
	Count(ctx context.Context, namespace string) (int64, error)

	// Close 释放后端持有的资源。
	Close() error
}

// IndexNotReadyError 表示等待索引就绪超时。
type IndexNotReadyError struct {
	Index    string
	State    IndexState
	Attempts int
	Waited   time.Duration
	Cause    error
}

func (e *IndexNotReadyError) Error() string {
	msg := fmt.Sprintf("index %q not ready after %s (%d polls, last state %s)", e.Index, e.Waited.Round(time.Millisecond), e.Attempts, e.State)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *IndexNotReadyError) Unwrap() error {
	return e.Cause
}

// Is 使 errors.Is(err, errors.ErrIndexNotReady) 成立。
func (e *IndexNotReadyError) Is(target error) bool {
	var t *errors.Errno
	if stderrors.As(target, &t) {
		return t.Code == errors.ErrIndexNotReady.Code
	}
	return false
}

// compositeID 将命名空间与记录 ID 组合为后端主键，
// 使不同命名空间中的相同 ID 互不覆盖。
func compositeID(namespace, id string) string {
	return namespace + "/" + id
}

// splitCompositeID 还原 compositeID 生成的记录 ID。
func splitCompositeID(namespace, key string) string {
	prefix := namespace + "/"
	if len(key) > len(prefix) && key[:len(prefix)] == prefix {
		return key[len(prefix):]
	}
	return key
}
