// Package metrics 提供向量索引服务的业务指标收集。
package metrics

import (
	"bytes"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "vector_index"

// 操作名称。
const (
	OpInitialize = "initialize"
	OpQuery      = "query"
	OpUpsert     = "upsert"
	OpDelete     = "delete"
	OpFetch      = "fetch"
	OpProcess    = "process"
)

// VectorMetrics 向量索引服务业务指标。所有方法对 nil 接收者安全。
type VectorMetrics struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	batches       *prometheus.CounterVec
	records       prometheus.Counter
	embeddedTexts prometheus.Counter
	queryMatches  prometheus.Histogram
	indexCreates  prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *VectorMetrics
)

// Default 返回进程级指标实例。
func Default() *VectorMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New 创建使用私有注册表的指标实例。
func New() *VectorMetrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &VectorMetrics{
		registry: reg,
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of index operations by outcome.",
		}, []string{"operation", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Index operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"operation"}),
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_batches_total",
			Help:      "Write batches by outcome.",
		}, []string{"status"}),
		records: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Records written to the index.",
		}),
		embeddedTexts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedded_texts_total",
			Help:      "Texts sent to the embedding provider.",
		}),
		queryMatches: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_matches",
			Help:      "Matches returned per query after score filtering.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		indexCreates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_creates_total",
			Help:      "Index creation requests issued.",
		}),
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveOperation 记录一次操作的结果与耗时。
func (m *VectorMetrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, status(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordBatch 记录一个写入批次；成功时累计写入记录数。
func (m *VectorMetrics) RecordBatch(records int, err error) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.records.Add(float64(records))
	}
}

// RecordEmbedding 记录送往嵌入服务的文本数。
func (m *VectorMetrics) RecordEmbedding(texts int) {
	if m == nil {
		return
	}
	m.embeddedTexts.Add(float64(texts))
}

// RecordQueryMatches 记录单次查询返回的命中数。
func (m *VectorMetrics) RecordQueryMatches(n int) {
	if m == nil {
		return
	}
	m.queryMatches.Observe(float64(n))
}

// RecordIndexCreate 记录一次建索引请求。
func (m *VectorMetrics) RecordIndexCreate() {
	if m == nil {
		return
	}
	m.indexCreates.Inc()
}

// Registry 返回私有注册表。
func (m *VectorMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Export 导出 Prometheus 文本格式指标。
func (m *VectorMetrics) Export() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
