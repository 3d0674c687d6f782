package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorMetrics(t *testing.T) {
	m := New()

	m.ObserveOperation(OpQuery, time.Now(), nil)
	m.ObserveOperation(OpQuery, time.Now(), errors.New("boom"))
	m.RecordBatch(100, nil)
	m.RecordBatch(100, errors.New("boom"))
	m.RecordBatch(20, nil)
	m.RecordEmbedding(7)
	m.RecordQueryMatches(3)
	m.RecordIndexCreate()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(OpQuery, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues(OpQuery, "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches.WithLabelValues("success")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.records))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.embeddedTexts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.indexCreates))

	out, err := m.Export()
	require.NoError(t, err)
	assert.Contains(t, out, "vector_index_operations_total")
	assert.Contains(t, out, `vector_index_records_upserted_total 120`)
	assert.Contains(t, out, "vector_index_operation_duration_seconds_bucket")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *VectorMetrics
	assert.NotPanics(t, func() {
		m.ObserveOperation(OpUpsert, time.Now(), nil)
		m.RecordBatch(1, nil)
		m.RecordEmbedding(1)
		m.RecordQueryMatches(1)
		m.RecordIndexCreate()
	})
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
