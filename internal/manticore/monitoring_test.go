package manticore

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector_RecordRequest(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRequest("search", 100*time.Millisecond, nil)
	mc.RecordRequest("search", 300*time.Millisecond, nil)
	mc.RecordRequest("bulk", 200*time.Millisecond, errors.New("connection refused"))

	m := mc.GetMetrics()
	assert.EqualValues(t, 3, m.RequestCount)
	assert.EqualValues(t, 2, m.SuccessCount)
	assert.EqualValues(t, 1, m.ErrorCount)
	assert.InDelta(t, 66.67, m.SuccessRate, 0.01)
	assert.Equal(t, 200*time.Millisecond, m.AverageResponseTime)
	assert.EqualValues(t, 2, m.OperationTypes["search"])
	assert.EqualValues(t, 1, m.OperationTypes["bulk"])
	assert.EqualValues(t, 1, m.ErrorTypes["connection_refused"])
	assert.False(t, m.LastOperationTime.IsZero())
}

func TestMetricsCollector_Counters(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordBulkOperation(100)
	mc.RecordBulkOperation(50)
	mc.RecordSearchOperation()
	mc.RecordSchemaOperation()
	mc.RecordSchemaOperation()
	mc.RecordStatusOperation()
	mc.RecordCircuitBreakerOpen()
	mc.RecordCircuitBreakerClose()

	m := mc.GetMetrics()
	assert.EqualValues(t, 2, m.BulkOperations)
	assert.EqualValues(t, 150, m.BulkDocumentsIndexed)
	assert.EqualValues(t, 1, m.SearchOperations)
	assert.EqualValues(t, 2, m.SchemaOperations)
	assert.EqualValues(t, 1, m.StatusOperations)
	assert.EqualValues(t, 1, m.CircuitBreakerOpens)
	assert.EqualValues(t, 1, m.CircuitBreakerCloses)
}

func TestMetricsCollector_SnapshotIsCopy(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRequest("search", time.Millisecond, nil)

	m := mc.GetMetrics()
	m.OperationTypes["search"] = 99

	assert.EqualValues(t, 1, mc.GetMetrics().OperationTypes["search"])
}

func TestMetricsCollector_KeepsLastSamples(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < 150; i++ {
		mc.RecordRequest("search", time.Duration(i)*time.Millisecond, nil)
	}

	p := mc.GetMetrics().ResponseTimePercentiles["search"]
	// samples 50..149 remain
	assert.Equal(t, 100*time.Millisecond, p.P50)
	assert.Equal(t, 145*time.Millisecond, p.P95)
	assert.Equal(t, 149*time.Millisecond, p.P99)
}

func TestMetricsCircuitBreakerCallback(t *testing.T) {
	mc := NewMetricsCollector()
	cb := &metricsCircuitBreakerCallback{collector: mc}

	cb.OnStateChange(CircuitBreakerClosed, CircuitBreakerOpen, "failures")
	cb.OnStateChange(CircuitBreakerOpen, CircuitBreakerHalfOpen, "timeout")
	cb.OnStateChange(CircuitBreakerHalfOpen, CircuitBreakerClosed, "recovered")

	m := mc.GetMetrics()
	assert.EqualValues(t, 1, m.CircuitBreakerOpens)
	assert.EqualValues(t, 1, m.CircuitBreakerCloses)
}

func TestCalculatePercentiles(t *testing.T) {
	assert.Equal(t, ResponseTimePercentiles{}, calculatePercentiles(nil))

	times := []time.Duration{
		50 * time.Millisecond, 10 * time.Millisecond, 40 * time.Millisecond,
		20 * time.Millisecond, 30 * time.Millisecond,
	}
	p := calculatePercentiles(times)
	assert.Equal(t, 30*time.Millisecond, p.P50)
	assert.Equal(t, 50*time.Millisecond, p.P95)
	assert.Equal(t, 50*time.Millisecond, p.P99)
	assert.Equal(t, 50*time.Millisecond, times[0], "input must not be reordered")
}

func TestMetricsCollector_LogMetrics(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRequest("search", 10*time.Millisecond, nil)
	mc.RecordRequest("bulk", 10*time.Millisecond, &ManticoreError{ErrorType: ErrorTypeHTTPServer})

	var buf bytes.Buffer
	mc.LogMetrics(zerolog.New(&buf))

	out := buf.String()
	assert.Contains(t, out, `"requests":2`)
	assert.Contains(t, out, `"http_server":1`)
	assert.Contains(t, out, "manticore client metrics")
}
