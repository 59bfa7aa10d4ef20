package manticore

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MetricsCollector tracks request outcomes and latency of Manticore operations
type MetricsCollector struct {
	mu                   sync.RWMutex
	requestCount         int64
	successCount         int64
	errorCount           int64
	totalDuration        time.Duration
	circuitBreakerOpens  int64
	circuitBreakerCloses int64
	bulkOperations       int64
	bulkDocumentsIndexed int64
	searchOperations     int64
	schemaOperations     int64
	statusOperations     int64
	lastOperationTime    time.Time
	operationTypes       map[string]int64
	errorTypes           map[string]int64
	responseTimes        map[string][]time.Duration
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operationTypes: make(map[string]int64),
		errorTypes:     make(map[string]int64),
		responseTimes:  make(map[string][]time.Duration),
	}
}

// RecordRequest records a request with its duration and outcome
func (mc *MetricsCollector) RecordRequest(operation string, duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.requestCount++
	mc.totalDuration += duration
	mc.lastOperationTime = time.Now()
	mc.operationTypes[operation]++

	times := append(mc.responseTimes[operation], duration)
	// keep the last 100 samples per operation
	if len(times) > 100 {
		times = times[len(times)-100:]
	}
	mc.responseTimes[operation] = times

	if err == nil {
		mc.successCount++
		return
	}
	mc.errorCount++
	mc.errorTypes[errorTypeOf(err).String()]++
}

// RecordCircuitBreakerOpen records a circuit breaker opening
func (mc *MetricsCollector) RecordCircuitBreakerOpen() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.circuitBreakerOpens++
}

// RecordCircuitBreakerClose records a circuit breaker closing
func (mc *MetricsCollector) RecordCircuitBreakerClose() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.circuitBreakerCloses++
}

// RecordBulkOperation records a bulk upload with its document count
func (mc *MetricsCollector) RecordBulkOperation(documentCount int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.bulkOperations++
	mc.bulkDocumentsIndexed += int64(documentCount)
}

// RecordSearchOperation records a search operation
func (mc *MetricsCollector) RecordSearchOperation() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.searchOperations++
}

// RecordSchemaOperation records a create or drop
func (mc *MetricsCollector) RecordSchemaOperation() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.schemaOperations++
}

// RecordStatusOperation records a count/existence lookup
func (mc *MetricsCollector) RecordStatusOperation() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.statusOperations++
}

// Metrics is a point-in-time snapshot of the collector
type Metrics struct {
	RequestCount            int64                              `json:"request_count"`
	SuccessCount            int64                              `json:"success_count"`
	ErrorCount              int64                              `json:"error_count"`
	SuccessRate             float64                            `json:"success_rate"`
	AverageResponseTime     time.Duration                      `json:"average_response_time"`
	CircuitBreakerOpens     int64                              `json:"circuit_breaker_opens"`
	CircuitBreakerCloses    int64                              `json:"circuit_breaker_closes"`
	BulkOperations          int64                              `json:"bulk_operations"`
	BulkDocumentsIndexed    int64                              `json:"bulk_documents_indexed"`
	SearchOperations        int64                              `json:"search_operations"`
	SchemaOperations        int64                              `json:"schema_operations"`
	StatusOperations        int64                              `json:"status_operations"`
	LastOperationTime       time.Time                          `json:"last_operation_time"`
	OperationTypes          map[string]int64                   `json:"operation_types"`
	ErrorTypes              map[string]int64                   `json:"error_types"`
	ResponseTimePercentiles map[string]ResponseTimePercentiles `json:"response_time_percentiles"`
}

// ResponseTimePercentiles represents response time percentiles for an operation
type ResponseTimePercentiles struct {
	P50 time.Duration `json:"p50"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// GetMetrics returns current metrics snapshot
func (mc *MetricsCollector) GetMetrics() Metrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	m := Metrics{
		RequestCount:            mc.requestCount,
		SuccessCount:            mc.successCount,
		ErrorCount:              mc.errorCount,
		CircuitBreakerOpens:     mc.circuitBreakerOpens,
		CircuitBreakerCloses:    mc.circuitBreakerCloses,
		BulkOperations:          mc.bulkOperations,
		BulkDocumentsIndexed:    mc.bulkDocumentsIndexed,
		SearchOperations:        mc.searchOperations,
		SchemaOperations:        mc.schemaOperations,
		StatusOperations:        mc.statusOperations,
		LastOperationTime:       mc.lastOperationTime,
		OperationTypes:          make(map[string]int64, len(mc.operationTypes)),
		ErrorTypes:              make(map[string]int64, len(mc.errorTypes)),
		ResponseTimePercentiles: make(map[string]ResponseTimePercentiles, len(mc.responseTimes)),
	}

	if mc.requestCount > 0 {
		m.AverageResponseTime = mc.totalDuration / time.Duration(mc.requestCount)
		m.SuccessRate = float64(mc.successCount) / float64(mc.requestCount) * 100
	}
	for k, v := range mc.operationTypes {
		m.OperationTypes[k] = v
	}
	for k, v := range mc.errorTypes {
		m.ErrorTypes[k] = v
	}
	for op, times := range mc.responseTimes {
		if len(times) > 0 {
			m.ResponseTimePercentiles[op] = calculatePercentiles(times)
		}
	}
	return m
}

// LogMetrics writes the current snapshot to log
func (mc *MetricsCollector) LogMetrics(log zerolog.Logger) {
	m := mc.GetMetrics()

	ev := log.Info().
		Int64("requests", m.RequestCount).
		Int64("successes", m.SuccessCount).
		Int64("errors", m.ErrorCount).
		Float64("success_rate", m.SuccessRate).
		Dur("avg_response_time", m.AverageResponseTime).
		Int64("bulk_operations", m.BulkOperations).
		Int64("bulk_documents", m.BulkDocumentsIndexed).
		Int64("searches", m.SearchOperations).
		Int64("schema_operations", m.SchemaOperations).
		Int64("status_operations", m.StatusOperations)

	if m.CircuitBreakerOpens > 0 || m.CircuitBreakerCloses > 0 {
		ev = ev.Int64("cb_opens", m.CircuitBreakerOpens).Int64("cb_closes", m.CircuitBreakerCloses)
	}
	if len(m.ErrorTypes) > 0 {
		errs := zerolog.Dict()
		for k, v := range m.ErrorTypes {
			errs = errs.Int64(k, v)
		}
		ev = ev.Dict("error_types", errs)
	}
	ev.Msg("manticore client metrics")
}

// calculatePercentiles calculates response time percentiles
func calculatePercentiles(times []time.Duration) ResponseTimePercentiles {
	if len(times) == 0 {
		return ResponseTimePercentiles{}
	}

	sorted := make([]time.Duration, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	at := func(p float64) time.Duration {
		idx := int(float64(len(sorted)) * p)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}

	return ResponseTimePercentiles{
		P50: at(0.5),
		P95: at(0.95),
		P99: at(0.99),
	}
}

// errorTypeOf extracts the classification of err, if any
func errorTypeOf(err error) ErrorType {
	classified := NewErrorClassifier().ClassifyError(err, "", "")
	switch e := classified.(type) {
	case *ManticoreError:
		return e.ErrorType
	case *ConnectionError:
		return e.ErrorType
	}
	return ErrorTypeUnknown
}

// metricsCircuitBreakerCallback feeds breaker transitions into the collector
type metricsCircuitBreakerCallback struct {
	collector *MetricsCollector
}

// OnStateChange implements CircuitBreakerCallback
func (c *metricsCircuitBreakerCallback) OnStateChange(oldState, newState CircuitBreakerState, reason string) {
	switch newState {
	case CircuitBreakerOpen:
		c.collector.RecordCircuitBreakerOpen()
	case CircuitBreakerClosed:
		c.collector.RecordCircuitBreakerClose()
	}
}
