package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Значения label result.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// LifecycleMetrics содержит метрики операций над заказами и товарами.
// Все методы безопасно вызывать на nil-получателе.
type LifecycleMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	stepDuration      *prometheus.HistogramVec
	partialFailures   *prometheus.CounterVec
	inFlight          prometheus.Gauge

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewLifecycleMetrics создаёт метрики в глобальном регистре Prometheus.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegisterer создаёт метрики в заданном регистре.
func NewLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	return &LifecycleMetrics{
		operations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderstream_operations_total",
			Help: "Total number of order and product operations grouped by result.",
		}, []string{"operation", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderstream_operation_duration_seconds",
			Help:    "Duration of order and product operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		stepDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "orderstream_step_duration_seconds",
			Help:    "Duration of individual steps of multi-step operations in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"step"}),
		partialFailures: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "orderstream_partially_applied_total",
			Help: "Multi-step operations that failed after at least one step was already persisted.",
		}, []string{"operation"}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "orderstream_operations_in_flight",
			Help: "Number of operations currently being executed.",
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstream_timeline_events_total",
			Help: "Total number of order timeline events recorded.",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "orderstream_outbox_events_total",
			Help: "Total number of events enqueued to the outbox.",
		}),
	}
}

// StartOperation отмечает начало операции и возвращает функцию завершения,
// которая фиксирует результат и длительность.
func (m *LifecycleMetrics) StartOperation(operation string) func(err error) {
	if m == nil {
		return func(error) {}
	}

	start := time.Now()
	m.inFlight.Inc()
	return func(err error) {
		m.inFlight.Dec()
		result := ResultOK
		if err != nil {
			result = ResultFailed
		}
		m.operations.WithLabelValues(operation, result).Inc()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordStepDuration записывает время выполнения шага.
func (m *LifecycleMetrics) RecordStepDuration(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordPartiallyApplied фиксирует операцию, прерванную после частичного применения.
func (m *LifecycleMetrics) RecordPartiallyApplied(operation string) {
	if m == nil {
		return
	}
	m.partialFailures.WithLabelValues(operation).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}
