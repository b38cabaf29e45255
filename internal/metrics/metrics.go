// Package metrics provides metrics collection and reporting for the alarm
// pipeline and the operator server.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const namespace = "credit_alarms"

// Prometheus metric labels
const (
	labelService   = "service"
	labelOperation = "operation"
	labelOutcome   = "outcome"
	labelStage     = "stage"
	labelResource  = "resource"
	labelCode      = "code"
	labelMetric    = "metric"
	labelTool      = "tool"
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics tracks operational metrics with both internal counters and
// Prometheus metrics. All methods are safe on a nil receiver.
type Metrics struct {
	// AWS call metrics (internal atomic counters for fast access)
	totalCalls      atomic.Uint64
	successfulCalls atomic.Uint64
	failedCalls     atomic.Uint64
	retriedCalls    atomic.Uint64

	// Latency tracking
	totalLatency atomic.Int64 // microseconds
	latencyCount atomic.Uint64
	maxLatency   atomic.Int64
	minLatency   atomic.Int64

	rateLimitHits atomic.Uint64

	// Pipeline counters
	countersMu     sync.RWMutex
	stageOutcomes  map[string]uint64 // stage/outcome
	alarmOps       map[string]uint64 // resource/operation/outcome
	errorsByCode   map[string]uint64
	notifications  map[string]uint64
	toolUsage      map[string]uint64
	toolErrors     map[string]uint64
	reconcileTotal map[string]uint64

	logger   *zap.Logger
	registry *prometheus.Registry

	promCalls          *prometheus.CounterVec
	promCallLatency    *prometheus.HistogramVec
	promRetries        *prometheus.CounterVec
	promRateLimitHits  prometheus.Counter
	promErrorsByCode   *prometheus.CounterVec
	promStageOutcomes  *prometheus.CounterVec
	promStageLatency   *prometheus.HistogramVec
	promAlarmOps       *prometheus.CounterVec
	promNotifications  *prometheus.CounterVec
	promDiagnostics    *prometheus.CounterVec
	promReconcile      *prometheus.CounterVec
	promToolCalls      *prometheus.CounterVec
	promToolErrors     *prometheus.CounterVec
	promToolLatency    *prometheus.HistogramVec
}

// New creates a metrics tracker registered on its own registry
func New(logger *zap.Logger) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		stageOutcomes:  make(map[string]uint64),
		alarmOps:       make(map[string]uint64),
		errorsByCode:   make(map[string]uint64),
		notifications:  make(map[string]uint64),
		toolUsage:      make(map[string]uint64),
		toolErrors:     make(map[string]uint64),
		reconcileTotal: make(map[string]uint64),
		logger:         logger,
		registry:       registry,

		promCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aws_calls_total",
			Help:      "Total number of AWS API calls, labeled by service, operation and outcome",
		}, []string{labelService, labelOperation, labelOutcome}),
		promCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aws_call_latency_seconds",
			Help:      "AWS API call latency in seconds, including retries",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{labelService}),
		promRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aws_call_retries_total",
			Help:      "Total number of retried AWS API calls",
		}, []string{labelService, labelOperation}),
		promRateLimitHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total number of calls that waited on the client rate limiter",
		}),
		promErrorsByCode: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors by structured error code",
		}, []string{labelCode}),
		promStageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_invocations_total",
			Help:      "Pipeline stage invocations, labeled by stage and outcome",
		}, []string{labelStage, labelOutcome}),
		promStageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{labelStage}),
		promAlarmOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarm_operations_total",
			Help:      "Alarm mutations, labeled by resource, operation and outcome",
		}, []string{labelResource, labelOperation, labelOutcome}),
		promNotifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Composite alarm notifications, labeled by final state",
		}, []string{labelOutcome}),
		promDiagnostics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostic_images_total",
			Help:      "Diagnostic chart generation attempts, labeled by metric and outcome",
		}, []string{labelMetric, labelOutcome}),
		promReconcile: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_events_total",
			Help:      "Per-instance events emitted by bulk reconciliation",
		}, []string{labelOperation, labelOutcome}),
		promToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of operator tool calls, labeled by tool name",
		}, []string{labelTool}),
		promToolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Total number of operator tool errors, labeled by tool name",
		}, []string{labelTool}),
		promToolLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_latency_seconds",
			Help:      "Operator tool latency in seconds, labeled by tool name",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{labelTool}),
	}

	m.minLatency.Store(int64(time.Hour))
	return m
}

// Registry returns the registry holding every metric of this tracker
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAWSCall records one logical AWS call (after retries)
func (m *Metrics) RecordAWSCall(service, operation string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	m.totalCalls.Add(1)
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		m.failedCalls.Add(1)
	} else {
		m.successfulCalls.Add(1)
	}
	m.promCalls.WithLabelValues(service, operation, outcome).Inc()
	m.promCallLatency.WithLabelValues(service).Observe(latency.Seconds())
	m.recordLatency(latency)
}

// RecordRetry records a retry attempt
func (m *Metrics) RecordRetry(service, operation string) {
	if m == nil {
		return
	}
	m.retriedCalls.Add(1)
	m.promRetries.WithLabelValues(service, operation).Inc()
}

// RecordRateLimitHit records a rate limit wait
func (m *Metrics) RecordRateLimitHit() {
	if m == nil {
		return
	}
	m.rateLimitHits.Add(1)
	m.promRateLimitHits.Inc()
}

// RecordError counts an error by structured code
func (m *Metrics) RecordError(code string) {
	if m == nil || code == "" {
		return
	}
	m.countersMu.Lock()
	m.errorsByCode[code]++
	m.countersMu.Unlock()
	m.promErrorsByCode.WithLabelValues(code).Inc()
}

// RecordStage records one stage invocation
func (m *Metrics) RecordStage(stage string, latency time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOf(err)
	m.countersMu.Lock()
	m.stageOutcomes[stage+"/"+outcome]++
	m.countersMu.Unlock()
	m.promStageOutcomes.WithLabelValues(stage, outcome).Inc()
	m.promStageLatency.WithLabelValues(stage).Observe(latency.Seconds())
}

// RecordAlarmOperation records one alarm mutation
func (m *Metrics) RecordAlarmOperation(resource, operation string, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOf(err)
	m.countersMu.Lock()
	m.alarmOps[resource+"/"+operation+"/"+outcome]++
	m.countersMu.Unlock()
	m.promAlarmOps.WithLabelValues(resource, operation, outcome).Inc()
}

// RecordNotification records the final state of one notification
func (m *Metrics) RecordNotification(state string) {
	if m == nil {
		return
	}
	m.countersMu.Lock()
	m.notifications[state]++
	m.countersMu.Unlock()
	m.promNotifications.WithLabelValues(state).Inc()
}

// RecordDiagnostic records one chart generation attempt
func (m *Metrics) RecordDiagnostic(metric string, err error) {
	if m == nil {
		return
	}
	m.promDiagnostics.WithLabelValues(metric, outcomeOf(err)).Inc()
}

// RecordReconcileEvent records one bulk reconciliation emission
func (m *Metrics) RecordReconcileEvent(operation string, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOf(err)
	m.countersMu.Lock()
	m.reconcileTotal[operation+"/"+outcome]++
	m.countersMu.Unlock()
	m.promReconcile.WithLabelValues(operation, outcome).Inc()
}

// RecordToolExecution records operator tool usage
func (m *Metrics) RecordToolExecution(toolName string, success bool, latency time.Duration) {
	if m == nil {
		return
	}
	m.countersMu.Lock()
	m.toolUsage[toolName]++
	if !success {
		m.toolErrors[toolName]++
	}
	m.countersMu.Unlock()

	m.promToolCalls.WithLabelValues(toolName).Inc()
	m.promToolLatency.WithLabelValues(toolName).Observe(latency.Seconds())
	if !success {
		m.promToolErrors.WithLabelValues(toolName).Inc()
	}
}

func outcomeOf(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

func (m *Metrics) recordLatency(latency time.Duration) {
	latencyUs := latency.Microseconds()

	m.totalLatency.Add(latencyUs)
	m.latencyCount.Add(1)

	for {
		currentMax := m.maxLatency.Load()
		if latencyUs <= currentMax {
			break
		}
		if m.maxLatency.CompareAndSwap(currentMax, latencyUs) {
			break
		}
	}

	for {
		currentMin := m.minLatency.Load()
		if latencyUs >= currentMin {
			break
		}
		if m.minLatency.CompareAndSwap(currentMin, latencyUs) {
			break
		}
	}
}

// Stats represents current metrics
type Stats struct {
	TotalCalls      uint64            `json:"total_aws_calls"`
	SuccessfulCalls uint64            `json:"successful_aws_calls"`
	FailedCalls     uint64            `json:"failed_aws_calls"`
	RetriedCalls    uint64            `json:"retried_aws_calls"`
	RateLimitHits   uint64            `json:"rate_limit_hits"`
	AverageLatency  time.Duration     `json:"average_latency"`
	MaxLatency      time.Duration     `json:"max_latency"`
	MinLatency      time.Duration     `json:"min_latency"`
	StageOutcomes   map[string]uint64 `json:"stage_outcomes"`
	AlarmOperations map[string]uint64 `json:"alarm_operations"`
	ErrorsByCode    map[string]uint64 `json:"errors_by_code"`
	Notifications   map[string]uint64 `json:"notifications"`
	Reconcile       map[string]uint64 `json:"reconcile"`
	ToolUsage       map[string]uint64 `json:"tool_usage"`
	ToolErrors      map[string]uint64 `json:"tool_errors"`
}

// GetStats returns current statistics
func (m *Metrics) GetStats() Stats {
	if m == nil {
		return Stats{}
	}
	m.countersMu.RLock()
	stats := Stats{
		StageOutcomes:   copyCounts(m.stageOutcomes),
		AlarmOperations: copyCounts(m.alarmOps),
		ErrorsByCode:    copyCounts(m.errorsByCode),
		Notifications:   copyCounts(m.notifications),
		Reconcile:       copyCounts(m.reconcileTotal),
		ToolUsage:       copyCounts(m.toolUsage),
		ToolErrors:      copyCounts(m.toolErrors),
	}
	m.countersMu.RUnlock()

	stats.TotalCalls = m.totalCalls.Load()
	stats.SuccessfulCalls = m.successfulCalls.Load()
	stats.FailedCalls = m.failedCalls.Load()
	stats.RetriedCalls = m.retriedCalls.Load()
	stats.RateLimitHits = m.rateLimitHits.Load()

	if count := m.latencyCount.Load(); count > 0 {
		avgLatencyMicros := float64(m.totalLatency.Load()) / float64(count)
		stats.AverageLatency = time.Duration(avgLatencyMicros) * time.Microsecond
		stats.MaxLatency = time.Duration(m.maxLatency.Load()) * time.Microsecond
		stats.MinLatency = time.Duration(m.minLatency.Load()) * time.Microsecond
	}
	return stats
}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// LogStats logs current statistics
func (m *Metrics) LogStats() {
	if m == nil {
		return
	}
	stats := m.GetStats()

	var errorRate float64
	if stats.TotalCalls > 0 {
		errorRate = float64(stats.FailedCalls) / float64(stats.TotalCalls) * 100
	}

	m.logger.Info("Operational metrics",
		zap.Uint64("total_aws_calls", stats.TotalCalls),
		zap.Uint64("failed_aws_calls", stats.FailedCalls),
		zap.Float64("error_rate_pct", errorRate),
		zap.Uint64("retried_aws_calls", stats.RetriedCalls),
		zap.Uint64("rate_limit_hits", stats.RateLimitHits),
		zap.Duration("avg_latency", stats.AverageLatency),
		zap.Any("stage_outcomes", stats.StageOutcomes),
		zap.Any("alarm_operations", stats.AlarmOperations),
		zap.Any("errors_by_code", stats.ErrorsByCode),
	)
}
