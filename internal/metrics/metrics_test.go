package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordAWSCall(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordAWSCall("cloudwatch", "PutMetricAlarm", 10*time.Millisecond, nil)
	m.RecordAWSCall("cloudwatch", "PutMetricAlarm", 30*time.Millisecond, errors.New("throttled"))
	m.RecordRetry("cloudwatch", "PutMetricAlarm")

	stats := m.GetStats()
	assert.Equal(t, uint64(2), stats.TotalCalls)
	assert.Equal(t, uint64(1), stats.FailedCalls)
	assert.Equal(t, uint64(1), stats.RetriedCalls)
	assert.Equal(t, 20*time.Millisecond, stats.AverageLatency)
	assert.Equal(t, 30*time.Millisecond, stats.MaxLatency)
	assert.Equal(t, 10*time.Millisecond, stats.MinLatency)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.promCalls.WithLabelValues("cloudwatch", "PutMetricAlarm", OutcomeFailure)))
}

func TestPipelineCounters(t *testing.T) {
	m := New(zap.NewNop())

	m.RecordStage("create-credit-alarm", time.Second, nil)
	m.RecordStage("create-credit-alarm", time.Second, errors.New("x"))
	m.RecordAlarmOperation("metric_alarm", "upsert", nil)
	m.RecordNotification("dispatched")
	m.RecordReconcileEvent("create", nil)
	m.RecordError("ALARM_STORE")
	m.RecordToolExecution("preview_thresholds", false, time.Millisecond)

	stats := m.GetStats()
	assert.Equal(t, uint64(1), stats.StageOutcomes["create-credit-alarm/success"])
	assert.Equal(t, uint64(1), stats.StageOutcomes["create-credit-alarm/failure"])
	assert.Equal(t, uint64(1), stats.AlarmOperations["metric_alarm/upsert/success"])
	assert.Equal(t, uint64(1), stats.Notifications["dispatched"])
	assert.Equal(t, uint64(1), stats.Reconcile["create/success"])
	assert.Equal(t, uint64(1), stats.ErrorsByCode["ALARM_STORE"])
	assert.Equal(t, uint64(1), stats.ToolErrors["preview_thresholds"])
}

func TestIndependentRegistries(t *testing.T) {
	a := New(zap.NewNop())
	b := New(zap.NewNop())

	a.RecordNotification("suppressed")

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.promNotifications.WithLabelValues("suppressed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordAWSCall("ec2", "DescribeInstances", time.Millisecond, nil)
	m.RecordStage("notify", time.Millisecond, nil)
	m.LogStats()
	assert.Equal(t, Stats{}, m.GetStats())
	assert.Nil(t, m.Registry())
}
