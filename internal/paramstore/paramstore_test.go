package paramstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/audit"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

type fakeParams struct {
	values map[string]string
	puts   []string
	putErr error
}

func (f *fakeParams) GetParameters(_ context.Context, names []string) (map[string]string, error) {
	out := map[string]string{}
	for _, n := range names {
		v, ok := f.values[n]
		if !ok {
			return nil, apperrors.NewParameterStore(n, fmt.Errorf("not found"))
		}
		out[n] = v
	}
	return out, nil
}

func (f *fakeParams) PutParameter(_ context.Context, name, value, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, name)
	f.values[name] = value
	return nil
}

var names = Names{
	Period:            "/rift/d/config/alarms/period",
	Datapoints:        "/rift/d/config/alarms/datapoints",
	EvaluationPeriods: "/rift/d/config/alarms/evaluation-periods",
	Threshold:         "/rift/d/config/alarms/threshold",
	MaintenanceTopic:  "/rift/d/sns/topic/maintenance",
}

func newFake() *fakeParams {
	return &fakeParams{values: map[string]string{
		names.Period:            "300",
		names.Datapoints:        "3",
		names.EvaluationPeriods: "3",
		names.Threshold:         "12.5",
		names.MaintenanceTopic:  "arn:aws:sns:us-east-1:1:maintenance",
	}}
}

func TestSnapshot(t *testing.T) {
	s := New(newFake(), names, nil, zap.NewNop())

	cfg, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, threshold.AlarmConfig{Threshold: 12.5, Period: 300, DatapointsToAlarm: 3, EvaluationPeriods: 3}, cfg)
}

func TestSnapshotErrors(t *testing.T) {
	f := newFake()
	f.values[names.Period] = "five minutes"
	_, err := New(f, names, nil, zap.NewNop()).Snapshot(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))

	f = newFake()
	delete(f.values, names.Threshold)
	_, err = New(f, names, nil, zap.NewNop()).Snapshot(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrParameterStore))
}

func TestUpdateAlarmConfigWritesOnlyChanges(t *testing.T) {
	f := newFake()
	auditLog := audit.NewLogger(zap.NewNop(), true)
	s := New(f, names, auditLog, zap.NewNop())

	got, err := s.UpdateAlarmConfig(context.Background(), Update{Period: 600, EvaluationPeriods: 5})
	require.NoError(t, err)

	assert.Equal(t, threshold.AlarmConfig{Threshold: 12.5, Period: 600, DatapointsToAlarm: 3, EvaluationPeriods: 5}, got)
	assert.ElementsMatch(t, []string{names.Period, names.EvaluationPeriods}, f.puts)
	assert.Equal(t, "600", f.values[names.Period])
	assert.Len(t, auditLog.GetRecentEntries(0), 2)
}

func TestUpdateAlarmConfigRejectsInvalidWindow(t *testing.T) {
	f := newFake()
	s := New(f, names, nil, zap.NewNop())

	_, err := s.UpdateAlarmConfig(context.Background(), Update{DatapointsToAlarm: 9})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
	assert.Empty(t, f.puts)

	_, err = s.UpdateAlarmConfig(context.Background(), Update{})
	assert.Error(t, err)
}

func TestMaintenanceTopic(t *testing.T) {
	f := newFake()
	arn, err := New(f, names, nil, zap.NewNop()).MaintenanceTopic(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:sns:us-east-1:1:maintenance", arn)

	f.values[names.MaintenanceTopic] = " "
	_, err = New(f, names, nil, zap.NewNop()).MaintenanceTopic(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrParameterStore))
}
