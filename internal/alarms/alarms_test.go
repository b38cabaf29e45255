package alarms_test

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/alarms/alarmstest"
	"github.com/tareqmamari/credit-alarms/internal/audit"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

var identity = alarms.Identity{InstanceID: "i-0123456789abcdef0", InstanceType: "t3.large"}

func TestIdentityNames(t *testing.T) {
	assert.Equal(t, "i-0123456789abcdef0-t3.large-CPUCreditBalance-Less-Than-Threshold", identity.CreditAlarmName())
	assert.Equal(t, "i-0123456789abcdef0-t3.large-CPUUtilization-More-Than-Baseline-Percentage", identity.UtilizationAlarmName())
	assert.Equal(t, "i-0123456789abcdef0-t3.large-Composite-Alarm-CPUCreditBalance-And-CPUUtilization-Thresholds-Breached", identity.CompositeAlarmName())
	assert.Equal(t, identity.CreditAlarmName(), identity.MetricAlarmName(alarms.KindCreditBalance))
}

func TestInstanceIDFromAlarmName(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{identity.CompositeAlarmName(), "i-0123456789abcdef0", true},
		{"i-12345678-t2.micro-CPUCreditBalance-Less-Than-Threshold", "i-12345678", true},
		{"i-abc", "", false},
		{"my-alarm-i-123", "", false},
		{"i-XYZ-t3.micro-foo", "", false},
		{"i--t3.micro", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := alarms.InstanceIDFromAlarmName(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func creditSpec() alarms.MetricAlarmSpec {
	return alarms.MetricAlarmSpec{
		Identity: identity,
		Kind:     alarms.KindCreditBalance,
		Params: threshold.AlarmParams{
			Threshold: 200, Period: 300, DatapointsToAlarm: 2, EvaluationPeriods: 3,
			Description: "Raise alarm when CPUCreditBalance drops below 200",
		},
	}
}

func TestBuildMetricAlarm(t *testing.T) {
	credit := alarms.BuildMetricAlarm(creditSpec())
	assert.Equal(t, alarms.LessThanOrEqual, credit.Comparison)
	assert.Equal(t, "Maximum", credit.Statistic)
	assert.Equal(t, "AWS/EC2", credit.Namespace)
	assert.Equal(t, []alarms.Dimension{{Name: "InstanceId", Value: identity.InstanceID}}, credit.Dimensions)
	assert.True(t, credit.ActionsEnabled)
	assert.Equal(t, []alarms.Tag{{Key: "App", Value: "AutomatedAndDynamicAlarmForCPUCredits"}}, credit.Tags)

	spec := creditSpec()
	spec.Kind = alarms.KindUtilization
	util := alarms.BuildMetricAlarm(spec)
	assert.Equal(t, alarms.GreaterThanOrEqual, util.Comparison)
	assert.Equal(t, "CPUUtilization", util.MetricName)
	assert.Equal(t, identity.UtilizationAlarmName(), util.Name)
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := alarmstest.New()
	auditLog := audit.NewLogger(zap.NewNop(), true)
	m := alarms.NewManager(store, zap.NewNop(), alarms.WithAudit(auditLog))
	ctx := context.Background()

	_, err := m.UpsertMetricAlarm(ctx, creditSpec())
	require.NoError(t, err)
	first, ok := store.Metric(identity.CreditAlarmName())
	require.True(t, ok)

	_, err = m.UpsertMetricAlarm(ctx, creditSpec())
	require.NoError(t, err)
	second, _ := store.Metric(identity.CreditAlarmName())

	assert.True(t, reflect.DeepEqual(first, second))
	assert.Equal(t, fmt.Sprintf("%#v", first), fmt.Sprintf("%#v", second))
	assert.Len(t, auditLog.GetEntriesByInstance(identity.InstanceID, 0), 2)
}

func TestUpsertPropagatesStoreError(t *testing.T) {
	store := alarmstest.New()
	store.PutMetricErr = apperrors.NewAlarmStore("PutMetricAlarm", errors.New("denied"))
	m := alarms.NewManager(store, zap.NewNop())

	_, err := m.UpsertMetricAlarm(context.Background(), creditSpec())
	assert.True(t, errors.Is(err, apperrors.ErrAlarmStore))
}

func seed(t *testing.T, store *alarmstest.Store, id alarms.Identity) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.PutMetricAlarm(ctx, alarms.MetricAlarm{Name: id.CreditAlarmName()}))
	require.NoError(t, store.PutMetricAlarm(ctx, alarms.MetricAlarm{Name: id.UtilizationAlarmName()}))
	require.NoError(t, store.PutCompositeAlarm(ctx, alarms.CompositeAlarm{Name: id.CompositeAlarmName()}))
}

func TestDeleteAllForInstanceOrdersCompositeFirst(t *testing.T) {
	store := alarmstest.New()
	seed(t, store, identity)
	other := alarms.Identity{InstanceID: "i-0123456789abcdef01", InstanceType: "t3.micro"}
	seed(t, store, other)

	m := alarms.NewManager(store, zap.NewNop())
	deleted, err := m.DeleteAllForInstance(context.Background(), identity.InstanceID)
	require.NoError(t, err)

	assert.Equal(t, []string{identity.CompositeAlarmName()}, deleted.Composite)
	assert.ElementsMatch(t, []string{identity.CreditAlarmName(), identity.UtilizationAlarmName()}, deleted.Metric)
	assert.Equal(t, 3, deleted.Count())

	deletes := store.CallsTo("DeleteAlarms")
	require.Len(t, deletes, 2)
	assert.Equal(t, []string{identity.CompositeAlarmName()}, deletes[0].Names)
	assert.ElementsMatch(t, deleted.Metric, deletes[1].Names)

	// A longer id sharing the prefix is untouched.
	_, ok := store.Composite(other.CompositeAlarmName())
	assert.True(t, ok)
}

func TestDeleteAllForInstanceNothingFound(t *testing.T) {
	store := alarmstest.New()
	m := alarms.NewManager(store, zap.NewNop())

	deleted, err := m.DeleteAllForInstance(context.Background(), "i-0aaa")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted.Count())
	assert.Empty(t, store.CallsTo("DeleteAlarms"))
}

func TestDeleteStopsWhenCompositeDeleteFails(t *testing.T) {
	store := alarmstest.New()
	seed(t, store, identity)
	store.DeleteErr = apperrors.NewAlarmStore("DeleteAlarms", errors.New("throttled"))
	m := alarms.NewManager(store, zap.NewNop())

	_, err := m.DeleteAllForInstance(context.Background(), identity.InstanceID)
	require.Error(t, err)
	assert.Len(t, store.CallsTo("DeleteAlarms"), 1, "metric alarms must not be deleted while composites remain")
}

func TestDeleteBatchesLargeListings(t *testing.T) {
	store := alarmstest.New()
	ctx := context.Background()
	for i := 0; i < 150; i++ {
		require.NoError(t, store.PutMetricAlarm(ctx, alarms.MetricAlarm{Name: fmt.Sprintf("i-0f-t3.micro-%03d", i)}))
	}
	m := alarms.NewManager(store, zap.NewNop())

	deleted, err := m.DeleteAllForInstance(ctx, "i-0f")
	require.NoError(t, err)
	assert.Len(t, deleted.Metric, 150)

	deletes := store.CallsTo("DeleteAlarms")
	require.Len(t, deletes, 2)
	assert.Len(t, deletes[0].Names, 100)
	assert.Len(t, deletes[1].Names, 50)
}

func compositeRequest() alarms.CompositeRequest {
	return alarms.CompositeRequest{
		InstanceID:           identity.InstanceID,
		InstanceType:         identity.InstanceType,
		CreditAlarmName:      identity.CreditAlarmName(),
		UtilizationAlarmName: identity.UtilizationAlarmName(),
		App:                  "web",
	}
}

func TestEnsureCompositeTwice(t *testing.T) {
	store := alarmstest.New()
	gate := alarms.NewGate(store, []string{"arn:aws:sns:us-east-1:1:alerts"}, zap.NewNop())
	ctx := context.Background()

	outcome, err := gate.EnsureComposite(ctx, compositeRequest())
	require.NoError(t, err)
	assert.Equal(t, alarms.OutcomeCreated, outcome)

	outcome, err = gate.EnsureComposite(ctx, compositeRequest())
	require.NoError(t, err)
	assert.Equal(t, alarms.OutcomeAlreadyExists, outcome)

	assert.Equal(t, 1, store.CompositeCount())
	assert.Len(t, store.CallsTo("PutCompositeAlarm"), 1)

	c, ok := store.Composite(identity.CompositeAlarmName())
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf(`ALARM(%q) AND ALARM(%q)`, identity.CreditAlarmName(), identity.UtilizationAlarmName()), c.Rule)
	assert.Equal(t, identity.InstanceID, c.TagValue(alarms.InstanceIDTagKey))
	assert.Equal(t, alarms.AppTagValue, c.TagValue(alarms.AppTagKey))
	assert.Equal(t, []string{"arn:aws:sns:us-east-1:1:alerts"}, c.AlarmActions)
}

func TestEnsureCompositeConcurrentCreatesConverge(t *testing.T) {
	// Two callers that both observed "absent" write identical definitions.
	store := alarmstest.New()
	ctx := context.Background()
	def := alarms.BuildComposite(compositeRequest(), nil)

	require.NoError(t, store.PutCompositeAlarm(ctx, def))
	require.NoError(t, store.PutCompositeAlarm(ctx, def))

	assert.Equal(t, 1, store.CompositeCount())
	got, _ := store.Composite(def.Name)
	assert.Equal(t, def, got)
}

func TestEnsureCompositeLookupError(t *testing.T) {
	store := alarmstest.New()
	store.FindErr = apperrors.NewAlarmStore("DescribeAlarms", errors.New("boom"))
	gate := alarms.NewGate(store, nil, zap.NewNop())

	_, err := gate.EnsureComposite(context.Background(), compositeRequest())
	assert.True(t, errors.Is(err, apperrors.ErrAlarmStore))
	assert.Empty(t, store.CallsTo("PutCompositeAlarm"))
}
