package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	"github.com/tareqmamari/credit-alarms/internal/diagnostics"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
)

var identity = alarms.Identity{InstanceID: "i-0123456789abcdef0", InstanceType: "t3.large"}

const history = `{"newState":{"stateValue":"ALARM","stateReason":"Threshold Crossed","stateReasonData":{
	"queryDate":"2024-03-01T10:15:30.000+0000","startDate":"2024-03-01T10:00:00.000+0000",
	"statistic":"Maximum","period":300,"recentDatapoints":[12],"threshold":30}}}`

type fakeInstances struct {
	instances map[string]*classifier.Instance
	calls     int
}

func (f *fakeInstances) DescribeInstance(_ context.Context, id string) (*classifier.Instance, error) {
	f.calls++
	inst, ok := f.instances[id]
	if !ok {
		return nil, apperrors.NewInstanceNotFound(id)
	}
	return inst, nil
}

type fakeTags map[string]map[string]string

func (f fakeTags) TagsForAlarm(_ context.Context, arn string) (map[string]string, error) {
	tags, ok := f[arn]
	if !ok {
		return nil, errors.New("not found")
	}
	return tags, nil
}

type fakeSource struct {
	failTitle string
}

func (f *fakeSource) LatestStateUpdate(context.Context, string) (string, bool, error) {
	return history, true, nil
}

func (f *fakeSource) MetricWidgetImage(_ context.Context, widget []byte) ([]byte, error) {
	var w diagnostics.Widget
	if err := json.Unmarshal(widget, &w); err != nil {
		return nil, err
	}
	if f.failTitle != "" && strings.HasPrefix(w.Title, f.failTitle) {
		return nil, errors.New("rendering failed")
	}
	return []byte("img"), nil
}

func (f *fakeSource) ListMetrics(_ context.Context, namespace, metricName string, _ []alarms.Dimension) ([]diagnostics.Metric, error) {
	return []diagnostics.Metric{{Namespace: namespace, Name: metricName}}, nil
}

type fakeObjects struct{}

func (fakeObjects) PutObject(context.Context, string, string, string, []byte) error { return nil }

type fakeSigner struct {
	err   error
	calls int
}

func (f *fakeSigner) SuppressURL(_ context.Context, id string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://api.example.com/suppress?instance-id=" + id, nil
}

type published struct {
	detailType string
	detail     events.Notification
}

type fakePublisher struct {
	err    error
	events []published
}

func (f *fakePublisher) Publish(_ context.Context, detailType string, detail any) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, published{detailType: detailType, detail: detail.(events.Notification)})
	return nil
}

type harness struct {
	pipeline  *Pipeline
	instances *fakeInstances
	source    *fakeSource
	signer    *fakeSigner
	publisher *fakePublisher
}

func newHarness(tags map[string]string) *harness {
	h := &harness{
		instances: &fakeInstances{instances: map[string]*classifier.Instance{
			identity.InstanceID: {
				ID:              identity.InstanceID,
				Type:            identity.InstanceType,
				PlatformDetails: "Linux/UNIX",
				Tags:            tags,
			},
		}},
		source:    &fakeSource{},
		signer:    &fakeSigner{},
		publisher: &fakePublisher{},
	}
	charts := diagnostics.NewGenerator(h.source, fakeObjects{}, "charts", "us-east-1", zap.NewNop())
	h.pipeline = New(Config{
		FunctionName:       "notify",
		Outcome:            "metric-images-generated",
		DetailType:         "NOTIFICATION_READY",
		SuppressTagName:    "SuppressCpuCreditAlarm",
		SuppressTagValue:   "true",
		DiagnosticsTimeout: 5 * time.Second,
	}, Deps{
		Instances: h.instances,
		Charts:    charts,
		Signer:    h.signer,
		Publisher: h.publisher,
	}, zap.NewNop())
	return h
}

func message(t *testing.T, name string) Message {
	t.Helper()
	return messageInState(t, name, events.StateAlarm)
}

func messageInState(t *testing.T, name, state string) Message {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"AlarmName":     name,
		"NewStateValue": state,
		"AlarmArn":      "arn:aws:cloudwatch:us-east-1:123456789012:alarm:" + name,
		"TriggeringChildren": []map[string]any{
			{"Arn": "arn:aws:cloudwatch:us-east-1:123456789012:alarm:" + identity.CreditAlarmName()},
			{"Arn": "arn:aws:cloudwatch:us-east-1:123456789012:alarm:" + identity.UtilizationAlarmName()},
		},
	})
	require.NoError(t, err)
	return Message{Subject: "ALARM: composite", Body: string(body)}
}

func TestHandleDispatchesNotification(t *testing.T) {
	h := newHarness(map[string]string{"Name": "payments-api"})

	res, err := h.pipeline.Handle(context.Background(), message(t, identity.CompositeAlarmName()))
	require.NoError(t, err)
	assert.Equal(t, StateDispatched, res.State)
	assert.NoError(t, res.Degraded)

	require.Len(t, h.publisher.events, 1)
	ev := h.publisher.events[0]
	assert.Equal(t, "NOTIFICATION_READY", ev.detailType)
	n := ev.detail
	assert.Equal(t, identity.InstanceID, n.InstanceID)
	assert.Equal(t, "t3.large", n.InstanceType)
	assert.Equal(t, classifier.PlatformLinux, n.Platform)
	assert.Equal(t, "payments-api", n.App)
	assert.Equal(t, "ALARM: composite", n.Subject)
	assert.Len(t, n.MetricImageURLs, 3)
	assert.Contains(t, n.SuppressAPIURL, "instance-id="+identity.InstanceID)
	assert.False(t, n.Suppressed)
	assert.Equal(t, []string{"notify"}, n.FunctionName)
	assert.Equal(t, []string{"metric-images-generated"}, n.FunctionOutcome)
}

func TestHandleOneFailingChartStillDispatches(t *testing.T) {
	h := newHarness(nil)
	h.source.failTitle = "CPUCreditBalance"

	res, err := h.pipeline.Handle(context.Background(), message(t, identity.CompositeAlarmName()))
	require.NoError(t, err)
	assert.Equal(t, StateDispatched, res.State)
	assert.True(t, errors.Is(res.Degraded, apperrors.ErrDiagnosticGeneration))

	require.Len(t, h.publisher.events, 1)
	urls := h.publisher.events[0].detail.MetricImageURLs
	assert.Len(t, urls, 2)
	assert.NotContains(t, urls, "CPUCreditBalance")
	assert.NotEmpty(t, h.publisher.events[0].detail.SuppressAPIURL)
}

func TestHandleSuppressedInstance(t *testing.T) {
	h := newHarness(map[string]string{"SuppressCpuCreditAlarm": "TRUE"})

	res, err := h.pipeline.Handle(context.Background(), message(t, identity.CompositeAlarmName()))
	require.NoError(t, err)
	assert.Equal(t, StateDispatched, res.State)

	require.Len(t, h.publisher.events, 1)
	n := h.publisher.events[0].detail
	assert.True(t, n.Suppressed)
	assert.Empty(t, n.MetricImageURLs)
	assert.Empty(t, n.SuppressAPIURL)
	assert.Zero(t, h.signer.calls)
}

func TestHandleSigningFailureDropsURL(t *testing.T) {
	h := newHarness(nil)
	h.signer.err = apperrors.NewSigning(errors.New("secret unavailable"))

	res, err := h.pipeline.Handle(context.Background(), message(t, identity.CompositeAlarmName()))
	require.NoError(t, err)
	assert.Equal(t, StateDispatched, res.State)
	assert.True(t, errors.Is(res.Degraded, apperrors.ErrSigning))
	require.Len(t, h.publisher.events, 1)
	assert.Empty(t, h.publisher.events[0].detail.SuppressAPIURL)
	assert.Len(t, h.publisher.events[0].detail.MetricImageURLs, 3)
}

func TestHandleFatalErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		code apperrors.ErrorCode
	}{
		{"malformed body", Message{Body: "{"}, apperrors.CodeInvalidEvent},
		{"missing alarm name", Message{Body: `{"NewStateValue":"ALARM"}`}, apperrors.CodeInvalidEvent},
		{"no instance id", Message{Body: `{"AlarmName":"custom-alarm","NewStateValue":"ALARM"}`}, apperrors.CodeInvalidEvent},
		{"unknown instance", Message{Body: `{"AlarmName":"i-0aaa-t3.micro-Composite","NewStateValue":"ALARM"}`}, apperrors.CodeInstanceNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(nil)
			res, err := h.pipeline.Handle(context.Background(), tt.msg)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
			assert.Equal(t, StateFailed, res.State)
			assert.Empty(t, h.publisher.events)
		})
	}
}

func TestHandleSkipsNonAlarmTransitions(t *testing.T) {
	for _, state := range []string{events.StateOK, "INSUFFICIENT_DATA"} {
		t.Run(state, func(t *testing.T) {
			h := newHarness(nil)

			res, err := h.pipeline.Handle(context.Background(), messageInState(t, identity.CompositeAlarmName(), state))
			require.NoError(t, err)
			assert.Equal(t, StateSkipped, res.State)
			assert.Nil(t, res.Notification)
			assert.Empty(t, h.publisher.events)
			assert.Zero(t, h.instances.calls)
			assert.Zero(t, h.signer.calls)
		})
	}
}

func TestHandlePublishFailure(t *testing.T) {
	h := newHarness(nil)
	h.publisher.err = apperrors.NewPublish("bus", errors.New("throttled"))

	res, err := h.pipeline.Handle(context.Background(), message(t, identity.CompositeAlarmName()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrPublish))
	assert.Equal(t, StateFailed, res.State)
}

func TestResolveInstanceIDPrefersTag(t *testing.T) {
	h := newHarness(nil)
	name := "renamed-composite"
	arn := "arn:aws:cloudwatch:us-east-1:123456789012:alarm:" + name
	h.pipeline.tags = fakeTags{arn: {alarms.InstanceIDTagKey: identity.InstanceID}}

	res, err := h.pipeline.Handle(context.Background(), message(t, name))
	require.NoError(t, err)
	assert.Equal(t, identity.InstanceID, res.Notification.InstanceID)
}

func TestChildAlarmNames(t *testing.T) {
	other := alarms.Identity{InstanceID: "i-1", InstanceType: "t2.micro"}
	alarm := &events.AlarmStateChange{TriggeringChildren: []events.TriggeringChild{
		{Arn: "arn:aws:cloudwatch:us-east-1:1:alarm:" + other.UtilizationAlarmName()},
	}}

	credit, utilization := ChildAlarmNames(alarm, identity)
	assert.Equal(t, identity.CreditAlarmName(), credit)
	assert.Equal(t, other.UtilizationAlarmName(), utilization)
}

func TestIsSuppressed(t *testing.T) {
	assert.True(t, IsSuppressed("true", "true"))
	assert.True(t, IsSuppressed("True", "true"))
	assert.False(t, IsSuppressed("false", "true"))
	assert.False(t, IsSuppressed("", "true"))
	assert.False(t, IsSuppressed("", ""))
}
