package tracing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitOTelDisabled(t *testing.T) {
	shutdown, err := InitOTel(OTelConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStageSpanExportsWithTraceInfo(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitOTel(OTelConfig{ServiceName: "credit-alarms-test", Enabled: true, Writer: &buf})
	require.NoError(t, err)
	t.Cleanup(func() { globalTracer = nil })

	ctx, span := StageSpan(context.Background(), "create-credit-alarm", "i-0abc")
	info := FromContext(ctx)
	assert.Len(t, info.TraceID, 32)
	assert.Len(t, info.SpanID, 16)

	_, child := AWSSpan(ctx, "cloudwatch", "PutMetricAlarm")
	RecordError(child, errors.New("throttled"))
	child.End()
	SetSuccess(span)
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "alarms.stage.create-credit-alarm")
	assert.Contains(t, buf.String(), "aws.cloudwatch.PutMetricAlarm")
	assert.Contains(t, buf.String(), `"cloudwatch/PutMetricAlarm"`)
	assert.Contains(t, buf.String(), `"credit-alarms-test"`)
}

func TestInitOTelResourceMergesWithDefault(t *testing.T) {
	shutdown, err := InitOTel(OTelConfig{
		ServiceName:    "credit-alarms-test",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		Enabled:        true,
		Writer:         io.Discard,
	})
	require.NoError(t, err)
	t.Cleanup(func() { globalTracer = nil })
	assert.NoError(t, shutdown(context.Background()))
}

func TestFromContextWithoutSpan(t *testing.T) {
	assert.Equal(t, TraceInfo{}, FromContext(context.Background()))
}
