package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/audit"
	"github.com/tareqmamari/credit-alarms/internal/cache"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/instancetype"
	"github.com/tareqmamari/credit-alarms/internal/paramstore"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

type fakeConfig struct {
	cfg       threshold.AlarmConfig
	snapshots int
	updates   []paramstore.Update
	err       error
}

func (f *fakeConfig) Snapshot(context.Context) (threshold.AlarmConfig, error) {
	f.snapshots++
	return f.cfg, f.err
}

func (f *fakeConfig) UpdateAlarmConfig(_ context.Context, u paramstore.Update) (threshold.AlarmConfig, error) {
	merged := u.Apply(f.cfg)
	if err := merged.Validate(); err != nil {
		return threshold.AlarmConfig{}, err
	}
	f.updates = append(f.updates, u)
	f.cfg = merged
	return merged, nil
}

type fakeTrigger struct {
	ops []string
	err error
}

func (f *fakeTrigger) Trigger(_ context.Context, op string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.ops = append(f.ops, op)
	return "arn:aws:sns:us-east-1:123456789012:maintenance", nil
}

type fakeInventory struct {
	listing alarms.Listing
	lists   int
	deleted []string
	err     error
}

func (f *fakeInventory) ListForInstance(context.Context, string) (alarms.Listing, error) {
	f.lists++
	return f.listing, f.err
}

func (f *fakeInventory) DeleteAllForInstance(_ context.Context, id string) (alarms.Deleted, error) {
	if f.err != nil {
		return alarms.Deleted{}, f.err
	}
	f.deleted = append(f.deleted, id)
	d := alarms.Deleted{Composite: f.listing.Composite, Metric: f.listing.Metric}
	f.listing = alarms.Listing{}
	return d, nil
}

type fakeClassifier map[string]classifier.Result

func (f fakeClassifier) Classify(_ context.Context, id string) (classifier.Result, error) {
	res, ok := f[id]
	if !ok {
		return classifier.Result{}, apperrors.NewInstanceNotFound(id)
	}
	return res, nil
}

type fakeTagger struct {
	tags map[string]string
	err  error
}

func (f *fakeTagger) TagInstance(_ context.Context, id, key, value string) error {
	if f.err != nil {
		return f.err
	}
	f.tags[id] = key + "=" + value
	return nil
}

const webID = "i-0a1b2c3d"

type harness struct {
	deps      *Deps
	config    *fakeConfig
	trigger   *fakeTrigger
	inventory *fakeInventory
	tagger    *fakeTagger
}

func newHarness() *harness {
	h := &harness{
		config: &fakeConfig{cfg: threshold.AlarmConfig{
			Threshold: 28.8, Period: 300, DatapointsToAlarm: 3, EvaluationPeriods: 3,
		}},
		trigger: &fakeTrigger{},
		inventory: &fakeInventory{listing: alarms.Listing{
			Composite: []string{webID + "-t3.micro-Composite-Alarm-CPUCreditBalance-And-CPUUtilization-Thresholds-Breached"},
			Metric: []string{
				webID + "-t3.micro-CPUCreditBalance-Less-Than-Threshold",
				webID + "-t3.micro-CPUUtilization-More-Than-Baseline-Percentage",
			},
		}},
		tagger: &fakeTagger{tags: map[string]string{}},
	}
	h.deps = &Deps{
		Config:  h.config,
		Trigger: h.trigger,
		Alarms:  h.inventory,
		Classifier: fakeClassifier{
			webID:        {InstanceID: webID, InstanceType: "t3.micro", IsBurstable: true},
			"i-0b1b2c3d": {InstanceID: "i-0b1b2c3d", InstanceType: "m5.large"},
			"i-0c1b2c3d": {InstanceID: "i-0c1b2c3d", InstanceType: "t2.micro", IsBurstable: true, IsT2Legacy: true},
		},
		Tagger:           h.tagger,
		Engine:           threshold.NewEngine(instancetype.Default()),
		Audit:            audit.NewLogger(zap.NewNop(), true),
		Cache:            cache.NewManager(nil),
		Scope:            cache.Scope("test", "us-east-1"),
		Additional:       threshold.Window{DatapointsToAlarm: 5, EvaluationPeriods: 10},
		SuppressTagName:  "SuppressCpuCreditAlarm",
		SuppressTagValue: "true",
	}
	return h
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, r)
	require.NotEmpty(t, r.Content)
	text, ok := r.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decode(t *testing.T, r *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.False(t, r.IsError, resultText(t, r))
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, r)), &out))
	return out
}

func TestGetAllTools(t *testing.T) {
	tools := GetAllTools(newHarness().deps, zap.NewNop())

	names := make(map[string]bool)
	for _, tool := range tools {
		assert.NotEmpty(t, tool.Name())
		assert.NotEmpty(t, tool.Description(), tool.Name())
		assert.NotNil(t, tool.Annotations(), tool.Name())
		assert.GreaterOrEqual(t, tool.DefaultTimeout(), time.Duration(0), tool.Name())
		assert.False(t, names[tool.Name()], "duplicate tool %s", tool.Name())
		names[tool.Name()] = true

		schema := tool.InputSchema().(map[string]interface{})
		assert.Equal(t, "object", schema["type"], tool.Name())

		enhanced, ok := tool.(EnhancedTool)
		if ok {
			assert.NotEmpty(t, enhanced.Metadata().Categories, tool.Name())
		}
	}
	assert.Len(t, tools, 8)
}

func TestGetAlarmConfigCaches(t *testing.T) {
	h := newHarness()
	tool := NewGetAlarmConfigTool(h.deps, zap.NewNop())

	out := decode(t, mustExecute(t, tool, nil))
	assert.Equal(t, false, out["cached"])
	standard := out["standard"].(map[string]interface{})
	assert.Equal(t, 28.8, standard["threshold"])
	ci := out["compute_intensive"].(map[string]interface{})
	assert.Equal(t, float64(5), ci["datapoints_to_alarm"])
	assert.Equal(t, float64(10), ci["evaluation_periods"])

	out = decode(t, mustExecute(t, tool, nil))
	assert.Equal(t, true, out["cached"])
	assert.Equal(t, 1, h.config.snapshots)
}

func TestUpdateAlarmConfig(t *testing.T) {
	h := newHarness()
	get := NewGetAlarmConfigTool(h.deps, zap.NewNop())
	update := NewUpdateAlarmConfigTool(h.deps, zap.NewNop())

	mustExecute(t, get, nil)
	out := decode(t, mustExecute(t, update, map[string]interface{}{
		"threshold": float64(20),
		"period":    float64(600),
	}))
	cfg := out["config"].(map[string]interface{})
	assert.Equal(t, float64(20), cfg["threshold"])
	assert.Equal(t, float64(600), cfg["period"])
	assert.NotEmpty(t, out["next_step"])
	assert.Empty(t, h.trigger.ops)

	after := decode(t, mustExecute(t, get, nil))
	assert.Equal(t, false, after["cached"], "config cache invalidated by the update")
}

func TestUpdateAlarmConfigWithReconcile(t *testing.T) {
	h := newHarness()
	update := NewUpdateAlarmConfigTool(h.deps, zap.NewNop())

	out := decode(t, mustExecute(t, update, map[string]interface{}{
		"datapoints_to_alarm": float64(2),
		"reconcile":           true,
	}))
	assert.Equal(t, []string{events.OperationUpdate}, h.trigger.ops)
	assert.Contains(t, out["reconcile_topic"], "maintenance")
}

func TestUpdateAlarmConfigRejects(t *testing.T) {
	h := newHarness()
	update := NewUpdateAlarmConfigTool(h.deps, zap.NewNop())

	r := mustExecute(t, update, map[string]interface{}{})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "No values to update")

	r = mustExecute(t, update, map[string]interface{}{"datapoints_to_alarm": float64(9)})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "exceeds evaluation periods")
	assert.Contains(t, resultText(t, r), "Suggestion")
	assert.Empty(t, h.config.updates)

	r = mustExecute(t, update, map[string]interface{}{"period": 2.5})
	assert.True(t, r.IsError)
}

func TestUpdateAlarmConfigDryRun(t *testing.T) {
	h := newHarness()
	update := NewUpdateAlarmConfigTool(h.deps, zap.NewNop())

	r := mustExecute(t, update, map[string]interface{}{"period": float64(120), "dry_run": true})
	assert.False(t, r.IsError)
	text := resultText(t, r)
	assert.Contains(t, text, "Valid, nothing was written")
	assert.Contains(t, text, "**Period:** 120")
	assert.Empty(t, h.config.updates)

	r = mustExecute(t, update, map[string]interface{}{"period": float64(45), "dry_run": true})
	assert.Contains(t, resultText(t, r), "Invalid")
	assert.Contains(t, resultText(t, r), "period 45")
}

func TestPreviewThresholds(t *testing.T) {
	h := newHarness()
	tool := NewPreviewThresholdsTool(h.deps, zap.NewNop())

	tests := []struct {
		name        string
		args        map[string]interface{}
		credit      float64
		utilization float64
		datapoints  float64
	}{
		{"by type", map[string]interface{}{"instance_type": "t3.micro"}, 57.6, 10, 3},
		{"compute intensive", map[string]interface{}{"instance_type": "t3.micro", "compute_intensive": true}, 57.6, 10, 5},
		{"by instance", map[string]interface{}{"instance_id": webID}, 57.6, 10, 3},
		{"t2 uses launch credit", map[string]interface{}{"instance_id": "i-0c1b2c3d"}, 30, 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := decode(t, mustExecute(t, tool, tt.args))
			credit := out["cpu_credit_balance_alarm"].(map[string]interface{})
			assert.InDelta(t, tt.credit, credit["threshold"], 1e-9)
			util := out["cpu_utilization_alarm"].(map[string]interface{})
			assert.InDelta(t, tt.utilization, util["threshold"], 1e-9)
			assert.Equal(t, tt.datapoints, credit["datapoints_to_alarm"])
		})
	}
}

func TestPreviewThresholdsErrors(t *testing.T) {
	h := newHarness()
	tool := NewPreviewThresholdsTool(h.deps, zap.NewNop())

	r := mustExecute(t, tool, map[string]interface{}{})
	assert.True(t, r.IsError)

	r = mustExecute(t, tool, map[string]interface{}{"instance_id": "i-0b1b2c3d"})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "not burstable")

	r = mustExecute(t, tool, map[string]interface{}{"instance_id": "i-0fffffff"})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "terminated")

	r = mustExecute(t, tool, map[string]interface{}{"instance_type": "x9.huge"})
	assert.True(t, r.IsError)

	r = mustExecute(t, tool, map[string]interface{}{"instance_id": "web-1"})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "invalid instance id")
}

func TestListAndRemoveInstanceAlarms(t *testing.T) {
	h := newHarness()
	list := NewListInstanceAlarmsTool(h.deps, zap.NewNop())
	remove := NewRemoveInstanceAlarmsTool(h.deps, zap.NewNop())

	out := decode(t, mustExecute(t, list, map[string]interface{}{"instance_id": webID}))
	assert.Equal(t, float64(3), out["total"])
	mustExecute(t, list, map[string]interface{}{"instance_id": webID})
	assert.Equal(t, 1, h.inventory.lists, "second listing served from cache")

	r := mustExecute(t, remove, map[string]interface{}{"instance_id": webID, "confirm": false})
	assert.True(t, r.IsError)
	assert.Empty(t, h.inventory.deleted)

	out = decode(t, mustExecute(t, remove, map[string]interface{}{"instance_id": webID, "confirm": true}))
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, []string{webID}, h.inventory.deleted)

	r = mustExecute(t, list, map[string]interface{}{"instance_id": webID})
	assert.True(t, r.IsError, "listing refreshed after removal")
	assert.Contains(t, resultText(t, r), "No alarms found")
	assert.Equal(t, 2, h.inventory.lists)
}

func TestSuppressNotifications(t *testing.T) {
	h := newHarness()
	tool := NewSuppressNotificationsTool(h.deps, zap.NewNop())

	out := decode(t, mustExecute(t, tool, map[string]interface{}{"instance_id": webID}))
	assert.Equal(t, "SuppressCpuCreditAlarm", out["tag"])
	assert.Equal(t, "SuppressCpuCreditAlarm=true", h.tagger.tags[webID])

	entries := h.deps.Audit.GetEntriesByInstance(webID, 10)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OpTag, entries[0].Operation)
	assert.True(t, entries[0].Success)

	h.tagger.err = apperrors.NewInstanceNotFound("i-0fffffff")
	r := mustExecute(t, tool, map[string]interface{}{"instance_id": "i-0fffffff"})
	assert.True(t, r.IsError)
	assert.False(t, h.deps.Audit.GetEntriesByInstance("i-0fffffff", 1)[0].Success)
}

func TestTriggerReconciliation(t *testing.T) {
	h := newHarness()
	tool := NewTriggerReconciliationTool(h.deps, zap.NewNop())

	out := decode(t, mustExecute(t, tool, map[string]interface{}{"operation": "create"}))
	assert.Equal(t, "create", out["operation"])
	assert.Equal(t, []string{"create"}, h.trigger.ops)

	r := mustExecute(t, tool, map[string]interface{}{"operation": "delete"})
	assert.True(t, r.IsError)

	h.trigger.err = apperrors.NewParameterStore("/rift/test/sns/topic/maintenance", errors.New("ParameterNotFound"))
	r = mustExecute(t, tool, map[string]interface{}{"operation": "update"})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(t, r), "alarm parameters exist")
}

func TestGetAuditLog(t *testing.T) {
	h := newHarness()
	ctx := audit.WithActor(context.Background(), "remove-alarms")
	h.deps.Audit.LogMutation(ctx, audit.OpDelete, audit.ResourceMetricAlarm, "a", webID, time.Millisecond, nil)
	h.deps.Audit.LogMutation(ctx, audit.OpDelete, audit.ResourceMetricAlarm, "b", "i-0c1b2c3d", time.Millisecond, nil)
	tool := NewGetAuditLogTool(h.deps, zap.NewNop())

	out := decode(t, mustExecute(t, tool, map[string]interface{}{"instance_id": webID}))
	assert.Equal(t, float64(1), out["count"])

	out = decode(t, mustExecute(t, tool, map[string]interface{}{"limit": float64(5)}))
	assert.Equal(t, float64(2), out["count"])

	h.deps.Audit = nil
	r := mustExecute(t, tool, nil)
	assert.True(t, r.IsError)
}

func TestHandleError(t *testing.T) {
	r := HandleError(context.DeadlineExceeded)
	assert.Contains(t, resultText(t, r), "timed out")

	r = HandleError(apperrors.NewInvalidInput("bad").WithSuggestion("do better"))
	assert.Contains(t, resultText(t, r), "do better")

	r = HandleError(errors.New("plain failure"))
	assert.Equal(t, "plain failure", resultText(t, r))
}

func TestParams(t *testing.T) {
	args := map[string]interface{}{"n": float64(3), "s": "7", "f": "2.5", "b": "true", "bad": []int{1}}

	n, err := GetIntParam(args, "n", true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = GetIntParam(args, "s", true)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	_, err = GetIntParam(args, "missing", true)
	assert.Error(t, err)

	f, err := GetFloatParam(args, "f", true)
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	b, err := GetBoolParam(args, "b", true)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = GetStringParam(args, "bad", true)
	assert.Error(t, err)

	id, err := GetInstanceIDParam(map[string]interface{}{}, "instance_id", false)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func mustExecute(t *testing.T, tool Tool, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	r, err := tool.Execute(context.Background(), args)
	require.NoError(t, err)
	return r
}
