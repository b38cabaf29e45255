package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/classifier"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/paramstore"
	"github.com/tareqmamari/credit-alarms/internal/security"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

// GetAlarmConfigTool shows the alarm parameters and what they resolve to
// for each workload.
type GetAlarmConfigTool struct {
	*BaseTool
}

// NewGetAlarmConfigTool creates a new tool instance
func NewGetAlarmConfigTool(deps *Deps, logger *zap.Logger) *GetAlarmConfigTool {
	return &GetAlarmConfigTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *GetAlarmConfigTool) Name() string { return "get_alarm_config" }

// Annotations returns tool hints for LLMs
func (t *GetAlarmConfigTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("Get Alarm Config")
}

// Description returns the tool description
func (t *GetAlarmConfigTool) Description() string {
	return "Show the CPU credit alarm parameters (threshold per vCPU, period, datapoints to alarm, " +
		"evaluation periods) and the window compute-intensive instances get on top of them."
}

// InputSchema returns the input schema
func (t *GetAlarmConfigTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}

// Metadata returns semantic metadata for discovery
func (t *GetAlarmConfigTool) Metadata() *ToolMetadata {
	return &ToolMetadata{
		Categories:   []ToolCategory{CategoryConfiguration},
		Keywords:     []string{"config", "threshold", "period", "datapoints", "parameters"},
		UseCases:     []string{"Check current alarm sizing", "Prepare a config update"},
		RelatedTools: []string{"update_alarm_config", "preview_thresholds"},
	}
}

// alarmConfigView is the output of get_alarm_config.
type alarmConfigView struct {
	Standard         threshold.AlarmConfig `json:"standard"`
	ComputeIntensive threshold.AlarmConfig `json:"compute_intensive"`
	Cached           bool                  `json:"cached"`
}

// Execute executes the tool
func (t *GetAlarmConfigTool) Execute(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	v, hit, err := t.cached(t.Name(), "current", func() (interface{}, error) {
		base, err := t.deps.Config.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return alarmConfigView{
			Standard:         base,
			ComputeIntensive: threshold.ResolveAlarmConfig(base, classifier.WorkloadComputeIntensive, t.deps.Additional),
		}, nil
	})
	if err != nil {
		return HandleError(err), nil
	}
	view := v.(alarmConfigView)
	view.Cached = hit
	return t.FormatResponse(view)
}

// UpdateAlarmConfigTool writes new alarm parameters.
type UpdateAlarmConfigTool struct {
	*BaseTool
}

// NewUpdateAlarmConfigTool creates a new tool instance
func NewUpdateAlarmConfigTool(deps *Deps, logger *zap.Logger) *UpdateAlarmConfigTool {
	return &UpdateAlarmConfigTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *UpdateAlarmConfigTool) Name() string { return "update_alarm_config" }

// Annotations returns tool hints for LLMs
func (t *UpdateAlarmConfigTool) Annotations() *mcp.ToolAnnotations {
	return UpdateAnnotations("Update Alarm Config")
}

// Description returns the tool description
func (t *UpdateAlarmConfigTool) Description() string {
	return "Update the CPU credit alarm parameters. Only the values given are changed. " +
		"Existing alarms keep their old values until reconciled; pass reconcile=true to start " +
		"an update run right after the write, or use dry_run=true to validate without writing."
}

// InputSchema returns the input schema
func (t *UpdateAlarmConfigTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"threshold": map[string]interface{}{
				"type":        "number",
				"minimum":     0,
				"description": "CPU credit balance threshold per vCPU",
			},
			"period": map[string]interface{}{
				"type":        "integer",
				"description": "Alarm period in seconds: 10, 30 or a multiple of 60",
			},
			"datapoints_to_alarm": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"description": "Breaching datapoints needed to alarm",
			},
			"evaluation_periods": map[string]interface{}{
				"type":        "integer",
				"minimum":     1,
				"description": "Periods evaluated; must be >= datapoints_to_alarm",
			},
			"reconcile": map[string]interface{}{
				"type":        "boolean",
				"description": "Start an update run for all running burstable instances after writing",
			},
			"dry_run": map[string]interface{}{
				"type":        "boolean",
				"description": "Validate the merged configuration without writing",
			},
		},
	}
}

// Metadata returns semantic metadata for discovery
func (t *UpdateAlarmConfigTool) Metadata() *ToolMetadata {
	return &ToolMetadata{
		Categories:   []ToolCategory{CategoryConfiguration, CategoryMaintenance},
		Keywords:     []string{"update", "config", "threshold", "tune", "parameters"},
		UseCases:     []string{"Tune alarm sensitivity", "Reduce alarm noise"},
		RelatedTools: []string{"get_alarm_config", "trigger_reconciliation", "preview_thresholds"},
	}
}

func parseUpdate(args map[string]interface{}) (paramstore.Update, error) {
	var u paramstore.Update
	th, err := GetFloatParam(args, "threshold", false)
	if err != nil {
		return u, err
	}
	period, err := GetIntParam(args, "period", false)
	if err != nil {
		return u, err
	}
	dp, err := GetIntParam(args, "datapoints_to_alarm", false)
	if err != nil {
		return u, err
	}
	ep, err := GetIntParam(args, "evaluation_periods", false)
	if err != nil {
		return u, err
	}
	u.Threshold = th
	u.Period = int32(period)
	u.DatapointsToAlarm = int32(dp)
	u.EvaluationPeriods = int32(ep)
	return u, nil
}

// Execute executes the tool
func (t *UpdateAlarmConfigTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	u, err := parseUpdate(args)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if u.IsZero() {
		return NewToolResultErrorWithSuggestion("No values to update",
			"Pass at least one of threshold, period, datapoints_to_alarm or evaluation_periods."), nil
	}
	dryRun, _ := GetBoolParam(args, "dry_run", false)
	reconcile, _ := GetBoolParam(args, "reconcile", false)

	if dryRun {
		return t.dryRun(ctx, u)
	}

	cfg, err := t.deps.Config.UpdateAlarmConfig(ctx, u)
	if err != nil {
		return HandleError(err), nil
	}
	t.invalidate(t.Name())

	result := map[string]interface{}{
		"config": cfg,
	}
	if reconcile {
		topic, err := t.deps.Trigger.Trigger(ctx, events.OperationUpdate)
		if err != nil {
			t.logger.Warn("Config written but reconciliation not started", zap.Error(err))
			result["reconcile_error"] = security.SanitizeError(err)
		} else {
			result["reconcile_topic"] = topic
		}
	} else {
		result["next_step"] = "Run trigger_reconciliation with operation=update to apply the new values to existing alarms."
	}
	return t.FormatResponse(result)
}

func (t *UpdateAlarmConfigTool) dryRun(ctx context.Context, u paramstore.Update) (*mcp.CallToolResult, error) {
	current, err := t.deps.Config.Snapshot(ctx)
	if err != nil {
		return HandleError(err), nil
	}
	merged := u.Apply(current)

	result := &ValidationResult{Valid: true}
	if err := merged.Validate(); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	}
	if result.Valid {
		ci := threshold.ResolveAlarmConfig(merged, classifier.WorkloadComputeIntensive, t.deps.Additional)
		if err := ci.Validate(); err != nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("compute-intensive window: %v", err))
		}
	}
	if merged.Threshold == 0 {
		result.Warnings = append(result.Warnings, "A zero threshold only alarms when credits are fully exhausted.")
	}
	result.Summary = map[string]interface{}{
		"threshold":           merged.Threshold,
		"period":              merged.Period,
		"datapoints_to_alarm": merged.DatapointsToAlarm,
		"evaluation_periods":  merged.EvaluationPeriods,
	}
	if result.Valid {
		result.Suggestions = append(result.Suggestions,
			"Use preview_thresholds to see the resulting alarm thresholds for an instance type.")
	}
	return FormatDryRunResult(result, "alarm configuration", u), nil
}

// PreviewThresholdsTool computes the alarm parameters an instance or
// instance type would get under the current configuration.
type PreviewThresholdsTool struct {
	*BaseTool
}

// NewPreviewThresholdsTool creates a new tool instance
func NewPreviewThresholdsTool(deps *Deps, logger *zap.Logger) *PreviewThresholdsTool {
	return &PreviewThresholdsTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *PreviewThresholdsTool) Name() string { return "preview_thresholds" }

// Annotations returns tool hints for LLMs
func (t *PreviewThresholdsTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("Preview Alarm Thresholds")
}

// Description returns the tool description
func (t *PreviewThresholdsTool) Description() string {
	return "Compute the CPUCreditBalance and CPUUtilization alarm parameters for an instance " +
		"(by id) or for an instance type, under the current configuration."
}

// InputSchema returns the input schema
func (t *PreviewThresholdsTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"instance_id": map[string]interface{}{
				"type":        "string",
				"description": "Instance to preview; its type and name tag are looked up",
			},
			"instance_type": map[string]interface{}{
				"type":        "string",
				"description": "Instance type to preview when no instance_id is given, e.g. t3.micro",
			},
			"compute_intensive": map[string]interface{}{
				"type":        "boolean",
				"description": "With instance_type: size the window for a compute-intensive workload",
			},
		},
	}
}

// Metadata returns semantic metadata for discovery
func (t *PreviewThresholdsTool) Metadata() *ToolMetadata {
	return &ToolMetadata{
		Categories:   []ToolCategory{CategoryConfiguration, CategoryAlarms},
		Keywords:     []string{"preview", "threshold", "credits", "baseline", "instance type"},
		UseCases:     []string{"Check what an alarm would be set to", "Validate a config change"},
		RelatedTools: []string{"get_alarm_config", "update_alarm_config"},
	}
}

// thresholdPreview is the output of preview_thresholds.
type thresholdPreview struct {
	InstanceID   string                `json:"instance_id,omitempty"`
	InstanceType string                `json:"instance_type"`
	Workload     classifier.Workload   `json:"workload"`
	Config       threshold.AlarmConfig `json:"config"`
	Credit       threshold.AlarmParams `json:"cpu_credit_balance_alarm"`
	Utilization  threshold.AlarmParams `json:"cpu_utilization_alarm"`
}

// Execute executes the tool
func (t *PreviewThresholdsTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	instanceID, err := GetInstanceIDParam(args, "instance_id", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	instanceType, err := GetStringParam(args, "instance_type", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	computeIntensive, err := GetBoolParam(args, "compute_intensive", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if instanceID == "" && instanceType == "" {
		return NewToolResultErrorWithSuggestion("Either instance_id or instance_type is required",
			"Pass instance_type=t3.micro to preview a type, or an instance id to preview a running instance."), nil
	}

	workload := classifier.WorkloadStandard
	if computeIntensive {
		workload = classifier.WorkloadComputeIntensive
	}
	isT2Legacy := classifier.Family(instanceType) == "t2"
	if instanceID != "" {
		res, err := t.deps.Classifier.Classify(ctx, instanceID)
		if err != nil {
			return HandleError(err), nil
		}
		if !res.IsBurstable {
			return NewToolResultError(fmt.Sprintf("Instance %s is a %s, which is not burstable; it gets no alarms",
				instanceID, res.InstanceType)), nil
		}
		instanceType, workload, isT2Legacy = res.InstanceType, res.Workload(), res.IsT2Legacy
	}

	key := fmt.Sprintf("%s/%s/%s", instanceID, instanceType, workload)
	v, _, err := t.cached(t.Name(), key, func() (interface{}, error) {
		base, err := t.deps.Config.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		cfg := threshold.ResolveAlarmConfig(base, workload, t.deps.Additional)
		credit, err := t.deps.Engine.CreditAlarmParams(instanceType, isT2Legacy, cfg)
		if err != nil {
			return nil, err
		}
		utilization, err := t.deps.Engine.UtilizationAlarmParams(instanceType, cfg)
		if err != nil {
			return nil, err
		}
		return thresholdPreview{
			InstanceID:   instanceID,
			InstanceType: instanceType,
			Workload:     workload,
			Config:       cfg,
			Credit:       credit,
			Utilization:  utilization,
		}, nil
	})
	if err != nil {
		return HandleError(err), nil
	}
	return t.FormatResponse(v)
}
