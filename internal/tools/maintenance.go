package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/events"
)

// TriggerReconciliationTool publishes a maintenance request that makes the
// pipeline create or update alarms for every running burstable instance.
type TriggerReconciliationTool struct {
	*BaseTool
}

// NewTriggerReconciliationTool creates a new tool instance
func NewTriggerReconciliationTool(deps *Deps, logger *zap.Logger) *TriggerReconciliationTool {
	return &TriggerReconciliationTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *TriggerReconciliationTool) Name() string { return "trigger_reconciliation" }

// Annotations returns tool hints for LLMs
func (t *TriggerReconciliationTool) Annotations() *mcp.ToolAnnotations {
	return TriggerAnnotations("Trigger Reconciliation")
}

// Description returns the tool description
func (t *TriggerReconciliationTool) Description() string {
	return "Start a bulk run over all running burstable instances. operation=create adds alarms to " +
		"instances that were running before the pipeline was deployed; operation=update rewrites " +
		"existing alarms with the current configuration. The run is asynchronous."
}

// InputSchema returns the input schema
func (t *TriggerReconciliationTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type":        "string",
				"enum":        []string{events.OperationCreate, events.OperationUpdate},
				"description": "create or update",
			},
		},
		"required": []string{"operation"},
	}
}

// Metadata returns semantic metadata for discovery
func (t *TriggerReconciliationTool) Metadata() *ToolMetadata {
	return &ToolMetadata{
		Categories:   []ToolCategory{CategoryMaintenance},
		Keywords:     []string{"reconcile", "bulk", "backfill", "existing instances", "apply config"},
		UseCases:     []string{"Onboard existing instances", "Apply a config change to all alarms"},
		RelatedTools: []string{"update_alarm_config", "list_instance_alarms"},
	}
}

// Execute executes the tool
func (t *TriggerReconciliationTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	op, err := GetStringParam(args, "operation", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if op != events.OperationCreate && op != events.OperationUpdate {
		return NewToolResultError(fmt.Sprintf("operation must be %q or %q, got %q",
			events.OperationCreate, events.OperationUpdate, op)), nil
	}

	topic, err := t.deps.Trigger.Trigger(ctx, op)
	if err != nil {
		return HandleError(err), nil
	}
	t.invalidate(t.Name())

	return t.FormatResponse(map[string]interface{}{
		"operation": op,
		"topic":     topic,
		"message":   "Maintenance request published; the reconcile stage emits one event per running burstable instance.",
	})
}
