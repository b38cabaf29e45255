package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/audit"
)

// ListInstanceAlarmsTool lists the alarms the pipeline owns for an instance.
type ListInstanceAlarmsTool struct {
	*BaseTool
}

// NewListInstanceAlarmsTool creates a new tool instance
func NewListInstanceAlarmsTool(deps *Deps, logger *zap.Logger) *ListInstanceAlarmsTool {
	return &ListInstanceAlarmsTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *ListInstanceAlarmsTool) Name() string { return "list_instance_alarms" }

// Annotations returns tool hints for LLMs
func (t *ListInstanceAlarmsTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("List Instance Alarms")
}

// Description returns the tool description
func (t *ListInstanceAlarmsTool) Description() string {
	return "List the composite and metric alarms that exist for an EC2 instance."
}

// InputSchema returns the input schema
func (t *ListInstanceAlarmsTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"instance_id": map[string]interface{}{
				"type":        "string",
				"description": "EC2 instance id, e.g. i-0123456789abcdef0",
			},
		},
		"required": []string{"instance_id"},
	}
}

// Metadata returns semantic metadata for discovery
func (t *ListInstanceAlarmsTool) Metadata() *ToolMetadata {
	return &ToolMetadata{
		Categories:   []ToolCategory{CategoryAlarms},
		Keywords:     []string{"list", "alarms", "composite", "instance"},
		UseCases:     []string{"Check an instance is monitored", "Find leftover alarms"},
		RelatedTools: []string{"remove_instance_alarms", "preview_thresholds", "get_audit_log"},
	}
}

type instanceAlarms struct {
	InstanceID string         `json:"instance_id"`
	Alarms     alarms.Listing `json:"alarms"`
	Total      int            `json:"total"`
}

// Execute executes the tool
func (t *ListInstanceAlarmsTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	instanceID, err := GetInstanceIDParam(args, "instance_id", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	v, _, err := t.cached(t.Name(), instanceID, func() (interface{}, error) {
		listing, err := t.deps.Alarms.ListForInstance(ctx, instanceID)
		if err != nil {
			return nil, err
		}
		return instanceAlarms{
			InstanceID: instanceID,
			Alarms:     listing,
			Total:      len(listing.Composite) + len(listing.Metric),
		}, nil
	})
	if err != nil {
		return HandleError(err), nil
	}
	if v.(instanceAlarms).Total == 0 {
		return NewToolResultErrorWithSuggestion(
			fmt.Sprintf("No alarms found for %s", instanceID),
			"The instance may not be burstable, or alarms are still being created. "+
				"Use preview_thresholds with the instance id to check."), nil
	}
	return t.FormatResponse(v)
}

// RemoveInstanceAlarmsTool deletes every alarm of an instance.
type RemoveInstanceAlarmsTool struct {
	*BaseTool
}

// NewRemoveInstanceAlarmsTool creates a new tool instance
func NewRemoveInstanceAlarmsTool(deps *Deps, logger *zap.Logger) *RemoveInstanceAlarmsTool {
	return &RemoveInstanceAlarmsTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *RemoveInstanceAlarmsTool) Name() string { return "remove_instance_alarms" }

// Annotations returns tool hints for LLMs
func (t *RemoveInstanceAlarmsTool) Annotations() *mcp.ToolAnnotations {
	return DeleteAnnotations("Remove Instance Alarms")
}

// Description returns the tool description
func (t *RemoveInstanceAlarmsTool) Description() string {
	return "Delete the composite alarm and both metric alarms of an instance. The pipeline does this " +
		"on termination; use it for instances whose termination event was missed. Requires confirm=true."
}

// InputSchema returns the input schema
func (t *RemoveInstanceAlarmsTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"instance_id": map[string]interface{}{
				"type":        "string",
				"description": "EC2 instance id",
			},
			"confirm": map[string]interface{}{
				"type":        "boolean",
				"description": "Must be true; deleted alarms are only recreated by a create run",
			},
		},
		"required": []string{"instance_id", "confirm"},
	}
}

// Metadata returns semantic metadata for discovery
func (t *RemoveInstanceAlarmsTool) Metadata() *ToolMetadata {
	return &ToolMetadata{
		Categories:   []ToolCategory{CategoryAlarms, CategoryMaintenance},
		Keywords:     []string{"delete", "remove", "cleanup", "alarms", "terminated"},
		UseCases:     []string{"Clean up alarms of a terminated instance"},
		RelatedTools: []string{"list_instance_alarms"},
	}
}

// Execute executes the tool
func (t *RemoveInstanceAlarmsTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	instanceID, err := GetInstanceIDParam(args, "instance_id", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	confirm, err := GetBoolParam(args, "confirm", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if !confirm {
		return NewToolResultErrorWithSuggestion("Deletion not confirmed",
			"Call list_instance_alarms first, then pass confirm=true."), nil
	}

	deleted, err := t.deps.Alarms.DeleteAllForInstance(ctx, instanceID)
	t.invalidate(t.Name())
	if err != nil {
		return HandleError(err), nil
	}
	return t.FormatResponse(map[string]interface{}{
		"instance_id": instanceID,
		"deleted":     deleted,
		"count":       deleted.Count(),
	})
}

// SuppressNotificationsTool tags an instance so its notifications are
// marked suppressed, the same as following the link in a notification.
type SuppressNotificationsTool struct {
	*BaseTool
}

// NewSuppressNotificationsTool creates a new tool instance
func NewSuppressNotificationsTool(deps *Deps, logger *zap.Logger) *SuppressNotificationsTool {
	return &SuppressNotificationsTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *SuppressNotificationsTool) Name() string { return "suppress_notifications" }

// Annotations returns tool hints for LLMs
func (t *SuppressNotificationsTool) Annotations() *mcp.ToolAnnotations {
	return UpdateAnnotations("Suppress Notifications")
}

// Description returns the tool description
func (t *SuppressNotificationsTool) Description() string {
	return "Tag an instance with the suppression tag so later notifications for it are marked suppressed. " +
		"Remove the tag from the instance to enable notifications again."
}

// InputSchema returns the input schema
func (t *SuppressNotificationsTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"instance_id": map[string]interface{}{
				"type":        "string",
				"description": "EC2 instance id",
			},
		},
		"required": []string{"instance_id"},
	}
}

// Metadata returns semantic metadata for discovery
func (t *SuppressNotificationsTool) Metadata() *ToolMetadata {
	return &ToolMetadata{
		Categories:   []ToolCategory{CategoryNotification},
		Keywords:     []string{"suppress", "mute", "silence", "notification", "tag"},
		UseCases:     []string{"Silence a noisy instance"},
		RelatedTools: []string{"get_audit_log"},
	}
}

// Execute executes the tool
func (t *SuppressNotificationsTool) Execute(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	instanceID, err := GetInstanceIDParam(args, "instance_id", true)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}

	start := time.Now()
	err = t.deps.Tagger.TagInstance(ctx, instanceID, t.deps.SuppressTagName, t.deps.SuppressTagValue)
	t.deps.Audit.LogMutation(ctx, audit.OpTag, audit.ResourceInstanceTag,
		t.deps.SuppressTagName+"="+t.deps.SuppressTagValue, instanceID, time.Since(start), err)
	if err != nil {
		return HandleError(err), nil
	}
	return t.FormatResponse(map[string]interface{}{
		"instance_id": instanceID,
		"tag":         t.deps.SuppressTagName,
		"value":       t.deps.SuppressTagValue,
		"message":     fmt.Sprintf("Notifications suppressed. Remove tag %s from %s to enable them.", t.deps.SuppressTagName, instanceID),
	})
}

// GetAuditLogTool returns recent pipeline and operator mutations.
type GetAuditLogTool struct {
	*BaseTool
}

// NewGetAuditLogTool creates a new tool instance
func NewGetAuditLogTool(deps *Deps, logger *zap.Logger) *GetAuditLogTool {
	return &GetAuditLogTool{BaseTool: NewBaseTool(deps, logger)}
}

// Name returns the tool name
func (t *GetAuditLogTool) Name() string { return "get_audit_log" }

// Annotations returns tool hints for LLMs
func (t *GetAuditLogTool) Annotations() *mcp.ToolAnnotations {
	return ReadOnlyAnnotations("Get Audit Log")
}

// Description returns the tool description
func (t *GetAuditLogTool) Description() string {
	return "Show the alarm, parameter, tag and topic mutations made by this server, newest first, " +
		"optionally for one instance."
}

// InputSchema returns the input schema
func (t *GetAuditLogTool) InputSchema() interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"instance_id": map[string]interface{}{
				"type":        "string",
				"description": "Only entries for this instance",
			},
			"limit": map[string]interface{}{
				"type":    "integer",
				"minimum": 1,
				"maximum": 200,
				"default": 20,
			},
		},
	}
}

// DefaultTimeout returns 0; the log is in memory.
func (t *GetAuditLogTool) DefaultTimeout() time.Duration { return 0 }

// Execute executes the tool
func (t *GetAuditLogTool) Execute(_ context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	instanceID, err := GetInstanceIDParam(args, "instance_id", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	limit, err := GetIntParam(args, "limit", false)
	if err != nil {
		return NewToolResultError(err.Error()), nil
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if !t.deps.Audit.IsEnabled() {
		return NewToolResultErrorWithSuggestion("Audit logging is disabled", "Set ENABLE_AUDIT_LOG=true."), nil
	}

	var entries []audit.Entry
	if instanceID != "" {
		entries = t.deps.Audit.GetEntriesByInstance(instanceID, limit)
	} else {
		entries = t.deps.Audit.GetRecentEntries(limit)
	}
	return t.FormatResponse(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"stats":   t.deps.Audit.GetStats(),
	})
}
