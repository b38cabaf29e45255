// Package prompts provides guided workflows for common operator tasks on the
// credit alarm pipeline.
package prompts

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// PromptDefinition represents a prompt with its metadata and handler
type PromptDefinition struct {
	// Prompt is the MCP prompt metadata
	Prompt *mcp.Prompt
	// Handler is the function that generates the prompt content
	Handler mcp.PromptHandler
}

// Registry holds all registered prompts
type Registry struct {
	logger  *zap.Logger
	prompts []*PromptDefinition
}

// NewRegistry creates a new prompt registry with all available prompts
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{
		logger: logger,
	}
	r.registerPrompts()
	return r
}

// GetPrompts returns all registered prompt definitions
func (r *Registry) GetPrompts() []*PromptDefinition {
	return r.prompts
}

func (r *Registry) registerPrompts() {
	r.prompts = []*PromptDefinition{
		r.tuneAlarmNoisePrompt(),
		r.onboardExistingInstancesPrompt(),
		r.investigateInstancePrompt(),
		r.cleanupTerminatedInstancePrompt(),
	}
}

// Helper to create a prompt result with user role
func createPromptResult(description, content string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []*mcp.PromptMessage{
			{
				Role: "user",
				Content: &mcp.TextContent{
					Text: content,
				},
			},
		},
	}
}

// getStringArg safely extracts a string argument with a default value
func getStringArg(args map[string]string, key, defaultVal string) string {
	if val, ok := args[key]; ok && val != "" {
		return val
	}
	return defaultVal
}

func requireArg(req *mcp.GetPromptRequest, key string) (string, error) {
	var args map[string]string
	if req.Params != nil {
		args = req.Params.Arguments
	}
	v := getStringArg(args, key, "")
	if v == "" {
		return "", fmt.Errorf("prompt argument %q is required", key)
	}
	return v, nil
}

func (r *Registry) tuneAlarmNoisePrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "tune_alarm_noise",
			Title:       "Tune Alarm Sensitivity",
			Description: "Walk through changing the credit alarm window when alarms fire too often or too late",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "instance_type",
					Description: "Instance type to preview the effect on (e.g., 't3.micro')",
					Required:    false,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			instanceType := "t3.micro"
			if req.Params != nil {
				instanceType = getStringArg(req.Params.Arguments, "instance_type", instanceType)
			}

			content := fmt.Sprintf(`Let's tune the CPU credit alarms. A composite alarm only fires when the credit
balance is below its threshold AND utilization is above the baseline, so noise usually
comes from a window that is too short.

1. Run get_alarm_config to see the current threshold, period, datapoints and evaluation periods.
2. Run preview_thresholds with instance_type "%[1]s" to see the thresholds that type gets today.
3. Propose new values and validate them with update_alarm_config and dry_run=true.
   Datapoints to alarm must not exceed evaluation periods; the period must be 10, 30 or a multiple of 60.
4. Run preview_thresholds for "%[1]s" again with the proposed values in mind and compare.
5. Write the values with update_alarm_config and reconcile=true so existing alarms are updated.

Compute-intensive instances use their own datapoints and evaluation periods on top of these;
get_alarm_config shows both.`, instanceType)

			return createPromptResult("Tune credit alarm sensitivity", content), nil
		},
	}
}

func (r *Registry) onboardExistingInstancesPrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "onboard_existing_instances",
			Title:       "Onboard Existing Instances",
			Description: "Create alarms for burstable instances that were running before the pipeline was deployed",
		},
		Handler: func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			content := `Let's create alarms for every running burstable instance that has none yet.

1. Run get_alarm_config and confirm the values are the ones you want new alarms to use.
2. Run trigger_reconciliation with operation "create". The run is asynchronous; it emits one
   event per running burstable instance and the alarm stages pick them up.
3. After a few minutes, run list_instance_alarms for one or two instance ids to confirm
   the credit, utilization and composite alarms exist.
4. Check get_audit_log for failed entries if an instance is still missing alarms.`

			return createPromptResult("Onboard existing burstable instances", content), nil
		},
	}
}

func (r *Registry) investigateInstancePrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "investigate_instance",
			Title:       "Investigate an Instance",
			Description: "Check why an instance has, lacks or keeps firing credit alarms",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "instance_id",
					Description: "EC2 instance id (e.g., 'i-0123456789abcdef0')",
					Required:    true,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			instanceID, err := requireArg(req, "instance_id")
			if err != nil {
				return nil, err
			}

			content := fmt.Sprintf(`Let's look at the credit alarms of %[1]s.

1. Run list_instance_alarms with instance_id "%[1]s".
   No alarms usually means the instance is not burstable or the create events failed.
2. Run preview_thresholds with instance_id "%[1]s" to see its type, its workload
   classification and the thresholds its alarms should have.
3. Run get_audit_log with instance_id "%[1]s" to see which stages touched it and whether they failed.
4. If it alarms too often, consider the tune_alarm_noise workflow, or suppress_notifications
   for this instance only.`, instanceID)

			return createPromptResult("Investigate the alarms of "+instanceID, content), nil
		},
	}
}

func (r *Registry) cleanupTerminatedInstancePrompt() *PromptDefinition {
	return &PromptDefinition{
		Prompt: &mcp.Prompt{
			Name:        "cleanup_terminated_instance",
			Title:       "Clean Up a Terminated Instance",
			Description: "Remove leftover alarms of an instance whose termination event was missed",
			Arguments: []*mcp.PromptArgument{
				{
					Name:        "instance_id",
					Description: "EC2 instance id of the terminated instance",
					Required:    true,
				},
			},
		},
		Handler: func(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			instanceID, err := requireArg(req, "instance_id")
			if err != nil {
				return nil, err
			}

			content := fmt.Sprintf(`Let's remove the leftover alarms of %[1]s.

1. Run list_instance_alarms with instance_id "%[1]s" and show me what will be deleted.
2. Confirm the instance is terminated; alarms of a running instance are only recreated
   by a create reconciliation.
3. Run remove_instance_alarms with instance_id "%[1]s" and confirm=true.
4. Run list_instance_alarms again to confirm nothing is left.`, instanceID)

			return createPromptResult("Clean up the alarms of "+instanceID, content), nil
		},
	}
}
