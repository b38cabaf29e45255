package tools

import "go.uber.org/zap"

// GetAllTools returns every operator tool.
func GetAllTools(deps *Deps, logger *zap.Logger) []Tool {
	return []Tool{
		// Configuration
		NewGetAlarmConfigTool(deps, logger),
		NewUpdateAlarmConfigTool(deps, logger),
		NewPreviewThresholdsTool(deps, logger),

		// Maintenance
		NewTriggerReconciliationTool(deps, logger),

		// Alarms and notifications
		NewListInstanceAlarmsTool(deps, logger),
		NewRemoveInstanceAlarmsTool(deps, logger),
		NewSuppressNotificationsTool(deps, logger),

		// Audit
		NewGetAuditLogTool(deps, logger),
	}
}
