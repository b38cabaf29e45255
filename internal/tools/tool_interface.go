// Package tools provides the operator MCP tools for the credit alarm pipeline.
package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool defines the interface that all MCP tools must implement.
type Tool interface {
	// Name returns the unique identifier for this tool
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// InputSchema returns the JSON Schema for the tool's input parameters
	InputSchema() interface{}

	// Execute runs the tool with the given arguments and returns the result
	Execute(ctx context.Context, arguments map[string]interface{}) (*mcp.CallToolResult, error)

	// Annotations returns hints about tool behavior, or nil for defaults.
	Annotations() *mcp.ToolAnnotations

	// DefaultTimeout returns the execution budget of the tool; 0 means no
	// tool-specific budget.
	DefaultTimeout() time.Duration
}

// EnhancedTool extends Tool with discovery metadata.
type EnhancedTool interface {
	Tool
	Metadata() *ToolMetadata
}

// ToolMetadata provides semantic information for tool discovery
type ToolMetadata struct {
	Categories   []ToolCategory `json:"categories"`
	Keywords     []string       `json:"keywords"`
	UseCases     []string       `json:"use_cases"`
	RelatedTools []string       `json:"related_tools"`
}

// ToolCategory represents the functional category of a tool
type ToolCategory string

// Tool categories
const (
	CategoryConfiguration ToolCategory = "configuration"
	CategoryAlarms        ToolCategory = "alarms"
	CategoryMaintenance   ToolCategory = "maintenance"
	CategoryNotification  ToolCategory = "notification"
	CategoryAudit         ToolCategory = "audit"
)
