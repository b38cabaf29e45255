package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/security"
)

// NewToolResultError creates a new tool result with an error message
func NewToolResultError(message string) *mcp.CallToolResult {
	if message == "" {
		message = "An unknown error occurred"
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: message},
		},
		IsError: true,
	}
}

// NewToolResultErrorWithSuggestion creates a tool result with an error and recovery guidance
func NewToolResultErrorWithSuggestion(message, suggestion string) *mcp.CallToolResult {
	return NewToolResultError(fmt.Sprintf("%s\n\n**Suggestion:** %s", message, suggestion))
}

// suggestions gives recovery guidance per error code when the error
// carries none of its own.
var suggestions = map[apperrors.ErrorCode]string{
	apperrors.CodeInstanceNotFound: "Check the instance id and the region the server is configured for.",
	apperrors.CodeInvalidConfig:    "Use 'get_alarm_config' to see the current values; datapoints must not exceed evaluation periods.",
	apperrors.CodeParameterStore:   "Check that the alarm parameters exist and the server role can read and write them.",
	apperrors.CodeAlarmStore:       "CloudWatch rejected the call. Check permissions and retry in a few moments.",
	apperrors.CodePublish:          "The maintenance topic or event bus rejected the message. Check it exists and retry.",
	apperrors.CodeTimeout:          "Retry in a few moments.",
}

// HandleError converts an error from the pipeline components into a tool
// result carrying a recovery suggestion where one is known.
func HandleError(err error) *mcp.CallToolResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewToolResultErrorWithSuggestion("Operation timed out", suggestions[apperrors.CodeTimeout])
	}

	message := security.SanitizeError(err)
	var se *apperrors.StructuredError
	if errors.As(err, &se) {
		if se.Suggestion != "" {
			return NewToolResultErrorWithSuggestion(message, se.Suggestion)
		}
		if s, ok := suggestions[se.Code]; ok {
			return NewToolResultErrorWithSuggestion(message, s)
		}
	}
	return NewToolResultError(message)
}
