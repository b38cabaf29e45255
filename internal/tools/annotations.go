package tools

import "github.com/modelcontextprotocol/go-sdk/mcp"

func boolPtr(b bool) *bool {
	return &b
}

// ReadOnlyAnnotations returns annotations for tools that only read alarm
// state, parameters or the catalog.
func ReadOnlyAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:          title,
		ReadOnlyHint:   true,
		IdempotentHint: true,
		OpenWorldHint:  boolPtr(true), // reads live AWS state
	}
}

// UpdateAnnotations returns annotations for tools that overwrite existing
// state, such as parameters or instance tags.
func UpdateAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:           title,
		DestructiveHint: boolPtr(false),
		IdempotentHint:  true,
		OpenWorldHint:   boolPtr(true),
	}
}

// DeleteAnnotations returns annotations for tools that remove alarms.
func DeleteAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:           title,
		DestructiveHint: boolPtr(true),
		IdempotentHint:  true, // deleting twice finds nothing the second time
		OpenWorldHint:   boolPtr(true),
	}
}

// TriggerAnnotations returns annotations for tools that start pipeline runs.
// Each call starts a new run.
func TriggerAnnotations(title string) *mcp.ToolAnnotations {
	return &mcp.ToolAnnotations{
		Title:           title,
		DestructiveHint: boolPtr(false),
		IdempotentHint:  false,
		OpenWorldHint:   boolPtr(true),
	}
}
