package tools

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ValidationResult represents the result of a dry-run validation
type ValidationResult struct {
	Valid       bool                   `json:"valid"`
	Errors      []string               `json:"errors,omitempty"`
	Warnings    []string               `json:"warnings,omitempty"`
	Summary     map[string]interface{} `json:"summary,omitempty"`
	Suggestions []string               `json:"suggestions,omitempty"`
}

// toTitleCase turns a snake_case key into a heading. Casers are stateful,
// so each call builds its own.
func toTitleCase(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

// FormatDryRunResult renders a dry-run validation as markdown.
func FormatDryRunResult(result *ValidationResult, subject string, submitted interface{}) *mcp.CallToolResult {
	var b strings.Builder

	b.WriteString("## Dry-Run Validation Result\n\n")
	fmt.Fprintf(&b, "**Subject:** %s\n\n", subject)
	if result.Valid {
		b.WriteString("**Status:** Valid, nothing was written\n\n")
	} else {
		b.WriteString("**Status:** Invalid, fix the errors below\n\n")
	}

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "### %s\n\n", title)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}
	section("Errors", result.Errors)
	section("Warnings", result.Warnings)

	if len(result.Summary) > 0 {
		keys := make([]string, 0, len(result.Summary))
		for k := range result.Summary {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("### Resulting Configuration\n\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s:** %v\n", toTitleCase(k), result.Summary[k])
		}
		b.WriteString("\n")
	}
	section("Suggestions", result.Suggestions)

	b.WriteString("### Submitted Values\n\n```json\n")
	body, _ := json.MarshalIndent(submitted, "", "  ")
	b.Write(body)
	b.WriteString("\n```\n")

	if result.Valid {
		b.WriteString("\n---\n**Next step:** Remove `dry_run` to write the parameters.\n")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: b.String()},
		},
	}
}
