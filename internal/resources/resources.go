// Package resources provides MCP resource handlers for the credit alarm
// operator server. Resources expose read-only data to MCP clients for
// context and status information.
package resources

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/audit"
	"github.com/tareqmamari/credit-alarms/internal/config"
	"github.com/tareqmamari/credit-alarms/internal/instancetype"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
)

const instanceTypePrefix = "catalog://instance-type/"

// Registry holds all registered resources and their handlers
type Registry struct {
	config  *config.Config
	catalog *instancetype.Catalog
	metrics *metrics.Metrics
	audit   *audit.Logger
	logger  *zap.Logger
	version string
}

// NewRegistry creates a new resource registry
func NewRegistry(cfg *config.Config, catalog *instancetype.Catalog, m *metrics.Metrics,
	auditLog *audit.Logger, logger *zap.Logger, version string) *Registry {
	return &Registry{
		config:  cfg,
		catalog: catalog,
		metrics: m,
		audit:   auditLog,
		logger:  logger,
		version: version,
	}
}

// RegisteredResource represents a resource with its definition and handler
type RegisteredResource struct {
	Resource *mcp.Resource
	Handler  mcp.ResourceHandler
}

// GetResources returns all registered resources with their handlers
func (r *Registry) GetResources() []RegisteredResource {
	return []RegisteredResource{
		r.aboutResource(),
		r.configResource(),
		r.catalogResource(),
		r.metricsResource(),
		r.auditResource(),
	}
}

func (r *Registry) jsonResult(uri string, v interface{}) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		r.logger.Error("Failed to marshal resource", zap.String("uri", uri), zap.Error(err))
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}

func newResource(uri, title, description string) *mcp.Resource {
	return &mcp.Resource{
		URI:         uri,
		Name:        uri,
		Title:       title,
		Description: description,
		MIMEType:    "application/json",
	}
}

// aboutResource describes what the pipeline does with an instance over its life.
func (r *Registry) aboutResource() RegisteredResource {
	const uri = "about://service"
	return RegisteredResource{
		Resource: newResource(uri, "About Credit Alarms",
			"What the alarm pipeline does, its stages and naming conventions"),
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return r.jsonResult(uri, map[string]interface{}{
				"service": map[string]interface{}{
					"name":        "EC2 CPU credit alarms",
					"description": "Creates, updates and removes CPU credit alarms for burstable EC2 instances",
					"aliases":     []string{"credit alarms", "burstable monitor", "CPU credit monitor"},
				},
				"lifecycle": map[string]string{
					"running":    "classify, create CPUCreditBalance and CPUUtilization alarms, then the composite",
					"terminated": "delete every alarm whose name starts with the instance id",
					"alarm":      "render diagnostics, sign a suppression link and publish a notification",
				},
				"alarm_names": map[string]string{
					"credit":      "<id>-<type>-CPUCreditBalance-Less-Than-Threshold",
					"utilization": "<id>-<type>-CPUUtilization-More-Than-Baseline-Percentage",
					"composite":   "<id>-<type>-Composite-Alarm-CPUCreditBalance-And-CPUUtilization-Thresholds-Breached",
				},
				"operator_server": map[string]interface{}{
					"version":      r.version,
					"capabilities": []string{"tools", "resources"},
				},
			})
		},
	}
}

// configResource returns the config://current resource
func (r *Registry) configResource() RegisteredResource {
	const uri = "config://current"
	return RegisteredResource{
		Resource: newResource(uri, "Server Configuration",
			"Current pipeline configuration (secret identifiers masked)"),
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return r.jsonResult(uri, r.config.Redact())
		},
	}
}

// catalogResource lists every instance type the threshold engine knows.
func (r *Registry) catalogResource() RegisteredResource {
	const uri = "catalog://instance-types"
	return RegisteredResource{
		Resource: newResource(uri, "Instance Type Catalog",
			"Maximum credit balance, vCPUs, launch credit and baseline utilization per burstable type"),
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			entries := r.catalog.Entries()
			return r.jsonResult(uri, map[string]interface{}{
				"count":          len(entries),
				"instance_types": entries,
			})
		},
	}
}

// metricsResource returns the metrics://server resource
func (r *Registry) metricsResource() RegisteredResource {
	const uri = "metrics://server"
	return RegisteredResource{
		Resource: newResource(uri, "Server Metrics",
			"AWS call counts, latency, alarm operations and tool usage"),
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			stats := r.metrics.GetStats()
			return r.jsonResult(uri, map[string]interface{}{
				"aws_calls": map[string]interface{}{
					"total":      stats.TotalCalls,
					"successful": stats.SuccessfulCalls,
					"failed":     stats.FailedCalls,
					"retried":    stats.RetriedCalls,
					"rate_limit": stats.RateLimitHits,
				},
				"latency_ms": formatLatency(map[string]time.Duration{
					"average": stats.AverageLatency,
					"max":     stats.MaxLatency,
					"min":     stats.MinLatency,
				}),
				"alarm_operations": stats.AlarmOperations,
				"errors_by_code":   stats.ErrorsByCode,
				"tool_usage":       stats.ToolUsage,
				"tool_errors":      stats.ToolErrors,
			})
		},
	}
}

func (r *Registry) auditResource() RegisteredResource {
	const uri = "audit://stats"
	return RegisteredResource{
		Resource: newResource(uri, "Audit Statistics",
			"Mutation counts per actor and operation, success rate and error codes"),
		Handler: func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return r.jsonResult(uri, map[string]interface{}{
				"enabled": r.audit.IsEnabled(),
				"stats":   r.audit.GetStats(),
			})
		},
	}
}

func formatLatency(latency map[string]time.Duration) map[string]int64 {
	out := make(map[string]int64, len(latency))
	for k, v := range latency {
		out[k] = v.Milliseconds()
	}
	return out
}

// GetResourceTemplates returns the parameterized resources.
func (r *Registry) GetResourceTemplates() []mcp.ResourceTemplate {
	return []mcp.ResourceTemplate{
		{
			URITemplate: instanceTypePrefix + "{type}",
			Name:        "Instance Type",
			Description: "Catalog entry for one burstable instance type, e.g. catalog://instance-type/t3.micro. " +
				"Use it to understand the thresholds preview_thresholds reports.",
			MIMEType: "application/json",
		},
	}
}

// GetTemplateHandler returns a handler for resource templates
func (r *Registry) GetTemplateHandler() mcp.ResourceHandler {
	return func(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI

		instanceType, ok := strings.CutPrefix(uri, instanceTypePrefix)
		if !ok || instanceType == "" {
			return nil, mcp.ResourceNotFoundError(uri)
		}
		for _, e := range r.catalog.Entries() {
			if e.Type == instanceType {
				return r.jsonResult(uri, e)
			}
		}
		return r.jsonResult(uri, map[string]interface{}{
			"error": "Unknown instance type " + instanceType,
			"hint":  "Read catalog://instance-types for the known types",
		})
	}
}
