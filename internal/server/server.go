// Package server provides the operator MCP server for the credit alarm pipeline.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/app"
	"github.com/tareqmamari/credit-alarms/internal/audit"
	"github.com/tareqmamari/credit-alarms/internal/cache"
	"github.com/tareqmamari/credit-alarms/internal/config"
	"github.com/tareqmamari/credit-alarms/internal/health"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
	"github.com/tareqmamari/credit-alarms/internal/prompts"
	"github.com/tareqmamari/credit-alarms/internal/resources"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
	"github.com/tareqmamari/credit-alarms/internal/tools"
	"github.com/tareqmamari/credit-alarms/internal/tracing"
)

// Server represents the MCP server
type Server struct {
	mcpServer    *mcp.Server
	app          *app.App
	config       *config.Config
	logger       *zap.Logger
	metrics      *metrics.Metrics
	version      string
	healthServer *health.Server
	tools        []tools.Tool
}

// New creates the AWS clients and a new MCP server around them.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, version string) (*Server, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline components: %w", err)
	}
	return NewWithApp(a, logger, version), nil
}

// NewWithApp creates a new MCP server over already assembled components.
func NewWithApp(a *app.App, logger *zap.Logger, version string) *Server {
	cfg := a.Config
	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "EC2 Credit Alarms MCP Server",
		Version: version,
	}, &mcp.ServerOptions{
		HasTools:     true,
		HasPrompts:   true,
		HasResources: true,
	})

	s := &Server{
		mcpServer: mcpServer,
		app:       a,
		config:    cfg,
		logger:    logger,
		metrics:   a.Metrics,
		version:   version,
	}

	if cfg.HealthPort > 0 {
		registry := a.Metrics.Registry()
		if !cfg.MetricsEndpoint {
			registry = nil
		}
		checker := health.New(a.Client, a.Params, logger)
		s.healthServer = health.NewServer(checker, logger, cfg.HealthPort, cfg.HealthBindAddr, registry)
	}

	s.registerTools()
	s.registerPrompts()
	s.registerResources()

	return s
}

// toolDeps wires the operator tools to the pipeline components.
func (s *Server) toolDeps() *tools.Deps {
	a := s.app
	return &tools.Deps{
		Config:     a.Params,
		Trigger:    a.Trigger,
		Alarms:     a.Alarms,
		Classifier: a.Classifier,
		Tagger:     a.Client.Instances(),
		Engine:     a.Engine,
		Audit:      a.Audit,
		Cache:      cache.NewManager(nil),
		Scope:      cache.Scope(s.config.DeploymentID, s.config.Region),
		Additional: threshold.Window{
			DatapointsToAlarm: s.config.AdditionalDatapoints,
			EvaluationPeriods: s.config.AdditionalEvaluationPeriods,
		},
		SuppressTagName:  s.config.SuppressTagName,
		SuppressTagValue: s.config.SuppressTagValue,
	}
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	s.tools = tools.GetAllTools(s.toolDeps(), s.logger)
	for _, t := range s.tools {
		s.registerTool(t)
	}
	s.logger.Info("Registered all MCP tools", zap.Int("count", len(s.tools)))
}

// registerTool registers one tool with metrics, tracing and audit attribution.
func (s *Server) registerTool(t tools.Tool) {
	mcpTool := &mcp.Tool{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
		Annotations: t.Annotations(),
	}

	s.mcpServer.AddTool(mcpTool, s.toolHandler(t))
	s.logger.Debug("Registered tool", zap.String("tool", mcpTool.Name))
}

func (s *Server) toolHandler(t tools.Tool) mcp.ToolHandler {
	toolName := t.Name()
	return func(ctx context.Context, request *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()

		ctx = audit.WithActor(ctx, "operator:"+toolName)
		ctx, span := tracing.ToolSpan(ctx, toolName)
		defer span.End()

		if timeout := t.DefaultTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var args map[string]interface{}
		if len(request.Params.Arguments) > 0 {
			if err := json.Unmarshal(request.Params.Arguments, &args); err != nil {
				s.metrics.RecordToolExecution(toolName, false, time.Since(start))
				tracing.RecordError(span, err)
				return nil, fmt.Errorf("failed to unmarshal arguments: %w", err)
			}
		}

		result, err := t.Execute(ctx, args)
		success := err == nil && (result == nil || !result.IsError)
		s.metrics.RecordToolExecution(toolName, success, time.Since(start))
		if success {
			tracing.SetSuccess(span)
		} else if err != nil {
			tracing.RecordError(span, err)
		}

		return result, err
	}
}

// registerPrompts registers the operator workflow prompts
func (s *Server) registerPrompts() {
	registry := prompts.NewRegistry(s.logger)

	for _, p := range registry.GetPrompts() {
		s.mcpServer.AddPrompt(p.Prompt, p.Handler)
		s.logger.Debug("Registered prompt", zap.String("prompt", p.Prompt.Name))
	}

	s.logger.Info("Registered all MCP prompts", zap.Int("count", len(registry.GetPrompts())))
}

// registerResources registers all available MCP resources and resource templates
func (s *Server) registerResources() {
	registry := resources.NewRegistry(s.config, s.app.Catalog, s.metrics, s.app.Audit, s.logger, s.version)

	for _, r := range registry.GetResources() {
		s.mcpServer.AddResource(r.Resource, r.Handler)
		s.logger.Debug("Registered resource", zap.String("uri", r.Resource.URI))
	}

	templateHandler := registry.GetTemplateHandler()
	for _, t := range registry.GetResourceTemplates() {
		s.mcpServer.AddResourceTemplate(&t, templateHandler)
		s.logger.Debug("Registered resource template", zap.String("uri_template", t.URITemplate))
	}

	s.logger.Info("Registered all MCP resources",
		zap.Int("static_count", len(registry.GetResources())),
		zap.Int("template_count", len(registry.GetResourceTemplates())),
	)
}

// Start starts the MCP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server")

	if s.healthServer != nil {
		go func() {
			if err := s.healthServer.Start(); err != nil {
				s.logger.Error("Health server error", zap.Error(err))
			}
		}()
		s.healthServer.SetReady(true)
	}

	defer func() {
		s.metrics.LogStats()

		if s.healthServer != nil {
			s.healthServer.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.healthServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("Failed to shutdown health server", zap.Error(err))
			}
		}
	}()

	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// GetMetrics returns the server's metrics tracker for external access
func (s *Server) GetMetrics() *metrics.Metrics {
	return s.metrics
}
