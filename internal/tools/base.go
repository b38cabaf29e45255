package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/audit"
	"github.com/tareqmamari/credit-alarms/internal/cache"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	"github.com/tareqmamari/credit-alarms/internal/paramstore"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

// ConfigStore reads and updates the alarm parameters.
type ConfigStore interface {
	Snapshot(ctx context.Context) (threshold.AlarmConfig, error)
	UpdateAlarmConfig(ctx context.Context, u paramstore.Update) (threshold.AlarmConfig, error)
}

// ReconcileTrigger starts a bulk reconciliation run.
type ReconcileTrigger interface {
	Trigger(ctx context.Context, operation string) (string, error)
}

// AlarmInventory lists and removes the alarms of an instance.
type AlarmInventory interface {
	ListForInstance(ctx context.Context, instanceID string) (alarms.Listing, error)
	DeleteAllForInstance(ctx context.Context, instanceID string) (alarms.Deleted, error)
}

// InstanceClassifier classifies an instance by id.
type InstanceClassifier interface {
	Classify(ctx context.Context, instanceID string) (classifier.Result, error)
}

// InstanceTagger tags an instance.
type InstanceTagger interface {
	TagInstance(ctx context.Context, instanceID, key, value string) error
}

// Deps are the pipeline components the tools operate on.
type Deps struct {
	Config     ConfigStore
	Trigger    ReconcileTrigger
	Alarms     AlarmInventory
	Classifier InstanceClassifier
	Tagger     InstanceTagger
	Engine     *threshold.Engine
	Audit      *audit.Logger
	Cache      *cache.Manager

	// Scope isolates cached results per deployment.
	Scope            string
	Additional       threshold.Window
	SuppressTagName  string
	SuppressTagValue string
}

// BaseTool provides the dependencies and helpers shared by every tool.
type BaseTool struct {
	deps   *Deps
	logger *zap.Logger
}

// NewBaseTool creates a new base tool
func NewBaseTool(deps *Deps, logger *zap.Logger) *BaseTool {
	return &BaseTool{deps: deps, logger: logger}
}

// DefaultTimeout returns the budget for one AWS round trip plus retries.
func (t *BaseTool) DefaultTimeout() time.Duration {
	return 30 * time.Second
}

// FormatResponse renders result as indented JSON text content.
func (t *BaseTool) FormatResponse(result interface{}) (*mcp.CallToolResult, error) {
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format response: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(body)},
		},
	}, nil
}

// cached returns the cached result of tool for key, or computes, caches and
// returns it. Errors are not cached.
func (t *BaseTool) cached(tool, key string, compute func() (interface{}, error)) (interface{}, bool, error) {
	if t.deps.Cache != nil {
		if v, ok := t.deps.Cache.Get(t.deps.Scope, tool, key); ok {
			return v, true, nil
		}
	}
	v, err := compute()
	if err != nil {
		return nil, false, err
	}
	if t.deps.Cache != nil {
		t.deps.Cache.Set(t.deps.Scope, tool, key, v)
	}
	return v, false, nil
}

// invalidate drops the cached results a mutation by tool stales.
func (t *BaseTool) invalidate(tool string) {
	if t.deps.Cache == nil {
		return
	}
	if n := t.deps.Cache.InvalidateRelated(t.deps.Scope, tool); n > 0 {
		t.logger.Debug("Invalidated cached results", zap.String("tool", tool), zap.Int("entries", n))
	}
}
