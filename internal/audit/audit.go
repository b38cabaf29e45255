// Package audit records every mutation the pipeline makes to alarms,
// instance tags and alarm parameters.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/tracing"
)

// Operations
const (
	OpUpsert  = "upsert"
	OpDelete  = "delete"
	OpTag     = "tag"
	OpWrite   = "write"
	OpPublish = "publish"
)

// Resources
const (
	ResourceMetricAlarm    = "metric_alarm"
	ResourceCompositeAlarm = "composite_alarm"
	ResourceInstanceTag    = "instance_tag"
	ResourceParameter      = "parameter"
	ResourceTopic          = "topic"
)

// Entry represents a single audit log entry
type Entry struct {
	Timestamp  time.Time              `json:"timestamp"`
	TraceID    string                 `json:"trace_id,omitempty"`
	SpanID     string                 `json:"span_id,omitempty"`
	Actor      string                 `json:"actor"` // pipeline stage or operator tool
	Operation  string                 `json:"operation"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	InstanceID string                 `json:"instance_id,omitempty"`
	Success    bool                   `json:"success"`
	Duration   time.Duration          `json:"duration_ms"`
	ErrorCode  string                 `json:"error_code,omitempty"`
	ErrorMsg   string                 `json:"error_message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type actorKey struct{}

// WithActor tags ctx with the stage or tool performing mutations.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor, or "unknown".
func ActorFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return "unknown"
}

// Logger handles audit logging. A nil *Logger discards entries.
type Logger struct {
	enabled bool
	logger  *zap.Logger

	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
}

// NewLogger creates a new audit logger
func NewLogger(logger *zap.Logger, enabled bool) *Logger {
	return &Logger{
		enabled:    enabled,
		logger:     logger.Named("audit"),
		entries:    make([]Entry, 0, 256),
		maxEntries: 1000,
	}
}

// Log records an audit entry
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if l == nil || !l.enabled {
		return
	}

	traceInfo := tracing.FromContext(ctx)
	if traceInfo.TraceID != "" {
		entry.TraceID = traceInfo.TraceID
		entry.SpanID = traceInfo.SpanID
	}
	if entry.Actor == "" {
		entry.Actor = ActorFromContext(ctx)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("actor", entry.Actor),
		zap.String("operation", entry.Operation),
		zap.String("resource", entry.Resource),
		zap.String("resource_id", entry.ResourceID),
		zap.Bool("success", entry.Success),
		zap.Duration("duration", entry.Duration),
	}
	if entry.TraceID != "" {
		fields = append(fields, zap.String("trace_id", entry.TraceID))
	}
	if entry.InstanceID != "" {
		fields = append(fields, zap.String("instance_id", entry.InstanceID))
	}
	if entry.ErrorCode != "" {
		fields = append(fields, zap.String("error_code", entry.ErrorCode))
	}
	if entry.ErrorMsg != "" {
		fields = append(fields, zap.String("error_message", entry.ErrorMsg))
	}

	l.logger.Info("audit", fields...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) >= l.maxEntries {
		l.entries = l.entries[1:]
	}
	l.entries = append(l.entries, entry)
}

// LogMutation is a convenience method for a single mutating call
func (l *Logger) LogMutation(ctx context.Context, operation, resource, resourceID, instanceID string, duration time.Duration, err error) {
	entry := Entry{
		Operation:  operation,
		Resource:   resource,
		ResourceID: resourceID,
		InstanceID: instanceID,
		Success:    err == nil,
		Duration:   duration,
	}
	if err != nil {
		entry.ErrorCode = string(apperrors.CodeOf(err))
		entry.ErrorMsg = err.Error()
	}
	l.Log(ctx, entry)
}

// GetRecentEntries returns the most recent audit entries, newest first
func (l *Logger) GetRecentEntries(limit int) []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}

	result := make([]Entry, limit)
	copy(result, l.entries[len(l.entries)-limit:])
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// GetEntriesByInstance returns entries touching one instance, newest first
func (l *Logger) GetEntriesByInstance(instanceID string, limit int) []Entry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Entry
	for i := len(l.entries) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		if l.entries[i].InstanceID == instanceID {
			result = append(result, l.entries[i])
		}
	}
	return result
}

// Stats contains aggregated audit statistics
type Stats struct {
	TotalEntries    int            `json:"total_entries"`
	SuccessRate     float64        `json:"success_rate_pct"`
	AverageDuration time.Duration  `json:"average_duration"`
	ActorCounts     map[string]int `json:"actor_counts"`
	OperationCounts map[string]int `json:"operation_counts"`
	ErrorCounts     map[string]int `json:"error_counts"`
}

// GetStats returns statistics about audit entries
func (l *Logger) GetStats() Stats {
	stats := Stats{
		ActorCounts:     make(map[string]int),
		OperationCounts: make(map[string]int),
		ErrorCounts:     make(map[string]int),
	}
	if l == nil {
		return stats
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats.TotalEntries = len(l.entries)
	var successCount int
	var totalDuration time.Duration
	for _, entry := range l.entries {
		stats.ActorCounts[entry.Actor]++
		stats.OperationCounts[entry.Resource+"."+entry.Operation]++
		if entry.Success {
			successCount++
		} else if entry.ErrorCode != "" {
			stats.ErrorCounts[entry.ErrorCode]++
		}
		totalDuration += entry.Duration
	}
	if len(l.entries) > 0 {
		stats.SuccessRate = float64(successCount) / float64(len(l.entries)) * 100
		stats.AverageDuration = totalDuration / time.Duration(len(l.entries))
	}
	return stats
}

// ToJSON returns the stats as JSON
func (s Stats) ToJSON() string {
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Clear clears all audit entries
func (l *Logger) Clear() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = l.entries[:0]
}

// IsEnabled returns whether audit logging is enabled
func (l *Logger) IsEnabled() bool {
	return l != nil && l.enabled
}
