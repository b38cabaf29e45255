// Package paramstore reads and writes the alarm tunables kept in the
// parameter store. Every invocation takes a fresh snapshot, so an update
// applies from the next invocation on.
package paramstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/audit"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

// Parameters is the parameter store.
type Parameters interface {
	// GetParameters returns the values of names. A missing name is an error.
	GetParameters(ctx context.Context, names []string) (map[string]string, error)
	PutParameter(ctx context.Context, name, value, description string) error
}

// Names are the parameter names of the alarm tunables.
type Names struct {
	Period            string
	Datapoints        string
	EvaluationPeriods string
	Threshold         string
	MaintenanceTopic  string
}

// Store wraps Parameters with typed access.
type Store struct {
	params Parameters
	names  Names
	audit  *audit.Logger
	logger *zap.Logger
}

// New creates a store.
func New(params Parameters, names Names, auditLog *audit.Logger, logger *zap.Logger) *Store {
	return &Store{
		params: params,
		names:  names,
		audit:  auditLog,
		logger: logger.Named("paramstore"),
	}
}

// Names returns the parameter names in use.
func (s *Store) Names() Names {
	return s.names
}

// Snapshot reads the current alarm configuration.
func (s *Store) Snapshot(ctx context.Context) (threshold.AlarmConfig, error) {
	names := []string{s.names.Threshold, s.names.Period, s.names.Datapoints, s.names.EvaluationPeriods}
	values, err := s.params.GetParameters(ctx, names)
	if err != nil {
		return threshold.AlarmConfig{}, err
	}

	var cfg threshold.AlarmConfig
	if cfg.Threshold, err = parseFloat(s.names.Threshold, values[s.names.Threshold]); err != nil {
		return threshold.AlarmConfig{}, err
	}
	if cfg.Period, err = parseInt32(s.names.Period, values[s.names.Period]); err != nil {
		return threshold.AlarmConfig{}, err
	}
	if cfg.DatapointsToAlarm, err = parseInt32(s.names.Datapoints, values[s.names.Datapoints]); err != nil {
		return threshold.AlarmConfig{}, err
	}
	if cfg.EvaluationPeriods, err = parseInt32(s.names.EvaluationPeriods, values[s.names.EvaluationPeriods]); err != nil {
		return threshold.AlarmConfig{}, err
	}

	s.logger.Debug("Loaded alarm configuration",
		zap.Float64("threshold", cfg.Threshold),
		zap.Int32("period", cfg.Period),
		zap.Int32("datapoints", cfg.DatapointsToAlarm),
		zap.Int32("evaluation_periods", cfg.EvaluationPeriods),
	)
	return cfg, nil
}

// Update carries the values to change. Zero fields are left as stored.
type Update struct {
	Threshold         float64 `json:"threshold,omitempty"`
	Period            int32   `json:"period,omitempty"`
	DatapointsToAlarm int32   `json:"datapoints_to_alarm,omitempty"`
	EvaluationPeriods int32   `json:"evaluation_periods,omitempty"`
}

// IsZero reports whether the update changes nothing.
func (u Update) IsZero() bool {
	return u == Update{}
}

// Apply merges u onto cfg.
func (u Update) Apply(cfg threshold.AlarmConfig) threshold.AlarmConfig {
	if u.Threshold != 0 {
		cfg.Threshold = u.Threshold
	}
	if u.Period != 0 {
		cfg.Period = u.Period
	}
	if u.DatapointsToAlarm != 0 {
		cfg.DatapointsToAlarm = u.DatapointsToAlarm
	}
	if u.EvaluationPeriods != 0 {
		cfg.EvaluationPeriods = u.EvaluationPeriods
	}
	return cfg
}

// UpdateAlarmConfig validates the merged configuration and writes the
// parameters that changed. Nothing is written when validation fails.
func (s *Store) UpdateAlarmConfig(ctx context.Context, u Update) (threshold.AlarmConfig, error) {
	if u.IsZero() {
		return threshold.AlarmConfig{}, apperrors.NewInvalidInput("at least one alarm configuration value must be provided")
	}

	current, err := s.Snapshot(ctx)
	if err != nil {
		return threshold.AlarmConfig{}, err
	}
	next := u.Apply(current)
	if err := next.Validate(); err != nil {
		return threshold.AlarmConfig{}, err
	}

	writes := []struct {
		name, value, desc string
		changed           bool
	}{
		{s.names.Period, strconv.Itoa(int(next.Period)), "Period", next.Period != current.Period},
		{s.names.Datapoints, strconv.Itoa(int(next.DatapointsToAlarm)), "Datapoints", next.DatapointsToAlarm != current.DatapointsToAlarm},
		{s.names.EvaluationPeriods, strconv.Itoa(int(next.EvaluationPeriods)), "Evaluation periods", next.EvaluationPeriods != current.EvaluationPeriods},
		{s.names.Threshold, strconv.FormatFloat(next.Threshold, 'f', -1, 64), "Threshold", next.Threshold != current.Threshold},
	}
	for _, w := range writes {
		if !w.changed {
			continue
		}
		start := time.Now()
		err := s.params.PutParameter(ctx, w.name, w.value, w.desc)
		s.audit.LogMutation(ctx, audit.OpWrite, audit.ResourceParameter, w.name, "", time.Since(start), err)
		if err != nil {
			return threshold.AlarmConfig{}, err
		}
		s.logger.Info("Updated alarm parameter", zap.String("name", w.name), zap.String("value", w.value))
	}
	return next, nil
}

// MaintenanceTopic returns the ARN of the maintenance topic.
func (s *Store) MaintenanceTopic(ctx context.Context) (string, error) {
	values, err := s.params.GetParameters(ctx, []string{s.names.MaintenanceTopic})
	if err != nil {
		return "", err
	}
	arn := strings.TrimSpace(values[s.names.MaintenanceTopic])
	if arn == "" {
		return "", apperrors.NewParameterStore(s.names.MaintenanceTopic, fmt.Errorf("empty value"))
	}
	return arn, nil
}

func parseFloat(name, raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperrors.NewInvalidConfig(fmt.Sprintf("parameter %s is not a number: %q", name, raw)).WithCause(err)
	}
	return v, nil
}

func parseInt32(name, raw string) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, apperrors.NewInvalidConfig(fmt.Sprintf("parameter %s is not an integer: %q", name, raw)).WithCause(err)
	}
	return int32(v), nil
}
