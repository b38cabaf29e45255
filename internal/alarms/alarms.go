// Package alarms owns the alarm definitions written for an instance: their
// deterministic names, idempotent upserts, the composite correlation gate and
// the ordered deletion on termination.
package alarms

import (
	"context"
	"strings"

	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

// Constant attributes shared by every alarm the pipeline writes.
const (
	Namespace        = "AWS/EC2"
	Statistic        = "Maximum"
	InstanceIDDim    = "InstanceId"
	AppTagKey        = "App"
	AppTagValue      = "AutomatedAndDynamicAlarmForCPUCredits"
	InstanceIDTagKey = "InstanceId"
)

// MetricKind is one of the two metrics an instance is alarmed on.
type MetricKind string

const (
	KindCreditBalance MetricKind = "CPUCreditBalance"
	KindUtilization   MetricKind = "CPUUtilization"
)

// Comparison is a CloudWatch comparison operator.
type Comparison string

const (
	LessThanOrEqual    Comparison = "LessThanOrEqualToThreshold"
	GreaterThanOrEqual Comparison = "GreaterThanOrEqualToThreshold"
)

// Comparison returns the operator used for the kind.
func (k MetricKind) Comparison() Comparison {
	if k == KindCreditBalance {
		return LessThanOrEqual
	}
	return GreaterThanOrEqual
}

const (
	creditSuffix      = "CPUCreditBalance-Less-Than-Threshold"
	utilizationSuffix = "CPUUtilization-More-Than-Baseline-Percentage"
	compositeSuffix   = "Composite-Alarm-CPUCreditBalance-And-CPUUtilization-Thresholds-Breached"
)

// Identity derives every alarm name of one instance.
type Identity struct {
	InstanceID   string
	InstanceType string
}

func (i Identity) name(suffix string) string {
	return i.InstanceID + "-" + i.InstanceType + "-" + suffix
}

// CreditAlarmName is the CPUCreditBalance alarm name.
func (i Identity) CreditAlarmName() string { return i.name(creditSuffix) }

// UtilizationAlarmName is the CPUUtilization alarm name.
func (i Identity) UtilizationAlarmName() string { return i.name(utilizationSuffix) }

// CompositeAlarmName is the composite alarm name.
func (i Identity) CompositeAlarmName() string { return i.name(compositeSuffix) }

// MetricAlarmName returns the alarm name for kind.
func (i Identity) MetricAlarmName(kind MetricKind) string {
	if kind == KindCreditBalance {
		return i.CreditAlarmName()
	}
	return i.UtilizationAlarmName()
}

// Prefix matches every alarm of an instance id.
func Prefix(instanceID string) string {
	return instanceID + "-"
}

// InstanceIDFromAlarmName recovers the instance id from a generated alarm
// name by splitting on the "-" that follows the id. Ids have the form
// "i-" followed by hex digits of any length.
func InstanceIDFromAlarmName(name string) (string, bool) {
	if !strings.HasPrefix(name, "i-") {
		return "", false
	}
	hex, _, found := strings.Cut(name[2:], "-")
	if !found || hex == "" {
		return "", false
	}
	for _, r := range hex {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", false
		}
	}
	return "i-" + hex, true
}

// Tag is a key/value alarm tag.
type Tag struct {
	Key   string
	Value string
}

// Dimension is a metric dimension.
type Dimension struct {
	Name  string
	Value string
}

// MetricAlarm is a full metric alarm definition.
type MetricAlarm struct {
	Name              string
	Description       string
	MetricName        string
	Namespace         string
	Statistic         string
	Dimensions        []Dimension
	Period            int32
	Threshold         float64
	Comparison        Comparison
	EvaluationPeriods int32
	DatapointsToAlarm int32
	ActionsEnabled    bool
	AlarmActions      []string
	Tags              []Tag
}

// CompositeAlarm is a composite alarm definition.
type CompositeAlarm struct {
	Name           string
	Description    string
	Rule           string
	ActionsEnabled bool
	AlarmActions   []string
	Tags           []Tag
}

// TagValue returns the value of key, or "".
func (c CompositeAlarm) TagValue(key string) string {
	for _, t := range c.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// Listing groups alarm names by type.
type Listing struct {
	Composite []string `json:"composite"`
	Metric    []string `json:"metric"`
}

// Empty reports whether the listing has no alarms.
func (l Listing) Empty() bool {
	return len(l.Composite) == 0 && len(l.Metric) == 0
}

// Store is the alarm store the manager and gate write to. PutMetricAlarm and
// PutCompositeAlarm are create-or-replace by name.
type Store interface {
	PutMetricAlarm(ctx context.Context, alarm MetricAlarm) error
	PutCompositeAlarm(ctx context.Context, alarm CompositeAlarm) error
	FindCompositeAlarm(ctx context.Context, name string) (*CompositeAlarm, bool, error)
	ListAlarmsByPrefix(ctx context.Context, prefix string) (Listing, error)
	DeleteAlarms(ctx context.Context, names []string) error
}

// MetricAlarmSpec is everything needed to write one metric alarm.
type MetricAlarmSpec struct {
	Identity Identity
	Kind     MetricKind
	Params   threshold.AlarmParams
	Actions  []string
}

// BuildMetricAlarm renders spec into a full definition.
func BuildMetricAlarm(spec MetricAlarmSpec) MetricAlarm {
	return MetricAlarm{
		Name:              spec.Identity.MetricAlarmName(spec.Kind),
		Description:       spec.Params.Description,
		MetricName:        string(spec.Kind),
		Namespace:         Namespace,
		Statistic:         Statistic,
		Dimensions:        []Dimension{{Name: InstanceIDDim, Value: spec.Identity.InstanceID}},
		Period:            spec.Params.Period,
		Threshold:         spec.Params.Threshold,
		Comparison:        spec.Kind.Comparison(),
		EvaluationPeriods: spec.Params.EvaluationPeriods,
		DatapointsToAlarm: spec.Params.DatapointsToAlarm,
		ActionsEnabled:    true,
		AlarmActions:      spec.Actions,
		Tags:              []Tag{{Key: AppTagKey, Value: AppTagValue}},
	}
}
