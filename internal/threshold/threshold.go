// Package threshold computes the concrete parameters of the credit balance
// and utilization alarms for an instance.
//
// Credit thresholds for t2 instances are the flat launch credit of the type.
// For every other burstable type the threshold is vCPUs times the configured
// per-vCPU base. When that product exceeds 80% of the type's maximum credit
// balance the threshold drops to 20% of the maximum instead. The drop is
// intentionally non-monotonic: a threshold close to the credit ceiling would
// keep the alarm permanently near breach, so a low-water mark is used.
package threshold

import (
	"fmt"
	"strconv"

	"github.com/tareqmamari/credit-alarms/internal/classifier"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/instancetype"
)

const (
	highWaterFraction = 0.8
	lowWaterFraction  = 0.2
)

// AlarmConfig is the tunable evaluation window plus the base threshold.
type AlarmConfig struct {
	Threshold         float64 `json:"threshold"`
	Period            int32   `json:"period"`
	DatapointsToAlarm int32   `json:"datapoints_to_alarm"`
	EvaluationPeriods int32   `json:"evaluation_periods"`
}

// Validate checks the window constraints CloudWatch enforces plus
// datapoints <= evaluation periods.
func (c AlarmConfig) Validate() error {
	if !ValidPeriod(c.Period) {
		return apperrors.NewInvalidConfig(fmt.Sprintf("period %d must be 10, 30 or a positive multiple of 60", c.Period))
	}
	if c.DatapointsToAlarm <= 0 {
		return apperrors.NewInvalidConfig("datapoints to alarm must be positive")
	}
	if c.EvaluationPeriods <= 0 {
		return apperrors.NewInvalidConfig("evaluation periods must be positive")
	}
	if c.DatapointsToAlarm > c.EvaluationPeriods {
		return apperrors.NewInvalidConfig(fmt.Sprintf("datapoints to alarm (%d) exceeds evaluation periods (%d)",
			c.DatapointsToAlarm, c.EvaluationPeriods))
	}
	if c.Threshold < 0 {
		return apperrors.NewInvalidConfig("threshold must not be negative")
	}
	return nil
}

// ValidPeriod reports whether p is an accepted alarm period in seconds.
func ValidPeriod(p int32) bool {
	switch {
	case p == 10 || p == 30:
		return true
	case p > 0 && p%60 == 0:
		return true
	default:
		return false
	}
}

// Window is a datapoints / evaluation periods pair.
type Window struct {
	DatapointsToAlarm int32 `json:"datapoints_to_alarm"`
	EvaluationPeriods int32 `json:"evaluation_periods"`
}

// ResolveAlarmConfig applies the workload classification to base. Compute
// intensive workloads take the additional window; period and threshold are
// never touched.
func ResolveAlarmConfig(base AlarmConfig, workload classifier.Workload, additional Window) AlarmConfig {
	if workload != classifier.WorkloadComputeIntensive {
		return base
	}
	resolved := base
	resolved.DatapointsToAlarm = additional.DatapointsToAlarm
	resolved.EvaluationPeriods = additional.EvaluationPeriods
	return resolved
}

// ClampCredit applies the high-water fallback to a naive threshold.
func ClampCredit(naive, maxCredit float64) float64 {
	if naive > highWaterFraction*maxCredit {
		return lowWaterFraction * maxCredit
	}
	return naive
}

// Engine computes alarm parameters from the instance type catalog.
type Engine struct {
	catalog *instancetype.Catalog
}

// NewEngine creates an engine over catalog.
func NewEngine(catalog *instancetype.Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// CreditThreshold returns the CPUCreditBalance threshold for a type.
func (e *Engine) CreditThreshold(instanceType string, isT2Legacy bool, basePerVCPU float64) (float64, error) {
	if isT2Legacy {
		return e.catalog.LaunchCredit(instanceType)
	}
	spec, err := e.catalog.Lookup(instanceType)
	if err != nil {
		return 0, err
	}
	return ClampCredit(float64(spec.VCPUs)*basePerVCPU, spec.MaxCPUCredit), nil
}

// UtilizationThreshold returns the baseline utilization percentage for a type.
func (e *Engine) UtilizationThreshold(instanceType string) (float64, error) {
	return e.catalog.Baseline(instanceType)
}

// AlarmParams are the concrete values written to one metric alarm.
type AlarmParams struct {
	Threshold         float64 `json:"threshold"`
	Period            int32   `json:"period"`
	DatapointsToAlarm int32   `json:"datapoints_to_alarm"`
	EvaluationPeriods int32   `json:"evaluation_periods"`
	Description       string  `json:"description"`
}

// CreditAlarmParams combines the credit threshold with an already resolved config.
func (e *Engine) CreditAlarmParams(instanceType string, isT2Legacy bool, cfg AlarmConfig) (AlarmParams, error) {
	threshold, err := e.CreditThreshold(instanceType, isT2Legacy, cfg.Threshold)
	if err != nil {
		return AlarmParams{}, err
	}

	desc := "Raise alarm when CPUCreditBalance drops below " + formatFloat(threshold)
	if isT2Legacy {
		desc = "Raise alarm when CPUCreditBalance drops below launch credit: " + formatFloat(threshold)
	}
	return AlarmParams{
		Threshold:         threshold,
		Period:            cfg.Period,
		DatapointsToAlarm: cfg.DatapointsToAlarm,
		EvaluationPeriods: cfg.EvaluationPeriods,
		Description:       desc,
	}, nil
}

// UtilizationAlarmParams combines the baseline with an already resolved config.
func (e *Engine) UtilizationAlarmParams(instanceType string, cfg AlarmConfig) (AlarmParams, error) {
	threshold, err := e.UtilizationThreshold(instanceType)
	if err != nil {
		return AlarmParams{}, err
	}
	return AlarmParams{
		Threshold:         threshold,
		Period:            cfg.Period,
		DatapointsToAlarm: cfg.DatapointsToAlarm,
		EvaluationPeriods: cfg.EvaluationPeriods,
		Description:       "Raise alarm when CPUUtilization reaches baseline " + formatFloat(threshold) + "%",
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
