// Package classifier decides whether an instance is burstable and how its
// workload should be treated when alarms are sized.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Workload is the derived workload classification of an instance.
type Workload string

const (
	WorkloadStandard         Workload = "standard"
	WorkloadComputeIntensive Workload = "compute-intensive"
)

// Platform names as used by the process metric lookup.
const (
	PlatformLinux   = "Linux"
	PlatformWindows = "Windows"
)

// NameTag is the tag holding an instance's display name.
const NameTag = "Name"

// Instance is the metadata the classifier needs about one instance.
type Instance struct {
	ID              string
	Type            string
	State           string
	PlatformDetails string
	Tags            map[string]string
}

// Tag returns the value of key, or "" when absent.
func (i Instance) Tag(key string) string {
	if i.Tags == nil {
		return ""
	}
	return i.Tags[key]
}

// Rules configure classification.
type Rules struct {
	BurstableFamilies        []string
	ComputeIntensivePatterns []string
}

// Result is the outcome of classifying one instance.
type Result struct {
	InstanceID       string `json:"instance_id"`
	InstanceType     string `json:"instance_type"`
	Family           string `json:"family"`
	DisplayName      string `json:"display_name"`
	Platform         string `json:"platform"`
	State            string `json:"state,omitempty"`
	IsBurstable      bool   `json:"is_burstable"`
	IsT2Legacy       bool   `json:"is_t2_legacy"`
	ComputeIntensive bool   `json:"compute_intensive"`
}

// Workload maps the compute-intensive flag onto a Workload.
func (r Result) Workload() Workload {
	if r.ComputeIntensive {
		return WorkloadComputeIntensive
	}
	return WorkloadStandard
}

// Family returns the text before the first "." of an instance type.
func Family(instanceType string) string {
	family, _, _ := strings.Cut(instanceType, ".")
	return family
}

// Platform derives the OS platform from the image's platform details.
// Empty details are treated as Linux.
func Platform(platformDetails string) string {
	if platformDetails == "" || strings.Contains(strings.ToLower(platformDetails), "linux") {
		return PlatformLinux
	}
	return PlatformWindows
}

// MatchesAny reports whether name contains any non-empty pattern.
func MatchesAny(name string, patterns []string) bool {
	if name == "" {
		return false
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(name, p) {
			return true
		}
	}
	return false
}

// ClassifyInstance is the pure classification core.
func ClassifyInstance(inst Instance, rules Rules) Result {
	family := Family(inst.Type)
	name := inst.Tag(NameTag)

	burstable := false
	for _, f := range rules.BurstableFamilies {
		if f == family {
			burstable = true
			break
		}
	}

	return Result{
		InstanceID:       inst.ID,
		InstanceType:     inst.Type,
		Family:           family,
		DisplayName:      name,
		Platform:         Platform(inst.PlatformDetails),
		State:            inst.State,
		IsBurstable:      burstable,
		IsT2Legacy:       strings.HasPrefix(inst.Type, "t2"),
		ComputeIntensive: MatchesAny(name, rules.ComputeIntensivePatterns),
	}
}

// InstanceDescriber resolves an instance id to its metadata. Implementations
// return an INSTANCE_NOT_FOUND structured error for unknown ids.
type InstanceDescriber interface {
	DescribeInstance(ctx context.Context, instanceID string) (*Instance, error)
}

// Classifier classifies instances by id.
type Classifier struct {
	describer InstanceDescriber
	rules     Rules
	logger    *zap.Logger
}

// New creates a classifier.
func New(describer InstanceDescriber, rules Rules, logger *zap.Logger) *Classifier {
	return &Classifier{
		describer: describer,
		rules:     rules,
		logger:    logger.Named("classifier"),
	}
}

// Rules returns the rules the classifier applies.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// Classify describes the instance and classifies it.
func (c *Classifier) Classify(ctx context.Context, instanceID string) (Result, error) {
	inst, err := c.describer.DescribeInstance(ctx, instanceID)
	if err != nil {
		return Result{}, fmt.Errorf("describe instance %s: %w", instanceID, err)
	}

	res := ClassifyInstance(*inst, c.rules)
	c.logger.Debug("Classified instance",
		zap.String("instance_id", res.InstanceID),
		zap.String("instance_type", res.InstanceType),
		zap.Bool("burstable", res.IsBurstable),
		zap.Bool("compute_intensive", res.ComputeIntensive),
	)
	return res, nil
}
