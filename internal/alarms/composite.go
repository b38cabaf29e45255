package alarms

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/audit"
)

// Outcome is the result of EnsureComposite.
type Outcome string

const (
	OutcomeCreated       Outcome = "created"
	OutcomeAlreadyExists Outcome = "already_exists"
)

// CompositeRequest names the two child alarms of one instance.
type CompositeRequest struct {
	InstanceID           string
	InstanceType         string
	CreditAlarmName      string
	UtilizationAlarmName string
	App                  string
}

// Identity returns the naming identity of the request.
func (r CompositeRequest) Identity() Identity {
	return Identity{InstanceID: r.InstanceID, InstanceType: r.InstanceType}
}

// CompositeRule is the AND of both child alarms being in ALARM.
func CompositeRule(creditAlarm, utilizationAlarm string) string {
	return fmt.Sprintf("ALARM(%q) AND ALARM(%q)", creditAlarm, utilizationAlarm)
}

// BuildComposite renders the composite definition for req.
func BuildComposite(req CompositeRequest, actions []string) CompositeAlarm {
	tags := []Tag{
		{Key: AppTagKey, Value: AppTagValue},
		{Key: InstanceIDTagKey, Value: req.InstanceID},
	}
	return CompositeAlarm{
		Name: req.Identity().CompositeAlarmName(),
		Description: fmt.Sprintf("Composite alarm for %s and %s (instance %s)",
			req.CreditAlarmName, req.UtilizationAlarmName, req.InstanceID),
		Rule:           CompositeRule(req.CreditAlarmName, req.UtilizationAlarmName),
		ActionsEnabled: true,
		AlarmActions:   actions,
		Tags:           tags,
	}
}

// Gate creates the composite alarm of an instance at most once.
type Gate struct {
	store   Store
	actions []string
	logger  *zap.Logger
	obs     observer
}

// NewGate creates a gate whose composites notify actions.
func NewGate(store Store, actions []string, logger *zap.Logger, opts ...Option) *Gate {
	return &Gate{
		store:   store,
		actions: actions,
		logger:  logger.Named("composite"),
		obs:     newObserver(opts),
	}
}

// EnsureComposite creates the composite alarm unless one with the same name
// exists. The check and the create are not atomic; two concurrent callers
// may both create, which the store treats as an identical replace.
func (g *Gate) EnsureComposite(ctx context.Context, req CompositeRequest) (Outcome, error) {
	name := req.Identity().CompositeAlarmName()

	_, found, err := g.store.FindCompositeAlarm(ctx, name)
	if err != nil {
		return "", err
	}
	if found {
		g.logger.Info("Composite alarm already exists",
			zap.String("alarm_name", name),
			zap.String("instance_id", req.InstanceID),
		)
		return OutcomeAlreadyExists, nil
	}

	alarm := BuildComposite(req, g.actions)
	start := time.Now()
	err = g.store.PutCompositeAlarm(ctx, alarm)
	g.obs.record(ctx, audit.OpUpsert, audit.ResourceCompositeAlarm, name, req.InstanceID, start, err)
	if err != nil {
		return "", err
	}

	g.logger.Info("Created composite alarm",
		zap.String("alarm_name", name),
		zap.String("instance_id", req.InstanceID),
		zap.String("app", req.App),
		zap.String("rule", alarm.Rule),
	)
	return OutcomeCreated, nil
}
