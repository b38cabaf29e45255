// Package notify turns a composite alarm state notification into one
// notification event. Each message runs through a small state machine:
//
//	received -> suppression_checked -> diagnostics_generated -> dispatched
//
// Transitions into any state other than ALARM move from received to skipped
// and dispatch nothing. Any state before dispatch may move to failed. Dispatch runs deferred, so
// an event is published even when chart generation or signing fails.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	"github.com/tareqmamari/credit-alarms/internal/diagnostics"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
)

// States.
const (
	StateReceived             = "received"
	StateSuppressionChecked   = "suppression_checked"
	StateDiagnosticsGenerated = "diagnostics_generated"
	StateDispatched           = "dispatched"
	StateSkipped              = "skipped"
	StateFailed               = "failed"
)

// Events.
const (
	EventCheckSuppression = "check_suppression"
	EventGenerate         = "generate_diagnostics"
	EventDispatch         = "dispatch"
	EventSkip             = "skip"
	EventFail             = "fail"
)

// AlarmTagReader reads the tags of an alarm by ARN.
type AlarmTagReader interface {
	TagsForAlarm(ctx context.Context, arn string) (map[string]string, error)
}

// ChartGenerator renders the diagnostic charts.
type ChartGenerator interface {
	Generate(ctx context.Context, req diagnostics.Request) (map[string]string, error)
}

// URLSigner builds the suppression URL.
type URLSigner interface {
	SuppressURL(ctx context.Context, instanceID string) (string, error)
}

// Config holds the pipeline settings.
type Config struct {
	FunctionName       string
	Outcome            string
	DetailType         string
	SuppressTagName    string
	SuppressTagValue   string
	DiagnosticsTimeout time.Duration
}

// Pipeline processes composite alarm notifications.
type Pipeline struct {
	cfg       Config
	instances classifier.InstanceDescriber
	tags      AlarmTagReader
	charts    ChartGenerator
	signer    URLSigner
	publisher events.Publisher
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// Deps are the collaborators of a pipeline. Tags may be nil.
type Deps struct {
	Instances classifier.InstanceDescriber
	Tags      AlarmTagReader
	Charts    ChartGenerator
	Signer    URLSigner
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

// New creates a pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		instances: deps.Instances,
		tags:      deps.Tags,
		charts:    deps.Charts,
		signer:    deps.Signer,
		publisher: deps.Publisher,
		logger:    logger.Named("notify"),
		metrics:   deps.Metrics,
	}
}

// Message is one SNS delivery.
type Message struct {
	Subject string
	Body    string
}

// Result is the outcome of one run.
type Result struct {
	State        string
	Notification *events.Notification
	// Degraded collects the non-fatal errors of chart generation and signing.
	Degraded error
}

// run carries the state of one message through the machine.
type run struct {
	machine      *fsm.FSM
	notification events.Notification
	degraded     error
	fatal        error
	skipped      bool
}

func (p *Pipeline) newMachine(instanceID *string) *fsm.FSM {
	return fsm.NewFSM(
		StateReceived,
		fsm.Events{
			{Name: EventCheckSuppression, Src: []string{StateReceived}, Dst: StateSuppressionChecked},
			{Name: EventGenerate, Src: []string{StateSuppressionChecked}, Dst: StateDiagnosticsGenerated},
			{Name: EventDispatch, Src: []string{StateSuppressionChecked, StateDiagnosticsGenerated}, Dst: StateDispatched},
			{Name: EventSkip, Src: []string{StateReceived}, Dst: StateSkipped},
			{Name: EventFail, Src: []string{StateReceived, StateSuppressionChecked, StateDiagnosticsGenerated}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.logger.Debug("Notification state changed",
					zap.String("instance_id", *instanceID),
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
				)
			},
		},
	)
}

// Handle processes one message. It returns an error only when nothing was
// dispatched because of a failure; a skipped transition is not an error.
func (p *Pipeline) Handle(ctx context.Context, msg Message) (res Result, err error) {
	r := &run{}
	r.notification.Subject = msg.Subject
	r.machine = p.newMachine(&r.notification.InstanceID)

	defer func() {
		res, err = p.finish(ctx, r)
	}()

	alarm, decodeErr := events.Decode[events.AlarmStateChange]("alarm-state-change", []byte(msg.Body))
	if decodeErr != nil {
		r.fatal = decodeErr
		return
	}
	r.notification.AlarmDetails = *alarm
	if alarm.NewStateValue != events.StateAlarm {
		r.skipped = true
		return
	}

	instanceID, resolveErr := p.resolveInstanceID(ctx, alarm)
	if resolveErr != nil {
		r.fatal = resolveErr
		return
	}
	r.notification.InstanceID = instanceID

	suppressed, checkErr := p.checkSuppression(ctx, r)
	if checkErr != nil {
		r.fatal = checkErr
		return
	}
	if evErr := r.machine.Event(ctx, EventCheckSuppression); evErr != nil {
		r.fatal = evErr
		return
	}
	if suppressed {
		r.notification.Suppressed = true
		p.logger.Info("Notification suppressed by instance tag",
			zap.String("instance_id", instanceID),
			zap.String("alarm", alarm.AlarmName),
		)
		return
	}

	p.generate(ctx, r, alarm)
	if evErr := r.machine.Event(ctx, EventGenerate); evErr != nil {
		r.fatal = evErr
	}
	return
}

// resolveInstanceID prefers the composite alarm's InstanceId tag and falls
// back to parsing the alarm name.
func (p *Pipeline) resolveInstanceID(ctx context.Context, alarm *events.AlarmStateChange) (string, error) {
	if p.tags != nil && alarm.AlarmArn != "" {
		tags, err := p.tags.TagsForAlarm(ctx, alarm.AlarmArn)
		if err != nil {
			p.logger.Warn("Alarm tags unavailable, parsing alarm name",
				zap.String("alarm", alarm.AlarmName),
				zap.Error(err),
			)
		} else if id := tags[alarms.InstanceIDTagKey]; id != "" {
			return id, nil
		}
	}
	if id, ok := alarms.InstanceIDFromAlarmName(alarm.AlarmName); ok {
		return id, nil
	}
	return "", apperrors.NewInvalidEvent("alarm-state-change",
		fmt.Errorf("no instance id in alarm %q", alarm.AlarmName))
}

func (p *Pipeline) checkSuppression(ctx context.Context, r *run) (bool, error) {
	inst, err := p.instances.DescribeInstance(ctx, r.notification.InstanceID)
	if err != nil {
		return false, err
	}
	r.notification.InstanceType = inst.Type
	r.notification.Platform = classifier.Platform(inst.PlatformDetails)
	r.notification.App = inst.Tag(classifier.NameTag)
	return IsSuppressed(inst.Tag(p.cfg.SuppressTagName), p.cfg.SuppressTagValue), nil
}

// IsSuppressed compares a tag value with the suppression value ignoring case.
// An absent tag never suppresses.
func IsSuppressed(tagValue, want string) bool {
	if tagValue == "" {
		return false
	}
	return strings.EqualFold(tagValue, want)
}

func (p *Pipeline) generate(ctx context.Context, r *run, alarm *events.AlarmStateChange) {
	if p.cfg.DiagnosticsTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DiagnosticsTimeout)
		defer cancel()
	}

	identity := alarms.Identity{InstanceID: r.notification.InstanceID, InstanceType: r.notification.InstanceType}
	credit, utilization := ChildAlarmNames(alarm, identity)

	urls, err := p.charts.Generate(ctx, diagnostics.Request{
		InstanceID:           identity.InstanceID,
		InstanceType:         identity.InstanceType,
		Platform:             r.notification.Platform,
		CreditAlarmName:      credit,
		UtilizationAlarmName: utilization,
	})
	if err != nil {
		r.degraded = multierr.Append(r.degraded, err)
	}
	if len(urls) > 0 {
		r.notification.MetricImageURLs = urls
	}

	url, err := p.signer.SuppressURL(ctx, identity.InstanceID)
	if err != nil {
		p.logger.Warn("Suppression URL not generated",
			zap.String("instance_id", identity.InstanceID),
			zap.Error(err),
		)
		r.degraded = multierr.Append(r.degraded, err)
		return
	}
	r.notification.SuppressAPIURL = url
}

// finish dispatches the notification, or marks the run failed when a fatal
// error happened first or the publish fails.
func (p *Pipeline) finish(ctx context.Context, r *run) (Result, error) {
	res := Result{Degraded: r.degraded}

	if r.skipped && r.fatal == nil {
		return p.skip(ctx, r)
	}

	if r.fatal == nil {
		r.notification.FunctionName = []string{p.cfg.FunctionName}
		r.notification.FunctionOutcome = []string{p.cfg.Outcome}
		if err := p.publisher.Publish(ctx, p.cfg.DetailType, r.notification); err != nil {
			r.fatal = err
		} else if err := r.machine.Event(ctx, EventDispatch); err != nil {
			r.fatal = err
		}
	}

	if r.fatal != nil {
		if err := r.machine.Event(ctx, EventFail); err != nil {
			p.logger.Debug("Fail transition rejected", zap.String("state", r.machine.Current()), zap.Error(err))
		}
		p.logger.Error("Notification failed",
			zap.String("instance_id", r.notification.InstanceID),
			zap.String("code", string(apperrors.CodeOf(r.fatal))),
			zap.Error(r.fatal),
		)
	} else {
		p.logger.Info("Notification dispatched",
			zap.String("instance_id", r.notification.InstanceID),
			zap.Bool("suppressed", r.notification.Suppressed),
			zap.Int("charts", len(r.notification.MetricImageURLs)),
			zap.Bool("suppress_url", r.notification.SuppressAPIURL != ""),
		)
	}

	res.State = r.machine.Current()
	p.metrics.RecordNotification(res.State)
	if r.fatal != nil {
		return res, r.fatal
	}
	n := r.notification
	res.Notification = &n
	return res, nil
}

// skip records a transition that needs no notification.
func (p *Pipeline) skip(ctx context.Context, r *run) (Result, error) {
	if err := r.machine.Event(ctx, EventSkip); err != nil {
		p.logger.Debug("Skip transition rejected", zap.String("state", r.machine.Current()), zap.Error(err))
	}
	alarm := r.notification.AlarmDetails
	level := zap.InfoLevel
	if alarm.NewStateValue == events.StateOK {
		level = zap.DebugLevel
	}
	p.logger.Log(level, "Alarm did not enter ALARM, nothing dispatched",
		zap.String("alarm", alarm.AlarmName),
		zap.String("state", alarm.NewStateValue),
	)

	res := Result{State: r.machine.Current()}
	p.metrics.RecordNotification(res.State)
	return res, nil
}

// ChildAlarmNames returns the credit and utilization alarm names of a
// composite transition, taken from its triggering children when they name
// them and from the instance identity otherwise.
func ChildAlarmNames(alarm *events.AlarmStateChange, identity alarms.Identity) (credit, utilization string) {
	credit, utilization = identity.CreditAlarmName(), identity.UtilizationAlarmName()
	for _, child := range alarm.TriggeringChildren {
		_, name, ok := strings.Cut(child.Arn, ":alarm:")
		if !ok || name == "" {
			continue
		}
		switch {
		case strings.Contains(name, string(alarms.KindUtilization)):
			utilization = name
		case strings.Contains(name, string(alarms.KindCreditBalance)):
			credit = name
		}
	}
	return credit, utilization
}
