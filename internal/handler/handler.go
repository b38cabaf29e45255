// Package handler exposes the pipeline stages as Lambda handlers. One binary
// serves every stage; the configured stage name selects the handler.
package handler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/audit"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
	"github.com/tareqmamari/credit-alarms/internal/notify"
	"github.com/tareqmamari/credit-alarms/internal/reconcile"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
	"github.com/tareqmamari/credit-alarms/internal/tracing"
)

// Stage names.
const (
	StageCheckInstanceClass     = "check-instance-class"
	StageCreateCreditAlarm      = "create-credit-alarm"
	StageCreateUtilizationAlarm = "create-utilization-alarm"
	StageEnsureComposite        = "ensure-composite"
	StageRemoveAlarms           = "remove-alarms"
	StageNotify                 = "notify"
	StageReconcile              = "reconcile"
	StageSuppress               = "suppress"
)

// Stages lists every stage name.
var Stages = []string{
	StageCheckInstanceClass,
	StageCreateCreditAlarm,
	StageCreateUtilizationAlarm,
	StageEnsureComposite,
	StageRemoveAlarms,
	StageNotify,
	StageReconcile,
	StageSuppress,
}

// Classifier classifies an instance by id.
type Classifier interface {
	Classify(ctx context.Context, instanceID string) (classifier.Result, error)
}

// ConfigSource returns the current base alarm config.
type ConfigSource interface {
	Snapshot(ctx context.Context) (threshold.AlarmConfig, error)
}

// AlarmWriter writes and removes the metric alarms of an instance.
type AlarmWriter interface {
	UpsertMetricAlarm(ctx context.Context, spec alarms.MetricAlarmSpec) (alarms.MetricAlarm, error)
	DeleteAllForInstance(ctx context.Context, instanceID string) (alarms.Deleted, error)
}

// CompositeEnsurer creates the composite alarm of an instance at most once.
type CompositeEnsurer interface {
	EnsureComposite(ctx context.Context, req alarms.CompositeRequest) (alarms.Outcome, error)
}

// Notifier processes one composite alarm notification.
type Notifier interface {
	Handle(ctx context.Context, msg notify.Message) (notify.Result, error)
}

// Reconciler processes one maintenance request body.
type Reconciler interface {
	HandleMessage(ctx context.Context, body string) (reconcile.Report, error)
}

// InstanceTagger tags an instance.
type InstanceTagger interface {
	TagInstance(ctx context.Context, instanceID, key, value string) error
}

// Config holds the settings of the running stage.
type Config struct {
	FunctionName     string
	DetailType       string // detail type of the event the stage emits
	Outcome          string
	Additional       threshold.Window
	SuppressTagName  string
	SuppressTagValue string
	Region           string
}

// Deps are the collaborators of the stages. A stage only touches the
// collaborators it needs, so a binary may leave the others nil.
type Deps struct {
	Classifier Classifier
	Alarms     AlarmWriter
	Composite  CompositeEnsurer
	Params     ConfigSource
	Engine     *threshold.Engine
	Publisher  events.Publisher
	Notifier   Notifier
	Reconciler Reconciler
	Tagger     InstanceTagger
	Audit      *audit.Logger
	Metrics    *metrics.Metrics
}

// Handler runs pipeline stages.
type Handler struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New creates a handler.
func New(cfg Config, deps Deps, logger *zap.Logger) *Handler {
	return &Handler{cfg: cfg, deps: deps, logger: logger.Named("handler")}
}

// For returns the Lambda handler function of stage.
func (h *Handler) For(stage string) (any, error) {
	switch stage {
	case StageCheckInstanceClass:
		return h.CheckInstanceClass, nil
	case StageCreateCreditAlarm:
		return h.CreateCreditAlarm, nil
	case StageCreateUtilizationAlarm:
		return h.CreateUtilizationAlarm, nil
	case StageEnsureComposite:
		return h.EnsureComposite, nil
	case StageRemoveAlarms:
		return h.RemoveAlarms, nil
	case StageNotify:
		return h.Notify, nil
	case StageReconcile:
		return h.Reconcile, nil
	case StageSuppress:
		return h.Suppress, nil
	default:
		return nil, apperrors.NewInvalidConfig(fmt.Sprintf("unknown handler stage %q", stage)).
			WithDetails(map[string]interface{}{"stages": Stages})
	}
}

// observe runs fn as one stage invocation: it tags the context with the
// stage as audit actor, opens a stage span and records the outcome.
func (h *Handler) observe(ctx context.Context, stage, instanceID string, fn func(context.Context) error) error {
	ctx = audit.WithActor(ctx, stage)
	ctx, span := tracing.StageSpan(ctx, stage, instanceID)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	h.deps.Metrics.RecordStage(stage, time.Since(start), err)

	if err != nil {
		tracing.RecordError(span, err)
		h.deps.Metrics.RecordError(string(apperrors.CodeOf(err)))
		h.logger.Error("Stage failed",
			zap.String("stage", stage),
			zap.String("instance_id", instanceID),
			zap.String("code", string(apperrors.CodeOf(err))),
			zap.Error(err),
		)
		return err
	}
	tracing.SetSuccess(span)
	h.logger.Debug("Stage completed",
		zap.String("stage", stage),
		zap.String("instance_id", instanceID),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (h *Handler) emit(ctx context.Context, detail any) error {
	if h.deps.Publisher == nil {
		return apperrors.NewInvalidConfig("no event publisher configured")
	}
	return h.deps.Publisher.Publish(ctx, h.cfg.DetailType, detail)
}

// reject records a stage invocation whose input could not be decoded and
// returns err.
func (h *Handler) reject(stage string, err error) error {
	h.recordRejected(stage, err)
	return err
}

func (h *Handler) recordRejected(stage string, err error) {
	h.deps.Metrics.RecordStage(stage, 0, err)
	h.deps.Metrics.RecordError(string(apperrors.CodeOf(err)))
	h.logger.Error("Stage input rejected", zap.String("stage", stage), zap.Error(err))
}
