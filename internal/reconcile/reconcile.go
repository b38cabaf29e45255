// Package reconcile re-drives the alarm pipeline for every running burstable
// instance. A maintenance request names the operation; the driver emits one
// per-instance event tagged with it, which re-enters the credit alarm stage.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tareqmamari/credit-alarms/internal/classifier"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
)

// InstanceLister lists running instances of the given families.
type InstanceLister interface {
	ListRunning(ctx context.Context, families []string) ([]classifier.Instance, error)
}

// Config holds the driver settings.
type Config struct {
	Families     []string
	FunctionName string
	Outcome      string
	// DetailTypes maps an operation to the detail type of its per-instance events.
	DetailTypes map[string]string
	RateLimit   float64 // events per second, 0 disables limiting
	RateBurst   int
}

// Report summarizes one run.
type Report struct {
	Operation string        `json:"operation"`
	Listed    int           `json:"listed"`
	Emitted   int           `json:"emitted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Driver emits per-instance reconciliation events.
type Driver struct {
	cfg       Config
	lister    InstanceLister
	publisher events.Publisher
	limiter   *rate.Limiter
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewDriver creates a driver. m may be nil.
func NewDriver(cfg Config, lister InstanceLister, publisher events.Publisher, logger *zap.Logger, m *metrics.Metrics) *Driver {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Driver{
		cfg:       cfg,
		lister:    lister,
		publisher: publisher,
		limiter:   limiter,
		logger:    logger.Named("reconcile"),
		metrics:   m,
	}
}

// HandleMessage decodes a maintenance request body and runs it.
func (d *Driver) HandleMessage(ctx context.Context, body string) (Report, error) {
	req, err := events.Decode[events.MaintenanceRequest]("maintenance-request", []byte(body))
	if err != nil {
		return Report{}, err
	}
	return d.Run(ctx, req.OperationType)
}

// Run lists running burstable instances and emits one event per instance.
// Emission failures are counted and returned together; they never stop the
// run. A cancelled context stops it.
func (d *Driver) Run(ctx context.Context, operation string) (Report, error) {
	start := time.Now()
	report := Report{Operation: operation}

	if err := events.Validate("maintenance-request", events.MaintenanceRequest{OperationType: operation}); err != nil {
		return report, err
	}
	detailType := d.cfg.DetailTypes[operation]
	if detailType == "" {
		return report, apperrors.NewInvalidConfig(fmt.Sprintf("no detail type configured for operation %q", operation))
	}

	instances, err := d.lister.ListRunning(ctx, d.cfg.Families)
	if err != nil {
		return report, fmt.Errorf("list running instances: %w", err)
	}
	report.Listed = len(instances)

	var errs error
	for _, inst := range instances {
		if err := d.limiter.Wait(ctx); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		detail := events.AlarmProcessing{
			InstanceID:    inst.ID,
			InstanceType:  inst.Type,
			OperationType: operation,
			App:           inst.Tag(classifier.NameTag),
		}
		detail.Stamp(d.cfg.FunctionName, d.cfg.Outcome)

		err := d.publisher.Publish(ctx, detailType, detail)
		d.metrics.RecordReconcileEvent(operation, err)
		if err != nil {
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("instance %s: %w", inst.ID, err))
			d.logger.Warn("Reconciliation event not emitted",
				zap.String("instance_id", inst.ID),
				zap.String("operation", operation),
				zap.Error(err),
			)
			continue
		}
		report.Emitted++
	}
	report.Duration = time.Since(start)

	d.logger.Info("Reconciliation completed",
		zap.String("operation", operation),
		zap.Int("listed", report.Listed),
		zap.Int("emitted", report.Emitted),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration),
	)
	return report, errs
}

// TopicResolver returns the maintenance topic ARN.
type TopicResolver interface {
	MaintenanceTopic(ctx context.Context) (string, error)
}

// MessagePublisher publishes a message to a topic.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, topicARN, subject, message string) error
}

// Trigger starts a reconciliation by publishing a maintenance request.
type Trigger struct {
	topics    TopicResolver
	publisher MessagePublisher
	logger    *zap.Logger
}

// NewTrigger creates a trigger.
func NewTrigger(topics TopicResolver, publisher MessagePublisher, logger *zap.Logger) *Trigger {
	return &Trigger{topics: topics, publisher: publisher, logger: logger.Named("reconcile")}
}

// Trigger publishes {"OPERATION_TYPE": operation} to the maintenance topic
// and returns the topic ARN.
func (t *Trigger) Trigger(ctx context.Context, operation string) (string, error) {
	req := events.MaintenanceRequest{OperationType: operation}
	if err := events.Validate("maintenance-request", req); err != nil {
		return "", err
	}
	topic, err := t.topics.MaintenanceTopic(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", apperrors.NewInternalError("encode maintenance request").WithCause(err)
	}
	if err := t.publisher.PublishMessage(ctx, topic, operation+" alarms", string(body)); err != nil {
		return "", err
	}

	t.logger.Info("Reconciliation requested",
		zap.String("operation", operation),
		zap.String("topic", topic),
	)
	return topic, nil
}
