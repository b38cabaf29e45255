package alarms

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/audit"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
)

// deleteBatchSize is the DeleteAlarms per-call name limit.
const deleteBatchSize = 100

// Option configures a Manager or Gate.
type Option func(*observer)

type observer struct {
	audit   *audit.Logger
	metrics *metrics.Metrics
}

// WithAudit records mutations in the audit log.
func WithAudit(a *audit.Logger) Option {
	return func(o *observer) { o.audit = a }
}

// WithMetrics counts mutations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *observer) { o.metrics = m }
}

func newObserver(opts []Option) observer {
	var o observer
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o observer) record(ctx context.Context, op, resource, name, instanceID string, start time.Time, err error) {
	o.audit.LogMutation(ctx, op, resource, name, instanceID, time.Since(start), err)
	o.metrics.RecordAlarmOperation(resource, op, err)
}

// Manager creates, replaces and deletes metric alarms.
type Manager struct {
	store  Store
	logger *zap.Logger
	obs    observer
}

// NewManager creates a manager over store.
func NewManager(store Store, logger *zap.Logger, opts ...Option) *Manager {
	return &Manager{
		store:  store,
		logger: logger.Named("alarms"),
		obs:    newObserver(opts),
	}
}

// UpsertMetricAlarm writes the alarm described by spec, replacing any alarm
// with the same name.
func (m *Manager) UpsertMetricAlarm(ctx context.Context, spec MetricAlarmSpec) (MetricAlarm, error) {
	alarm := BuildMetricAlarm(spec)
	start := time.Now()

	err := m.store.PutMetricAlarm(ctx, alarm)
	m.obs.record(ctx, audit.OpUpsert, audit.ResourceMetricAlarm, alarm.Name, spec.Identity.InstanceID, start, err)
	if err != nil {
		return MetricAlarm{}, err
	}

	m.logger.Info("Upserted metric alarm",
		zap.String("alarm_name", alarm.Name),
		zap.String("metric", alarm.MetricName),
		zap.Float64("threshold", alarm.Threshold),
		zap.Int32("period", alarm.Period),
		zap.Int32("datapoints", alarm.DatapointsToAlarm),
		zap.Int32("evaluation_periods", alarm.EvaluationPeriods),
	)
	return alarm, nil
}

// ListForInstance returns every alarm whose name starts with the instance id.
func (m *Manager) ListForInstance(ctx context.Context, instanceID string) (Listing, error) {
	return m.store.ListAlarmsByPrefix(ctx, Prefix(instanceID))
}

// Deleted reports the alarm names removed for an instance.
type Deleted struct {
	Composite []string `json:"composite"`
	Metric    []string `json:"metric"`
}

// Count is the total number of deleted alarms.
func (d Deleted) Count() int {
	return len(d.Composite) + len(d.Metric)
}

// DeleteAllForInstance deletes every alarm of the instance. Composite alarms
// are deleted before the metric alarms they reference. Finding nothing is
// not an error.
func (m *Manager) DeleteAllForInstance(ctx context.Context, instanceID string) (Deleted, error) {
	listing, err := m.ListForInstance(ctx, instanceID)
	if err != nil {
		return Deleted{}, err
	}
	if listing.Empty() {
		m.logger.Info("No alarms to delete", zap.String("instance_id", instanceID))
		return Deleted{}, nil
	}

	var deleted Deleted
	if err := m.deleteBatches(ctx, instanceID, audit.ResourceCompositeAlarm, listing.Composite); err != nil {
		return deleted, err
	}
	deleted.Composite = listing.Composite

	if err := m.deleteBatches(ctx, instanceID, audit.ResourceMetricAlarm, listing.Metric); err != nil {
		return deleted, err
	}
	deleted.Metric = listing.Metric

	m.logger.Info("Deleted alarms for instance",
		zap.String("instance_id", instanceID),
		zap.Strings("composite", deleted.Composite),
		zap.Strings("metric", deleted.Metric),
	)
	return deleted, nil
}

func (m *Manager) deleteBatches(ctx context.Context, instanceID, resource string, names []string) error {
	var errs error
	for start := 0; start < len(names); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(names))
		batch := names[start:end]

		t := time.Now()
		err := m.store.DeleteAlarms(ctx, batch)
		for _, name := range batch {
			m.obs.record(ctx, audit.OpDelete, resource, name, instanceID, t, err)
		}
		errs = multierr.Append(errs, err)
	}
	return errs
}
