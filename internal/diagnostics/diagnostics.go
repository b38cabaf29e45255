// Package diagnostics renders chart images of the metrics behind a fired
// composite alarm and stores them for the notification.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
)

// Agent metrics charted alongside the alarm metrics.
const (
	AgentNamespace  = "CWAgent"
	ProcstatLinux   = "procstat_cpu_usage"
	ProcstatWindows = "procstat cpu_usage"
)

// ImageContentType is the content type of uploaded charts.
const ImageContentType = "image/jpeg"

// ProcstatMetric returns the process CPU metric name for a platform.
func ProcstatMetric(platform string) string {
	if platform == classifier.PlatformWindows {
		return ProcstatWindows
	}
	return ProcstatLinux
}

// Metric identifies one metric series.
type Metric struct {
	Namespace  string
	Name       string
	Dimensions []alarms.Dimension
}

// MetricSource reads alarm history, lists metrics and renders widgets.
type MetricSource interface {
	// LatestStateUpdate returns the raw history data of the newest state
	// transition, or false when the alarm has none.
	LatestStateUpdate(ctx context.Context, alarmName string) (string, bool, error)
	MetricWidgetImage(ctx context.Context, widget []byte) ([]byte, error)
	// ListMetrics matches dimension filters; an empty value matches any value.
	ListMetrics(ctx context.Context, namespace, metricName string, filters []alarms.Dimension) ([]Metric, error)
}

// ObjectStore stores rendered images.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key, contentType string, body []byte) error
}

// Request describes the charts to produce for one instance.
type Request struct {
	InstanceID           string
	InstanceType         string
	Platform             string
	CreditAlarmName      string
	UtilizationAlarmName string
}

// Generator renders and uploads charts.
type Generator struct {
	source  MetricSource
	objects ObjectStore
	bucket  string
	region  string
	logger  *zap.Logger
	metrics *metrics.Metrics
	newKey  func() string
}

// Option configures a Generator.
type Option func(*Generator)

// WithMetrics records per-chart outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithKeyFunc overrides object key generation.
func WithKeyFunc(fn func() string) Option {
	return func(g *Generator) { g.newKey = fn }
}

// NewGenerator creates a generator writing into bucket.
func NewGenerator(source MetricSource, objects ObjectStore, bucket, region string, logger *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		source:  source,
		objects: objects,
		bucket:  bucket,
		region:  region,
		logger:  logger.Named("diagnostics"),
		newKey:  imageKey,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate renders the utilization, credit balance and process CPU charts
// concurrently and returns the URL of each chart that succeeded, keyed by
// metric name. A failed chart is left out and its error is part of the
// combined error, which never aborts the others.
func (g *Generator) Generate(ctx context.Context, req Request) (map[string]string, error) {
	utilization := sync.OnceValues(func() (*Transition, error) {
		return g.transition(ctx, req.UtilizationAlarmName)
	})
	credit := sync.OnceValues(func() (*Transition, error) {
		return g.transition(ctx, req.CreditAlarmName)
	})

	jobs := []struct {
		metric string
		render func(context.Context) ([]byte, error)
	}{
		{string(alarms.KindUtilization), func(ctx context.Context) ([]byte, error) {
			return g.renderAlarmMetric(ctx, req.InstanceID, string(alarms.KindUtilization), utilization)
		}},
		{string(alarms.KindCreditBalance), func(ctx context.Context) ([]byte, error) {
			return g.renderAlarmMetric(ctx, req.InstanceID, string(alarms.KindCreditBalance), credit)
		}},
		{ProcstatMetric(req.Platform), func(ctx context.Context) ([]byte, error) {
			return g.renderProcstat(ctx, req, utilization)
		}},
	}

	var (
		mu   sync.Mutex
		urls = make(map[string]string, len(jobs))
		errs error
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(len(jobs))
	for _, job := range jobs {
		eg.Go(func() error {
			url, err := g.chart(egCtx, job.metric, job.render)
			g.metrics.RecordDiagnostic(job.metric, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.logger.Warn("Chart generation failed",
					zap.String("instance_id", req.InstanceID),
					zap.String("metric", job.metric),
					zap.Error(err),
				)
				errs = multierr.Append(errs, err)
				return nil
			}
			urls[job.metric] = url
			return nil
		})
	}
	_ = eg.Wait()

	g.logger.Info("Generated charts",
		zap.String("instance_id", req.InstanceID),
		zap.Int("count", len(urls)),
	)
	return urls, errs
}

func (g *Generator) chart(ctx context.Context, metric string, render func(context.Context) ([]byte, error)) (string, error) {
	image, err := render(ctx)
	if err != nil {
		return "", err
	}
	key := g.newKey()
	if err := g.objects.PutObject(ctx, g.bucket, key, ImageContentType, image); err != nil {
		return "", apperrors.NewDiagnosticGeneration(metric, err)
	}
	return ObjectURL(g.bucket, g.region, key), nil
}

func (g *Generator) transition(ctx context.Context, alarmName string) (*Transition, error) {
	data, ok, err := g.source.LatestStateUpdate(ctx, alarmName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.NewDiagnosticGeneration(alarmName, fmt.Errorf("no state transition recorded"))
	}
	t, isAlarm, err := ParseHistory(data)
	if err != nil {
		return nil, apperrors.NewDiagnosticGeneration(alarmName, err)
	}
	if !isAlarm {
		return nil, apperrors.NewDiagnosticGeneration(alarmName, fmt.Errorf("latest transition is not into ALARM"))
	}
	return t, nil
}

func (g *Generator) renderAlarmMetric(ctx context.Context, instanceID, metric string, transition func() (*Transition, error)) ([]byte, error) {
	t, err := transition()
	if err != nil {
		return nil, err
	}
	series := []any{alarms.Namespace, metric, alarms.InstanceIDDim, instanceID,
		seriesOptions{Stat: t.Statistic, Period: t.Period}}
	return g.render(ctx, metric, instanceID, [][]any{series}, t)
}

func (g *Generator) renderProcstat(ctx context.Context, req Request, utilization func() (*Transition, error)) ([]byte, error) {
	metric := ProcstatMetric(req.Platform)
	t, err := utilization()
	if err != nil {
		return nil, err
	}
	found, err := g.source.ListMetrics(ctx, AgentNamespace, metric, []alarms.Dimension{
		{Name: alarms.InstanceIDDim, Value: req.InstanceID},
		{Name: "InstanceType", Value: req.InstanceType},
		{Name: "exe"},
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, apperrors.NewDiagnosticGeneration(metric, fmt.Errorf("no process metrics published for %s", req.InstanceID))
	}
	return g.render(ctx, metric, req.InstanceID, ProcessSeries(found), t)
}

func (g *Generator) render(ctx context.Context, metric, instanceID string, series [][]any, t *Transition) ([]byte, error) {
	widget, err := json.Marshal(BuildWidget(metric, instanceID, series, t))
	if err != nil {
		return nil, apperrors.NewDiagnosticGeneration(metric, err)
	}
	image, err := g.source.MetricWidgetImage(ctx, widget)
	if err != nil {
		return nil, apperrors.NewDiagnosticGeneration(metric, err)
	}
	return image, nil
}

// ProcessSeries turns listed process metrics into widget series, each at
// Maximum over five minutes.
func ProcessSeries(found []Metric) [][]any {
	series := make([][]any, 0, len(found))
	for _, m := range found {
		s := []any{m.Namespace, m.Name}
		for _, d := range m.Dimensions {
			s = append(s, d.Name, d.Value)
		}
		s = append(s, seriesOptions{Stat: alarms.Statistic, Period: 300})
		series = append(series, s)
	}
	return series
}

// ObjectURL is the public URL of an uploaded chart.
func ObjectURL(bucket, region, key string) string {
	return fmt.Sprintf("https://%s.s3-%s.amazonaws.com/%s", bucket, region, key)
}

func imageKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ".jpeg"
}

// historyTimeLayout is the timestamp format of alarm history data.
const historyTimeLayout = "2006-01-02T15:04:05.000-0700"

// Transition is the new state of an alarm state update.
type Transition struct {
	Reason           string
	Threshold        float64
	Statistic        string
	Period           int32
	RecentDatapoints []float64
	StartDate        time.Time
	QueryDate        time.Time
}

type historyData struct {
	NewState struct {
		StateValue      string `json:"stateValue"`
		StateReason     string `json:"stateReason"`
		StateReasonData *struct {
			QueryDate        string    `json:"queryDate"`
			StartDate        string    `json:"startDate"`
			Statistic        string    `json:"statistic"`
			Period           int32     `json:"period"`
			RecentDatapoints []float64 `json:"recentDatapoints"`
			Threshold        float64   `json:"threshold"`
		} `json:"stateReasonData"`
	} `json:"newState"`
}

// ParseHistory decodes alarm history data. The boolean is false when the
// transition is not into ALARM.
func ParseHistory(data string) (*Transition, bool, error) {
	var h historyData
	if err := json.Unmarshal([]byte(data), &h); err != nil {
		return nil, false, fmt.Errorf("decode history data: %w", err)
	}
	if h.NewState.StateValue != "ALARM" {
		return nil, false, nil
	}
	reason := h.NewState.StateReasonData
	if reason == nil {
		return nil, false, fmt.Errorf("history data has no state reason data")
	}

	start, err := time.Parse(historyTimeLayout, reason.StartDate)
	if err != nil {
		return nil, false, fmt.Errorf("parse start date: %w", err)
	}
	query, err := time.Parse(historyTimeLayout, reason.QueryDate)
	if err != nil {
		return nil, false, fmt.Errorf("parse query date: %w", err)
	}
	return &Transition{
		Reason:           h.NewState.StateReason,
		Threshold:        reason.Threshold,
		Statistic:        reason.Statistic,
		Period:           reason.Period,
		RecentDatapoints: reason.RecentDatapoints,
		StartDate:        start.UTC(),
		QueryDate:        query.UTC(),
	}, true, nil
}
