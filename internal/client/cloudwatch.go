package client

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/diagnostics"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
)

const serviceCloudWatch = "cloudwatch"

// AlarmStore implements alarms.Store on CloudWatch.
type AlarmStore struct {
	c *Client
}

var _ alarms.Store = (*AlarmStore)(nil)

// PutMetricAlarm creates or replaces a metric alarm.
func (s *AlarmStore) PutMetricAlarm(ctx context.Context, a alarms.MetricAlarm) error {
	dims := make([]cwtypes.Dimension, 0, len(a.Dimensions))
	for _, d := range a.Dimensions {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(d.Name), Value: aws.String(d.Value)})
	}
	in := &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(a.Name),
		AlarmDescription:   aws.String(a.Description),
		MetricName:         aws.String(a.MetricName),
		Namespace:          aws.String(a.Namespace),
		Statistic:          cwtypes.Statistic(a.Statistic),
		Dimensions:         dims,
		Period:             aws.Int32(a.Period),
		Threshold:          aws.Float64(a.Threshold),
		ComparisonOperator: cwtypes.ComparisonOperator(a.Comparison),
		EvaluationPeriods:  aws.Int32(a.EvaluationPeriods),
		DatapointsToAlarm:  aws.Int32(a.DatapointsToAlarm),
		ActionsEnabled:     aws.Bool(a.ActionsEnabled),
		AlarmActions:       a.AlarmActions,
		Tags:               cwTags(a.Tags),
	}
	err := s.c.Do(ctx, serviceCloudWatch, "PutMetricAlarm", func(ctx context.Context) error {
		_, err := s.c.apis.CloudWatch.PutMetricAlarm(ctx, in)
		return err
	})
	if err != nil {
		return apperrors.NewAlarmStore("PutMetricAlarm", err)
	}
	return nil
}

// PutCompositeAlarm creates or replaces a composite alarm.
func (s *AlarmStore) PutCompositeAlarm(ctx context.Context, a alarms.CompositeAlarm) error {
	in := &cloudwatch.PutCompositeAlarmInput{
		AlarmName:        aws.String(a.Name),
		AlarmDescription: aws.String(a.Description),
		AlarmRule:        aws.String(a.Rule),
		ActionsEnabled:   aws.Bool(a.ActionsEnabled),
		AlarmActions:     a.AlarmActions,
		Tags:             cwTags(a.Tags),
	}
	err := s.c.Do(ctx, serviceCloudWatch, "PutCompositeAlarm", func(ctx context.Context) error {
		_, err := s.c.apis.CloudWatch.PutCompositeAlarm(ctx, in)
		return err
	})
	if err != nil {
		return apperrors.NewAlarmStore("PutCompositeAlarm", err)
	}
	return nil
}

// FindCompositeAlarm looks up a composite alarm by exact name.
// DescribeAlarms does not return tags, so the instance id tag is restored
// from the alarm name.
func (s *AlarmStore) FindCompositeAlarm(ctx context.Context, name string) (*alarms.CompositeAlarm, bool, error) {
	var out *cloudwatch.DescribeAlarmsOutput
	err := s.c.Do(ctx, serviceCloudWatch, "DescribeAlarms", func(ctx context.Context) error {
		var err error
		out, err = s.c.apis.CloudWatch.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{
			AlarmNames: []string{name},
			AlarmTypes: []cwtypes.AlarmType{cwtypes.AlarmTypeCompositeAlarm},
		})
		return err
	})
	if err != nil {
		return nil, false, apperrors.NewAlarmStore("DescribeAlarms", err)
	}
	for _, ca := range out.CompositeAlarms {
		if aws.ToString(ca.AlarmName) != name {
			continue
		}
		found := &alarms.CompositeAlarm{
			Name:           name,
			Description:    aws.ToString(ca.AlarmDescription),
			Rule:           aws.ToString(ca.AlarmRule),
			ActionsEnabled: aws.ToBool(ca.ActionsEnabled),
			AlarmActions:   ca.AlarmActions,
		}
		if id, ok := alarms.InstanceIDFromAlarmName(name); ok {
			found.Tags = []alarms.Tag{{Key: alarms.InstanceIDTagKey, Value: id}}
		}
		return found, true, nil
	}
	return nil, false, nil
}

// ListAlarmsByPrefix pages through every alarm whose name starts with prefix.
func (s *AlarmStore) ListAlarmsByPrefix(ctx context.Context, prefix string) (alarms.Listing, error) {
	var listing alarms.Listing
	paginator := cloudwatch.NewDescribeAlarmsPaginator(s.c.apis.CloudWatch, &cloudwatch.DescribeAlarmsInput{
		AlarmNamePrefix: aws.String(prefix),
		AlarmTypes:      []cwtypes.AlarmType{cwtypes.AlarmTypeCompositeAlarm, cwtypes.AlarmTypeMetricAlarm},
	})
	for paginator.HasMorePages() {
		var page *cloudwatch.DescribeAlarmsOutput
		err := s.c.Do(ctx, serviceCloudWatch, "DescribeAlarms", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return alarms.Listing{}, apperrors.NewAlarmStore("DescribeAlarms", err)
		}
		for _, ca := range page.CompositeAlarms {
			listing.Composite = append(listing.Composite, aws.ToString(ca.AlarmName))
		}
		for _, ma := range page.MetricAlarms {
			listing.Metric = append(listing.Metric, aws.ToString(ma.AlarmName))
		}
	}
	return listing, nil
}

// DeleteAlarms deletes up to 100 alarms by name.
func (s *AlarmStore) DeleteAlarms(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}
	err := s.c.Do(ctx, serviceCloudWatch, "DeleteAlarms", func(ctx context.Context) error {
		_, err := s.c.apis.CloudWatch.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{AlarmNames: names})
		return err
	})
	if err != nil {
		return apperrors.NewAlarmStore("DeleteAlarms", err)
	}
	return nil
}

// TagsForAlarm returns the tags of the alarm with the given ARN.
func (s *AlarmStore) TagsForAlarm(ctx context.Context, arn string) (map[string]string, error) {
	var out *cloudwatch.ListTagsForResourceOutput
	err := s.c.Do(ctx, serviceCloudWatch, "ListTagsForResource", func(ctx context.Context) error {
		var err error
		out, err = s.c.apis.CloudWatch.ListTagsForResource(ctx, &cloudwatch.ListTagsForResourceInput{
			ResourceARN: aws.String(arn),
		})
		return err
	})
	if err != nil {
		return nil, apperrors.NewAlarmStore("ListTagsForResource", err)
	}
	tags := make(map[string]string, len(out.Tags))
	for _, t := range out.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags, nil
}

// Charts implements diagnostics.MetricSource on CloudWatch.
type Charts struct {
	c *Client
}

var _ diagnostics.MetricSource = (*Charts)(nil)

// LatestStateUpdate returns the history data of the most recent state
// transition of a metric alarm.
func (ch *Charts) LatestStateUpdate(ctx context.Context, alarmName string) (string, bool, error) {
	var out *cloudwatch.DescribeAlarmHistoryOutput
	err := ch.c.Do(ctx, serviceCloudWatch, "DescribeAlarmHistory", func(ctx context.Context) error {
		var err error
		out, err = ch.c.apis.CloudWatch.DescribeAlarmHistory(ctx, &cloudwatch.DescribeAlarmHistoryInput{
			AlarmName:       aws.String(alarmName),
			AlarmTypes:      []cwtypes.AlarmType{cwtypes.AlarmTypeMetricAlarm},
			HistoryItemType: cwtypes.HistoryItemTypeStateUpdate,
			MaxRecords:      aws.Int32(1),
			ScanBy:          cwtypes.ScanByTimestampDescending,
		})
		return err
	})
	if err != nil {
		return "", false, apperrors.NewDiagnosticGeneration(alarmName, err)
	}
	if len(out.AlarmHistoryItems) == 0 {
		return "", false, nil
	}
	return aws.ToString(out.AlarmHistoryItems[0].HistoryData), true, nil
}

// MetricWidgetImage renders a widget definition to an image.
func (ch *Charts) MetricWidgetImage(ctx context.Context, widget []byte) ([]byte, error) {
	var out *cloudwatch.GetMetricWidgetImageOutput
	err := ch.c.Do(ctx, serviceCloudWatch, "GetMetricWidgetImage", func(ctx context.Context) error {
		var err error
		out, err = ch.c.apis.CloudWatch.GetMetricWidgetImage(ctx, &cloudwatch.GetMetricWidgetImageInput{
			MetricWidget: aws.String(string(widget)),
		})
		return err
	})
	if err != nil {
		return nil, apperrors.NewDiagnosticGeneration("widget", err)
	}
	return out.MetricWidgetImage, nil
}

// ListMetrics pages through the metrics matching the filters. A filter with
// an empty value matches any value of that dimension.
func (ch *Charts) ListMetrics(ctx context.Context, namespace, metricName string, filters []alarms.Dimension) ([]diagnostics.Metric, error) {
	dims := make([]cwtypes.DimensionFilter, 0, len(filters))
	for _, f := range filters {
		df := cwtypes.DimensionFilter{Name: aws.String(f.Name)}
		if f.Value != "" {
			df.Value = aws.String(f.Value)
		}
		dims = append(dims, df)
	}

	var metrics []diagnostics.Metric
	paginator := cloudwatch.NewListMetricsPaginator(ch.c.apis.CloudWatch, &cloudwatch.ListMetricsInput{
		Namespace:  aws.String(namespace),
		MetricName: aws.String(metricName),
		Dimensions: dims,
	})
	for paginator.HasMorePages() {
		var page *cloudwatch.ListMetricsOutput
		err := ch.c.Do(ctx, serviceCloudWatch, "ListMetrics", func(ctx context.Context) error {
			var err error
			page, err = paginator.NextPage(ctx)
			return err
		})
		if err != nil {
			return nil, apperrors.NewDiagnosticGeneration(metricName, err)
		}
		for _, m := range page.Metrics {
			metric := diagnostics.Metric{
				Namespace: aws.ToString(m.Namespace),
				Name:      aws.ToString(m.MetricName),
			}
			for _, d := range m.Dimensions {
				metric.Dimensions = append(metric.Dimensions, alarms.Dimension{
					Name:  aws.ToString(d.Name),
					Value: aws.ToString(d.Value),
				})
			}
			metrics = append(metrics, metric)
		}
	}
	ch.c.logger.Debug("Listed metrics",
		zap.String("namespace", namespace),
		zap.String("metric", metricName),
		zap.Int("count", len(metrics)),
	)
	return metrics, nil
}

// Ping checks that CloudWatch answers a minimal request.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.apis.CloudWatch.DescribeAlarms(ctx, &cloudwatch.DescribeAlarmsInput{
		AlarmNamePrefix: aws.String("i-"),
		MaxRecords:      aws.Int32(1),
	})
	return err
}

func cwTags(tags []alarms.Tag) []cwtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]cwtypes.Tag, 0, len(tags))
	for _, t := range tags {
		out = append(out, cwtypes.Tag{Key: aws.String(t.Key), Value: aws.String(t.Value)})
	}
	return out
}
