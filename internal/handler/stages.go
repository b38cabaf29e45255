package handler

import (
	"context"
	"fmt"

	awsevents "github.com/aws/aws-lambda-go/events"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/notify"
	"github.com/tareqmamari/credit-alarms/internal/reconcile"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

// CheckInstanceClass handles an instance state change. Burstable instances
// are passed on to the credit alarm stage; others end here with no event.
func (h *Handler) CheckInstanceClass(ctx context.Context, ev awsevents.CloudWatchEvent) (*events.AlarmProcessing, error) {
	change, err := events.Decode[events.InstanceStateChange]("instance-state-change", ev.Detail)
	if err != nil {
		return nil, h.reject(StageCheckInstanceClass, err)
	}

	var out *events.AlarmProcessing
	err = h.observe(ctx, StageCheckInstanceClass, change.InstanceID, func(ctx context.Context) error {
		res, err := h.deps.Classifier.Classify(ctx, change.InstanceID)
		if err != nil {
			return err
		}
		if !res.IsBurstable {
			h.logger.Info("Instance is not burstable, no alarms created",
				zap.String("instance_id", res.InstanceID),
				zap.String("instance_type", res.InstanceType),
				zap.String("state", change.State),
			)
			return nil
		}

		detail := events.AlarmProcessing{
			InstanceID:   res.InstanceID,
			InstanceType: res.InstanceType,
			App:          res.DisplayName,
		}
		detail.Stamp(h.cfg.FunctionName, h.cfg.Outcome)
		if err := h.emit(ctx, detail); err != nil {
			return err
		}
		out = &detail
		return nil
	})
	return out, err
}

// CreateCreditAlarm writes the CPUCreditBalance alarm of the instance.
func (h *Handler) CreateCreditAlarm(ctx context.Context, ev awsevents.CloudWatchEvent) (*events.AlarmProcessing, error) {
	in, err := events.Decode[events.AlarmProcessing]("alarm-processing", ev.Detail)
	if err != nil {
		return nil, h.reject(StageCreateCreditAlarm, err)
	}

	var out *events.AlarmProcessing
	err = h.observe(ctx, StageCreateCreditAlarm, in.InstanceID, func(ctx context.Context) error {
		res, cfg, ok, err := h.prepare(ctx, in.InstanceID)
		if err != nil || !ok {
			return err
		}

		params, err := h.deps.Engine.CreditAlarmParams(res.InstanceType, res.IsT2Legacy, cfg)
		if err != nil {
			return err
		}
		alarm, err := h.deps.Alarms.UpsertMetricAlarm(ctx, alarms.MetricAlarmSpec{
			Identity: alarms.Identity{InstanceID: res.InstanceID, InstanceType: res.InstanceType},
			Kind:     alarms.KindCreditBalance,
			Params:   params,
		})
		if err != nil {
			return err
		}

		detail := events.AlarmProcessing{
			InstanceID:         res.InstanceID,
			InstanceType:       res.InstanceType,
			OperationType:      in.OperationType,
			CPUCreditAlarmName: alarm.Name,
			App:                res.DisplayName,
		}
		detail.Stamp(h.cfg.FunctionName, h.cfg.Outcome)
		if err := h.emit(ctx, detail); err != nil {
			return err
		}
		out = &detail
		return nil
	})
	return out, err
}

// CreateUtilizationAlarm writes the CPUUtilization alarm once the credit
// alarm exists and hands both names to the composite stage.
func (h *Handler) CreateUtilizationAlarm(ctx context.Context, ev awsevents.CloudWatchEvent) (*events.CompositeRequest, error) {
	in, err := events.Decode[events.AlarmProcessing]("alarm-processing", ev.Detail)
	if err == nil && in.CPUCreditAlarmName == "" {
		err = apperrors.NewInvalidEvent("alarm-processing", fmt.Errorf("cpu-credit-alarm-name is required"))
	}
	if err != nil {
		return nil, h.reject(StageCreateUtilizationAlarm, err)
	}

	var out *events.CompositeRequest
	err = h.observe(ctx, StageCreateUtilizationAlarm, in.InstanceID, func(ctx context.Context) error {
		res, cfg, ok, err := h.prepare(ctx, in.InstanceID)
		if err != nil || !ok {
			return err
		}

		params, err := h.deps.Engine.UtilizationAlarmParams(res.InstanceType, cfg)
		if err != nil {
			return err
		}
		alarm, err := h.deps.Alarms.UpsertMetricAlarm(ctx, alarms.MetricAlarmSpec{
			Identity: alarms.Identity{InstanceID: res.InstanceID, InstanceType: res.InstanceType},
			Kind:     alarms.KindUtilization,
			Params:   params,
		})
		if err != nil {
			return err
		}

		detail := events.CompositeRequest{
			InstanceID:              res.InstanceID,
			InstanceType:            res.InstanceType,
			CPUCreditAlarmName:      in.CPUCreditAlarmName,
			CPUUtilizationAlarmName: alarm.Name,
			App:                     res.DisplayName,
			FunctionName:            []string{h.cfg.FunctionName},
			FunctionOutcome:         []string{h.cfg.Outcome},
		}
		if err := h.emit(ctx, detail); err != nil {
			return err
		}
		out = &detail
		return nil
	})
	return out, err
}

// prepare classifies the instance and resolves its alarm config. ok is false
// when the instance is not burstable and the stage has nothing to do.
func (h *Handler) prepare(ctx context.Context, instanceID string) (classifier.Result, threshold.AlarmConfig, bool, error) {
	res, err := h.deps.Classifier.Classify(ctx, instanceID)
	if err != nil {
		return classifier.Result{}, threshold.AlarmConfig{}, false, err
	}
	if !res.IsBurstable {
		h.logger.Warn("Skipping alarm for non burstable instance",
			zap.String("instance_id", res.InstanceID),
			zap.String("instance_type", res.InstanceType),
		)
		return res, threshold.AlarmConfig{}, false, nil
	}

	base, err := h.deps.Params.Snapshot(ctx)
	if err != nil {
		return res, threshold.AlarmConfig{}, false, err
	}
	cfg := threshold.ResolveAlarmConfig(base, res.Workload(), h.cfg.Additional)
	if err := cfg.Validate(); err != nil {
		return res, cfg, false, err
	}
	return res, cfg, true, nil
}

// EnsureComposite creates the composite alarm of the instance unless it
// already exists.
func (h *Handler) EnsureComposite(ctx context.Context, ev awsevents.CloudWatchEvent) (alarms.Outcome, error) {
	in, err := events.Decode[events.CompositeRequest]("composite-request", ev.Detail)
	if err != nil {
		return "", h.reject(StageEnsureComposite, err)
	}

	var outcome alarms.Outcome
	err = h.observe(ctx, StageEnsureComposite, in.InstanceID, func(ctx context.Context) error {
		var err error
		outcome, err = h.deps.Composite.EnsureComposite(ctx, alarms.CompositeRequest{
			InstanceID:           in.InstanceID,
			InstanceType:         in.InstanceType,
			CreditAlarmName:      in.CPUCreditAlarmName,
			UtilizationAlarmName: in.CPUUtilizationAlarmName,
			App:                  in.App,
		})
		return err
	})
	return outcome, err
}

// RemoveAlarms deletes every alarm of a terminated instance.
func (h *Handler) RemoveAlarms(ctx context.Context, ev awsevents.CloudWatchEvent) (alarms.Deleted, error) {
	change, err := events.Decode[events.InstanceStateChange]("instance-state-change", ev.Detail)
	if err != nil {
		return alarms.Deleted{}, h.reject(StageRemoveAlarms, err)
	}

	var deleted alarms.Deleted
	err = h.observe(ctx, StageRemoveAlarms, change.InstanceID, func(ctx context.Context) error {
		var err error
		deleted, err = h.deps.Alarms.DeleteAllForInstance(ctx, change.InstanceID)
		return err
	})
	return deleted, err
}

// Notify runs the notification pipeline for each SNS record. A record that
// fails does not stop the others.
func (h *Handler) Notify(ctx context.Context, ev awsevents.SNSEvent) error {
	var errs error
	for _, record := range ev.Records {
		msg := notify.Message{Subject: record.SNS.Subject, Body: record.SNS.Message}
		err := h.observe(ctx, StageNotify, "", func(ctx context.Context) error {
			_, err := h.deps.Notifier.Handle(ctx, msg)
			return err
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}

// Reconcile runs bulk reconciliation for each maintenance request record.
func (h *Handler) Reconcile(ctx context.Context, ev awsevents.SNSEvent) ([]reconcile.Report, error) {
	var (
		reports []reconcile.Report
		errs    error
	)
	for _, record := range ev.Records {
		err := h.observe(ctx, StageReconcile, "", func(ctx context.Context) error {
			report, err := h.deps.Reconciler.HandleMessage(ctx, record.SNS.Message)
			if report.Operation != "" {
				reports = append(reports, report)
			}
			return err
		})
		errs = multierr.Append(errs, err)
	}
	return reports, errs
}
