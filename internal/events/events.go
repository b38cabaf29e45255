// Package events defines the typed payloads exchanged between pipeline
// stages and decodes them at the boundary.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
)

// Source is the event source stamped on every pipeline bus event.
const Source = "lambda.amazonaws.com"

// Operation kinds carried by bulk reconciliation.
const (
	OperationCreate = "create"
	OperationUpdate = "update"
)

// Alarm states.
const (
	StateAlarm = "ALARM"
	StateOK    = "OK"
)

// InstanceStateChange is the detail of an EC2 instance state-change notification.
type InstanceStateChange struct {
	InstanceID string `json:"instance-id" validate:"required,startswith=i-"`
	State      string `json:"state" validate:"required"`
}

// AlarmProcessing is the detail passed along the per-instance alarm pipeline.
type AlarmProcessing struct {
	InstanceID              string   `json:"instance-id" validate:"required,startswith=i-"`
	InstanceType            string   `json:"instance-type,omitempty"`
	OperationType           string   `json:"operation-type,omitempty" validate:"omitempty,oneof=create update"`
	CPUCreditAlarmName      string   `json:"cpu-credit-alarm-name,omitempty"`
	CPUUtilizationAlarmName string   `json:"cpu-utilization-alarm-name,omitempty"`
	App                     string   `json:"app,omitempty"`
	FunctionName            []string `json:"function-name,omitempty"`
	FunctionOutcome         []string `json:"function-outcome,omitempty"`
}

// Stamp records the emitting function and its outcome label.
func (a *AlarmProcessing) Stamp(functionName, outcome string) {
	a.FunctionName = []string{functionName}
	a.FunctionOutcome = []string{outcome}
}

// CompositeRequest is the detail consumed by the composite stage.
type CompositeRequest struct {
	InstanceID              string   `json:"instance-id" validate:"required,startswith=i-"`
	InstanceType            string   `json:"instance-type" validate:"required,contains=."`
	CPUCreditAlarmName      string   `json:"cpu-credit-alarm-name" validate:"required"`
	CPUUtilizationAlarmName string   `json:"cpu-utilization-alarm-name" validate:"required"`
	App                     string   `json:"app"`
	FunctionName            []string `json:"function-name,omitempty"`
	FunctionOutcome         []string `json:"function-outcome,omitempty"`
}

// MaintenanceRequest is the SNS message body that starts bulk reconciliation.
type MaintenanceRequest struct {
	OperationType string `json:"OPERATION_TYPE" validate:"required,oneof=create update"`
}

// TriggeringChild is one child alarm that caused a composite transition.
type TriggeringChild struct {
	Arn   string `json:"Arn"`
	State struct {
		Value     string `json:"Value"`
		Timestamp string `json:"Timestamp"`
	} `json:"State"`
}

// AlarmStateChange is the SNS message body of an alarm state notification.
type AlarmStateChange struct {
	AlarmName          string            `json:"AlarmName" validate:"required"`
	AlarmDescription   string            `json:"AlarmDescription"`
	AWSAccountID       string            `json:"AWSAccountId"`
	NewStateValue      string            `json:"NewStateValue" validate:"required"`
	NewStateReason     string            `json:"NewStateReason,omitempty"`
	StateChangeTime    string            `json:"StateChangeTime"`
	Region             string            `json:"Region,omitempty"`
	AlarmArn           string            `json:"AlarmArn"`
	OldStateValue      string            `json:"OldStateValue,omitempty"`
	AlarmRule          string            `json:"AlarmRule,omitempty"`
	TriggeringChildren []TriggeringChild `json:"TriggeringChildren,omitempty"`
}

// SuppressRequest is the query of a suppression callback.
type SuppressRequest struct {
	InstanceID string `json:"instance-id" validate:"required,startswith=i-"`
}

// Notification is the event dispatched once per composite transition.
type Notification struct {
	AlarmDetails    AlarmStateChange  `json:"alarm-details"`
	Subject         string            `json:"subject"`
	InstanceID      string            `json:"instance-id"`
	InstanceType    string            `json:"instance-type,omitempty"`
	Platform        string            `json:"platform,omitempty"`
	App             string            `json:"app"`
	MetricImageURLs map[string]string `json:"metric-images-urls,omitempty"`
	SuppressAPIURL  string            `json:"suppress-api-url,omitempty"`
	Suppressed      bool              `json:"suppressed"`
	FunctionName    []string          `json:"function-name,omitempty"`
	FunctionOutcome []string          `json:"function-outcome,omitempty"`
}

// Publisher puts one detail on the pipeline bus.
type Publisher interface {
	Publish(ctx context.Context, detailType string, detail any) error
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks v against its struct tags.
func Validate(kind string, v any) error {
	if err := validatorInstance().Struct(v); err != nil {
		return apperrors.NewInvalidEvent(kind, err).WithDetails(map[string]interface{}{
			"event":  kind,
			"fields": failedFields(err),
		})
	}
	return nil
}

// Decode unmarshals data into T and validates it.
func Decode[T any](kind string, data []byte) (*T, error) {
	var v T
	if len(data) == 0 {
		return nil, apperrors.NewInvalidEvent(kind, fmt.Errorf("empty payload"))
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apperrors.NewInvalidEvent(kind, err)
	}
	if err := Validate(kind, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func failedFields(err error) []string {
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, strings.ToLower(fe.Field())+":"+fe.Tag())
	}
	return out
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	v, ok := err.(validator.ValidationErrors)
	if ok {
		*target = v
	}
	return ok
}
