// Package app assembles the pipeline components from configuration. The
// stage binary and the operator server share it.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
	"github.com/tareqmamari/credit-alarms/internal/audit"
	"github.com/tareqmamari/credit-alarms/internal/classifier"
	"github.com/tareqmamari/credit-alarms/internal/client"
	"github.com/tareqmamari/credit-alarms/internal/config"
	"github.com/tareqmamari/credit-alarms/internal/diagnostics"
	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
	"github.com/tareqmamari/credit-alarms/internal/handler"
	"github.com/tareqmamari/credit-alarms/internal/instancetype"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
	"github.com/tareqmamari/credit-alarms/internal/notify"
	"github.com/tareqmamari/credit-alarms/internal/paramstore"
	"github.com/tareqmamari/credit-alarms/internal/reconcile"
	"github.com/tareqmamari/credit-alarms/internal/signing"
	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

// Keys every stage publishing on the pipeline bus needs.
var busKeys = []string{
	"DYNAMIC_EC2_MONITOR_EVENT_BUS_NAME",
	"NOTIFICATION_FROM_FN",
	"FN_OUTCOME",
}

// requirements lists the configuration keys each stage cannot run without.
var requirements = map[string][]string{
	handler.StageCheckInstanceClass:     busKeys,
	handler.StageCreateCreditAlarm:      busKeys,
	handler.StageCreateUtilizationAlarm: busKeys,
	handler.StageEnsureComposite:        {"ACTION"},
	handler.StageRemoveAlarms:           nil,
	handler.StageNotify: append(append([]string{}, busKeys...),
		"S3_BUCKET_TO_STORE_GENERATED_IMAGES",
		"CREDENTIAL_TO_SIGN_API_URL",
		"API_GATEWAY_HOST",
		"API_ENDPOINT",
		"SUPPRESS_TAG_NAME",
		"SUPPRESS_TAG_VALUE",
	),
	handler.StageReconcile: {
		"DYNAMIC_EC2_MONITOR_EVENT_BUS_NAME",
		"CREATE_ALARMS_FOR_EXISTING_INSTANCES_NOTIFICATION",
		"UPDATE_ALARMS_CONFIG_NOTIFICATION",
	},
	handler.StageSuppress: {"SUPPRESS_TAG_NAME", "SUPPRESS_TAG_VALUE"},
}

// CheckStage verifies that cfg carries every key stage needs.
func CheckStage(cfg *config.Config, stage string) error {
	keys, ok := requirements[stage]
	if !ok {
		return apperrors.NewInvalidConfig(fmt.Sprintf("unknown handler stage %q", stage)).
			WithDetails(map[string]interface{}{"stages": handler.Stages})
	}
	if err := cfg.Require(keys...); err != nil {
		return apperrors.NewInvalidConfig(err.Error()).WithCause(err)
	}
	return nil
}

// App holds the assembled components.
type App struct {
	Config      *config.Config
	Client      *client.Client
	Metrics     *metrics.Metrics
	Audit       *audit.Logger
	Catalog     *instancetype.Catalog
	Params      *paramstore.Store
	Classifier  *classifier.Classifier
	Engine      *threshold.Engine
	Alarms      *alarms.Manager
	Composite   *alarms.Gate
	Diagnostics *diagnostics.Generator
	Presigner   *signing.Presigner
	Notifier    *notify.Pipeline
	Reconciler  *reconcile.Driver
	Trigger     *reconcile.Trigger
	Handler     *handler.Handler
}

// New creates the AWS clients and assembles the components.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	m := metrics.New(logger)
	c, err := client.New(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}
	return Build(cfg, c, m, logger), nil
}

// Build assembles the components around an existing client.
func Build(cfg *config.Config, c *client.Client, m *metrics.Metrics, logger *zap.Logger) *App {
	a := &App{
		Config:  cfg,
		Client:  c,
		Metrics: m,
		Audit:   audit.NewLogger(logger, cfg.EnableAuditLog),
		Catalog: instancetype.Default(),
	}
	functionName := FunctionName(cfg)

	a.Params = paramstore.New(c.Parameters(), paramstore.Names{
		Period:            cfg.ParamPeriod,
		Datapoints:        cfg.ParamDatapoints,
		EvaluationPeriods: cfg.ParamEvaluationPeriods,
		Threshold:         cfg.ParamThreshold,
		MaintenanceTopic:  cfg.ParamMaintenanceTopic,
	}, a.Audit, logger)

	a.Classifier = classifier.New(c.Instances(), classifier.Rules{
		BurstableFamilies:        cfg.BurstableFamilies,
		ComputeIntensivePatterns: cfg.ComputeIntensivePatterns,
	}, logger)
	a.Engine = threshold.NewEngine(a.Catalog)

	var actions []string
	if cfg.CompositeAlarmAction != "" {
		actions = []string{cfg.CompositeAlarmAction}
	}
	a.Alarms = alarms.NewManager(c.Alarms(), logger, alarms.WithAudit(a.Audit), alarms.WithMetrics(m))
	a.Composite = alarms.NewGate(c.Alarms(), actions, logger, alarms.WithAudit(a.Audit), alarms.WithMetrics(m))

	a.Diagnostics = diagnostics.NewGenerator(c.Charts(), c.Objects(), cfg.ImageBucket, cfg.Region, logger,
		diagnostics.WithMetrics(m))
	a.Presigner = signing.New(c.Secrets(), signing.Options{
		SecretID: cfg.SigningSecretID,
		Host:     cfg.APIGatewayHost,
		Endpoint: cfg.APIEndpoint,
		URI:      cfg.SuppressURI,
		Region:   cfg.Region,
		Expiry:   cfg.SuppressURLExpiry,
	}, logger)

	a.Notifier = notify.New(notify.Config{
		FunctionName:       functionName,
		Outcome:            cfg.StageOutcome,
		DetailType:         cfg.StageDetailType,
		SuppressTagName:    cfg.SuppressTagName,
		SuppressTagValue:   cfg.SuppressTagValue,
		DiagnosticsTimeout: cfg.DiagnosticsTimeout,
	}, notify.Deps{
		Instances: c.Instances(),
		Tags:      c.Alarms(),
		Charts:    a.Diagnostics,
		Signer:    a.Presigner,
		Publisher: c.Bus(),
		Metrics:   m,
	}, logger)

	a.Reconciler = reconcile.NewDriver(reconcile.Config{
		Families:     cfg.BurstableFamilies,
		FunctionName: functionName,
		Outcome:      cfg.StageOutcome,
		DetailTypes: map[string]string{
			events.OperationCreate: cfg.CreateExistingDetailType,
			events.OperationUpdate: cfg.UpdateConfigDetailType,
		},
		RateLimit: cfg.ReconcileRateLimit,
		RateBurst: cfg.ReconcileRateBurst,
	}, c.Instances(), c.Bus(), logger, m)
	a.Trigger = reconcile.NewTrigger(a.Params, c.Topics(), logger)

	a.Handler = handler.New(handler.Config{
		FunctionName: functionName,
		DetailType:   cfg.StageDetailType,
		Outcome:      cfg.StageOutcome,
		Additional: threshold.Window{
			DatapointsToAlarm: cfg.AdditionalDatapoints,
			EvaluationPeriods: cfg.AdditionalEvaluationPeriods,
		},
		SuppressTagName:  cfg.SuppressTagName,
		SuppressTagValue: cfg.SuppressTagValue,
		Region:           cfg.Region,
	}, handler.Deps{
		Classifier: a.Classifier,
		Alarms:     a.Alarms,
		Composite:  a.Composite,
		Params:     a.Params,
		Engine:     a.Engine,
		Publisher:  c.Bus(),
		Notifier:   a.Notifier,
		Reconciler: a.Reconciler,
		Tagger:     c.Instances(),
		Audit:      a.Audit,
		Metrics:    m,
	}, logger)

	return a
}

// FunctionName is the name stamped into emitted events: the Lambda function
// name when running in Lambda, else the configured stage.
func FunctionName(cfg *config.Config) string {
	if lambdacontext.FunctionName != "" {
		return lambdacontext.FunctionName
	}
	if cfg.HandlerStage != "" {
		return cfg.HandlerStage
	}
	return "credit-alarms"
}
