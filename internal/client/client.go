// Package client provides the AWS service adapters used by every stage.
package client

import (
	"context"
	"fmt"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tareqmamari/credit-alarms/internal/config"
	"github.com/tareqmamari/credit-alarms/internal/metrics"
)

// CloudWatchAPI is the subset of the CloudWatch client in use.
type CloudWatchAPI interface {
	PutMetricAlarm(ctx context.Context, in *cloudwatch.PutMetricAlarmInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error)
	PutCompositeAlarm(ctx context.Context, in *cloudwatch.PutCompositeAlarmInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.PutCompositeAlarmOutput, error)
	DescribeAlarms(ctx context.Context, in *cloudwatch.DescribeAlarmsInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error)
	DeleteAlarms(ctx context.Context, in *cloudwatch.DeleteAlarmsInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error)
	DescribeAlarmHistory(ctx context.Context, in *cloudwatch.DescribeAlarmHistoryInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmHistoryOutput, error)
	GetMetricWidgetImage(ctx context.Context, in *cloudwatch.GetMetricWidgetImageInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricWidgetImageOutput, error)
	ListMetrics(ctx context.Context, in *cloudwatch.ListMetricsInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.ListMetricsOutput, error)
	ListTagsForResource(ctx context.Context, in *cloudwatch.ListTagsForResourceInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.ListTagsForResourceOutput, error)
}

// EC2API is the subset of the EC2 client in use.
type EC2API interface {
	DescribeInstances(ctx context.Context, in *ec2.DescribeInstancesInput, opts ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeImages(ctx context.Context, in *ec2.DescribeImagesInput, opts ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	CreateTags(ctx context.Context, in *ec2.CreateTagsInput, opts ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
}

// SSMAPI is the subset of the SSM client in use.
type SSMAPI interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, opts ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
	PutParameter(ctx context.Context, in *ssm.PutParameterInput, opts ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// EventBridgeAPI is the subset of the EventBridge client in use.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// SNSAPI is the subset of the SNS client in use.
type SNSAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// S3API is the subset of the S3 client in use.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SecretsAPI is the subset of the Secrets Manager client in use.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// APIs groups the service clients. Tests substitute fakes here.
type APIs struct {
	CloudWatch  CloudWatchAPI
	EC2         EC2API
	SSM         SSMAPI
	EventBridge EventBridgeAPI
	SNS         SNSAPI
	S3          S3API
	Secrets     SecretsAPI
}

// Client owns the service clients and the shared call policy.
type Client struct {
	apis        APIs
	config      *config.Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	rateLimiter *rate.Limiter
}

// New loads the AWS configuration and creates every service client.
// SDK-level retries are disabled; Do owns the retry policy.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) (*Client, error) {
	httpClient := awshttp.NewBuildableClient().WithTimeout(cfg.Timeout)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(1),
		awsconfig.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	apis := APIs{
		CloudWatch:  cloudwatch.NewFromConfig(awsCfg),
		EC2:         ec2.NewFromConfig(awsCfg),
		SSM:         ssm.NewFromConfig(awsCfg),
		EventBridge: eventbridge.NewFromConfig(awsCfg),
		SNS:         sns.NewFromConfig(awsCfg),
		S3:          s3.NewFromConfig(awsCfg),
		Secrets:     secretsmanager.NewFromConfig(awsCfg),
	}
	return NewFromAPIs(cfg, apis, logger, m), nil
}

// NewFromAPIs creates a client around existing service clients.
func NewFromAPIs(cfg *config.Config, apis APIs, logger *zap.Logger, m *metrics.Metrics) *Client {
	var rateLimiter *rate.Limiter
	if cfg.EnableRateLimit {
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	}

	return &Client{
		apis:        apis,
		config:      cfg,
		logger:      logger.Named("aws"),
		metrics:     m,
		rateLimiter: rateLimiter,
	}
}

// Config returns the configuration the client was built with.
func (c *Client) Config() *config.Config {
	return c.config
}

// Alarms returns the CloudWatch alarm store adapter.
func (c *Client) Alarms() *AlarmStore {
	return &AlarmStore{c: c}
}

// Charts returns the CloudWatch history, metric and widget adapter.
func (c *Client) Charts() *Charts {
	return &Charts{c: c}
}

// Instances returns the EC2 adapter.
func (c *Client) Instances() *Instances {
	return &Instances{c: c}
}

// Parameters returns the SSM adapter.
func (c *Client) Parameters() *Parameters {
	return &Parameters{c: c}
}

// Bus returns the EventBridge publisher for the configured bus.
func (c *Client) Bus() *Bus {
	return &Bus{c: c, busName: c.config.EventBusName}
}

// Topics returns the SNS adapter.
func (c *Client) Topics() *Topics {
	return &Topics{c: c}
}

// Objects returns the S3 adapter.
func (c *Client) Objects() *Objects {
	return &Objects{c: c}
}

// Secrets returns the Secrets Manager adapter.
func (c *Client) Secrets() *Secrets {
	return &Secrets{c: c}
}

func (c *Client) wait(ctx context.Context) error {
	if c.rateLimiter == nil {
		return nil
	}
	if c.rateLimiter.Tokens() < 1 {
		c.metrics.RecordRateLimitHit()
	}
	start := time.Now()
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		c.logger.Debug("Rate limited", zap.Duration("wait", waited))
	}
	return nil
}
