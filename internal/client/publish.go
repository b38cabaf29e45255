package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	apperrors "github.com/tareqmamari/credit-alarms/internal/errors"
	"github.com/tareqmamari/credit-alarms/internal/events"
)

const (
	serviceEventBridge = "eventbridge"
	serviceSNS         = "sns"
	serviceS3          = "s3"
	serviceSecrets     = "secretsmanager"
)

// Bus publishes pipeline events to an EventBridge bus.
type Bus struct {
	c       *Client
	busName string
}

var _ events.Publisher = (*Bus)(nil)

// Publish puts one event with the pipeline source and the given detail type.
// A partially failed PutEvents is reported as a publish error.
func (b *Bus) Publish(ctx context.Context, detailType string, detail any) error {
	body, err := json.Marshal(detail)
	if err != nil {
		return apperrors.NewPublish(b.busName, fmt.Errorf("marshal detail: %w", err))
	}

	entry := ebtypes.PutEventsRequestEntry{
		Source:       aws.String(events.Source),
		DetailType:   aws.String(detailType),
		Detail:       aws.String(string(body)),
		EventBusName: aws.String(b.busName),
	}
	var out *eventbridge.PutEventsOutput
	err = b.c.Do(ctx, serviceEventBridge, "PutEvents", func(ctx context.Context) error {
		var err error
		out, err = b.c.apis.EventBridge.PutEvents(ctx, &eventbridge.PutEventsInput{
			Entries: []ebtypes.PutEventsRequestEntry{entry},
		})
		return err
	})
	if err != nil {
		return apperrors.NewPublish(b.busName, err)
	}
	if out.FailedEntryCount > 0 {
		var reason string
		if len(out.Entries) > 0 {
			reason = aws.ToString(out.Entries[0].ErrorCode) + ": " + aws.ToString(out.Entries[0].ErrorMessage)
		}
		return apperrors.NewPublish(b.busName, fmt.Errorf("entry rejected: %s", reason))
	}

	b.c.logger.Debug("Published event",
		zap.String("bus", b.busName),
		zap.String("detail_type", detailType),
	)
	return nil
}

// Topics publishes messages to SNS topics.
type Topics struct {
	c *Client
}

// PublishMessage sends one message with a subject to a topic.
func (t *Topics) PublishMessage(ctx context.Context, topicARN, subject, message string) error {
	err := t.c.Do(ctx, serviceSNS, "Publish", func(ctx context.Context) error {
		_, err := t.c.apis.SNS.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(topicARN),
			Subject:  aws.String(subject),
			Message:  aws.String(message),
		})
		return err
	})
	if err != nil {
		return apperrors.NewPublish(topicARN, err)
	}
	return nil
}

// Objects stores objects in S3.
type Objects struct {
	c *Client
}

// PutObject uploads body under key.
func (o *Objects) PutObject(ctx context.Context, bucket, key, contentType string, body []byte) error {
	err := o.c.Do(ctx, serviceS3, "PutObject", func(ctx context.Context) error {
		_, err := o.c.apis.S3.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
			Body:        bytes.NewReader(body),
		})
		return err
	})
	if err != nil {
		return apperrors.NewDiagnosticGeneration("upload", err)
	}
	return nil
}

// Secrets reads Secrets Manager secrets.
type Secrets struct {
	c *Client
}

// SecretString returns the string value of a secret.
func (s *Secrets) SecretString(ctx context.Context, secretID string) (string, error) {
	var out *secretsmanager.GetSecretValueOutput
	err := s.c.Do(ctx, serviceSecrets, "GetSecretValue", func(ctx context.Context) error {
		var err error
		out, err = s.c.apis.Secrets.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		return err
	})
	if err != nil {
		return "", apperrors.NewSigning(err)
	}
	return aws.ToString(out.SecretString), nil
}
