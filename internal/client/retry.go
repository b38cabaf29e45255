package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/tracing"
)

// Throttling and transient service error codes.
var retryableCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"LimitExceededException":                 true,
	"ServiceUnavailable":                     true,
	"ServiceUnavailableException":            true,
	"InternalError":                          true,
	"InternalFailure":                        true,
	"InternalServerError":                    true,
	"RequestTimeout":                         true,
	"RequestTimeoutException":                true,
	"EC2ThrottledException":                  true,
}

// retriesFor converts a total attempt budget into the retries that follow
// the first attempt.
func retriesFor(maxAttempts int) uint64 {
	if maxAttempts <= 1 {
		return 0
	}
	return uint64(maxAttempts - 1)
}

// Do runs fn with exponential backoff and jitter, making at most
// MaxAttempts calls in total. Errors that are not
// transient stop the loop at once and are returned unwrapped.
func (c *Client) Do(ctx context.Context, service, operation string, fn func(context.Context) error) error {
	ctx, span := tracing.AWSSpan(ctx, service, operation)
	defer span.End()

	start := time.Now()
	attempt := 0
	op := func() error {
		if err := c.wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), retriesFor(c.config.MaxAttempts)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.metrics.RecordRetry(service, operation)
		c.logger.Debug("Retrying AWS call",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})

	c.metrics.RecordAWSCall(service, operation, time.Since(start), err)
	if err != nil {
		tracing.RecordError(span, err)
		c.logger.Warn("AWS call failed",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempts", attempt),
			zap.Error(err),
		)
		return err
	}
	tracing.SetSuccess(span)
	return nil
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.RetryWaitMin
	b.MaxInterval = c.config.RetryWaitMax
	b.RandomizationFactor = 0.5
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// isRetryable reports whether err is a throttle, a server fault or a
// transient network failure.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if retryableCodes[apiErr.ErrorCode()] {
			return true
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return true
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		if shouldRetry(respErr.HTTPStatusCode()) {
			return true
		}
		if apiErr != nil {
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH) ||
			errors.Is(opErr.Err, syscall.ETIMEDOUT) {
			return true
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"connection reset", "connection refused", "i/o timeout", "tls handshake timeout"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
