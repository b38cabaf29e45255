package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/threshold"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// slowThreshold marks a successful but slow probe as degraded.
const slowThreshold = 3 * time.Second

// Check represents a health check result
type Check struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration"`
}

// Pinger makes one cheap call against the alarm API.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConfigSource reads the alarm parameters.
type ConfigSource interface {
	Snapshot(ctx context.Context) (threshold.AlarmConfig, error)
}

// Checker performs health checks
type Checker struct {
	alarms Pinger
	params ConfigSource
	logger *zap.Logger
}

// New creates a new health checker. params may be nil.
func New(alarms Pinger, params ConfigSource, logger *zap.Logger) *Checker {
	return &Checker{
		alarms: alarms,
		params: params,
		logger: logger,
	}
}

// CheckAll performs all health checks
func (c *Checker) CheckAll(ctx context.Context) (Status, []Check) {
	checks := []Check{c.checkAlarmAPI(ctx)}
	if c.params != nil {
		checks = append(checks, c.checkParameters(ctx))
	}

	overallStatus := StatusHealthy
	for _, check := range checks {
		if check.Status == StatusUnhealthy {
			overallStatus = StatusUnhealthy
			break
		} else if check.Status == StatusDegraded && overallStatus == StatusHealthy {
			overallStatus = StatusDegraded
		}
	}

	return overallStatus, checks
}

func (c *Checker) checkAlarmAPI(ctx context.Context) Check {
	return c.probe(ctx, "alarm_api", func(ctx context.Context) error {
		return c.alarms.Ping(ctx)
	})
}

// checkParameters verifies the alarm parameters exist and parse. A broken
// parameter set stops every alarm stage, so it reports unhealthy.
func (c *Checker) checkParameters(ctx context.Context) Check {
	return c.probe(ctx, "alarm_parameters", func(ctx context.Context) error {
		cfg, err := c.params.Snapshot(ctx)
		if err != nil {
			return err
		}
		return cfg.Validate()
	})
}

func (c *Checker) probe(ctx context.Context, name string, fn func(context.Context) error) Check {
	start := time.Now()
	check := Check{
		Name:      name,
		Timestamp: start,
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := fn(checkCtx)
	check.Duration = time.Since(start)

	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("%s check failed: %v", name, err)
		c.logger.Warn("Health check failed",
			zap.String("check", name),
			zap.Error(err),
			zap.Duration("duration", check.Duration),
		)
	case check.Duration > slowThreshold:
		check.Status = StatusDegraded
		check.Message = "responding slowly"
	default:
		check.Status = StatusHealthy
		check.Message = "ok"
		c.logger.Debug("Health check passed",
			zap.String("check", name),
			zap.Duration("duration", check.Duration),
		)
	}

	return check
}
