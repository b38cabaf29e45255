// Package config provides configuration management for the credit alarm pipeline.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the pipeline stages and the operator server
type Config struct {
	// AWS
	Region       string `json:"region"`
	DeploymentID string `json:"deployment_id"`

	// Parameter store names for the alarm tunables
	ParamPeriod            string `json:"param_period"`
	ParamDatapoints        string `json:"param_datapoints"`
	ParamEvaluationPeriods string `json:"param_evaluation_periods"`
	ParamThreshold         string `json:"param_threshold"`
	ParamMaintenanceTopic  string `json:"param_maintenance_topic"`

	// Workload classification
	AdditionalDatapoints        int32    `json:"additional_datapoints"`
	AdditionalEvaluationPeriods int32    `json:"additional_evaluation_periods"`
	ComputeIntensivePatterns    []string `json:"compute_intensive_patterns"`
	BurstableFamilies           []string `json:"burstable_families"`

	// Suppression
	SuppressTagName  string `json:"suppress_tag_name"`
	SuppressTagValue string `json:"suppress_tag_value"`

	// Pipeline bus
	EventBusName             string `json:"event_bus_name"`
	StageDetailType          string `json:"stage_detail_type"` // detail-type emitted by the running stage
	StageOutcome             string `json:"stage_outcome"`
	CreateExistingDetailType string `json:"create_existing_detail_type"`
	UpdateConfigDetailType   string `json:"update_config_detail_type"`
	HandlerStage             string `json:"handler_stage"`

	// Alarm actions and diagnostics
	CompositeAlarmAction string `json:"composite_alarm_action"`
	ImageBucket          string `json:"image_bucket"`

	// Suppression endpoint signing
	SigningSecretID string `json:"signing_secret_id,omitempty"`
	APIGatewayHost  string `json:"api_gateway_host"`
	APIEndpoint     string `json:"api_endpoint"`
	SuppressURI     string `json:"suppress_uri"`

	// AWS call policy
	Timeout         time.Duration `json:"timeout"`
	MaxAttempts     int           `json:"max_attempts"`
	RetryWaitMin    time.Duration `json:"retry_wait_min"`
	RetryWaitMax    time.Duration `json:"retry_wait_max"`
	RateLimit       int           `json:"rate_limit"`       // requests per second
	RateLimitBurst  int           `json:"rate_limit_burst"` // burst size
	EnableRateLimit bool          `json:"enable_rate_limit"`

	// Time bounds
	DiagnosticsTimeout time.Duration `json:"diagnostics_timeout"` // budget for chart generation before dispatch
	SuppressURLExpiry  time.Duration `json:"suppress_url_expiry"`

	// Bulk reconciliation
	ReconcileRateLimit float64 `json:"reconcile_rate_limit"` // events per second
	ReconcileRateBurst int     `json:"reconcile_rate_burst"`

	// Observability
	EnableTracing   bool          `json:"enable_tracing"`
	EnableAuditLog  bool          `json:"enable_audit_log"`
	MetricsEndpoint bool          `json:"metrics_endpoint"`
	HealthPort      int           `json:"health_port"`
	HealthBindAddr  string        `json:"health_bind_addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`

	// Logging
	LogLevel    string `json:"log_level"`
	LogFormat   string `json:"log_format"` // json or console
	Environment string `json:"environment"`
}

// Load configuration from environment variables and config file
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		Region:                      "us-east-1",
		DeploymentID:                "default",
		AdditionalDatapoints:        5,
		AdditionalEvaluationPeriods: 10,
		BurstableFamilies:           []string{"t2", "t3", "t3a", "t4g"},
		SuppressTagName:             "SuppressCpuCreditAlarm",
		SuppressTagValue:            "true",
		SuppressURI:                 "/suppress-cpu-credit-alarm",
		Timeout:                     30 * time.Second,
		MaxAttempts:                 10,
		RetryWaitMin:                200 * time.Millisecond,
		RetryWaitMax:                20 * time.Second,
		RateLimit:                   20,
		RateLimitBurst:              10,
		EnableRateLimit:             true,
		DiagnosticsTimeout:          20 * time.Second,
		SuppressURLExpiry:           30 * time.Second,
		ReconcileRateLimit:          10,
		ReconcileRateBurst:          1,
		EnableTracing:               false,
		EnableAuditLog:              true,
		MetricsEndpoint:             false,
		HealthPort:                  8080,
		HealthBindAddr:              "127.0.0.1",
		ShutdownTimeout:             10 * time.Second,
		LogLevel:                    "info",
		LogFormat:                   "json",
		Environment:                 "production",
	}

	// Try to load from config file if specified
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables (these take precedence)
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	applyParameterDefaults(cfg)

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	cleanPath := filepath.Clean(path)

	// Prevent path traversal by checking for ".." components
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("invalid file path: path traversal detected")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 -- path is validated above
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return json.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) error {
	setString(&cfg.Region, "AWS_REGION")
	setString(&cfg.DeploymentID, "DEPLOYMENT_ID")

	setString(&cfg.ParamPeriod, "PARAM_PERIOD")
	setString(&cfg.ParamDatapoints, "PARAM_DATAPOINTS")
	setString(&cfg.ParamEvaluationPeriods, "PARAM_EVALUATION_PERIODS")
	setString(&cfg.ParamThreshold, "PARAM_THRESHOLD")
	setString(&cfg.ParamMaintenanceTopic, "PARAM_MAINTENANCE_TOPIC")

	if v := os.Getenv("ADDITIONAL_DATAPOINTS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid ADDITIONAL_DATAPOINTS %q: %w", v, err)
		}
		cfg.AdditionalDatapoints = int32(n)
	}
	if v := os.Getenv("ADDITIONAL_EVALUATION_PERIODS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid ADDITIONAL_EVALUATION_PERIODS %q: %w", v, err)
		}
		cfg.AdditionalEvaluationPeriods = int32(n)
	}
	if v, ok := os.LookupEnv("COMPUTE_INTENSIVE_WORKLOADS_REGIX_LIST"); ok {
		cfg.ComputeIntensivePatterns = SplitList(v)
	}
	if v := os.Getenv("BURSTABLE_FAMILIES"); v != "" {
		cfg.BurstableFamilies = SplitList(v)
	}

	setString(&cfg.SuppressTagName, "SUPPRESS_TAG_NAME")
	setString(&cfg.SuppressTagValue, "SUPPRESS_TAG_VALUE")

	setString(&cfg.EventBusName, "DYNAMIC_EC2_MONITOR_EVENT_BUS_NAME")
	setString(&cfg.StageDetailType, "NOTIFICATION_FROM_FN")
	setString(&cfg.StageOutcome, "FN_OUTCOME")
	setString(&cfg.CreateExistingDetailType, "CREATE_ALARMS_FOR_EXISTING_INSTANCES_NOTIFICATION")
	setString(&cfg.UpdateConfigDetailType, "UPDATE_ALARMS_CONFIG_NOTIFICATION")
	setString(&cfg.HandlerStage, "HANDLER_STAGE")

	setString(&cfg.CompositeAlarmAction, "ACTION")
	setString(&cfg.ImageBucket, "S3_BUCKET_TO_STORE_GENERATED_IMAGES")

	setString(&cfg.SigningSecretID, "CREDENTIAL_TO_SIGN_API_URL")
	setString(&cfg.APIGatewayHost, "API_GATEWAY_HOST")
	setString(&cfg.APIEndpoint, "API_ENDPOINT")
	setString(&cfg.SuppressURI, "SUPPRESS_NOTIFICATION_URI")

	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		var attempts int
		if _, err := fmt.Sscanf(v, "%d", &attempts); err == nil {
			cfg.MaxAttempts = attempts
		}
	}
	setDuration(&cfg.Timeout, "AWS_CALL_TIMEOUT")
	setDuration(&cfg.RetryWaitMin, "RETRY_WAIT_MIN")
	setDuration(&cfg.RetryWaitMax, "RETRY_WAIT_MAX")
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		var limit int
		if _, err := fmt.Sscanf(v, "%d", &limit); err == nil {
			cfg.RateLimit = limit
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		var burst int
		if _, err := fmt.Sscanf(v, "%d", &burst); err == nil {
			cfg.RateLimitBurst = burst
		}
	}
	setBool(&cfg.EnableRateLimit, "ENABLE_RATE_LIMIT")

	setDuration(&cfg.DiagnosticsTimeout, "DIAGNOSTICS_TIMEOUT")
	setDuration(&cfg.SuppressURLExpiry, "SUPPRESS_URL_EXPIRY")

	if v := os.Getenv("RECONCILE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ReconcileRateLimit = f
		}
	}
	if v := os.Getenv("RECONCILE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReconcileRateBurst = n
		}
	}

	setBool(&cfg.EnableTracing, "ENABLE_TRACING")
	setBool(&cfg.EnableAuditLog, "ENABLE_AUDIT_LOG")
	setBool(&cfg.MetricsEndpoint, "METRICS_ENDPOINT")
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthPort = n
		}
	}
	setString(&cfg.HealthBindAddr, "HEALTH_BIND_ADDR")
	setDuration(&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.LogFormat, "LOG_FORMAT")
	setString(&cfg.Environment, "ENVIRONMENT")
	return nil
}

// applyParameterDefaults fills parameter names that were not set explicitly
// from the deployment namespace.
func applyParameterDefaults(cfg *Config) {
	prefix := "/rift/" + cfg.DeploymentID
	if cfg.ParamPeriod == "" {
		cfg.ParamPeriod = prefix + "/config/alarms/period"
	}
	if cfg.ParamDatapoints == "" {
		cfg.ParamDatapoints = prefix + "/config/alarms/datapoints"
	}
	if cfg.ParamEvaluationPeriods == "" {
		cfg.ParamEvaluationPeriods = prefix + "/config/alarms/evaluation-periods"
	}
	if cfg.ParamThreshold == "" {
		cfg.ParamThreshold = prefix + "/config/alarms/threshold"
	}
	if cfg.ParamMaintenanceTopic == "" {
		cfg.ParamMaintenanceTopic = prefix + "/sns/topic/maintenance"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// SplitList splits a comma separated value, trimming blanks and dropping
// empty entries.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Region == "" {
		return errors.New("AWS_REGION is required")
	}
	if c.DeploymentID == "" {
		return errors.New("DEPLOYMENT_ID is required")
	}
	if len(c.BurstableFamilies) == 0 {
		return errors.New("at least one burstable family is required")
	}
	if c.AdditionalDatapoints <= 0 || c.AdditionalEvaluationPeriods <= 0 {
		return errors.New("additional datapoints and evaluation periods must be positive")
	}
	if c.AdditionalDatapoints > c.AdditionalEvaluationPeriods {
		return fmt.Errorf("additional datapoints (%d) must not exceed additional evaluation periods (%d)",
			c.AdditionalDatapoints, c.AdditionalEvaluationPeriods)
	}
	if c.SuppressTagName == "" {
		return errors.New("SUPPRESS_TAG_NAME must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > 10 {
		return fmt.Errorf("max_attempts must be between 1 and 10, got %d", c.MaxAttempts)
	}
	if c.RetryWaitMin <= 0 || c.RetryWaitMax < c.RetryWaitMin {
		return errors.New("retry waits must be positive and retry_wait_max must be >= retry_wait_min")
	}
	if c.RateLimit <= 0 && c.EnableRateLimit {
		return errors.New("rate_limit must be positive when rate limiting is enabled")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown_timeout must be positive")
	}
	if c.DiagnosticsTimeout <= 0 {
		return errors.New("diagnostics_timeout must be positive")
	}
	if c.SuppressURLExpiry <= 0 {
		return errors.New("suppress_url_expiry must be positive")
	}
	if c.ReconcileRateLimit <= 0 || c.ReconcileRateBurst <= 0 {
		return errors.New("reconcile rate limit and burst must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}

	return nil
}

// Require returns an error naming every environment key whose field is empty.
// Stages call it with the keys they cannot run without.
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if c.lookup(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) lookup(key string) string {
	switch key {
	case "DYNAMIC_EC2_MONITOR_EVENT_BUS_NAME":
		return c.EventBusName
	case "NOTIFICATION_FROM_FN":
		return c.StageDetailType
	case "FN_OUTCOME":
		return c.StageOutcome
	case "CREATE_ALARMS_FOR_EXISTING_INSTANCES_NOTIFICATION":
		return c.CreateExistingDetailType
	case "UPDATE_ALARMS_CONFIG_NOTIFICATION":
		return c.UpdateConfigDetailType
	case "ACTION":
		return c.CompositeAlarmAction
	case "S3_BUCKET_TO_STORE_GENERATED_IMAGES":
		return c.ImageBucket
	case "CREDENTIAL_TO_SIGN_API_URL":
		return c.SigningSecretID
	case "API_GATEWAY_HOST":
		return c.APIGatewayHost
	case "API_ENDPOINT":
		return c.APIEndpoint
	case "SUPPRESS_TAG_NAME":
		return c.SuppressTagName
	case "SUPPRESS_TAG_VALUE":
		return c.SuppressTagValue
	case "HANDLER_STAGE":
		return c.HandlerStage
	default:
		return ""
	}
}

// Redact returns a copy of the config with sensitive data removed
func (c *Config) Redact() *Config {
	redacted := *c
	redacted.SigningSecretID = MaskSecret(redacted.SigningSecretID)
	return &redacted
}

// MaskSecret returns a masked version of a secret identifier for safe logging
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
