package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	t.Setenv("DEPLOYMENT_ID", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.MaxAttempts != 10 {
		t.Errorf("Expected default max_attempts 10, got %d", cfg.MaxAttempts)
	}
	if cfg.DiagnosticsTimeout != 20*time.Second {
		t.Errorf("Expected default diagnostics timeout 20s, got %v", cfg.DiagnosticsTimeout)
	}
	if cfg.SuppressURLExpiry != 30*time.Second {
		t.Errorf("Expected default suppress URL expiry 30s, got %v", cfg.SuppressURLExpiry)
	}
	if !reflect.DeepEqual(cfg.BurstableFamilies, []string{"t2", "t3", "t3a", "t4g"}) {
		t.Errorf("Unexpected default families %v", cfg.BurstableFamilies)
	}
	if cfg.ParamPeriod != "/rift/prod/config/alarms/period" {
		t.Errorf("Unexpected period parameter %q", cfg.ParamPeriod)
	}
	if cfg.ParamEvaluationPeriods != "/rift/prod/config/alarms/evaluation-periods" {
		t.Errorf("Unexpected evaluation periods parameter %q", cfg.ParamEvaluationPeriods)
	}
	if cfg.ParamMaintenanceTopic != "/rift/prod/sns/topic/maintenance" {
		t.Errorf("Unexpected maintenance topic parameter %q", cfg.ParamMaintenanceTopic)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AWS_REGION", "ap-southeast-2")
	t.Setenv("COMPUTE_INTENSIVE_WORKLOADS_REGIX_LIST", "batch, etl,,render ")
	t.Setenv("BURSTABLE_FAMILIES", "t3,t4g")
	t.Setenv("ADDITIONAL_DATAPOINTS", "8")
	t.Setenv("ADDITIONAL_EVALUATION_PERIODS", "12")
	t.Setenv("PARAM_THRESHOLD", "/custom/threshold")
	t.Setenv("DIAGNOSTICS_TIMEOUT", "5s")
	t.Setenv("ENABLE_TRACING", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Region != "ap-southeast-2" {
		t.Errorf("Region = %q", cfg.Region)
	}
	if !reflect.DeepEqual(cfg.ComputeIntensivePatterns, []string{"batch", "etl", "render"}) {
		t.Errorf("ComputeIntensivePatterns = %v", cfg.ComputeIntensivePatterns)
	}
	if !reflect.DeepEqual(cfg.BurstableFamilies, []string{"t3", "t4g"}) {
		t.Errorf("BurstableFamilies = %v", cfg.BurstableFamilies)
	}
	if cfg.AdditionalDatapoints != 8 || cfg.AdditionalEvaluationPeriods != 12 {
		t.Errorf("additional window = %d/%d", cfg.AdditionalDatapoints, cfg.AdditionalEvaluationPeriods)
	}
	if cfg.ParamThreshold != "/custom/threshold" {
		t.Errorf("explicit parameter name should win, got %q", cfg.ParamThreshold)
	}
	if cfg.DiagnosticsTimeout != 5*time.Second {
		t.Errorf("DiagnosticsTimeout = %v", cfg.DiagnosticsTimeout)
	}
	if !cfg.EnableTracing {
		t.Error("EnableTracing should be true")
	}
}

func TestLoadRejectsMalformedWindow(t *testing.T) {
	t.Setenv("ADDITIONAL_DATAPOINTS", "many")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-numeric ADDITIONAL_DATAPOINTS")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"deployment_id":"staging","image_bucket":"charts"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ImageBucket != "charts" {
		t.Errorf("ImageBucket = %q", cfg.ImageBucket)
	}
	if cfg.ParamDatapoints != "/rift/staging/config/alarms/datapoints" {
		t.Errorf("ParamDatapoints = %q", cfg.ParamDatapoints)
	}
}

func TestConfigValidation(t *testing.T) {
	valid := func() Config {
		return Config{
			Region:                      "us-east-1",
			DeploymentID:                "d",
			BurstableFamilies:           []string{"t3"},
			AdditionalDatapoints:        5,
			AdditionalEvaluationPeriods: 10,
			SuppressTagName:             "SuppressCpuCreditAlarm",
			Timeout:                     time.Second,
			MaxAttempts:                 10,
			RetryWaitMin:                time.Millisecond,
			RetryWaitMax:                time.Second,
			RateLimit:                   1,
			EnableRateLimit:             true,
			DiagnosticsTimeout:          time.Second,
			SuppressURLExpiry:           time.Second,
			ReconcileRateLimit:          1,
			ReconcileRateBurst:          1,
			ShutdownTimeout:             time.Second,
			LogLevel:                    "info",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing region", mutate: func(c *Config) { c.Region = "" }, wantErr: "AWS_REGION"},
		{name: "no families", mutate: func(c *Config) { c.BurstableFamilies = nil }, wantErr: "burstable family"},
		{name: "datapoints exceed periods", mutate: func(c *Config) { c.AdditionalDatapoints = 11 }, wantErr: "must not exceed"},
		{name: "too many attempts", mutate: func(c *Config) { c.MaxAttempts = 11 }, wantErr: "max_attempts"},
		{name: "no shutdown timeout", mutate: func(c *Config) { c.ShutdownTimeout = 0 }, wantErr: "shutdown_timeout"},
		{name: "inverted retry waits", mutate: func(c *Config) { c.RetryWaitMax = 0 }, wantErr: "retry waits"},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, wantErr: "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadedDefaultsValidate(t *testing.T) {
	t.Setenv("DEPLOYMENT_ID", "prod")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration rejected: %v", err)
	}
}

func TestRequire(t *testing.T) {
	cfg := &Config{EventBusName: "bus"}

	if err := cfg.Require("DYNAMIC_EC2_MONITOR_EVENT_BUS_NAME"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := cfg.Require("DYNAMIC_EC2_MONITOR_EVENT_BUS_NAME", "ACTION", "S3_BUCKET_TO_STORE_GENERATED_IMAGES")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ACTION") || !strings.Contains(err.Error(), "S3_BUCKET_TO_STORE_GENERATED_IMAGES") {
		t.Errorf("error should name every missing key: %v", err)
	}
}

func TestConfigRedact(t *testing.T) {
	cfg := &Config{
		Region:          "us-east-1",
		SigningSecretID: "arn:aws:secretsmanager:us-east-1:1234:secret:sign", // pragma: allowlist secret
	}

	redacted := cfg.Redact()

	if redacted.SigningSecretID == cfg.SigningSecretID {
		t.Error("signing secret id should be redacted")
	}
	if redacted.SigningSecretID != "arn:...sign" {
		t.Errorf("unexpected mask %q", redacted.SigningSecretID)
	}
	if redacted.Region != cfg.Region {
		t.Error("Region should not be changed")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"short", "***"},
		{"exactly8", "***"},
		{"secret-key-12345", "secr...2345"}, // pragma: allowlist secret
	}

	for _, tt := range tests {
		if result := MaskSecret(tt.input); result != tt.expected {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
