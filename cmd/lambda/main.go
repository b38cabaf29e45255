// Package main is the Lambda entry point of the credit alarm pipeline.
//
// One binary serves every stage. HANDLER_STAGE selects which handler is
// started:
//   - check-instance-class: instance state changes to burstable detection
//   - create-credit-alarm, create-utilization-alarm: metric alarm writers
//   - ensure-composite: composite alarm creation
//   - remove-alarms: cleanup on termination
//   - notify: composite alarm notifications with diagnostic charts
//   - reconcile: bulk create or update for running instances
//   - suppress: the notification suppression endpoint
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/app"
	"github.com/tareqmamari/credit-alarms/internal/config"
	"github.com/tareqmamari/credit-alarms/internal/tracing"
)

// Build information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	_ = godotenv.Load()

	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if err := app.CheckStage(cfg, cfg.HandlerStage); err != nil {
		logger.Fatal("Stage cannot start", zap.String("stage", cfg.HandlerStage), zap.Error(err))
	}

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "credit-alarms-" + cfg.HandlerStage,
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Enabled:        cfg.EnableTracing,
	})
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create AWS clients", zap.Error(err))
	}
	h, err := a.Handler.For(cfg.HandlerStage)
	if err != nil {
		logger.Fatal("Unknown stage", zap.Error(err))
	}

	logger.Info("Starting stage",
		zap.String("stage", cfg.HandlerStage),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("region", cfg.Region),
	)
	lambda.Start(h)
}

// initLogger builds a production logger if ENVIRONMENT=production, otherwise
// a development logger. LOG_LEVEL overrides the level of either.
func initLogger() (*zap.Logger, error) {
	var zcfg zap.Config
	if os.Getenv("ENVIRONMENT") == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}
