// Package main implements the operator MCP (Model Context Protocol) server of
// the EC2 CPU credit alarm pipeline.
//
// The server exposes tools to inspect and tune the alarm parameters, preview
// thresholds, list or remove the alarms of an instance, suppress its
// notifications and start bulk reconciliation runs. It shares the pipeline
// components and configuration with the Lambda stages in cmd/lambda.
//
// The server communicates using the MCP protocol over stdio, so logs and
// traces go to stderr.
//
// Configuration is provided through environment variables, most notably:
//   - AWS_REGION: region of the monitored instances
//   - DEPLOYMENT_ID: prefix of the alarm parameter names
//   - SUPPRESS_TAG_NAME, SUPPRESS_TAG_VALUE: the suppression tag
//   - HEALTH_PORT: port of the health and metrics endpoints (0 disables)
//
// Example usage:
//
//	export AWS_REGION=us-east-1
//	export DEPLOYMENT_ID=rift
//	./credit-alarms
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tareqmamari/credit-alarms/internal/config"
	"github.com/tareqmamari/credit-alarms/internal/server"
	"github.com/tareqmamari/credit-alarms/internal/tracing"
)

// Build information - set at build time via ldflags
// For GoReleaser builds: -X main.version={{.Version}} -X main.commit={{.Commit}} ...
var (
	version = "dev"
	commit  = "unknown"
	builtBy = "manual"
)

func main() {
	// Load .env file if it exists (optional, for development)
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

	shutdownTracing, err := tracing.InitOTel(tracing.OTelConfig{
		ServiceName:    "credit-alarms-operator",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Enabled:        cfg.EnableTracing,
		Writer:         os.Stderr,
	})
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	logger.Info("Starting credit alarms MCP server",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("built_by", builtBy),
		zap.String("region", cfg.Region),
		zap.String("deployment", cfg.DeploymentID),
	)

	ctx, cancel := context.WithCancel(context.Background())

	mcpServer, err := server.New(ctx, cfg, logger, version)
	if err != nil {
		cancel()
		logger.Fatal("Failed to create MCP server", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- mcpServer.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
		cancel()
		return
	}

	logger.Info("Initiating graceful shutdown", zap.Duration("timeout", cfg.ShutdownTimeout))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	select {
	case <-serverDone:
		logger.Info("Server shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing exit",
			zap.Duration("timeout", cfg.ShutdownTimeout))
	}

	// Allow a brief moment for final cleanup
	time.Sleep(100 * time.Millisecond)
}

// initLogger builds a production logger if ENVIRONMENT=production, otherwise
// a development logger. Both write to stderr; stdout carries the protocol.
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
