/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wso2/api-platform/gateway/guard-engine/engine"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/admin"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/config"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/loader"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/metrics"
	"github.com/wso2/api-platform/gateway/guard-engine/internal/tracing"
	"github.com/wso2/api-platform/gateway/guard-engine/middleware"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var (
	configFile = flag.String("config", "", "Path to configuration file (required)")
	chainsFile = flag.String("chains-file", "", "Path to chains file (overrides config)")
)

func main() {
	flag.Parse()

	// Validate that config file is provided
	if *configFile == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Usage: %s -config <path-to-config.toml>\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration from file
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration from %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	// Flag override for the chains file path
	if *chainsFile != "" {
		cfg.GuardEngine.ChainsFile.Path = *chainsFile
	}

	// Initialize metrics immediately so they're available throughout the codebase
	metrics.Init()

	// Set up structured logging based on configuration
	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	ctx := context.Background()

	slog.InfoContext(ctx, "Guard Engine starting",
		"version", Version,
		"git_commit", GitCommit,
		"build_date", BuildDate,
		"config_file", *configFile,
		"chains_file", cfg.GuardEngine.ChainsFile.Path)

	// Initialize tracing (if enabled in config)
	tracingShutdown, err := tracing.InitTracer(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer tracingShutdown()

	// Assemble the engine with built-in observers and audit sinks
	eng, err := engine.New(cfg)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to create engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	// Built-in middleware factories; plugins may add more chains later
	factories := middleware.Builtins()

	// Load the chains file, failing fast on any validation error
	if path := cfg.GuardEngine.ChainsFile.Path; path != "" {
		chainLoader := loader.NewLoader(factories, eng.Registry(), eng.Evaluator())
		routes, err := chainLoader.LoadFromFile(path)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load chains file", "path", path, "error", err)
			os.Exit(1)
		}
		eng.SetRoutes(routes)
		slog.InfoContext(ctx, "Chains file loaded successfully", "routes", len(routes))
	}

	// Start admin HTTP server if enabled
	var adminServer *admin.Server
	if cfg.GuardEngine.Admin.Enabled {
		adminServer = admin.NewServer(&cfg.GuardEngine.Admin, admin.Sources{
			Registry:  eng.Registry(),
			Factories: factories,
			Routes:    eng.Routes,
			Plugins:   eng.Plugins,
			Recorder:  eng.Recorder(),
			Status:    eng.Status(),
		})
		go func() {
			if err := adminServer.Start(ctx); err != nil {
				slog.ErrorContext(ctx, "Admin server error", "error", err)
			}
		}()
	}

	// Start metrics HTTP server if enabled
	var metricsServer *metrics.Server
	if cfg.GuardEngine.Metrics.Enabled {
		metricsServer = metrics.NewServer(&cfg.GuardEngine.Metrics)
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				slog.ErrorContext(ctx, "Metrics server error", "error", err)
			}
		}()
		// Start periodic memory metrics updater
		metrics.StartMemoryMetricsUpdater(ctx, 15*time.Second)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.InfoContext(ctx, "Received signal, shutting down gracefully", "signal", sig)

	// Graceful shutdown
	if adminServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adminServer.Stop(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "Error stopping admin server", "error", err)
		}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			slog.ErrorContext(ctx, "Error stopping metrics server", "error", err)
		}
	}

	slog.InfoContext(ctx, "Guard Engine shut down successfully")
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.GuardEngine.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.GuardEngine.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
