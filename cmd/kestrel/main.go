// Kestrel - Loan fraud assessment that deploys in 60 seconds.
// Copyright (c) 2025 credora-labs
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/credora-labs/kestrel/internal/advisor"
	"github.com/credora-labs/kestrel/internal/api"
	"github.com/credora-labs/kestrel/internal/assess"
	"github.com/credora-labs/kestrel/internal/bus"
	"github.com/credora-labs/kestrel/internal/cache"
	"github.com/credora-labs/kestrel/internal/domain"
	"github.com/credora-labs/kestrel/internal/identity"
	"github.com/credora-labs/kestrel/internal/publisher"
	"github.com/credora-labs/kestrel/internal/repository"
	"github.com/credora-labs/kestrel/internal/rules"
	"github.com/credora-labs/kestrel/internal/signals"
	"github.com/credora-labs/kestrel/internal/velocity"
	"github.com/credora-labs/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load .env if present; real environment wins
	_ = godotenv.Load()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := loadConfig()

	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"model_configured", cfg.Model.APIKey != "",
		"chain_configured", cfg.Chain.PrivateKey != "",
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	ledger, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer ledger.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Identity registry doubles as the pipeline's identity provider
	registry := identity.NewRegistry(ledger, cacheImpl)

	// Velocity counters for loan-request frequency
	velocitySvc := velocity.NewService(ledger, cacheImpl,
		time.Duration(cfg.Pipeline.VelocityWindow)*time.Second)

	// Context builder
	builder := signals.NewBuilder(registry, ledger, velocitySvc,
		time.Duration(cfg.Pipeline.UpstreamTimeout)*time.Second)

	// Rule engine with the fixed rule table
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Model advisor (degrades to deterministic fallbacks without a key)
	adv := advisor.New(cfg.Model, advisor.NewGeminiClient(cfg.Model))
	slog.Info("model advisor initialized", "enabled", cfg.Model.APIKey != "")

	// On-chain score publisher
	chainPub, err := publisher.New(cfg.Chain, logger)
	if err != nil {
		slog.Error("failed to initialize chain publisher", "error", err)
		os.Exit(1)
	}
	defer chainPub.Close()

	// Assessment pipeline service
	service := assess.NewService(builder, engine, adv, ledger, busImpl, logger)

	// Score publish worker drains the bus into the chain publisher
	scoreWorker := worker.NewWorker(busImpl, chainPub)
	if err := scoreWorker.Start(); err != nil {
		slog.Error("failed to start score publish worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, registry, ledger, cacheImpl, busImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := scoreWorker.Stop(); err != nil {
		slog.Error("failed to stop score publish worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadConfig builds the runtime configuration from defaults plus
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()

	if v := os.Getenv("KESTREL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("KESTREL_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_PG_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_PG_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_PG_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_PG_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("KESTREL_CACHE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}

	if v := os.Getenv("KESTREL_BUS"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Model.Model = v
	}

	if v := os.Getenv("FLARE_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("FLARE_PRIVATE_KEY"); v != "" {
		cfg.Chain.PrivateKey = v
	}
	if v := os.Getenv("FRAUD_REGISTRY_ADDRESS"); v != "" {
		cfg.Chain.RegistryAddress = v
	}

	return cfg
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                  KESTREL")
	fmt.Println("        Loan Fraud Assessment Engine")
	fmt.Println("       Every request, weighed in flight.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /fraud/evaluate      - Assess a loan request")
	fmt.Println("    GET  /assessments/{id}    - Get assessment by ID")
	fmt.Println("    GET  /rules               - List the rule table")
	fmt.Println("    POST /loans               - Record a loan")
	fmt.Println("    GET  /loans?borrower=0x.. - List loans by borrower")
	fmt.Println("    POST /loans/{id}/status   - Transition loan status")
	fmt.Println("    POST /identity/register   - Register a DID")
	fmt.Println("    GET  /identity/{wallet}   - Look up a DID")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
