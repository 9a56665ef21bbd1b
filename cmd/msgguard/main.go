package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/msgguard/internal/audit"
	"github.com/raaihank/msgguard/internal/config"
	"github.com/raaihank/msgguard/internal/events"
	"github.com/raaihank/msgguard/internal/filter"
	"github.com/raaihank/msgguard/internal/logger"
	"github.com/raaihank/msgguard/internal/metrics"
	"github.com/raaihank/msgguard/internal/oracle"
	"github.com/raaihank/msgguard/internal/server"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	// Parse command line flags
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("msgguard %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	// Perform health check and exit
	if *healthCheck {
		performHealthCheck()
		return
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}

	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting msgguard",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
	)

	// Oracle client, optionally wrapped in the verdict cache
	oracleClient := buildOracleClient(cfg, log)

	// Event hub
	var hub *events.Hub
	if cfg.Events.Enabled {
		hub = events.NewHub(&events.HubConfig{
			BroadcastRuleFires:     cfg.Events.Broadcast.RuleFires,
			BroadcastCancellations: cfg.Events.Broadcast.Cancellations,
			BroadcastVerdicts:      cfg.Events.Broadcast.Verdicts,
			AllowedOrigins:         cfg.Events.AllowedOrigins,
		}, log.WithComponent("events").Logger)
	}

	// Filter engine. Rejected rules are already logged one by one; a fully
	// empty active set with configured rules deserves a loud note, since it
	// means every single rule was malformed.
	engine, ruleErrs := filter.New(cfg.Filter, log.WithComponent("filter"), filter.Options{
		Oracle:      oracleClient,
		Affirmative: cfg.Oracle.Affirmative,
		Metrics:     metrics.New(),
		Events:      hub,
	})
	if len(ruleErrs) > 0 && engine.ActiveRules() == 0 && len(cfg.Filter.Rules) > 0 {
		log.Error("All configured rules were rejected, filtering is a pass-through",
			zap.Int("rejected_rules", len(ruleErrs)),
		)
	}

	// Audit store
	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.NewStore(&audit.Config{
			DatabaseURL:     cfg.Audit.DatabaseURL,
			MaxOpenConns:    cfg.Audit.MaxOpenConns,
			MaxIdleConns:    cfg.Audit.MaxIdleConns,
			ConnMaxLifetime: cfg.Audit.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Audit.ConnMaxIdleTime,
		}, log.WithComponent("audit").Logger)
		if err != nil {
			log.Fatal("Failed to initialize audit store", zap.Error(err))
		}
		defer auditStore.Close()
	}

	// Rule hot-reload: a validated config change swaps the whole rule set
	// atomically; evaluations in flight keep their snapshot.
	if err := config.Watch(cfg, func(newCfg *config.Config) {
		engine.Reload(newCfg.Filter)
	}); err != nil {
		log.Error("Failed to watch configuration", zap.Error(err))
	}

	// Create HTTP server
	srv := server.New(cfg, log, engine, auditStore, hub)

	// Start server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	// Setup graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// buildOracleClient wires the HTTP oracle and, when enabled, the Redis
// verdict cache in front of it. A broken cache is a degradation, not a
// startup failure: judgment calls just go straight to the oracle.
func buildOracleClient(cfg *config.Config, log *logger.Logger) oracle.Client {
	if cfg.Oracle.Endpoint == "" {
		return nil
	}

	var client oracle.Client = oracle.NewHTTPClient(oracle.Config{
		Endpoint:       cfg.Oracle.Endpoint,
		Model:          cfg.Oracle.Model,
		APIKey:         cfg.Oracle.APIKey,
		PromptTemplate: cfg.Oracle.PromptTemplate,
		Timeout:        cfg.Oracle.Timeout,
		RequestsPerSec: cfg.Oracle.RequestsPerSec,
		Burst:          cfg.Oracle.Burst,
	}, log.WithComponent("oracle").Logger)

	if cfg.Cache.Enabled {
		cached, err := oracle.NewCachedClient(oracle.CacheConfig{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, client, log.WithComponent("cache").Logger)
		if err != nil {
			log.Error("Verdict cache unavailable, continuing without it", zap.Error(err))
		} else {
			client = cached
		}
	}

	return client
}

// performHealthCheck performs a health check against the running server
func performHealthCheck() {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
