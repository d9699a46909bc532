package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/registry"
	"github.com/thingflow/thingflow/sources/internal/config"
	"github.com/thingflow/thingflow/sources/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", false, "run registry migrations and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("sources"))
	logging.SetDefault(logger)

	if *migrate {
		if err := registry.Migrate(cfg.Registry.MigrationsPath, cfg.Registry.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		slog.Info("Registry migrations applied")
		return
	}

	slog.Info("Starting sources service",
		slog.String("log_level", cfg.Logging.Level),
		slog.String("wiring_path", cfg.Wiring.Path),
	)

	wiring, err := config.LoadWiring(cfg.Wiring.Path)
	if err != nil {
		log.Fatalf("Failed to load event source wiring: %v", err)
	}

	// Initialize device registry
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Registry.ConnectTimeout)
	devices, err := registry.NewPostgresRegistry(ctx, cfg.Registry.URL)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to device registry: %v", err)
	}
	defer devices.Close()

	// Initialize dedup cache
	var cache *redis.Client
	if cfg.Redis.Enabled {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := cache.Ping(context.Background()).Err(); err != nil {
			log.Printf("WARNING: Redis unreachable, dedup falls back to store lookups: %v", err)
		}
		defer cache.Close()
	} else {
		log.Println("Redis disabled - dedup lookups go straight to the event store")
	}

	// Assemble tenant engines
	svc, err := service.New(cfg, wiring, devices, service.OpenSearchStores(cfg), cache, logger)
	if err != nil {
		log.Fatalf("Failed to assemble event sources: %v", err)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := svc.Start(startCtx); err != nil {
		startCancel()
		log.Fatalf("Failed to start event sources: %v", err)
	}
	startCancel()

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		log.Printf("Metrics listening on %s", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down event sources...")
	if err := svc.Stop(); err != nil {
		log.Printf("Shutdown finished with errors: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server forced to shutdown: %v", err)
	}

	log.Println("Sources service stopped")
}
