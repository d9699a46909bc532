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

	"github.com/thingflow/thingflow/common/logging"
	"github.com/thingflow/thingflow/common/registry"
	"github.com/thingflow/thingflow/processor/internal/config"
	"github.com/thingflow/thingflow/processor/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
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
	).With(logging.Service("processor"))
	logging.SetDefault(logger)

	slog.Info("Starting processor service",
		slog.Any("tenants", cfg.Processing.Tenants),
		slog.Int("pool_width", cfg.Processing.PoolWidth),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize device registry
	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Registry.ConnectTimeout)
	devices, err := registry.NewPostgresRegistry(connectCtx, cfg.Registry.URL)
	connectCancel()
	if err != nil {
		log.Fatalf("Failed to connect to device registry: %v", err)
	}
	defer devices.Close()

	// Assemble tenant engines
	svc, err := service.New(cfg, devices, logger)
	if err != nil {
		log.Fatalf("Failed to assemble processing engines: %v", err)
	}

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

	// Run until signalled, then drain
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Println("Shutting down, draining in-flight batches...")
		cancel()
		if err := <-done; err != nil {
			log.Printf("Shutdown finished with errors: %v", err)
		}
	case err := <-done:
		cancel()
		if err != nil {
			log.Fatalf("Processing failed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Metrics server forced to shutdown: %v", err)
	}

	log.Println("Processor service stopped")
}
