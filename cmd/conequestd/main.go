// cmd/conequestd/main.go
// Package main implements the entry point for the conequest service.
// It initializes all components, seeds the target catalog, and starts the
// HTTP server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conequest/conequest-go/internal/catalog"
	"github.com/conequest/conequest-go/internal/config"
	"github.com/conequest/conequest-go/internal/event"
	"github.com/conequest/conequest-go/internal/jwks"
	"github.com/conequest/conequest-go/internal/location"
	"github.com/conequest/conequest-go/internal/server"
	"github.com/conequest/conequest-go/internal/storage"
	"github.com/conequest/conequest-go/internal/telemetry"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging for the application
	logLevel := slog.LevelInfo
	if cfg.Env == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	_, err = telemetry.InitTracer()
	if err != nil {
		logger.Error("failed to initialize OpenTelemetry tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.ShutdownTracer(ctx)
	}()

	// Initialize storage backend (PostgreSQL or in-memory)
	var backend storage.Store
	if cfg.DatabaseDSN != "" {
		backend, err = storage.NewPostgres(cfg.DatabaseDSN)
		if err != nil {
			logger.Error("failed to initialize postgres storage", "error", err)
			os.Exit(1)
		}
	} else {
		backend = storage.NewMemory()
	}
	store := storage.WithMetrics(backend)

	// Seed the target catalog from the bucket or a local file
	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := seedCatalog(startCtx, cfg, store, logger); err != nil {
		logger.Error("catalog seed failed", "error", err)
		os.Exit(1)
	}

	// Initialize event publisher (NATS JetStream or no-op)
	pub := event.NewPublisherFromEnv()
	defer pub.Close()

	// JWKS discovery against the identity provider
	jwksClient := jwks.NewClient(
		fmt.Sprintf("%s/.well-known/jwks.json", cfg.JWTIssuer),
		cfg.JWTIssuer,
		cfg.JWTAudience,
	)

	// Last-known location tracking. No external position source is wired in
	// this deployment; samples arrive with check-in requests.
	tracker := location.NewTracker(nil, time.Duration(cfg.LocationRefreshSeconds)*time.Second)

	// Create HTTP mux with all handlers and middleware
	mux := server.NewMux(store, pub, jwksClient, tracker, server.Options{
		MaxAccuracyMeters:  cfg.MaxAccuracyMeters,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	// Create HTTP server with timeout configuration
	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start server in a separate goroutine
	go func() {
		logger.Info("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Handle graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}

	// Close PostgreSQL storage if used
	if postgresStore, ok := backend.(interface{ Close() }); ok {
		postgresStore.Close()
	}

	logger.Info("server exited")
}

// seedCatalog loads the target catalog and upserts it into the store. A
// missing local catalog file is not fatal: the store starts empty and can be
// populated by a later deploy.
func seedCatalog(ctx context.Context, cfg config.Config, store storage.Store, logger *slog.Logger) error {
	var src catalog.Source
	if cfg.UseS3Catalog() {
		s3src, err := catalog.NewS3Source(ctx, cfg.S3Endpoint, cfg.S3Region, cfg.S3Bucket, cfg.CatalogKey, cfg.S3AccessKey, cfg.S3SecretKey)
		if err != nil {
			return err
		}
		src = s3src
	} else {
		if _, err := os.Stat(cfg.CatalogPath); err != nil {
			logger.Warn("no catalog file found, starting with an empty target set", "path", cfg.CatalogPath)
			return nil
		}
		src = catalog.FileSource{Path: cfg.CatalogPath}
	}

	loader, err := catalog.NewLoader(src)
	if err != nil {
		return err
	}
	targets, err := loader.Load(ctx)
	if err != nil {
		return err
	}
	n, err := catalog.Seed(ctx, store, targets)
	if err != nil {
		return err
	}
	logger.Info("catalog seeded", "targets", n)
	return nil
}
