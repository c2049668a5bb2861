package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patchshare-backend/infrastructure/config"
	"patchshare-backend/infrastructure/di"
	"patchshare-backend/infrastructure/persistence/dynamodb"

	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	defer container.Shutdown()

	// Against DynamoDB Local the table won't exist yet.
	if cfg.IsDevelopment() {
		if err := dynamodb.EnsureTable(ctx, container.DynamoDB, cfg.DynamoDBTable, cfg.IndexName, cfg.GSI2IndexName, container.Logger); err != nil {
			container.Logger.Fatal("Failed to ensure table", zap.Error(err))
		}
	}

	handler := container.Router.Setup()

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Preload the hot cache shapes so the first requests after boot
	// don't all fall through to DynamoDB.
	go func() {
		warmupCtx, warmupCancel := context.WithTimeout(ctx, 30*time.Second)
		defer warmupCancel()
		container.PatchCache.Warmup(warmupCtx)
	}()

	if cfg.EnableMetrics {
		go publishCacheMetrics(ctx, container)
	}

	go func() {
		container.Logger.Info("Starting server",
			zap.String("address", cfg.ServerAddress),
			zap.String("environment", cfg.Environment),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	container.Logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("Server shutdown error", zap.Error(err))
	}

	log.Println("Server stopped")
}

// publishCacheMetrics ships cache hit-rate and occupancy numbers to
// CloudWatch once a minute until the process shuts down.
func publishCacheMetrics(ctx context.Context, container *di.Container) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			container.PatchCache.PublishMetrics(ctx)
		}
	}
}
