package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todo-api/internal/config"
	"todo-api/internal/controller"
	"todo-api/internal/database"
	"todo-api/internal/idempotency"
	"todo-api/internal/queue"
	"todo-api/internal/routes"
	"todo-api/internal/service"
	"todo-api/pkg/logger"
)

func main() {
	ctx := context.Background()
	if err := config.LoadEnvFile(".env"); err != nil {
		logger.Warn(ctx, "Could not read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error(ctx, "Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.SetDefault(logger.New(os.Stdout, cfg.LogLevel))

	// The store is required; everything else degrades.
	gw, err := database.Open(ctx, database.Options{
		Driver:         cfg.DBDriver,
		DSN:            cfg.DSN(),
		PoolSize:       cfg.DBPoolSize,
		AcquireTimeout: cfg.DBAcquireTimeout,
	})
	if err != nil {
		logger.Error(ctx, "Failed to connect to database. Please check your configuration.", "error", err)
		os.Exit(1)
	}
	if err := gw.Migrate(ctx); err != nil {
		logger.Error(ctx, "Schema migration failed", "error", err)
		os.Exit(1)
	}

	var opts []service.Option
	var redisStore *idempotency.RedisStore
	if cfg.RedisURL != "" {
		redisStore, err = idempotency.NewRedisStore(ctx, cfg)
		if err != nil {
			logger.Warn(ctx, "Redis unavailable; Idempotency-Key is ignored", "error", err)
			redisStore = nil
		} else {
			opts = append(opts, service.WithIdempotency(redisStore))
		}
	}

	queue.EnsureTopic(ctx, cfg)
	publisher := queue.NewPublisher(ctx, cfg)
	opts = append(opts, service.WithPublisher(publisher))

	h := controller.New(service.New(gw, opts...), cfg.IsDevelopment())
	h.AddProbe("database", gw)
	if redisStore != nil {
		h.AddProbe("redis", redisStore)
	}

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      routes.Router(h, cfg),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		logger.Info(ctx, "Todo API Server is running", "port", cfg.HTTPPort, "env", cfg.AppEnv)
		logger.Infof(ctx, "API URL: http://localhost:%s/api", cfg.HTTPPort)
		logger.Infof(ctx, "Health check: http://localhost:%s/api/health", cfg.HTTPPort)
		logger.Infof(ctx, "CORS origin: %s", cfg.FrontendURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Server shutdown error", "error", err)
	}

	if err := publisher.Close(); err != nil {
		logger.Warn(ctx, "Kafka writer close failed", "error", err)
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Warn(ctx, "Redis close failed", "error", err)
		}
	}
	if err := gw.Close(); err != nil {
		logger.Warn(ctx, "Database close failed", "error", err)
	}
	logger.Info(ctx, "Server stopped")
}
