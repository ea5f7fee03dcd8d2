package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/api"
	"github.com/budgetwise/alert-pipeline/internal/config"
	"github.com/budgetwise/alert-pipeline/internal/db"
	"github.com/budgetwise/alert-pipeline/internal/directory"
	"github.com/budgetwise/alert-pipeline/internal/gate"
	"github.com/budgetwise/alert-pipeline/internal/queue"
	"github.com/budgetwise/alert-pipeline/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- broker ----
	conn, err := amqp.Dial(cfg.AmqpURL)
	if err != nil {
		logger.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer conn.Close()

	amqpCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("failed to open broker channel", zap.Error(err))
	}
	defer amqpCh.Close()

	workQueue, err := queue.NewAmqpQueue(amqpCh, cfg.QueueName)
	if err != nil {
		logger.Fatal("failed to declare work queue", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	st := store.NewPgNotificationStore(pool)

	var dir directory.RecipientDirectory = directory.NewPgDirectory(pool)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		dir = directory.NewCachedDirectory(dir, rdb, cfg.DirectoryCacheTTL, logger)
		logger.Info("subscription cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	g := gate.NewEnqueueGate(st, workQueue, logger)

	// ---- HTTP server ----
	router := api.NewRouter(g, st, dir, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("api server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("api server stopped cleanly")
}
