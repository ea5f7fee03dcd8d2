package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/channel"
	"github.com/budgetwise/alert-pipeline/internal/config"
	"github.com/budgetwise/alert-pipeline/internal/db"
	"github.com/budgetwise/alert-pipeline/internal/directory"
	"github.com/budgetwise/alert-pipeline/internal/metrics"
	"github.com/budgetwise/alert-pipeline/internal/queue"
	"github.com/budgetwise/alert-pipeline/internal/ratelimiter"
	"github.com/budgetwise/alert-pipeline/internal/store"
	"github.com/budgetwise/alert-pipeline/internal/worker"
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

	deliveryCh, err := channel.NewAmqpChannel(amqpCh, cfg.ExchangeName)
	if err != nil {
		logger.Fatal("failed to declare delivery exchange", zap.Error(err))
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	st := store.NewPgNotificationStore(pool)

	var dir directory.RecipientDirectory = directory.NewPgDirectory(pool)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		dir = directory.NewCachedDirectory(dir, rdb, cfg.DirectoryCacheTTL, logger)
		logger.Info("subscription cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	limiter := ratelimiter.New(cfg.RateLimit)

	// ---- worker pool ----
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	onSent, onFailed := m.WorkerHooks()
	pool2 := worker.NewPool(cfg, workQueue, st, dir, deliveryCh, limiter, logger, worker.MetricHooks{
		OnSent:   onSent,
		OnFailed: onFailed,
	})
	pool2.Start(workerCtx)
	logger.Info("worker pool started", zap.Int("workers", cfg.Workers))

	// Feed the queue depth gauge from the broker on the same cadence the
	// workers poll at.
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				depth, err := workQueue.Depth()
				if err != nil {
					logger.Warn("queue depth probe failed", zap.Error(err))
					continue
				}
				m.QueueDepth.Set(float64(depth))
			}
		}
	}()

	// ---- ops endpoints (health + metrics scrape) ----
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ops server error", zap.Error(err))
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
		logger.Error("ops server shutdown error", zap.Error(err))
	}

	// Signal workers to stop, then wait for in-flight batches to finish.
	cancelWorkers()
	pool2.Wait()

	logger.Info("worker stopped cleanly")
}
