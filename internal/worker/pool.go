package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/channel"
	"github.com/budgetwise/alert-pipeline/internal/config"
	"github.com/budgetwise/alert-pipeline/internal/directory"
	"github.com/budgetwise/alert-pipeline/internal/domain"
	"github.com/budgetwise/alert-pipeline/internal/queue"
	"github.com/budgetwise/alert-pipeline/internal/ratelimiter"
	"github.com/budgetwise/alert-pipeline/internal/store"
)

// MetricHooks carries the metric callback functions injected by main.
// Using a struct keeps the pool constructor signature clean.
type MetricHooks struct {
	OnSent   func(kind domain.Kind, latency time.Duration)
	OnFailed func(reason domain.Reason)
}

// Pool manages the lifecycle of all delivery workers. Workers share the same
// queue client; the queue's lease mechanism keeps them from double-processing
// a message inside the lease window.
type Pool struct {
	workers      []*Worker
	pollInterval time.Duration
	batchSize    int
	wg           sync.WaitGroup
}

// NewPool creates cfg.Workers identical workers.
func NewPool(
	cfg *config.Config,
	q queue.WorkQueue,
	st store.NotificationStore,
	dir directory.RecipientDirectory,
	ch channel.DeliveryChannel,
	limiter *ratelimiter.KindLimiters,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, cfg.Workers)
	for i := range workers {
		workers[i] = NewWorker(
			i, q, st, dir, ch, limiter,
			logger.With(zap.Int("worker_id", i)),
			hooks.OnSent,
			hooks.OnFailed,
		)
	}
	return &Pool{
		workers:      workers,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
	}
}

// Start launches all workers as goroutines. Cancelling ctx triggers a
// graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx, p.pollInterval, p.batchSize)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// Call this after cancelling the context so in-flight batches finish.
func (p *Pool) Wait() {
	p.wg.Wait()
}
