package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/channel"
	"github.com/budgetwise/alert-pipeline/internal/directory"
	"github.com/budgetwise/alert-pipeline/internal/domain"
	"github.com/budgetwise/alert-pipeline/internal/queue"
	"github.com/budgetwise/alert-pipeline/internal/ratelimiter"
	"github.com/budgetwise/alert-pipeline/internal/store"
)

// Worker drains the work queue and runs each envelope through the delivery
// state machine: parse, resolve the subscription, configure the filter,
// publish, reconcile status.
//
// Workers are stateless; any number may run concurrently. Safety under
// lease-expiry double-processing comes from idempotence (filter configuration
// and publish are idempotent in effect, status writes overwrite), not from
// locking.
type Worker struct {
	id      int
	q       queue.WorkQueue
	store   store.NotificationStore
	dir     directory.RecipientDirectory
	ch      channel.DeliveryChannel
	limiter *ratelimiter.KindLimiters
	logger  *zap.Logger

	// Hooks for metrics — injected by the pool so the worker stays metrics-agnostic.
	onSent   func(kind domain.Kind, latency time.Duration)
	onFailed func(reason domain.Reason)
}

// FailureDetail is one per-envelope failure inside a batch result.
type FailureDetail struct {
	RecipientID string
	Reason      domain.Reason
}

// BatchResult reports the per-envelope outcome of one worker invocation.
type BatchResult struct {
	Processed int
	Failed    int
	Failures  []FailureDetail
}

// NewWorker constructs a worker. onSent and onFailed are optional (nil = no-op).
func NewWorker(
	id int,
	q queue.WorkQueue,
	st store.NotificationStore,
	dir directory.RecipientDirectory,
	ch channel.DeliveryChannel,
	limiter *ratelimiter.KindLimiters,
	logger *zap.Logger,
	onSent func(domain.Kind, time.Duration),
	onFailed func(domain.Reason),
) *Worker {
	if onSent == nil {
		onSent = func(domain.Kind, time.Duration) {}
	}
	if onFailed == nil {
		onFailed = func(domain.Reason) {}
	}
	return &Worker{
		id: id, q: q, store: st, dir: dir, ch: ch,
		limiter: limiter, logger: logger,
		onSent: onSent, onFailed: onFailed,
	}
}

// Run polls the queue until ctx is cancelled, processing one batch per
// iteration and sleeping pollInterval when the queue is empty.
func (w *Worker) Run(ctx context.Context, pollInterval time.Duration, batchSize int) {
	w.logger.Info("delivery worker started", zap.Int("id", w.id))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker stopping", zap.Int("id", w.id))
			return
		default:
		}

		deliveries, err := w.q.Receive(ctx, batchSize)
		if err != nil {
			w.logger.Error("queue receive failed", zap.Error(err))
			deliveries = nil
		}
		if len(deliveries) == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(pollInterval):
			}
			continue
		}

		w.ProcessBatch(ctx, deliveries)
	}
}

// ProcessBatch runs each delivery through the state machine independently and
// reports the per-envelope outcome. Envelopes are independent, so a failure
// in one never short-circuits the rest.
func (w *Worker) ProcessBatch(ctx context.Context, deliveries []queue.Delivery) BatchResult {
	var result BatchResult
	for _, d := range deliveries {
		if failure := w.process(ctx, d); failure != nil {
			result.Failed++
			result.Failures = append(result.Failures, *failure)
		} else {
			result.Processed++
		}
	}
	return result
}

// process runs one envelope through RECEIVED → FILTER_CONFIGURED → PUBLISHED
// → ACKED, or any step → FAILED. Non-retryable failures ack the queue message
// to avoid poison loops; transient ones release it for redelivery.
func (w *Worker) process(ctx context.Context, d queue.Delivery) *FailureDetail {
	start := time.Now()

	env, err := domain.ParseEnvelope(d.Body)
	if err != nil {
		// Poison message: ack so the queue never redelivers it. A body that
		// decoded far enough to carry a notification ID still gets its record
		// reconciled; only the no-ID case is log-only.
		reason := domain.ReasonMalformedPayload
		if env.NotificationID != "" {
			if uerr := w.store.UpdateStatus(ctx, env.NotificationID, domain.StatusFailed, &reason); uerr != nil {
				w.logger.Error("failed to record malformed envelope",
					zap.String("notification_id", env.NotificationID), zap.Error(uerr))
			}
		}
		w.logger.Warn("malformed envelope dropped",
			zap.Int("worker_id", w.id),
			zap.String("notification_id", env.NotificationID),
			zap.Error(err))
		w.ack(ctx, d)
		w.onFailed(reason)
		return &FailureDetail{RecipientID: env.RecipientID, Reason: reason}
	}

	log := w.logger.With(
		zap.String("notification_id", env.NotificationID),
		zap.String("recipient_id", env.RecipientID),
	)

	entry, err := w.dir.Resolve(ctx, env.RecipientEndpoint)
	if errors.Is(err, domain.ErrNotSubscribed) {
		return w.fail(ctx, d, env, domain.ReasonNotSubscribed, log)
	}
	if err != nil {
		// The directory is a store-backed mirror, so a transient lookup
		// failure is a store error. Retryable: leave the envelope for
		// redelivery.
		return w.fail(ctx, d, env, domain.ReasonStoreError, log.With(zap.Error(err)))
	}
	if entry.Confirmation == domain.ConfirmationPending {
		return w.fail(ctx, d, env, domain.ReasonNotConfirmed, log)
	}

	policy := channel.EndpointPolicy(env.RecipientEndpoint)
	if err := w.ch.SetFilterPolicy(ctx, entry.SubscriptionRef, policy); err != nil {
		return w.fail(ctx, d, env, domain.ReasonChannelError, log.With(zap.Error(err)))
	}

	if err := w.limiter.Wait(ctx, env.Kind); err != nil {
		// ctx cancelled while waiting — worker is shutting down. The lease
		// expiry will make the envelope visible again.
		return &FailureDetail{RecipientID: env.RecipientID, Reason: domain.ReasonChannelError}
	}

	err = w.ch.Publish(ctx, channel.Message{
		Subject: env.Subject,
		Body:    env.Body,
		Attributes: map[string]string{
			channel.AttributeRecipientEndpoint: env.RecipientEndpoint,
		},
	})
	if err != nil {
		return w.fail(ctx, d, env, domain.ReasonChannelError, log.With(zap.Error(err)))
	}

	if err := w.store.UpdateStatus(ctx, env.NotificationID, domain.StatusSent, nil); err != nil {
		// Published but not recorded. Ack anyway: a redelivery here would
		// duplicate the email, and duplicate delivery is preferred over
		// status writes racing with redelivery. Documented at-least-once
		// trade-off.
		log.Error("status update failed after successful publish", zap.Error(err))
	}
	w.ack(ctx, d)

	elapsed := time.Since(start)
	w.onSent(env.Kind, elapsed)
	log.Info("notification delivered",
		zap.String("status", string(domain.StatusSent)),
		zap.Duration("latency", elapsed))
	return nil
}

// fail records the terminal failed transition, settles the queue message
// according to the reason's retryability, and emits the terminal log line.
func (w *Worker) fail(ctx context.Context, d queue.Delivery, env domain.Envelope, reason domain.Reason, log *zap.Logger) *FailureDetail {
	r := reason
	if err := w.store.UpdateStatus(ctx, env.NotificationID, domain.StatusFailed, &r); err != nil {
		log.Error("failed to record failure", zap.String("reason", string(reason)), zap.Error(err))
	}

	if reason.Retryable() {
		if err := w.q.Release(ctx, d.Receipt); err != nil {
			log.Warn("release failed; lease expiry will redeliver", zap.Error(err))
		}
	} else {
		w.ack(ctx, d)
	}

	w.onFailed(reason)
	log.Warn("notification failed",
		zap.String("status", string(domain.StatusFailed)),
		zap.String("reason", string(reason)))
	return &FailureDetail{RecipientID: env.RecipientID, Reason: reason}
}

func (w *Worker) ack(ctx context.Context, d queue.Delivery) {
	if err := w.q.Ack(ctx, d.Receipt); err != nil {
		w.logger.Warn("ack failed; message may be redelivered", zap.Error(err))
	}
}
