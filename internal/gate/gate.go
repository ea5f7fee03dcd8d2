package gate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/domain"
	"github.com/budgetwise/alert-pipeline/internal/queue"
	"github.com/budgetwise/alert-pipeline/internal/store"
)

// EnqueueGate accepts alert requests from the producing application, persists
// a queued record, and hands the envelope to the work queue.
//
// The store write happens before the queue push so every enqueue attempt is
// observable even if queuing fails. The caller blocks only for enqueue
// acknowledgment, never for delivery.
type EnqueueGate struct {
	store  store.NotificationStore
	q      queue.WorkQueue
	logger *zap.Logger
}

func NewEnqueueGate(store store.NotificationStore, q queue.WorkQueue, logger *zap.Logger) *EnqueueGate {
	return &EnqueueGate{store: store, q: q, logger: logger}
}

// Enqueue validates the request, creates the notification record, and pushes
// the envelope. The returned ID identifies the record in the store regardless
// of what happens downstream.
//
// A queue push failure marks the record failed and returns the error; there
// is no automatic retry at this layer. The record was already created, so the
// failure is visible through the history query.
func (g *EnqueueGate) Enqueue(ctx context.Context, req domain.EnqueueRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	n := &domain.Notification{
		ID:                uuid.New().String(),
		RecipientID:       req.RecipientID,
		RecipientEndpoint: req.RecipientEndpoint,
		Kind:              req.Kind,
		Subject:           req.Subject,
		Body:              req.Body,
		Status:            domain.StatusQueued,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := g.store.Create(ctx, n); err != nil {
		return "", fmt.Errorf("persist notification: %w", err)
	}

	envelope := domain.Envelope{
		NotificationID:    n.ID,
		RecipientID:       n.RecipientID,
		RecipientEndpoint: n.RecipientEndpoint,
		Kind:              n.Kind,
		Subject:           n.Subject,
		Body:              n.Body,
		Timestamp:         now,
	}
	body, err := envelope.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	if err := g.q.Push(ctx, body); err != nil {
		reason := domain.ReasonQueueError
		if uerr := g.store.UpdateStatus(ctx, n.ID, domain.StatusFailed, &reason); uerr != nil {
			g.logger.Error("failed to mark notification failed after queue push error",
				zap.String("notification_id", n.ID), zap.Error(uerr))
		}
		g.logger.Warn("queue push failed",
			zap.String("notification_id", n.ID),
			zap.String("recipient_id", n.RecipientID),
			zap.Error(err))
		return n.ID, fmt.Errorf("push envelope: %w", err)
	}

	return n.ID, nil
}
