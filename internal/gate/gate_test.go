package gate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/domain"
	"github.com/budgetwise/alert-pipeline/internal/gate"
	"github.com/budgetwise/alert-pipeline/internal/queue"
	"github.com/budgetwise/alert-pipeline/internal/store"
)

var validReq = domain.EnqueueRequest{
	RecipientID:       "u1",
	RecipientEndpoint: "a@x.com",
	Kind:              domain.KindBudgetExceeded,
	Subject:           "Budget exceeded",
	Body:              "You are over budget.",
}

func newGate() (*gate.EnqueueGate, *store.MockNotificationStore, *queue.MemoryQueue) {
	st := store.NewMockNotificationStore()
	q := queue.NewMemoryQueue(30 * time.Second)
	g := gate.NewEnqueueGate(st, q, zap.NewNop())
	return g, st, q
}

func TestEnqueue_CreatesQueuedRecordAndPushes(t *testing.T) {
	g, st, q := newGate()
	ctx := context.Background()

	id, err := g.Enqueue(ctx, validReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty notification id")
	}

	n, err := st.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("record not found: %v", err)
	}
	if n.Status != domain.StatusQueued {
		t.Fatalf("expected status=queued, got %s", n.Status)
	}
	if q.Depth() != 1 {
		t.Fatalf("expected 1 queued envelope, got %d", q.Depth())
	}

	ds, _ := q.Receive(ctx, 1)
	env, err := domain.ParseEnvelope(ds[0].Body)
	if err != nil {
		t.Fatalf("envelope should parse: %v", err)
	}
	if env.NotificationID != id || env.RecipientEndpoint != "a@x.com" {
		t.Fatalf("envelope mismatch: %+v", env)
	}
}

func TestEnqueue_InvalidRequest(t *testing.T) {
	g, st, q := newGate()

	bad := validReq
	bad.RecipientEndpoint = ""
	_, err := g.Enqueue(context.Background(), bad)
	if err != domain.ErrInvalidRecipient {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if st.CreateCount() != 0 {
		t.Fatal("invalid request must not create a record")
	}
	if q.Depth() != 0 {
		t.Fatal("invalid request must not push an envelope")
	}
}

func TestEnqueue_QueuePushFailureMarksFailed(t *testing.T) {
	g, st, q := newGate()
	q.PushErr = errors.New("broker unavailable")
	ctx := context.Background()

	id, err := g.Enqueue(ctx, validReq)
	if err == nil {
		t.Fatal("expected an error when the queue push fails")
	}
	if id == "" {
		t.Fatal("expected the record id even on push failure")
	}

	n, err := st.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("record should exist despite push failure: %v", err)
	}
	if n.Status != domain.StatusFailed {
		t.Fatalf("expected status=failed, got %s", n.Status)
	}
	if n.Reason == nil || *n.Reason != domain.ReasonQueueError {
		t.Fatalf("expected reason=queue_error, got %v", n.Reason)
	}
}

func TestEnqueue_StoreCreateFailure(t *testing.T) {
	g, st, q := newGate()
	st.CreateErr = errors.New("db down")

	_, err := g.Enqueue(context.Background(), validReq)
	if err == nil {
		t.Fatal("expected an error when the store create fails")
	}
	if q.Depth() != 0 {
		t.Fatal("store failure must prevent the queue push")
	}
}
