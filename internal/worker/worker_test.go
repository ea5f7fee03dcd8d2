package worker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/channel"
	"github.com/budgetwise/alert-pipeline/internal/directory"
	"github.com/budgetwise/alert-pipeline/internal/domain"
	"github.com/budgetwise/alert-pipeline/internal/gate"
	"github.com/budgetwise/alert-pipeline/internal/queue"
	"github.com/budgetwise/alert-pipeline/internal/ratelimiter"
	"github.com/budgetwise/alert-pipeline/internal/store"
	"github.com/budgetwise/alert-pipeline/internal/worker"
)

type fixture struct {
	store *store.MockNotificationStore
	q     *queue.MemoryQueue
	dir   *directory.MockDirectory
	ch    *channel.MemoryChannel
	gate  *gate.EnqueueGate
	w     *worker.Worker
}

func newFixture() *fixture {
	f := &fixture{
		store: store.NewMockNotificationStore(),
		q:     queue.NewMemoryQueue(30 * time.Second),
		dir:   directory.NewMockDirectory(),
		ch:    channel.NewMemoryChannel(),
	}
	f.gate = gate.NewEnqueueGate(f.store, f.q, zap.NewNop())
	f.w = worker.NewWorker(0, f.q, f.store, f.dir, f.ch, ratelimiter.New(100), zap.NewNop(), nil, nil)
	return f
}

// confirmedSubscription registers endpoint on the channel and seeds the
// directory with a confirmed entry pointing at the channel subscription.
func (f *fixture) confirmedSubscription(endpoint string) string {
	ref := f.ch.Subscribe(endpoint)
	f.dir.Add(endpoint, ref, domain.ConfirmationConfirmed)
	return ref
}

func (f *fixture) drainOnce(t *testing.T, ctx context.Context) worker.BatchResult {
	t.Helper()
	ds, err := f.q.Receive(ctx, 10)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	return f.w.ProcessBatch(ctx, ds)
}

func TestWorker_RoundTripSent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	refA := f.confirmedSubscription("a@x.com")
	refB := f.confirmedSubscription("b@x.com")

	id, err := f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID:       "u1",
		RecipientEndpoint: "a@x.com",
		Kind:              domain.KindBudgetExceeded,
		Subject:           "S",
		Body:              "B",
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	res := f.drainOnce(t, ctx)
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("expected 1 processed, got %+v", res)
	}

	n, err := f.store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != domain.StatusSent {
		t.Fatalf("expected status=sent, got %s", n.Status)
	}

	inbox := f.ch.Inbox(refA)
	if len(inbox) != 1 {
		t.Fatalf("expected exactly 1 message at a@x.com, got %d", len(inbox))
	}
	if got := inbox[0].Attributes[channel.AttributeRecipientEndpoint]; got != "a@x.com" {
		t.Fatalf("expected endpoint attribute a@x.com, got %q", got)
	}
	if len(f.ch.Inbox(refB)) != 0 {
		t.Fatal("message must not cross-deliver to another confirmed subscriber")
	}
	if f.q.Depth() != 0 {
		t.Fatalf("expected acked message removed from queue, depth=%d", f.q.Depth())
	}
}

func TestWorker_PendingSubscriptionFailsNotConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	ref := f.ch.Subscribe("b@x.com")
	f.dir.Add("b@x.com", ref, domain.ConfirmationPending)

	id, _ := f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID:       "u2",
		RecipientEndpoint: "b@x.com",
		Kind:              domain.KindWeeklySummary,
		Subject:           "S",
		Body:              "B",
	})

	res := f.drainOnce(t, ctx)
	if res.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", res)
	}
	if res.Failures[0].Reason != domain.ReasonNotConfirmed {
		t.Fatalf("expected not_confirmed, got %s", res.Failures[0].Reason)
	}

	n, _ := f.store.GetByID(ctx, id)
	if n.Status != domain.StatusFailed || n.Reason == nil || *n.Reason != domain.ReasonNotConfirmed {
		t.Fatalf("expected failed/not_confirmed, got %s/%v", n.Status, n.Reason)
	}
	if len(f.ch.Inbox(ref)) != 0 {
		t.Fatal("channel must receive zero messages for a pending subscription")
	}
	// Non-retryable: the message must be acked away, not redelivered.
	f.q.ExpireLeases()
	if ds, _ := f.q.Receive(ctx, 10); len(ds) != 0 {
		t.Fatal("not_confirmed envelope must not be redelivered")
	}
}

func TestWorker_UnknownEndpointFailsNotSubscribed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	id, _ := f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID:       "u3",
		RecipientEndpoint: "nobody@x.com",
		Kind:              domain.KindLargeExpense,
		Subject:           "S",
		Body:              "B",
	})

	res := f.drainOnce(t, ctx)
	if res.Failed != 1 || res.Failures[0].Reason != domain.ReasonNotSubscribed {
		t.Fatalf("expected not_subscribed failure, got %+v", res)
	}

	n, _ := f.store.GetByID(ctx, id)
	if n.Status != domain.StatusFailed || *n.Reason != domain.ReasonNotSubscribed {
		t.Fatalf("expected failed/not_subscribed, got %s/%v", n.Status, n.Reason)
	}
	f.q.ExpireLeases()
	if ds, _ := f.q.Receive(ctx, 10); len(ds) != 0 {
		t.Fatal("not_subscribed envelope must not be redelivered")
	}
}

func TestWorker_MalformedPayloadDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_ = f.q.Push(ctx, []byte(`{"garbage": true`))

	res := f.drainOnce(t, ctx)
	if res.Failed != 1 || res.Failures[0].Reason != domain.ReasonMalformedPayload {
		t.Fatalf("expected malformed_payload failure, got %+v", res)
	}
	if f.store.CreateCount() != 0 {
		t.Fatal("poison message must not create a record")
	}
	if f.store.StatusWriteCount() != 0 {
		t.Fatal("a body with no usable ID has no record to reconcile")
	}
	f.q.ExpireLeases()
	if ds, _ := f.q.Receive(ctx, 10); len(ds) != 0 {
		t.Fatal("poison message must be deleted, not redelivered")
	}
}

func TestWorker_MalformedEnvelopeWithIDMarksRecordFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// A queued record whose envelope arrives corrupted: valid JSON, usable
	// notification ID, but a kind the pipeline does not recognize.
	now := time.Now().UTC()
	_ = f.store.Create(ctx, &domain.Notification{
		ID:                "n-1",
		RecipientID:       "u1",
		RecipientEndpoint: "a@x.com",
		Kind:              domain.KindBudgetExceeded,
		Subject:           "S",
		Body:              "B",
		Status:            domain.StatusQueued,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	_ = f.q.Push(ctx, []byte(`{"notificationId":"n-1","recipientId":"u1","recipientEndpoint":"a@x.com","kind":"carrier_pigeon","subject":"S","body":"B","timestamp":"2026-08-28T00:00:00Z"}`))

	res := f.drainOnce(t, ctx)
	if res.Failed != 1 || res.Failures[0].Reason != domain.ReasonMalformedPayload {
		t.Fatalf("expected malformed_payload failure, got %+v", res)
	}

	// The record must not stay queued forever.
	n, err := f.store.GetByID(ctx, "n-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n.Status != domain.StatusFailed || n.Reason == nil || *n.Reason != domain.ReasonMalformedPayload {
		t.Fatalf("expected failed/malformed_payload, got %s/%v", n.Status, n.Reason)
	}

	f.q.ExpireLeases()
	if ds, _ := f.q.Receive(ctx, 10); len(ds) != 0 {
		t.Fatal("poison message must be deleted, not redelivered")
	}
}

func TestWorker_TransientDirectoryErrorRedelivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.confirmedSubscription("a@x.com")
	f.dir.ResolveErr = errors.New("directory timeout")

	id, _ := f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID:       "u1",
		RecipientEndpoint: "a@x.com",
		Kind:              domain.KindBudgetThreshold,
		Subject:           "S",
		Body:              "B",
	})

	res := f.drainOnce(t, ctx)
	if res.Failed != 1 || res.Failures[0].Reason != domain.ReasonStoreError {
		t.Fatalf("expected transient store_error, got %+v", res)
	}

	n, _ := f.store.GetByID(ctx, id)
	if n.Status != domain.StatusFailed || n.Reason == nil || *n.Reason != domain.ReasonStoreError {
		t.Fatalf("transient failure should be recorded as failed/store_error, got %s/%v", n.Status, n.Reason)
	}

	// The release made it visible again; a second invocation succeeds.
	res = f.drainOnce(t, ctx)
	if res.Processed != 1 {
		t.Fatalf("expected redelivery to succeed, got %+v", res)
	}

	n, _ = f.store.GetByID(ctx, id)
	if n.Status != domain.StatusSent {
		t.Fatalf("expected final status sent, got %s", n.Status)
	}
	if f.store.CreateCount() != 1 {
		t.Fatalf("redelivery must not create a second record, creates=%d", f.store.CreateCount())
	}
}

func TestWorker_PublishFailureRedelivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	ref := f.confirmedSubscription("a@x.com")
	f.ch.PublishErr = errors.New("channel unavailable")

	id, _ := f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID:       "u1",
		RecipientEndpoint: "a@x.com",
		Kind:              domain.KindMonthlySummary,
		Subject:           "S",
		Body:              "B",
	})

	res := f.drainOnce(t, ctx)
	if res.Failed != 1 || res.Failures[0].Reason != domain.ReasonChannelError {
		t.Fatalf("expected channel_error, got %+v", res)
	}

	f.ch.PublishErr = nil
	res = f.drainOnce(t, ctx)
	if res.Processed != 1 {
		t.Fatalf("expected retry to succeed, got %+v", res)
	}

	n, _ := f.store.GetByID(ctx, id)
	if n.Status != domain.StatusSent {
		t.Fatalf("expected sent after retry, got %s", n.Status)
	}
	if len(f.ch.Inbox(ref)) != 1 {
		t.Fatalf("expected exactly 1 delivered message, got %d", len(f.ch.Inbox(ref)))
	}
}

func TestWorker_DuplicateProcessingIsSafe(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	refA := f.confirmedSubscription("a@x.com")
	refB := f.confirmedSubscription("b@x.com")

	_, _ = f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID:       "u1",
		RecipientEndpoint: "a@x.com",
		Kind:              domain.KindBudgetExceeded,
		Subject:           "S",
		Body:              "B",
	})

	// A slow first worker and a post-lease-expiry second worker both process
	// the same envelope.
	ds1, _ := f.q.Receive(ctx, 1)
	f.q.ExpireLeases()
	ds2, _ := f.q.Receive(ctx, 1)
	if len(ds1) != 1 || len(ds2) != 1 {
		t.Fatalf("expected both receives to see the envelope, got %d and %d", len(ds1), len(ds2))
	}

	f.w.ProcessBatch(ctx, ds1)
	f.w.ProcessBatch(ctx, ds2)

	if f.store.CreateCount() != 1 {
		t.Fatalf("duplicate processing must not create a second record, creates=%d", f.store.CreateCount())
	}
	if len(f.ch.Inbox(refB)) != 0 {
		t.Fatal("duplicate processing must never deliver to an unintended recipient")
	}
	// Duplicate delivery to the intended recipient is the documented
	// at-least-once trade-off.
	if got := len(f.ch.Inbox(refA)); got == 0 {
		t.Fatal("intended recipient received nothing")
	}
}

func TestWorker_StoreFailureAfterPublishStillAcks(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.confirmedSubscription("a@x.com")

	_, _ = f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID:       "u1",
		RecipientEndpoint: "a@x.com",
		Kind:              domain.KindSubscriptionWelcome,
		Subject:           "S",
		Body:              "B",
	})

	f.store.UpdateStatusErr = errors.New("db down")
	res := f.drainOnce(t, ctx)
	if res.Processed != 1 {
		t.Fatalf("publish succeeded; envelope counts as processed, got %+v", res)
	}

	// Duplicate email is preferred over status writes racing with redelivery.
	f.q.ExpireLeases()
	if ds, _ := f.q.Receive(ctx, 10); len(ds) != 0 {
		t.Fatal("envelope must be acked even when the status write fails after publish")
	}
}

func TestWorker_BatchReportsPerEnvelopeOutcome(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.confirmedSubscription("a@x.com")

	_, _ = f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID: "u1", RecipientEndpoint: "a@x.com",
		Kind: domain.KindBudgetExceeded, Subject: "S", Body: "B",
	})
	_, _ = f.gate.Enqueue(ctx, domain.EnqueueRequest{
		RecipientID: "u2", RecipientEndpoint: "stranger@x.com",
		Kind: domain.KindBudgetExceeded, Subject: "S", Body: "B",
	})
	_ = f.q.Push(ctx, []byte("not json"))

	res := f.drainOnce(t, ctx)
	if res.Processed != 1 || res.Failed != 2 {
		t.Fatalf("expected 1 processed / 2 failed, got %+v", res)
	}

	reasons := map[domain.Reason]bool{}
	for _, failure := range res.Failures {
		reasons[failure.Reason] = true
	}
	if !reasons[domain.ReasonNotSubscribed] || !reasons[domain.ReasonMalformedPayload] {
		t.Fatalf("expected not_subscribed and malformed_payload failures, got %+v", res.Failures)
	}
}
