package queue

import "context"

// Delivery is one received message plus the opaque receipt needed to settle it.
type Delivery struct {
	Body    []byte
	Receipt string
}

// WorkQueue is the durable, at-least-once buffer decoupling the producer from
// the delivery workers.
//
// Semantics the implementations must honor:
//   - A received delivery is hidden from other consumers for a bounded lease
//     window. If it is neither acked nor released within the window it becomes
//     visible again for redelivery.
//   - Ack permanently removes the message.
//   - Release makes the message visible again immediately (used for
//     transient-retryable failures instead of waiting out the lease).
//   - No cross-message ordering guarantee.
type WorkQueue interface {
	Push(ctx context.Context, body []byte) error
	// Receive returns up to max currently-visible deliveries without blocking.
	// An empty slice means the queue has nothing visible right now.
	Receive(ctx context.Context, max int) ([]Delivery, error)
	Ack(ctx context.Context, receipt string) error
	Release(ctx context.Context, receipt string) error
}
