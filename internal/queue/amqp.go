package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// AmqpQueue implements WorkQueue on a durable RabbitMQ queue with manual
// acknowledgement. An unacked delivery is redelivered by the broker when the
// consumer channel drops, which plays the role of the lease window; Release
// maps to a nack-with-requeue for immediate redelivery.
type AmqpQueue struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	name     string
	receipts map[string]uint64 // receipt -> delivery tag
}

// NewAmqpQueue declares the durable work queue and returns the client.
func NewAmqpQueue(ch *amqp.Channel, name string) (*AmqpQueue, error) {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AmqpQueue{ch: ch, name: name, receipts: make(map[string]uint64)}, nil
}

// Depth reports the number of messages ready on the broker queue. Messages
// held by an open lease are not counted; the broker only reports ready ones.
func (q *AmqpQueue) Depth() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, err := q.ch.QueueInspect(q.name)
	if err != nil {
		return 0, fmt.Errorf("inspect queue: %w", err)
	}
	return st.Messages, nil
}

func (q *AmqpQueue) Push(ctx context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	err := q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to queue: %w", err)
	}
	return nil
}

func (q *AmqpQueue) Receive(_ context.Context, max int) ([]Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Delivery
	for len(out) < max {
		d, ok, err := q.ch.Get(q.name, false)
		if err != nil {
			return out, fmt.Errorf("get from queue: %w", err)
		}
		if !ok {
			break
		}
		receipt := uuid.New().String()
		q.receipts[receipt] = d.DeliveryTag
		out = append(out, Delivery{Body: d.Body, Receipt: receipt})
	}
	return out, nil
}

func (q *AmqpQueue) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	tag, ok := q.receipts[receipt]
	if !ok {
		return domain.ErrNotFound
	}
	delete(q.receipts, receipt)
	if err := q.ch.Ack(tag, false); err != nil {
		return fmt.Errorf("ack delivery: %w", err)
	}
	return nil
}

func (q *AmqpQueue) Release(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	tag, ok := q.receipts[receipt]
	if !ok {
		return domain.ErrNotFound
	}
	delete(q.receipts, receipt)
	if err := q.ch.Nack(tag, false, true); err != nil {
		return fmt.Errorf("release delivery: %w", err)
	}
	return nil
}

var _ WorkQueue = (*AmqpQueue)(nil)
