package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// MemoryQueue is an in-process WorkQueue with lease semantics, used in tests
// and local development. Receive hides a message for the visibility window;
// an unacked message reappears once the window elapses, which is how tests
// simulate lease-expiry redelivery deterministically.
type MemoryQueue struct {
	mu         sync.Mutex
	messages   []*memoryMessage
	visibility time.Duration
	now        func() time.Time

	// PushErr, when set, makes Push fail — used to exercise the gate's
	// queue-failure path.
	PushErr error
}

type memoryMessage struct {
	body      []byte
	receipt   string
	visibleAt time.Time
}

func NewMemoryQueue(visibility time.Duration) *MemoryQueue {
	return &MemoryQueue{visibility: visibility, now: time.Now}
}

func (q *MemoryQueue) Push(_ context.Context, body []byte) error {
	if q.PushErr != nil {
		return q.PushErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	b := make([]byte, len(body))
	copy(b, body)
	q.messages = append(q.messages, &memoryMessage{
		body:      b,
		receipt:   uuid.New().String(),
		visibleAt: q.now(),
	})
	return nil
}

func (q *MemoryQueue) Receive(_ context.Context, max int) ([]Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()

	var out []Delivery
	for _, m := range q.messages {
		if len(out) >= max {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		m.visibleAt = now.Add(q.visibility)
		out = append(out, Delivery{Body: m.body, Receipt: m.receipt})
	}
	return out, nil
}

func (q *MemoryQueue) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.receipt == receipt {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (q *MemoryQueue) Release(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.messages {
		if m.receipt == receipt {
			m.visibleAt = q.now()
			return nil
		}
	}
	return domain.ErrNotFound
}

// Depth reports how many messages remain on the queue, leased or not.
func (q *MemoryQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// ExpireLeases makes every outstanding message visible immediately.
// Test hook simulating a lease window elapsing without an ack.
func (q *MemoryQueue) ExpireLeases() {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for _, m := range q.messages {
		m.visibleAt = now
	}
}

var _ WorkQueue = (*MemoryQueue)(nil)
