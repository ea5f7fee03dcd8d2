package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// MockNotificationStore is a hand-written, in-memory implementation of
// NotificationStore used in unit tests. No mock-generation library needed.
type MockNotificationStore struct {
	mu            sync.RWMutex
	notifications map[string]*domain.Notification
	creates       int
	statusWrites  int

	// Optional error overrides — set in tests to simulate failure paths.
	CreateErr       error
	UpdateStatusErr error
}

func NewMockNotificationStore() *MockNotificationStore {
	return &MockNotificationStore{
		notifications: make(map[string]*domain.Notification),
	}
}

func (m *MockNotificationStore) Create(_ context.Context, n *domain.Notification) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *n
	m.notifications[n.ID] = &clone
	m.creates++
	return nil
}

func (m *MockNotificationStore) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *n
	return &clone, nil
}

func (m *MockNotificationStore) UpdateStatus(_ context.Context, id string, status domain.Status, reason *domain.Reason) error {
	if m.UpdateStatusErr != nil {
		return m.UpdateStatusErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = status
	n.Reason = reason
	n.UpdatedAt = time.Now().UTC()
	m.statusWrites++
	return nil
}

func (m *MockNotificationStore) ListByRecipient(_ context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Notification
	for _, n := range m.notifications {
		if n.RecipientID == recipientID {
			clone := *n
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CreateCount reports how many Create calls succeeded — used by tests to
// assert that redelivery never produces a second record.
func (m *MockNotificationStore) CreateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creates
}

// StatusWriteCount reports how many UpdateStatus calls succeeded.
func (m *MockNotificationStore) StatusWriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusWrites
}
