package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// MockDirectory is an in-memory RecipientDirectory for unit tests.
type MockDirectory struct {
	mu      sync.RWMutex
	entries map[string]*domain.SubscriptionEntry

	// ResolveErr, when set, is returned by Resolve once and then cleared —
	// convenient for simulating a transient lookup failure followed by a
	// successful redelivery.
	ResolveErr error
}

func NewMockDirectory() *MockDirectory {
	return &MockDirectory{entries: make(map[string]*domain.SubscriptionEntry)}
}

// Add seeds an entry with the given confirmation state and returns its ref.
func (m *MockDirectory) Add(endpoint, ref string, state domain.ConfirmationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.entries[endpoint] = &domain.SubscriptionEntry{
		RecipientEndpoint: endpoint,
		SubscriptionRef:   ref,
		Confirmation:      state,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (m *MockDirectory) Resolve(_ context.Context, endpoint string) (*domain.SubscriptionEntry, error) {
	m.mu.Lock()
	if err := m.ResolveErr; err != nil {
		m.ResolveErr = nil
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[endpoint]
	if !ok {
		return nil, domain.ErrNotSubscribed
	}
	clone := *e
	return &clone, nil
}

func (m *MockDirectory) Subscribe(_ context.Context, endpoint string) (*domain.SubscriptionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[endpoint]; ok {
		clone := *e
		return &clone, nil
	}
	now := time.Now().UTC()
	e := &domain.SubscriptionEntry{
		RecipientEndpoint: endpoint,
		SubscriptionRef:   "sub-" + uuid.New().String(),
		Confirmation:      domain.ConfirmationPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	m.entries[endpoint] = e
	clone := *e
	return &clone, nil
}

func (m *MockDirectory) Confirm(_ context.Context, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[endpoint]
	if !ok {
		return domain.ErrNotSubscribed
	}
	e.Confirmation = domain.ConfirmationConfirmed
	e.UpdatedAt = time.Now().UTC()
	return nil
}

var _ RecipientDirectory = (*MockDirectory)(nil)
