package store

import (
	"context"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// NotificationStore defines all persistence operations for notification records.
// The pgx implementation is in pg_store.go. Tests use a hand-written mock
// (mock_store.go).
//
// UpdateStatus on a record already in a terminal state overwrites it: the queue
// is at-least-once, so a redelivery may legitimately flip failed to sent.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	UpdateStatus(ctx context.Context, id string, status domain.Status, reason *domain.Reason) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error)
}
