package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

type pgNotificationStore struct {
	pool *pgxpool.Pool
}

// NewPgNotificationStore returns a NotificationStore backed by PostgreSQL.
func NewPgNotificationStore(pool *pgxpool.Pool) NotificationStore {
	return &pgNotificationStore{pool: pool}
}

func (s *pgNotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications
			(id, recipient_id, recipient_endpoint, kind, subject, body,
			 status, reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		n.ID, n.RecipientID, n.RecipientEndpoint, n.Kind, n.Subject, n.Body,
		n.Status, n.Reason, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *pgNotificationStore) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, recipient_id, recipient_endpoint, kind, subject, body,
		       status, reason, created_at, updated_at
		FROM notifications WHERE id = $1`, id)

	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return n, err
}

func (s *pgNotificationStore) UpdateStatus(ctx context.Context, id string, status domain.Status, reason *domain.Reason) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications
		SET status = $1, reason = $2, updated_at = $3
		WHERE id = $4`,
		status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update notification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *pgNotificationStore) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]*domain.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, recipient_id, recipient_endpoint, kind, subject, body,
		       status, reason, created_at, updated_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID, &n.RecipientID, &n.RecipientEndpoint, &n.Kind, &n.Subject,
		&n.Body, &n.Status, &n.Reason, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
