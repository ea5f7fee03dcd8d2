package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

type pgDirectory struct {
	pool *pgxpool.Pool
}

// NewPgDirectory returns a RecipientDirectory backed by the subscriptions
// table — the durable mirror of the delivery channel's subscription listing.
func NewPgDirectory(pool *pgxpool.Pool) RecipientDirectory {
	return &pgDirectory{pool: pool}
}

func (d *pgDirectory) Resolve(ctx context.Context, endpoint string) (*domain.SubscriptionEntry, error) {
	row := d.pool.QueryRow(ctx, `
		SELECT recipient_endpoint, subscription_ref, confirmation_state, created_at, updated_at
		FROM subscriptions WHERE recipient_endpoint = $1`, endpoint)

	var e domain.SubscriptionEntry
	err := row.Scan(&e.RecipientEndpoint, &e.SubscriptionRef, &e.Confirmation, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotSubscribed
	}
	if err != nil {
		return nil, fmt.Errorf("resolve subscription: %w", err)
	}
	return &e, nil
}

func (d *pgDirectory) Subscribe(ctx context.Context, endpoint string) (*domain.SubscriptionEntry, error) {
	now := time.Now().UTC()
	entry := &domain.SubscriptionEntry{
		RecipientEndpoint: endpoint,
		SubscriptionRef:   "sub-" + uuid.New().String(),
		Confirmation:      domain.ConfirmationPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	// ON CONFLICT DO NOTHING keeps the first ref and confirmation state:
	// re-subscribing never resets a confirmed endpoint to pending.
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO subscriptions
			(recipient_endpoint, subscription_ref, confirmation_state, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (recipient_endpoint) DO NOTHING`,
		entry.RecipientEndpoint, entry.SubscriptionRef, entry.Confirmation,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return d.Resolve(ctx, endpoint)
	}
	return entry, nil
}

func (d *pgDirectory) Confirm(ctx context.Context, endpoint string) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE subscriptions
		SET confirmation_state = $1, updated_at = $2
		WHERE recipient_endpoint = $3`,
		domain.ConfirmationConfirmed, time.Now().UTC(), endpoint)
	if err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotSubscribed
	}
	return nil
}
