package directory

import (
	"context"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// RecipientDirectory maps a recipient endpoint to zero-or-one subscription
// entry. Resolve must treat "absent" and "found but not yet confirmed" as
// distinct outcomes: the worker drops NotSubscribed and NotConfirmed envelopes
// without redelivery, but for different reasons.
type RecipientDirectory interface {
	// Resolve returns the entry for an endpoint, or domain.ErrNotSubscribed.
	Resolve(ctx context.Context, endpoint string) (*domain.SubscriptionEntry, error)

	// Subscribe creates a pending entry for an endpoint when the recipient
	// opts in. Subscribing an already-known endpoint returns the existing
	// entry unchanged.
	Subscribe(ctx context.Context, endpoint string) (*domain.SubscriptionEntry, error)

	// Confirm marks the endpoint's subscription as confirmed. This is the
	// out-of-band confirmation event surfacing as an API call.
	Confirm(ctx context.Context, endpoint string) error
}
