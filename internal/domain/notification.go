package domain

import "time"

// Kind is the alert category produced by the budgeting application.
type Kind string

const (
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindBudgetThreshold     Kind = "budget_threshold"
	KindLargeExpense        Kind = "large_expense"
	KindWeeklySummary       Kind = "weekly_summary"
	KindMonthlySummary      Kind = "monthly_summary"
	KindSubscriptionWelcome Kind = "subscription_welcome"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindBudgetExceeded, KindBudgetThreshold, KindLargeExpense,
		KindWeeklySummary, KindMonthlySummary, KindSubscriptionWelcome:
		return true
	}
	return false
}

// Status tracks the lifecycle of a notification record.
// Queued is the only non-terminal state. Sent and failed are terminal,
// though at-least-once redelivery may overwrite a failed record with a
// fresh terminal transition.
type Status string

const (
	StatusQueued Status = "queued"
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Reason classifies why a notification ended up failed.
type Reason string

const (
	ReasonInvalidRecipient Reason = "invalid_recipient"
	ReasonMalformedPayload Reason = "malformed_payload"
	ReasonNotSubscribed    Reason = "not_subscribed"
	ReasonNotConfirmed     Reason = "not_confirmed"
	ReasonChannelError     Reason = "channel_error"
	ReasonStoreError       Reason = "store_error"
	ReasonQueueError       Reason = "queue_error"
)

// Retryable reports whether the queue should redeliver the envelope.
// Business-rule failures and poison messages are dropped; only transient
// infrastructure errors earn a redelivery.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonChannelError, ReasonStoreError:
		return true
	}
	return false
}

// Notification is the durable record of one delivery attempt.
type Notification struct {
	ID                string    `json:"id"`
	RecipientID       string    `json:"recipient_id"`
	RecipientEndpoint string    `json:"recipient_endpoint"`
	Kind              Kind      `json:"kind"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Status            Status    `json:"status"`
	Reason            *Reason   `json:"reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ConfirmationState is the opt-in state of a recipient's subscription.
// Delivery must never be attempted while the state is pending.
type ConfirmationState string

const (
	ConfirmationPending   ConfirmationState = "pending"
	ConfirmationConfirmed ConfirmationState = "confirmed"
)

// SubscriptionEntry maps a recipient endpoint to its delivery-channel
// subscription reference and confirmation state.
type SubscriptionEntry struct {
	RecipientEndpoint string            `json:"recipient_endpoint"`
	SubscriptionRef   string            `json:"subscription_ref"`
	Confirmation      ConfirmationState `json:"confirmation_state"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// EnqueueRequest is the producer-side payload accepted by the enqueue gate.
type EnqueueRequest struct {
	RecipientID       string `json:"recipient_id"`
	RecipientEndpoint string `json:"recipient_endpoint"`
	Kind              Kind   `json:"kind"`
	Subject           string `json:"subject"`
	Body              string `json:"body"`
}

func (r *EnqueueRequest) Validate() error {
	if r.RecipientID == "" || r.RecipientEndpoint == "" {
		return ErrInvalidRecipient
	}
	if !r.Kind.IsValid() {
		return ErrInvalidKind
	}
	if r.Subject == "" || len(r.Body) > 16384 {
		return ErrInvalidContent
	}
	return nil
}
