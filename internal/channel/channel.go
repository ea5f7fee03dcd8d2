package channel

import "context"

// AttributeRecipientEndpoint is the message attribute key every filter policy
// is keyed on. A published message carries exactly one value for it, and each
// subscription's policy allows exactly one value — this is what gives per-user
// semantics to a shared broadcast channel.
const AttributeRecipientEndpoint = "recipient_endpoint"

// FilterPolicy is the channel-side rule restricting which published messages
// a given subscription receives.
type FilterPolicy struct {
	AttributeKey  string   `json:"attribute_key"`
	AllowedValues []string `json:"allowed_values"`
}

// EndpointPolicy builds the policy for a single recipient endpoint.
func EndpointPolicy(endpoint string) FilterPolicy {
	return FilterPolicy{
		AttributeKey:  AttributeRecipientEndpoint,
		AllowedValues: []string{endpoint},
	}
}

// Message is the payload published to the channel: the text body plus string
// attributes used purely for channel-side filter evaluation.
type Message struct {
	Subject    string
	Body       string
	Attributes map[string]string
}

// DeliveryChannel abstracts the pub/sub fan-out primitive. It is an external
// collaborator: this subsystem configures per-subscription filters and
// publishes, nothing more. Both operations are idempotent in effect, which is
// what makes lease-expiry double-processing safe without any locking.
type DeliveryChannel interface {
	// SetFilterPolicy overwrites the subscription's filter policy.
	// Repeated configuration with the same value is a no-op in effect.
	SetFilterPolicy(ctx context.Context, subscriptionRef string, policy FilterPolicy) error

	// Publish fans the message out to every subscription whose filter policy
	// matches the message attributes.
	Publish(ctx context.Context, msg Message) error
}
