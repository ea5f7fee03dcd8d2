package domain

import "errors"

// Sentinel errors used throughout the application.
// HTTP handlers translate these to status codes via a single mapError function;
// the delivery worker maps them to failure reasons and ack/release decisions.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRecipient = errors.New("recipient id and endpoint must not be empty")
	ErrInvalidKind      = errors.New("invalid kind: must be a known alert category")
	ErrInvalidContent   = errors.New("subject must not be empty and body must not exceed 16384 characters")
	ErrMalformedPayload = errors.New("malformed envelope payload")
	ErrNotSubscribed    = errors.New("recipient endpoint has no subscription")
	ErrNotConfirmed     = errors.New("recipient subscription is not confirmed")
	ErrAlreadyConfirmed = errors.New("recipient subscription is already confirmed")
)
