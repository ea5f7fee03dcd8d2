package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the serialized unit of work travelling through the work queue.
// It is a closed struct: every field is required, and anything that fails to
// parse or validate is treated as a poison message rather than propagating
// ad-hoc key errors downstream.
type Envelope struct {
	NotificationID    string    `json:"notificationId"`
	RecipientID       string    `json:"recipientId"`
	RecipientEndpoint string    `json:"recipientEndpoint"`
	Kind              Kind      `json:"kind"`
	Subject           string    `json:"subject"`
	Body              string    `json:"body"`
	Timestamp         time.Time `json:"timestamp"`
}

func (e Envelope) Validate() error {
	if e.NotificationID == "" {
		return fmt.Errorf("%w: missing notificationId", ErrMalformedPayload)
	}
	if e.RecipientID == "" {
		return fmt.Errorf("%w: missing recipientId", ErrMalformedPayload)
	}
	if e.RecipientEndpoint == "" {
		return fmt.Errorf("%w: missing recipientEndpoint", ErrMalformedPayload)
	}
	if !e.Kind.IsValid() {
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedPayload, e.Kind)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedPayload)
	}
	return nil
}

// Marshal serializes the envelope for the queue wire format.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes and validates a queue message body. When the body is
// valid JSON but fails validation, the partially-decoded envelope is returned
// alongside the error: it may still carry a usable notification ID, and the
// caller needs it to reconcile the record the envelope points at.
func ParseEnvelope(body []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}
