package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

func TestParseEnvelope_RoundTrip(t *testing.T) {
	e := domain.Envelope{
		NotificationID:    "n-1",
		RecipientID:       "u1",
		RecipientEndpoint: "a@x.com",
		Kind:              domain.KindLargeExpense,
		Subject:           "Large expense",
		Body:              "You spent $500 at once.",
		Timestamp:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	body, err := e.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := domain.ParseEnvelope(body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != e {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, e)
	}
}

func TestParseEnvelope_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"empty object", `{}`},
		{"missing notification id", `{"recipientId":"u1","recipientEndpoint":"a@x.com","kind":"budget_exceeded","subject":"s","body":"b","timestamp":"2025-06-01T12:00:00Z"}`},
		{"missing endpoint", `{"notificationId":"n-1","recipientId":"u1","kind":"budget_exceeded","subject":"s","body":"b","timestamp":"2025-06-01T12:00:00Z"}`},
		{"unknown kind", `{"notificationId":"n-1","recipientId":"u1","recipientEndpoint":"a@x.com","kind":"carrier_pigeon","subject":"s","body":"b","timestamp":"2025-06-01T12:00:00Z"}`},
		{"missing timestamp", `{"notificationId":"n-1","recipientId":"u1","recipientEndpoint":"a@x.com","kind":"budget_exceeded","subject":"s","body":"b"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.ParseEnvelope([]byte(tc.body))
			if !errors.Is(err, domain.ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

// A validation failure must not discard what did decode: the notification ID
// is how the caller reconciles the record the bad envelope points at.
func TestParseEnvelope_ValidationFailureKeepsDecodedFields(t *testing.T) {
	body := `{"notificationId":"n-1","recipientId":"u1","recipientEndpoint":"a@x.com","kind":"carrier_pigeon","subject":"s","body":"b","timestamp":"2025-06-01T12:00:00Z"}`

	got, err := domain.ParseEnvelope([]byte(body))
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if got.NotificationID != "n-1" || got.RecipientID != "u1" {
		t.Fatalf("expected decoded fields preserved, got %+v", got)
	}

	got, err = domain.ParseEnvelope([]byte(`{"notificationId":`))
	if !errors.Is(err, domain.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if got.NotificationID != "" {
		t.Fatalf("undecodable body must yield an empty envelope, got %+v", got)
	}
}
