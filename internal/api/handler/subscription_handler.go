package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/directory"
)

// SubscriptionHandler surfaces recipient opt-in and the out-of-band
// confirmation event as API calls against the recipient directory.
type SubscriptionHandler struct {
	dir    directory.RecipientDirectory
	logger *zap.Logger
}

func NewSubscriptionHandler(dir directory.RecipientDirectory, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{dir: dir, logger: logger}
}

type subscriptionRequest struct {
	RecipientEndpoint string `json:"recipient_endpoint"`
}

// Subscribe handles POST /api/v1/subscriptions
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientEndpoint == "" {
		respondError(w, http.StatusBadRequest, "recipient_endpoint is required")
		return
	}

	entry, err := h.dir.Subscribe(r.Context(), req.RecipientEndpoint)
	if err != nil {
		h.logger.Warn("subscribe failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

// Confirm handles POST /api/v1/subscriptions/confirm
func (h *SubscriptionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RecipientEndpoint == "" {
		respondError(w, http.StatusBadRequest, "recipient_endpoint is required")
		return
	}

	if err := h.dir.Confirm(r.Context(), req.RecipientEndpoint); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
