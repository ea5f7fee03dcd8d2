package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/budgetwise/alert-pipeline/internal/api/middleware"
	"github.com/budgetwise/alert-pipeline/internal/domain"
	"github.com/budgetwise/alert-pipeline/internal/gate"
	"github.com/budgetwise/alert-pipeline/internal/store"
)

// AlertHandler handles the producer-facing alert endpoints: enqueue and the
// notification-history query. Enqueue returns as soon as the envelope is on
// the queue — the caller must not assume delivery succeeded just because
// enqueue did; delivery failures surface asynchronously via the history query.
type AlertHandler struct {
	gate   *gate.EnqueueGate
	store  store.NotificationStore
	logger *zap.Logger
}

func NewAlertHandler(g *gate.EnqueueGate, st store.NotificationStore, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{gate: g, store: st, logger: logger}
}

// Enqueue handles POST /api/v1/alerts
func (h *AlertHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req domain.EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.gate.Enqueue(r.Context(), req)
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

// GetByID handles GET /api/v1/alerts/{id}
func (h *AlertHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// History handles GET /api/v1/recipients/{id}/alerts
// Newest first, default 20, max 100.
func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	recipientID := chi.URLParam(r, "id")

	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}

	notifications, err := h.store.ListByRecipient(r.Context(), recipientID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"data":  notifications,
		"limit": limit,
	})
}
