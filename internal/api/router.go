package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/api/handler"
	apimw "github.com/budgetwise/alert-pipeline/internal/api/middleware"
	"github.com/budgetwise/alert-pipeline/internal/directory"
	"github.com/budgetwise/alert-pipeline/internal/gate"
	"github.com/budgetwise/alert-pipeline/internal/store"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	g *gate.EnqueueGate,
	st store.NotificationStore,
	dir directory.RecipientDirectory,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	ah := handler.NewAlertHandler(g, st, logger)
	sh := handler.NewSubscriptionHandler(dir, logger)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/alerts", ah.Enqueue)
		r.Get("/alerts/{id}", ah.GetByID)
		r.Get("/recipients/{id}/alerts", ah.History)

		// Subscription opt-in flow. Confirm must be registered as a literal
		// path, not under an {endpoint} param, since endpoints contain
		// characters chi treats specially.
		r.Post("/subscriptions", sh.Subscribe)
		r.Post("/subscriptions/confirm", sh.Confirm)
	})

	return r
}
