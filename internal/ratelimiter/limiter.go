package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// KindLimiters holds one token bucket per alert kind, gating publishes to the
// shared delivery channel. Burst equals the rate so no extra capacity can be
// saved up beyond the configured per-second maximum.
type KindLimiters struct {
	limiters map[domain.Kind]*rate.Limiter
	fallback *rate.Limiter
}

// New creates KindLimiters with ratePerSec tokens per second per kind.
func New(ratePerSec int) *KindLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec

	kinds := []domain.Kind{
		domain.KindBudgetExceeded, domain.KindBudgetThreshold,
		domain.KindLargeExpense, domain.KindWeeklySummary,
		domain.KindMonthlySummary, domain.KindSubscriptionWelcome,
	}
	m := make(map[domain.Kind]*rate.Limiter, len(kinds))
	for _, k := range kinds {
		m[k] = rate.NewLimiter(r, burst)
	}
	return &KindLimiters{limiters: m, fallback: rate.NewLimiter(r, burst)}
}

// Wait blocks until the kind's limiter grants a token. Called by each worker
// immediately before publishing. Returns a non-nil error only if ctx is
// cancelled while waiting.
func (kl *KindLimiters) Wait(ctx context.Context, k domain.Kind) error {
	l, ok := kl.limiters[k]
	if !ok {
		l = kl.fallback
	}
	return l.Wait(ctx)
}
