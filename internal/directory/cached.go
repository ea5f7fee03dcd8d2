package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/budgetwise/alert-pipeline/internal/domain"
)

// CachedDirectory is a read-through Redis cache in front of another
// RecipientDirectory. Resolve is on the hot path of every delivery; the
// subscription listing changes rarely, so a short TTL keeps the worker off
// the database without risking a long-stale confirmation state.
//
// Cache failures never fail a lookup: on any Redis error the inner directory
// answers and the miss is logged at debug level.
type CachedDirectory struct {
	inner  RecipientDirectory
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDirectory(inner RecipientDirectory, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	return &CachedDirectory{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(endpoint string) string {
	return "subscription:" + endpoint
}

func (d *CachedDirectory) Resolve(ctx context.Context, endpoint string) (*domain.SubscriptionEntry, error) {
	raw, err := d.rdb.Get(ctx, cacheKey(endpoint)).Bytes()
	if err == nil {
		var e domain.SubscriptionEntry
		if err := json.Unmarshal(raw, &e); err == nil {
			return &e, nil
		}
		// Corrupt cache entry: fall through to the inner directory.
	} else if !errors.Is(err, redis.Nil) {
		d.logger.Debug("subscription cache read failed", zap.Error(err))
	}

	entry, err := d.inner.Resolve(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	d.put(ctx, entry)
	return entry, nil
}

func (d *CachedDirectory) Subscribe(ctx context.Context, endpoint string) (*domain.SubscriptionEntry, error) {
	entry, err := d.inner.Subscribe(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	d.put(ctx, entry)
	return entry, nil
}

func (d *CachedDirectory) Confirm(ctx context.Context, endpoint string) error {
	if err := d.inner.Confirm(ctx, endpoint); err != nil {
		return err
	}
	// Drop rather than rewrite: the next Resolve repopulates with the
	// confirmed entry.
	if err := d.rdb.Del(ctx, cacheKey(endpoint)).Err(); err != nil {
		d.logger.Debug("subscription cache invalidation failed", zap.Error(err))
	}
	return nil
}

func (d *CachedDirectory) put(ctx context.Context, entry *domain.SubscriptionEntry) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := d.rdb.Set(ctx, cacheKey(entry.RecipientEndpoint), raw, d.ttl).Err(); err != nil {
		d.logger.Debug("subscription cache write failed", zap.Error(err))
	}
}

var _ RecipientDirectory = (*CachedDirectory)(nil)
