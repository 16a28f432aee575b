// Package cache provides a redis-backed Resolver with fresh/stale entries and
// singleflight refresh.
package cache

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"qrtrack/internal/apperr"
	"qrtrack/internal/logging"
	"qrtrack/internal/metrics"
	"qrtrack/models"
)

const keyPrefix = "qr:target:"

type Config struct {
	FreshTTL time.Duration
	StaleTTL time.Duration
	// Beta randomly shortens the fresh window by up to Beta*FreshTTL so that hot keys
	// do not all expire at once.
	Beta float64
}

type Entry struct {
	Target     models.QRTarget `json:"target"`
	FreshUntil int64           `json:"fresh_until"`
	StaleUntil int64           `json:"stale_until"`
}

// Loader reads a target from the source of truth.
type Loader func(ctx context.Context, codeID string) (*models.QRTarget, error)

type RedisCache struct {
	client *redis.Client
	config Config
	load   Loader
	group  singleflight.Group
	now    func() time.Time
}

func NewRedisCache(client *redis.Client, config Config, load Loader) *RedisCache {
	return &RedisCache{
		client: client,
		config: config,
		load:   load,
		now:    time.Now,
	}
}

func key(codeID string) string { return keyPrefix + codeID }

func (c *RedisCache) set(ctx context.Context, t *models.QRTarget) error {
	now := c.now().Unix()
	freshTTL := c.config.FreshTTL
	if c.config.Beta > 0 {
		freshTTL = time.Duration(float64(c.config.FreshTTL) * (1 - c.config.Beta*rand.Float64()))
	}
	entry := Entry{
		Target:     *t,
		FreshUntil: now + int64(freshTTL.Seconds()),
		StaleUntil: now + int64((freshTTL + c.config.StaleTTL).Seconds()),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := freshTTL + c.config.StaleTTL
	return c.client.Set(ctx, key(t.CodeID), data, ttl).Err()
}

// Resolve returns a fresh entry directly, a stale entry while refreshing it in the
// background, and otherwise loads synchronously. Not-found is never cached.
func (c *RedisCache) Resolve(ctx context.Context, codeID string) (*models.QRTarget, error) {
	data, err := c.client.Get(ctx, key(codeID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return c.refresh(ctx, codeID)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("code_id", codeID).Msg("Redis read failed, falling back to store")
		return c.load(ctx, codeID)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("code_id", codeID).Msg("Corrupt cache entry")
		return c.refresh(ctx, codeID)
	}

	now := c.now().Unix()
	if now < entry.FreshUntil {
		metrics.CacheLookups.WithLabelValues("fresh").Inc()
		return &entry.Target, nil
	}
	if now < entry.StaleUntil {
		metrics.CacheLookups.WithLabelValues("stale").Inc()
		go func() {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if _, err := c.refresh(bg, codeID); err != nil && !apperr.IsInvalidCode(err) {
				logging.Warn().Err(err).Str("code_id", codeID).Msg("Background cache refresh failed")
			}
		}()
		return &entry.Target, nil
	}

	metrics.CacheLookups.WithLabelValues("miss").Inc()
	return c.refresh(ctx, codeID)
}

// refreshTimeout bounds a shared load. The load runs detached from any one caller so
// that a caller going away does not fail the others waiting on the same flight.
const refreshTimeout = 5 * time.Second

func (c *RedisCache) refresh(ctx context.Context, codeID string) (*models.QRTarget, error) {
	ch := c.group.DoChan(codeID, func() (interface{}, error) {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		t, err := c.load(bg, codeID)
		if err != nil {
			if apperr.IsInvalidCode(err) {
				_ = c.client.Del(bg, key(codeID)).Err()
			}
			return nil, err
		}
		if err := c.set(bg, t); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("code_id", codeID).Msg("Failed to update cache")
		}
		return t, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		t := *res.Val.(*models.QRTarget)
		return &t, nil
	}
}

// Invalidate drops the cached entry so the next Resolve reads the store.
func (c *RedisCache) Invalidate(ctx context.Context, codeID string) error {
	return c.client.Del(ctx, key(codeID)).Err()
}
