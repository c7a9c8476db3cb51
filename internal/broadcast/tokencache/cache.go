// Package tokencache caches partner OAuth access tokens per scope.
package tokencache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"immersion/internal/broadcast/metrics"
)

const (
	defaultSafetyMargin = 30 * time.Second
	defaultFetchTimeout = 30 * time.Second
)

// Token is what a token endpoint hands back.
type Token struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Fetcher obtains a fresh token for scope.
type Fetcher func(ctx context.Context, scope string) (Token, error)

// Store keeps access tokens until their TTL runs out.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache returns cached tokens and fetches missing ones. Concurrent misses on
// the same scope share a single fetch.
type Cache struct {
	partner string
	store   Store
	margin  time.Duration
	timeout time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Cache)

// WithSafetyMargin shortens every TTL so a token is never used right before
// it expires upstream.
func WithSafetyMargin(d time.Duration) Option {
	return func(c *Cache) {
		if d >= 0 {
			c.margin = d
		}
	}
}

// WithFetchTimeout bounds a shared token fetch. The fetch outlives the caller
// that started it so other waiters are not cancelled along with it.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New builds the cache for one partner. Keys are namespaced by partner so
// several partners can share a Redis store.
func New(partner string, store Store, opts ...Option) *Cache {
	c := &Cache{
		partner: partner,
		store:   store,
		margin:  defaultSafetyMargin,
		timeout: defaultFetchTimeout,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrFetch returns the cached token for scope, or calls fetch and caches its
// result for the token's lifetime minus the safety margin. A failing store is
// treated as a miss.
func (c *Cache) GetOrFetch(ctx context.Context, scope string, fetch Fetcher) (string, error) {
	key := c.key(scope)
	token, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		c.metrics.IncrementTokenLookup(scope, "error")
		c.logger.WarnContext(ctx, "token store lookup failed, fetching a new token",
			"partner", c.partner,
			"scope", scope,
			"error", err,
		)
	case ok:
		c.metrics.IncrementTokenLookup(scope, "hit")
		return token, nil
	default:
		c.metrics.IncrementTokenLookup(scope, "miss")
	}

	flight := c.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		fresh, err := fetch(fetchCtx, scope)
		if err != nil {
			return "", err
		}
		if fresh.AccessToken == "" {
			return "", errors.New("token endpoint returned an empty access token")
		}
		if ttl := fresh.ExpiresIn - c.margin; ttl > 0 {
			if err := c.store.Set(fetchCtx, key, fresh.AccessToken, ttl); err != nil {
				c.logger.WarnContext(ctx, "failed to cache token",
					"partner", c.partner,
					"scope", scope,
					"error", err,
				)
			}
		}
		return fresh.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token for scope, typically after the partner
// rejected it.
func (c *Cache) Invalidate(ctx context.Context, scope string) error {
	return c.store.Delete(ctx, c.key(scope))
}

func (c *Cache) key(scope string) string {
	return c.partner + ":" + scope
}
