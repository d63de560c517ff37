package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache persists geocode results by key. Get returns nil, nil on a miss or
// an expired entry.
type Cache interface {
	GetCachedGeocode(ctx context.Context, key string) ([]byte, error)
	SetCachedGeocode(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(addr AddressInput) string {
	normalized := fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(strings.TrimSpace(addr.Street)),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToLower(strings.TrimSpace(addr.State)),
		strings.TrimSpace(addr.ZipCode),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// CachedClient serves repeat addresses from a Cache. Both matches and
// non-matches are cached so a typo is not re-sent on every submission.
type CachedClient struct {
	next  Client
	cache Cache
	ttl   time.Duration
}

// NewCachedClient wraps next with cache. A non-positive ttl defaults to 30 days.
func NewCachedClient(next Client, cache Cache, ttl time.Duration) *CachedClient {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &CachedClient{next: next, cache: cache, ttl: ttl}
}

// Geocode implements Client.
func (c *CachedClient) Geocode(ctx context.Context, addr AddressInput) (*Result, error) {
	key := cacheKey(addr)

	if cached, err := c.lookup(ctx, key); err != nil {
		zap.L().Debug("geocode cache lookup failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	result, err := c.next.Geocode(ctx, addr)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, result); err != nil {
		zap.L().Warn("geocode cache store failed", zap.Error(err))
	}
	return result, nil
}

func (c *CachedClient) lookup(ctx context.Context, key string) (*Result, error) {
	data, err := c.cache.GetCachedGeocode(ctx, key)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: cache get")
	}
	if data == nil {
		return nil, nil
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "geocode: cache decode")
	}
	r.Source = "cache"

	zap.L().Debug("geocode cache hit", zap.String("key", key[:12]), zap.Bool("matched", r.Matched))
	return &r, nil
}

func (c *CachedClient) store(ctx context.Context, key string, r *Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "geocode: cache encode")
	}
	return c.cache.SetCachedGeocode(ctx, key, data, c.ttl)
}
