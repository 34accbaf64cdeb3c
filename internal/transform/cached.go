package transform

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/engidigitize/internal/cache"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/domain"
	"github.com/spherical-ai/spherical/libs/engidigitize/internal/observability"
)

const (
	cacheNamespace = "transform"
	scopeMarkerKey = "transform-scope"
	scopeMarkerTTL = 365 * 24 * time.Hour
)

// CachedTransformer reuses validated results for byte-identical documents.
// Failures are never cached.
type CachedTransformer struct {
	next   Transformer
	cache  cache.Client
	ttl    time.Duration
	scope  string
	logger *observability.Logger
}

// NewCachedTransformer wraps next with a result cache. scope separates
// entries produced by different models.
func NewCachedTransformer(next Transformer, c cache.Client, ttl time.Duration, scope string, logger *observability.Logger) *CachedTransformer {
	return &CachedTransformer{
		next:   next,
		cache:  c,
		ttl:    ttl,
		scope:  scope,
		logger: logger.WithOperation("transform_cache"),
	}
}

// Transform serves from cache when possible and falls through otherwise.
// Cache errors are logged and never fail the call.
func (t *CachedTransformer) Transform(ctx context.Context, payload domain.EncodedPayload) (domain.ProcessedResult, error) {
	key := PayloadKey(t.scope, payload)

	if data, err := t.cache.Get(ctx, key); err == nil {
		var result domain.ProcessedResult
		if err := json.Unmarshal(data, &result); err == nil && result.Complete() {
			t.logger.Debug().Str("key", key).Msg("Transform cache hit")
			return result, nil
		}
		t.logger.Warn().Str("key", key).Msg("Discarding unreadable cache entry")
		_ = t.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		t.logger.Warn().Err(err).Str("key", key).Msg("Transform cache lookup failed")
	}

	result, err := t.next.Transform(ctx, payload)
	if err != nil {
		return result, err
	}

	if data, err := json.Marshal(result); err == nil {
		if err := t.cache.Set(ctx, key, data, t.ttl); err != nil {
			t.logger.Warn().Err(err).Str("key", key).Msg("Transform cache store failed")
		}
	}

	return result, nil
}

// PayloadKey derives the cache key for a payload.
func PayloadKey(scope string, payload domain.EncodedPayload) string {
	h := sha256.New()
	h.Write([]byte(payload.MIMEType))
	h.Write([]byte{0})
	h.Write([]byte(payload.Data))
	return cache.CacheKey(cacheNamespace, scope, hex.EncodeToString(h.Sum(nil)))
}

// PurgeStaleScope drops cached results written under a different scope than
// the current one, then records scope as current.
func PurgeStaleScope(ctx context.Context, c cache.Client, scope string, logger *observability.Logger) error {
	prev, err := c.Get(ctx, scopeMarkerKey)
	switch {
	case err == nil && string(prev) != scope:
		if err := c.DeleteByPrefix(ctx, cache.CacheKey(cacheNamespace, string(prev))+":"); err != nil {
			return fmt.Errorf("purge cache scope %s: %w", prev, err)
		}
		logger.Info().Str("previous_scope", string(prev)).Str("scope", scope).Msg("Purged results cached by previous model")
	case err != nil && !errors.Is(err, cache.ErrCacheMiss):
		return fmt.Errorf("read cache scope: %w", err)
	}

	if err := c.Set(ctx, scopeMarkerKey, []byte(scope), scopeMarkerTTL); err != nil {
		return fmt.Errorf("record cache scope: %w", err)
	}
	return nil
}
