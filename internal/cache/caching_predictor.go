// Package cache provides a Redis-backed cache for classification results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Brownie44l1/alz-api/internal/model"
)

// Defaults applied by NewCachingPredictor.
const (
	DefaultTTL       = 24 * time.Hour
	DefaultNamespace = "alz:predictions"
)

// Predictor is the classification service being cached.
type Predictor interface {
	Available() bool
	Predict(ctx context.Context, raw []byte) (model.Prediction, error)
}

// CachingPredictor decorates a Predictor with a Redis cache keyed by the
// SHA-256 of the uploaded bytes. Inference is deterministic, so a cached
// result is the result the model would produce again.
type CachingPredictor struct {
	inner     Predictor
	rdb       *redis.Client
	ttl       time.Duration
	namespace string
}

// NewCachingPredictor wraps inner. A nil rdb disables caching. A non-positive
// ttl becomes DefaultTTL and an empty namespace becomes DefaultNamespace.
func NewCachingPredictor(rdb *redis.Client, ttl time.Duration, inner Predictor, namespace string) *CachingPredictor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &CachingPredictor{
		inner:     inner,
		rdb:       rdb,
		ttl:       ttl,
		namespace: namespace,
	}
}

// Available delegates to the wrapped predictor.
func (c *CachingPredictor) Available() bool {
	return c.inner.Available()
}

// Predict returns a cached prediction when one exists, otherwise it asks the
// wrapped predictor and stores a successful result. Cache errors are logged
// and never fail the request.
func (c *CachingPredictor) Predict(ctx context.Context, raw []byte) (model.Prediction, error) {
	// An unloaded model must keep rejecting requests even if old entries exist.
	if c.rdb == nil || !c.inner.Available() {
		return c.inner.Predict(ctx, raw)
	}

	key := c.cacheKey(raw)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var out model.Prediction
		if err := json.Unmarshal(b, &out); err == nil {
			slog.Debug("prediction cache hit", "key", key)
			return out, nil
		}
		if err := c.rdb.Del(ctx, key).Err(); err != nil {
			slog.Warn("failed to delete corrupt cache entry", "key", key, "error", err)
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("prediction cache read failed", "key", key, "error", err)
	}

	out, err := c.inner.Predict(ctx, raw)
	if err != nil {
		return model.Prediction{}, err
	}

	if b, err := json.Marshal(out); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			slog.Warn("prediction cache write failed", "key", key, "error", err)
		}
	}
	return out, nil
}

func (c *CachingPredictor) cacheKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return c.namespace + ":" + hex.EncodeToString(sum[:])
}
