package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/db"
	"github.com/kailas-cloud/rarity/internal/domain"
)

// Kind names a class of cached values; each has its own key segment and TTL.
type Kind string

const (
	// KindModeration caches moderation verdicts by text hash.
	KindModeration Kind = "moderation"
	// KindSimilar caches the all-time match set by content hash.
	KindSimilar Kind = "similar"
	// KindTemporal caches per-window snapshots by content hash and scope.
	KindTemporal Kind = "temporal"
	// KindTotalCount caches the all-time pool size.
	KindTotalCount Kind = "totalCount"
)

// TTLs per kind. Moderation is the longest lived, totals the shortest.
type TTLs struct {
	Moderation time.Duration
	Similar    time.Duration
	Temporal   time.Duration
	TotalCount time.Duration
}

// DefaultTTLs returns the production expiry policy.
func DefaultTTLs() TTLs {
	return TTLs{
		Moderation: 24 * time.Hour,
		Similar:    10 * time.Minute,
		Temporal:   5 * time.Minute,
		TotalCount: time.Minute,
	}
}

func (t TTLs) withDefaults() TTLs {
	d := DefaultTTLs()
	if t.Moderation <= 0 {
		t.Moderation = d.Moderation
	}
	if t.Similar <= 0 {
		t.Similar = d.Similar
	}
	if t.Temporal <= 0 {
		t.Temporal = d.Temporal
	}
	if t.TotalCount <= 0 {
		t.TotalCount = d.TotalCount
	}
	return t
}

func (t TTLs) of(k Kind) time.Duration {
	switch k {
	case KindModeration:
		return t.Moderation
	case KindSimilar:
		return t.Similar
	case KindTemporal:
		return t.Temporal
	default:
		return t.TotalCount
	}
}

// store is the consumer interface for the cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache stores msgpack-encoded values with per-kind expiry. It is the only
// state shared between computations; entries are never invalidated manually.
type Cache struct {
	store      store
	prefix     string
	ttls       TTLs
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a cache. cacheTotal has labels "kind" and "result" (hit/miss/error) and may be nil.
func New(s store, prefix string, ttls TTLs, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if prefix == "" {
		prefix = domain.DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:      s,
		prefix:     prefix,
		ttls:       ttls.withDefaults(),
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// TTL returns the expiry applied to kind.
func (c *Cache) TTL(k Kind) time.Duration { return c.ttls.of(k) }

// Get decodes the value stored under (kind, key) into v.
// A miss returns (false, nil); store and decode failures return an error.
func (c *Cache) Get(ctx context.Context, k Kind, key string, v any) (bool, error) {
	full := c.key(k, key)
	data, err := c.store.Get(ctx, full)
	if errors.Is(err, db.ErrKeyNotFound) {
		c.inc(k, "miss")
		return false, nil
	}
	if err != nil {
		c.inc(k, "error")
		return false, fmt.Errorf("cache get %s: %w", full, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		c.inc(k, "error")
		c.logger.Warn("Failed to decode cached value", zap.String("key", full), zap.Error(err))
		return false, fmt.Errorf("cache decode %s: %w", full, err)
	}
	c.inc(k, "hit")
	return true, nil
}

// Set encodes v and stores it under (kind, key) with the kind's TTL.
func (c *Cache) Set(ctx context.Context, k Kind, key string, v any) error {
	full := c.key(k, key)
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", full, err)
	}
	if err := c.store.SetWithTTL(ctx, full, data, c.ttls.of(k)); err != nil {
		return fmt.Errorf("cache set %s: %w", full, err)
	}
	return nil
}

func (c *Cache) key(k Kind, key string) string {
	return c.prefix + string(k) + ":" + key
}

func (c *Cache) inc(k Kind, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(string(k), result).Inc()
	}
}

// ModerationKey is the moderation cache key for raw text.
func ModerationKey(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// SimilarKey is the match cache key for a content hash.
func SimilarKey(contentHash string) string { return contentHash }

// TemporalKey is the snapshot cache key for a content hash seen from a scope.
func TemporalKey(contentHash, scopeKey string) string {
	return contentHash + ":" + scopeKey
}

// TotalCountKey is the pool-size cache key for a pool.
func TotalCountKey(poolKey string) string { return poolKey }
