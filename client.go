package rarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	dbBadger "github.com/kailas-cloud/rarity/internal/db/badger"
	dbPostgres "github.com/kailas-cloud/rarity/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/rarity/internal/db/redis"
	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/window"
	"github.com/kailas-cloud/rarity/internal/metrics"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
	contentrepo "github.com/kailas-cloud/rarity/internal/repository/content"
	"github.com/kailas-cloud/rarity/internal/repository/embcache"
	"github.com/kailas-cloud/rarity/internal/repository/pgvector"
	"github.com/kailas-cloud/rarity/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/rarity/internal/usecase/embedding"
	"github.com/kailas-cloud/rarity/internal/usecase/health"
	moderationuc "github.com/kailas-cloud/rarity/internal/usecase/moderation"
	"github.com/kailas-cloud/rarity/internal/usecase/temporal"
	"github.com/kailas-cloud/rarity/internal/usecase/uniqueness"
)

const defaultReadinessTimeout = 10 * time.Second

// contentStore is what the client needs from a durable content backend.
type contentStore interface {
	uniqueness.SimilarityStore
	Delete(ctx context.Context, id string) error
}

// kvStore backs the result and embedding caches.
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Ping(ctx context.Context) error
}

// Client is the rarity SDK entry point.
type Client struct {
	svc     *uniqueness.Service
	store   contentStore
	health  *health.Service
	logger  *zap.Logger
	closers []func()
}

// New creates a Client, connects to the database and ensures its schema.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		vectorDimensions: domain.DefaultDimensions,
		keyPrefix:        domain.DefaultKeyPrefix,
		badger:           dbBadger.Config{InMemory: true},
		ttls:             cache.DefaultTTLs(),
		logger:           zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	types, err := cfg.contentTypes()
	if err != nil {
		return nil, fmt.Errorf("rarity: %w", err)
	}
	windows := window.Defaults()
	if len(cfg.windows) > 0 {
		if windows, err = window.ParseAll(cfg.windows); err != nil {
			return nil, fmt.Errorf("rarity: %w", err)
		}
	}

	c := &Client{logger: cfg.logger}
	ctx := context.Background()

	storePinger, kv, err := c.connect(ctx, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}

	if err := c.wire(cfg, storePinger, kv, types, windows); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// wire builds the service graph on top of an opened content store and cache backend.
func (c *Client) wire(
	cfg *clientConfig, storePinger health.Pinger, kv kvStore,
	types uniqueness.ContentTypes, windows []window.Window,
) error {
	resultCache := cache.New(kv, cfg.keyPrefix, cfg.ttls, metrics.CacheTotal, cfg.logger)
	emb := c.embedder(cfg, kv)

	var gate uniqueness.Gate
	if cfg.moderation {
		key, baseURL := cfg.moderationKey, cfg.moderationBaseURL
		if key == "" {
			key, baseURL = cfg.openAIKey, cfg.openAIBaseURL
		}
		if key == "" {
			return errors.New("rarity: moderation requires WithOpenAI credentials")
		}
		mod := openai.NewModerator(&openai.Config{
			APIKey:  key,
			BaseURL: baseURL,
			Model:   cfg.moderationModel,
			Logger:  cfg.logger,
		}, cfg.strictThreshold)
		gate = moderationuc.New(mod, resultCache, cfg.moderationTimeout, cfg.logger)
	}

	agg := temporal.New(c.store, resultCache, windows, cfg.logger)
	c.svc = uniqueness.New(emb, c.store, gate, agg, resultCache, types, cfg.vectorDimensions, cfg.logger)
	c.health = health.New(storePinger, kv, emb)
	return nil
}

// connect opens the content store and picks the cache backend.
func (c *Client) connect(ctx context.Context, cfg *clientConfig) (health.Pinger, kvStore, error) {
	switch cfg.driver {
	case "valkey", "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.addrs, Password: cfg.password})
		if err != nil {
			return nil, nil, fmt.Errorf("rarity: create %s store: %w", cfg.driver, err)
		}
		c.closers = append(c.closers, s.Close)
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			return nil, nil, fmt.Errorf("rarity: database not ready: %w", err)
		}
		repo := contentrepo.New(s, cfg.keyPrefix, cfg.vectorDimensions)
		if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
			repo = repo.WithHNSW(contentrepo.HNSWConfig{M: cfg.hnswM, EFConstruct: cfg.hnswEFConstruct})
		}
		if err := repo.EnsureIndex(ctx); err != nil {
			return nil, nil, fmt.Errorf("rarity: %w", err)
		}
		c.store = repo
		if !cfg.localCache {
			return s, s, nil
		}
		kv, err := c.openLocalCache(cfg.badger)
		return s, kv, err

	case "postgres":
		pg, err := dbPostgres.New(ctx, dbPostgres.Config{DSN: cfg.dsn, MaxConns: cfg.maxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("rarity: %w", err)
		}
		c.closers = append(c.closers, pg.Close)
		if err := pg.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			return nil, nil, fmt.Errorf("rarity: database not ready: %w", err)
		}
		repo := pgvector.New(pg.Pool, cfg.vectorDimensions)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("rarity: %w", err)
		}
		c.store = repo
		kv, err := c.openLocalCache(cfg.badger)
		return pg, kv, err

	case "":
		return nil, nil, errors.New("rarity: database required (use WithValkey, WithRedis or WithPostgres)")
	default:
		return nil, nil, fmt.Errorf("rarity: unknown driver %q", cfg.driver)
	}
}

func (c *Client) openLocalCache(bc dbBadger.Config) (kvStore, error) {
	s, err := dbBadger.NewStore(bc, c.logger)
	if err != nil {
		return nil, fmt.Errorf("rarity: open local cache: %w", err)
	}
	c.closers = append(c.closers, s.Close)
	return s, nil
}

// embedder builds provider -> rate limit -> cache -> instruction -> local fallback.
func (c *Client) embedder(cfg *clientConfig, kv kvStore) *embeddinguc.FallbackEmbedder {
	var inner domain.Embedder = noopEmbedder{}
	switch {
	case cfg.embedder != nil:
		inner = &embedderAdapter{inner: cfg.embedder}
	case cfg.openAIKey != "":
		inner = openai.NewEmbedder(&openai.Config{
			APIKey:     cfg.openAIKey,
			BaseURL:    cfg.openAIBaseURL,
			Model:      cfg.openAIModel,
			Dimensions: cfg.vectorDimensions,
			Provider:   "openai",
			Logger:     cfg.logger,
		})
	}
	if _, ok := inner.(noopEmbedder); !ok {
		limiter := embeddinguc.NewRateLimiter(cfg.embedRatePerSec, cfg.embedRateBurst)
		inner = embeddinguc.NewInstrumentedEmbedder(inner, "sdk", cfg.openAIModel, limiter, cfg.logger)
		cacheOpts := []embcache.Option{embcache.WithKeyPrefix(cfg.keyPrefix)}
		if cfg.embedCacheTTL > 0 {
			cacheOpts = append(cacheOpts, embcache.WithTTL(cfg.embedCacheTTL))
		}
		inner = embcache.New(inner, kv, metrics.CacheTotal, cfg.logger, cacheOpts...)
		if cfg.instruction != "" {
			inner = domain.NewInstructionEmbedder(inner, cfg.instruction)
		}
	}
	return embeddinguc.NewFallbackEmbedder(inner, cfg.vectorDimensions, cfg.logger)
}

func (cfg *clientConfig) contentTypes() (uniqueness.ContentTypes, error) {
	types := uniqueness.DefaultContentTypes()
	if cfg.types != nil {
		types = *cfg.types
	}
	if o, ok := cfg.thresholds[Post]; ok {
		types.Post.Thresholds = content.Thresholds{Similarity: o.similarity, MaxCandidates: o.maxCandidates}
	}
	if o, ok := cfg.thresholds[Dream]; ok {
		types.Dream.Thresholds = content.Thresholds{Similarity: o.similarity, MaxCandidates: o.maxCandidates}
	}
	if cfg.dreams != nil {
		types.Dream.Allowed = *cfg.dreams
	}
	if cfg.strictDreams != nil {
		types.Dream.StrictModeration = *cfg.strictDreams
	}
	if cfg.maxTextRunes > 0 {
		types.Post.MaxTextRunes = cfg.maxTextRunes
		types.Dream.MaxTextRunes = cfg.maxTextRunes
	}
	if err := types.Validate(); err != nil {
		return uniqueness.ContentTypes{}, fmt.Errorf("content types: %w", err)
	}
	return types, nil
}

// ComputeUniqueness ranks a submission against its scope pool without storing it.
func (c *Client) ComputeUniqueness(ctx context.Context, s Submission) (Result, error) {
	item, err := s.toItem()
	if err != nil {
		return Result{}, err
	}
	res, err := c.svc.Compute(ctx, item)
	if err != nil {
		return Result{}, fmt.Errorf("compute uniqueness: %w", err)
	}
	return fromResult(item.ID(), res), nil
}

// Submit ranks a submission and then stores it so later submissions compare against it.
// A storage failure after a successful computation is returned alongside the result.
func (c *Client) Submit(ctx context.Context, s Submission) (Result, error) {
	item, err := s.toItem()
	if err != nil {
		return Result{}, err
	}
	res, err := c.svc.Compute(ctx, item)
	if err != nil {
		return Result{}, fmt.Errorf("compute uniqueness: %w", err)
	}
	out := fromResult(item.ID(), res)
	if err := c.svc.Record(ctx, item, res.Embedding); err != nil {
		return out, fmt.Errorf("record item: %w", err)
	}
	return out, nil
}

// Delete removes a stored submission.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewInvalidInput("id", "is required")
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// Ping reports whether the content store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	rep := c.health.Check(ctx)
	if rep.Status == health.Unhealthy {
		return fmt.Errorf("rarity: store unhealthy: %v", rep.Checks)
	}
	return nil
}

// Close releases database connections. Safe to call more than once.
func (c *Client) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
