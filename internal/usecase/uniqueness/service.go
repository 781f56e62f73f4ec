package uniqueness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	dommod "github.com/kailas-cloud/rarity/internal/domain/moderation"
	"github.com/kailas-cloud/rarity/internal/domain/percentile"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
	logpkg "github.com/kailas-cloud/rarity/internal/logger"
	"github.com/kailas-cloud/rarity/internal/metrics"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
	"github.com/kailas-cloud/rarity/internal/usecase/embedding"
	modusecase "github.com/kailas-cloud/rarity/internal/usecase/moderation"
	"github.com/kailas-cloud/rarity/internal/usecase/temporal"
)

// Degradation flags reported in Result.Flags.
const (
	FlagFallbackEmbedding     = "fallback_embedding"
	FlagSimilarityUnavailable = "similarity_unavailable"
	FlagCountUnavailable      = "count_unavailable"
	FlagCacheUnavailable      = "cache_unavailable"
	FlagWindowDegradedPrefix  = "window_degraded:"
)

// Pipeline stages, used as metric and log labels.
const (
	StageEmbedding  = "embedding"
	StageCached     = "cached"
	StageMatching   = "matching"
	StagePercentile = "percentile"
	StageTemporal   = "temporal"
	StageAssembled  = "assembled"
)

// sharedCountTimeout bounds a pool count that no single caller owns.
const sharedCountTimeout = 10 * time.Second

// Result is the uniqueness of one submission.
type Result struct {
	percentile.Result
	// Nearest holds the closest prior matches; MatchCount counts all of them.
	Nearest    content.MatchSet
	Temporal   map[string]temporal.Snapshot
	Flags      []string
	Moderation dommod.Verdict
	// Embedding is the vector the result was computed with, for a later Record.
	Embedding []float32
}

// Degraded reports whether any fallback was taken.
func (r Result) Degraded() bool { return len(r.Flags) > 0 }

// Service orchestrates embedding, moderation, matching, percentile and temporal stages.
type Service struct {
	embedder Embedder
	store    SimilarityStore
	gate     Gate
	temporal Aggregator
	cache    Cache
	types    ContentTypes
	dims     int
	logger   *zap.Logger
	counts   singleflight.Group
}

// New creates the orchestrator. gate and c may be nil (moderation and caching disabled).
// dims sizes the local fallback vector; 0 means domain.DefaultDimensions.
func New(
	embedder Embedder, store SimilarityStore, gate Gate, agg Aggregator, c Cache,
	types ContentTypes, dims int, logger *zap.Logger,
) *Service {
	if dims <= 0 {
		dims = domain.DefaultDimensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		embedder: embedder,
		store:    store,
		gate:     gate,
		temporal: agg,
		cache:    c,
		types:    types,
		dims:     dims,
		logger:   logger,
	}
}

// Compute classifies item against its own scope pool.
// Only invalid input, disabled content types, moderation rejections and
// cancellation are errors; every other failure degrades the result and is
// listed in Result.Flags.
func (s *Service) Compute(ctx context.Context, item content.Item) (Result, error) {
	began := time.Now()

	tc, pool, err := s.prepare(item)
	if err != nil {
		return Result{}, err
	}
	log := logpkg.FromContextOr(ctx, s.logger).With(
		zap.String("item_id", item.ID()),
		zap.String("type", string(item.Type())),
		zap.String("pool", pool.Key()),
	)
	flags := &flagSet{}

	vec, verdict, err := s.embedAndModerate(ctx, item, tc, flags, log)
	if err != nil {
		return Result{}, err
	}
	fallbackVec := flags.has(FlagFallbackEmbedding)

	t := time.Now()
	matches, cached, matchErr := s.match(ctx, vec, item, pool, tc, flags)
	observe(StageMatching, t)
	if matchErr != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("matching: %w", ctx.Err())
		}
		log.Warn("Similarity search failed, using fallback percentile", zap.Error(matchErr))
		flags.add(FlagSimilarityUnavailable)
	}

	t = time.Now()
	res, total, totalFresh, err := s.classify(ctx, pool, matches, matchErr, flags, log)
	observe(StagePercentile, t)
	if err != nil {
		return Result{}, err
	}

	t = time.Now()
	snaps, err := s.temporal.Aggregate(ctx, temporal.Query{
		Embedding:   vec,
		Pool:        pool,
		HasNegation: item.HasNegation(),
		Thresholds:  tc.Thresholds,
		ContentHash: item.ContentHash(),
		AllTime:     res,
		Fallback:    fallbackVec,
	})
	observe(StageTemporal, t)
	if err != nil {
		return Result{}, fmt.Errorf("temporal: %w", err)
	}
	for _, name := range sortedDegraded(snaps) {
		flags.add(FlagWindowDegradedPrefix + name)
	}

	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("assemble: %w", ctx.Err())
	}
	if !cached && matchErr == nil && !fallbackVec {
		s.writeBack(ctx, cache.KindSimilar, cache.SimilarKey(item.ContentHash()), matches, flags, log)
	}
	if totalFresh {
		s.writeBack(ctx, cache.KindTotalCount, cache.TotalCountKey(pool.Key()), total, flags, log)
	}

	for _, f := range flags.list {
		metrics.DegradationsTotal.WithLabelValues(reason(f)).Inc()
	}
	metrics.ComputationsTotal.WithLabelValues(string(res.Tier)).Inc()
	observe(StageAssembled, began)

	log.Debug("Uniqueness computed",
		zap.String("tier", string(res.Tier)),
		zap.Float64("percentile", res.Percentile),
		zap.Int("match_count", res.MatchCount),
		zap.Int("total", res.TotalInScope),
		zap.Strings("flags", flags.list),
		zap.Duration("duration", time.Since(began)),
	)

	return Result{
		Result:     res,
		Nearest:    matches.Nearest,
		Temporal:   snaps,
		Flags:      flags.list,
		Moderation: verdict,
		Embedding:  vec,
	}, nil
}

// Record stores item with the embedding it was computed with, making it
// visible to later computations.
func (s *Service) Record(ctx context.Context, item content.Item, vec []float32) error {
	if len(vec) == 0 {
		return domain.NewInvalidInput("embedding", "is empty")
	}
	if err := s.store.Insert(ctx, item.WithEmbedding(vec)); err != nil {
		return fmt.Errorf("record %s: %w", item.ID(), err)
	}
	return nil
}

func (s *Service) prepare(item content.Item) (TypeConfig, content.Pool, error) {
	tc, err := s.types.For(item.Type())
	if err != nil {
		return TypeConfig{}, content.Pool{}, domain.NewInvalidInput("type", err.Error())
	}
	if !tc.Allowed {
		return TypeConfig{}, content.Pool{}, fmt.Errorf("%w: %s", domain.ErrContentTypeDisabled, item.Type())
	}
	if err := content.ValidateText(item.Text(), tc.MaxTextRunes); err != nil {
		return TypeConfig{}, content.Pool{}, err //nolint:wrapcheck // already an InvalidInputError
	}
	f, err := scope.Resolve(item.Scope(), item.Location())
	if err != nil {
		return TypeConfig{}, content.Pool{}, err //nolint:wrapcheck // already an InvalidInputError
	}
	pool, err := content.NewPool(f, item.Type())
	if err != nil {
		return TypeConfig{}, content.Pool{}, domain.NewInvalidInput("type", err.Error())
	}
	return tc, pool, nil
}

// embedAndModerate runs the embedder and the moderation gate concurrently.
// A rejection cancels the embedding call.
func (s *Service) embedAndModerate(
	ctx context.Context, item content.Item, tc TypeConfig, flags *flagSet, log *zap.Logger,
) ([]float32, dommod.Verdict, error) {
	var (
		emb     domain.EmbeddingResult
		embErr  error
		outcome = modusecase.Outcome{Verdict: dommod.Approve()}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer observe(StageEmbedding, time.Now())
		emb, embErr = s.embedder.Embed(gctx, item.Text())
		if embErr != nil && gctx.Err() != nil {
			return gctx.Err() //nolint:wrapcheck // cancellation is reported as is
		}
		return nil
	})
	if s.gate != nil {
		g.Go(func() error {
			var err error
			outcome, err = s.gate.Check(gctx, item.Text(), item.Type(), tc.StrictModeration)
			return err //nolint:wrapcheck // wrapped below
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrContentRejected) {
			metrics.ComputationsTotal.WithLabelValues("rejected").Inc()
		}
		return nil, dommod.Verdict{}, fmt.Errorf("embedding: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, dommod.Verdict{}, fmt.Errorf("embedding: %w", err)
	}

	if outcome.Degradation != "" {
		flags.add(outcome.Degradation)
	}

	switch {
	case embErr != nil:
		log.Warn("Embedding failed, using local fallback vector", zap.Error(embErr))
		flags.add(FlagFallbackEmbedding)
		return embedding.FallbackVector(item.Text(), s.dims), outcome.Verdict, nil
	case emb.Fallback:
		flags.add(FlagFallbackEmbedding)
	}
	return emb.Embedding, outcome.Verdict, nil
}

// match returns the all-time matches, from cache when possible.
func (s *Service) match(
	ctx context.Context, vec []float32, item content.Item, pool content.Pool,
	tc TypeConfig, flags *flagSet,
) (content.Matches, bool, error) {
	if s.cache != nil {
		t := time.Now()
		var ms content.Matches
		hit, err := s.cache.Get(ctx, cache.KindSimilar, cache.SimilarKey(item.ContentHash()), &ms)
		observe(StageCached, t)
		if err != nil {
			flags.add(FlagCacheUnavailable)
		}
		if hit {
			return ms, true, nil
		}
	}

	ms, err := s.store.FindSimilar(ctx, vec, pool, item.HasNegation(), tc.Thresholds, nil)
	if err != nil {
		return content.Matches{}, false, fmt.Errorf("find similar: %w", err)
	}
	return ms, false, nil
}

// classify turns the match set and pool size into a percentile. The item
// itself is counted once in both numbers. It returns the stored pool size
// and whether it came from the store (to be cached).
func (s *Service) classify(
	ctx context.Context, pool content.Pool, matches content.Matches, matchErr error,
	flags *flagSet, log *zap.Logger,
) (percentile.Result, int, bool, error) {
	if matchErr != nil {
		return percentile.Fallback(), 0, false, nil
	}

	total, fresh, err := s.total(ctx, pool, flags)
	if err != nil {
		if ctx.Err() != nil {
			return percentile.Result{}, 0, false, fmt.Errorf("count: %w", ctx.Err())
		}
		log.Warn("Pool count failed, using fallback percentile", zap.Error(err))
		flags.add(FlagCountUnavailable)
		return percentile.Fallback(), 0, false, nil
	}
	return percentile.Calculate(matches.Count+1, total+1), total, fresh, nil
}

// total returns the all-time pool size. Concurrent misses for one pool share a
// single count, which runs detached from any one caller's cancellation; each
// caller still stops waiting when its own ctx is done.
func (s *Service) total(ctx context.Context, pool content.Pool, flags *flagSet) (int, bool, error) {
	key := cache.TotalCountKey(pool.Key())
	if s.cache != nil {
		var n int
		hit, err := s.cache.Get(ctx, cache.KindTotalCount, key, &n)
		if err != nil {
			flags.add(FlagCacheUnavailable)
		}
		if hit {
			return n, false, nil
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := s.counts.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(shared, sharedCountTimeout)
		defer cancel()
		return s.store.CountInScope(cctx, pool, nil)
	})
	select {
	case <-ctx.Done():
		return 0, false, fmt.Errorf("count in scope: %w", ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return 0, false, fmt.Errorf("count in scope: %w", r.Err)
		}
		return r.Val.(int), true, nil
	}
}

func (s *Service) writeBack(
	ctx context.Context, k cache.Kind, key string, v any, flags *flagSet, log *zap.Logger,
) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, k, key, v); err != nil {
		log.Warn("Cache write failed", zap.String("kind", string(k)), zap.Error(err))
		flags.add(FlagCacheUnavailable)
	}
}

func observe(stage string, since time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(since).Seconds())
}

func sortedDegraded(snaps map[string]temporal.Snapshot) []string {
	var names []string
	for name, snap := range snaps {
		if snap.Degraded {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// reason strips the window name so the metric label stays bounded.
func reason(flag string) string {
	if strings.HasPrefix(flag, FlagWindowDegradedPrefix) {
		return strings.TrimSuffix(FlagWindowDegradedPrefix, ":")
	}
	return flag
}

// flagSet keeps degradation flags unique and in first-seen order.
type flagSet struct {
	list []string
}

func (f *flagSet) add(flag string) {
	if !f.has(flag) {
		f.list = append(f.list, flag)
	}
}

func (f *flagSet) has(flag string) bool { return slices.Contains(f.list, flag) }
