package temporal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/percentile"
	"github.com/kailas-cloud/rarity/internal/domain/window"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
)

// Snapshot is the percentile of one submission within one look-back window.
// Matching <= Total and Total >= 1 always hold.
type Snapshot struct {
	Window      string          `msgpack:"w"`
	Total       int             `msgpack:"t"`
	Matching    int             `msgpack:"m"`
	Percentile  float64         `msgpack:"p"`
	Tier        percentile.Tier `msgpack:"r"`
	DisplayText string          `msgpack:"d"`
	// Degraded marks a placeholder used because the window could not be computed.
	Degraded bool `msgpack:"x"`
}

// Query describes the submission being placed in time.
type Query struct {
	Embedding   []float32
	Pool        content.Pool
	HasNegation bool
	Thresholds  content.Thresholds
	ContentHash string
	// AllTime is the all-time classification, used for the fast path.
	AllTime percentile.Result
	// Fallback marks a locally derived embedding; snapshots computed from it are not cached.
	Fallback bool
}

// Option customizes the Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service computes per-window snapshots concurrently.
type Service struct {
	store   SimilarityStore
	cache   Cache
	windows []window.Window
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a temporal aggregator. Empty windows means window.Defaults(); cache may be nil.
func New(store SimilarityStore, c Cache, windows []window.Window, logger *zap.Logger, opts ...Option) *Service {
	if len(windows) == 0 {
		windows = window.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: store, cache: c, windows: windows, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Windows returns the configured window set.
func (s *Service) Windows() []window.Window { return s.windows }

// Aggregate returns one snapshot per configured window, keyed by window name.
// Failing windows degrade independently; only cancellation of ctx is an error,
// in which case nothing is returned or cached.
func (s *Service) Aggregate(ctx context.Context, q Query) (map[string]Snapshot, error) {
	if q.AllTime.Tier == percentile.Elite && q.AllTime.MatchCount == 1 {
		out := make(map[string]Snapshot, len(s.windows))
		for _, w := range s.windows {
			out[w.Name()] = onlyYou(w.Name(), false)
		}
		return out, nil
	}

	key := cache.TemporalKey(q.ContentHash, q.Pool.Key()+":"+content.NegationTag(q.HasNegation))
	if s.cache != nil {
		var cached map[string]Snapshot
		hit, err := s.cache.Get(ctx, cache.KindTemporal, key, &cached)
		if err != nil {
			s.logger.Warn("Temporal cache lookup failed", zap.Error(err))
		}
		if hit && len(cached) == len(s.windows) {
			return cached, nil
		}
	}

	now := s.now()
	snaps := make([]Snapshot, len(s.windows))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range s.windows {
		g.Go(func() error {
			snap, err := s.window(gctx, q, w, now)
			if err != nil {
				s.logger.Warn("Window degraded",
					zap.String("window", w.Name()),
					zap.Error(fmt.Errorf("%w: %w", domain.ErrPartialWindowFailure, err)),
				)
				snap = onlyYou(w.Name(), true)
			}
			snaps[i] = snap
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aggregate windows: %w", err)
	}

	out := make(map[string]Snapshot, len(snaps))
	degraded := false
	for _, snap := range snaps {
		out[snap.Window] = snap
		degraded = degraded || snap.Degraded
	}

	if s.cache != nil && !degraded && !q.Fallback {
		if err := s.cache.Set(ctx, cache.KindTemporal, key, out); err != nil {
			s.logger.Warn("Failed to cache temporal snapshots", zap.Error(err))
		}
	}
	return out, nil
}

func (s *Service) window(ctx context.Context, q Query, w window.Window, now time.Time) (Snapshot, error) {
	start := w.Start(now)

	total, err := s.store.CountInScope(ctx, q.Pool, &start)
	if err != nil {
		return Snapshot{}, fmt.Errorf("count %s: %w", w.Name(), err)
	}
	matches, err := s.store.FindSimilar(ctx, q.Embedding, q.Pool, q.HasNegation, q.Thresholds, &start)
	if err != nil {
		return Snapshot{}, fmt.Errorf("find similar %s: %w", w.Name(), err)
	}

	res := percentile.Calculate(matches.Count+1, total+1)
	matching := min(res.MatchCount, res.TotalInScope)
	return Snapshot{
		Window:      w.Name(),
		Total:       res.TotalInScope,
		Matching:    matching,
		Percentile:  res.Percentile,
		Tier:        res.Tier,
		DisplayText: res.DisplayText,
	}, nil
}

func onlyYou(name string, degraded bool) Snapshot {
	return Snapshot{
		Window:      name,
		Total:       1,
		Matching:    1,
		Tier:        percentile.Elite,
		DisplayText: percentile.OnlyYou,
		Degraded:    degraded,
	}
}
