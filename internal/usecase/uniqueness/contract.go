package uniqueness

import (
	"context"
	"time"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
	modusecase "github.com/kailas-cloud/rarity/internal/usecase/moderation"
	"github.com/kailas-cloud/rarity/internal/usecase/temporal"
)

// Embedder vectorizes submission text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// SimilarityStore finds, counts and records content items.
type SimilarityStore interface {
	FindSimilar(
		ctx context.Context, embedding []float32, pool content.Pool,
		hasNegation bool, th content.Thresholds, windowStart *time.Time,
	) (content.Matches, error)
	CountInScope(ctx context.Context, pool content.Pool, windowStart *time.Time) (int, error)
	Insert(ctx context.Context, item content.Item) error
}

// Gate moderates submissions.
type Gate interface {
	Check(ctx context.Context, text string, typ content.Type, strict bool) (modusecase.Outcome, error)
}

// Aggregator computes per-window snapshots.
type Aggregator interface {
	Aggregate(ctx context.Context, q temporal.Query) (map[string]temporal.Snapshot, error)
}

// Cache stores intermediate results.
type Cache interface {
	Get(ctx context.Context, k cache.Kind, key string, v any) (bool, error)
	Set(ctx context.Context, k cache.Kind, key string, v any) error
}
