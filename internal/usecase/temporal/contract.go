package temporal

import (
	"context"
	"time"

	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
)

// SimilarityStore answers windowed similarity and count queries.
type SimilarityStore interface {
	FindSimilar(
		ctx context.Context, embedding []float32, pool content.Pool,
		hasNegation bool, th content.Thresholds, windowStart *time.Time,
	) (content.Matches, error)
	CountInScope(ctx context.Context, pool content.Pool, windowStart *time.Time) (int, error)
}

// Cache stores snapshot maps.
type Cache interface {
	Get(ctx context.Context, k cache.Kind, key string, v any) (bool, error)
	Set(ctx context.Context, k cache.Kind, key string, v any) error
}
