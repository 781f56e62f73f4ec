package moderation

import (
	"context"

	"github.com/kailas-cloud/rarity/internal/domain/content"
	dommod "github.com/kailas-cloud/rarity/internal/domain/moderation"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
)

// Moderator classifies text through an external provider.
type Moderator interface {
	Moderate(ctx context.Context, text string, typ content.Type, mctx dommod.Context) (dommod.Verdict, error)
}

// Cache stores provider verdicts.
type Cache interface {
	Get(ctx context.Context, k cache.Kind, key string, v any) (bool, error)
	Set(ctx context.Context, k cache.Kind, key string, v any) error
}
