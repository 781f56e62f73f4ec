package moderation

import (
	"context"

	"github.com/kailas-cloud/rarity/internal/domain/content"
)

// Verdict is the outcome of a moderation check.
type Verdict struct {
	Approved   bool     `msgpack:"a"`
	Flags      []string `msgpack:"f"`
	Confidence float64  `msgpack:"c"`
	// Provisional marks an approval granted without an answer from the provider.
	Provisional bool `msgpack:"-"`
}

// Context carries per-request moderation settings.
type Context struct {
	// Strict rejects on any category score at or above the strict threshold,
	// not only on the provider's own flag.
	Strict bool
}

// Moderator classifies submitted text.
type Moderator interface {
	Moderate(ctx context.Context, text string, typ content.Type, mctx Context) (Verdict, error)
}

// Approve is the verdict for content that passed or was never checked.
func Approve() Verdict {
	return Verdict{Approved: true}
}
