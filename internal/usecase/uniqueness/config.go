package uniqueness

import (
	"fmt"

	"github.com/kailas-cloud/rarity/internal/domain/content"
)

// TypeConfig tunes the pipeline for one content type.
type TypeConfig struct {
	Thresholds       content.Thresholds
	Allowed          bool
	StrictModeration bool
	// MaxTextRunes rejects longer submissions; 0 disables the limit.
	MaxTextRunes int
}

// ContentTypes holds one TypeConfig per supported content type.
type ContentTypes struct {
	Post  TypeConfig
	Dream TypeConfig
}

// DefaultContentTypes returns the production tuning: posts and dreams allowed,
// dreams matched more loosely and moderated strictly.
func DefaultContentTypes() ContentTypes {
	return ContentTypes{
		Post: TypeConfig{
			Thresholds:   content.Thresholds{Similarity: 0.85, MaxCandidates: 100},
			Allowed:      true,
			MaxTextRunes: 500,
		},
		Dream: TypeConfig{
			Thresholds:       content.Thresholds{Similarity: 0.75, MaxCandidates: 100},
			Allowed:          true,
			StrictModeration: true,
			MaxTextRunes:     2000,
		},
	}
}

// For returns the config of typ.
func (c ContentTypes) For(typ content.Type) (TypeConfig, error) {
	switch typ {
	case content.TypePost:
		return c.Post, nil
	case content.TypeDream:
		return c.Dream, nil
	}
	return TypeConfig{}, fmt.Errorf("no config for content type %q", typ)
}

// Validate checks thresholds of every allowed type.
func (c ContentTypes) Validate() error {
	for typ, tc := range map[content.Type]TypeConfig{content.TypePost: c.Post, content.TypeDream: c.Dream} {
		if !tc.Allowed {
			continue
		}
		if err := tc.Thresholds.Validate(); err != nil {
			return fmt.Errorf("%s: %w", typ, err)
		}
		if tc.MaxTextRunes < 0 {
			return fmt.Errorf("%s: max text runes must not be negative", typ)
		}
	}
	return nil
}
