package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/moderation"
	"github.com/kailas-cloud/rarity/internal/metrics"
)

// DefaultStrictThreshold is the category score that rejects content in strict mode.
const DefaultStrictThreshold = 0.4

const defaultModerationModel = "omni-moderation-latest"

// Moderator classifies text with the OpenAI moderation endpoint.
type Moderator struct {
	client          *openai.Client
	model           string
	strictThreshold float64
	logger          *zap.Logger
}

// NewModerator creates a moderation provider. strictThreshold <= 0 uses DefaultStrictThreshold.
func NewModerator(cfg *Config, strictThreshold float64) *Moderator {
	if strictThreshold <= 0 {
		strictThreshold = DefaultStrictThreshold
	}
	model := cfg.Model
	if model == "" {
		model = defaultModerationModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Moderator{
		client:          newClient(cfg),
		model:           model,
		strictThreshold: strictThreshold,
		logger:          logger,
	}
}

// Moderate implements moderation.Moderator. The provider's flag rejects; in strict
// mode any category scoring at or above the strict threshold rejects as well.
func (m *Moderator) Moderate(
	ctx context.Context, text string, typ content.Type, mctx moderation.Context,
) (moderation.Verdict, error) {
	start := time.Now()
	resp, err := m.client.Moderations(ctx, openai.ModerationRequest{Input: text, Model: m.model})
	if err != nil {
		metrics.ModerationRequestDuration.WithLabelValues(m.model, "error").Observe(time.Since(start).Seconds())
		return moderation.Verdict{}, parseAPIError(err, domain.ErrModerationProviderError)
	}
	metrics.ModerationRequestDuration.WithLabelValues(m.model, "success").Observe(time.Since(start).Seconds())

	if len(resp.Results) == 0 {
		return moderation.Verdict{}, fmt.Errorf("empty moderation response: %w", domain.ErrModerationProviderError)
	}

	res := resp.Results[0]
	categories, scores, err := decodeCategories(res)
	if err != nil {
		return moderation.Verdict{}, fmt.Errorf("decode moderation result: %w", domain.ErrModerationProviderError)
	}

	var flags []string
	var confidence float64
	for name, score := range scores {
		confidence = max(confidence, score)
		if categories[name] || (mctx.Strict && score >= m.strictThreshold) {
			flags = append(flags, name)
		}
	}
	sort.Strings(flags)
	if res.Flagged && len(flags) == 0 {
		flags = []string{"flagged"}
	}

	approved := !res.Flagged && len(flags) == 0
	m.logger.Debug("Moderation verdict",
		zap.String("type", string(typ)),
		zap.Bool("approved", approved),
		zap.Strings("flags", flags),
		zap.Bool("strict", mctx.Strict),
	)

	return moderation.Verdict{Approved: approved, Flags: flags, Confidence: confidence}, nil
}

// decodeCategories flattens the typed category structs into name-keyed maps.
func decodeCategories(res openai.Result) (map[string]bool, map[string]float64, error) {
	rawCats, err := json.Marshal(res.Categories)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // wrapped by caller
	}
	rawScores, err := json.Marshal(res.CategoryScores)
	if err != nil {
		return nil, nil, err //nolint:wrapcheck // wrapped by caller
	}
	cats := map[string]bool{}
	scores := map[string]float64{}
	if err := json.Unmarshal(rawCats, &cats); err != nil {
		return nil, nil, err //nolint:wrapcheck // wrapped by caller
	}
	if err := json.Unmarshal(rawScores, &scores); err != nil {
		return nil, nil, err //nolint:wrapcheck // wrapped by caller
	}
	return cats, scores, nil
}
