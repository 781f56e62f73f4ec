package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	dommod "github.com/kailas-cloud/rarity/internal/domain/moderation"
	"github.com/kailas-cloud/rarity/internal/metrics"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 3 * time.Second

// Degradation flags reported when the gate approves without a provider answer.
const (
	FlagTimeout     = "moderation_timeout"
	FlagUnavailable = "moderation_unavailable"
)

// Outcome is the gate decision for one submission.
type Outcome struct {
	Verdict dommod.Verdict
	// Degradation is empty when the provider answered (or the cache did).
	Degradation string
}

// Service gates submissions through the moderator with a timeout and a verdict cache.
type Service struct {
	moderator Moderator
	cache     Cache
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a gate. A nil moderator approves everything; cache may be nil.
func New(m Moderator, c Cache, timeout time.Duration, logger *zap.Logger) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{moderator: m, cache: c, timeout: timeout, logger: logger}
}

// Check moderates text. An explicit rejection returns domain.ErrContentRejected.
// Provider timeouts and failures approve provisionally and set Degradation.
// Cancellation of ctx itself is returned as an error.
func (s *Service) Check(ctx context.Context, text string, typ content.Type, strict bool) (Outcome, error) {
	if s.moderator == nil {
		metrics.ModerationTotal.WithLabelValues("disabled").Inc()
		return Outcome{Verdict: dommod.Approve()}, nil
	}

	key := verdictKey(text, strict)
	if v, ok := s.cached(ctx, key); ok {
		return s.decide(v, "cached")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.moderator.Moderate(callCtx, text, typ, dommod.Context{Strict: strict})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, fmt.Errorf("moderate: %w", ctx.Err())
		}
		return s.provisional(err), nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cache.KindModeration, key, v); err != nil {
			s.logger.Warn("Failed to cache moderation verdict", zap.Error(err))
		}
	}
	return s.decide(v, "")
}

func (s *Service) cached(ctx context.Context, key string) (dommod.Verdict, bool) {
	if s.cache == nil {
		return dommod.Verdict{}, false
	}
	var v dommod.Verdict
	hit, err := s.cache.Get(ctx, cache.KindModeration, key, &v)
	if err != nil {
		s.logger.Warn("Moderation cache lookup failed", zap.Error(err))
		return dommod.Verdict{}, false
	}
	return v, hit
}

func (s *Service) decide(v dommod.Verdict, source string) (Outcome, error) {
	outcome := "approved"
	if !v.Approved {
		outcome = "rejected"
	}
	if source != "" {
		outcome += "_" + source
	}
	metrics.ModerationTotal.WithLabelValues(outcome).Inc()

	if !v.Approved {
		return Outcome{Verdict: v}, fmt.Errorf("%w: %s", domain.ErrContentRejected, strings.Join(v.Flags, ","))
	}
	return Outcome{Verdict: v}, nil
}

func (s *Service) provisional(err error) Outcome {
	flag := FlagUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		flag = FlagTimeout
		err = fmt.Errorf("%w: %w", domain.ErrModerationTimeout, err)
	}
	s.logger.Warn("Moderation skipped, approving provisionally",
		zap.String("reason", flag),
		zap.Error(err),
	)
	metrics.ModerationTotal.WithLabelValues(strings.TrimPrefix(flag, "moderation_")).Inc()

	v := dommod.Approve()
	v.Provisional = true
	return Outcome{Verdict: v, Degradation: flag}
}

// verdictKey separates strict verdicts from lenient ones for the same text.
func verdictKey(text string, strict bool) string {
	key := cache.ModerationKey(text)
	if strict {
		key += ":strict"
	}
	return key
}
