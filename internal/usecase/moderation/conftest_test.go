package moderation

import (
	"context"
	"errors"

	"github.com/kailas-cloud/rarity/internal/domain/content"
	dommod "github.com/kailas-cloud/rarity/internal/domain/moderation"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
)

type mockModerator struct {
	moderateFn func(ctx context.Context, text string, mctx dommod.Context) (dommod.Verdict, error)
	calls      int
}

func (m *mockModerator) Moderate(
	ctx context.Context, text string, _ content.Type, mctx dommod.Context,
) (dommod.Verdict, error) {
	m.calls++
	if m.moderateFn != nil {
		return m.moderateFn(ctx, text, mctx)
	}
	return dommod.Approve(), nil
}

type mockCache struct {
	data   map[string]dommod.Verdict
	getErr error
	sets   int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]dommod.Verdict)}
}

func (m *mockCache) Get(_ context.Context, k cache.Kind, key string, v any) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	got, ok := m.data[string(k)+":"+key]
	if !ok {
		return false, nil
	}
	dst, ok := v.(*dommod.Verdict)
	if !ok {
		return false, errors.New("unexpected target type")
	}
	*dst = got
	return true, nil
}

func (m *mockCache) Set(_ context.Context, k cache.Kind, key string, v any) error {
	m.sets++
	m.data[string(k)+":"+key] = v.(dommod.Verdict)
	return nil
}
