package temporal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/percentile"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
)

// testNow is 2026-01-15 12:00 UTC.
var testNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

type mockStore struct {
	findFn     func(ctx context.Context, start *time.Time) (content.Matches, error)
	countFn    func(ctx context.Context, start *time.Time) (int, error)
	findCalls  atomic.Int32
	countCalls atomic.Int32
}

func (m *mockStore) FindSimilar(
	ctx context.Context, _ []float32, _ content.Pool,
	_ bool, _ content.Thresholds, windowStart *time.Time,
) (content.Matches, error) {
	m.findCalls.Add(1)
	if m.findFn != nil {
		return m.findFn(ctx, windowStart)
	}
	return content.Matches{}, nil
}

func (m *mockStore) CountInScope(ctx context.Context, _ content.Pool, windowStart *time.Time) (int, error) {
	m.countCalls.Add(1)
	if m.countFn != nil {
		return m.countFn(ctx, windowStart)
	}
	return 0, nil
}

type mockCache struct {
	mu   sync.Mutex
	data map[string]map[string]Snapshot
	sets int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]map[string]Snapshot)}
}

func (m *mockCache) Get(_ context.Context, k cache.Kind, key string, v any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	got, ok := m.data[string(k)+":"+key]
	if !ok {
		return false, nil
	}
	dst, ok := v.(*map[string]Snapshot)
	if !ok {
		return false, errors.New("unexpected target type")
	}
	*dst = got
	return true, nil
}

func (m *mockCache) Set(_ context.Context, k cache.Kind, key string, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.data[string(k)+":"+key] = v.(map[string]Snapshot)
	return nil
}

func testQuery(allTime percentile.Result) Query {
	f := scope.MustResolve(scope.State, scope.Location{State: "Texas"})
	pool, _ := content.NewPool(f, content.TypePost)
	return Query{
		Embedding:   []float32{1, 0, 0},
		Pool:        pool,
		Thresholds:  content.Thresholds{Similarity: 0.8, MaxCandidates: 50},
		ContentHash: "abc",
		AllTime:     allTime,
	}
}

func matches(n int) content.Matches {
	nearest := make(content.MatchSet, min(n, 50))
	for i := range nearest {
		nearest[i] = content.Match{CandidateID: "c", Similarity: 0.9}
	}
	return content.Matches{Count: n, Nearest: nearest}
}

func newTestService(store SimilarityStore, c Cache) *Service {
	return New(store, c, nil, nil, WithClock(func() time.Time { return testNow }))
}
