package uniqueness

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/rarity/internal/db"
	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	dommod "github.com/kailas-cloud/rarity/internal/domain/moderation"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
	"github.com/kailas-cloud/rarity/internal/repository/cache"
	modusecase "github.com/kailas-cloud/rarity/internal/usecase/moderation"
	"github.com/kailas-cloud/rarity/internal/usecase/temporal"
)

const testDims = 3

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return domain.EmbeddingResult{}, err
	}
	return m.result, m.err
}

// mockStore answers all-time queries (nil windowStart) and windowed ones separately.
type mockStore struct {
	allTimeMatches int
	allTimeTotal   int
	findErr        error
	countErr       error
	windowFindErr  error
	// countFn replaces the fixed answers of CountInScope when set.
	countFn func(ctx context.Context, windowStart *time.Time) (int, error)

	findCalls   atomic.Int32
	countCalls  atomic.Int32
	allTimeFind atomic.Int32

	mu       sync.Mutex
	inserted []content.Item
}

func (m *mockStore) FindSimilar(
	_ context.Context, _ []float32, _ content.Pool,
	_ bool, th content.Thresholds, windowStart *time.Time,
) (content.Matches, error) {
	m.findCalls.Add(1)
	if windowStart == nil {
		m.allTimeFind.Add(1)
		if m.findErr != nil {
			return content.Matches{}, m.findErr
		}
	} else if m.windowFindErr != nil {
		return content.Matches{}, m.windowFindErr
	}
	nearest := make(content.MatchSet, min(m.allTimeMatches, th.MaxCandidates))
	for i := range nearest {
		nearest[i] = content.Match{CandidateID: "prior", Similarity: 0.95}
	}
	return content.Matches{Count: m.allTimeMatches, Nearest: nearest}, nil
}

func (m *mockStore) CountInScope(ctx context.Context, _ content.Pool, windowStart *time.Time) (int, error) {
	m.countCalls.Add(1)
	if m.countFn != nil {
		return m.countFn(ctx, windowStart)
	}
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.allTimeTotal, nil
}

func (m *mockStore) Insert(_ context.Context, item content.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, item)
	return nil
}

type mockGate struct {
	checkFn func(ctx context.Context, text string, strict bool) (modusecase.Outcome, error)
}

func (m *mockGate) Check(ctx context.Context, text string, _ content.Type, strict bool) (modusecase.Outcome, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, text, strict)
	}
	return modusecase.Outcome{Verdict: dommod.Approve()}, nil
}

// mapKV is an in-memory db.KVStore subset for the real cache.
type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mapKV) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func newTestCache() *cache.Cache {
	return newTestCacheOver(&mapKV{data: make(map[string][]byte)})
}

func newTestCacheOver(kv *mapKV) *cache.Cache {
	return cache.New(kv, "t:", cache.TTLs{}, nil, nil)
}

func testEmbedder() *mockEmbedder {
	return &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 0, 0}}}
}

// newTestService wires the orchestrator with a real temporal aggregator over store.
func newTestService(emb Embedder, store *mockStore, gate Gate, c Cache) *Service {
	var tc temporal.Cache
	if c != nil {
		tc = c
	}
	agg := temporal.New(store, tc, nil, nil)
	return New(emb, store, gate, agg, c, DefaultContentTypes(), testDims, nil)
}

func testItem(t *testing.T, text string) content.Item {
	t.Helper()
	it, err := content.New(text, content.TypePost, scope.State, scope.Location{State: "Texas", Country: "US"})
	if err != nil {
		t.Fatalf("new item: %v", err)
	}
	return it
}
