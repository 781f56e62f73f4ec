package rarity

import (
	"context"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rarity/internal/db"
	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/window"
	"github.com/kailas-cloud/rarity/internal/usecase/uniqueness"
)

// mockEmbedder implements Embedder for tests.
type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

// memStore keeps items in memory and evaluates pool predicates with the domain filter.
// Like the real stores it counts every match and returns at most MaxCandidates.
// Its KV side always misses, so every computation reads the store.
type memStore struct {
	mu      sync.Mutex
	items   []content.Item
	pingErr error
}

func (m *memStore) FindSimilar(
	_ context.Context, embedding []float32, pool content.Pool,
	hasNegation bool, th content.Thresholds, windowStart *time.Time,
) (content.Matches, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expr := pool.SimilarityExpression(hasNegation, windowStart)
	var ms content.MatchSet
	for _, it := range m.items {
		if !expr.Matches(it) {
			continue
		}
		if sim := cosine(embedding, it.Embedding()); sim > th.Similarity {
			ms = append(ms, content.Match{CandidateID: it.ID(), Similarity: sim})
		}
	}
	slices.SortFunc(ms, func(a, b content.Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	out := content.Matches{Count: len(ms), Nearest: ms}
	if len(ms) > th.MaxCandidates {
		out.Nearest = ms[:th.MaxCandidates]
	}
	return out, nil
}

func (m *memStore) CountInScope(_ context.Context, pool content.Pool, windowStart *time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expr := pool.Expression(windowStart)
	n := 0
	for _, it := range m.items {
		if expr.Matches(it) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) Insert(_ context.Context, item content.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = slices.DeleteFunc(m.items, func(it content.Item) bool { return it.ID() == id })
	return nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) Get(context.Context, string) ([]byte, error) { return nil, db.ErrKeyNotFound }

func (m *memStore) SetWithTTL(context.Context, string, []byte, time.Duration) error { return nil }

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// newTestClient wires a Client over memStore with the local fallback embedder.
func newTestClient(t *testing.T, opts ...Option) (*Client, *memStore) {
	cfg := &clientConfig{vectorDimensions: 64, keyPrefix: "test:"}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	types, err := cfg.contentTypes()
	if err != nil {
		t.Fatalf("content types: %v", err)
	}

	t.Helper()
	ms := &memStore{}
	c := &Client{store: ms, logger: cfg.logger}
	if err := c.wire(cfg, ms, ms, types, window.Defaults()); err != nil {
		t.Fatalf("wire: %v", err)
	}
	return c, ms
}

var _ uniqueness.SimilarityStore = (*memStore)(nil)
