package content

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/rarity/internal/db"
	domcontent "github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	delFn         func(ctx context.Context, key string) error
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchRangeFn func(ctx context.Context, q *db.RangeQuery) (*db.SearchResult, error)
	searchCountFn func(ctx context.Context, q *db.CountQuery) (int, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchRange(ctx context.Context, q *db.RangeQuery) (*db.SearchResult, error) {
	if m.searchRangeFn != nil {
		return m.searchRangeFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchCount(ctx context.Context, q *db.CountQuery) (int, error) {
	if m.searchCountFn != nil {
		return m.searchCountFn(ctx, q)
	}
	return 0, nil
}

const testDims = 4

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "test:", testDims), ms
}

func testVector() []float32 {
	return []float32{0.1, 0.2, 0.3, 0.4}
}

func testPool(t *testing.T, level scope.Level) domcontent.Pool {
	t.Helper()
	f, err := scope.Resolve(level, scope.Location{City: "Austin", State: "Texas", Country: "US"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	p, err := domcontent.NewPool(f, domcontent.TypePost)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	return p
}

func testItem(t *testing.T, text string) domcontent.Item {
	t.Helper()
	it, err := domcontent.New(text, domcontent.TypePost, scope.City,
		scope.Location{City: "Austin", State: "Texas", Country: "US"},
		domcontent.WithID("item-1"),
		domcontent.WithCreatedAt(time.Unix(1767225600, 0)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return it.WithEmbedding(testVector())
}

func testThresholds() domcontent.Thresholds {
	return domcontent.Thresholds{Similarity: 0.8, MaxCandidates: 10}
}
