package pgvector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	domcontent "github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

// mockQuerier implements the consumer interface for tests.
type mockQuerier struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
}

func (m *mockQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFn != nil {
		return m.execFn(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (m *mockQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, sql, args...)
	}
	return &fakeRows{}, nil
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFn != nil {
		return m.queryRowFn(ctx, sql, args...)
	}
	return fakeRow{values: []any{int64(0)}}
}

// fakeRows serves (id, score, total) tuples.
type fakeRows struct {
	data   [][]any
	pos    int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return scanInto(r.data[r.pos-1], dest)
}

func (r *fakeRows) Values() ([]any, error) {
	return r.data[r.pos-1], nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("scan: column count mismatch")
	}
	for i, v := range values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *float64:
			*d = v.(float64)
		case *int64:
			*d = v.(int64)
		default:
			return errors.New("scan: unsupported destination")
		}
	}
	return nil
}

const testDims = 3

func newTestRepo(t *testing.T) (*Repo, *mockQuerier) {
	t.Helper()
	mq := &mockQuerier{}
	return New(mq, testDims), mq
}

func testVector() []float32 {
	return []float32{0.1, 0.2, 0.3}
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

func testItem(t *testing.T) domcontent.Item {
	t.Helper()
	it, err := domcontent.New("I never skip leg day", domcontent.TypePost, scope.State,
		scope.Location{State: "Texas", Country: "US"},
		domcontent.WithID("item-7"),
		domcontent.WithCreatedAt(time.Unix(1700000000, 0)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return it.WithEmbedding(testVector())
}
