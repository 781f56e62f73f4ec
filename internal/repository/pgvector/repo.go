package pgvector

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/rarity/internal/domain"
	domcontent "github.com/kailas-cloud/rarity/internal/domain/content"
)

// DefaultTable is the table holding content items.
const DefaultTable = "content_items"

// querier is the consumer interface over pgxpool.Pool (ISP).
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is the Postgres + pgvector content pool.
type Repo struct {
	q     querier
	table string
	dims  int
}

// New creates a pgvector repository.
func New(q querier, dims int) *Repo {
	if dims <= 0 {
		dims = domain.DefaultDimensions
	}
	return &Repo{q: q, table: DefaultTable, dims: dims}
}

// Dimensions returns the vector dimension of the embedding column.
func (r *Repo) Dimensions() int { return r.dims }

// EnsureSchema creates the extension, table and indexes if missing.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			hash TEXT NOT NULL,
			scope TEXT NOT NULL,
			city TEXT,
			state TEXT,
			country TEXT,
			type TEXT NOT NULL,
			negation BOOLEAN NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			embedding vector(%d) NOT NULL
		)`, r.table, r.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops)`, r.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_pool_idx ON %[1]s (type, scope, created_at)`, r.table),
	}
	for _, stmt := range stmts {
		if _, err := r.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Insert stores the item. Re-inserting an existing id is a no-op.
func (r *Repo) Insert(ctx context.Context, item domcontent.Item) error {
	if len(item.Embedding()) != r.dims {
		return fmt.Errorf("insert %s: %w: got %d, want %d",
			item.ID(), domain.ErrVectorDimMismatch, len(item.Embedding()), r.dims)
	}
	loc := item.Location()
	stmt := `INSERT INTO ` + r.table + ` (id, hash, scope, city, state, country, type, negation, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector)
		ON CONFLICT (id) DO NOTHING`
	_, err := r.q.Exec(ctx, stmt,
		item.ID(),
		item.NormalizedHash(),
		string(item.Scope()),
		nullIfEmpty(loc.City),
		nullIfEmpty(loc.State),
		nullIfEmpty(loc.Country),
		string(item.Type()),
		item.HasNegation(),
		item.CreatedAt(),
		pgvector.NewVector(item.Embedding()),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", item.ID(), err)
	}
	return nil
}

// Delete removes an item.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM `+r.table+` WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// FindSimilar counts the items of the pool with the same negation flag whose
// cosine similarity is strictly above th.Similarity and returns the nearest
// th.MaxCandidates of them. The candidates are materialized before ordering so
// the HNSW index, which stops after hnsw.ef_search rows, never truncates the count.
func (r *Repo) FindSimilar(
	ctx context.Context, embedding []float32, pool domcontent.Pool,
	hasNegation bool, th domcontent.Thresholds, windowStart *time.Time,
) (domcontent.Matches, error) {
	if len(embedding) != r.dims {
		return domcontent.Matches{}, fmt.Errorf("find similar: %w: got %d, want %d",
			domain.ErrVectorDimMismatch, len(embedding), r.dims)
	}
	if err := th.Validate(); err != nil {
		return domcontent.Matches{}, fmt.Errorf("find similar: %w", err)
	}

	b := &whereBuilder{}
	vec := b.placeholder(pgvector.NewVector(embedding))
	where, err := b.build(pool.SimilarityExpression(hasNegation, windowStart))
	if err != nil {
		return domcontent.Matches{}, fmt.Errorf("find similar: %w", err)
	}
	radius := b.placeholder(th.Radius())
	limit := b.placeholder(th.MaxCandidates)

	query := `
		WITH hits AS MATERIALIZED (
			SELECT id, embedding <=> ` + vec + `::vector AS distance
			FROM ` + r.table + `
			WHERE ` + where + ` AND embedding <=> ` + vec + `::vector < ` + radius + `
		)
		SELECT id, 1 - distance AS score, (SELECT count(*) FROM hits) AS total
		FROM hits
		ORDER BY distance
		LIMIT ` + limit

	rows, err := r.q.Query(ctx, query, b.args...)
	if err != nil {
		return domcontent.Matches{}, fmt.Errorf("find similar in %s: %w", pool.Key(), err)
	}
	defer rows.Close()

	out := domcontent.Matches{Nearest: domcontent.MatchSet{}}
	for rows.Next() {
		var (
			m     domcontent.Match
			total int64
		)
		if err := rows.Scan(&m.CandidateID, &m.Similarity, &total); err != nil {
			return domcontent.Matches{}, fmt.Errorf("scan similar: %w", err)
		}
		out.Count = int(total)
		m.Similarity = min(1, max(0, m.Similarity))
		if m.Similarity > th.Similarity {
			out.Nearest = append(out.Nearest, m)
		}
	}
	if err := rows.Err(); err != nil {
		return domcontent.Matches{}, fmt.Errorf("iterate similar: %w", err)
	}
	out.Count = max(out.Count, len(out.Nearest))
	return out, nil
}

// CountInScope counts every item of the pool, ignoring negation.
func (r *Repo) CountInScope(ctx context.Context, pool domcontent.Pool, windowStart *time.Time) (int, error) {
	b := &whereBuilder{}
	where, err := b.build(pool.Expression(windowStart))
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}

	var n int64
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM `+r.table+` WHERE `+where, b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", pool.Key(), err)
	}
	return int(n), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
