package content

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/kailas-cloud/rarity/internal/db"
	"github.com/kailas-cloud/rarity/internal/domain"
	domcontent "github.com/kailas-cloud/rarity/internal/domain/content"
)

// store is the consumer interface for the content pool (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchRange(ctx context.Context, q *db.RangeQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, q *db.CountQuery) (int, error)
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo stores submitted items as hashes under one FT index and answers
// similarity and count queries against it.
type Repo struct {
	store     store
	keyPrefix string
	dims      int
	hnsw      HNSWConfig
}

// New creates a content repository. An empty keyPrefix falls back to domain.DefaultKeyPrefix.
func New(s store, keyPrefix string, dims int) *Repo {
	if keyPrefix == "" {
		keyPrefix = domain.DefaultKeyPrefix
	}
	if dims <= 0 {
		dims = domain.DefaultDimensions
	}
	return &Repo{store: s, keyPrefix: keyPrefix, dims: dims, hnsw: HNSWConfig{M: 16, EFConstruct: 200}}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Dimensions returns the vector dimension the index is built for.
func (r *Repo) Dimensions() int { return r.dims }

// EnsureIndex creates the content index unless it already exists, then
// verifies that the server answers vector range queries. Match counts depend
// on them, so a search module without range support fails here instead of
// degrading every computation.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	name := r.indexName()
	exists, err := r.store.IndexExists(ctx, name)
	if err != nil {
		return fmt.Errorf("check index %s: %w", name, err)
	}
	if !exists {
		def, err := buildIndex(name, r.itemPrefix(), r.dims, r.hnsw)
		if err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return r.checkRangeSupport(ctx)
}

// checkRangeSupport runs a count-only range query against the index.
func (r *Repo) checkRangeSupport(ctx context.Context) error {
	unit := make([]float32, r.dims)
	unit[0] = 1
	_, err := r.store.SearchRange(ctx, &db.RangeQuery{
		IndexName:   r.indexName(),
		VectorField: fieldVector,
		Vector:      unit,
		Radius:      1,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrQueryRejected):
		return fmt.Errorf("index %s: %w (use the redis or postgres driver): %w",
			r.indexName(), domain.ErrRangeQueryUnsupported, err)
	default:
		return fmt.Errorf("check range query support on %s: %w", r.indexName(), err)
	}
}

// Insert writes the item into the pool. The item must carry an embedding of the index dimension.
func (r *Repo) Insert(ctx context.Context, item domcontent.Item) error {
	if len(item.Embedding()) != r.dims {
		return fmt.Errorf("insert %s: %w: got %d, want %d",
			item.ID(), domain.ErrVectorDimMismatch, len(item.Embedding()), r.dims)
	}
	if err := r.store.HSet(ctx, r.itemKey(item.ID()), buildHashFields(item)); err != nil {
		return fmt.Errorf("insert %s: %w", item.ID(), err)
	}
	return nil
}

// Delete removes an item from the pool.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.itemKey(id)); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// FindSimilar counts prior items of the pool whose similarity to embedding is
// strictly above the threshold and whose negation flag equals hasNegation,
// and returns the nearest th.MaxCandidates of them.
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

	q := &db.RangeQuery{
		IndexName:   r.indexName(),
		VectorField: fieldVector,
		Filters:     pool.SimilarityExpression(hasNegation, windowStart),
		Vector:      embedding,
		// VECTOR_RANGE is inclusive; the step down keeps the bound strict.
		Radius:       math.Nextafter(th.Radius(), 0),
		Limit:        th.MaxCandidates,
		ReturnFields: []string{fieldID},
	}

	sr, err := r.store.SearchRange(ctx, q)
	if err != nil {
		return domcontent.Matches{}, fmt.Errorf("find similar in %s: %w", pool.Key(), err)
	}

	out := domcontent.Matches{Nearest: r.toMatchSet(sr, th.Similarity)}
	out.Count = len(out.Nearest)
	if sr != nil {
		out.Count = max(out.Count, sr.Total)
	}
	return out, nil
}

// CountInScope counts every item of the pool, ignoring negation.
func (r *Repo) CountInScope(ctx context.Context, pool domcontent.Pool, windowStart *time.Time) (int, error) {
	n, err := r.store.SearchCount(ctx, &db.CountQuery{
		IndexName: r.indexName(),
		Filters:   pool.Expression(windowStart),
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", pool.Key(), err)
	}
	return n, nil
}

func (r *Repo) toMatchSet(sr *db.SearchResult, threshold float64) domcontent.MatchSet {
	out := domcontent.MatchSet{}
	if sr == nil {
		return out
	}
	for _, e := range sr.Entries {
		if e.Score <= threshold {
			continue
		}
		id := e.Fields[fieldID]
		if id == "" {
			id = strings.TrimPrefix(e.Key, r.itemPrefix())
		}
		out = append(out, domcontent.Match{CandidateID: id, Similarity: e.Score})
	}
	slices.SortStableFunc(out, func(a, b domcontent.Match) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	return out
}

func (r *Repo) indexName() string        { return r.keyPrefix + "content:idx" }
func (r *Repo) itemPrefix() string       { return r.keyPrefix + "content:" }
func (r *Repo) itemKey(id string) string { return r.itemPrefix() + id }
