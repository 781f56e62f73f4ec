package content

import (
	"github.com/kailas-cloud/rarity/internal/db"
	domcontent "github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

const (
	fieldID     = "id"
	fieldHash   = "hash"
	fieldVector = "vector"
)

// buildIndex creates the FT schema for content hashes: location and kind as TAG,
// created_at as NUMERIC, the embedding as an HNSW/COSINE vector.
func buildIndex(name, prefix string, dims int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	return db.NewIndex(name).
		Prefix(prefix).
		Tag(
			scope.FieldScope, scope.FieldCity, scope.FieldState, scope.FieldCountry,
			domcontent.FieldType, domcontent.FieldNegation,
		).
		Numeric(domcontent.FieldCreatedAt).
		VectorHNSW(fieldVector, dims, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build() //nolint:wrapcheck // caller wraps
}
