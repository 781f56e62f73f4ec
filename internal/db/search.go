package db

import "github.com/kailas-cloud/rarity/internal/domain/filter"

// RangeQuery selects every document within Radius cosine distance of Vector.
// SearchResult.Total counts all of them; at most Limit, nearest first, are
// returned. Limit 0 only counts.
type RangeQuery struct {
	IndexName    string
	VectorField  string
	Filters      filter.Expression
	Vector       []float32
	Radius       float64
	Limit        int
	ReturnFields []string
}

// CountQuery counts documents matching a filter without fetching them.
type CountQuery struct {
	IndexName string
	Filters   filter.Expression
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
// Score is cosine similarity in [0, 1] for vector hits.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
