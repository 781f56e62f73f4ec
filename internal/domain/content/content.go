package content

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

// Indexed attribute names owned by content items (scope owns the location ones).
const (
	FieldType      = "type"
	FieldNegation  = "negation"
	FieldCreatedAt = "created_at"
)

// Type distinguishes submission kinds.
type Type string

const (
	// TypePost is a regular activity post.
	TypePost Type = "post"
	// TypeDream is a dream journal entry.
	TypeDream Type = "dream"
)

// IsValid checks if the content type is supported.
func (t Type) IsValid() bool {
	return t == TypePost || t == TypeDream
}

// ParseType converts a raw string into a Type. Empty defaults to post.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t == "" {
		return TypePost, nil
	}
	if !t.IsValid() {
		return "", domain.NewInvalidInput("type", fmt.Sprintf("unknown value %q", s))
	}
	return t, nil
}

// Item is a submitted piece of content (immutable value object).
type Item struct {
	id             string
	text           string
	normalizedHash string
	embedding      []float32
	contentType    Type
	level          scope.Level
	location       scope.Location
	hasNegation    bool
	createdAt      time.Time
}

// Option customizes New.
type Option func(*Item)

// WithID overrides the generated id.
func WithID(id string) Option {
	return func(it *Item) { it.id = id }
}

// WithNegation overrides negation detection.
func WithNegation(negated bool) Option {
	return func(it *Item) { it.hasNegation = negated }
}

// WithCreatedAt overrides the creation time (defaults to now, UTC).
func WithCreatedAt(t time.Time) Option {
	return func(it *Item) { it.createdAt = t.UTC() }
}

// New validates and creates an Item. Negation is detected from the text
// unless WithNegation is given.
func New(text string, typ Type, level scope.Level, loc scope.Location, opts ...Option) (Item, error) {
	if err := ValidateText(text, 0); err != nil {
		return Item{}, err
	}
	if !typ.IsValid() {
		return Item{}, domain.NewInvalidInput("type", fmt.Sprintf("unknown value %q", typ))
	}
	if !level.IsValid() {
		return Item{}, domain.NewInvalidInput("scope", fmt.Sprintf("unknown value %q", level))
	}

	normalized := Normalize(text)
	it := Item{
		id:             uuid.NewString(),
		text:           text,
		normalizedHash: Hash(normalized),
		contentType:    typ,
		level:          level,
		location:       loc.Normalized(),
		hasNegation:    DetectNegation(text),
		createdAt:      time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&it)
	}
	if it.id == "" {
		return Item{}, domain.NewInvalidInput("id", "is empty")
	}
	return it, nil
}

// Reconstruct restores an Item from storage (no validation).
func Reconstruct(
	id, text, normalizedHash string, embedding []float32, typ Type,
	level scope.Level, loc scope.Location, hasNegation bool, createdAt time.Time,
) Item {
	return Item{
		id:             id,
		text:           text,
		normalizedHash: normalizedHash,
		embedding:      embedding,
		contentType:    typ,
		level:          level,
		location:       loc,
		hasNegation:    hasNegation,
		createdAt:      createdAt,
	}
}

// ID returns the item id.
func (it Item) ID() string { return it.id }

// Text returns the raw submitted text.
func (it Item) Text() string { return it.text }

// NormalizedHash returns the SHA-256 of the normalized text.
func (it Item) NormalizedHash() string { return it.normalizedHash }

// Embedding returns the vector, nil until WithEmbedding.
func (it Item) Embedding() []float32 { return it.embedding }

// Type returns the content type.
func (it Item) Type() Type { return it.contentType }

// Scope returns the declared visibility level.
func (it Item) Scope() scope.Level { return it.level }

// Location returns the normalized location.
func (it Item) Location() scope.Location { return it.location }

// HasNegation reports whether the text is a negated statement.
func (it Item) HasNegation() bool { return it.hasNegation }

// CreatedAt returns the creation time.
func (it Item) CreatedAt() time.Time { return it.createdAt }

// ContentHash identifies equivalent submissions for caching:
// same normalized text, scope, location, negation and type.
func (it Item) ContentHash() string {
	return Hash(strings.Join([]string{
		it.normalizedHash,
		string(it.level),
		it.location.City,
		it.location.State,
		it.location.Country,
		NegationTag(it.hasNegation),
		string(it.contentType),
	}, "|"))
}

// WithEmbedding returns a copy carrying the vector.
func (it Item) WithEmbedding(v []float32) Item {
	it.embedding = v
	return it
}

// Tag exposes TAG attributes for in-memory filter evaluation.
func (it Item) Tag(key string) (string, bool) {
	var v string
	switch key {
	case scope.FieldScope:
		v = string(it.level)
	case scope.FieldCity:
		v = it.location.City
	case scope.FieldState:
		v = it.location.State
	case scope.FieldCountry:
		v = it.location.Country
	case FieldType:
		v = string(it.contentType)
	case FieldNegation:
		v = NegationTag(it.hasNegation)
	}
	return v, v != ""
}

// Number exposes NUMERIC attributes for in-memory filter evaluation.
func (it Item) Number(key string) (float64, bool) {
	if key == FieldCreatedAt {
		return float64(it.createdAt.Unix()), true
	}
	return 0, false
}

// NegationTag renders the negation flag as a tag value.
func NegationTag(negated bool) string {
	return strconv.FormatBool(negated)
}

// Thresholds tune similarity matching for one content type.
// MaxCandidates caps Matches.Nearest; it never limits Matches.Count.
type Thresholds struct {
	Similarity    float64
	MaxCandidates int
}

// Radius is the cosine distance below which a candidate is strictly above Similarity.
func (t Thresholds) Radius() float64 { return 1 - t.Similarity }

// Validate checks threshold bounds.
func (t Thresholds) Validate() error {
	if t.Similarity <= 0 || t.Similarity >= 1 {
		return fmt.Errorf("similarity threshold must be in (0, 1), got %v", t.Similarity)
	}
	if t.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be positive, got %d", t.MaxCandidates)
	}
	return nil
}

// Match is one prior item judged equivalent to the query.
type Match struct {
	CandidateID string  `msgpack:"id"`
	Similarity  float64 `msgpack:"s"`
}

// MatchSet is ordered by descending similarity; every entry is strictly above the threshold.
type MatchSet []Match

// Matches answers one similarity query. Count is every pool item strictly
// above the threshold; Nearest holds at most MaxCandidates of them.
type Matches struct {
	Count   int      `msgpack:"n"`
	Nearest MatchSet `msgpack:"m"`
}
