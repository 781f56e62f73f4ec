package content

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/filter"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

var austin = scope.Location{City: "Austin", State: "Texas", Country: "US"}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"I ran today!", "i ran today"},
		{"  I   RAN\ttoday  ", "i ran today"},
		{"I didn’t run.", "i didn't run"},
		{"...wow...", "wow"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHash_StableAcrossFormatting(t *testing.T) {
	a := Hash(Normalize("I ran today!"))
	b := Hash(Normalize("  i RAN today "))
	if a != b {
		t.Error("equivalent texts should share a normalized hash")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestDetectNegation(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"I ran today", false},
		{"I did not run today", true},
		{"I didn't run today", true},
		{"I didn’t run today", true},
		{"Never been to Paris", true},
		{"No coffee this morning", true},
		{"I know nothing", true},
		{"Nothingness is a concept", false},
		{"I noticed a bird", false},
	}
	for _, tt := range tests {
		if got := DetectNegation(tt.text); got != tt.want {
			t.Errorf("DetectNegation(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("   ", 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank text, got %v", err)
	}
	if err := ValidateText(strings.Repeat("я", 11), 10); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for long text, got %v", err)
	}
	if err := ValidateText(strings.Repeat("я", 10), 10); err != nil {
		t.Errorf("limit counts runes, not bytes: %v", err)
	}
	if err := ValidateText(strings.Repeat("x", 10000), 0); err != nil {
		t.Errorf("zero limit disables the check: %v", err)
	}
}

func TestParseType(t *testing.T) {
	if typ, err := ParseType(""); err != nil || typ != TypePost {
		t.Errorf("empty should default to post, got %q %v", typ, err)
	}
	if typ, err := ParseType("Dream"); err != nil || typ != TypeDream {
		t.Errorf("expected dream, got %q %v", typ, err)
	}
	if _, err := ParseType("poem"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNew(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	it, err := New("I didn't run today", TypePost, scope.City, austin, WithCreatedAt(created))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.ID() == "" {
		t.Error("expected generated id")
	}
	if !it.HasNegation() {
		t.Error("expected detected negation")
	}
	if it.Location().City != "austin" {
		t.Errorf("expected normalized location, got %+v", it.Location())
	}
	if it.CreatedAt().Location() != time.UTC {
		t.Error("created at should be UTC")
	}
	if it.NormalizedHash() != Hash("i didn't run today") {
		t.Error("unexpected normalized hash")
	}
}

func TestNew_Options(t *testing.T) {
	it, err := New("I ran", TypeDream, scope.World, scope.Location{}, WithID("fixed"), WithNegation(true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if it.ID() != "fixed" || !it.HasNegation() || it.Type() != TypeDream {
		t.Errorf("options not applied: %+v", it)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		typ   Type
		level scope.Level
		opts  []Option
	}{
		{"empty text", "", TypePost, scope.City, nil},
		{"bad type", "x", Type("poem"), scope.City, nil},
		{"bad scope", "x", TypePost, scope.Level("galaxy"), nil},
		{"empty id", "x", TypePost, scope.City, []Option{WithID("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.text, tt.typ, tt.level, austin, tt.opts...)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestItem_WithEmbeddingCopies(t *testing.T) {
	it, _ := New("x", TypePost, scope.City, austin)
	withVec := it.WithEmbedding([]float32{1, 2})
	if it.Embedding() != nil {
		t.Error("receiver must not be modified")
	}
	if len(withVec.Embedding()) != 2 {
		t.Error("expected embedding on copy")
	}
}

func TestItem_FilterDocument(t *testing.T) {
	created := time.Unix(1_700_000_000, 0)
	it, _ := New("I did not run", TypePost, scope.City, austin, WithCreatedAt(created))

	neg, _ := filter.NewMatch(FieldNegation, NegationTag(true))
	typ, _ := filter.NewMatch(FieldType, string(TypePost))
	since, _ := filter.NewRange(FieldCreatedAt, filter.AtLeast(float64(created.Unix())))

	f := scope.MustResolve(scope.State, scope.Location{State: "texas"})
	expr := f.Expression().WithMust(neg, typ, since)
	if !expr.Matches(it) {
		t.Error("expected item to match state filter with negation, type and window")
	}

	notNeg, _ := filter.NewMatch(FieldNegation, NegationTag(false))
	if f.Expression().WithMust(notNeg).Matches(it) {
		t.Error("negated item must not match a non-negated query")
	}

	later, _ := filter.NewRange(FieldCreatedAt, filter.AtLeast(float64(created.Unix()+1)))
	if f.Expression().WithMust(later).Matches(it) {
		t.Error("item created before window start must not match")
	}
}

func TestThresholds_Validate(t *testing.T) {
	valid := Thresholds{Similarity: 0.85, MaxCandidates: 100}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, th := range []Thresholds{
		{Similarity: 0, MaxCandidates: 10},
		{Similarity: 1, MaxCandidates: 10},
		{Similarity: 0.8, MaxCandidates: 0},
	} {
		if err := th.Validate(); err == nil {
			t.Errorf("expected error for %+v", th)
		}
	}
}

func TestItem_ContentHash(t *testing.T) {
	loc := scope.Location{City: "Austin", State: "Texas", Country: "US"}
	a, _ := New("Ran a marathon!", TypePost, scope.City, loc)
	b, _ := New("  ran a   MARATHON ", TypePost, scope.City, scope.Location{City: "austin", State: "texas", Country: "us"})
	if a.ContentHash() != b.ContentHash() {
		t.Error("formatting differences must not change the content hash")
	}

	c, _ := New("Ran a marathon!", TypeDream, scope.City, loc)
	d, _ := New("Ran a marathon!", TypePost, scope.State, loc)
	e, _ := New("Ran a marathon!", TypePost, scope.City, loc, WithNegation(true))
	for name, other := range map[string]Item{"type": c, "scope": d, "negation": e} {
		if other.ContentHash() == a.ContentHash() {
			t.Errorf("%s must change the content hash", name)
		}
	}
}
