package rarity

import (
	"time"

	"github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
	"github.com/kailas-cloud/rarity/internal/usecase/uniqueness"
)

// ContentType distinguishes submission kinds.
type ContentType string

// Supported content types.
const (
	Post  ContentType = "post"
	Dream ContentType = "dream"
)

// Scope is the visibility level of a submission and the pool it is ranked in.
type Scope string

// Supported scopes, narrowest first.
const (
	ScopeCity    Scope = "city"
	ScopeState   Scope = "state"
	ScopeCountry Scope = "country"
	ScopeWorld   Scope = "world"
)

// Tier is a discrete rarity class.
type Tier string

// Tiers from rarest to most common.
const (
	TierElite   Tier = "elite"
	TierRare    Tier = "rare"
	TierUnique  Tier = "unique"
	TierNotable Tier = "notable"
	TierBeloved Tier = "beloved"
	TierPopular Tier = "popular"
)

// Submission is a freshly posted text to rank.
type Submission struct {
	// ID is generated when empty.
	ID   string
	Text string
	// Type defaults to Post.
	Type ContentType
	// Scope defaults to ScopeWorld. City, state and country scopes need the matching location part.
	Scope   Scope
	City    string
	State   string
	Country string
	// Negated overrides negation detection ("did not run today").
	Negated *bool
	// CreatedAt defaults to now.
	CreatedAt time.Time
}

// WindowResult is the rank of a submission within one look-back window.
type WindowResult struct {
	Window      string
	Total       int
	Matching    int
	Percentile  float64
	Tier        Tier
	DisplayText string
	Degraded    bool
}

// Match is a prior item judged equivalent to the submission.
type Match struct {
	ItemID     string
	Similarity float64
}

// Result is the uniqueness of a submission.
type Result struct {
	ItemID       string
	Percentile   float64
	Tier         Tier
	DisplayText  string
	Badge        string
	Message      string
	Comparison   string
	MatchCount   int
	TotalInScope int
	// Nearest lists the closest prior matches, at most the content type's max candidates.
	// MatchCount counts all of them.
	Nearest []Match
	Windows map[string]WindowResult
	// Flags lists fallbacks taken while computing (e.g. "fallback_embedding").
	Flags []string
	// ModerationFlags lists categories the moderation provider reported.
	ModerationFlags []string
	// Provisional is set when moderation did not answer and the text was approved without a verdict.
	Provisional bool
}

func (s Submission) toItem() (content.Item, error) {
	typ, err := content.ParseType(string(s.Type))
	if err != nil {
		return content.Item{}, err //nolint:wrapcheck // InvalidInputError
	}
	level := scope.World
	if s.Scope != "" {
		if level, err = scope.ParseLevel(string(s.Scope)); err != nil {
			return content.Item{}, err //nolint:wrapcheck // InvalidInputError
		}
	}

	var opts []content.Option
	if s.ID != "" {
		opts = append(opts, content.WithID(s.ID))
	}
	if s.Negated != nil {
		opts = append(opts, content.WithNegation(*s.Negated))
	}
	if !s.CreatedAt.IsZero() {
		opts = append(opts, content.WithCreatedAt(s.CreatedAt))
	}
	loc := scope.Location{City: s.City, State: s.State, Country: s.Country}
	return content.New(s.Text, typ, level, loc, opts...) //nolint:wrapcheck // InvalidInputError
}

func fromResult(itemID string, r uniqueness.Result) Result {
	windows := make(map[string]WindowResult, len(r.Temporal))
	for name, snap := range r.Temporal {
		windows[name] = WindowResult{
			Window:      snap.Window,
			Total:       snap.Total,
			Matching:    snap.Matching,
			Percentile:  snap.Percentile,
			Tier:        Tier(snap.Tier),
			DisplayText: snap.DisplayText,
			Degraded:    snap.Degraded,
		}
	}
	nearest := make([]Match, 0, len(r.Nearest))
	for _, m := range r.Nearest {
		nearest = append(nearest, Match{ItemID: m.CandidateID, Similarity: m.Similarity})
	}
	return Result{
		ItemID:          itemID,
		Percentile:      r.Percentile,
		Tier:            Tier(r.Tier),
		DisplayText:     r.DisplayText,
		Badge:           r.Badge,
		Message:         r.Message,
		Comparison:      r.Comparison,
		MatchCount:      r.MatchCount,
		TotalInScope:    r.TotalInScope,
		Nearest:         nearest,
		Windows:         windows,
		Flags:           r.Flags,
		ModerationFlags: r.Moderation.Flags,
		Provisional:     r.Moderation.Provisional,
	}
}
