package percentile

import (
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// Tier is a discrete rarity class.
type Tier string

const (
	// Elite is the rarest tier.
	Elite Tier = "elite"
	// Rare covers 2% to 8%.
	Rare Tier = "rare"
	// Unique covers 8% to 20%.
	Unique Tier = "unique"
	// Notable covers 20% to 40%.
	Notable Tier = "notable"
	// Beloved covers 40% to 70%.
	Beloved Tier = "beloved"
	// Popular covers 70% and above.
	Popular Tier = "popular"
)

// OnlyYou is the display text for content that matches nothing else.
const OnlyYou = "Only you!"

// Tiers lists every tier from rarest to most common.
var Tiers = []Tier{Elite, Rare, Unique, Notable, Beloved, Popular}

// IsValid checks if the tier is one of the current tiers.
func (t Tier) IsValid() bool {
	for _, v := range Tiers {
		if t == v {
			return true
		}
	}
	return false
}

// ParseTier converts a stored tier name. The retired name "common" maps to Beloved.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if t == "common" {
		return Beloved, nil
	}
	if !t.IsValid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

type presentation struct {
	badge   string
	message string
}

var presentations = map[Tier]presentation{
	Elite:   {badge: "💎", message: "Almost nobody does this. You're one of a kind."},
	Rare:    {badge: "🔮", message: "Very few people share this with you."},
	Unique:  {badge: "✨", message: "You stand out from the crowd."},
	Notable: {badge: "🌟", message: "A distinctive choice."},
	Beloved: {badge: "💛", message: "Plenty of people share this with you."},
	Popular: {badge: "🔥", message: "You're in great company."},
}

// Badge returns the fixed badge for the tier.
func (t Tier) Badge() string { return presentations[t].badge }

// Message returns the fixed message for the tier.
func (t Tier) Message() string { return presentations[t].message }

// Result is the classification of one (matchCount, totalInScope) pair.
type Result struct {
	Percentile   float64 `msgpack:"p"`
	Tier         Tier    `msgpack:"t"`
	DisplayText  string  `msgpack:"d"`
	Badge        string  `msgpack:"b"`
	Message      string  `msgpack:"m"`
	Comparison   string  `msgpack:"c"`
	MatchCount   int     `msgpack:"n"`
	TotalInScope int     `msgpack:"N"`
}

// bucket upper bounds (exclusive), checked in order.
var buckets = []struct {
	below float64
	tier  Tier
}{
	{0.5, Elite},
	{2, Elite},
	{8, Rare},
	{20, Unique},
	{40, Notable},
	{70, Beloved},
}

// Calculate classifies matchCount (including the item itself) against totalInScope.
// Counts below 1 are raised to 1. A matchCount above totalInScope is reported
// as-is but the percentile is clamped to [0, 100].
func Calculate(matchCount, totalInScope int) Result {
	if totalInScope < 1 {
		totalInScope = 1
	}
	if matchCount < 1 {
		matchCount = 1
	}

	p := float64(matchCount) * 100 / float64(totalInScope)
	p = math.Min(100, math.Max(0, p))

	tier := classify(p)
	display := displayText(p)
	if matchCount == 1 {
		tier = Elite
		display = OnlyYou
	}

	return Result{
		Percentile:   p,
		Tier:         tier,
		DisplayText:  display,
		Badge:        tier.Badge(),
		Message:      tier.Message(),
		Comparison:   humanize.Comma(int64(matchCount)) + " of " + humanize.Comma(int64(totalInScope)),
		MatchCount:   matchCount,
		TotalInScope: totalInScope,
	}
}

// Fallback is the conservative result used when similarity data is unavailable.
func Fallback() Result {
	return Result{
		Percentile:  50,
		Tier:        Beloved,
		DisplayText: displayText(50),
		Badge:       Beloved.Badge(),
		Message:     Beloved.Message(),
	}
}

func classify(p float64) Tier {
	for _, b := range buckets {
		if p < b.below {
			return b.tier
		}
	}
	return Popular
}

func displayText(p float64) string {
	if p < 1 {
		return fmt.Sprintf("Top %.1f%%", p)
	}
	return fmt.Sprintf("Top %d%%", int(math.Round(p)))
}
