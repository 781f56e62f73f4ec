package scope

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/rarity/internal/domain"
	"github.com/kailas-cloud/rarity/internal/domain/filter"
)

// Level is the declared visibility ceiling of a content item.
type Level string

const (
	// City limits the item to its city pool (and every broader pool).
	City Level = "city"
	// State contributes to state, country and world pools.
	State Level = "state"
	// Country contributes to country and world pools.
	Country Level = "country"
	// World contributes only to the world pool.
	World Level = "world"
)

// Indexed attribute names shared by every storage backend.
const (
	FieldScope   = "scope"
	FieldCity    = "city"
	FieldState   = "state"
	FieldCountry = "country"
)

// IsValid checks if the level is one of the four known levels.
func (l Level) IsValid() bool {
	switch l {
	case City, State, Country, World:
		return true
	}
	return false
}

// ParseLevel converts a raw string into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", domain.NewInvalidInput("scope", fmt.Sprintf("unknown value %q", s))
	}
	return l, nil
}

// Location is the geographic position attached to an item or a query.
type Location struct {
	City    string
	State   string
	Country string
}

// Normalized returns a copy with components lowercased and trimmed, the form stored in indexes.
func (l Location) Normalized() Location {
	return Location{
		City:    normalizePart(l.City),
		State:   normalizePart(l.State),
		Country: normalizePart(l.Country),
	}
}

func normalizePart(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// visibleLevels lists which item levels a query at the given level may see.
// A broader query sees every narrower item; a narrower query never sees broader items.
var visibleLevels = map[Level][]Level{
	Country: {City, State, Country},
	State:   {City, State},
	City:    {City},
}

// Filter is the resolved predicate for one (level, location) query.
type Filter struct {
	level    Level
	location Location
	expr     filter.Expression
}

// Resolve translates a query level and location into a Filter.
// Location components the level does not use are dropped.
func Resolve(level Level, loc Location) (Filter, error) {
	if !level.IsValid() {
		return Filter{}, domain.NewInvalidInput("scope", fmt.Sprintf("unknown value %q", level))
	}
	loc = loc.Normalized()

	var (
		locKey string
		locVal string
		kept   Location
	)
	switch level {
	case World:
		return Filter{level: World}, nil
	case Country:
		locKey, locVal, kept = FieldCountry, loc.Country, Location{Country: loc.Country}
	case State:
		locKey, locVal, kept = FieldState, loc.State, Location{State: loc.State}
	case City:
		locKey, locVal, kept = FieldCity, loc.City, Location{City: loc.City}
	}
	if locVal == "" {
		return Filter{}, domain.NewInvalidInput("location."+locKey, "is required for "+string(level)+" scope")
	}

	locCond, err := filter.NewMatch(locKey, locVal)
	if err != nil {
		return Filter{}, fmt.Errorf("location condition: %w", err)
	}

	levels := visibleLevels[level]
	var must, should []filter.Condition
	must = append(must, locCond)
	if len(levels) == 1 {
		c, err := filter.NewMatch(FieldScope, string(levels[0]))
		if err != nil {
			return Filter{}, fmt.Errorf("scope condition: %w", err)
		}
		must = append(must, c)
	} else {
		for _, l := range levels {
			c, err := filter.NewMatch(FieldScope, string(l))
			if err != nil {
				return Filter{}, fmt.Errorf("scope condition: %w", err)
			}
			should = append(should, c)
		}
	}

	expr, err := filter.NewExpression(must, should, nil)
	if err != nil {
		return Filter{}, fmt.Errorf("scope expression: %w", err)
	}
	return Filter{level: level, location: kept, expr: expr}, nil
}

// MustResolve calls Resolve and panics on error.
func MustResolve(level Level, loc Location) Filter {
	f, err := Resolve(level, loc)
	if err != nil {
		panic(err)
	}
	return f
}

// Level returns the query level.
func (f Filter) Level() Level { return f.level }

// Location returns the location components the filter actually uses.
func (f Filter) Location() Location { return f.location }

// Expression returns the backend-neutral predicate.
func (f Filter) Expression() filter.Expression { return f.expr }

// Matches evaluates the filter in memory against an indexed document.
func (f Filter) Matches(doc filter.Document) bool { return f.expr.Matches(doc) }

// Key identifies the filter in cache keys: {scope}:{city}:{state}:{country}.
func (f Filter) Key() string {
	return strings.Join([]string{string(f.level), f.location.City, f.location.State, f.location.Country}, ":")
}
