package pgvector

import (
	"fmt"
	"strconv"
	"strings"

	domcontent "github.com/kailas-cloud/rarity/internal/domain/content"
	"github.com/kailas-cloud/rarity/internal/domain/filter"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

type columnKind int

const (
	columnText columnKind = iota
	columnBool
	columnTime
)

// columns maps indexed attribute names to table columns.
var columns = map[string]columnKind{
	scope.FieldScope:          columnText,
	scope.FieldCity:           columnText,
	scope.FieldState:          columnText,
	scope.FieldCountry:        columnText,
	domcontent.FieldType:      columnText,
	domcontent.FieldNegation:  columnBool,
	domcontent.FieldCreatedAt: columnTime,
}

// whereBuilder renders a filter.Expression as a parameterized SQL predicate.
// Placeholders continue from the args already collected.
type whereBuilder struct {
	args []any
}

func (b *whereBuilder) placeholder(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *whereBuilder) build(expr filter.Expression) (string, error) {
	var parts []string

	for _, c := range expr.Must() {
		s, err := b.condition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}

	if should := expr.Should(); len(should) > 0 {
		alts := make([]string, 0, len(should))
		for _, c := range should {
			s, err := b.condition(c)
			if err != nil {
				return "", err
			}
			alts = append(alts, s)
		}
		parts = append(parts, "("+strings.Join(alts, " OR ")+")")
	}

	for _, c := range expr.MustNot() {
		s, err := b.condition(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, "NOT ("+s+")")
	}

	if len(parts) == 0 {
		return "TRUE", nil
	}
	return strings.Join(parts, " AND "), nil
}

func (b *whereBuilder) condition(c filter.Condition) (string, error) {
	kind, ok := columns[c.Key()]
	if !ok {
		return "", fmt.Errorf("unknown filter field %q", c.Key())
	}

	if c.IsMatch() {
		switch kind {
		case columnBool:
			v, err := strconv.ParseBool(c.Match())
			if err != nil {
				return "", fmt.Errorf("field %q: %w", c.Key(), err)
			}
			return c.Key() + " = " + b.placeholder(v), nil
		case columnText:
			return c.Key() + " = " + b.placeholder(c.Match()), nil
		default:
			return "", fmt.Errorf("field %q does not support match", c.Key())
		}
	}

	if c.IsRange() {
		if kind != columnTime {
			return "", fmt.Errorf("field %q does not support range", c.Key())
		}
		return b.timeRange(c.Key(), *c.Range()), nil
	}

	return "", fmt.Errorf("empty condition on %q", c.Key())
}

func (b *whereBuilder) timeRange(col string, r filter.Range) string {
	var parts []string
	add := func(op string, v *float64) {
		if v != nil {
			parts = append(parts, col+" "+op+" to_timestamp("+b.placeholder(*v)+")")
		}
	}
	add(">", r.GT())
	add(">=", r.GTE())
	add("<", r.LT())
	add("<=", r.LTE())
	return strings.Join(parts, " AND ")
}
