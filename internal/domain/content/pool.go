package content

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/rarity/internal/domain/filter"
	"github.com/kailas-cloud/rarity/internal/domain/scope"
)

// Pool is the set of prior items a submission is compared against:
// one scope filter over one content type.
type Pool struct {
	Scope scope.Filter
	Type  Type
}

// NewPool builds a pool, rejecting unknown content types.
func NewPool(f scope.Filter, typ Type) (Pool, error) {
	if !typ.IsValid() {
		return Pool{}, fmt.Errorf("invalid content type %q", typ)
	}
	return Pool{Scope: f, Type: typ}, nil
}

// Key identifies the pool in cache keys.
func (p Pool) Key() string {
	return string(p.Type) + ":" + p.Scope.Key()
}

// Expression renders the pool predicate, optionally limited to items created at or after windowStart.
// The pool must come from NewPool.
func (p Pool) Expression(windowStart *time.Time) filter.Expression {
	expr := p.Scope.Expression().WithMust(filter.MustMatch(FieldType, string(p.Type)))
	if windowStart != nil {
		expr = expr.WithMust(filter.MustRange(FieldCreatedAt, filter.AtLeast(float64(windowStart.Unix()))))
	}
	return expr
}

// SimilarityExpression adds the negation rule: only items whose negation
// flag equals the query's can ever match.
func (p Pool) SimilarityExpression(hasNegation bool, windowStart *time.Time) filter.Expression {
	return p.Expression(windowStart).WithMust(filter.MustMatch(FieldNegation, NegationTag(hasNegation)))
}
