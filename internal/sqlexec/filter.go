// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package sqlexec

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/erikg84/supabase-sdk/query"
)

// whereTarget turns each predicate into its own condition; the conditions are
// ANDed in the order received.
type whereTarget struct {
	conditions []sq.Sqlizer
}

var _ query.FilterTarget = (*whereTarget)(nil)

func (w *whereTarget) add(c sq.Sqlizer) {
	w.conditions = append(w.conditions, c)
}

func (w *whereTarget) Eq(column string, value interface{}) {
	w.add(sq.Eq{pq.QuoteIdentifier(column): value})
}

func (w *whereTarget) Neq(column string, value interface{}) {
	w.add(sq.NotEq{pq.QuoteIdentifier(column): value})
}

func (w *whereTarget) Gt(column string, value interface{}) {
	w.add(sq.Gt{pq.QuoteIdentifier(column): value})
}

func (w *whereTarget) Gte(column string, value interface{}) {
	w.add(sq.GtOrEq{pq.QuoteIdentifier(column): value})
}

func (w *whereTarget) Lt(column string, value interface{}) {
	w.add(sq.Lt{pq.QuoteIdentifier(column): value})
}

func (w *whereTarget) Lte(column string, value interface{}) {
	w.add(sq.LtOrEq{pq.QuoteIdentifier(column): value})
}

// Like and ILike accept PostgREST's * wildcard as well as %.
func (w *whereTarget) Like(column, pattern string) {
	w.add(sq.Like{pq.QuoteIdentifier(column): wildcard(pattern)})
}

func (w *whereTarget) ILike(column, pattern string) {
	w.add(sq.ILike{pq.QuoteIdentifier(column): wildcard(pattern)})
}

func (w *whereTarget) Is(column string, value interface{}) {
	col := pq.QuoteIdentifier(column)
	switch v := value.(type) {
	case nil:
		w.add(sq.Expr(col + " IS NULL"))
	case bool:
		if v {
			w.add(sq.Expr(col + " IS TRUE"))
		} else {
			w.add(sq.Expr(col + " IS FALSE"))
		}
	default:
		w.add(sq.Expr(fmt.Sprintf("%s IS NOT DISTINCT FROM ?", col), v))
	}
}

func (w *whereTarget) In(column string, values ...interface{}) {
	w.add(sq.Eq{pq.QuoteIdentifier(column): values})
}

// where returns nil when no predicate was recorded.
func (w *whereTarget) where() sq.Sqlizer {
	switch len(w.conditions) {
	case 0:
		return nil
	case 1:
		return w.conditions[0]
	default:
		return sq.And(w.conditions)
	}
}

func wildcard(pattern string) string {
	out := []rune(pattern)
	for i, r := range out {
		if r == '*' {
			out[i] = '%'
		}
	}
	return string(out)
}
