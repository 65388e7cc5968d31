// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package rest

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/query"
)

// reservedParams are query parameters PostgREST reads as request options, so
// no filter column may use them.
var reservedParams = map[string]bool{
	"select":      true,
	"order":       true,
	"limit":       true,
	"offset":      true,
	"on_conflict": true,
	"columns":     true,
}

// paramTarget writes each predicate as its own query parameter, so two
// predicates on one column become two parameters (age=gte.18&age=lte.65).
type paramTarget struct {
	values url.Values
}

var _ query.FilterTarget = (*paramTarget)(nil)

func (p *paramTarget) put(column string, op query.Operator, operand string) {
	p.values.Add(column, op.String()+"."+operand)
}

func (p *paramTarget) Eq(column string, value interface{}) {
	if isNull(value) {
		p.put(column, query.OpIs, "null")
		return
	}
	p.put(column, query.OpEq, format(value))
}

func (p *paramTarget) Neq(column string, value interface{}) {
	if isNull(value) {
		p.values.Add(column, "not.is.null")
		return
	}
	p.put(column, query.OpNeq, format(value))
}

func (p *paramTarget) Gt(column string, value interface{}) {
	p.put(column, query.OpGt, format(value))
}

func (p *paramTarget) Gte(column string, value interface{}) {
	p.put(column, query.OpGte, format(value))
}

func (p *paramTarget) Lt(column string, value interface{}) {
	p.put(column, query.OpLt, format(value))
}

func (p *paramTarget) Lte(column string, value interface{}) {
	p.put(column, query.OpLte, format(value))
}

// PostgREST accepts * as the wildcard in place of %.
func (p *paramTarget) Like(column, pattern string) {
	p.put(column, query.OpLike, pattern)
}

func (p *paramTarget) ILike(column, pattern string) {
	p.put(column, query.OpILike, pattern)
}

func (p *paramTarget) Is(column string, value interface{}) {
	p.put(column, query.OpIs, format(value))
}

func (p *paramTarget) In(column string, values ...interface{}) {
	items := make([]string, len(values))
	for i, v := range values {
		items[i] = quote(format(v))
	}
	p.put(column, query.OpIn, "("+strings.Join(items, ",")+")")
}

func isNull(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}

// format renders an operand the way PostgREST reads it. Nil and nil pointers
// render as null.
func format(v interface{}) string {
	if isNull(v) {
		return "null"
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		v = rv.Elem().Interface()
	}
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// quote wraps list items holding PostgREST reserved characters in double quotes.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, `,.:()" \`) {
		s = strings.ReplaceAll(s, `\`, `\\`)
		s = strings.ReplaceAll(s, `"`, `\"`)
		return `"` + s + `"`
	}
	return s
}

func orderParam(o *query.Order) string {
	dir := "desc"
	if o.Ascending {
		dir = "asc"
	}
	s := o.Column + "." + dir
	if o.NullsFirst {
		s += ".nullsfirst"
	}
	return s
}

// encodeParams builds the query string for req. A predicate on a reserved
// parameter name cannot be expressed and fails the request.
func encodeParams(req *query.Request) (url.Values, error) {
	for _, op := range req.Filter.Operations() {
		if reservedParams[op.Column] {
			return nil, errors.NewConfigurationError(
				fmt.Sprintf("cannot filter on column %q: the name is a reserved PostgREST parameter", op.Column),
				errors.CodeReservedColumn, nil)
		}
	}

	values := url.Values{}

	if req.Kind == query.KindSelect {
		cols := "*"
		if len(req.Columns) > 0 {
			cols = strings.Join(req.Columns, ",")
		}
		values.Set("select", cols)
	}

	req.Filter.Apply(&paramTarget{values: values})

	if req.Order != nil && req.Order.Column != "" {
		values.Set("order", orderParam(req.Order))
	}
	if req.Range != nil {
		values.Set("limit", strconv.FormatInt(req.Range.Limit(), 10))
		if req.Range.From > 0 {
			values.Set("offset", strconv.FormatInt(req.Range.From, 10))
		}
	}
	if req.Kind == query.KindUpsert && len(req.OnConflict) > 0 {
		values.Set("on_conflict", strings.Join(req.OnConflict, ","))
	}
	return values, nil
}
