// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package query

import (
	"context"

	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/result"
)

// DefaultPageSize bounds an offset given without a limit.
const DefaultPageSize int64 = 1000

// SelectQuery reads rows of T. Configuration calls can come in any order and
// the last call for a setting wins. Nothing is sent until a terminal call.
type SelectQuery[T any] struct {
	exec     Executor
	table    string
	columns  []string
	filter   *FilterBuilder
	order    *Order
	limit    *int64
	offset   *int64
	window   *Range
	pageSize int64
}

func newSelect[T any](exec Executor, table string, pageSize int64, columns []string) *SelectQuery[T] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &SelectQuery[T]{
		exec:     exec,
		table:    table,
		columns:  append([]string(nil), columns...),
		pageSize: pageSize,
	}
}

// Where adds predicates. Repeated calls accumulate into the same filter.
func (q *SelectQuery[T]) Where(fn func(f *FilterBuilder)) *SelectQuery[T] {
	if fn == nil {
		return q
	}
	if q.filter == nil {
		q.filter = NewFilter()
	}
	fn(q.filter)
	return q
}

func (q *SelectQuery[T]) Order(column string, ascending bool) *SelectQuery[T] {
	q.order = &Order{Column: column, Ascending: ascending}
	return q
}

func (q *SelectQuery[T]) OrderNullsFirst(column string, ascending bool) *SelectQuery[T] {
	q.order = &Order{Column: column, Ascending: ascending, NullsFirst: true}
	return q
}

func (q *SelectQuery[T]) Limit(n int64) *SelectQuery[T] {
	q.limit = &n
	return q
}

func (q *SelectQuery[T]) Offset(n int64) *SelectQuery[T] {
	q.offset = &n
	return q
}

// Range selects rows from..to inclusive. It overrides Limit and Offset.
func (q *SelectQuery[T]) Range(from, to int64) *SelectQuery[T] {
	q.window = &Range{From: from, To: to}
	return q
}

// resolvedRange folds range, limit and offset into one window.
func (q *SelectQuery[T]) resolvedRange() *Range {
	if q.window != nil {
		r := *q.window
		return &r
	}
	var from int64
	if q.offset != nil {
		from = *q.offset
	}
	switch {
	case q.limit != nil:
		return &Range{From: from, To: from + *q.limit - 1}
	case q.offset != nil:
		return &Range{From: from, To: from + q.pageSize - 1}
	}
	return nil
}

// Request returns the list request Execute would send.
func (q *SelectQuery[T]) Request() *Request {
	req := &Request{
		Kind:    KindSelect,
		Table:   q.table,
		Columns: append([]string(nil), q.columns...),
		Filter:  q.filter,
		Range:   q.resolvedRange(),
	}
	if q.order != nil {
		o := *q.order
		req.Order = &o
	}
	return req
}

// cardinalityRequest carries only the filter and a fetch cap of two rows.
// Ordering and paging set on the builder are not applied.
func (q *SelectQuery[T]) cardinalityRequest() *Request {
	return &Request{
		Kind:    KindSelect,
		Table:   q.table,
		Columns: append([]string(nil), q.columns...),
		Filter:  q.filter,
		Range:   &Range{From: 0, To: 1},
	}
}

// Execute returns every matching row.
func (q *SelectQuery[T]) Execute(ctx context.Context) (out result.Result[[]T]) {
	req := q.Request()
	defer recoverInto(req, &out)

	resp, failure := run(ctx, q.exec, req)
	if failure != nil {
		return result.Failure[[]T](failure)
	}
	rows, failure := decodeRows[T](req, resp.Body)
	if failure != nil {
		return result.Failure[[]T](failure)
	}
	return result.Success(rows)
}

// Single returns the only matching row and fails on zero or several.
func (q *SelectQuery[T]) Single(ctx context.Context) (out result.Result[T]) {
	req := q.cardinalityRequest()
	defer recoverInto(req, &out)

	rows, failure := q.fetchCapped(ctx, req)
	if failure != nil {
		return result.Failure[T](failure)
	}
	if len(rows) != 1 {
		return result.Failure[T](cardinality(len(rows)))
	}
	return result.Success(rows[0])
}

// MaybeSingle returns nil for no match, the row for one match, and fails on
// several.
func (q *SelectQuery[T]) MaybeSingle(ctx context.Context) (out result.Result[*T]) {
	req := q.cardinalityRequest()
	defer recoverInto(req, &out)

	rows, failure := q.fetchCapped(ctx, req)
	if failure != nil {
		return result.Failure[*T](failure)
	}
	switch len(rows) {
	case 0:
		return result.Success[*T](nil)
	case 1:
		return result.Success(&rows[0])
	default:
		return result.Failure[*T](cardinality(len(rows)))
	}
}

func (q *SelectQuery[T]) fetchCapped(ctx context.Context, req *Request) ([]T, *errors.Error) {
	resp, failure := run(ctx, q.exec, req)
	if failure != nil {
		return nil, failure
	}
	return decodeRows[T](req, resp.Body)
}

// Count returns the exact number of matching rows, or 0 when the backend
// reports no count.
func (q *SelectQuery[T]) Count(ctx context.Context) (out result.Result[int64]) {
	req := &Request{
		Kind:   KindSelect,
		Table:  q.table,
		Filter: q.filter,
		Count:  CountExact,
		Head:   true,
	}
	defer recoverInto(req, &out)

	resp, failure := run(ctx, q.exec, req)
	if failure != nil {
		return result.Failure[int64](failure)
	}
	if resp.Count == nil {
		return result.Success[int64](0)
	}
	return result.Success(*resp.Count)
}
