// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package query

import (
	"context"

	"github.com/erikg84/supabase-sdk/result"
)

// InsertQuery inserts a batch of rows. An empty batch succeeds without a call.
type InsertQuery[T any] struct {
	exec  Executor
	table string
	rows  []T
	empty bool
}

func (q *InsertQuery[T]) request(returning bool) *Request {
	return &Request{Kind: KindInsert, Table: q.table, Payload: q.rows, Returning: returning}
}

// Request returns the request Execute would send.
func (q *InsertQuery[T]) Request() *Request { return q.request(true) }

// Execute inserts the rows and returns them as stored.
func (q *InsertQuery[T]) Execute(ctx context.Context) result.Result[[]T] {
	if q.empty {
		return result.Success([]T{})
	}
	return returningRows[T](ctx, q.exec, q.request(true))
}

// ExecuteSingle returns the first stored row, or nil when none came back.
func (q *InsertQuery[T]) ExecuteSingle(ctx context.Context) result.Result[*T] {
	return result.Map(q.Execute(ctx), firstOrNil[T])
}

func (q *InsertQuery[T]) ExecuteWithoutReturning(ctx context.Context) result.Result[result.Unit] {
	if q.empty {
		return result.Success(result.Unit{})
	}
	return discard(ctx, q.exec, q.request(false))
}

// UpdateQuery applies values to the rows matched by its filter. It refuses to
// run without at least one predicate.
type UpdateQuery[T any] struct {
	exec   Executor
	table  string
	values interface{}
	filter *FilterBuilder
}

// Where adds predicates. Repeated calls accumulate into the same filter.
func (q *UpdateQuery[T]) Where(fn func(f *FilterBuilder)) *UpdateQuery[T] {
	if fn == nil {
		return q
	}
	if q.filter == nil {
		q.filter = NewFilter()
	}
	fn(q.filter)
	return q
}

func (q *UpdateQuery[T]) request(returning bool) *Request {
	return &Request{Kind: KindUpdate, Table: q.table, Payload: q.values, Filter: q.filter, Returning: returning}
}

// Request returns the request Execute would send.
func (q *UpdateQuery[T]) Request() *Request { return q.request(true) }

// Execute updates the matched rows and returns them.
func (q *UpdateQuery[T]) Execute(ctx context.Context) result.Result[[]T] {
	req := q.request(true)
	if !req.HasFilter() {
		return result.Failure[[]T](requiresFilter(req))
	}
	return returningRows[T](ctx, q.exec, req)
}

func (q *UpdateQuery[T]) ExecuteWithoutReturning(ctx context.Context) result.Result[result.Unit] {
	req := q.request(false)
	if !req.HasFilter() {
		return result.Failure[result.Unit](requiresFilter(req))
	}
	return discard(ctx, q.exec, req)
}

// DeleteQuery removes the rows matched by its filter. It refuses to run without
// at least one predicate.
type DeleteQuery[T any] struct {
	exec   Executor
	table  string
	filter *FilterBuilder
}

// Where adds predicates. Repeated calls accumulate into the same filter.
func (q *DeleteQuery[T]) Where(fn func(f *FilterBuilder)) *DeleteQuery[T] {
	if fn == nil {
		return q
	}
	if q.filter == nil {
		q.filter = NewFilter()
	}
	fn(q.filter)
	return q
}

func (q *DeleteQuery[T]) request(returning bool) *Request {
	return &Request{Kind: KindDelete, Table: q.table, Filter: q.filter, Returning: returning}
}

// Request returns the request Execute would send.
func (q *DeleteQuery[T]) Request() *Request { return q.request(false) }

func (q *DeleteQuery[T]) Execute(ctx context.Context) result.Result[result.Unit] {
	req := q.request(false)
	if !req.HasFilter() {
		return result.Failure[result.Unit](requiresFilter(req))
	}
	return discard(ctx, q.exec, req)
}

// ExecuteReturning deletes the matched rows and returns them.
func (q *DeleteQuery[T]) ExecuteReturning(ctx context.Context) result.Result[[]T] {
	req := q.request(true)
	if !req.HasFilter() {
		return result.Failure[[]T](requiresFilter(req))
	}
	return returningRows[T](ctx, q.exec, req)
}

// UpsertQuery inserts rows or resolves conflicts on the conflict target. By
// default conflicting rows are merged; IgnoreDuplicates keeps the stored row.
type UpsertQuery[T any] struct {
	exec             Executor
	table            string
	rows             []T
	empty            bool
	onConflict       []string
	ignoreDuplicates bool
}

// IgnoreDuplicates is read when the query executes, so it may be set at any
// point before the terminal call.
func (q *UpsertQuery[T]) IgnoreDuplicates(enabled bool) *UpsertQuery[T] {
	q.ignoreDuplicates = enabled
	return q
}

func (q *UpsertQuery[T]) request(returning bool) *Request {
	return &Request{
		Kind:             KindUpsert,
		Table:            q.table,
		Payload:          q.rows,
		OnConflict:       append([]string(nil), q.onConflict...),
		IgnoreDuplicates: q.ignoreDuplicates,
		Returning:        returning,
	}
}

// Request returns the request Execute would send.
func (q *UpsertQuery[T]) Request() *Request { return q.request(true) }

// Execute upserts the rows and returns them as stored. Rows skipped as
// duplicates are not returned.
func (q *UpsertQuery[T]) Execute(ctx context.Context) result.Result[[]T] {
	if q.empty {
		return result.Success([]T{})
	}
	return returningRows[T](ctx, q.exec, q.request(true))
}

func (q *UpsertQuery[T]) ExecuteSingle(ctx context.Context) result.Result[*T] {
	return result.Map(q.Execute(ctx), firstOrNil[T])
}

func (q *UpsertQuery[T]) ExecuteWithoutReturning(ctx context.Context) result.Result[result.Unit] {
	if q.empty {
		return result.Success(result.Unit{})
	}
	return discard(ctx, q.exec, q.request(false))
}

func returningRows[T any](ctx context.Context, exec Executor, req *Request) (out result.Result[[]T]) {
	defer recoverInto(req, &out)

	resp, failure := run(ctx, exec, req)
	if failure != nil {
		return result.Failure[[]T](failure)
	}
	rows, failure := decodeRows[T](req, resp.Body)
	if failure != nil {
		return result.Failure[[]T](failure)
	}
	return result.Success(rows)
}

func discard(ctx context.Context, exec Executor, req *Request) (out result.Result[result.Unit]) {
	defer recoverInto(req, &out)

	if _, failure := run(ctx, exec, req); failure != nil {
		return result.Failure[result.Unit](failure)
	}
	return result.Success(result.Unit{})
}

func firstOrNil[T any](rows []T) *T {
	if len(rows) == 0 {
		return nil
	}
	return &rows[0]
}
