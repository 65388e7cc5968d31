// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package query

import (
	"context"

	"github.com/erikg84/supabase-sdk/result"
)

// Table binds a table name and row type to an executor. Every builder it hands
// out is new and owns its own filter.
type Table[T any] struct {
	exec     Executor
	name     string
	pageSize int64
}

// TableOption customises a Table.
type TableOption func(*tableOptions)

type tableOptions struct {
	pageSize int64
}

// WithPageSize sets the window used when a select has an offset but no limit.
func WithPageSize(n int64) TableOption {
	return func(o *tableOptions) {
		o.pageSize = n
	}
}

// From returns a reference to table name whose rows decode into T.
func From[T any](exec Executor, name string, opts ...TableOption) *Table[T] {
	o := tableOptions{pageSize: DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pageSize <= 0 {
		o.pageSize = DefaultPageSize
	}
	return &Table[T]{exec: exec, name: name, pageSize: o.pageSize}
}

func (t *Table[T]) Name() string { return t.name }

// Select starts a read. With no columns every column is returned.
func (t *Table[T]) Select(columns ...string) *SelectQuery[T] {
	return newSelect[T](t.exec, t.name, t.pageSize, columns)
}

func (t *Table[T]) Insert(rows []T) *InsertQuery[T] {
	return &InsertQuery[T]{exec: t.exec, table: t.name, rows: rows, empty: len(rows) == 0}
}

// Update starts an update with values, which may be a T, a partial struct or
// a map of column to value.
func (t *Table[T]) Update(values interface{}) *UpdateQuery[T] {
	return &UpdateQuery[T]{exec: t.exec, table: t.name, values: values}
}

func (t *Table[T]) Delete() *DeleteQuery[T] {
	return &DeleteQuery[T]{exec: t.exec, table: t.name}
}

// Upsert starts an upsert. onConflict names the conflict target columns; with
// none the primary key is used.
func (t *Table[T]) Upsert(rows []T, onConflict ...string) *UpsertQuery[T] {
	return &UpsertQuery[T]{
		exec:       t.exec,
		table:      t.name,
		rows:       rows,
		empty:      len(rows) == 0,
		onConflict: append([]string(nil), onConflict...),
	}
}

// SelectWhere is Select().Where(fn).Execute(ctx).
func (t *Table[T]) SelectWhere(ctx context.Context, fn func(f *FilterBuilder)) result.Result[[]T] {
	return t.Select().Where(fn).Execute(ctx)
}

// CountWhere is Select().Where(fn).Count(ctx).
func (t *Table[T]) CountWhere(ctx context.Context, fn func(f *FilterBuilder)) result.Result[int64] {
	return t.Select().Where(fn).Count(ctx)
}
