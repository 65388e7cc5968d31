// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package query builds typed, deferred PostgREST-style queries. Builders are
// pure until a terminal call, which issues exactly one Executor request and
// returns a result.Result.
package query

import (
	"context"
	"fmt"
)

// Kind tags a pending request.
type Kind int

const (
	KindSelect Kind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindUpsert
	KindRPC
)

func (k Kind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	case KindUpsert:
		return "UPSERT"
	case KindRPC:
		return "RPC"
	default:
		return "UNKNOWN"
	}
}

// CountMode selects whether the executor reports a total row count.
type CountMode int

const (
	CountNone CountMode = iota
	CountExact
)

// Order is a single sort key.
type Order struct {
	Column     string
	Ascending  bool
	NullsFirst bool
}

// Range is an inclusive, zero-based row window.
type Range struct {
	From int64
	To   int64
}

// Limit returns the number of rows the window spans.
func (r Range) Limit() int64 {
	return r.To - r.From + 1
}

// Request is a query that has not been executed yet. Builders produce it and an
// Executor interprets it; it can be inspected without running it.
type Request struct {
	Kind     Kind
	Table    string
	Function string

	// Columns is the select projection. Empty means every column.
	Columns []string

	// Payload is the JSON-encodable body: rows for insert/upsert, a value
	// object for update, parameters for rpc.
	Payload interface{}

	Filter *FilterBuilder
	Order  *Order
	Range  *Range
	Count  CountMode

	// Head asks for metadata only, no rows.
	Head bool

	OnConflict       []string
	IgnoreDuplicates bool

	// Returning asks mutations to send the affected rows back.
	Returning bool
}

// HasFilter reports whether at least one predicate was recorded.
func (r *Request) HasFilter() bool {
	return r.Filter.Len() > 0
}

// Target is the table, or the function for RPC requests.
func (r *Request) Target() string {
	if r.Kind == KindRPC {
		return r.Function
	}
	return r.Table
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s filters=%d", r.Kind, r.Target(), r.Filter.Len())
}

// Response is what an executor hands back. Body holds JSON: an array of rows for
// table requests, any JSON value for rpc. Count is nil when no exact count was
// asked for or the backend did not supply one.
type Response struct {
	Body  []byte
	Count *int64
}

// Executor runs one request per call against the remote database.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
