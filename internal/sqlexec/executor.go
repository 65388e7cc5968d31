// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package sqlexec runs query requests directly against PostgreSQL. Results are
// shaped by the database into the same JSON a PostgREST endpoint would return.
package sqlexec

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/internal/pkg/log"
	"github.com/erikg84/supabase-sdk/query"
)

// PoolConfig holds connection pool settings. Zero values keep the driver
// defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Executor implements query.Executor over a *sqlx.DB.
type Executor struct {
	db     *sqlx.DB
	schema string
	psql   sq.StatementBuilderType

	// returnsSet caches pg_proc.proretset by function name.
	returnsSet sync.Map
}

var _ query.Executor = (*Executor)(nil)

// New wraps an open database. An empty schema leaves names unqualified.
func New(db *sqlx.DB, schema string) *Executor {
	return &Executor{
		db:     db,
		schema: schema,
		psql:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn, schema string, pool PoolConfig) (*Executor, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.NewNetworkError(fmt.Sprintf("failed to connect to PostgreSQL: %v", err), err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.NewNetworkError(fmt.Sprintf("failed to ping PostgreSQL: %v", err), err)
	}
	return New(db, schema), nil
}

// Close closes the underlying database.
func (e *Executor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Execute runs req as a single statement, plus a COUNT(*) when an exact count
// is requested.
func (e *Executor) Execute(ctx context.Context, req *query.Request) (*query.Response, error) {
	switch req.Kind {
	case query.KindSelect:
		return e.selectRows(ctx, req)
	case query.KindRPC:
		return e.rpc(ctx, req)
	case query.KindInsert, query.KindUpsert, query.KindUpdate, query.KindDelete:
		stmt, args, err := e.buildMutation(req)
		if err != nil {
			return nil, err
		}
		if !req.Returning {
			log.DebugWithContext(ctx, "sql: %s", stmt)
			if _, err := e.db.ExecContext(ctx, stmt, args...); err != nil {
				return nil, dbError(err)
			}
			return &query.Response{}, nil
		}
		body, err := e.queryJSON(ctx, wrapReturning(stmt), args)
		if err != nil {
			return nil, err
		}
		return &query.Response{Body: body}, nil
	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("unsupported request kind %s", req.Kind), "", nil)
	}
}

func (e *Executor) selectRows(ctx context.Context, req *query.Request) (*query.Response, error) {
	resp := &query.Response{}

	if req.Count == query.CountExact {
		stmt, args, err := e.buildCount(req)
		if err != nil {
			return nil, err
		}
		log.DebugWithContext(ctx, "sql: %s", stmt)
		var n int64
		if err := e.db.GetContext(ctx, &n, stmt, args...); err != nil {
			return nil, dbError(err)
		}
		resp.Count = &n
	}
	if req.Head {
		return resp, nil
	}

	stmt, args, err := e.buildSelect(req)
	if err != nil {
		return nil, err
	}
	body, err := e.queryJSON(ctx, wrapRows(stmt), args)
	if err != nil {
		return nil, err
	}
	resp.Body = body
	return resp, nil
}

func (e *Executor) rpc(ctx context.Context, req *query.Request) (*query.Response, error) {
	stmt, args, err := e.buildRPC(req)
	if err != nil {
		return nil, err
	}
	set, err := e.isSetReturning(ctx, req.Function)
	if err != nil {
		return nil, err
	}
	body, err := e.queryJSON(ctx, stmt, args)
	if err != nil {
		return nil, err
	}
	return &query.Response{Body: shapeRPC(body, set)}, nil
}

// isSetReturning reports whether function is declared RETURNS SETOF/TABLE.
// An unknown function reads as scalar; the call itself reports it missing.
func (e *Executor) isSetReturning(ctx context.Context, function string) (bool, error) {
	if v, ok := e.returnsSet.Load(function); ok {
		return v.(bool), nil
	}
	stmt, args, err := e.buildReturnsSet(function)
	if err != nil {
		return false, err
	}
	var set bool
	if err := e.db.GetContext(ctx, &set, stmt, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, dbError(err)
	}
	e.returnsSet.Store(function, set)
	return set, nil
}

func (e *Executor) buildReturnsSet(function string) (string, []interface{}, error) {
	b := e.psql.Select("p.proretset").
		From("pg_catalog.pg_proc p").
		Join("pg_catalog.pg_namespace n ON n.oid = p.pronamespace").
		Where(sq.Eq{"p.proname": function})
	if e.schema != "" {
		b = b.Where(sq.Eq{"n.nspname": e.schema})
	} else {
		b = b.Where("n.nspname = ANY(current_schemas(false))")
	}
	return b.OrderBy("p.proretset DESC").Limit(1).ToSql()
}

func (e *Executor) queryJSON(ctx context.Context, stmt string, args []interface{}) ([]byte, error) {
	log.DebugWithContext(ctx, "sql: %s", stmt)
	var body []byte
	if err := e.db.GetContext(ctx, &body, stmt, args...); err != nil {
		return nil, dbError(err)
	}
	return body, nil
}

func (e *Executor) name(ident string) string {
	if e.schema == "" {
		return pq.QuoteIdentifier(ident)
	}
	return pq.QuoteIdentifier(e.schema) + "." + pq.QuoteIdentifier(ident)
}

func filterOf(req *query.Request) sq.Sqlizer {
	target := &whereTarget{}
	req.Filter.Apply(target)
	return target.where()
}

func (e *Executor) buildSelect(req *query.Request) (string, []interface{}, error) {
	cols := []string{"*"}
	if len(req.Columns) > 0 {
		cols = make([]string, len(req.Columns))
		for i, c := range req.Columns {
			cols[i] = projection(c)
		}
	}

	b := e.psql.Select(cols...).From(e.name(req.Table))
	if where := filterOf(req); where != nil {
		b = b.Where(where)
	}
	if req.Order != nil && req.Order.Column != "" {
		dir := "DESC"
		if req.Order.Ascending {
			dir = "ASC"
		}
		clause := pq.QuoteIdentifier(req.Order.Column) + " " + dir
		if req.Order.NullsFirst {
			clause += " NULLS FIRST"
		}
		b = b.OrderBy(clause)
	}
	if req.Range != nil {
		limit := req.Range.Limit()
		if limit < 0 {
			limit = 0
		}
		b = b.Limit(uint64(limit))
		if req.Range.From > 0 {
			b = b.Offset(uint64(req.Range.From))
		}
	}
	return b.ToSql()
}

// projection quotes a selected column. "*" and "rel.*" keep their star.
func projection(column string) string {
	switch {
	case column == "*":
		return column
	case strings.HasSuffix(column, ".*"):
		return pq.QuoteIdentifier(strings.TrimSuffix(column, ".*")) + ".*"
	}
	return pq.QuoteIdentifier(column)
}

func (e *Executor) buildCount(req *query.Request) (string, []interface{}, error) {
	b := e.psql.Select("COUNT(*)").From(e.name(req.Table))
	if where := filterOf(req); where != nil {
		b = b.Where(where)
	}
	return b.ToSql()
}

func (e *Executor) buildMutation(req *query.Request) (string, []interface{}, error) {
	switch req.Kind {
	case query.KindInsert, query.KindUpsert:
		return e.buildInsert(req)
	case query.KindUpdate:
		return e.buildUpdate(req)
	case query.KindDelete:
		return e.buildDelete(req)
	}
	return "", nil, errors.NewConfigurationError(fmt.Sprintf("%s is not a mutation", req.Kind), "", nil)
}

func (e *Executor) buildInsert(req *query.Request) (string, []interface{}, error) {
	rows, err := decodeRows(req.Payload)
	if err != nil {
		return "", nil, err
	}
	if len(rows) == 0 {
		return "", nil, errors.NewConfigurationError(fmt.Sprintf("%s on '%s' has no rows", req.Kind, req.Table), "", nil)
	}
	cols := columnsOf(rows)

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	b := e.psql.Insert(e.name(req.Table)).Columns(quoted...)
	for _, row := range rows {
		values := make([]interface{}, len(cols))
		for i, c := range cols {
			if v, ok := row[c]; ok {
				values[i] = param(v)
			} else {
				values[i] = sq.Expr("DEFAULT")
			}
		}
		b = b.Values(values...)
	}

	if req.Kind == query.KindUpsert {
		clause, err := conflictClause(req, cols)
		if err != nil {
			return "", nil, err
		}
		b = b.Suffix(clause)
	}
	if req.Returning {
		b = b.Suffix("RETURNING *")
	}
	return b.ToSql()
}

func (e *Executor) buildUpdate(req *query.Request) (string, []interface{}, error) {
	values, err := decodeObject(req.Payload)
	if err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, errors.NewConfigurationError(fmt.Sprintf("UPDATE on '%s' has no values", req.Table), "", nil)
	}
	where := filterOf(req)
	if where == nil {
		return "", nil, refuseUnfiltered(req)
	}

	b := e.psql.Update(e.name(req.Table))
	for _, k := range sortedKeys(values) {
		b = b.Set(pq.QuoteIdentifier(k), param(values[k]))
	}
	b = b.Where(where)
	if req.Returning {
		b = b.Suffix("RETURNING *")
	}
	return b.ToSql()
}

func (e *Executor) buildDelete(req *query.Request) (string, []interface{}, error) {
	where := filterOf(req)
	if where == nil {
		return "", nil, refuseUnfiltered(req)
	}
	b := e.psql.Delete(e.name(req.Table)).Where(where)
	if req.Returning {
		b = b.Suffix("RETURNING *")
	}
	return b.ToSql()
}

// buildRPC calls the function with named arguments and aggregates its rows.
func (e *Executor) buildRPC(req *query.Request) (string, []interface{}, error) {
	if req.Function == "" {
		return "", nil, errors.NewConfigurationError("rpc request without a function name", "", nil)
	}
	params, err := decodeObject(req.Payload)
	if err != nil {
		return "", nil, err
	}

	keys := sortedKeys(params)
	parts := make([]string, len(keys))
	args := make([]interface{}, len(keys))
	for i, k := range keys {
		parts[i] = pq.QuoteIdentifier(k) + " => ?"
		args[i] = param(params[k])
	}
	call := fmt.Sprintf("%s(%s)", e.name(req.Function), strings.Join(parts, ", "))
	stmt, err := sq.Dollar.ReplacePlaceholders(wrapRows("SELECT * FROM " + call))
	if err != nil {
		return "", nil, err
	}
	return stmt, args, nil
}

func conflictClause(req *query.Request, cols []string) (string, error) {
	target := ""
	if len(req.OnConflict) > 0 {
		quoted := make([]string, len(req.OnConflict))
		for i, c := range req.OnConflict {
			quoted[i] = pq.QuoteIdentifier(c)
		}
		target = " (" + strings.Join(quoted, ", ") + ")"
	}
	if req.IgnoreDuplicates {
		return "ON CONFLICT" + target + " DO NOTHING", nil
	}
	if target == "" {
		return "", errors.NewConfigurationError(
			fmt.Sprintf("UPSERT on '%s' needs conflict columns to merge duplicates", req.Table), "", nil)
	}

	conflict := make(map[string]bool, len(req.OnConflict))
	for _, c := range req.OnConflict {
		conflict[c] = true
	}
	var sets []string
	for _, c := range cols {
		if conflict[c] {
			continue
		}
		q := pq.QuoteIdentifier(c)
		sets = append(sets, q+" = EXCLUDED."+q)
	}
	if len(sets) == 0 {
		return "ON CONFLICT" + target + " DO NOTHING", nil
	}
	return "ON CONFLICT" + target + " DO UPDATE SET " + strings.Join(sets, ", "), nil
}

func refuseUnfiltered(req *query.Request) error {
	return errors.NewDatabaseError(
		fmt.Sprintf("%s on '%s' requires a filter.", req.Kind, req.Table),
		errors.CodeFilterRequired, "", nil)
}

func wrapRows(stmt string) string {
	return "SELECT COALESCE(json_agg(t), '[]'::json) FROM (" + stmt + ") AS t"
}

func wrapReturning(stmt string) string {
	return "WITH t AS (" + stmt + ") SELECT COALESCE(json_agg(t), '[]'::json) FROM t"
}

// shapeRPC reads rpc rows the way PostgREST returns them: a set-returning
// function is always an array; otherwise one row becomes its only column's
// value, or the row object when it has several columns.
func shapeRPC(body []byte, set bool) []byte {
	if set {
		return body
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil || len(rows) != 1 {
		return body
	}
	var columns map[string]json.RawMessage
	if err := json.Unmarshal(rows[0], &columns); err == nil && len(columns) == 1 {
		for _, v := range columns {
			return v
		}
	}
	return rows[0]
}

func decodeRows(payload interface{}) ([]map[string]interface{}, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		raw = append(append([]byte{'['}, raw...), ']')
	}
	var rows []map[string]interface{}
	if err := unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func decodeObject(payload interface{}) (map[string]interface{}, error) {
	if payload == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	var obj map[string]interface{}
	if err := unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		obj = map[string]interface{}{}
	}
	return obj, nil
}

func encodePayload(payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.NewDatabaseError(fmt.Sprintf("failed to encode payload: %v", err), errors.CodeDecodeFailed, "", err)
	}
	return raw, nil
}

func unmarshal(raw []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.NewDatabaseError(fmt.Sprintf("payload must be a JSON object or array of objects: %v", err), errors.CodeDecodeFailed, "", err)
	}
	return nil
}

// param converts a decoded JSON value into a driver argument. Numbers travel
// as text so PostgreSQL casts them to the column type; objects and arrays are
// sent as JSON text.
func param(v interface{}) interface{} {
	switch val := v.(type) {
	case json.Number:
		return val.String()
	case map[string]interface{}, []interface{}:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	default:
		return val
	}
}

func columnsOf(rows []map[string]interface{}) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dbError(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err
	}
	code := string(pqErr.Code)
	message := pqErr.Message
	if pqErr.Detail != "" {
		message += " (" + pqErr.Detail + ")"
	}
	// class 28: invalid authorization specification
	if strings.HasPrefix(code, "28") {
		return errors.NewAuthenticationError(message, code, err)
	}
	return errors.NewDatabaseError(message, code, pqErr.Hint, err)
}
