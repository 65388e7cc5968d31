// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package query

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/internal/pkg/log"
	"github.com/erikg84/supabase-sdk/result"
)

// run performs the single executor call behind every terminal. Executor errors
// come back as Database failures naming the operation and target.
func run(ctx context.Context, exec Executor, req *Request) (*Response, *errors.Error) {
	if exec == nil {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("%s on '%s' has no executor", req.Kind, req.Target()),
			errors.CodeNotConfigured, nil)
	}

	log.DebugWithContext(ctx, "query: %s", req)
	r, err := exec.Execute(ctx, req)
	if err != nil {
		log.DebugWithContext(ctx, "query: %s failed: %v", req, err)
		return nil, failed(req, err)
	}
	if r == nil {
		r = &Response{}
	}
	return r, nil
}

// recoverInto is deferred by every terminal so a panic in the executor or in
// decoding still ends as a Failure.
func recoverInto[T any](req *Request, out *result.Result[T]) {
	if rec := recover(); rec != nil {
		*out = result.Failure[T](failed(req, errors.FromPanic(rec, errors.KindDatabase)))
	}
}

func failed(req *Request, cause error) *errors.Error {
	c := errors.Classify(cause, errors.KindDatabase)
	return errors.NewDatabaseError(
		fmt.Sprintf("%s on '%s' failed: %s", req.Kind, req.Target(), c.Message),
		c.Code, c.Hint, c)
}

func requiresFilter(req *Request) *errors.Error {
	return errors.NewDatabaseError(
		fmt.Sprintf("%s on '%s' requires a filter.", req.Kind, req.Table),
		errors.CodeFilterRequired, "add at least one predicate with Where", nil)
}

func decodeFailed(req *Request, err error) *errors.Error {
	return errors.NewDatabaseError(
		fmt.Sprintf("%s on '%s' failed: %s", req.Kind, req.Target(), err.Error()),
		errors.CodeDecodeFailed, "", err)
}

func cardinality(got int) *errors.Error {
	msg := "expected exactly 1 row, got 0"
	if got > 1 {
		msg = fmt.Sprintf("expected exactly 1 row, got %d+", got)
	}
	return errors.NewDatabaseError(msg, errors.CodeCardinality, "", nil)
}

func isEmptyBody(body []byte) bool {
	body = bytes.TrimSpace(body)
	return len(body) == 0 || bytes.Equal(body, []byte("null"))
}

// decodeRows decodes a JSON array. An empty body decodes to an empty slice.
func decodeRows[T any](req *Request, body []byte) ([]T, *errors.Error) {
	rows := []T{}
	if isEmptyBody(body) {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, decodeFailed(req, err)
	}
	return rows, nil
}

// decodeValue decodes any JSON value. An empty body decodes to the zero value.
func decodeValue[T any](req *Request, body []byte) (T, *errors.Error) {
	var v T
	if isEmptyBody(body) {
		return v, nil
	}
	if err := json.Unmarshal(body, &v); err != nil {
		var zero T
		return zero, decodeFailed(req, err)
	}
	return v, nil
}
