// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package query

import (
	"context"

	"github.com/erikg84/supabase-sdk/result"
)

// RPC calls a database function and decodes its JSON result into R. params is
// encoded as the function's named arguments and may be nil.
func RPC[R any](ctx context.Context, exec Executor, function string, params interface{}) (out result.Result[R]) {
	req := &Request{Kind: KindRPC, Function: function, Payload: params, Returning: true}
	defer recoverInto(req, &out)

	resp, failure := run(ctx, exec, req)
	if failure != nil {
		return result.Failure[R](failure)
	}
	v, failure := decodeValue[R](req, resp.Body)
	if failure != nil {
		return result.Failure[R](failure)
	}
	return result.Success(v)
}
