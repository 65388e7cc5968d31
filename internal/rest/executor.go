// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package rest runs query requests against a PostgREST endpoint over HTTP.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	uuid "github.com/gofrs/uuid"

	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/internal/pkg/log"
	"github.com/erikg84/supabase-sdk/query"
)

const (
	headerAPIKey         = "apikey"
	headerAuthorization  = "Authorization"
	headerContentType    = "Content-Type"
	headerAccept         = "Accept"
	headerPrefer         = "Prefer"
	headerAcceptProfile  = "Accept-Profile"
	headerContentProfile = "Content-Profile"
	headerContentRange   = "Content-Range"
	headerRequestID      = "X-Request-Id"

	mimeJSON = "application/json"

	defaultSchema  = "public"
	defaultTimeout = 30 * time.Second
)

// TokenSource returns the bearer token for the signed-in user. ok is false
// when there is none and the API key is used instead.
type TokenSource func() (token string, ok bool)

// Executor implements query.Executor over PostgREST.
type Executor struct {
	restURL    string
	apiKey     string
	schema     string
	httpClient *http.Client
	tokens     TokenSource
}

var _ query.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		e.httpClient = c
	}
}

// WithSchema targets a schema other than public.
func WithSchema(schema string) Option {
	return func(e *Executor) {
		e.schema = schema
	}
}

// WithTokenSource sends the user's access token instead of the API key when
// one is available.
func WithTokenSource(tokens TokenSource) Option {
	return func(e *Executor) {
		e.tokens = tokens
	}
}

// NewExecutor targets {baseURL}/rest/v1.
func NewExecutor(baseURL, apiKey string, opts ...Option) (*Executor, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.NewConfigurationError("rest executor: base URL cannot be empty", "", nil)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.NewConfigurationError("rest executor: API key cannot be empty", "", nil)
	}
	e := &Executor{
		restURL:    strings.TrimRight(baseURL, "/") + "/rest/v1",
		apiKey:     apiKey,
		schema:     defaultSchema,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// postgrestError is the JSON error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// Execute sends req as one HTTP request.
func (e *Executor) Execute(ctx context.Context, req *query.Request) (*query.Response, error) {
	requestID := uuid.Must(uuid.NewV4()).String()
	ctx = log.WithRequestID(ctx, requestID)

	httpReq, err := e.newRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set(headerRequestID, requestID)

	log.DebugWithContext(ctx, "rest: %s %s", httpReq.Method, httpReq.URL.String())
	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.NewNetworkError(err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(fmt.Sprintf("failed to read response: %v", err), err)
	}
	log.DebugWithContext(ctx, "rest: %d (%d bytes)", resp.StatusCode, len(body))

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp.StatusCode, body)
	}

	out := &query.Response{Body: body}
	if req.Count == query.CountExact {
		out.Count = parseContentRange(resp.Header.Get(headerContentRange))
	}
	return out, nil
}

func (e *Executor) newRequest(ctx context.Context, req *query.Request) (*http.Request, error) {
	method, path, err := route(req)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if hasBody(req) {
		payload := req.Payload
		if payload == nil {
			payload = struct{}{}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.NewDatabaseError(fmt.Sprintf("failed to encode payload: %v", err), errors.CodeDecodeFailed, "", err)
		}
		body = bytes.NewReader(raw)
	}

	params, err := encodeParams(req)
	if err != nil {
		return nil, err
	}
	target := e.restURL + path
	if encoded := params.Encode(); encoded != "" {
		target += "?" + encoded
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.NewConfigurationError(fmt.Sprintf("failed to create request: %v", err), "", err)
	}

	httpReq.Header.Set(headerAPIKey, e.apiKey)
	httpReq.Header.Set(headerAuthorization, "Bearer "+e.bearer())
	httpReq.Header.Set(headerAccept, mimeJSON)
	if body != nil {
		httpReq.Header.Set(headerContentType, mimeJSON)
	}
	if e.schema != "" && e.schema != defaultSchema {
		if method == http.MethodGet || method == http.MethodHead {
			httpReq.Header.Set(headerAcceptProfile, e.schema)
		} else {
			httpReq.Header.Set(headerContentProfile, e.schema)
		}
	}
	if prefer := preferHeader(req); prefer != "" {
		httpReq.Header.Set(headerPrefer, prefer)
	}
	return httpReq, nil
}

func (e *Executor) bearer() string {
	if e.tokens != nil {
		if token, ok := e.tokens(); ok && token != "" {
			return token
		}
	}
	return e.apiKey
}

func route(req *query.Request) (method, path string, err error) {
	switch req.Kind {
	case query.KindSelect:
		method = http.MethodGet
		if req.Head {
			method = http.MethodHead
		}
	case query.KindInsert, query.KindUpsert:
		method = http.MethodPost
	case query.KindUpdate:
		method = http.MethodPatch
	case query.KindDelete:
		method = http.MethodDelete
	case query.KindRPC:
		if req.Function == "" {
			return "", "", errors.NewConfigurationError("rpc request without a function name", "", nil)
		}
		return http.MethodPost, "/rpc/" + url.PathEscape(req.Function), nil
	default:
		return "", "", errors.NewConfigurationError(fmt.Sprintf("unsupported request kind %s", req.Kind), "", nil)
	}
	if req.Table == "" {
		return "", "", errors.NewConfigurationError(fmt.Sprintf("%s request without a table", req.Kind), "", nil)
	}
	return method, "/" + url.PathEscape(req.Table), nil
}

func hasBody(req *query.Request) bool {
	switch req.Kind {
	case query.KindInsert, query.KindUpsert, query.KindUpdate, query.KindRPC:
		return true
	}
	return false
}

func preferHeader(req *query.Request) string {
	var prefs []string
	switch req.Kind {
	case query.KindInsert, query.KindUpdate, query.KindDelete, query.KindUpsert:
		if req.Returning {
			prefs = append(prefs, "return=representation")
		} else {
			prefs = append(prefs, "return=minimal")
		}
	}
	if req.Kind == query.KindUpsert {
		if req.IgnoreDuplicates {
			prefs = append(prefs, "resolution=ignore-duplicates")
		} else {
			prefs = append(prefs, "resolution=merge-duplicates")
		}
	}
	if req.Count == query.CountExact {
		prefs = append(prefs, "count=exact")
	}
	return strings.Join(prefs, ",")
}

// parseContentRange reads the total from "0-9/42" or "*/42". An unknown total
// yields nil.
func parseContentRange(header string) *int64 {
	i := strings.LastIndexByte(header, '/')
	if i < 0 {
		return nil
	}
	total, err := strconv.ParseInt(strings.TrimSpace(header[i+1:]), 10, 64)
	if err != nil {
		return nil
	}
	return &total
}

func statusError(status int, body []byte) error {
	var pgErr postgrestError
	if err := json.Unmarshal(body, &pgErr); err != nil || pgErr.Message == "" {
		pgErr.Message = strings.TrimSpace(string(body))
		if pgErr.Message == "" {
			pgErr.Message = http.StatusText(status)
		}
	}
	message := pgErr.Message
	if pgErr.Details != "" {
		message += " (" + pgErr.Details + ")"
	}
	code := pgErr.Code
	if code == "" {
		code = strconv.Itoa(status)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.NewAuthenticationError(message, code, nil)
	default:
		return errors.NewDatabaseError(message, code, pgErr.Hint, nil)
	}
}
