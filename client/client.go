// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package client composes a query executor and the auth state wrapper into a
// caller-owned Client.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/erikg84/supabase-sdk/auth"
	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/internal/gotrue"
	"github.com/erikg84/supabase-sdk/internal/pkg/log"
	"github.com/erikg84/supabase-sdk/internal/platform/config"
	"github.com/erikg84/supabase-sdk/internal/rest"
	"github.com/erikg84/supabase-sdk/internal/session"
	"github.com/erikg84/supabase-sdk/internal/sqlexec"
	"github.com/erikg84/supabase-sdk/query"
	"github.com/erikg84/supabase-sdk/result"
)

// Client owns one executor and one auth service. It is safe for concurrent
// use; build tables from it with Table.
type Client struct {
	exec     query.Executor
	auth     *auth.Service
	backend  auth.Backend
	pageSize int64

	stopWatch context.CancelFunc
	watchDone chan struct{}
	closers   []func() error
}

// Option configures a Client.
type Option func(*options)

type options struct {
	schema           string
	timeout          time.Duration
	httpClient       *http.Client
	executor         query.Executor
	backend          auth.Backend
	pageSize         int64
	minPasswordScore int
}

// WithSchema targets a schema other than public.
func WithSchema(schema string) Option {
	return func(o *options) { o.schema = schema }
}

// WithTimeout bounds every REST request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithExecutor replaces the PostgREST executor.
func WithExecutor(exec query.Executor) Option {
	return func(o *options) { o.executor = exec }
}

// WithAuthBackend replaces the GoTrue backend.
func WithAuthBackend(backend auth.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithPageSize sets the default window for offset-only selects.
func WithPageSize(n int64) Option {
	return func(o *options) { o.pageSize = n }
}

// WithMinPasswordScore rejects weaker passwords on sign-up and password
// update. Scores run from 0 to 4.
func WithMinPasswordScore(score int) Option {
	return func(o *options) { o.minPasswordScore = score }
}

// New creates a client for the project at url. Unless replaced by options,
// queries go to PostgREST carrying the signed-in user's token and auth goes
// to GoTrue.
func New(url, key string, opts ...Option) (*Client, error) {
	o := options{pageSize: query.DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{pageSize: o.pageSize}

	c.backend = o.backend
	if c.backend == nil {
		backend, err := gotrue.New(url, key)
		if err != nil {
			return nil, err
		}
		c.backend = backend
	}
	if closer, ok := c.backend.(interface{ Close() }); ok {
		c.closers = append(c.closers, func() error {
			closer.Close()
			return nil
		})
	}

	c.auth = auth.NewService(c.backend, auth.WithMinPasswordScore(o.minPasswordScore))

	c.exec = o.executor
	if c.exec == nil {
		restOpts := []rest.Option{rest.WithTokenSource(c.auth.AccessToken)}
		if o.schema != "" {
			restOpts = append(restOpts, rest.WithSchema(o.schema))
		}
		switch {
		case o.httpClient != nil:
			restOpts = append(restOpts, rest.WithHTTPClient(o.httpClient))
		case o.timeout > 0:
			restOpts = append(restOpts, rest.WithHTTPClient(&http.Client{Timeout: o.timeout}))
		}
		exec, err := rest.NewExecutor(url, key, restOpts...)
		if err != nil {
			return nil, err
		}
		c.exec = exec
	}
	if closer, ok := c.exec.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.stopWatch = cancel
	c.watchDone = make(chan struct{})
	go func() {
		defer close(c.watchDone)
		c.auth.Watch(ctx)
	}()
	return c, nil
}

// NewFromConfig builds a client from validated configuration: it opens the
// session store, restores any stored session and picks the executor.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewConfigurationError("invalid configuration", "", err)
	}
	log.SetDebug(cfg.Debug)

	var (
		store   session.Store
		closers []func() error
	)
	switch cfg.Auth.SessionStore {
	case config.SessionStoreRedis:
		redisStore, err := session.NewRedisStore(ctx, session.RedisConfig{
			Address:  cfg.Auth.Redis.Address,
			Password: cfg.Auth.Redis.Password,
			Database: cfg.Auth.Redis.Database,
			Key:      cfg.Auth.SessionKey,
		})
		if err != nil {
			return nil, errors.NewConfigurationError("failed to open redis session store", "", err)
		}
		store = redisStore
		closers = append(closers, redisStore.Close)
	default:
		store = session.NewMemoryStore()
	}

	backend, err := gotrue.New(cfg.Supabase.URL, cfg.Supabase.Key, gotrue.WithStore(store))
	if err != nil {
		closeAll(closers)
		return nil, err
	}
	if err := backend.Restore(ctx); err != nil {
		log.Warn("Stored session could not be restored: %v", err)
	}

	opts := []Option{
		WithAuthBackend(backend),
		WithSchema(cfg.Supabase.Schema),
		WithTimeout(cfg.Supabase.Timeout),
		WithPageSize(int64(cfg.Query.DefaultPageSize)),
		WithMinPasswordScore(cfg.Auth.MinPasswordScore),
	}
	if cfg.Query.Executor == config.ExecutorSQL {
		exec, err := sqlexec.Open(ctx, cfg.Database.DSN, cfg.Supabase.Schema, sqlexec.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			backend.Close()
			closeAll(closers)
			return nil, err
		}
		opts = append(opts, WithExecutor(exec))
	}

	c, err := New(cfg.Supabase.URL, cfg.Supabase.Key, opts...)
	if err != nil {
		backend.Close()
		closeAll(closers)
		return nil, err
	}
	c.closers = append(c.closers, closers...)
	log.Info("Supabase client ready (executor=%s, session store=%s)", cfg.Query.Executor, cfg.Auth.SessionStore)
	return c, nil
}

// Auth returns the auth state wrapper.
func (c *Client) Auth() *auth.Service { return c.auth }

// Executor returns the executor every table of this client uses.
func (c *Client) Executor() query.Executor { return c.exec }

// Close stops session watching and releases the executor, backend and
// session store. The first error is returned.
func (c *Client) Close() error {
	c.stopWatch()
	<-c.watchDone
	c.auth.Close()
	return closeAll(c.closers)
}

// Table returns a typed reference to a table of c.
func Table[T any](c *Client, name string) *query.Table[T] {
	return query.From[T](c.exec, name, query.WithPageSize(c.pageSize))
}

// RPC calls a database function through c.
func RPC[R any](ctx context.Context, c *Client, function string, params interface{}) result.Result[R] {
	return query.RPC[R](ctx, c.exec, function, params)
}

func closeAll(closers []func() error) error {
	var first error
	for _, closeFn := range closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
