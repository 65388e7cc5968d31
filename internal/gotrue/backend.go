// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gotrue implements auth.Backend against a Supabase GoTrue server.
package gotrue

import (
	"context"
	"strings"
	"sync"
	"time"

	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"

	"github.com/erikg84/supabase-sdk/auth"
	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/internal/pkg/broadcast"
	"github.com/erikg84/supabase-sdk/internal/pkg/log"
	"github.com/erikg84/supabase-sdk/internal/session"
)

// Backend holds the current session in memory and mirrors it to a Store.
type Backend struct {
	client gotrue.Client
	store  session.Store
	feed   *broadcast.Feed[auth.SessionStatus]

	mu      sync.RWMutex
	current *auth.Session
}

var _ auth.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithStore persists sessions in store instead of process memory.
func WithStore(store session.Store) Option {
	return func(b *Backend) {
		if store != nil {
			b.store = store
		}
	}
}

// New creates a backend for the project at baseURL, e.g. https://xyz.supabase.co.
func New(baseURL, apiKey string, opts ...Option) (*Backend, error) {
	if baseURL == "" {
		return nil, errors.NewConfigurationError("supabase url is required", errors.CodeNotConfigured, nil)
	}
	if apiKey == "" {
		return nil, errors.NewConfigurationError("supabase api key is required", errors.CodeNotConfigured, nil)
	}

	authURL := strings.TrimSuffix(baseURL, "/") + "/auth/v1"
	b := &Backend{
		client: gotrue.New("", apiKey).WithCustomGoTrueURL(authURL),
		store:  session.NewMemoryStore(),
		feed:   broadcast.New[auth.SessionStatus](),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Restore loads a persisted session. An expired one is refreshed; if that
// fails the stored session is dropped.
func (b *Backend) Restore(ctx context.Context) error {
	stored, err := b.store.Load(ctx)
	if err != nil {
		return errors.NewConfigurationError("failed to load stored session", "", err)
	}
	if stored == nil || stored.AccessToken == "" {
		return nil
	}

	b.mu.Lock()
	b.current = stored
	b.mu.Unlock()

	if stored.Expired(time.Now()) {
		log.Info("Stored session expired at %s, refreshing", stored.ExpiresAt.Format(time.RFC3339))
		if err := b.RefreshSession(ctx); err != nil {
			b.drop(ctx)
			return err
		}
		return nil
	}
	b.feed.Publish(auth.StatusAuthenticated)
	return nil
}

func (b *Backend) SignInWithEmail(ctx context.Context, email, password string) error {
	if err := ctx.Err(); err != nil {
		return fail("sign in", err)
	}
	resp, err := b.client.SignInWithEmailPassword(email, password)
	if err != nil {
		return fail("sign in", err)
	}
	return b.establish(ctx, resp.AccessToken, resp.RefreshToken)
}

// SignUpWithEmail leaves the backend signed out when the project requires
// email confirmation.
func (b *Backend) SignUpWithEmail(ctx context.Context, email, password string, metadata map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return fail("sign up", err)
	}
	resp, err := b.client.Signup(types.SignupRequest{
		Email:    email,
		Password: password,
		Data:     metadata,
	})
	if err != nil {
		return fail("sign up", err)
	}
	if resp.AccessToken == "" {
		return nil
	}
	return b.establish(ctx, resp.AccessToken, resp.RefreshToken)
}

func (b *Backend) SendEmailOTP(ctx context.Context, email string, createUser bool) error {
	if err := ctx.Err(); err != nil {
		return fail("send email otp", err)
	}
	if err := b.client.OTP(types.OTPRequest{Email: email, CreateUser: createUser}); err != nil {
		return fail("send email otp", err)
	}
	return nil
}

func (b *Backend) VerifyEmailOTP(ctx context.Context, email, token string) error {
	return b.verify(ctx, types.VerifyForUserRequest{
		Type:  types.VerificationTypeMagiclink,
		Token: token,
		Email: email,
	})
}

func (b *Backend) SendPhoneOTP(ctx context.Context, phone string, createUser bool) error {
	if err := ctx.Err(); err != nil {
		return fail("send phone otp", err)
	}
	if err := b.client.OTP(types.OTPRequest{Phone: phone, CreateUser: createUser}); err != nil {
		return fail("send phone otp", err)
	}
	return nil
}

func (b *Backend) VerifyPhoneOTP(ctx context.Context, phone, token string) error {
	return b.verify(ctx, types.VerifyForUserRequest{
		Type:  types.VerificationTypeSMS,
		Token: token,
		Phone: phone,
	})
}

func (b *Backend) verify(ctx context.Context, req types.VerifyForUserRequest) error {
	if err := ctx.Err(); err != nil {
		return fail("verify otp", err)
	}
	resp, err := b.client.VerifyForUser(req)
	if err != nil {
		return fail("verify otp", err)
	}
	return b.establish(ctx, resp.AccessToken, resp.RefreshToken)
}

func (b *Backend) ResetPasswordForEmail(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return fail("password recovery", err)
	}
	if err := b.client.Recover(types.RecoverRequest{Email: email}); err != nil {
		return fail("password recovery", err)
	}
	return nil
}

// CurrentSession returns a copy of the held session.
func (b *Backend) CurrentSession() *auth.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return nil
	}
	cp := *b.current
	return &cp
}

// RefreshSession exchanges the refresh token for a new session. Failures are
// announced as StatusRefreshFailure; the old session is kept.
func (b *Backend) RefreshSession(ctx context.Context) error {
	current := b.CurrentSession()
	if current == nil || current.RefreshToken == "" {
		return errors.NewAuthenticationError("no session to refresh", errors.CodeNoSession, nil)
	}
	if err := ctx.Err(); err != nil {
		return fail("refresh session", err)
	}

	resp, err := b.client.RefreshToken(current.RefreshToken)
	if err != nil {
		b.feed.Publish(auth.StatusRefreshFailure)
		return fail("refresh session", err)
	}
	if err := b.establish(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		b.feed.Publish(auth.StatusRefreshFailure)
		return err
	}
	return nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	current := b.CurrentSession()
	if current == nil {
		b.drop(ctx)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fail("sign out", err)
	}
	if err := b.client.WithToken(current.AccessToken).Logout(); err != nil {
		return fail("sign out", err)
	}
	b.drop(ctx)
	return nil
}

func (b *Backend) UpdateUser(ctx context.Context, update auth.UserUpdate) error {
	current := b.CurrentSession()
	if current == nil {
		return errors.NewAuthenticationError("no signed-in user to update", errors.CodeNoSession, nil)
	}
	if err := ctx.Err(); err != nil {
		return fail("update user", err)
	}

	req := types.UpdateUserRequest{
		Password: update.Password,
		Data:     update.Data,
	}
	if update.Email != nil {
		req.Email = *update.Email
	}

	authed := b.client.WithToken(current.AccessToken)
	if _, err := authed.UpdateUser(req); err != nil {
		return fail("update user", err)
	}

	user, err := fetchUser(authed)
	if err != nil {
		return err
	}
	current.User = user
	b.keep(ctx, current)
	return nil
}

// SessionStatus subscribes to session changes.
func (b *Backend) SessionStatus() (<-chan auth.SessionStatus, func()) {
	return b.feed.Subscribe(4)
}

// Close ends every status subscription.
func (b *Backend) Close() {
	b.feed.Close()
}

// establish resolves the user behind a freshly issued token pair and makes
// it the current session.
func (b *Backend) establish(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" {
		return errors.NewAuthenticationError("auth server returned no access token", errors.CodeNoSession, nil)
	}
	user, err := fetchUser(b.client.WithToken(accessToken))
	if err != nil {
		return err
	}
	b.keep(ctx, &auth.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    tokenExpiry(accessToken),
		User:         user,
	})
	b.feed.Publish(auth.StatusAuthenticated)
	return nil
}

// keep sets the current session and persists it. Persistence failures are
// logged only; the in-memory session stays authoritative.
func (b *Backend) keep(ctx context.Context, s *auth.Session) {
	b.mu.Lock()
	b.current = s
	b.mu.Unlock()

	if err := b.store.Save(ctx, s); err != nil {
		log.Warn("Failed to persist session: %v", err)
	}
}

func (b *Backend) drop(ctx context.Context) {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()

	if err := b.store.Clear(ctx); err != nil {
		log.Warn("Failed to clear stored session: %v", err)
	}
	b.feed.Publish(auth.StatusNotAuthenticated)
}
