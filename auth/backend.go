// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package auth

import (
	"context"
	"time"
)

// BackendUser is the user record as the auth backend reports it. Timestamps are
// kept as the backend formats them; empty means absent.
type BackendUser struct {
	ID               string                 `json:"id"`
	Email            string                 `json:"email,omitempty"`
	Phone            string                 `json:"phone,omitempty"`
	EmailConfirmedAt string                 `json:"email_confirmed_at,omitempty"`
	PhoneConfirmedAt string                 `json:"phone_confirmed_at,omitempty"`
	CreatedAt        string                 `json:"created_at,omitempty"`
	LastSignInAt     string                 `json:"last_sign_in_at,omitempty"`
	AppMetadata      map[string]interface{} `json:"app_metadata,omitempty"`
	UserMetadata     map[string]interface{} `json:"user_metadata,omitempty"`
}

// Session is the backend's current session.
type Session struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *BackendUser `json:"user,omitempty"`
}

// Expired reports whether the access token is past its expiry at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// UserUpdate changes the signed-in user. Nil fields are left alone.
type UserUpdate struct {
	Email    *string
	Password *string
	Data     map[string]interface{}
}

// SessionStatus is pushed by the backend when its session changes.
type SessionStatus int

const (
	StatusAuthenticated SessionStatus = iota
	StatusNotAuthenticated
	StatusRefreshFailure
)

func (s SessionStatus) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusNotAuthenticated:
		return "not_authenticated"
	case StatusRefreshFailure:
		return "refresh_failure"
	default:
		return "unknown"
	}
}

// Backend is the remote auth provider. Operations that establish a session
// keep it internally; CurrentSession reads it back.
type Backend interface {
	SignInWithEmail(ctx context.Context, email, password string) error
	SignUpWithEmail(ctx context.Context, email, password string, metadata map[string]interface{}) error

	SendEmailOTP(ctx context.Context, email string, createUser bool) error
	VerifyEmailOTP(ctx context.Context, email, token string) error
	SendPhoneOTP(ctx context.Context, phone string, createUser bool) error
	VerifyPhoneOTP(ctx context.Context, phone, token string) error

	ResetPasswordForEmail(ctx context.Context, email string) error

	// CurrentSession returns nil when nobody is signed in.
	CurrentSession() *Session
	RefreshSession(ctx context.Context) error
	SignOut(ctx context.Context) error
	UpdateUser(ctx context.Context, update UserUpdate) error

	// SessionStatus subscribes to session changes. cancel ends the subscription
	// and closes the channel.
	SessionStatus() (statuses <-chan SessionStatus, cancel func())
}
