// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package auth

import (
	"context"
	"sync"

	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/internal/pkg/broadcast"
	"github.com/erikg84/supabase-sdk/internal/pkg/log"
	"github.com/erikg84/supabase-sdk/result"
)

const (
	msgConfirmEmail    = "sign-up requires email confirmation: check your email to confirm your account"
	msgNoSession       = "no active session"
	msgSessionVanished = "operation succeeded but no session is available"
	msgRefreshFailed   = "session refresh failed"
)

// Service owns the authentication state. Only Service writes it, always by
// replacing the whole value; readers get snapshots or change notifications.
type Service struct {
	backend Backend

	// op serialises state-changing operations with Watch, so a session
	// status is applied either before or after an operation, never inside it.
	op sync.Mutex

	mu    sync.RWMutex
	state State
	feed  *broadcast.Feed[State]

	minPasswordScore int
}

// Option configures a Service.
type Option func(*Service)

// WithMinPasswordScore rejects new passwords whose zxcvbn score is below score.
func WithMinPasswordScore(score int) Option {
	return func(s *Service) {
		s.minPasswordScore = score
	}
}

// NewService starts in StateUnknown. Call Recompute or Watch to settle it.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		state:   Unknown(),
		feed:    broadcast.New[State](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentUser returns the signed-in user, or nil.
func (s *Service) CurrentUser() *User {
	return s.State().User
}

func (s *Service) IsAuthenticated() bool {
	return s.State().IsAuthenticated()
}

// Subscribe delivers every later state change. A slow reader may miss
// intermediate states but always receives the latest one.
func (s *Service) Subscribe(buffer int) (<-chan State, func()) {
	return s.feed.Subscribe(buffer)
}

func (s *Service) set(st State) State {
	s.mu.Lock()
	s.state = st
	s.feed.Publish(st)
	s.mu.Unlock()
	log.Debug("auth: state -> %s", st)
	return st
}

// Recompute derives the state from the backend's current session.
func (s *Service) Recompute() State {
	s.op.Lock()
	defer s.op.Unlock()
	return s.recompute()
}

func (s *Service) recompute() State {
	var session *Session
	if err := guard(func() error {
		session = s.backend.CurrentSession()
		return nil
	}); err != nil {
		return s.set(Failed(err.Message, err))
	}
	if session == nil || session.User == nil {
		return s.set(Unauthenticated())
	}
	return s.set(Authenticated(NewUser(session.User)))
}

// establish runs a backend call expected to leave a session behind.
func (s *Service) establish(call func() error) result.Result[*User] {
	s.op.Lock()
	defer s.op.Unlock()

	s.set(Loading())
	if err := guard(call); err != nil {
		s.set(Failed(err.Message, err))
		return result.Failure[*User](err)
	}
	st := s.recompute()
	if st.User == nil {
		err := errors.NewAuthenticationError(msgSessionVanished, errors.CodeNoSession, nil)
		s.set(Failed(err.Message, err))
		return result.Failure[*User](err)
	}
	return result.Success(st.User)
}

func (s *Service) SignInWithEmail(ctx context.Context, email, password string) result.Result[*User] {
	return s.establish(func() error {
		return s.backend.SignInWithEmail(ctx, email, password)
	})
}

// SignUpWithEmail creates an account. When the backend requires email
// confirmation no session exists yet: the state becomes Unauthenticated and the
// failure says to check the inbox.
func (s *Service) SignUpWithEmail(ctx context.Context, email, password string, metadata map[string]interface{}) result.Result[*User] {
	if err := checkPassword(password, s.minPasswordScore, email); err != nil {
		return result.Failure[*User](err)
	}

	s.op.Lock()
	defer s.op.Unlock()

	s.set(Loading())
	if err := guard(func() error {
		return s.backend.SignUpWithEmail(ctx, email, password, metadata)
	}); err != nil {
		s.set(Failed(err.Message, err))
		return result.Failure[*User](err)
	}
	st := s.recompute()
	if st.User == nil {
		return result.Failure[*User](errors.NewAuthenticationError(msgConfirmEmail, errors.CodeEmailNotVerified, nil))
	}
	return result.Success(st.User)
}

// SendEmailOTP sends a one-time code or magic link. The state is unchanged.
func (s *Service) SendEmailOTP(ctx context.Context, email string) result.Result[result.Unit] {
	return unit(guard(func() error {
		return s.backend.SendEmailOTP(ctx, email, true)
	}))
}

func (s *Service) VerifyEmailOTP(ctx context.Context, email, token string) result.Result[*User] {
	return s.establish(func() error {
		return s.backend.VerifyEmailOTP(ctx, email, token)
	})
}

// SendPhoneOTP sends a one-time code by SMS. The state is unchanged.
func (s *Service) SendPhoneOTP(ctx context.Context, phone string) result.Result[result.Unit] {
	return unit(guard(func() error {
		return s.backend.SendPhoneOTP(ctx, phone, true)
	}))
}

func (s *Service) VerifyPhoneOTP(ctx context.Context, phone, token string) result.Result[*User] {
	return s.establish(func() error {
		return s.backend.VerifyPhoneOTP(ctx, phone, token)
	})
}

// SendPasswordResetEmail does not touch the state.
func (s *Service) SendPasswordResetEmail(ctx context.Context, email string) result.Result[bool] {
	if err := guard(func() error {
		return s.backend.ResetPasswordForEmail(ctx, email)
	}); err != nil {
		return result.Failure[bool](err)
	}
	return result.Success(true)
}

func (s *Service) UpdatePassword(ctx context.Context, password string) result.Result[*User] {
	var inputs []string
	if u := s.CurrentUser(); u != nil {
		inputs = append(inputs, u.Email)
	}
	if err := checkPassword(password, s.minPasswordScore, inputs...); err != nil {
		return result.Failure[*User](err)
	}
	return s.update(ctx, UserUpdate{Password: &password})
}

func (s *Service) UpdateEmail(ctx context.Context, email string) result.Result[*User] {
	return s.update(ctx, UserUpdate{Email: &email})
}

// UpdateUser replaces keys in the user's metadata.
func (s *Service) UpdateUser(ctx context.Context, metadata map[string]interface{}) result.Result[*User] {
	return s.update(ctx, UserUpdate{Data: metadata})
}

func (s *Service) update(ctx context.Context, update UserUpdate) result.Result[*User] {
	s.op.Lock()
	defer s.op.Unlock()

	if err := guard(func() error {
		return s.backend.UpdateUser(ctx, update)
	}); err != nil {
		return result.Failure[*User](err)
	}
	st := s.recompute()
	if st.User == nil {
		return result.Failure[*User](errors.NewAuthenticationError(msgNoSession, errors.CodeNoSession, nil))
	}
	return result.Success(st.User)
}

// SignOut ends the session. On failure the state is left as it was.
func (s *Service) SignOut(ctx context.Context) result.Result[result.Unit] {
	s.op.Lock()
	defer s.op.Unlock()

	if err := guard(func() error {
		return s.backend.SignOut(ctx)
	}); err != nil {
		return result.Failure[result.Unit](err)
	}
	s.set(Unauthenticated())
	return result.Success(result.Unit{})
}

// RefreshSession exchanges the refresh token. A missing session afterwards is
// an expected outcome: the state becomes Unauthenticated, not Error.
func (s *Service) RefreshSession(ctx context.Context) result.Result[*User] {
	s.op.Lock()
	defer s.op.Unlock()

	s.set(Loading())
	if err := guard(func() error {
		return s.backend.RefreshSession(ctx)
	}); err != nil {
		s.set(Failed(err.Message, err))
		return result.Failure[*User](err)
	}
	st := s.recompute()
	if st.User == nil {
		return result.Failure[*User](errors.NewAuthenticationError(msgNoSession, errors.CodeNoSession, nil))
	}
	return result.Success(st.User)
}

// AccessToken returns the current access token. ok is false when there is no
// session or the backend could not be read.
func (s *Service) AccessToken() (token string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			token, ok = "", false
		}
	}()
	session := s.backend.CurrentSession()
	if session == nil || session.AccessToken == "" {
		return "", false
	}
	return session.AccessToken, true
}

// Watch applies every backend session change until ctx is done or the
// backend closes its stream. It settles the state once on entry. A refresh
// failure is an Error state, since the backend keeps the stale session.
func (s *Service) Watch(ctx context.Context) error {
	statuses, cancel := s.backend.SessionStatus()
	defer cancel()

	s.Recompute()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case status, open := <-statuses:
			if !open {
				return nil
			}
			log.DebugWithContext(ctx, "auth: session status %s", status)
			s.apply(status)
		}
	}
}

func (s *Service) apply(status SessionStatus) {
	s.op.Lock()
	defer s.op.Unlock()

	if status != StatusRefreshFailure {
		s.recompute()
		return
	}
	if s.State().Kind == StateError {
		return
	}
	err := errors.NewAuthenticationError(msgRefreshFailed, errors.CodeRefreshFailed, nil)
	s.set(Failed(err.Message, err))
}

// Close ends every subscription.
func (s *Service) Close() {
	s.feed.Close()
}

// guard runs a backend call and turns its error or panic into an *errors.Error.
func guard(call func() error) (failure *errors.Error) {
	defer func() {
		if rec := recover(); rec != nil {
			failure = errors.FromPanic(rec, errors.KindAuthentication)
		}
	}()
	if err := call(); err != nil {
		return errors.Classify(err, errors.KindAuthentication)
	}
	return nil
}

func unit(err *errors.Error) result.Result[result.Unit] {
	if err != nil {
		return result.Failure[result.Unit](err)
	}
	return result.Success(result.Unit{})
}
