package auth

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a test double for the auth backend.
type MockBackend struct {
	mock.Mock
}

var _ Backend = (*MockBackend)(nil)

func (m *MockBackend) SignInWithEmail(ctx context.Context, email, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

func (m *MockBackend) SignUpWithEmail(ctx context.Context, email, password string, metadata map[string]interface{}) error {
	args := m.Called(ctx, email, password, metadata)
	return args.Error(0)
}

func (m *MockBackend) SendEmailOTP(ctx context.Context, email string, createUser bool) error {
	args := m.Called(ctx, email, createUser)
	return args.Error(0)
}

func (m *MockBackend) VerifyEmailOTP(ctx context.Context, email, token string) error {
	args := m.Called(ctx, email, token)
	return args.Error(0)
}

func (m *MockBackend) SendPhoneOTP(ctx context.Context, phone string, createUser bool) error {
	args := m.Called(ctx, phone, createUser)
	return args.Error(0)
}

func (m *MockBackend) VerifyPhoneOTP(ctx context.Context, phone, token string) error {
	args := m.Called(ctx, phone, token)
	return args.Error(0)
}

func (m *MockBackend) ResetPasswordForEmail(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockBackend) CurrentSession() *Session {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*Session)
}

func (m *MockBackend) RefreshSession(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) UpdateUser(ctx context.Context, update UserUpdate) error {
	args := m.Called(ctx, update)
	return args.Error(0)
}

func (m *MockBackend) SessionStatus() (<-chan SessionStatus, func()) {
	args := m.Called()
	return args.Get(0).(<-chan SessionStatus), args.Get(1).(func())
}
