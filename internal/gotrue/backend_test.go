package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erikg84/supabase-sdk/auth"
	"github.com/erikg84/supabase-sdk/errors"
	"github.com/erikg84/supabase-sdk/internal/session"
)

const userID = "8b6f0d2e-3b1a-4c8e-9f6a-1d2c3b4a5e6f"

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": exp.Unix(),
	})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

type fakeServer struct {
	t      *testing.T
	access string

	mu    sync.Mutex
	calls []string
}

func (f *fakeServer) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
}

func (f *fakeServer) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.record(r)
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/auth/v1/token":
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] == "wrong" || body["refresh_token"] == "revoked" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  f.access,
			"token_type":    "bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
			"user":          f.user(),
		})
	case r.URL.Path == "/auth/v1/user":
		if r.Header.Get("Authorization") != "Bearer "+f.access {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(f.user())
	case r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) user() map[string]interface{} {
	return map[string]interface{}{
		"id":                 userID,
		"aud":                "authenticated",
		"role":               "authenticated",
		"email":              "ada@example.com",
		"email_confirmed_at": "2024-01-02T03:04:05Z",
		"created_at":         "2024-01-01T00:00:00Z",
		"updated_at":         "2024-01-02T03:04:05Z",
		"app_metadata":       map[string]interface{}{"provider": "email"},
		"user_metadata":      map[string]interface{}{"full_name": "Ada Lovelace"},
	}
}

func newTestBackend(t *testing.T, store session.Store) (*Backend, *fakeServer) {
	t.Helper()
	fake := &fakeServer{t: t, access: signedToken(t, time.Now().Add(time.Hour).Truncate(time.Second))}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	b, err := New(srv.URL, "anon-key", WithStore(store))
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b, fake
}

func TestNew_RequiresURLAndKey(t *testing.T) {
	_, err := New("", "key")
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))

	_, err = New("https://example.supabase.co", "")
	assert.Equal(t, errors.KindConfiguration, errors.KindOf(err))
}

func TestSignInWithEmail(t *testing.T) {
	store := session.NewMemoryStore()
	b, fake := newTestBackend(t, store)
	statuses, cancel := b.SessionStatus()
	defer cancel()

	require.NoError(t, b.SignInWithEmail(context.Background(), "ada@example.com", "secret"))

	current := b.CurrentSession()
	require.NotNil(t, current)
	assert.Equal(t, fake.access, current.AccessToken)
	assert.Equal(t, "refresh-1", current.RefreshToken)
	assert.False(t, current.ExpiresAt.IsZero())
	require.NotNil(t, current.User)
	assert.Equal(t, userID, current.User.ID)
	assert.Equal(t, "ada@example.com", current.User.Email)
	assert.NotEmpty(t, current.User.EmailConfirmedAt)
	assert.Equal(t, "Ada Lovelace", current.User.UserMetadata["full_name"])

	stored, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, current.AccessToken, stored.AccessToken)

	assert.Equal(t, auth.StatusAuthenticated, <-statuses)
	assert.True(t, fake.called("GET /auth/v1/user"))
}

func TestSignInWithEmail_Rejected(t *testing.T) {
	b, _ := newTestBackend(t, nil)

	err := b.SignInWithEmail(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, errors.KindAuthentication, errors.KindOf(err))
	assert.Nil(t, b.CurrentSession())
}

func TestSignInWithEmail_CancelledContext(t *testing.T) {
	b, fake := newTestBackend(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.SignInWithEmail(ctx, "ada@example.com", "secret")
	assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	assert.False(t, fake.called("POST /auth/v1/token"))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh session", func(t *testing.T) {
		store := session.NewMemoryStore()
		b, fake := newTestBackend(t, store)
		require.NoError(t, store.Save(ctx, &auth.Session{
			AccessToken:  fake.access,
			RefreshToken: "refresh-0",
			ExpiresAt:    time.Now().Add(time.Hour),
			User:         &auth.BackendUser{ID: userID},
		}))

		require.NoError(t, b.Restore(ctx))
		require.NotNil(t, b.CurrentSession())
		assert.Equal(t, "refresh-0", b.CurrentSession().RefreshToken)
		assert.False(t, fake.called("POST /auth/v1/token"))
	})

	t.Run("expired session is refreshed", func(t *testing.T) {
		store := session.NewMemoryStore()
		b, fake := newTestBackend(t, store)
		require.NoError(t, store.Save(ctx, &auth.Session{
			AccessToken:  "stale",
			RefreshToken: "refresh-0",
			ExpiresAt:    time.Now().Add(-time.Minute),
		}))

		require.NoError(t, b.Restore(ctx))
		require.NotNil(t, b.CurrentSession())
		assert.Equal(t, fake.access, b.CurrentSession().AccessToken)
		assert.Equal(t, "refresh-1", b.CurrentSession().RefreshToken)
	})

	t.Run("revoked session is dropped", func(t *testing.T) {
		store := session.NewMemoryStore()
		b, _ := newTestBackend(t, store)
		require.NoError(t, store.Save(ctx, &auth.Session{
			AccessToken:  "stale",
			RefreshToken: "revoked",
			ExpiresAt:    time.Now().Add(-time.Minute),
		}))

		require.Error(t, b.Restore(ctx))
		assert.Nil(t, b.CurrentSession())
		stored, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("nothing stored", func(t *testing.T) {
		b, _ := newTestBackend(t, nil)
		require.NoError(t, b.Restore(ctx))
		assert.Nil(t, b.CurrentSession())
	})
}

func TestRefreshSession_Failure(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	b, _ := newTestBackend(t, store)
	require.NoError(t, store.Save(ctx, &auth.Session{AccessToken: "a", RefreshToken: "revoked"}))
	require.NoError(t, b.Restore(ctx))

	statuses, cancel := b.SessionStatus()
	defer cancel()

	err := b.RefreshSession(ctx)
	require.Error(t, err)
	assert.Equal(t, auth.StatusRefreshFailure, <-statuses)
	assert.NotNil(t, b.CurrentSession())
}

func TestRefreshSession_NoSession(t *testing.T) {
	b, _ := newTestBackend(t, nil)
	err := b.RefreshSession(context.Background())
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.CodeNoSession, e.Code)
}

func TestSignOut(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	b, fake := newTestBackend(t, store)
	require.NoError(t, b.SignInWithEmail(ctx, "ada@example.com", "secret"))

	statuses, cancel := b.SessionStatus()
	defer cancel()

	require.NoError(t, b.SignOut(ctx))
	assert.Nil(t, b.CurrentSession())
	assert.True(t, fake.called("POST /auth/v1/logout"))
	assert.Equal(t, auth.StatusNotAuthenticated, <-statuses)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestUpdateUser_NoSession(t *testing.T) {
	b, fake := newTestBackend(t, nil)
	email := "new@example.com"

	err := b.UpdateUser(context.Background(), auth.UserUpdate{Email: &email})
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.CodeNoSession, e.Code)
	assert.False(t, fake.called("PUT /auth/v1/user"))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, exp.Equal(tokenExpiry(signedToken(t, exp))))
	assert.True(t, tokenExpiry("not-a-jwt").IsZero())
}

func TestToBackendUser(t *testing.T) {
	u, err := toBackendUser(map[string]interface{}{
		"id":                 userID,
		"email_confirmed_at": nil,
		"created_at":         zeroTime,
		"last_sign_in_at":    "2024-02-02T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)
	assert.Empty(t, u.EmailConfirmedAt)
	assert.Empty(t, u.CreatedAt)
	assert.Equal(t, "2024-02-02T00:00:00Z", u.LastSignInAt)

	_, err = toBackendUser(map[string]interface{}{"email": "x@example.com"})
	assert.Error(t, err)
}

func TestFail(t *testing.T) {
	t.Run("server rejection", func(t *testing.T) {
		err := fail("sign in", stringError(`response status code 400: {"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`))
		var e *errors.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, errors.KindAuthentication, e.Kind)
		assert.Equal(t, "invalid_credentials", e.Code)
		assert.Equal(t, "sign in failed: Invalid login credentials", e.Message)
	})

	t.Run("legacy body", func(t *testing.T) {
		err := fail("refresh session", stringError(`response status code 400: {"error":"invalid_grant","error_description":"Refresh Token Not Found"}`))
		var e *errors.Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "invalid_grant", e.Code)
		assert.True(t, strings.HasSuffix(e.Message, "Refresh Token Not Found"))
	})

	t.Run("timeout", func(t *testing.T) {
		err := fail("sign in", context.DeadlineExceeded)
		assert.Equal(t, errors.KindNetwork, errors.KindOf(err))
	})
}

type stringError string

func (s stringError) Error() string { return string(s) }
