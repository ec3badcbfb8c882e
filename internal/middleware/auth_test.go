package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

var testSecret = []byte("super-secret-jwt-token-with-at-least-32-characters")

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, sub string, exp time.Duration) string {
	t.Helper()
	claims := &Claims{
		Email: sub + "@example.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

type staticResolver struct {
	err error
}

func (r staticResolver) Resolve(_ context.Context, id Identity) (*profile.Principal, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &profile.Principal{UserID: id.UserID, Email: id.Email, Role: profile.RoleCustomer}, nil
}

type fakeUsers struct {
	calls int
	user  *client.User
	err   error
}

func (f *fakeUsers) GetUser(context.Context, string) (*client.User, error) {
	f.calls++
	return f.user, f.err
}

func principalEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFrom(r.Context())
		if p == nil {
			_, _ = w.Write([]byte("anonymous"))
			return
		}
		_, _ = w.Write([]byte(p.UserID))
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestJWTVerifier(t *testing.T) {
	v := JWTVerifier{Secret: testSecret}

	id, err := v.Verify(context.Background(), signToken(t, jwt.SigningMethodHS256, testSecret, "user-1", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, "user-1@example.com", id.Email)

	_, err = v.Verify(context.Background(), signToken(t, jwt.SigningMethodHS256, testSecret, "user-1", -time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), signToken(t, jwt.SigningMethodHS256, []byte("other-secret"), "user-1", time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), signToken(t, jwt.SigningMethodHS256, testSecret, "", time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = JWTVerifier{}.Verify(context.Background(), "anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRemoteVerifierCachesSuccess(t *testing.T) {
	users := &fakeUsers{user: &client.User{ID: "user-2", Email: "b@example.com"}}
	v := NewRemoteVerifier(users, time.Minute)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		id, err := v.Verify(context.Background(), "opaque")
		require.NoError(t, err)
		assert.Equal(t, "user-2", id.UserID)
	}
	assert.Equal(t, 1, users.calls)

	now = now.Add(2 * time.Minute)
	_, err := v.Verify(context.Background(), "opaque")
	require.NoError(t, err)
	assert.Equal(t, 2, users.calls)
}

func TestRemoteVerifierDoesNotCacheFailure(t *testing.T) {
	users := &fakeUsers{err: errors.New("401")}
	v := NewRemoteVerifier(users, time.Minute)

	_, err := v.Verify(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Verify(context.Background(), "bad")
	assert.Error(t, err)
	assert.Equal(t, 2, users.calls)
}

func TestChainFallsBackToRemote(t *testing.T) {
	users := &fakeUsers{user: &client.User{ID: "remote-user"}}
	chain := Chain{JWTVerifier{Secret: testSecret}, NewRemoteVerifier(users, 0)}

	id, err := chain.Verify(context.Background(), signToken(t, jwt.SigningMethodHS256, testSecret, "local-user", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "local-user", id.UserID)
	assert.Equal(t, 0, users.calls)

	id, err = chain.Verify(context.Background(), "not-a-jwt")
	require.NoError(t, err)
	assert.Equal(t, "remote-user", id.UserID)

	_, err = Chain{}.Verify(context.Background(), "x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthMiddleware(t *testing.T) {
	mw := NewAuthMiddleware(JWTVerifier{Secret: testSecret}, staticResolver{}, logger.NewNop())
	handler := mw.Handler(principalEcho())

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "anonymous", wantStatus: http.StatusOK, wantBody: "anonymous"},
		{name: "valid", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "user-1", time.Hour), wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "bad scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, jwt.SigningMethodHS256, testSecret, "user-1", -time.Hour), wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.NotEmpty(t, decodeError(t, rec))
			}
		})
	}
}

func TestAuthMiddlewareResolverError(t *testing.T) {
	resolver := staticResolver{err: apperrors.NewForbiddenError("profile", "user-1", "user-1")}
	handler := NewAuthMiddleware(JWTVerifier{Secret: testSecret}, resolver, logger.NewNop()).Handler(principalEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.SigningMethodHS256, testSecret, "user-1", time.Hour))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequirePrincipal(t *testing.T) {
	handler := RequirePrincipal(principalEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithPrincipal(req.Context(), &profile.Principal{UserID: "u"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u", rec.Body.String())
}

func TestRateLimiterPerPrincipal(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, logger.NewNop())
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if user != "" {
			req = req.WithContext(WithPrincipal(req.Context(), &profile.Principal{UserID: user}))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, send("a"))
	assert.Equal(t, http.StatusCreated, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusCreated, send("b"))
	assert.Equal(t, http.StatusCreated, send(""))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, logger.NewNop())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.getLimiter("user:a")
	now = now.Add(time.Hour)
	rl.getLimiter("user:b")

	assert.Equal(t, 1, rl.Cleanup(10*time.Minute))
	assert.Len(t, rl.limiters, 1)
}

func TestTracingAssignsRequestID(t *testing.T) {
	var seen string
	handler := NewTracingMiddleware(logger.NewNop()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = client.GetRequestID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}
