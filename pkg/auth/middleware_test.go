package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/indaba-ai/indaba-engine/pkg/testhelpers"
)

type mockValidator struct {
	validateFunc  func(token string) (*Claims, error)
	validateCalls int
}

func (m *mockValidator) ValidateToken(token string) (*Claims, error) {
	m.validateCalls++
	if m.validateFunc != nil {
		return m.validateFunc(token)
	}
	return &Claims{}, nil
}

func (m *mockValidator) Close() {}

func devMiddleware(t *testing.T) *Middleware {
	t.Helper()
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	require.NoError(t, err)
	return NewMiddleware(client, zap.NewNop())
}

func TestMiddleware_ExemptPathsSkipAuth(t *testing.T) {
	validator := &mockValidator{}
	m := NewMiddleware(validator, zap.NewNop())

	called := false
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, path := range []string{"/health", "/ping"} {
		called = false
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.True(t, called, "%s should bypass auth", path)
	}
	assert.Zero(t, validator.validateCalls)
}

func TestMiddleware_MissingTokenIs401(t *testing.T) {
	m := devMiddleware(t)

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without credentials")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/query", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "unauthorized")
}

func TestMiddleware_MalformedHeaderIs401(t *testing.T) {
	m := devMiddleware(t)

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_ValidBearerSetsClaims(t *testing.T) {
	m := devMiddleware(t)

	var gotSubject, gotToken string
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		require.True(t, ok)
		gotSubject = claims.Subject
		gotToken, _ = GetToken(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer("user-1", "u@example.com"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", gotSubject)
	assert.NotEmpty(t, gotToken)
}

func TestMiddleware_CookieTokenAccepted(t *testing.T) {
	m := devMiddleware(t)

	var gotSubject string
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := GetClaims(r.Context())
		gotSubject = claims.Subject
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/schemas", nil)
	req.AddCookie(&http.Cookie{Name: "indaba_jwt", Value: testhelpers.GenerateTestJWT("cookie-user", "")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cookie-user", gotSubject)
}

func TestMiddleware_InvalidTokenIs401(t *testing.T) {
	validator := &mockValidator{
		validateFunc: func(token string) (*Claims, error) {
			return nil, ErrInvalidAuthFormat
		},
	}
	m := NewMiddleware(validator, zap.NewNop())

	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run with a rejected token")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, validator.validateCalls)
}

func TestMiddleware_RequireRole(t *testing.T) {
	m := devMiddleware(t)

	var reached bool
	protected := m.RequireRole("admin", func(w http.ResponseWriter, r *http.Request) {
		reached = true
	})
	handler := m.Wrap(protected)

	req := httptest.NewRequest(http.MethodPost, "/api/ontology/generate", nil)
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer("user-1", "", "analyst"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, reached)

	req = httptest.NewRequest(http.MethodPost, "/api/ontology/generate", nil)
	req.Header.Set("Authorization", testhelpers.GenerateTestJWTWithBearer("user-1", "", "admin"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reached)
}
