package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errNoAuth("missing authorization")
	ErrInvalidAuthFormat    = errNoAuth("invalid authorization header format")
)

type errNoAuth string

func (e errNoAuth) Error() string { return string(e) }

// Middleware wraps the HTTP mux with bearer token authentication. Paths in
// exempt are served without a token; everything else requires a valid JWT.
type Middleware struct {
	validator TokenValidator
	exempt    map[string]bool
	logger    *zap.Logger
}

// NewMiddleware creates auth middleware backed by the given validator.
// Health probes stay reachable without credentials.
func NewMiddleware(validator TokenValidator, logger *zap.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		exempt: map[string]bool{
			"/health": true,
			"/ping":   true,
		},
		logger: logger,
	}
}

// Wrap enforces authentication on every non-exempt route and places the
// validated claims and raw token on the request context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := bearerToken(r)
		if err != nil {
			m.logger.Debug("request without usable credentials",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.Error(err))
			m.unauthorized(w, "Authentication required")
			return
		}

		claims, err := m.validator.ValidateToken(tokenString)
		if err != nil {
			m.logger.Debug("token validation failed",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			m.unauthorized(w, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole wraps a handler so only tokens carrying the role pass.
func (m *Middleware) RequireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		if !ok {
			m.unauthorized(w, "Authentication required")
			return
		}
		if !claims.HasRole(role) {
			m.logger.Warn("role check failed",
				zap.String("subject", claims.Subject),
				zap.String("role", role),
				zap.String("path", r.URL.Path))
			m.forbidden(w, "Insufficient role")
			return
		}
		next(w, r)
	}
}

// bearerToken extracts the JWT from the Authorization header, falling back
// to the browser cookie set by token-aware frontends.
func bearerToken(r *http.Request) (string, error) {
	if cookie, err := r.Cookie("indaba_jwt"); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingAuthorization
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrInvalidAuthFormat
	}
	return parts[1], nil
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

// forbidden returns a 403 response with JSON error body.
func (m *Middleware) forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "forbidden",
		"message": message,
	})
}
