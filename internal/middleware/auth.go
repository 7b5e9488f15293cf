package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/stockbook/internal/auth"
)

// TokenValidator resolves an access token to a user ID.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// RequireUser validates the Bearer token and populates the request identity.
// A "token" query parameter is accepted for WebSocket upgrades, where
// browsers cannot set headers.
func RequireUser(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				unauthorized(w)
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := auth.WithUser(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// JobSecret checks the shared credential presented by the external batch
// trigger. Exactly one of Hash (bcrypt) or Plain is normally set.
type JobSecret struct {
	Hash  string
	Plain string
	// AllowUnset lets requests through when no secret is configured.
	AllowUnset bool
}

func (s JobSecret) configured() bool {
	return s.Hash != "" || s.Plain != ""
}

func (s JobSecret) matches(presented string) bool {
	if presented == "" {
		return false
	}
	if s.Hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(s.Hash), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(s.Plain), []byte(presented)) == 1
}

// RequireJobSecret authenticates the batch trigger by Bearer token or
// X-Job-Secret header. Failures are 401.
func RequireJobSecret(secret JobSecret, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !secret.configured() {
				if !secret.AllowUnset {
					logger.Error("job secret not configured, rejecting batch trigger")
					unauthorized(w)
					return
				}
				logger.Warn("job secret not configured, allowing unauthenticated batch trigger")
			} else {
				presented := bearerToken(r)
				if presented == "" {
					presented = r.Header.Get("X-Job-Secret")
				}
				if !secret.matches(presented) {
					logger.Warn("batch trigger rejected", "remote", RealIP(r))
					unauthorized(w)
					return
				}
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{Job: true})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}
