package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coursewire/coursewire/internal/database"
	"github.com/coursewire/coursewire/internal/utils"
)

// subjectKey is the context key carrying the authenticated subject.
type subjectKey struct{}

// Subject returns the authenticated subject stored by BearerAuth, or "".
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// WithSubject returns a context carrying the given subject. Exposed for
// handler tests that bypass the middleware.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// BearerAuth validates the Authorization header against stored access
// tokens and injects the resolved subject into the request context.
func BearerAuth(db *database.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || !utils.ValidateAccessTokenFormat(token) {
				unauthorized(w)
				return
			}

			record, err := database.GetAccessTokenByHash(db, utils.HashAccessToken(token))
			if err != nil {
				slog.Error("failed to look up access token", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "Internal server error",
					"code":    "INTERNAL_ERROR",
				})
				return
			}
			if record == nil {
				slog.Warn("authentication failed - unknown token",
					"path", r.URL.Path,
					"ip", getClientIP(r),
				)
				unauthorized(w)
				return
			}

			// best effort; a failed touch must not fail the request
			if err := database.TouchAccessToken(db, record.ID, time.Now()); err != nil {
				slog.Debug("failed to update token last_used_at", "error", err)
			}

			ctx := WithSubject(r.Context(), record.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "Unauthorized",
		"code":    "UNAUTHORIZED",
	})
}
