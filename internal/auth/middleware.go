package auth

import (
	"errors"
	"log/slog"
	"net/http"
)

// SessionMiddleware resolves the session cookie into a user id on the
// request context. Anonymous requests pass through untouched; endpoint
// gating is the authorizer's job.
func SessionMiddleware(sessions *SessionManager, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := sessions.Resolve(r.Context(), r)
			if err != nil {
				if !errors.Is(err, ErrNoSession) {
					logger.Error("resolve session", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}
