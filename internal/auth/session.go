// Package auth provides credential verification and Redis-backed cookie
// sessions for the access service API.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoSession indicates the request carries no valid session.
var ErrNoSession = errors.New("auth: no session")

// SessionManager stores sessions in Redis, addressed by a cookie token.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

type sessionPayload struct {
	UserID int64 `json:"user_id"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{client: client, cookieName: cookieName, ttl: ttl, secure: secure}
}

// Create starts a session for the user and sets the cookie.
func (sm *SessionManager) Create(ctx context.Context, w http.ResponseWriter, userID int64) (string, error) {
	id := uuid.NewString()
	raw, err := json.Marshal(sessionPayload{UserID: userID})
	if err != nil {
		return "", err
	}
	if err := sm.client.Set(ctx, sm.redisKey(id), raw, sm.ttl).Err(); err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(sm.ttl / time.Second),
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}

// Resolve returns the user id for the request's session cookie.
func (sm *SessionManager) Resolve(ctx context.Context, r *http.Request) (int64, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return 0, ErrNoSession
	}
	raw, err := sm.client.Get(ctx, sm.redisKey(cookie.Value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrNoSession
		}
		return 0, err
	}
	var payload sessionPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, ErrNoSession
	}
	// Sliding expiry: any authenticated request refreshes the TTL.
	_ = sm.client.Expire(ctx, sm.redisKey(cookie.Value), sm.ttl).Err()
	return payload.UserID, nil
}

// Destroy removes the session and clears the cookie.
func (sm *SessionManager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	cookie, err := r.Cookie(sm.cookieName)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sm.client.Del(ctx, sm.redisKey(cookie.Value)).Err()
}

func (sm *SessionManager) redisKey(id string) string {
	return "session:" + id
}
