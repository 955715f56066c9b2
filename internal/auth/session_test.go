package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "fieldvolt_session", time.Hour, false), mr
}

func TestSessionCreateAndResolve(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	rr := httptest.NewRecorder()
	token, err := sessions.Create(ctx, rr, 42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, token, cookies[0].Value)
	require.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	userID, err := sessions.Resolve(ctx, req)
	require.NoError(t, err)
	require.Equal(t, int64(42), userID)
}

func TestSessionResolveMissingCookie(t *testing.T) {
	sessions, _ := newTestSessions(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, err := sessions.Resolve(context.Background(), req)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSessionResolveExpired(t *testing.T) {
	sessions, mr := newTestSessions(t)
	ctx := context.Background()

	rr := httptest.NewRecorder()
	_, err := sessions.Create(ctx, rr, 7)
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(rr.Result().Cookies()[0])
	_, err = sessions.Resolve(ctx, req)
	require.ErrorIs(t, err, ErrNoSession)
}

func TestSessionDestroy(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()

	rr := httptest.NewRecorder()
	_, err := sessions.Create(ctx, rr, 7)
	require.NoError(t, err)
	cookie := rr.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	require.NoError(t, sessions.Destroy(ctx, out, req))

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.AddCookie(cookie)
	_, err = sessions.Resolve(ctx, again)
	require.ErrorIs(t, err, ErrNoSession)
}

type staticCredentials map[string]Credentials

func (s staticCredentials) Credentials(_ context.Context, email string) (Credentials, error) {
	creds, ok := s[email]
	if !ok {
		return Credentials{}, errors.New("not found")
	}
	return creds, nil
}

func TestAuthenticate(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	svc := NewService(staticCredentials{
		"tech@example.com":   {UserID: 5, PasswordHash: string(hash), IsActive: true},
		"locked@example.com": {UserID: 6, PasswordHash: string(hash), IsActive: false},
	})
	ctx := context.Background()

	userID, err := svc.Authenticate(ctx, "tech@example.com", "hunter2")
	require.NoError(t, err)
	require.Equal(t, int64(5), userID)

	_, err = svc.Authenticate(ctx, "tech@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "locked@example.com", "hunter2")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "ghost@example.com", "hunter2")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
