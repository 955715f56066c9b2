package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials indicates a failed login attempt.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Credentials is the minimum the service needs to verify a login.
type Credentials struct {
	UserID       int64
	PasswordHash string
	IsActive     bool
}

// CredentialSource looks up stored credentials by email.
type CredentialSource interface {
	Credentials(ctx context.Context, email string) (Credentials, error)
}

// Service wraps authentication rules.
type Service struct {
	source CredentialSource
}

// NewService constructs an auth service.
func NewService(source CredentialSource) *Service {
	return &Service{source: source}
}

// Authenticate validates email/password and returns the user id. Lookup
// failures, inactive accounts, and hash mismatches all collapse into
// ErrInvalidCredentials so callers leak nothing.
func (s *Service) Authenticate(ctx context.Context, email, password string) (int64, error) {
	creds, err := s.source.Credentials(ctx, email)
	if err != nil {
		return 0, ErrInvalidCredentials
	}
	if !creds.IsActive {
		return 0, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}
	return creds.UserID, nil
}
