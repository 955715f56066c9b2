package users

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
)

// ErrUnknownRole indicates a role name absent from the catalog.
var ErrUnknownRole = errors.New("users: unknown role")

// RoleValidator reports whether a role name exists in the catalog.
type RoleValidator interface {
	Exists(name string) bool
}

// Service handles account business logic.
type Service struct {
	repo     Repository
	roles    RoleValidator
	recorder audit.Recorder
	logger   *slog.Logger
	onChange func()
}

// NewService builds a users service. onChange runs after role reassignments
// (cache invalidation) and may be nil, as may roles and recorder.
func NewService(repo Repository, roles RoleValidator, recorder audit.Recorder, logger *slog.Logger, onChange func()) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, recorder: recorder, logger: logger, onChange: onChange}
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// AssignRole moves a user to a different role and records the change.
func (s *Service) AssignRole(ctx context.Context, userID int64, role string, actorID int64) error {
	if s.roles != nil && !s.roles.Exists(role) {
		return ErrUnknownRole
	}
	before, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateRole(ctx, userID, role); err != nil {
		return err
	}

	if s.recorder != nil {
		entry := audit.Entry{
			UserID:    actorID,
			Kind:      audit.KindRoleChange,
			Resource:  "users",
			Action:    "assign",
			Granted:   true,
			Reason:    "role reassigned",
			Component: "users",
			Context: map[string]any{
				"subject_id": userID,
				"before":     before.Role,
				"after":      role,
			},
		}
		if err := s.recorder.Record(ctx, entry); err != nil {
			s.logger.Warn("record role assignment", slog.Int64("user_id", userID), slog.Any("error", err))
		}
	}
	if s.onChange != nil {
		s.onChange()
	}
	return nil
}
