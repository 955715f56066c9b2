package grants

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/condition"
)

// GrantInput carries the fields of a new direct grant.
type GrantInput struct {
	UserID     int64
	Resource   catalog.Resource
	Action     catalog.Action
	Scope      catalog.Scope
	Condition  []byte
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// Service applies grant business rules and emits permission-change audit
// entries for every mutation.
type Service struct {
	repo     Repository
	recorder audit.Recorder
	logger   *slog.Logger
	onChange func()
	now      func() time.Time
}

// NewService constructs a grants service. onChange runs after successful
// mutations (cache invalidation) and may be nil.
func NewService(repo Repository, recorder audit.Recorder, logger *slog.Logger, onChange func()) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		logger:   logger,
		onChange: onChange,
		now:      time.Now,
	}
}

// Grant creates a direct permission for a user. An empty scope defaults to
// "own"; a condition document must decode before it is accepted.
func (s *Service) Grant(ctx context.Context, input GrantInput, grantedBy int64) (UserPermission, error) {
	if !catalog.ValidResource(input.Resource) {
		return UserPermission{}, fmt.Errorf("grants: unknown resource %q", input.Resource)
	}
	if !catalog.ValidAction(input.Action) {
		return UserPermission{}, fmt.Errorf("grants: unknown action %q", input.Action)
	}
	if !catalog.ValidScope(input.Scope) {
		return UserPermission{}, fmt.Errorf("grants: unknown scope %q", input.Scope)
	}
	if input.Scope == "" {
		input.Scope = catalog.ScopeOwn
	}
	if len(input.Condition) > 0 {
		if _, err := condition.Decode(input.Condition); err != nil {
			return UserPermission{}, fmt.Errorf("grants: %w", err)
		}
	}
	if input.ValidFrom != nil && input.ValidUntil != nil && input.ValidUntil.Before(*input.ValidFrom) {
		return UserPermission{}, fmt.Errorf("grants: validity window ends before it starts")
	}

	grant := UserPermission{
		ID:         uuid.New(),
		UserID:     input.UserID,
		Resource:   input.Resource,
		Action:     input.Action,
		Scope:      input.Scope,
		Condition:  input.Condition,
		GrantedBy:  grantedBy,
		IsActive:   true,
		ValidFrom:  input.ValidFrom,
		ValidUntil: input.ValidUntil,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, grant); err != nil {
		return UserPermission{}, err
	}

	s.recordChange(ctx, grantedBy, grant, "grant created")
	s.notify()
	return grant, nil
}

// Revoke deactivates a grant. The row survives for the audit trail.
func (s *Service) Revoke(ctx context.Context, userID int64, grantID uuid.UUID, revokedBy int64) error {
	if err := s.repo.Deactivate(ctx, userID, grantID, s.now().UTC()); err != nil {
		return err
	}
	s.recordChange(ctx, revokedBy, UserPermission{ID: grantID, UserID: userID}, "grant revoked")
	s.notify()
	return nil
}

// ListActive returns usable grants for evaluation.
func (s *Service) ListActive(ctx context.Context, userID int64) ([]UserPermission, error) {
	return s.repo.ListActive(ctx, userID)
}

// ListByUser returns the full grant history for a user.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]UserPermission, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) recordChange(ctx context.Context, actorID int64, grant UserPermission, reason string) {
	if s.recorder == nil {
		return
	}
	entry := audit.Entry{
		UserID:    actorID,
		Kind:      audit.KindPermissionChange,
		Resource:  string(grant.Resource),
		Action:    string(grant.Action),
		Scope:     string(grant.Scope),
		Granted:   true,
		Reason:    reason,
		Component: "grants",
		Context: map[string]any{
			"grant_id":   grant.ID.String(),
			"subject_id": grant.UserID,
		},
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("record grant change", slog.String("grant_id", grant.ID.String()), slog.Any("error", err))
	}
}

func (s *Service) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
