// Package authz evaluates permission checks against the role catalog and
// direct user grants, recording every decision to the audit log.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/condition"
	"github.com/fieldvolt/fieldvolt-access/internal/grants"
	"github.com/fieldvolt/fieldvolt-access/internal/users"
)

// Decision sources.
const (
	SourceDirect = "direct"
	SourceRole   = "role"
	SourceNone   = "none"
)

// Decision is the outcome of a permission check with its diagnostic trail.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason"`
	Source  string `json:"source"`
}

// CheckRequest describes one user-level permission check.
type CheckRequest struct {
	UserID    int64
	Resource  catalog.Resource
	Action    catalog.Action
	Scope     catalog.Scope
	Context   map[string]any
	IPAddress string
	UserAgent string
}

// GrantSource supplies the active direct grants for a user.
type GrantSource interface {
	ListActive(ctx context.Context, userID int64) ([]grants.UserPermission, error)
}

// UserSource resolves user accounts.
type UserSource interface {
	Get(ctx context.Context, id int64) (users.User, error)
}

// DecisionObserver is notified of every decision, for metrics.
type DecisionObserver interface {
	ObserveDecision(resource, source string, granted bool)
}

// Service is the permission evaluator.
type Service struct {
	catalog  *catalog.Store
	grants   GrantSource
	users    UserSource
	recorder audit.Recorder
	observer DecisionObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs an evaluator. recorder and observer may be nil.
func NewService(cat *catalog.Store, grantSource GrantSource, userSource UserSource, recorder audit.Recorder, observer DecisionObserver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:  cat,
		grants:   grantSource,
		users:    userSource,
		recorder: recorder,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// HasActionPermission evaluates a role-level check: does the named role
// allow (resource, action) at the requested scope, given the context bag?
// Unknown roles deny. The decision is recorded once at the top level; the
// parent-chain recursion stays silent.
func (s *Service) HasActionPermission(ctx context.Context, role string, resource catalog.Resource, action catalog.Action, scope catalog.Scope, bag map[string]any) bool {
	granted, reason := s.roleAllows(role, resource, action, scope, bag)
	s.record(ctx, audit.Entry{
		Kind:     audit.KindAccess,
		Resource: string(resource),
		Action:   string(action),
		Scope:    string(scope),
		Granted:  granted,
		Reason:   reason,
		Context:  withRole(bag, role),

		Component: "authz.role",
	})
	s.observe(resource, SourceRole, granted)
	return granted
}

// CheckPermission evaluates a user-level check: direct grants first, then
// the user's role chain. Every outcome is recorded; audit failures never
// change the decision.
func (s *Service) CheckPermission(ctx context.Context, req CheckRequest) Decision {
	decision := s.decide(ctx, req)

	s.record(ctx, audit.Entry{
		UserID:    req.UserID,
		Kind:      audit.KindAccess,
		Resource:  string(req.Resource),
		Action:    string(req.Action),
		Scope:     string(req.Scope),
		Granted:   decision.Granted,
		Reason:    decision.Reason,
		Context:   req.Context,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
		Component: "authz.check",
	})
	s.observe(req.Resource, decision.Source, decision.Granted)
	return decision
}

func (s *Service) decide(ctx context.Context, req CheckRequest) Decision {
	if s.grants != nil {
		direct, err := s.grants.ListActive(ctx, req.UserID)
		if err != nil {
			// A broken grant lookup must not widen access; fall through
			// to role evaluation only.
			s.logger.Error("load direct grants", slog.Int64("user_id", req.UserID), slog.Any("error", err))
		} else if granted, reason, ok := s.matchDirect(direct, req); ok {
			return Decision{Granted: granted, Reason: reason, Source: SourceDirect}
		}
	}

	if s.users == nil {
		return Decision{Reason: "no user source configured", Source: SourceNone}
	}
	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return Decision{Reason: "unknown user", Source: SourceNone}
	}
	if !user.IsActive {
		return Decision{Reason: "account inactive", Source: SourceNone}
	}

	granted, reason := s.roleAllows(user.Role, req.Resource, req.Action, req.Scope, req.Context)
	source := SourceRole
	if !granted {
		source = SourceNone
	}
	return Decision{Granted: granted, Reason: reason, Source: source}
}

// matchDirect scans active grants for a usable match. The third result is
// false when no grant matched at all, so role evaluation still runs.
func (s *Service) matchDirect(direct []grants.UserPermission, req CheckRequest) (bool, string, bool) {
	now := s.now()
	for _, grant := range direct {
		if grant.Resource != req.Resource || grant.Action != req.Action {
			continue
		}
		if !grant.UsableAt(now) {
			continue
		}
		if !ScopeSatisfies(grant.Scope, req.Scope) {
			continue
		}
		if len(grant.Condition) > 0 && req.Context != nil {
			ok, err := s.evalGrantCondition(grant, req.Context)
			if err != nil {
				return false, "direct grant condition malformed", true
			}
			return ok, fmt.Sprintf("direct grant %s condition evaluated", grant.ID), true
		}
		return true, fmt.Sprintf("direct grant %s matched", grant.ID), true
	}
	return false, "", false
}

func (s *Service) evalGrantCondition(grant grants.UserPermission, bag map[string]any) (bool, error) {
	expr, err := condition.Decode(grant.Condition)
	if err != nil {
		s.logger.Error("decode grant condition", slog.String("grant_id", grant.ID.String()), slog.Any("error", err))
		return false, err
	}
	ok, err := condition.Evaluate(expr, bag)
	if err != nil {
		s.logger.Error("evaluate grant condition", slog.String("grant_id", grant.ID.String()), slog.Any("error", err))
		return false, err
	}
	return ok, nil
}

// roleAllows walks the role and its parent chain. The visited set guards
// against malformed parent cycles, which terminate as a deny.
func (s *Service) roleAllows(roleName string, resource catalog.Resource, action catalog.Action, scope catalog.Scope, bag map[string]any) (bool, string) {
	visited := make(map[string]struct{})
	for current := roleName; current != ""; {
		if _, seen := visited[current]; seen {
			return false, fmt.Sprintf("parent role cycle at %q", current)
		}
		visited[current] = struct{}{}

		role, ok := s.catalog.Get(current)
		if !ok {
			if current == roleName {
				return false, fmt.Sprintf("unknown role %q", roleName)
			}
			return false, fmt.Sprintf("unknown parent role %q", current)
		}

		if granted, reason, matched := s.matchPermissions(role, resource, action, scope, bag); matched {
			return granted, reason
		}
		current = role.ParentRole
	}
	return false, fmt.Sprintf("no permission for %s/%s", resource, action)
}

// matchPermissions checks one role's own permission list. The third result
// reports whether any entry matched resource+action+scope; when a matching
// entry carries a condition and a context bag was supplied, the condition's
// outcome is final for that entry.
func (s *Service) matchPermissions(role catalog.RoleDefinition, resource catalog.Resource, action catalog.Action, scope catalog.Scope, bag map[string]any) (bool, string, bool) {
	now := s.now()
	for _, perm := range role.Permissions {
		if perm.Resource != resource || perm.Action != action {
			continue
		}
		if !perm.ActiveAt(now) {
			continue
		}
		if !ScopeSatisfies(perm.Scope, scope) {
			continue
		}
		if perm.Condition != nil && bag != nil {
			ok, err := condition.Evaluate(perm.Condition, bag)
			if err != nil {
				s.logger.Error("evaluate role condition",
					slog.String("role", role.Name),
					slog.String("permission", perm.Key()),
					slog.Any("error", err))
				return false, fmt.Sprintf("role %q condition malformed for %s", role.Name, perm.Key()), true
			}
			return ok, fmt.Sprintf("role %q condition evaluated for %s", role.Name, perm.Key()), true
		}
		return true, fmt.Sprintf("role %q grants %s", role.Name, perm.Key()), true
	}
	return false, "", false
}

// record hands the entry to the audit recorder. Failures are logged to the
// diagnostic channel only; the decision path never sees them.
func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("record decision", slog.Any("error", err))
	}
}

func (s *Service) observe(resource catalog.Resource, source string, granted bool) {
	if s.observer != nil {
		s.observer.ObserveDecision(string(resource), source, granted)
	}
}

func withRole(bag map[string]any, role string) map[string]any {
	out := make(map[string]any, len(bag)+1)
	for k, v := range bag {
		out[k] = v
	}
	out["role"] = role
	return out
}
