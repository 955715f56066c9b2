package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
)

// Sentinel errors for catalog operations.
var (
	ErrNotFound   = errors.New("catalog: role not found")
	ErrSystemRole = errors.New("catalog: system role is protected")
)

// Store owns the in-process role catalog. It is seeded with the system roles
// and guarded by a mutex; custom roles live for the process lifetime.
// Mutations emit role-change audit entries, with recorder failures logged
// rather than propagated.
type Store struct {
	mu       sync.RWMutex
	roles    map[string]RoleDefinition
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewStore builds a Store seeded with the builtin system roles.
func NewStore(recorder audit.Recorder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		roles:    BuiltinRoles(),
		recorder: recorder,
		logger:   logger,
	}
}

// Get returns the role definition for name.
func (s *Store) Get(name string) (RoleDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[normalizeName(name)]
	return role, ok
}

// All returns every role ordered by priority (highest first), then name.
func (s *Store) All() []RoleDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roles := make([]RoleDefinition, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Priority != roles[j].Priority {
			return roles[i].Priority > roles[j].Priority
		}
		return roles[i].Name < roles[j].Name
	})
	return roles
}

// SystemRoles returns only the builtin roles.
func (s *Store) SystemRoles() []RoleDefinition {
	var out []RoleDefinition
	for _, role := range s.All() {
		if role.IsSystemRole {
			out = append(out, role)
		}
	}
	return out
}

// Upsert creates or merges a role definition. System roles may be extended
// but their IsSystemRole flag never flips and they cannot be demoted to
// custom roles. Returns the resulting definition.
func (s *Store) Upsert(ctx context.Context, name string, patch RolePatch, actorID int64) (RoleDefinition, error) {
	name = normalizeName(name)
	if name == "" {
		return RoleDefinition{}, fmt.Errorf("catalog: role name required")
	}

	s.mu.Lock()
	before, existed := s.roles[name]
	role := before
	if !existed {
		role = RoleDefinition{Name: name}
	}
	applyPatch(&role, patch)
	// The flag tracks whether the role was seeded at startup; no patch
	// can change it.
	role.IsSystemRole = existed && before.IsSystemRole
	role.Name = name
	s.roles[name] = role
	s.mu.Unlock()

	s.recordChange(ctx, actorID, name, roleSnapshot(before, existed), roleSnapshot(role, true))
	return role, nil
}

// Delete removes a custom role. Builtin roles are protected.
func (s *Store) Delete(ctx context.Context, name string, actorID int64) error {
	name = normalizeName(name)

	s.mu.Lock()
	role, ok := s.roles[name]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if role.IsSystemRole {
		s.mu.Unlock()
		return ErrSystemRole
	}
	delete(s.roles, name)
	s.mu.Unlock()

	s.recordChange(ctx, actorID, name, roleSnapshot(role, true), nil)
	return nil
}

// EffectivePermissions resolves a role's permission list with its parent's
// permissions merged in first. A role entry sharing the exact
// (resource, action, scope) key replaces the parent's entry; broader or
// narrower scopes coexist.
func (s *Store) EffectivePermissions(name string) []Permission {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[normalizeName(name)]
	if !ok {
		return nil
	}

	var merged []Permission
	index := make(map[string]int)
	appendOverride := func(perms []Permission) {
		for _, p := range perms {
			if i, ok := index[p.Key()]; ok {
				merged[i] = p
				continue
			}
			index[p.Key()] = len(merged)
			merged = append(merged, p)
		}
	}

	if role.ParentRole != "" {
		if parent, ok := s.roles[normalizeName(role.ParentRole)]; ok && parent.Name != role.Name {
			appendOverride(parent.Permissions)
		}
	}
	appendOverride(role.Permissions)
	return merged
}

func (s *Store) recordChange(ctx context.Context, actorID int64, name string, before, after map[string]any) {
	if s.recorder == nil {
		return
	}
	entry := audit.Entry{
		UserID:    actorID,
		Kind:      audit.KindRoleChange,
		Resource:  string(ResourceSystem),
		Action:    string(ActionConfigure),
		Granted:   true,
		Reason:    "role catalog change: " + name,
		Component: "catalog",
		Context: map[string]any{
			"role":   name,
			"before": before,
			"after":  after,
		},
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("record role change", slog.String("role", name), slog.Any("error", err))
	}
}

func applyPatch(role *RoleDefinition, patch RolePatch) {
	if patch.Portals != nil {
		role.Portals = append([]string(nil), (*patch.Portals)...)
	}
	if patch.CanManageUsers != nil {
		role.CanManageUsers = *patch.CanManageUsers
	}
	if patch.CanManageContent != nil {
		role.CanManageContent = *patch.CanManageContent
	}
	if patch.CanViewAllData != nil {
		role.CanViewAllData = *patch.CanViewAllData
	}
	if patch.Permissions != nil {
		role.Permissions = append([]Permission(nil), (*patch.Permissions)...)
	}
	if patch.ParentRole != nil {
		role.ParentRole = normalizeName(*patch.ParentRole)
	}
	if patch.Priority != nil {
		role.Priority = *patch.Priority
	}
}

func roleSnapshot(role RoleDefinition, present bool) map[string]any {
	if !present {
		return nil
	}
	perms := make([]string, 0, len(role.Permissions))
	for _, p := range role.Permissions {
		perms = append(perms, p.Key())
	}
	return map[string]any{
		"portals":            role.Portals,
		"can_manage_users":   role.CanManageUsers,
		"can_manage_content": role.CanManageContent,
		"can_view_all_data":  role.CanViewAllData,
		"permissions":        perms,
		"parent_role":        role.ParentRole,
		"is_system_role":     role.IsSystemRole,
		"priority":           role.Priority,
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
