// Package catalog holds the role catalog: the process-wide mapping from role
// names to portal access, capability flags, and fine-grained permissions.
package catalog

import (
	"time"

	"github.com/fieldvolt/fieldvolt-access/internal/condition"
)

// Resource is a domain noun permissions attach to.
type Resource string

// Known resources.
const (
	ResourceUsers      Resource = "users"
	ResourceCustomers  Resource = "customers"
	ResourceJobs       Resource = "jobs"
	ResourceReports    Resource = "reports"
	ResourceDocuments  Resource = "documents"
	ResourceSettings   Resource = "settings"
	ResourceEncryption Resource = "encryption"
	ResourceSystem     Resource = "system"
	ResourceEquipment  Resource = "equipment"
)

// Action is an operation on a resource.
type Action string

// Known actions.
const (
	ActionView      Action = "view"
	ActionCreate    Action = "create"
	ActionEdit      Action = "edit"
	ActionDelete    Action = "delete"
	ActionApprove   Action = "approve"
	ActionAssign    Action = "assign"
	ActionImport    Action = "import"
	ActionExport    Action = "export"
	ActionShare     Action = "share"
	ActionRevoke    Action = "revoke"
	ActionManage    Action = "manage"
	ActionConfigure Action = "configure"
)

// Scope bounds how far a permission reaches, narrow to broad.
type Scope string

// Known scopes. ScopeAll satisfies any requested scope; ScopeDivision also
// satisfies a team-scoped request. Other pairs only match exactly.
const (
	ScopeOwn      Scope = "own"
	ScopeTeam     Scope = "team"
	ScopeDivision Scope = "division"
	ScopeAll      Scope = "all"
)

// Portal names gating application areas.
const (
	PortalAdmin     = "admin"
	PortalHR        = "hr"
	PortalNETA      = "neta"
	PortalEquipment = "equipment"
	PortalOffice    = "office"
)

// System role names seeded at startup.
const (
	RoleAdmin            = "admin"
	RoleHRManager        = "hr_manager"
	RoleNETATechnician   = "neta_technician"
	RoleNETASupervisor   = "neta_supervisor"
	RoleEquipmentManager = "equipment_manager"
	RoleOfficeStaff      = "office_staff"
	RoleViewer           = "viewer"
)

// Permission is a single (resource, action, scope) rule, optionally guarded
// by a condition and a validity window. An empty Scope matches any requested
// scope at role-evaluation sites.
type Permission struct {
	Resource   Resource
	Action     Action
	Scope      Scope
	Condition  condition.Expr
	ValidFrom  *time.Time
	ValidUntil *time.Time
}

// Key identifies the permission for override purposes: a child role entry
// with the same key replaces the parent's entry during merging.
func (p Permission) Key() string {
	return string(p.Resource) + "|" + string(p.Action) + "|" + string(p.Scope)
}

// ActiveAt reports whether the permission's validity window covers t.
func (p Permission) ActiveAt(t time.Time) bool {
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && t.After(*p.ValidUntil) {
		return false
	}
	return true
}

// RoleDefinition bundles everything assigned through a role.
type RoleDefinition struct {
	Name             string
	Portals          []string
	CanManageUsers   bool
	CanManageContent bool
	CanViewAllData   bool
	Permissions      []Permission
	ParentRole       string
	IsSystemRole     bool
	Priority         int
}

// HasPortal reports whether the role grants access to the named portal.
func (r RoleDefinition) HasPortal(portal string) bool {
	for _, p := range r.Portals {
		if p == portal {
			return true
		}
	}
	return false
}

// RolePatch carries a partial role update; nil fields are left untouched.
type RolePatch struct {
	Portals          *[]string
	CanManageUsers   *bool
	CanManageContent *bool
	CanViewAllData   *bool
	Permissions      *[]Permission
	ParentRole       *string
	Priority         *int
}

// ValidResource reports whether the resource is a known domain noun.
func ValidResource(r Resource) bool {
	switch r {
	case ResourceUsers, ResourceCustomers, ResourceJobs, ResourceReports,
		ResourceDocuments, ResourceSettings, ResourceEncryption,
		ResourceSystem, ResourceEquipment:
		return true
	}
	return false
}

// ValidAction reports whether the action is known.
func ValidAction(a Action) bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete, ActionApprove,
		ActionAssign, ActionImport, ActionExport, ActionShare, ActionRevoke,
		ActionManage, ActionConfigure:
		return true
	}
	return false
}

// ValidScope reports whether the scope is known. The empty scope is accepted
// and treated as "own" where a default applies.
func ValidScope(s Scope) bool {
	switch s {
	case "", ScopeOwn, ScopeTeam, ScopeDivision, ScopeAll:
		return true
	}
	return false
}
