package catalog

import "github.com/fieldvolt/fieldvolt-access/internal/condition"

func crud(resource Resource, scope Scope) []Permission {
	return []Permission{
		{Resource: resource, Action: ActionView, Scope: scope},
		{Resource: resource, Action: ActionCreate, Scope: scope},
		{Resource: resource, Action: ActionEdit, Scope: scope},
		{Resource: resource, Action: ActionDelete, Scope: scope},
	}
}

func concat(groups ...[]Permission) []Permission {
	var out []Permission
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func mustExpr(src string) condition.Expr {
	expr, err := condition.Parse(src)
	if err != nil {
		panic("catalog: builtin condition: " + err.Error())
	}
	return expr
}

// BuiltinRoles returns the system role definitions seeded into every Store.
// The returned map is freshly allocated on each call so callers can mutate
// their copy safely.
func BuiltinRoles() map[string]RoleDefinition {
	return map[string]RoleDefinition{
		RoleAdmin: {
			Name:             RoleAdmin,
			Portals:          []string{PortalAdmin, PortalHR, PortalNETA, PortalEquipment, PortalOffice},
			CanManageUsers:   true,
			CanManageContent: true,
			CanViewAllData:   true,
			Permissions: concat(
				crud(ResourceUsers, ScopeAll),
				crud(ResourceCustomers, ScopeAll),
				crud(ResourceJobs, ScopeAll),
				crud(ResourceReports, ScopeAll),
				crud(ResourceDocuments, ScopeAll),
				crud(ResourceEquipment, ScopeAll),
				[]Permission{
					{Resource: ResourceUsers, Action: ActionManage, Scope: ScopeAll},
					{Resource: ResourceJobs, Action: ActionAssign, Scope: ScopeAll},
					{Resource: ResourceJobs, Action: ActionApprove, Scope: ScopeAll},
					{Resource: ResourceReports, Action: ActionApprove, Scope: ScopeAll},
					{Resource: ResourceReports, Action: ActionExport, Scope: ScopeAll},
					{Resource: ResourceDocuments, Action: ActionShare, Scope: ScopeAll},
					{Resource: ResourceSettings, Action: ActionView, Scope: ScopeAll},
					{Resource: ResourceSettings, Action: ActionConfigure, Scope: ScopeAll},
					{Resource: ResourceEncryption, Action: ActionManage, Scope: ScopeAll},
					{Resource: ResourceSystem, Action: ActionView, Scope: ScopeAll},
					{Resource: ResourceSystem, Action: ActionManage, Scope: ScopeAll},
				},
			),
			IsSystemRole: true,
			Priority:     100,
		},
		RoleHRManager: {
			Name:           RoleHRManager,
			Portals:        []string{PortalHR, PortalOffice},
			CanManageUsers: true,
			Permissions: []Permission{
				{Resource: ResourceUsers, Action: ActionView, Scope: ScopeDivision},
				{Resource: ResourceUsers, Action: ActionEdit, Scope: ScopeDivision},
				{Resource: ResourceDocuments, Action: ActionView, Scope: ScopeDivision},
				{Resource: ResourceDocuments, Action: ActionCreate, Scope: ScopeDivision},
				{Resource: ResourceDocuments, Action: ActionShare, Scope: ScopeTeam},
				{Resource: ResourceReports, Action: ActionView, Scope: ScopeDivision},
				{Resource: ResourceJobs, Action: ActionView, Scope: ScopeDivision},
			},
			IsSystemRole: true,
			Priority:     60,
		},
		RoleNETATechnician: {
			Name:    RoleNETATechnician,
			Portals: []string{PortalNETA, PortalEquipment},
			Permissions: []Permission{
				{Resource: ResourceJobs, Action: ActionView, Scope: ScopeOwn},
				{Resource: ResourceJobs, Action: ActionEdit, Scope: ScopeOwn,
					Condition: mustExpr(`job.status != "locked"`)},
				{Resource: ResourceReports, Action: ActionView, Scope: ScopeOwn},
				{Resource: ResourceReports, Action: ActionCreate, Scope: ScopeOwn},
				{Resource: ResourceReports, Action: ActionEdit, Scope: ScopeOwn,
					Condition: mustExpr(`report.status != "approved"`)},
				{Resource: ResourceEquipment, Action: ActionView, Scope: ScopeTeam},
				{Resource: ResourceDocuments, Action: ActionView, Scope: ScopeOwn},
			},
			IsSystemRole: true,
			Priority:     30,
		},
		RoleNETASupervisor: {
			Name:    RoleNETASupervisor,
			Portals: []string{PortalNETA, PortalEquipment, PortalOffice},
			Permissions: []Permission{
				// Widens the inherited own-scoped entries; edit loses the
				// technician's lock condition at the own scope.
				{Resource: ResourceJobs, Action: ActionEdit, Scope: ScopeOwn},
				{Resource: ResourceJobs, Action: ActionView, Scope: ScopeDivision},
				{Resource: ResourceJobs, Action: ActionEdit, Scope: ScopeDivision},
				{Resource: ResourceJobs, Action: ActionAssign, Scope: ScopeDivision},
				{Resource: ResourceJobs, Action: ActionApprove, Scope: ScopeDivision},
				{Resource: ResourceReports, Action: ActionView, Scope: ScopeDivision},
				{Resource: ResourceReports, Action: ActionApprove, Scope: ScopeDivision},
				{Resource: ResourceReports, Action: ActionExport, Scope: ScopeDivision},
			},
			ParentRole:   RoleNETATechnician,
			IsSystemRole: true,
			Priority:     50,
		},
		RoleEquipmentManager: {
			Name:             RoleEquipmentManager,
			Portals:          []string{PortalEquipment, PortalOffice},
			CanManageContent: true,
			Permissions: concat(
				crud(ResourceEquipment, ScopeAll),
				[]Permission{
					{Resource: ResourceEquipment, Action: ActionManage, Scope: ScopeAll},
					{Resource: ResourceEquipment, Action: ActionImport, Scope: ScopeAll},
					{Resource: ResourceEquipment, Action: ActionExport, Scope: ScopeAll},
					{Resource: ResourceJobs, Action: ActionView, Scope: ScopeTeam},
					{Resource: ResourceDocuments, Action: ActionView, Scope: ScopeTeam},
				},
			),
			IsSystemRole: true,
			Priority:     40,
		},
		RoleOfficeStaff: {
			Name:    RoleOfficeStaff,
			Portals: []string{PortalOffice},
			Permissions: []Permission{
				{Resource: ResourceCustomers, Action: ActionView, Scope: ScopeTeam},
				{Resource: ResourceCustomers, Action: ActionEdit, Scope: ScopeTeam},
				{Resource: ResourceJobs, Action: ActionView, Scope: ScopeTeam},
				{Resource: ResourceJobs, Action: ActionCreate, Scope: ScopeTeam},
				{Resource: ResourceDocuments, Action: ActionView, Scope: ScopeTeam},
				{Resource: ResourceDocuments, Action: ActionCreate, Scope: ScopeOwn},
			},
			IsSystemRole: true,
			Priority:     20,
		},
		RoleViewer: {
			Name:    RoleViewer,
			Portals: []string{PortalOffice},
			Permissions: []Permission{
				{Resource: ResourceReports, Action: ActionView, Scope: ScopeOwn},
				{Resource: ResourceDocuments, Action: ActionView, Scope: ScopeOwn},
			},
			IsSystemRole: true,
			Priority:     10,
		},
	}
}
