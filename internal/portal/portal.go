// Package portal derives per-portal access flags from a user's role and
// metadata permissions. The flags are recomputed on every call; nothing here
// is stored.
package portal

import (
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/users"
)

// Access is the flag set a portal consumer renders against.
type Access struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanCreate bool `json:"can_create"`
	IsAdmin   bool `json:"is_admin"`
}

// Resolver computes access flags against the role catalog.
type Resolver struct {
	catalog *catalog.Store
}

// NewResolver builds a resolver over the catalog store.
func NewResolver(store *catalog.Store) *Resolver {
	return &Resolver{catalog: store}
}

// Resolve maps (user, portal) to access flags. A nil user, an empty role,
// or an unknown role yields all-false. The admin role yields all-true.
// Otherwise portal membership in the role grants viewing, the role's content
// flag grants editing within its portals, and the metadata entries
// "<portal>_view" and "<portal>_manage" widen either independently.
func (r *Resolver) Resolve(user *users.User, portal string) Access {
	if user == nil || user.Role == "" {
		return Access{}
	}
	if user.Role == catalog.RoleAdmin {
		return Access{CanView: true, CanEdit: true, CanDelete: true, CanCreate: true, IsAdmin: true}
	}
	role, ok := r.catalog.Get(user.Role)
	if !ok {
		return Access{}
	}

	member := role.HasPortal(portal)
	metaView := user.HasMetadataPermission(portal + "_view")
	metaManage := user.HasMetadataPermission(portal + "_manage")
	manage := metaManage || (member && role.CanManageContent)

	return Access{
		CanView:   member || metaView || metaManage,
		CanEdit:   manage,
		CanDelete: manage,
		CanCreate: manage,
	}
}
