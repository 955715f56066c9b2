// Package users holds account records: the link between an authenticated
// principal, their role, and their metadata permission strings.
package users

import "time"

// User is one account. Permissions carries the fine-grained metadata
// entries (e.g. "equipment_view") consulted by the portal resolver in
// addition to the role's portal list.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	Role         string
	Division     string
	Permissions  []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasMetadataPermission reports whether the metadata permission list holds
// the named entry.
func (u User) HasMetadataPermission(name string) bool {
	for _, p := range u.Permissions {
		if p == name {
			return true
		}
	}
	return false
}
