// Package grants manages direct user permissions: rules bound to a single
// user rather than a role. Grants are soft-deleted on revoke so the audit
// trail stays complete.
package grants

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
)

// UserPermission is one direct grant. Condition holds the raw condition
// document as stored; it is decoded at evaluation time and fails closed
// when malformed.
type UserPermission struct {
	ID         uuid.UUID        `json:"id"`
	UserID     int64            `json:"user_id"`
	Resource   catalog.Resource `json:"resource"`
	Action     catalog.Action   `json:"action"`
	Scope      catalog.Scope    `json:"scope"`
	Condition  json.RawMessage  `json:"condition,omitempty"`
	GrantedBy  int64            `json:"granted_by"`
	IsActive   bool             `json:"is_active"`
	ValidFrom  *time.Time       `json:"valid_from,omitempty"`
	ValidUntil *time.Time       `json:"valid_until,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	RevokedAt  *time.Time       `json:"revoked_at,omitempty"`
}

// UsableAt reports whether the grant is active and inside its validity
// window at t.
func (p UserPermission) UsableAt(t time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ValidFrom != nil && t.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && t.After(*p.ValidUntil) {
		return false
	}
	return true
}
