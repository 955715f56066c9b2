// Package audit records authorization decisions and configuration changes to
// append-only storage, and serves filtered, newest-first retrieval.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit entry.
type Kind string

// Entry kinds.
const (
	KindAccess           Kind = "access"
	KindPermissionChange Kind = "permission_change"
	KindRoleChange       Kind = "role_change"
	KindSystemChange     Kind = "system_change"
)

// Entry is one immutable audit record. Entries are created on every
// authorization decision and every catalog or grant mutation; the
// application never updates or deletes them.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	UserID    int64          `json:"user_id"`
	Kind      Kind           `json:"kind"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	Scope     string         `json:"scope,omitempty"`
	Granted   bool           `json:"granted"`
	Reason    string         `json:"reason,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Component string         `json:"component,omitempty"`
	At        time.Time      `json:"at"`
}

// Normalize assigns an ID and UTC timestamp when absent and defaults the
// kind to access.
func Normalize(e Entry) Entry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	} else {
		e.At = e.At.UTC()
	}
	if e.Kind == "" {
		e.Kind = KindAccess
	}
	return e
}

// Filters narrows audit retrieval. Zero values mean "no filter".
type Filters struct {
	UserID   *int64
	Kind     Kind
	Resource string
	Action   string
	Granted  *bool
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo carries pagination metadata for a result page.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles one page of entries with paging metadata.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}
