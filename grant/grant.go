// Package grant defines the per-object permission rows and their store
// interface. User grants and group grants live in two parallel tables
// with the same shape; every backend implements both sides.
package grant

import (
	"errors"
	"time"

	"github.com/xraph/custos/id"
)

// ErrEmptyFilter is returned by delete operations handed a filter that
// constrains nothing. Truncating a grant table requires intent the
// filter API cannot express.
var ErrEmptyFilter = errors.New("grant: empty filter")

// UserGrant links one user to one permission on one target object.
// Uniqueness over (UserID, PermissionID, TargetKey) is enforced by the
// store; the permission already pins the target kind, so the kind column
// is not part of the key.
type UserGrant struct {
	ID           id.UserGrantID  `json:"id" db:"id"`
	UserID       id.UserID       `json:"user_id" db:"user_id"`
	PermissionID id.PermissionID `json:"permission_id" db:"permission_id"`
	TargetKind   string          `json:"target_kind" db:"target_kind"`
	TargetKey    string          `json:"target_key" db:"target_key"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// GroupGrant links one group to one permission on one target object.
// Uniqueness over (GroupID, PermissionID, TargetKey) mirrors UserGrant.
type GroupGrant struct {
	ID           id.GroupGrantID `json:"id" db:"id"`
	GroupID      id.GroupID      `json:"group_id" db:"group_id"`
	PermissionID id.PermissionID `json:"permission_id" db:"permission_id"`
	TargetKind   string          `json:"target_kind" db:"target_kind"`
	TargetKey    string          `json:"target_key" db:"target_key"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// ListFilter contains filters for listing, counting, and deleting grants.
// Zero-valued fields are ignored; slice fields become IN clauses.
type ListFilter struct {
	UserID        id.UserID         `json:"user_id,omitempty"`
	UserIDs       []id.UserID       `json:"user_ids,omitempty"`
	GroupID       id.GroupID        `json:"group_id,omitempty"`
	GroupIDs      []id.GroupID      `json:"group_ids,omitempty"`
	PermissionID  id.PermissionID   `json:"permission_id,omitempty"`
	PermissionIDs []id.PermissionID `json:"permission_ids,omitempty"`
	TargetKind    string            `json:"target_kind,omitempty"`
	TargetKey     string            `json:"target_key,omitempty"`
	TargetKeys    []string          `json:"target_keys,omitempty"`
	IDs           []id.AnyID        `json:"ids,omitempty"`

	// AfterKey is a keyset floor on TargetKey for paging the distinct-key
	// scans without offsets.
	AfterKey string `json:"after_key,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Empty reports whether the filter constrains nothing. Delete operations
// refuse empty filters.
func (f *ListFilter) Empty() bool {
	if f == nil {
		return true
	}
	return f.UserID.IsNil() && len(f.UserIDs) == 0 &&
		f.GroupID.IsNil() && len(f.GroupIDs) == 0 &&
		f.PermissionID.IsNil() && len(f.PermissionIDs) == 0 &&
		f.TargetKind == "" && f.TargetKey == "" && len(f.TargetKeys) == 0 &&
		len(f.IDs) == 0
}
