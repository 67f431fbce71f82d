// Package permission defines the Permission entity and its store interface.
package permission

import (
	"errors"
	"time"

	"github.com/xraph/custos/id"
)

// ErrNotFound is returned by stores when a permission does not exist.
var ErrNotFound = errors.New("permission not found")

// Permission represents a named action that can be granted on objects of a
// single target kind. Codename is unique within a kind; the qualified form
// "kind.codename" is unique across the system.
type Permission struct {
	ID        id.PermissionID `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"`
	Codename  string          `json:"codename" db:"codename"`
	Label     string          `json:"label,omitempty" db:"label"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Code returns the qualified "kind.codename" form of the permission.
func (p *Permission) Code() string {
	return p.Kind + "." + p.Codename
}

// ListFilter contains filters for listing permissions.
type ListFilter struct {
	Kind      string            `json:"kind,omitempty"`
	Codename  string            `json:"codename,omitempty"`
	Codenames []string          `json:"codenames,omitempty"`
	IDs       []id.PermissionID `json:"ids,omitempty"`
	Search    string            `json:"search,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Offset    int               `json:"offset,omitempty"`
}
