// Package principal defines the User and Group entities and their store
// interface. Users and groups are the two principal types grants can be
// addressed to; group membership links them.
package principal

import (
	"errors"
	"time"

	"github.com/xraph/custos/id"
)

// ErrNotFound is returned by stores when a user or group does not exist.
var ErrNotFound = errors.New("principal not found")

// User represents an account that can hold grants directly or through
// group membership. Inactive users hold their grants but fail every
// check; superusers pass every check without consulting grants.
type User struct {
	ID          id.UserID `json:"id" db:"id"`
	Username    string    `json:"username" db:"username"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	IsSuperuser bool      `json:"is_superuser" db:"is_superuser"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Group represents a named collection of users that can hold grants.
type Group struct {
	ID        id.GroupID `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// UserListFilter contains filters for listing users.
type UserListFilter struct {
	IDs         []id.UserID `json:"ids,omitempty"`
	Username    string      `json:"username,omitempty"`
	IsActive    *bool       `json:"is_active,omitempty"`
	IsSuperuser *bool       `json:"is_superuser,omitempty"`
	Search      string      `json:"search,omitempty"`
	Limit       int         `json:"limit,omitempty"`
	Offset      int         `json:"offset,omitempty"`
}

// GroupListFilter contains filters for listing groups.
type GroupListFilter struct {
	IDs    []id.GroupID `json:"ids,omitempty"`
	Name   string       `json:"name,omitempty"`
	Search string       `json:"search,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}
