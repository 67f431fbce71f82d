package permission

import (
	"context"

	"github.com/xraph/custos/id"
)

// Store defines persistence operations for permissions.
type Store interface {
	// CreatePermission persists a new permission.
	CreatePermission(ctx context.Context, p *Permission) error

	// GetPermission retrieves a permission by ID.
	GetPermission(ctx context.Context, permID id.PermissionID) (*Permission, error)

	// GetPermissionByCode retrieves a permission by kind and codename.
	GetPermissionByCode(ctx context.Context, kind, codename string) (*Permission, error)

	// GetPermissionsByIDs retrieves the permissions with the given IDs.
	// Missing IDs are skipped, not reported as errors.
	GetPermissionsByIDs(ctx context.Context, permIDs []id.PermissionID) ([]*Permission, error)

	// UpdatePermission persists changes to a permission.
	UpdatePermission(ctx context.Context, p *Permission) error

	// DeletePermission removes a permission by ID.
	DeletePermission(ctx context.Context, permID id.PermissionID) error

	// ListPermissions returns permissions matching the filter.
	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)

	// CountPermissions returns the number of permissions matching the filter.
	CountPermissions(ctx context.Context, filter *ListFilter) (int64, error)

	// EnsurePermission creates the permission if no permission with the same
	// kind and codename exists, and returns the stored row either way.
	EnsurePermission(ctx context.Context, p *Permission) (*Permission, error)
}
