package grant

import (
	"context"
)

// Store defines persistence operations for user and group grants.
//
// The composite backends implement it over the two generic tables; a
// target kind registered in direct form supplies its own Store whose
// rows live in per-kind tables with a real foreign key to the target.
type Store interface {
	// CreateUserGrant persists a new user grant. A grant that already
	// exists (same user, permission, target key) is left untouched and
	// no error is returned.
	CreateUserGrant(ctx context.Context, g *UserGrant) error

	// CreateUserGrants persists many user grants in a single statement,
	// skipping rows that already exist.
	CreateUserGrants(ctx context.Context, grants []*UserGrant) error

	// ListUserGrants returns user grants matching the filter.
	ListUserGrants(ctx context.Context, filter *ListFilter) ([]*UserGrant, error)

	// CountUserGrants returns the number of user grants matching the filter.
	CountUserGrants(ctx context.Context, filter *ListFilter) (int64, error)

	// DeleteUserGrants removes all user grants matching the filter in a
	// single statement and returns the number of rows removed. An empty
	// filter is rejected.
	DeleteUserGrants(ctx context.Context, filter *ListFilter) (int64, error)

	// DistinctUserGrantKeys returns the distinct target keys of user
	// grants matching the filter, ordered ascending. AfterKey and Limit
	// page the scan.
	DistinctUserGrantKeys(ctx context.Context, filter *ListFilter) ([]string, error)

	// CreateGroupGrant persists a new group grant. A grant that already
	// exists (same group, permission, target key) is left untouched and
	// no error is returned.
	CreateGroupGrant(ctx context.Context, g *GroupGrant) error

	// CreateGroupGrants persists many group grants in a single statement,
	// skipping rows that already exist.
	CreateGroupGrants(ctx context.Context, grants []*GroupGrant) error

	// ListGroupGrants returns group grants matching the filter.
	ListGroupGrants(ctx context.Context, filter *ListFilter) ([]*GroupGrant, error)

	// CountGroupGrants returns the number of group grants matching the filter.
	CountGroupGrants(ctx context.Context, filter *ListFilter) (int64, error)

	// DeleteGroupGrants removes all group grants matching the filter in a
	// single statement and returns the number of rows removed. An empty
	// filter is rejected.
	DeleteGroupGrants(ctx context.Context, filter *ListFilter) (int64, error)

	// DistinctGroupGrantKeys returns the distinct target keys of group
	// grants matching the filter, ordered ascending. AfterKey and Limit
	// page the scan.
	DistinctGroupGrantKeys(ctx context.Context, filter *ListFilter) ([]string, error)
}
