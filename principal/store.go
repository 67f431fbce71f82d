package principal

import (
	"context"

	"github.com/xraph/custos/id"
)

// Store defines persistence operations for users, groups, group
// membership, and global (object-independent) permission relations.
type Store interface {
	// CreateUser persists a new user.
	CreateUser(ctx context.Context, u *User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, userID id.UserID) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// UpdateUser persists changes to a user.
	UpdateUser(ctx context.Context, u *User) error

	// DeleteUser removes a user by ID along with their memberships,
	// global relations, and grants.
	DeleteUser(ctx context.Context, userID id.UserID) error

	// ListUsers returns users matching the filter.
	ListUsers(ctx context.Context, filter *UserListFilter) ([]*User, error)

	// CountUsers returns the number of users matching the filter.
	CountUsers(ctx context.Context, filter *UserListFilter) (int64, error)

	// CreateGroup persists a new group.
	CreateGroup(ctx context.Context, g *Group) error

	// GetGroup retrieves a group by ID.
	GetGroup(ctx context.Context, groupID id.GroupID) (*Group, error)

	// GetGroupByName retrieves a group by name.
	GetGroupByName(ctx context.Context, name string) (*Group, error)

	// UpdateGroup persists changes to a group.
	UpdateGroup(ctx context.Context, g *Group) error

	// DeleteGroup removes a group by ID along with its memberships,
	// global relations, and grants.
	DeleteGroup(ctx context.Context, groupID id.GroupID) error

	// ListGroups returns groups matching the filter.
	ListGroups(ctx context.Context, filter *GroupListFilter) ([]*Group, error)

	// CountGroups returns the number of groups matching the filter.
	CountGroups(ctx context.Context, filter *GroupListFilter) (int64, error)

	// AddMember adds a user to a group. Adding an existing member is a
	// no-op.
	AddMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error

	// RemoveMember removes a user from a group. Removing a non-member is
	// a no-op.
	RemoveMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error

	// ListGroupsForUser returns the IDs of all groups the user belongs to.
	ListGroupsForUser(ctx context.Context, userID id.UserID) ([]id.GroupID, error)

	// ListGroupMembers returns the IDs of all users in a group.
	ListGroupMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error)

	// IsMember reports whether the user belongs to the group.
	IsMember(ctx context.Context, groupID id.GroupID, userID id.UserID) (bool, error)

	// GrantGlobalToUser records an object-independent permission for a
	// user. Granting an already-held permission is a no-op.
	GrantGlobalToUser(ctx context.Context, userID id.UserID, permID id.PermissionID) error

	// RevokeGlobalFromUser removes an object-independent permission from
	// a user and reports whether a relation was actually removed.
	// Revoking a permission the user does not hold is a no-op.
	RevokeGlobalFromUser(ctx context.Context, userID id.UserID, permID id.PermissionID) (bool, error)

	// ListGlobalForUser returns permission IDs held globally by the user,
	// not including permissions held through groups.
	ListGlobalForUser(ctx context.Context, userID id.UserID) ([]id.PermissionID, error)

	// GrantGlobalToGroup records an object-independent permission for a
	// group. Granting an already-held permission is a no-op.
	GrantGlobalToGroup(ctx context.Context, groupID id.GroupID, permID id.PermissionID) error

	// RevokeGlobalFromGroup removes an object-independent permission from
	// a group and reports whether a relation was actually removed.
	// Revoking a permission the group does not hold is a no-op.
	RevokeGlobalFromGroup(ctx context.Context, groupID id.GroupID, permID id.PermissionID) (bool, error)

	// ListGlobalForGroup returns permission IDs held globally by the group.
	ListGlobalForGroup(ctx context.Context, groupID id.GroupID) ([]id.PermissionID, error)
}
