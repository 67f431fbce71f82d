package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
	"github.com/xraph/custos/store"
)

// Collection name constants.
const (
	colUsers            = "custos_users"
	colGroups           = "custos_groups"
	colGroupMembers     = "custos_group_members"
	colPermissions      = "custos_permissions"
	colUserGlobalPerms  = "custos_user_global_perms"
	colGroupGlobalPerms = "custos_group_global_perms"
	colUserGrants       = "custos_user_grants"
	colGroupGrants      = "custos_group_grants"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Custos store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all custos collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("custos/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// idStrings converts a slice of typed IDs to their string forms for $in
// filters. All ID aliases share the underlying type.
func idStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

// migrationIndexes returns the index definitions for all custos collections.
// The unique grant indexes give the create operations their idempotency, the
// same way the SQL schemas do with UNIQUE constraints.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colUsers: {
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colGroups: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colGroupMembers: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colPermissions: {
			{
				Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "codename", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "kind", Value: 1}}},
		},
		colUserGlobalPerms: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "permission_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		colGroupGlobalPerms: {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "permission_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		colUserGrants: {
			{
				Keys: bson.D{
					{Key: "user_id", Value: 1},
					{Key: "permission_id", Value: 1},
					{Key: "target_key", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "target_kind", Value: 1}, {Key: "target_key", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		colGroupGrants: {
			{
				Keys: bson.D{
					{Key: "group_id", Value: 1},
					{Key: "permission_id", Value: 1},
					{Key: "target_key", Value: 1},
				},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "target_kind", Value: 1}, {Key: "target_key", Value: 1}}},
			{Keys: bson.D{{Key: "group_id", Value: 1}}},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// User operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *principal.User) error {
	t := now()
	u.CreatedAt = t
	u.UpdatedAt = t
	m := userToModel(u)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("custos: create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*principal.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": userID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("user %s: %w", userID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get user: %w", err)
	}
	return userFromModel(&m), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*principal.User, error) {
	var m userModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"username": username}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("username %q: %w", username, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get user by username: %w", err)
	}
	return userFromModel(&m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *principal.User) error {
	u.UpdatedAt = now()
	m := userToModel(u)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: update user: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, principal.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID id.UserID) error {
	// Mongo has no cascading deletes, so dependent documents are
	// removed explicitly before the user itself.
	uid := userID.String()
	if _, err := s.mdb.NewDelete((*groupMemberModel)(nil)).
		Many().
		Filter(bson.M{"user_id": uid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user memberships: %w", err)
	}
	if _, err := s.mdb.NewDelete((*userGlobalPermModel)(nil)).
		Many().
		Filter(bson.M{"user_id": uid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user global perms: %w", err)
	}
	if _, err := s.mdb.NewDelete((*userGrantModel)(nil)).
		Many().
		Filter(bson.M{"user_id": uid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user grants: %w", err)
	}
	if _, err := s.mdb.NewDelete((*userModel)(nil)).
		Filter(bson.M{"_id": uid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, filter *principal.UserListFilter) ([]*principal.User, error) {
	var models []userModel
	f := bson.M{}
	if filter != nil {
		if len(filter.IDs) > 0 {
			f["_id"] = bson.M{"$in": idStrings(filter.IDs)}
		}
		if filter.Username != "" {
			f["username"] = filter.Username
		}
		if filter.IsActive != nil {
			f["is_active"] = *filter.IsActive
		}
		if filter.IsSuperuser != nil {
			f["is_superuser"] = *filter.IsSuperuser
		}
		if filter.Search != "" {
			f["username"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list users: %w", err)
	}
	result := make([]*principal.User, len(models))
	for i := range models {
		result[i] = userFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountUsers(ctx context.Context, filter *principal.UserListFilter) (int64, error) {
	f := bson.M{}
	if filter != nil {
		if len(filter.IDs) > 0 {
			f["_id"] = bson.M{"$in": idStrings(filter.IDs)}
		}
		if filter.Username != "" {
			f["username"] = filter.Username
		}
		if filter.IsActive != nil {
			f["is_active"] = *filter.IsActive
		}
		if filter.IsSuperuser != nil {
			f["is_superuser"] = *filter.IsSuperuser
		}
		if filter.Search != "" {
			f["username"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	count, err := s.mdb.NewFind((*userModel)(nil)).
		Filter(f).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count users: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Group operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(ctx context.Context, g *principal.Group) error {
	t := now()
	g.CreatedAt = t
	g.UpdatedAt = t
	m := groupToModel(g)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("custos: create group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*principal.Group, error) {
	var m groupModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": groupID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("group %s: %w", groupID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get group: %w", err)
	}
	return groupFromModel(&m), nil
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (*principal.Group, error) {
	var m groupModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("group name %q: %w", name, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get group by name: %w", err)
	}
	return groupFromModel(&m), nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *principal.Group) error {
	g.UpdatedAt = now()
	m := groupToModel(g)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: update group: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("group %s: %w", g.ID, principal.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID id.GroupID) error {
	gid := groupID.String()
	if _, err := s.mdb.NewDelete((*groupMemberModel)(nil)).
		Many().
		Filter(bson.M{"group_id": gid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group memberships: %w", err)
	}
	if _, err := s.mdb.NewDelete((*groupGlobalPermModel)(nil)).
		Many().
		Filter(bson.M{"group_id": gid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group global perms: %w", err)
	}
	if _, err := s.mdb.NewDelete((*groupGrantModel)(nil)).
		Many().
		Filter(bson.M{"group_id": gid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group grants: %w", err)
	}
	if _, err := s.mdb.NewDelete((*groupModel)(nil)).
		Filter(bson.M{"_id": gid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group: %w", err)
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context, filter *principal.GroupListFilter) ([]*principal.Group, error) {
	var models []groupModel
	f := bson.M{}
	if filter != nil {
		if len(filter.IDs) > 0 {
			f["_id"] = bson.M{"$in": idStrings(filter.IDs)}
		}
		if filter.Name != "" {
			f["name"] = filter.Name
		}
		if filter.Search != "" {
			f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list groups: %w", err)
	}
	result := make([]*principal.Group, len(models))
	for i := range models {
		result[i] = groupFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountGroups(ctx context.Context, filter *principal.GroupListFilter) (int64, error) {
	f := bson.M{}
	if filter != nil {
		if len(filter.IDs) > 0 {
			f["_id"] = bson.M{"$in": idStrings(filter.IDs)}
		}
		if filter.Name != "" {
			f["name"] = filter.Name
		}
		if filter.Search != "" {
			f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
		}
	}
	count, err := s.mdb.NewFind((*groupModel)(nil)).
		Filter(f).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count groups: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Membership operations
// ──────────────────────────────────────────────────

func (s *Store) AddMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	m := &groupMemberModel{
		GroupID: groupID.String(),
		UserID:  userID.String(),
	}
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // already a member
		}
		return fmt.Errorf("custos: add member: %w", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	_, err := s.mdb.NewDelete((*groupMemberModel)(nil)).
		Filter(bson.M{"group_id": groupID.String(), "user_id": userID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: remove member: %w", err)
	}
	return nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID id.UserID) ([]id.GroupID, error) {
	var models []groupMemberModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list groups for user: %w", err)
	}
	result := make([]id.GroupID, 0, len(models))
	for _, m := range models {
		gid, err := id.ParseGroupID(m.GroupID)
		if err == nil {
			result = append(result, gid)
		}
	}
	return result, nil
}

func (s *Store) ListGroupMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error) {
	var models []groupMemberModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"group_id": groupID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list group members: %w", err)
	}
	result := make([]id.UserID, 0, len(models))
	for _, m := range models {
		uid, err := id.ParseUserID(m.UserID)
		if err == nil {
			result = append(result, uid)
		}
	}
	return result, nil
}

func (s *Store) IsMember(ctx context.Context, groupID id.GroupID, userID id.UserID) (bool, error) {
	count, err := s.mdb.NewFind((*groupMemberModel)(nil)).
		Filter(bson.M{"group_id": groupID.String(), "user_id": userID.String()}).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("custos: is member: %w", err)
	}
	return count > 0, nil
}

// ──────────────────────────────────────────────────
// Global permission operations
// ──────────────────────────────────────────────────

func (s *Store) GrantGlobalToUser(ctx context.Context, userID id.UserID, permID id.PermissionID) error {
	m := &userGlobalPermModel{
		UserID:       userID.String(),
		PermissionID: permID.String(),
	}
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // already granted
		}
		return fmt.Errorf("custos: grant global to user: %w", err)
	}
	return nil
}

func (s *Store) RevokeGlobalFromUser(ctx context.Context, userID id.UserID, permID id.PermissionID) (bool, error) {
	res, err := s.mdb.NewDelete((*userGlobalPermModel)(nil)).
		Filter(bson.M{"user_id": userID.String(), "permission_id": permID.String()}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("custos: revoke global from user: %w", err)
	}
	return res.DeletedCount() > 0, nil
}

func (s *Store) ListGlobalForUser(ctx context.Context, userID id.UserID) ([]id.PermissionID, error) {
	var models []userGlobalPermModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"user_id": userID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list global for user: %w", err)
	}
	result := make([]id.PermissionID, 0, len(models))
	for _, m := range models {
		pid, err := id.ParsePermissionID(m.PermissionID)
		if err == nil {
			result = append(result, pid)
		}
	}
	return result, nil
}

func (s *Store) GrantGlobalToGroup(ctx context.Context, groupID id.GroupID, permID id.PermissionID) error {
	m := &groupGlobalPermModel{
		GroupID:      groupID.String(),
		PermissionID: permID.String(),
	}
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // already granted
		}
		return fmt.Errorf("custos: grant global to group: %w", err)
	}
	return nil
}

func (s *Store) RevokeGlobalFromGroup(ctx context.Context, groupID id.GroupID, permID id.PermissionID) (bool, error) {
	res, err := s.mdb.NewDelete((*groupGlobalPermModel)(nil)).
		Filter(bson.M{"group_id": groupID.String(), "permission_id": permID.String()}).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("custos: revoke global from group: %w", err)
	}
	return res.DeletedCount() > 0, nil
}

func (s *Store) ListGlobalForGroup(ctx context.Context, groupID id.GroupID) ([]id.PermissionID, error) {
	var models []groupGlobalPermModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"group_id": groupID.String()}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list global for group: %w", err)
	}
	result := make([]id.PermissionID, 0, len(models))
	for _, m := range models {
		pid, err := id.ParsePermissionID(m.PermissionID)
		if err == nil {
			result = append(result, pid)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	t := now()
	p.CreatedAt = t
	p.UpdatedAt = t
	m := permissionToModel(p)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("custos: create permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": permID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("permission %s: %w", permID, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get permission: %w", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) GetPermissionByCode(ctx context.Context, kind, codename string) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"kind": kind, "codename": codename}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("permission %s.%s: %w", kind, codename, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get permission by code: %w", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) GetPermissionsByIDs(ctx context.Context, permIDs []id.PermissionID) ([]*permission.Permission, error) {
	if len(permIDs) == 0 {
		return []*permission.Permission{}, nil
	}
	var models []permissionModel
	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"_id": bson.M{"$in": idStrings(permIDs)}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: get permissions by ids: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	p.UpdatedAt = now()
	m := permissionToModel(p)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: update permission: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("permission %s: %w", p.ID, permission.ErrNotFound)
	}
	return nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	pid := permID.String()
	if _, err := s.mdb.NewDelete((*userGrantModel)(nil)).
		Many().
		Filter(bson.M{"permission_id": pid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission user grants: %w", err)
	}
	if _, err := s.mdb.NewDelete((*groupGrantModel)(nil)).
		Many().
		Filter(bson.M{"permission_id": pid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission group grants: %w", err)
	}
	if _, err := s.mdb.NewDelete((*userGlobalPermModel)(nil)).
		Many().
		Filter(bson.M{"permission_id": pid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission user globals: %w", err)
	}
	if _, err := s.mdb.NewDelete((*groupGlobalPermModel)(nil)).
		Many().
		Filter(bson.M{"permission_id": pid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission group globals: %w", err)
	}
	if _, err := s.mdb.NewDelete((*permissionModel)(nil)).
		Filter(bson.M{"_id": pid}).
		Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission: %w", err)
	}
	return nil
}

func permissionFilter(filter *permission.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Kind != "" {
		f["kind"] = filter.Kind
	}
	if filter.Codename != "" {
		f["codename"] = filter.Codename
	}
	if len(filter.Codenames) > 0 {
		f["codename"] = bson.M{"$in": filter.Codenames}
	}
	if len(filter.IDs) > 0 {
		f["_id"] = bson.M{"$in": idStrings(filter.IDs)}
	}
	if filter.Search != "" {
		pat := bson.M{"$regex": filter.Search, "$options": "i"}
		f["$or"] = []bson.M{{"codename": pat}, {"label": pat}}
	}
	return f
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.mdb.NewFind(&models).
		Filter(permissionFilter(filter)).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list permissions: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*permissionModel)(nil)).
		Filter(permissionFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count permissions: %w", err)
	}
	return count, nil
}

func (s *Store) EnsurePermission(ctx context.Context, p *permission.Permission) (*permission.Permission, error) {
	c := *p
	if c.ID.IsNil() {
		c.ID = id.NewPermissionID()
	}
	t := now()
	c.CreatedAt = t
	c.UpdatedAt = t
	if _, err := s.mdb.NewInsert(permissionToModel(&c)).Exec(ctx); err != nil {
		if !mongod.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("custos: ensure permission: %w", err)
		}
	}
	// Re-read so a pre-existing document wins over the candidate.
	return s.GetPermissionByCode(ctx, c.Kind, c.Codename)
}

// ──────────────────────────────────────────────────
// Grant filter compilation
// ──────────────────────────────────────────────────

// userGrantFilter maps a grant.ListFilter onto a bson document. List,
// count, delete, and distinct-key queries all share the same filter
// surface, so the mapping lives in one place per grant side.
func userGrantFilter(f *grant.ListFilter) bson.M {
	m := bson.M{}
	if f == nil {
		return m
	}
	if !f.UserID.IsNil() {
		m["user_id"] = f.UserID.String()
	}
	if len(f.UserIDs) > 0 {
		m["user_id"] = bson.M{"$in": idStrings(f.UserIDs)}
	}
	commonGrantFilter(f, m)
	return m
}

func groupGrantFilter(f *grant.ListFilter) bson.M {
	m := bson.M{}
	if f == nil {
		return m
	}
	if !f.GroupID.IsNil() {
		m["group_id"] = f.GroupID.String()
	}
	if len(f.GroupIDs) > 0 {
		m["group_id"] = bson.M{"$in": idStrings(f.GroupIDs)}
	}
	commonGrantFilter(f, m)
	return m
}

func commonGrantFilter(f *grant.ListFilter, m bson.M) {
	if !f.PermissionID.IsNil() {
		m["permission_id"] = f.PermissionID.String()
	}
	if len(f.PermissionIDs) > 0 {
		m["permission_id"] = bson.M{"$in": idStrings(f.PermissionIDs)}
	}
	if f.TargetKind != "" {
		m["target_kind"] = f.TargetKind
	}
	if f.TargetKey != "" {
		m["target_key"] = f.TargetKey
	}
	if len(f.TargetKeys) > 0 {
		m["target_key"] = bson.M{"$in": f.TargetKeys}
	}
	if len(f.IDs) > 0 {
		m["_id"] = bson.M{"$in": idStrings(f.IDs)}
	}
	if f.AfterKey != "" {
		m["target_key"] = bson.M{"$gt": f.AfterKey}
	}
}

// ──────────────────────────────────────────────────
// User grant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUserGrant(ctx context.Context, g *grant.UserGrant) error {
	g.CreatedAt = now()
	_, err := s.mdb.NewInsert(userGrantToModel(g)).Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // grant already exists
		}
		return fmt.Errorf("custos: create user grant: %w", err)
	}
	return nil
}

func (s *Store) CreateUserGrants(ctx context.Context, grants []*grant.UserGrant) error {
	// Inserted one document at a time so a duplicate mid-batch skips
	// that grant without aborting the rest.
	t := now()
	for _, g := range grants {
		g.CreatedAt = t
		if _, err := s.mdb.NewInsert(userGrantToModel(g)).Exec(ctx); err != nil {
			if mongod.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("custos: create user grants: %w", err)
		}
	}
	return nil
}

func (s *Store) ListUserGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.UserGrant, error) {
	var models []userGrantModel
	q := s.mdb.NewFind(&models).
		Filter(userGrantFilter(filter)).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list user grants: %w", err)
	}
	result := make([]*grant.UserGrant, len(models))
	for i := range models {
		result[i] = userGrantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountUserGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*userGrantModel)(nil)).
		Filter(userGrantFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count user grants: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteUserGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	if filter.Empty() {
		return 0, grant.ErrEmptyFilter
	}
	res, err := s.mdb.NewDelete((*userGrantModel)(nil)).
		Many().
		Filter(userGrantFilter(filter)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: delete user grants: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) DistinctUserGrantKeys(ctx context.Context, filter *grant.ListFilter) ([]string, error) {
	var models []userGrantModel
	if err := s.mdb.NewFind(&models).
		Filter(userGrantFilter(filter)).
		Sort(bson.D{{Key: "target_key", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: distinct user grant keys: %w", err)
	}
	keys := make([]string, 0, len(models))
	for i := range models {
		keys = append(keys, models[i].TargetKey)
	}
	return dedupeSortedKeys(keys, filter), nil
}

// ──────────────────────────────────────────────────
// Group grant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGroupGrant(ctx context.Context, g *grant.GroupGrant) error {
	g.CreatedAt = now()
	_, err := s.mdb.NewInsert(groupGrantToModel(g)).Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return nil // grant already exists
		}
		return fmt.Errorf("custos: create group grant: %w", err)
	}
	return nil
}

func (s *Store) CreateGroupGrants(ctx context.Context, grants []*grant.GroupGrant) error {
	t := now()
	for _, g := range grants {
		g.CreatedAt = t
		if _, err := s.mdb.NewInsert(groupGrantToModel(g)).Exec(ctx); err != nil {
			if mongod.IsDuplicateKeyError(err) {
				continue
			}
			return fmt.Errorf("custos: create group grants: %w", err)
		}
	}
	return nil
}

func (s *Store) ListGroupGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.GroupGrant, error) {
	var models []groupGrantModel
	q := s.mdb.NewFind(&models).
		Filter(groupGrantFilter(filter)).
		Sort(bson.D{{Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: list group grants: %w", err)
	}
	result := make([]*grant.GroupGrant, len(models))
	for i := range models {
		result[i] = groupGrantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountGroupGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	count, err := s.mdb.NewFind((*groupGrantModel)(nil)).
		Filter(groupGrantFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count group grants: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteGroupGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	if filter.Empty() {
		return 0, grant.ErrEmptyFilter
	}
	res, err := s.mdb.NewDelete((*groupGrantModel)(nil)).
		Many().
		Filter(groupGrantFilter(filter)).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: delete group grants: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) DistinctGroupGrantKeys(ctx context.Context, filter *grant.ListFilter) ([]string, error) {
	var models []groupGrantModel
	if err := s.mdb.NewFind(&models).
		Filter(groupGrantFilter(filter)).
		Sort(bson.D{{Key: "target_key", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("custos: distinct group grant keys: %w", err)
	}
	keys := make([]string, 0, len(models))
	for i := range models {
		keys = append(keys, models[i].TargetKey)
	}
	return dedupeSortedKeys(keys, filter), nil
}

// dedupeSortedKeys collapses an already-sorted key list and applies the
// filter limit to the distinct keys rather than the underlying rows.
func dedupeSortedKeys(sorted []string, f *grant.ListFilter) []string {
	out := make([]string, 0, len(sorted))
	for i, k := range sorted {
		if i > 0 && sorted[i-1] == k {
			continue
		}
		out = append(out, k)
		if f != nil && f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}
