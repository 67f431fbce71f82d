// Package sqlite implements the composite Custos store on SQLite via
// grove. Uniqueness of grants over (principal, permission, target key)
// is enforced by the schema, so conflict-ignoring inserts give the
// create operations their idempotency.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
	"github.com/xraph/custos/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a SQLite implementation of the composite Custos store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("custos/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("custos/sqlite: migration failed: %w", err)
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

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// idStrings converts a slice of typed IDs to their string forms for IN
// clauses. All ID aliases share the underlying type.
func idStrings(ids []id.ID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

// ──────────────────────────────────────────────────
// User operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(ctx context.Context, u *principal.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	if _, err := s.sdb.NewInsert(userToModel(u)).Exec(ctx); err != nil {
		return fmt.Errorf("custos: create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*principal.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).Where("id = ?", userID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("user %s: %w", userID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get user: %w", err)
	}
	return userFromModel(m), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*principal.User, error) {
	m := new(userModel)
	err := s.sdb.NewSelect(m).Where("username = ?", username).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("username %q: %w", username, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get user by username: %w", err)
	}
	return userFromModel(m), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *principal.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(userToModel(u)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: update user: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("user %s: %w", u.ID, principal.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID id.UserID) error {
	// SQLite only enforces the declared cascades when the foreign_keys
	// pragma is on, so dependent rows are removed explicitly.
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("custos: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	uid := userID.String()
	if _, err := tx.NewDelete((*groupMemberModel)(nil)).Where("user_id = ?", uid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user memberships: %w", err)
	}
	if _, err := tx.NewDelete((*userGlobalPermModel)(nil)).Where("user_id = ?", uid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user global perms: %w", err)
	}
	if _, err := tx.NewDelete((*userGrantModel)(nil)).Where("user_id = ?", uid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user grants: %w", err)
	}
	if _, err := tx.NewDelete((*userModel)(nil)).Where("id = ?", uid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("custos: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, filter *principal.UserListFilter) ([]*principal.User, error) {
	var models []userModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")
	if filter != nil {
		if len(filter.IDs) > 0 {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Username != "" {
			q = q.Where("username = ?", filter.Username)
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.IsSuperuser != nil {
			q = q.Where("is_superuser = ?", *filter.IsSuperuser)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(username) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*userModel)(nil))
	if filter != nil {
		if len(filter.IDs) > 0 {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Username != "" {
			q = q.Where("username = ?", filter.Username)
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.IsSuperuser != nil {
			q = q.Where("is_superuser = ?", *filter.IsSuperuser)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(username) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count users: %w", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Group operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(ctx context.Context, g *principal.Group) error {
	now := time.Now().UTC()
	g.CreatedAt = now
	g.UpdatedAt = now
	if _, err := s.sdb.NewInsert(groupToModel(g)).Exec(ctx); err != nil {
		return fmt.Errorf("custos: create group: %w", err)
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, groupID id.GroupID) (*principal.Group, error) {
	m := new(groupModel)
	err := s.sdb.NewSelect(m).Where("id = ?", groupID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("group %s: %w", groupID, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get group: %w", err)
	}
	return groupFromModel(m), nil
}

func (s *Store) GetGroupByName(ctx context.Context, name string) (*principal.Group, error) {
	m := new(groupModel)
	err := s.sdb.NewSelect(m).Where("name = ?", name).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("group name %q: %w", name, principal.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get group by name: %w", err)
	}
	return groupFromModel(m), nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *principal.Group) error {
	g.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(groupToModel(g)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: update group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("group %s: %w", g.ID, principal.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, groupID id.GroupID) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("custos: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	gid := groupID.String()
	if _, err := tx.NewDelete((*groupMemberModel)(nil)).Where("group_id = ?", gid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group memberships: %w", err)
	}
	if _, err := tx.NewDelete((*groupGlobalPermModel)(nil)).Where("group_id = ?", gid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group global perms: %w", err)
	}
	if _, err := tx.NewDelete((*groupGrantModel)(nil)).Where("group_id = ?", gid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group grants: %w", err)
	}
	if _, err := tx.NewDelete((*groupModel)(nil)).Where("id = ?", gid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete group: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("custos: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListGroups(ctx context.Context, filter *principal.GroupListFilter) ([]*principal.Group, error) {
	var models []groupModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")
	if filter != nil {
		if len(filter.IDs) > 0 {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Name != "" {
			q = q.Where("name = ?", filter.Name)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*groupModel)(nil))
	if filter != nil {
		if len(filter.IDs) > 0 {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Name != "" {
			q = q.Where("name = ?", filter.Name)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(group_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: add member: %w", err)
	}
	return nil
}

func (s *Store) RemoveMember(ctx context.Context, groupID id.GroupID, userID id.UserID) error {
	_, err := s.sdb.NewDelete((*groupMemberModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Where("user_id = ?", userID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: remove member: %w", err)
	}
	return nil
}

func (s *Store) ListGroupsForUser(ctx context.Context, userID id.UserID) ([]id.GroupID, error) {
	var models []groupMemberModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
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
	err := s.sdb.NewSelect(&models).
		Where("group_id = ?", groupID.String()).
		Scan(ctx)
	if err != nil {
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
	count, err := s.sdb.NewSelect((*groupMemberModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Where("user_id = ?", userID.String()).
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(user_id, permission_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: grant global to user: %w", err)
	}
	return nil
}

func (s *Store) RevokeGlobalFromUser(ctx context.Context, userID id.UserID, permID id.PermissionID) (bool, error) {
	res, err := s.sdb.NewDelete((*userGlobalPermModel)(nil)).
		Where("user_id = ?", userID.String()).
		Where("permission_id = ?", permID.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("custos: revoke global from user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("custos: revoke global from user rows: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListGlobalForUser(ctx context.Context, userID id.UserID) ([]id.PermissionID, error) {
	var models []userGlobalPermModel
	err := s.sdb.NewSelect(&models).
		Where("user_id = ?", userID.String()).
		Scan(ctx)
	if err != nil {
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(group_id, permission_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: grant global to group: %w", err)
	}
	return nil
}

func (s *Store) RevokeGlobalFromGroup(ctx context.Context, groupID id.GroupID, permID id.PermissionID) (bool, error) {
	res, err := s.sdb.NewDelete((*groupGlobalPermModel)(nil)).
		Where("group_id = ?", groupID.String()).
		Where("permission_id = ?", permID.String()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("custos: revoke global from group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("custos: revoke global from group rows: %w", err)
	}
	return n > 0, nil
}

func (s *Store) ListGlobalForGroup(ctx context.Context, groupID id.GroupID) ([]id.PermissionID, error) {
	var models []groupGlobalPermModel
	err := s.sdb.NewSelect(&models).
		Where("group_id = ?", groupID.String()).
		Scan(ctx)
	if err != nil {
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
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if _, err := s.sdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
		return fmt.Errorf("custos: create permission: %w", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.sdb.NewSelect(m).Where("id = ?", permID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("permission %s: %w", permID, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get permission: %w", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) GetPermissionByCode(ctx context.Context, kind, codename string) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.sdb.NewSelect(m).
		Where("kind = ?", kind).
		Where("codename = ?", codename).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("permission %s.%s: %w", kind, codename, permission.ErrNotFound)
		}
		return nil, fmt.Errorf("custos: get permission by code: %w", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) GetPermissionsByIDs(ctx context.Context, permIDs []id.PermissionID) ([]*permission.Permission, error) {
	if len(permIDs) == 0 {
		return []*permission.Permission{}, nil
	}
	var models []permissionModel
	err := s.sdb.NewSelect(&models).
		Where("id IN (?)", idStrings(permIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("custos: get permissions by ids: %w", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := s.sdb.NewUpdate(permissionToModel(p)).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: update permission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("permission %s: %w", p.ID, permission.ErrNotFound)
	}
	return nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	tx, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("custos: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback on error is intentional

	pid := permID.String()
	if _, err := tx.NewDelete((*userGrantModel)(nil)).Where("permission_id = ?", pid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission user grants: %w", err)
	}
	if _, err := tx.NewDelete((*groupGrantModel)(nil)).Where("permission_id = ?", pid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission group grants: %w", err)
	}
	if _, err := tx.NewDelete((*userGlobalPermModel)(nil)).Where("permission_id = ?", pid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission user globals: %w", err)
	}
	if _, err := tx.NewDelete((*groupGlobalPermModel)(nil)).Where("permission_id = ?", pid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission group globals: %w", err)
	}
	if _, err := tx.NewDelete((*permissionModel)(nil)).Where("id = ?", pid).Exec(ctx); err != nil {
		return fmt.Errorf("custos: delete permission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("custos: commit tx: %w", err)
	}
	return nil
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")
	if filter != nil {
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		if filter.Codename != "" {
			q = q.Where("codename = ?", filter.Codename)
		}
		if len(filter.Codenames) > 0 {
			q = q.Where("codename IN (?)", filter.Codenames)
		}
		if len(filter.IDs) > 0 {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			q = q.Where("(LOWER(codename) LIKE LOWER(?) OR LOWER(label) LIKE LOWER(?))", pat, pat)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*permissionModel)(nil))
	if filter != nil {
		if filter.Kind != "" {
			q = q.Where("kind = ?", filter.Kind)
		}
		if filter.Codename != "" {
			q = q.Where("codename = ?", filter.Codename)
		}
		if len(filter.Codenames) > 0 {
			q = q.Where("codename IN (?)", filter.Codenames)
		}
		if len(filter.IDs) > 0 {
			q = q.Where("id IN (?)", idStrings(filter.IDs))
		}
		if filter.Search != "" {
			pat := "%" + filter.Search + "%"
			q = q.Where("(LOWER(codename) LIKE LOWER(?) OR LOWER(label) LIKE LOWER(?))", pat, pat)
		}
	}
	count, err := q.Count(ctx)
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
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := s.sdb.NewInsert(permissionToModel(&c)).
		OnConflict("(kind, codename) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("custos: ensure permission: %w", err)
	}
	// Re-read so a pre-existing row wins over the candidate.
	return s.GetPermissionByCode(ctx, c.Kind, c.Codename)
}

// ──────────────────────────────────────────────────
// Grant filter compilation
// ──────────────────────────────────────────────────

// grantClause is one WHERE fragment compiled from a grant.ListFilter.
// List, count, delete, and distinct-key queries all share the same
// filter surface, so the mapping lives in one place per grant side.
type grantClause struct {
	expr string
	args []any
}

func userGrantClauses(f *grant.ListFilter) []grantClause {
	if f == nil {
		return nil
	}
	var cs []grantClause
	if !f.UserID.IsNil() {
		cs = append(cs, grantClause{"user_id = ?", []any{f.UserID.String()}})
	}
	if len(f.UserIDs) > 0 {
		cs = append(cs, grantClause{"user_id IN (?)", []any{idStrings(f.UserIDs)}})
	}
	return append(cs, commonGrantClauses(f)...)
}

func groupGrantClauses(f *grant.ListFilter) []grantClause {
	if f == nil {
		return nil
	}
	var cs []grantClause
	if !f.GroupID.IsNil() {
		cs = append(cs, grantClause{"group_id = ?", []any{f.GroupID.String()}})
	}
	if len(f.GroupIDs) > 0 {
		cs = append(cs, grantClause{"group_id IN (?)", []any{idStrings(f.GroupIDs)}})
	}
	return append(cs, commonGrantClauses(f)...)
}

func commonGrantClauses(f *grant.ListFilter) []grantClause {
	var cs []grantClause
	if !f.PermissionID.IsNil() {
		cs = append(cs, grantClause{"permission_id = ?", []any{f.PermissionID.String()}})
	}
	if len(f.PermissionIDs) > 0 {
		cs = append(cs, grantClause{"permission_id IN (?)", []any{idStrings(f.PermissionIDs)}})
	}
	if f.TargetKind != "" {
		cs = append(cs, grantClause{"target_kind = ?", []any{f.TargetKind}})
	}
	if f.TargetKey != "" {
		cs = append(cs, grantClause{"target_key = ?", []any{f.TargetKey}})
	}
	if len(f.TargetKeys) > 0 {
		cs = append(cs, grantClause{"target_key IN (?)", []any{f.TargetKeys}})
	}
	if len(f.IDs) > 0 {
		cs = append(cs, grantClause{"id IN (?)", []any{idStrings(f.IDs)}})
	}
	if f.AfterKey != "" {
		cs = append(cs, grantClause{"target_key > ?", []any{f.AfterKey}})
	}
	return cs
}

// ──────────────────────────────────────────────────
// User grant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateUserGrant(ctx context.Context, g *grant.UserGrant) error {
	g.CreatedAt = time.Now().UTC()
	_, err := s.sdb.NewInsert(userGrantToModel(g)).
		OnConflict("(user_id, permission_id, target_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: create user grant: %w", err)
	}
	return nil
}

func (s *Store) CreateUserGrants(ctx context.Context, grants []*grant.UserGrant) error {
	if len(grants) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]userGrantModel, len(grants))
	for i, g := range grants {
		g.CreatedAt = now
		models[i] = *userGrantToModel(g)
	}
	_, err := s.sdb.NewInsert(&models).
		OnConflict("(user_id, permission_id, target_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: create user grants: %w", err)
	}
	return nil
}

func (s *Store) ListUserGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.UserGrant, error) {
	var models []userGrantModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")
	for _, c := range userGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*userGrantModel)(nil))
	for _, c := range userGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count user grants: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteUserGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	if filter.Empty() {
		return 0, grant.ErrEmptyFilter
	}
	q := s.sdb.NewDelete((*userGrantModel)(nil))
	for _, c := range userGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: delete user grants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("custos: delete user grants rows: %w", err)
	}
	return n, nil
}

func (s *Store) DistinctUserGrantKeys(ctx context.Context, filter *grant.ListFilter) ([]string, error) {
	var models []userGrantModel
	q := s.sdb.NewSelect(&models).OrderExpr("target_key ASC")
	for _, c := range userGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	if err := q.Scan(ctx); err != nil {
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
	g.CreatedAt = time.Now().UTC()
	_, err := s.sdb.NewInsert(groupGrantToModel(g)).
		OnConflict("(group_id, permission_id, target_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: create group grant: %w", err)
	}
	return nil
}

func (s *Store) CreateGroupGrants(ctx context.Context, grants []*grant.GroupGrant) error {
	if len(grants) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]groupGrantModel, len(grants))
	for i, g := range grants {
		g.CreatedAt = now
		models[i] = *groupGrantToModel(g)
	}
	_, err := s.sdb.NewInsert(&models).
		OnConflict("(group_id, permission_id, target_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("custos: create group grants: %w", err)
	}
	return nil
}

func (s *Store) ListGroupGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.GroupGrant, error) {
	var models []groupGrantModel
	q := s.sdb.NewSelect(&models).OrderExpr("id ASC")
	for _, c := range groupGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
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
	q := s.sdb.NewSelect((*groupGrantModel)(nil))
	for _, c := range groupGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: count group grants: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteGroupGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	if filter.Empty() {
		return 0, grant.ErrEmptyFilter
	}
	q := s.sdb.NewDelete((*groupGrantModel)(nil))
	for _, c := range groupGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("custos: delete group grants: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("custos: delete group grants rows: %w", err)
	}
	return n, nil
}

func (s *Store) DistinctGroupGrantKeys(ctx context.Context, filter *grant.ListFilter) ([]string, error) {
	var models []groupGrantModel
	q := s.sdb.NewSelect(&models).OrderExpr("target_key ASC")
	for _, c := range groupGrantClauses(filter) {
		q = q.Where(c.expr, c.args...)
	}
	if err := q.Scan(ctx); err != nil {
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
	keys := make([]string, 0, len(sorted))
	for _, k := range sorted {
		if len(keys) > 0 && keys[len(keys)-1] == k {
			continue
		}
		keys = append(keys, k)
		if f != nil && f.Limit > 0 && len(keys) >= f.Limit {
			break
		}
	}
	return keys
}
