// Package memory provides an in-memory implementation of the Custos
// composite store. It is intended for testing and development, and
// doubles as the reference implementation of the store contracts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
)

// Compile-time interface checks.
var (
	_ principal.Store  = (*Store)(nil)
	_ permission.Store = (*Store)(nil)
	_ grant.Store      = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Custos entities.
// Secondary lookups are plain scans; this store trades speed for
// being an obviously correct model of the SQL backends.
type Store struct {
	mu sync.RWMutex

	users        map[string]*principal.User
	groups       map[string]*principal.Group
	members      map[string]map[string]struct{} // groupID -> set of userIDs
	userGlobals  map[string]map[string]struct{} // userID -> set of permIDs
	groupGlobals map[string]map[string]struct{} // groupID -> set of permIDs
	permissions  map[string]*permission.Permission
	userGrants   map[string]*grant.UserGrant
	groupGrants  map[string]*grant.GroupGrant
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[string]*principal.User),
		groups:       make(map[string]*principal.Group),
		members:      make(map[string]map[string]struct{}),
		userGlobals:  make(map[string]map[string]struct{}),
		groupGlobals: make(map[string]map[string]struct{}),
		permissions:  make(map[string]*permission.Permission),
		userGrants:   make(map[string]*grant.UserGrant),
		groupGrants:  make(map[string]*grant.GroupGrant),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Principal Store: users
// ──────────────────────────────────────────────────

func (s *Store) CreateUser(_ context.Context, u *principal.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return fmt.Errorf("username %q already exists", u.Username)
		}
	}
	s.users[u.ID.String()] = copyUser(u)
	return nil
}

func (s *Store) GetUser(_ context.Context, userID id.UserID) (*principal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID.String()]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, principal.ErrNotFound)
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*principal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("username %q: %w", username, principal.ErrNotFound)
}

func (s *Store) UpdateUser(_ context.Context, u *principal.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID.String()]; !ok {
		return fmt.Errorf("user %s: %w", u.ID, principal.ErrNotFound)
	}
	s.users[u.ID.String()] = copyUser(u)
	return nil
}

func (s *Store) DeleteUser(_ context.Context, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	uk := userID.String()
	delete(s.users, uk)
	delete(s.userGlobals, uk)
	for _, set := range s.members {
		delete(set, uk)
	}
	for k, g := range s.userGrants {
		if g.UserID.String() == uk {
			delete(s.userGrants, k)
		}
	}
	return nil
}

func (s *Store) ListUsers(_ context.Context, filter *principal.UserListFilter) ([]*principal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*principal.User, 0, len(s.users))
	for _, u := range s.users {
		if filter != nil {
			if len(filter.IDs) > 0 && !containsUserID(filter.IDs, u.ID) {
				continue
			}
			if filter.Username != "" && u.Username != filter.Username {
				continue
			}
			if filter.IsActive != nil && u.IsActive != *filter.IsActive {
				continue
			}
			if filter.IsSuperuser != nil && u.IsSuperuser != *filter.IsSuperuser {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(u.Username), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyUser(u))
	}
	// Stable primary-key order, like the SQL backends.
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	p := pagOpts{}
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountUsers(ctx context.Context, filter *principal.UserListFilter) (int64, error) {
	list, err := s.ListUsers(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

// ──────────────────────────────────────────────────
// Principal Store: groups
// ──────────────────────────────────────────────────

func (s *Store) CreateGroup(_ context.Context, g *principal.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.groups {
		if existing.Name == g.Name {
			return fmt.Errorf("group name %q already exists", g.Name)
		}
	}
	s.groups[g.ID.String()] = copyGroup(g)
	return nil
}

func (s *Store) GetGroup(_ context.Context, groupID id.GroupID) (*principal.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID.String()]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, principal.ErrNotFound)
	}
	return copyGroup(g), nil
}

func (s *Store) GetGroupByName(_ context.Context, name string) (*principal.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Name == name {
			return copyGroup(g), nil
		}
	}
	return nil, fmt.Errorf("group name %q: %w", name, principal.ErrNotFound)
}

func (s *Store) UpdateGroup(_ context.Context, g *principal.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID.String()]; !ok {
		return fmt.Errorf("group %s: %w", g.ID, principal.ErrNotFound)
	}
	s.groups[g.ID.String()] = copyGroup(g)
	return nil
}

func (s *Store) DeleteGroup(_ context.Context, groupID id.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := groupID.String()
	delete(s.groups, gk)
	delete(s.members, gk)
	delete(s.groupGlobals, gk)
	for k, g := range s.groupGrants {
		if g.GroupID.String() == gk {
			delete(s.groupGrants, k)
		}
	}
	return nil
}

func (s *Store) ListGroups(_ context.Context, filter *principal.GroupListFilter) ([]*principal.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*principal.Group, 0, len(s.groups))
	for _, g := range s.groups {
		if filter != nil {
			if len(filter.IDs) > 0 && !containsGroupID(filter.IDs, g.ID) {
				continue
			}
			if filter.Name != "" && g.Name != filter.Name {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(g.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyGroup(g))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	p := pagOpts{}
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountGroups(ctx context.Context, filter *principal.GroupListFilter) (int64, error) {
	list, err := s.ListGroups(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

// ──────────────────────────────────────────────────
// Principal Store: membership
// ──────────────────────────────────────────────────

func (s *Store) AddMember(_ context.Context, groupID id.GroupID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := groupID.String()
	if s.members[gk] == nil {
		s.members[gk] = make(map[string]struct{})
	}
	s.members[gk][userID.String()] = struct{}{}
	return nil
}

func (s *Store) RemoveMember(_ context.Context, groupID id.GroupID, userID id.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.members[groupID.String()]; ok {
		delete(set, userID.String())
	}
	return nil
}

func (s *Store) ListGroupsForUser(_ context.Context, userID id.UserID) ([]id.GroupID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uk := userID.String()
	var result []id.GroupID
	for gk, set := range s.members {
		if _, ok := set[uk]; ok {
			parsed, err := id.ParseGroupID(gk)
			if err == nil {
				result = append(result, parsed)
			}
		}
	}
	return result, nil
}

func (s *Store) ListGroupMembers(_ context.Context, groupID id.GroupID) ([]id.UserID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.members[groupID.String()]
	if !ok {
		return nil, nil
	}
	result := make([]id.UserID, 0, len(set))
	for uk := range set {
		parsed, err := id.ParseUserID(uk)
		if err == nil {
			result = append(result, parsed)
		}
	}
	return result, nil
}

func (s *Store) IsMember(_ context.Context, groupID id.GroupID, userID id.UserID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.members[groupID.String()]
	if !ok {
		return false, nil
	}
	_, ok = set[userID.String()]
	return ok, nil
}

// ──────────────────────────────────────────────────
// Principal Store: global permission relations
// ──────────────────────────────────────────────────

func (s *Store) GrantGlobalToUser(_ context.Context, userID id.UserID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	uk := userID.String()
	if s.userGlobals[uk] == nil {
		s.userGlobals[uk] = make(map[string]struct{})
	}
	s.userGlobals[uk][permID.String()] = struct{}{}
	return nil
}

func (s *Store) RevokeGlobalFromUser(_ context.Context, userID id.UserID, permID id.PermissionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.userGlobals[userID.String()]
	if !ok {
		return false, nil
	}
	if _, held := set[permID.String()]; !held {
		return false, nil
	}
	delete(set, permID.String())
	return true, nil
}

func (s *Store) ListGlobalForUser(_ context.Context, userID id.UserID) ([]id.PermissionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.userGlobals[userID.String()]
	if !ok {
		return nil, nil
	}
	result := make([]id.PermissionID, 0, len(set))
	for pk := range set {
		parsed, err := id.ParsePermissionID(pk)
		if err == nil {
			result = append(result, parsed)
		}
	}
	return result, nil
}

func (s *Store) GrantGlobalToGroup(_ context.Context, groupID id.GroupID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	gk := groupID.String()
	if s.groupGlobals[gk] == nil {
		s.groupGlobals[gk] = make(map[string]struct{})
	}
	s.groupGlobals[gk][permID.String()] = struct{}{}
	return nil
}

func (s *Store) RevokeGlobalFromGroup(_ context.Context, groupID id.GroupID, permID id.PermissionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.groupGlobals[groupID.String()]
	if !ok {
		return false, nil
	}
	if _, held := set[permID.String()]; !held {
		return false, nil
	}
	delete(set, permID.String())
	return true, nil
}

func (s *Store) ListGlobalForGroup(_ context.Context, groupID id.GroupID) ([]id.PermissionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.groupGlobals[groupID.String()]
	if !ok {
		return nil, nil
	}
	result := make([]id.PermissionID, 0, len(set))
	for pk := range set {
		parsed, err := id.ParsePermissionID(pk)
		if err == nil {
			result = append(result, parsed)
		}
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Permission Store
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Kind == p.Kind && existing.Codename == p.Codename {
			return fmt.Errorf("permission %q already exists", p.Code())
		}
	}
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

func (s *Store) GetPermission(_ context.Context, permID id.PermissionID) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[permID.String()]
	if !ok {
		return nil, fmt.Errorf("permission %s: %w", permID, permission.ErrNotFound)
	}
	return copyPermission(p), nil
}

func (s *Store) GetPermissionByCode(_ context.Context, kind, codename string) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.Kind == kind && p.Codename == codename {
			return copyPermission(p), nil
		}
	}
	return nil, fmt.Errorf("permission %s.%s: %w", kind, codename, permission.ErrNotFound)
}

func (s *Store) GetPermissionsByIDs(_ context.Context, permIDs []id.PermissionID) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permission.Permission, 0, len(permIDs))
	for _, pid := range permIDs {
		if p, ok := s.permissions[pid.String()]; ok {
			result = append(result, copyPermission(p))
		}
	}
	return result, nil
}

func (s *Store) UpdatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[p.ID.String()]; !ok {
		return fmt.Errorf("permission %s: %w", p.ID, permission.ErrNotFound)
	}
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

func (s *Store) DeletePermission(_ context.Context, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pk := permID.String()
	delete(s.permissions, pk)
	// Grants and global relations reference the permission; mirror the
	// SQL backends' ON DELETE CASCADE.
	for k, g := range s.userGrants {
		if g.PermissionID.String() == pk {
			delete(s.userGrants, k)
		}
	}
	for k, g := range s.groupGrants {
		if g.PermissionID.String() == pk {
			delete(s.groupGrants, k)
		}
	}
	for _, set := range s.userGlobals {
		delete(set, pk)
	}
	for _, set := range s.groupGlobals {
		delete(set, pk)
	}
	return nil
}

func (s *Store) ListPermissions(_ context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*permission.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if filter != nil {
			if filter.Kind != "" && p.Kind != filter.Kind {
				continue
			}
			if filter.Codename != "" && p.Codename != filter.Codename {
				continue
			}
			if len(filter.Codenames) > 0 && !containsString(filter.Codenames, p.Codename) {
				continue
			}
			if len(filter.IDs) > 0 && !containsPermID(filter.IDs, p.ID) {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(p.Codename), strings.ToLower(filter.Search)) &&
				!strings.Contains(strings.ToLower(p.Label), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyPermission(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	p := pagOpts{}
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	list, err := s.ListPermissions(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) EnsurePermission(_ context.Context, p *permission.Permission) (*permission.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Kind == p.Kind && existing.Codename == p.Codename {
			return copyPermission(existing), nil
		}
	}
	c := copyPermission(p)
	if c.ID.IsNil() {
		c.ID = id.NewPermissionID()
	}
	s.permissions[c.ID.String()] = c
	return copyPermission(c), nil
}

// ──────────────────────────────────────────────────
// Grant Store: user grants
// ──────────────────────────────────────────────────

func (s *Store) CreateUserGrant(_ context.Context, g *grant.UserGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userGrantExistsLocked(g) {
		return nil
	}
	s.userGrants[g.ID.String()] = copyUserGrant(g)
	return nil
}

func (s *Store) CreateUserGrants(_ context.Context, grants []*grant.UserGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range grants {
		if s.userGrantExistsLocked(g) {
			continue
		}
		s.userGrants[g.ID.String()] = copyUserGrant(g)
	}
	return nil
}

func (s *Store) ListUserGrants(_ context.Context, filter *grant.ListFilter) ([]*grant.UserGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*grant.UserGrant
	for _, g := range s.userGrants {
		if matchUserGrant(filter, g) {
			result = append(result, copyUserGrant(g))
		}
	}
	// Stable primary-key order, like the SQL backends.
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	p := pagOpts{}
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountUserGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	list, err := s.ListUserGrants(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeleteUserGrants(_ context.Context, filter *grant.ListFilter) (int64, error) {
	if filter.Empty() {
		return 0, grant.ErrEmptyFilter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, g := range s.userGrants {
		if matchUserGrant(filter, g) {
			delete(s.userGrants, k)
			count++
		}
	}
	return count, nil
}

func (s *Store) DistinctUserGrantKeys(_ context.Context, filter *grant.ListFilter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, g := range s.userGrants {
		if matchUserGrant(filter, g) {
			seen[g.TargetKey] = struct{}{}
		}
	}
	return sortKeys(seen, filter), nil
}

// ──────────────────────────────────────────────────
// Grant Store: group grants
// ──────────────────────────────────────────────────

func (s *Store) CreateGroupGrant(_ context.Context, g *grant.GroupGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupGrantExistsLocked(g) {
		return nil
	}
	s.groupGrants[g.ID.String()] = copyGroupGrant(g)
	return nil
}

func (s *Store) CreateGroupGrants(_ context.Context, grants []*grant.GroupGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range grants {
		if s.groupGrantExistsLocked(g) {
			continue
		}
		s.groupGrants[g.ID.String()] = copyGroupGrant(g)
	}
	return nil
}

func (s *Store) ListGroupGrants(_ context.Context, filter *grant.ListFilter) ([]*grant.GroupGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*grant.GroupGrant
	for _, g := range s.groupGrants {
		if matchGroupGrant(filter, g) {
			result = append(result, copyGroupGrant(g))
		}
	}
	// Stable primary-key order, like the SQL backends.
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	p := pagOpts{}
	if filter != nil {
		p = pagOpts{limit: filter.Limit, offset: filter.Offset}
	}
	return applyPagination(result, p), nil
}

func (s *Store) CountGroupGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	list, err := s.ListGroupGrants(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeleteGroupGrants(_ context.Context, filter *grant.ListFilter) (int64, error) {
	if filter.Empty() {
		return 0, grant.ErrEmptyFilter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for k, g := range s.groupGrants {
		if matchGroupGrant(filter, g) {
			delete(s.groupGrants, k)
			count++
		}
	}
	return count, nil
}

func (s *Store) DistinctGroupGrantKeys(_ context.Context, filter *grant.ListFilter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, g := range s.groupGrants {
		if matchGroupGrant(filter, g) {
			seen[g.TargetKey] = struct{}{}
		}
	}
	return sortKeys(seen, filter), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Store) userGrantExistsLocked(g *grant.UserGrant) bool {
	for _, existing := range s.userGrants {
		if existing.UserID.String() == g.UserID.String() &&
			existing.PermissionID.String() == g.PermissionID.String() &&
			existing.TargetKey == g.TargetKey {
			return true
		}
	}
	return false
}

func (s *Store) groupGrantExistsLocked(g *grant.GroupGrant) bool {
	for _, existing := range s.groupGrants {
		if existing.GroupID.String() == g.GroupID.String() &&
			existing.PermissionID.String() == g.PermissionID.String() &&
			existing.TargetKey == g.TargetKey {
			return true
		}
	}
	return false
}

func matchUserGrant(f *grant.ListFilter, g *grant.UserGrant) bool {
	if f == nil {
		return true
	}
	if !f.UserID.IsNil() && g.UserID.String() != f.UserID.String() {
		return false
	}
	if len(f.UserIDs) > 0 && !containsUserID(f.UserIDs, g.UserID) {
		return false
	}
	if !f.PermissionID.IsNil() && g.PermissionID.String() != f.PermissionID.String() {
		return false
	}
	if len(f.PermissionIDs) > 0 && !containsPermID(f.PermissionIDs, g.PermissionID) {
		return false
	}
	if f.TargetKind != "" && g.TargetKind != f.TargetKind {
		return false
	}
	if f.TargetKey != "" && g.TargetKey != f.TargetKey {
		return false
	}
	if len(f.TargetKeys) > 0 && !containsString(f.TargetKeys, g.TargetKey) {
		return false
	}
	if len(f.IDs) > 0 && !containsAnyID(f.IDs, g.ID.String()) {
		return false
	}
	if f.AfterKey != "" && g.TargetKey <= f.AfterKey {
		return false
	}
	return true
}

func matchGroupGrant(f *grant.ListFilter, g *grant.GroupGrant) bool {
	if f == nil {
		return true
	}
	if !f.GroupID.IsNil() && g.GroupID.String() != f.GroupID.String() {
		return false
	}
	if len(f.GroupIDs) > 0 && !containsGroupID(f.GroupIDs, g.GroupID) {
		return false
	}
	if !f.PermissionID.IsNil() && g.PermissionID.String() != f.PermissionID.String() {
		return false
	}
	if len(f.PermissionIDs) > 0 && !containsPermID(f.PermissionIDs, g.PermissionID) {
		return false
	}
	if f.TargetKind != "" && g.TargetKind != f.TargetKind {
		return false
	}
	if f.TargetKey != "" && g.TargetKey != f.TargetKey {
		return false
	}
	if len(f.TargetKeys) > 0 && !containsString(f.TargetKeys, g.TargetKey) {
		return false
	}
	if len(f.IDs) > 0 && !containsAnyID(f.IDs, g.ID.String()) {
		return false
	}
	if f.AfterKey != "" && g.TargetKey <= f.AfterKey {
		return false
	}
	return true
}

func sortKeys(seen map[string]struct{}, f *grant.ListFilter) []string {
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if f != nil && f.Limit > 0 && f.Limit < len(keys) {
		keys = keys[:f.Limit]
	}
	return keys
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsUserID(haystack []id.UserID, needle id.UserID) bool {
	for _, uid := range haystack {
		if uid.String() == needle.String() {
			return true
		}
	}
	return false
}

func containsPermID(haystack []id.PermissionID, needle id.PermissionID) bool {
	for _, pid := range haystack {
		if pid.String() == needle.String() {
			return true
		}
	}
	return false
}

func containsGroupID(haystack []id.GroupID, needle id.GroupID) bool {
	for _, gid := range haystack {
		if gid.String() == needle.String() {
			return true
		}
	}
	return false
}

func containsAnyID(haystack []id.AnyID, needle string) bool {
	for _, aid := range haystack {
		if aid.String() == needle {
			return true
		}
	}
	return false
}

func copyUser(u *principal.User) *principal.User {
	c := *u
	return &c
}

func copyGroup(g *principal.Group) *principal.Group {
	c := *g
	return &c
}

func copyPermission(p *permission.Permission) *permission.Permission {
	c := *p
	return &c
}

func copyUserGrant(g *grant.UserGrant) *grant.UserGrant {
	c := *g
	return &c
}

func copyGroupGrant(g *grant.GroupGrant) *grant.GroupGrant {
	c := *g
	return &c
}

type pagOpts struct{ limit, offset int }

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset > 0 && p.offset >= len(items) {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}
