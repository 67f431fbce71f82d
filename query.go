package custos

import (
	"context"
	"fmt"
	"sort"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
)

// QueryOption adjusts the object and principal queries.
type QueryOption func(*queryOpts)

type queryOpts struct {
	anyPerm       bool
	withoutGroups bool
	groupUsers    bool
	superusers    bool
}

func buildQueryOpts(opts []QueryOption) queryOpts {
	o := queryOpts{groupUsers: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithAnyPerm accepts objects holding any one of the requested codes.
// The default requires all of them.
func WithAnyPerm() QueryOption { return func(o *queryOpts) { o.anyPerm = true } }

// WithoutGroups limits ObjectsForUser to the user's own grant rows,
// ignoring group inheritance.
func WithoutGroups() QueryOption { return func(o *queryOpts) { o.withoutGroups = true } }

// WithoutGroupUsers limits UsersWithPerms to users holding their own
// grant rows, excluding members of granted groups.
func WithoutGroupUsers() QueryOption { return func(o *queryOpts) { o.groupUsers = false } }

// WithSuperusers adds every superuser to UsersWithPerms results.
func WithSuperusers() QueryOption { return func(o *queryOpts) { o.superusers = true } }

// ─────────────────────────────────────────────────────────────────────────────
// Objects for a principal
// ─────────────────────────────────────────────────────────────────────────────

// ObjectsForUser returns the keys of every object of the kind on which
// the user holds the requested permission codes, sorted. The answer
// comes from grant rows alone; object tables are never scanned.
//
// By default a key must cover all codes; WithAnyPerm relaxes that to any
// one. Inactive users see nothing. Superusers see the kind's full key
// set, which needs a registration with a Source (ErrKindNotRegistered
// otherwise).
func (e *Engine) ObjectsForUser(ctx context.Context, u *principal.User, codes []string, kind string, opts ...QueryOption) ([]string, error) {
	if u == nil {
		return nil, ErrNotUserNorGroup
	}
	o := buildQueryOpts(opts)
	codenames, err := codenamesFor(codes, kind)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return []string{}, nil
	}
	if u.IsSuperuser {
		reg, ok := e.registry.Lookup(kind)
		if !ok || reg.Source == nil {
			return nil, fmt.Errorf("%w: %q has no source to enumerate", ErrKindNotRegistered, kind)
		}
		keys, err := reg.Source.Keys(ctx)
		if err != nil {
			return nil, err
		}
		sort.Strings(keys)
		return keys, nil
	}
	if len(codenames) == 0 {
		return []string{}, nil
	}

	permIDs, byID, err := e.permIndex(ctx, kind, codenames)
	if err != nil {
		return nil, err
	}
	if len(permIDs) == 0 {
		return []string{}, nil
	}
	grants := e.registry.GrantsFor(kind, e.store)

	held := make(map[string]map[string]struct{})
	rows, err := grants.ListUserGrants(ctx, &grant.ListFilter{
		UserID:        u.ID,
		PermissionIDs: permIDs,
		TargetKind:    kind,
	})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		markHeld(held, row.TargetKey, byID[row.PermissionID.String()])
	}
	if !o.withoutGroups {
		gids, err := e.store.ListGroupsForUser(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		if len(gids) > 0 {
			grows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{
				GroupIDs:      gids,
				PermissionIDs: permIDs,
				TargetKind:    kind,
			})
			if err != nil {
				return nil, err
			}
			for _, row := range grows {
				markHeld(held, row.TargetKey, byID[row.PermissionID.String()])
			}
		}
	}
	return coveredKeys(held, distinctCount(codenames), o.anyPerm), nil
}

// ObjectsForGroup is ObjectsForUser for a group principal: group grant
// rows only, no superuser or activity handling.
func (e *Engine) ObjectsForGroup(ctx context.Context, g *principal.Group, codes []string, kind string, opts ...QueryOption) ([]string, error) {
	if g == nil {
		return nil, ErrNotUserNorGroup
	}
	o := buildQueryOpts(opts)
	codenames, err := codenamesFor(codes, kind)
	if err != nil {
		return nil, err
	}
	if len(codenames) == 0 {
		return []string{}, nil
	}
	permIDs, byID, err := e.permIndex(ctx, kind, codenames)
	if err != nil {
		return nil, err
	}
	if len(permIDs) == 0 {
		return []string{}, nil
	}
	grants := e.registry.GrantsFor(kind, e.store)
	rows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{
		GroupID:       g.ID,
		PermissionIDs: permIDs,
		TargetKind:    kind,
	})
	if err != nil {
		return nil, err
	}
	held := make(map[string]map[string]struct{})
	for _, row := range rows {
		markHeld(held, row.TargetKey, byID[row.PermissionID.String()])
	}
	return coveredKeys(held, distinctCount(codenames), o.anyPerm), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Principals for an object
// ─────────────────────────────────────────────────────────────────────────────

// UsersWithPerms returns every user holding some permission on the
// object: users with their own grant rows plus, by default, members of
// groups holding grants (WithoutGroupUsers excludes them). Superusers
// appear only with WithSuperusers.
func (e *Engine) UsersWithPerms(ctx context.Context, obj Object, opts ...QueryOption) ([]*principal.User, error) {
	o := buildQueryOpts(opts)
	if obj == nil || obj.ObjectKey() == "" {
		return []*principal.User{}, nil
	}
	kind, key := obj.ObjectKind(), obj.ObjectKey()
	grants := e.registry.GrantsFor(kind, e.store)

	seen := make(map[string]struct{})
	var uids []id.UserID
	add := func(uid id.UserID) {
		k := uid.String()
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		uids = append(uids, uid)
	}

	rows, err := grants.ListUserGrants(ctx, &grant.ListFilter{TargetKind: kind, TargetKey: key})
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		add(row.UserID)
	}
	if o.groupUsers {
		grows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{TargetKind: kind, TargetKey: key})
		if err != nil {
			return nil, err
		}
		groupSeen := make(map[string]struct{})
		for _, row := range grows {
			gk := row.GroupID.String()
			if _, ok := groupSeen[gk]; ok {
				continue
			}
			groupSeen[gk] = struct{}{}
			members, err := e.store.ListGroupMembers(ctx, row.GroupID)
			if err != nil {
				return nil, err
			}
			for _, uid := range members {
				add(uid)
			}
		}
	}

	var users []*principal.User
	if len(uids) > 0 {
		users, err = e.store.ListUsers(ctx, &principal.UserListFilter{IDs: uids})
		if err != nil {
			return nil, err
		}
	}
	if o.superusers {
		super := true
		supers, err := e.store.ListUsers(ctx, &principal.UserListFilter{IsSuperuser: &super})
		if err != nil {
			return nil, err
		}
		for _, su := range supers {
			if _, ok := seen[su.ID.String()]; ok {
				continue
			}
			seen[su.ID.String()] = struct{}{}
			users = append(users, su)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID.String() < users[j].ID.String() })
	return users, nil
}

// UserPermsOn maps each user returned by UsersWithPerms to the effective
// codename set they hold on the object, group inheritance included.
func (e *Engine) UserPermsOn(ctx context.Context, obj Object) (map[id.UserID][]string, error) {
	users, err := e.UsersWithPerms(ctx, obj)
	if err != nil {
		return nil, err
	}
	out := make(map[id.UserID][]string, len(users))
	for _, u := range users {
		perms, err := e.Perms(ctx, u, obj)
		if err != nil {
			return nil, err
		}
		out[u.ID] = perms
	}
	return out, nil
}

// GroupsWithPerms returns every group holding some permission on the
// object.
func (e *Engine) GroupsWithPerms(ctx context.Context, obj Object) ([]*principal.Group, error) {
	if obj == nil || obj.ObjectKey() == "" {
		return []*principal.Group{}, nil
	}
	kind, key := obj.ObjectKind(), obj.ObjectKey()
	grants := e.registry.GrantsFor(kind, e.store)
	rows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{TargetKind: kind, TargetKey: key})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var gids []id.GroupID
	for _, row := range rows {
		k := row.GroupID.String()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		gids = append(gids, row.GroupID)
	}
	if len(gids) == 0 {
		return []*principal.Group{}, nil
	}
	groups, err := e.store.ListGroups(ctx, &principal.GroupListFilter{IDs: gids})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupPermsOn maps each group holding grants on the object to its
// codename set there.
func (e *Engine) GroupPermsOn(ctx context.Context, obj Object) (map[id.GroupID][]string, error) {
	if obj == nil || obj.ObjectKey() == "" {
		return map[id.GroupID][]string{}, nil
	}
	kind, key := obj.ObjectKind(), obj.ObjectKey()
	grants := e.registry.GrantsFor(kind, e.store)
	rows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{TargetKind: kind, TargetKey: key})
	if err != nil {
		return nil, err
	}
	perGroup := make(map[id.GroupID][]id.PermissionID)
	var all []id.PermissionID
	for _, row := range rows {
		perGroup[row.GroupID] = append(perGroup[row.GroupID], row.PermissionID)
		all = append(all, row.PermissionID)
	}
	byID, err := e.codenameIndex(ctx, all)
	if err != nil {
		return nil, err
	}
	out := make(map[id.GroupID][]string, len(perGroup))
	for gid, permIDs := range perGroup {
		out[gid] = sortedCodenames(permIDs, byID)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared helpers
// ─────────────────────────────────────────────────────────────────────────────

// permIndex resolves codenames within a kind to permission IDs and an
// ID-to-codename index. Codenames with no definition are dropped, which
// makes them unsatisfiable for all-codes cover.
func (e *Engine) permIndex(ctx context.Context, kind string, codenames []string) ([]id.PermissionID, map[string]string, error) {
	perms, err := e.store.ListPermissions(ctx, &permission.ListFilter{Kind: kind, Codenames: codenames})
	if err != nil {
		return nil, nil, err
	}
	permIDs := make([]id.PermissionID, 0, len(perms))
	byID := make(map[string]string, len(perms))
	for _, p := range perms {
		permIDs = append(permIDs, p.ID)
		byID[p.ID.String()] = p.Codename
	}
	return permIDs, byID, nil
}

func markHeld(held map[string]map[string]struct{}, key, codename string) {
	if codename == "" {
		return
	}
	set, ok := held[key]
	if !ok {
		set = make(map[string]struct{})
		held[key] = set
	}
	set[codename] = struct{}{}
}

// coveredKeys selects keys whose codename sets satisfy the cover rule
// and returns them sorted.
func coveredKeys(held map[string]map[string]struct{}, required int, anyPerm bool) []string {
	keys := make([]string, 0, len(held))
	for key, set := range held {
		if anyPerm || len(set) >= required {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
