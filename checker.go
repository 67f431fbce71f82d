package custos

import (
	"context"
	"sort"
	"sync"

	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/principal"
	"github.com/xraph/custos/target"
)

// Checker answers permission questions for one principal and memoizes
// per-object results for its own lifetime. A memo hit never requeries,
// so a checker should live no longer than the request it serves; create
// one with Engine.CheckerFor or Engine.CheckerForGroup.
//
// Checker is safe for concurrent use.
type Checker struct {
	engine *Engine
	user   *principal.User
	group  *principal.Group

	mu           sync.Mutex
	memo         map[target.Ref][]string
	groupIDs     []id.GroupID
	groupsLoaded bool
	autoloaded   bool
}

// CheckerFor returns a checker for a user principal.
func (e *Engine) CheckerFor(u *principal.User) *Checker {
	return &Checker{engine: e, user: u, memo: make(map[target.Ref][]string)}
}

// CheckerForGroup returns a checker for a group principal. Group
// checkers consult group grants only.
func (e *Engine) CheckerForGroup(g *principal.Group) *Checker {
	return &Checker{engine: e, group: g, memo: make(map[target.Ref][]string)}
}

// HasPerm reports whether the principal holds the permission on the
// object. A kind qualifier on the code must match the object's kind.
// Inactive users hold nothing, even superusers; active superusers hold
// everything without touching the store.
func (c *Checker) HasPerm(ctx context.Context, code string, obj Object) (bool, error) {
	if obj == nil {
		return false, nil
	}
	codename, err := codenameFor(code, obj.ObjectKind())
	if err != nil {
		return false, err
	}
	if c.user != nil {
		if !c.user.IsActive {
			return false, nil
		}
		if c.user.IsSuperuser {
			return true, nil
		}
	}
	perms, err := c.Perms(ctx, obj)
	if err != nil {
		return false, err
	}
	for _, have := range perms {
		if have == codename {
			return true, nil
		}
	}
	return false, nil
}

// Perms returns the sorted codename set the principal holds on the
// object. Objects without a key yield an empty set, as do inactive
// users; neither outcome is memoized. Superusers get every codename
// defined for the object's kind.
func (c *Checker) Perms(ctx context.Context, obj Object) ([]string, error) {
	if c.user == nil && c.group == nil {
		return nil, ErrNotUserNorGroup
	}
	if obj == nil || obj.ObjectKey() == "" {
		return []string{}, nil
	}
	if c.user != nil && !c.user.IsActive {
		return []string{}, nil
	}
	ref := target.Ref{Kind: obj.ObjectKind(), Key: obj.ObjectKey()}

	c.mu.Lock()
	defer c.mu.Unlock()
	if perms, ok := c.memo[ref]; ok {
		return perms, nil
	}
	perms, err := c.loadLocked(ctx, ref)
	if err != nil {
		return nil, err
	}
	c.memo[ref] = perms
	return perms, nil
}

// Prefetch resolves grants for a batch of objects up front and seeds the
// memo, including empty sets, so later HasPerm and Perms calls on those
// objects hit memory. Objects are grouped by kind; each kind costs a
// bounded number of queries regardless of batch size.
func (c *Checker) Prefetch(ctx context.Context, objs []Object) error {
	if c.user == nil && c.group == nil {
		return ErrNotUserNorGroup
	}
	byKind := make(map[string][]string)
	kinds := make([]string, 0, 1)
	for _, obj := range objs {
		if obj == nil || obj.ObjectKey() == "" {
			continue
		}
		kind := obj.ObjectKind()
		if _, ok := byKind[kind]; !ok {
			kinds = append(kinds, kind)
		}
		byKind[kind] = append(byKind[kind], obj.ObjectKey())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != nil && !c.user.IsActive {
		for _, kind := range kinds {
			for _, key := range byKind[kind] {
				c.memo[target.Ref{Kind: kind, Key: key}] = []string{}
			}
		}
		return nil
	}
	if c.user != nil && c.user.IsSuperuser {
		for _, kind := range kinds {
			codenames, err := c.engine.kindCodenames(ctx, kind)
			if err != nil {
				return err
			}
			for _, key := range byKind[kind] {
				c.memo[target.Ref{Kind: kind, Key: key}] = codenames
			}
		}
		return nil
	}
	for _, kind := range kinds {
		if err := c.prefetchKindLocked(ctx, kind, byKind[kind]); err != nil {
			return err
		}
	}
	return nil
}

func (c *Checker) prefetchKindLocked(ctx context.Context, kind string, keys []string) error {
	grants := c.engine.registry.GrantsFor(kind, c.engine.store)
	perKey := make(map[string][]id.PermissionID, len(keys))
	var all []id.PermissionID

	if c.user != nil {
		rows, err := grants.ListUserGrants(ctx, &grant.ListFilter{
			UserID:     c.user.ID,
			TargetKind: kind,
			TargetKeys: keys,
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			perKey[row.TargetKey] = append(perKey[row.TargetKey], row.PermissionID)
			all = append(all, row.PermissionID)
		}
		gids, err := c.groupIDsLocked(ctx)
		if err != nil {
			return err
		}
		if len(gids) > 0 {
			grows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{
				GroupIDs:   gids,
				TargetKind: kind,
				TargetKeys: keys,
			})
			if err != nil {
				return err
			}
			for _, row := range grows {
				perKey[row.TargetKey] = append(perKey[row.TargetKey], row.PermissionID)
				all = append(all, row.PermissionID)
			}
		}
	} else {
		rows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{
			GroupID:    c.group.ID,
			TargetKind: kind,
			TargetKeys: keys,
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			perKey[row.TargetKey] = append(perKey[row.TargetKey], row.PermissionID)
			all = append(all, row.PermissionID)
		}
	}

	byID, err := c.engine.codenameIndex(ctx, all)
	if err != nil {
		return err
	}
	for _, key := range keys {
		c.memo[target.Ref{Kind: kind, Key: key}] = sortedCodenames(perKey[key], byID)
	}
	return nil
}

// loadLocked resolves one object's codename set from the store. Callers
// hold c.mu.
func (c *Checker) loadLocked(ctx context.Context, ref target.Ref) ([]string, error) {
	if c.user != nil && c.user.IsSuperuser {
		return c.engine.kindCodenames(ctx, ref.Kind)
	}
	if c.engine.config.AutoPrefetch {
		if !c.autoloaded {
			if err := c.autoloadLocked(ctx); err != nil {
				return nil, err
			}
			c.autoloaded = true
		}
		if perms, ok := c.memo[ref]; ok {
			return perms, nil
		}
		return []string{}, nil
	}

	grants := c.engine.registry.GrantsFor(ref.Kind, c.engine.store)
	var permIDs []id.PermissionID
	if c.user != nil {
		rows, err := grants.ListUserGrants(ctx, &grant.ListFilter{
			UserID:     c.user.ID,
			TargetKind: ref.Kind,
			TargetKey:  ref.Key,
		})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			permIDs = append(permIDs, row.PermissionID)
		}
		gids, err := c.groupIDsLocked(ctx)
		if err != nil {
			return nil, err
		}
		if len(gids) > 0 {
			grows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{
				GroupIDs:   gids,
				TargetKind: ref.Kind,
				TargetKey:  ref.Key,
			})
			if err != nil {
				return nil, err
			}
			for _, row := range grows {
				permIDs = append(permIDs, row.PermissionID)
			}
		}
	} else {
		rows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{
			GroupID:    c.group.ID,
			TargetKind: ref.Kind,
			TargetKey:  ref.Key,
		})
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			permIDs = append(permIDs, row.PermissionID)
		}
	}

	byID, err := c.engine.codenameIndex(ctx, permIDs)
	if err != nil {
		return nil, err
	}
	return sortedCodenames(permIDs, byID), nil
}

// autoloadLocked pulls every grant the principal holds from the shared
// tables and seeds the memo by object. Kinds routed to direct bindings
// are not covered; their checks resolve to empty on a memo miss.
func (c *Checker) autoloadLocked(ctx context.Context) error {
	perRef := make(map[target.Ref][]id.PermissionID)
	var all []id.PermissionID

	if c.user != nil {
		rows, err := c.engine.store.ListUserGrants(ctx, &grant.ListFilter{UserID: c.user.ID})
		if err != nil {
			return err
		}
		for _, row := range rows {
			ref := target.Ref{Kind: row.TargetKind, Key: row.TargetKey}
			perRef[ref] = append(perRef[ref], row.PermissionID)
			all = append(all, row.PermissionID)
		}
		gids, err := c.groupIDsLocked(ctx)
		if err != nil {
			return err
		}
		if len(gids) > 0 {
			grows, err := c.engine.store.ListGroupGrants(ctx, &grant.ListFilter{GroupIDs: gids})
			if err != nil {
				return err
			}
			for _, row := range grows {
				ref := target.Ref{Kind: row.TargetKind, Key: row.TargetKey}
				perRef[ref] = append(perRef[ref], row.PermissionID)
				all = append(all, row.PermissionID)
			}
		}
	} else {
		rows, err := c.engine.store.ListGroupGrants(ctx, &grant.ListFilter{GroupID: c.group.ID})
		if err != nil {
			return err
		}
		for _, row := range rows {
			ref := target.Ref{Kind: row.TargetKind, Key: row.TargetKey}
			perRef[ref] = append(perRef[ref], row.PermissionID)
			all = append(all, row.PermissionID)
		}
	}

	byID, err := c.engine.codenameIndex(ctx, all)
	if err != nil {
		return err
	}
	for ref, permIDs := range perRef {
		c.memo[ref] = sortedCodenames(permIDs, byID)
	}
	return nil
}

// groupIDsLocked resolves the user's group memberships once per checker.
func (c *Checker) groupIDsLocked(ctx context.Context) ([]id.GroupID, error) {
	if c.groupsLoaded {
		return c.groupIDs, nil
	}
	gids, err := c.engine.store.ListGroupsForUser(ctx, c.user.ID)
	if err != nil {
		return nil, err
	}
	c.groupIDs = gids
	c.groupsLoaded = true
	return c.groupIDs, nil
}

// kindCodenames returns every codename defined for a kind, sorted.
func (e *Engine) kindCodenames(ctx context.Context, kind string) ([]string, error) {
	perms, err := e.store.ListPermissions(ctx, &permission.ListFilter{Kind: kind})
	if err != nil {
		return nil, err
	}
	codenames := make([]string, 0, len(perms))
	for _, p := range perms {
		codenames = append(codenames, p.Codename)
	}
	sort.Strings(codenames)
	return codenames, nil
}

// codenameIndex maps permission IDs to codenames in one lookup.
func (e *Engine) codenameIndex(ctx context.Context, permIDs []id.PermissionID) (map[string]string, error) {
	if len(permIDs) == 0 {
		return map[string]string{}, nil
	}
	perms, err := e.store.GetPermissionsByIDs(ctx, dedupePermIDs(permIDs))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]string, len(perms))
	for _, p := range perms {
		byID[p.ID.String()] = p.Codename
	}
	return byID, nil
}

func sortedCodenames(permIDs []id.PermissionID, byID map[string]string) []string {
	seen := make(map[string]struct{}, len(permIDs))
	out := make([]string, 0, len(permIDs))
	for _, pid := range permIDs {
		codename, ok := byID[pid.String()]
		if !ok {
			continue
		}
		if _, dup := seen[codename]; dup {
			continue
		}
		seen[codename] = struct{}{}
		out = append(out, codename)
	}
	sort.Strings(out)
	return out
}
