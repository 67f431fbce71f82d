package custos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/xraph/custos/cache"
	"github.com/xraph/custos/grant"
	"github.com/xraph/custos/id"
	"github.com/xraph/custos/permission"
	"github.com/xraph/custos/plugin"
	"github.com/xraph/custos/principal"
	"github.com/xraph/custos/store"
	"github.com/xraph/custos/target"
)

// Engine is the central grant coordinator. It owns the composite store,
// the kind registry, and the plugin registry, and exposes assignment,
// checking, and query operations.
type Engine struct {
	store    store.Store
	registry *target.Registry
	cache    PrincipalCache
	plugins  *plugin.Registry
	logger   *slog.Logger
	config   Config

	anonMu sync.Mutex
}

// NewEngine creates a new Custos engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("custos: store is required")
	}
	if err := e.config.validate(); err != nil {
		return nil, err
	}
	if e.registry == nil {
		e.registry = target.NewRegistry()
	}
	if e.cache == nil && e.config.AnonymousCacheTTL != 0 {
		e.cache = cache.NewMemory()
	}
	return e, nil
}

// Store returns the underlying composite store.
func (e *Engine) Store() store.Store { return e.store }

// Registry returns the kind registry.
func (e *Engine) Registry() *target.Registry { return e.registry }

// Plugins returns the plugin registry (may be nil).
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop performs graceful shutdown and notifies plugins.
func (e *Engine) Stop(ctx context.Context) error {
	if e.plugins != nil {
		e.plugins.EmitShutdown(ctx)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Kind registration
// ─────────────────────────────────────────────────────────────────────────────

// KindSpec declares an object kind to the engine.
type KindSpec struct {
	// Kind is the unique kind name, e.g. "document".
	Kind string

	// Form selects generic or direct grant references. Zero means generic.
	Form target.Form

	// Source resolves object existence for the orphan sweep and superuser
	// enumeration. Optional.
	Source target.Source

	// Grants is the kind's own grant store, required for direct form.
	Grants grant.Store

	// Codenames are permission codenames ensured at registration, e.g.
	// "view_document". Each gets a definition row if one does not exist.
	Codenames []string
}

// RegisterKind registers an object kind and ensures a permission
// definition for each of its default codenames.
func (e *Engine) RegisterKind(ctx context.Context, spec KindSpec) error {
	err := e.registry.Register(&target.Registration{
		Kind:      spec.Kind,
		Form:      spec.Form,
		Source:    spec.Source,
		Grants:    spec.Grants,
		Codenames: spec.Codenames,
	})
	if err != nil {
		return err
	}
	for _, codename := range spec.Codenames {
		p := &permission.Permission{
			Kind:     spec.Kind,
			Codename: codename,
			Label:    codenameLabel(codename),
		}
		if _, err := e.store.EnsurePermission(ctx, p); err != nil {
			return fmt.Errorf("ensure permission %s.%s: %w", spec.Kind, codename, err)
		}
	}
	return nil
}

// codenameLabel derives a human label from a codename:
// "view_document" becomes "Can view document".
func codenameLabel(codename string) string {
	return "Can " + strings.ReplaceAll(codename, "_", " ")
}

// ─────────────────────────────────────────────────────────────────────────────
// Subjects and objects
// ─────────────────────────────────────────────────────────────────────────────

type resolvedSubject struct {
	users  []*principal.User
	groups []*principal.Group
	plural bool
}

func resolveSubject(s Subject) (resolvedSubject, error) {
	if s.plural {
		for _, u := range s.users {
			if u == nil {
				return resolvedSubject{}, ErrNotUserNorGroup
			}
		}
		for _, g := range s.groups {
			if g == nil {
				return resolvedSubject{}, ErrNotUserNorGroup
			}
		}
		return resolvedSubject{users: s.users, groups: s.groups, plural: true}, nil
	}
	switch {
	case s.user != nil:
		return resolvedSubject{users: []*principal.User{s.user}}, nil
	case s.group != nil:
		return resolvedSubject{groups: []*principal.Group{s.group}}, nil
	default:
		return resolvedSubject{}, ErrNotUserNorGroup
	}
}

// objectRefs validates an object batch: every object persisted, all of
// one kind. Returns the shared kind and the keys in argument order.
func objectRefs(objs []Object) (kind string, keys []string, err error) {
	keys = make([]string, 0, len(objs))
	for i, obj := range objs {
		if obj == nil || obj.ObjectKey() == "" {
			return "", nil, ErrObjectNotPersisted
		}
		if i == 0 {
			kind = obj.ObjectKind()
		} else if obj.ObjectKind() != kind {
			return "", nil, fmt.Errorf("%w: %q and %q", ErrMixedKinds, kind, obj.ObjectKind())
		}
		keys = append(keys, obj.ObjectKey())
	}
	return kind, keys, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Assign / Remove
// ─────────────────────────────────────────────────────────────────────────────

// Assign grants a permission to a subject. With no objects the grant is
// global and the code must be kind-qualified. With objects the code's
// qualifier (if any) must match the objects' kind.
//
// One side may be plural: a subject batch against one object, or one
// subject against several objects. Both plural is rejected with
// ErrAmbiguousBulk. Bulk writes go through a single conflict-ignoring
// statement and do not fire per-grant hooks; use AssignNotify when every
// grant must be observed.
//
// Re-assigning an existing grant is a no-op.
func (e *Engine) Assign(ctx context.Context, code string, subject Subject, objs ...Object) error {
	sub, err := resolveSubject(subject)
	if err != nil {
		return err
	}
	if sub.plural && len(objs) > 1 {
		return ErrAmbiguousBulk
	}
	if len(objs) == 0 {
		return e.assignGlobal(ctx, code, sub)
	}

	kind, keys, err := objectRefs(objs)
	if err != nil {
		return err
	}
	codename, err := codenameFor(code, kind)
	if err != nil {
		return err
	}
	perm, err := e.store.GetPermissionByCode(ctx, kind, codename)
	if err != nil {
		return err
	}
	grants := e.registry.GrantsFor(kind, e.store)

	if !sub.plural && len(objs) == 1 {
		return e.assignOne(ctx, grants, sub, perm.ID, kind, keys[0])
	}

	userRows := make([]*grant.UserGrant, 0, len(sub.users)*len(keys))
	for _, u := range sub.users {
		for _, key := range keys {
			userRows = append(userRows, &grant.UserGrant{
				ID:           id.NewUserGrantID(),
				UserID:       u.ID,
				PermissionID: perm.ID,
				TargetKind:   kind,
				TargetKey:    key,
			})
		}
	}
	if len(userRows) > 0 {
		if err := grants.CreateUserGrants(ctx, userRows); err != nil {
			return err
		}
	}
	groupRows := make([]*grant.GroupGrant, 0, len(sub.groups)*len(keys))
	for _, g := range sub.groups {
		for _, key := range keys {
			groupRows = append(groupRows, &grant.GroupGrant{
				ID:           id.NewGroupGrantID(),
				GroupID:      g.ID,
				PermissionID: perm.ID,
				TargetKind:   kind,
				TargetKey:    key,
			})
		}
	}
	if len(groupRows) > 0 {
		if err := grants.CreateGroupGrants(ctx, groupRows); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) assignOne(ctx context.Context, grants grant.Store, sub resolvedSubject, permID id.PermissionID, kind, key string) error {
	if len(sub.users) == 1 {
		g := &grant.UserGrant{
			ID:           id.NewUserGrantID(),
			UserID:       sub.users[0].ID,
			PermissionID: permID,
			TargetKind:   kind,
			TargetKey:    key,
		}
		if err := grants.CreateUserGrant(ctx, g); err != nil {
			return err
		}
		if e.plugins != nil {
			e.plugins.EmitUserGrantAssigned(ctx, g)
		}
		return nil
	}
	g := &grant.GroupGrant{
		ID:           id.NewGroupGrantID(),
		GroupID:      sub.groups[0].ID,
		PermissionID: permID,
		TargetKind:   kind,
		TargetKey:    key,
	}
	if err := grants.CreateGroupGrant(ctx, g); err != nil {
		return err
	}
	if e.plugins != nil {
		e.plugins.EmitGroupGrantAssigned(ctx, g)
	}
	return nil
}

// AssignNotify is Assign with per-grant hooks on the bulk paths. It
// trades the single bulk statement for row-at-a-time inserts so every
// grant is observed by plugins.
func (e *Engine) AssignNotify(ctx context.Context, code string, subject Subject, objs ...Object) error {
	sub, err := resolveSubject(subject)
	if err != nil {
		return err
	}
	if sub.plural && len(objs) > 1 {
		return ErrAmbiguousBulk
	}
	if len(objs) == 0 {
		return e.assignGlobal(ctx, code, sub)
	}
	// Validate the whole batch up front so a mid-loop failure cannot be
	// a shape error.
	if _, _, err := objectRefs(objs); err != nil {
		return err
	}
	for _, u := range sub.users {
		for _, obj := range objs {
			if err := e.Assign(ctx, code, UserSubject(u), obj); err != nil {
				return err
			}
		}
	}
	for _, g := range sub.groups {
		for _, obj := range objs {
			if err := e.Assign(ctx, code, GroupSubject(g), obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// Remove revokes a permission from a subject and reports how many grant
// rows were deleted. Removing an absent grant is a no-op returning zero.
// The plural rules of Assign apply; bulk removals delete through one
// filtered statement and fire no per-grant hooks.
func (e *Engine) Remove(ctx context.Context, code string, subject Subject, objs ...Object) (int64, error) {
	sub, err := resolveSubject(subject)
	if err != nil {
		return 0, err
	}
	if sub.plural && len(objs) > 1 {
		return 0, ErrAmbiguousBulk
	}
	if len(objs) == 0 {
		return e.removeGlobal(ctx, code, sub)
	}

	kind, keys, err := objectRefs(objs)
	if err != nil {
		return 0, err
	}
	codename, err := codenameFor(code, kind)
	if err != nil {
		return 0, err
	}
	perm, err := e.store.GetPermissionByCode(ctx, kind, codename)
	if err != nil {
		return 0, err
	}
	grants := e.registry.GrantsFor(kind, e.store)
	singular := !sub.plural && len(objs) == 1

	var total int64
	if len(sub.users) > 0 {
		f := &grant.ListFilter{PermissionID: perm.ID, TargetKind: kind}
		if len(sub.users) == 1 {
			f.UserID = sub.users[0].ID
		} else {
			f.UserIDs = userIDs(sub.users)
		}
		if len(keys) == 1 {
			f.TargetKey = keys[0]
		} else {
			f.TargetKeys = keys
		}
		n, err := grants.DeleteUserGrants(ctx, f)
		if err != nil {
			return total, err
		}
		total += n
		if singular && n > 0 && e.plugins != nil {
			// The row is gone; hand plugins the removed triplet.
			e.plugins.EmitUserGrantRemoved(ctx, &grant.UserGrant{
				UserID:       sub.users[0].ID,
				PermissionID: perm.ID,
				TargetKind:   kind,
				TargetKey:    keys[0],
			})
		}
	}
	if len(sub.groups) > 0 {
		f := &grant.ListFilter{PermissionID: perm.ID, TargetKind: kind}
		if len(sub.groups) == 1 {
			f.GroupID = sub.groups[0].ID
		} else {
			f.GroupIDs = groupIDs(sub.groups)
		}
		if len(keys) == 1 {
			f.TargetKey = keys[0]
		} else {
			f.TargetKeys = keys
		}
		n, err := grants.DeleteGroupGrants(ctx, f)
		if err != nil {
			return total, err
		}
		total += n
		if singular && n > 0 && e.plugins != nil {
			e.plugins.EmitGroupGrantRemoved(ctx, &grant.GroupGrant{
				GroupID:      sub.groups[0].ID,
				PermissionID: perm.ID,
				TargetKind:   kind,
				TargetKey:    keys[0],
			})
		}
	}
	return total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Global permissions
// ─────────────────────────────────────────────────────────────────────────────

func (e *Engine) assignGlobal(ctx context.Context, code string, sub resolvedSubject) error {
	if sub.plural {
		return ErrBulkGlobalUnsupported
	}
	kind, codename, err := globalCode(code)
	if err != nil {
		return err
	}
	perm, err := e.store.GetPermissionByCode(ctx, kind, codename)
	if err != nil {
		return err
	}
	if len(sub.users) == 1 {
		return e.store.GrantGlobalToUser(ctx, sub.users[0].ID, perm.ID)
	}
	return e.store.GrantGlobalToGroup(ctx, sub.groups[0].ID, perm.ID)
}

func (e *Engine) removeGlobal(ctx context.Context, code string, sub resolvedSubject) (int64, error) {
	if sub.plural {
		return 0, ErrBulkGlobalUnsupported
	}
	kind, codename, err := globalCode(code)
	if err != nil {
		return 0, err
	}
	perm, err := e.store.GetPermissionByCode(ctx, kind, codename)
	if err != nil {
		return 0, err
	}
	var removed bool
	if len(sub.users) == 1 {
		removed, err = e.store.RevokeGlobalFromUser(ctx, sub.users[0].ID, perm.ID)
	} else {
		removed, err = e.store.RevokeGlobalFromGroup(ctx, sub.groups[0].ID, perm.ID)
	}
	if err != nil {
		return 0, err
	}
	if removed {
		return 1, nil
	}
	return 0, nil
}

// GlobalPerms returns the kind-qualified codes the user holds globally,
// directly or through group membership, sorted.
func (e *Engine) GlobalPerms(ctx context.Context, u *principal.User) ([]string, error) {
	if u == nil {
		return nil, ErrNotUserNorGroup
	}
	permIDs, err := e.store.ListGlobalForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	gids, err := e.store.ListGroupsForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	for _, gid := range gids {
		ids, err := e.store.ListGlobalForGroup(ctx, gid)
		if err != nil {
			return nil, err
		}
		permIDs = append(permIDs, ids...)
	}
	perms, err := e.store.GetPermissionsByIDs(ctx, dedupePermIDs(permIDs))
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(perms))
	for _, p := range perms {
		codes = append(codes, p.Code())
	}
	sort.Strings(codes)
	return codes, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Checks
// ─────────────────────────────────────────────────────────────────────────────

// HasPerm reports whether the user holds the permission on the object,
// through a fresh checker. Use CheckerFor when several checks share one
// principal.
func (e *Engine) HasPerm(ctx context.Context, u *principal.User, code string, obj Object) (bool, error) {
	return e.CheckerFor(u).HasPerm(ctx, code, obj)
}

// Perms returns the effective codename set the user holds on the object,
// combining user grants and grants of the user's groups.
func (e *Engine) Perms(ctx context.Context, u *principal.User, obj Object) ([]string, error) {
	return e.CheckerFor(u).Perms(ctx, obj)
}

// UserPerms returns only the codenames granted to the user directly,
// excluding group inheritance and the superuser bypass.
func (e *Engine) UserPerms(ctx context.Context, u *principal.User, obj Object) ([]string, error) {
	if u == nil {
		return nil, ErrNotUserNorGroup
	}
	if obj == nil || obj.ObjectKey() == "" {
		return nil, nil
	}
	kind := obj.ObjectKind()
	grants := e.registry.GrantsFor(kind, e.store)
	rows, err := grants.ListUserGrants(ctx, &grant.ListFilter{
		UserID:     u.ID,
		TargetKind: kind,
		TargetKey:  obj.ObjectKey(),
	})
	if err != nil {
		return nil, err
	}
	permIDs := make([]id.PermissionID, 0, len(rows))
	for _, row := range rows {
		permIDs = append(permIDs, row.PermissionID)
	}
	return e.codenamesByIDs(ctx, permIDs)
}

// GroupPerms returns the codenames granted to one group on the object.
func (e *Engine) GroupPerms(ctx context.Context, g *principal.Group, obj Object) ([]string, error) {
	if g == nil {
		return nil, ErrNotUserNorGroup
	}
	return e.CheckerForGroup(g).Perms(ctx, obj)
}

// GroupPermsForUser returns the codenames the user inherits on the
// object through group membership, excluding direct user grants.
func (e *Engine) GroupPermsForUser(ctx context.Context, u *principal.User, obj Object) ([]string, error) {
	if u == nil {
		return nil, ErrNotUserNorGroup
	}
	if obj == nil || obj.ObjectKey() == "" {
		return nil, nil
	}
	gids, err := e.store.ListGroupsForUser(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if len(gids) == 0 {
		return nil, nil
	}
	kind := obj.ObjectKind()
	grants := e.registry.GrantsFor(kind, e.store)
	rows, err := grants.ListGroupGrants(ctx, &grant.ListFilter{
		GroupIDs:   gids,
		TargetKind: kind,
		TargetKey:  obj.ObjectKey(),
	})
	if err != nil {
		return nil, err
	}
	permIDs := make([]id.PermissionID, 0, len(rows))
	for _, row := range rows {
		permIDs = append(permIDs, row.PermissionID)
	}
	return e.codenamesByIDs(ctx, permIDs)
}

// codenamesByIDs resolves permission IDs to a sorted, deduplicated
// codename list.
func (e *Engine) codenamesByIDs(ctx context.Context, permIDs []id.PermissionID) ([]string, error) {
	if len(permIDs) == 0 {
		return []string{}, nil
	}
	perms, err := e.store.GetPermissionsByIDs(ctx, dedupePermIDs(permIDs))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(perms))
	codenames := make([]string, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p.Codename]; ok {
			continue
		}
		seen[p.Codename] = struct{}{}
		codenames = append(codenames, p.Codename)
	}
	sort.Strings(codenames)
	return codenames, nil
}

func dedupePermIDs(ids []id.PermissionID) []id.PermissionID {
	seen := make(map[string]struct{}, len(ids))
	out := make([]id.PermissionID, 0, len(ids))
	for _, pid := range ids {
		key := pid.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pid)
	}
	return out
}

func userIDs(users []*principal.User) []id.UserID {
	out := make([]id.UserID, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func groupIDs(groups []*principal.Group) []id.GroupID {
	out := make([]id.GroupID, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.ID)
	}
	return out
}
